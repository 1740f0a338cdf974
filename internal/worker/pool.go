package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/store"
)

const (
	defaultPollInterval = 3 * time.Second

	// staleCheckInterval is how often orphaned 'running' jobs are swept.
	staleCheckInterval = time.Minute

	// staleThreshold is the lock age at which a running job counts as orphaned.
	staleThreshold = 5 * time.Minute
)

// Pool claims and executes jobs for its registered queues. Construct with
// New, register handlers, then call Run; Run blocks until ctx is cancelled.
type Pool struct {
	store    *store.Store
	workerID string
	poll     time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithPollInterval overrides how often each queue goroutine looks for work.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) { p.poll = d }
}

// New creates a Pool backed by s. The pool gets a random worker ID so the
// locked_by column identifies which process holds each claim.
func New(s *store.Store, opts ...Option) *Pool {
	p := &Pool{
		store:    s,
		workerID: uuid.NewString(),
		poll:     defaultPollInterval,
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register binds h to the named queue. Must be called before Run.
func (p *Pool) Register(queue string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[queue] = h
}

// Run starts one polling goroutine per registered queue plus the stale-lock
// sweeper and blocks until ctx is cancelled. In-flight jobs finish before
// Run returns.
func (p *Pool) Run(ctx context.Context) {
	p.mu.RLock()
	queues := make([]string, 0, len(p.handlers))
	for q := range p.handlers {
		queues = append(queues, q)
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, q := range queues {
		wg.Add(1)
		go func(queue string) {
			defer wg.Done()
			p.pollQueue(ctx, queue)
		}(q)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.sweepStale(ctx)
	}()

	wg.Wait()
	slog.Info("worker pool stopped", "worker_id", p.workerID)
}

func (p *Pool) pollQueue(ctx context.Context, queue string) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	slog.Info("queue worker started", "queue", queue, "worker_id", p.workerID)

	for {
		select {
		case <-ctx.Done():
			slog.Info("queue worker stopping", "queue", queue)
			return
		case <-ticker.C:
			p.runOne(ctx, queue)
		}
	}
}

// runOne claims and executes at most one job. Failures are recorded on the
// job row and logged; the polling loop always continues.
func (p *Pool) runOne(ctx context.Context, queue string) {
	job, err := p.store.ClaimJob(ctx, queue, p.workerID)
	if err != nil {
		slog.Error("claim job", "queue", queue, "error", err)
		return
	}
	if job == nil {
		return
	}

	p.mu.RLock()
	h := p.handlers[queue]
	p.mu.RUnlock()
	if h == nil {
		slog.Error("no handler for queue", "queue", queue, "job_id", job.ID)
		return
	}

	if err := h(ctx, job.Payload); err != nil {
		slog.Error("job failed",
			"queue", queue, "job_id", job.ID, "attempt", job.Attempts, "error", err)
		if ferr := p.store.FailJob(ctx, job.ID, err.Error()); ferr != nil {
			slog.Error("record job failure", "job_id", job.ID, "error", ferr)
		}
		return
	}

	if err := p.store.CompleteJob(ctx, job.ID); err != nil {
		slog.Error("mark job complete", "job_id", job.ID, "error", err)
		return
	}
	slog.Info("job done", "queue", queue, "job_id", job.ID)
}

func (p *Pool) sweepStale(ctx context.Context) {
	ticker := time.NewTicker(staleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.store.RecoverStaleJobs(ctx, staleThreshold)
			if err != nil {
				slog.Error("stale job sweep", "error", err)
				continue
			}
			if n > 0 {
				slog.Warn("recovered stale jobs", "count", n)
			}
		}
	}
}
