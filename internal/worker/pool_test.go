// ABOUTME: Integration tests for the worker pool: claim, success, retry scheduling.
// ABOUTME: Uses testutil.NewTestDB; each test runs against a real Postgres testcontainer.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/testutil"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/worker"
)

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPool_ExecutesJob(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := s.EnqueueJob(ctx, "pool_test", json.RawMessage(`{"n":1}`), 3)
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	var got atomic.Value
	p := worker.New(s.Store, worker.WithPollInterval(50*time.Millisecond))
	p.Register("pool_test", func(_ context.Context, payload json.RawMessage) error {
		got.Store(string(payload))
		return nil
	})
	go p.Run(ctx)

	waitFor(t, 10*time.Second, func() bool {
		var status string
		err := s.Pool().QueryRow(context.Background(),
			"SELECT status FROM job_queue WHERE id = $1", id).Scan(&status)
		return err == nil && status == "succeeded"
	})

	if v, _ := got.Load().(string); v != `{"n":1}` {
		t.Errorf("handler payload = %q", v)
	}
}

func TestPool_FailedJobIsRescheduled(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := s.EnqueueJob(ctx, "pool_fail", json.RawMessage(`{}`), 3)
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	var calls atomic.Int32
	p := worker.New(s.Store, worker.WithPollInterval(50*time.Millisecond))
	p.Register("pool_fail", func(context.Context, json.RawMessage) error {
		calls.Add(1)
		return errors.New("boom")
	})
	go p.Run(ctx)

	// The first attempt fails and reschedules with backoff, so exactly one
	// execution happens inside the test window.
	waitFor(t, 10*time.Second, func() bool { return calls.Load() >= 1 })

	waitFor(t, 10*time.Second, func() bool {
		var status, lastError string
		err := s.Pool().QueryRow(context.Background(),
			"SELECT status, coalesce(last_error, '') FROM job_queue WHERE id = $1", id).
			Scan(&status, &lastError)
		return err == nil && status == "pending" && lastError == "boom"
	})
	if calls.Load() != 1 {
		t.Errorf("handler ran %d times before backoff elapsed, want 1", calls.Load())
	}
}

func TestPool_UnregisteredQueueUntouched(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := s.EnqueueJob(ctx, "orphan_queue", json.RawMessage(`{}`), 3)
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	p := worker.New(s.Store, worker.WithPollInterval(50*time.Millisecond))
	p.Register("some_other_queue", func(context.Context, json.RawMessage) error { return nil })
	go p.Run(ctx)

	time.Sleep(300 * time.Millisecond)
	var status string
	if err := s.Pool().QueryRow(context.Background(),
		"SELECT status FROM job_queue WHERE id = $1", id).Scan(&status); err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status != "pending" {
		t.Errorf("orphan job status = %q, want pending", status)
	}
}
