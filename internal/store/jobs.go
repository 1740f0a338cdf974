// ABOUTME: DB-backed job queue: enqueue, claim (SKIP LOCKED), complete, fail, recover.
// ABOUTME: Used for invitation email delivery; retry uses exponential backoff.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Job is a claimed job ready for execution by the worker pool.
type Job struct {
	ID       uuid.UUID
	Queue    string
	Payload  json.RawMessage
	Attempts int
}

// EnqueueJob inserts a new pending job into the named queue and returns its ID.
func (s *Store) EnqueueJob(ctx context.Context, queue string, payload json.RawMessage, maxAttempts int) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO job_queue (queue, payload, max_attempts)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		queue, payload, maxAttempts,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// ClaimJob atomically claims one pending job from the named queue for the
// given workerID using FOR UPDATE SKIP LOCKED. Returns (nil, nil) when no
// job is currently available.
func (s *Store) ClaimJob(ctx context.Context, queue, workerID string) (*Job, error) {
	var job Job
	err := s.pool.QueryRow(ctx,
		`UPDATE job_queue
		    SET status = 'running', attempts = attempts + 1, locked_by = $2, locked_at = now()
		  WHERE id = (
		        SELECT id FROM job_queue
		         WHERE queue = $1 AND status = 'pending' AND run_after <= now()
		         ORDER BY run_after
		         FOR UPDATE SKIP LOCKED
		         LIMIT 1)
		  RETURNING id, queue, payload, attempts`,
		queue, workerID,
	).Scan(&job.ID, &job.Queue, &job.Payload, &job.Attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

// CompleteJob marks a job as succeeded.
func (s *Store) CompleteJob(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE job_queue
		    SET status = 'succeeded', completed_at = now(), locked_by = NULL, locked_at = NULL
		  WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

// FailJob records a handler failure: the job is rescheduled with exponential
// backoff (2^attempts minutes) or moved to 'dead' once max_attempts is
// exhausted.
func (s *Store) FailJob(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE job_queue
		    SET status     = CASE WHEN attempts >= max_attempts THEN 'dead' ELSE 'pending' END,
		        run_after  = now() + (interval '1 minute' * power(2, attempts)),
		        last_error = $2,
		        locked_by  = NULL,
		        locked_at  = NULL
		  WHERE id = $1`, id, errMsg)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return nil
}

// RecoverStaleJobs resets jobs stuck in 'running' state longer than
// staleAfter back to 'pending'. Returns the number of jobs recovered.
func (s *Store) RecoverStaleJobs(ctx context.Context, staleAfter time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_queue
		    SET status = 'pending', locked_by = NULL, locked_at = NULL
		  WHERE status = 'running' AND locked_at < now() - ($1 * interval '1 second')`,
		int64(staleAfter.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
