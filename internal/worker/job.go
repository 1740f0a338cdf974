// Package worker runs background jobs claimed from the job_queue table.
//
// Each registered queue gets its own polling goroutine; claims use
// FOR UPDATE SKIP LOCKED so multiple worker processes can share a queue.
// A recovery goroutine returns jobs orphaned by a crashed worker to the
// pending state.
package worker

import (
	"context"
	"encoding/json"
)

// Handler executes one claimed job. Returning an error reschedules the job
// with exponential backoff until max_attempts is reached, after which the
// job is marked dead. Returning nil marks it succeeded.
type Handler func(ctx context.Context, payload json.RawMessage) error
