// Package workqueue implements the bounded-concurrency priority job queue
// that drives the scoring pipeline (C7), generalized from the teacher's
// internal/target/queue disk-backed retry/DLQ design down to an in-memory,
// JSON-serializable job model with no SMTP/disk coupling.
package workqueue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is a Job's position in its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusDeadletter Status = "deadletter"
)

// Job is one unit of work submitted to the queue. Payload is opaque to the
// queue itself; the configured handler interprets it.
type Job struct {
	ID         string          `json:"id"`
	Priority   int             `json:"priority"`
	CreatedAt  time.Time       `json:"createdAt"`
	Payload    json.RawMessage `json:"payload"`
	Status     Status          `json:"status"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"lastError,omitempty"`
	Score      float64         `json:"score,omitempty"`
	ProcessMs  int64           `json:"processMs,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// NewJob builds a pending Job with a generated ID, marshaling payload to
// JSON so the queue's own serialize/deserialize round-trips cleanly.
func NewJob(priority int, payload interface{}) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Job{
		ID:         uuid.NewString(),
		Priority:   priority,
		CreatedAt:  now,
		EnqueuedAt: now,
		Payload:    raw,
		Status:     StatusPending,
	}, nil
}

// Result is what a Handler reports back for a job.
type Result struct {
	Score float64
	Err   error
}

// Handler processes one job's payload and returns a threat score plus any
// processing error. A non-nil error triggers the queue's retry policy.
type Handler func(job *Job) Result
