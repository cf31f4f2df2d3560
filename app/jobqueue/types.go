// Package jobqueue is the Redis-backed ingestion queue that drives SMS parsing
package jobqueue

import (
	"context"
	"errors"
	"time"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusDelayed   JobStatus = "delayed"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one parse attempt series for one SMS
type Job struct {
	ID               string     `json:"id"`
	SmsID            uint       `json:"sms_id"`
	Status           JobStatus  `json:"status"`
	Attempts         int        `json:"attempts"`
	MaxAttempts      int        `json:"max_attempts"`
	RemoveOnComplete bool       `json:"remove_on_complete"`
	LastError        string     `json:"last_error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	RunAt            *time.Time `json:"run_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// IsRetryable checks whether another attempt is allowed after a failure
func (j *Job) IsRetryable(err error) bool {
	return !IsPermanent(err) && j.Attempts < j.MaxAttempts
}

// EnqueueOptions tune a single enqueue
type EnqueueOptions struct {
	// RemoveOnComplete drops the job record on success instead of keeping it in the completed list
	RemoveOnComplete bool
}

// Processor handles jobs pulled off the queue
type Processor interface {
	// Process runs one attempt; attempt starts at 1
	Process(ctx context.Context, smsID uint, attempt int) error
	// OnExhausted is called once when the job will not be retried again
	OnExhausted(ctx context.Context, smsID uint, err error)
}

// Overview is a point-in-time view of the queue
type Overview struct {
	Waiting   int64            `json:"waiting"`
	Active    int64            `json:"active"`
	Delayed   int64            `json:"delayed"`
	Completed int64            `json:"completed"`
	Failed    int64            `json:"failed"`
	Totals    map[string]int64 `json:"totals"`
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Backoff returns base * 2^(attempt-1)
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 20 {
		attempt = 20
	}
	return base * time.Duration(1<<(attempt-1))
}
