// Package job defines the record describing one unit of deferred work and
// its lifecycle state.
//
// A Job is owned by its creator until handed to the launcher; after that it
// is mutated only by the monitor goroutine attached to its worker process.
// There is never more than one writer at a time, so the record carries no
// lock.
package job

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"

	// Terminal states. StatusExited is a clean zero exit, StatusFailed a
	// non-zero exit, StatusUnknown signal death or other abnormal
	// termination with no exit code.
	StatusExited  Status = "exited"
	StatusFailed  Status = "failed"
	StatusUnknown Status = "unknown"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusExited || s == StatusFailed || s == StatusUnknown
}

// Form is the source text of a self-contained zero-argument program evaluated
// by the worker. Anything a form references must be literal data in the text
// or regenerated by the job's setup form; no closure capture is attempted.
type Form string

// DefaultEncoding is used for artifacts when a job does not set one.
const DefaultEncoding = "utf-8"

// Job is one unit of deferred work plus its lifecycle metadata.
type Job struct {
	ID string

	// Origin identifies the source context the work derives from.
	// Immutable after creation.
	Origin string

	// Encoding is the text encoding used when materializing and reading
	// textual data. Immutable after creation.
	Encoding string

	// Setup reconstructs any needed source-context state inside the
	// worker. Immutable after creation.
	Setup Form

	// Work is the computation to execute; its printed value becomes the
	// result payload. Immutable after creation.
	Work Form

	// CreatedAt is refreshed when a job is duplicated.
	CreatedAt time.Time

	// ArtifactPath is set exactly once per worker attempt, then deleted
	// on cleanup unless debug mode retains it.
	ArtifactPath string

	// Process is the handle of the current (or most recent) worker.
	// Replaced when a job is retried with a new worker.
	Process *os.Process

	Status Status

	// Result is the decoded trailing value printed by the worker. Nil
	// until a clean exit has been observed; callers must check Status
	// before trusting it.
	Result any

	// Err records a post-spawn failure: abnormal termination, a malformed
	// trailing value, or a callback error.
	Err error

	// Output is the worker's raw output, retained only in debug mode.
	Output []byte

	CompletedAt *time.Time

	callbacks []Callback

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a job that captures origin state at this instant.
func New(origin string, work Form) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Origin:    origin,
		Encoding:  DefaultEncoding,
		Work:      work,
		CreatedAt: time.Now().UTC(),
		Status:    StatusPending,
		done:      make(chan struct{}),
	}
}

// Duplicate returns a copy of j with a fresh timestamp. Origin, encoding,
// setup, work and callbacks carry over; the worker attempt fields (artifact
// path, process handle, status, result) reset to their unset defaults.
func (j *Job) Duplicate() *Job {
	now := time.Now().UTC()
	if !now.After(j.CreatedAt) {
		now = j.CreatedAt.Add(time.Nanosecond)
	}

	dup := &Job{
		ID:        uuid.NewString(),
		Origin:    j.Origin,
		Encoding:  j.Encoding,
		Setup:     j.Setup,
		Work:      j.Work,
		CreatedAt: now,
		Status:    StatusPending,
		callbacks: make([]Callback, len(j.callbacks)),
		done:      make(chan struct{}),
	}
	copy(dup.callbacks, j.callbacks)
	return dup
}

// Reset prepares a terminal job for a fresh worker attempt. The next attempt
// gets a new artifact and process handle. Running jobs cannot be reset.
func (j *Job) Reset() {
	if j.Status == StatusRunning {
		return
	}
	j.ArtifactPath = ""
	j.Process = nil
	j.Status = StatusPending
	j.Result = nil
	j.Err = nil
	j.Output = nil
	j.CompletedAt = nil
	j.done = make(chan struct{})
	j.doneOnce = sync.Once{}
}

// Finish marks the completion path done and releases waiters. Idempotent.
func (j *Job) Finish() {
	j.doneOnce.Do(func() { close(j.done) })
}

// Wait blocks until the job's monitor has finished, or ctx is done. It is a
// convenience for callers outside the coordinating goroutine; the coordinator
// itself never blocks on a worker.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
