// Package monitor observes worker process exit, classifies it, extracts the
// result payload, and finalizes the job.
package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/occidens/org-async/internal/job"
	"github.com/occidens/org-async/internal/journal"
	"github.com/occidens/org-async/internal/log"
	"github.com/occidens/org-async/internal/sexp"
	"github.com/occidens/org-async/internal/stack"
)

// maxStderrBytes caps the amount of stderr recorded from a failed worker.
const maxStderrBytes = 64 * 1024

// Monitor finalizes jobs when their worker exits.
type Monitor struct {
	// Debug retains the artifact file and the worker's raw output for
	// inspection instead of cleaning them up.
	Debug bool

	// Journal, when set, receives one entry per terminal transition.
	Journal *journal.Journal

	// Stack, when set, is updated with the terminal summary.
	Stack *stack.Stack

	logger *slog.Logger
}

// New creates a Monitor.
func New(debug bool, jr *journal.Journal, st *stack.Stack) *Monitor {
	return &Monitor{
		Debug:   debug,
		Journal: jr,
		Stack:   st,
		logger:  log.WithComponent("monitor"),
	}
}

// Watch blocks until cmd exits, then finalizes j: status classification,
// result extraction, callback dispatch, journal/stack updates, cleanup.
// It must be handed the exec.Cmd returned by the spawn call itself — never a
// process looked up afterwards — so no status change can slip between spawn
// and attachment. Run it in its own goroutine; waiters are released last.
//
// The returned error is the completion-path error: abnormal termination, a
// malformed trailing value, or a callback failure.
func (m *Monitor) Watch(j *job.Job, cmd *exec.Cmd, stdout, stderr *bytes.Buffer, artifactHash string) error {
	defer j.Finish()

	waitErr := cmd.Wait()
	return m.finalize(j, waitErr, stdout.Bytes(), stderr.Bytes(), artifactHash)
}

// finalize applies the terminal transition for one observed exit.
func (m *Monitor) finalize(j *job.Job, waitErr error, stdout, stderr []byte, artifactHash string) (finalErr error) {
	completed := time.Now().UTC()
	j.CompletedAt = &completed
	j.Status = classify(waitErr)

	logger := m.logger.With("job_id", j.ID, "origin", j.Origin)

	// Cleanup runs last on every path. It reports its own problems but
	// never masks the completion error.
	defer func() {
		if m.Debug {
			j.Output = stdout
			logger.Debug("debug mode: retaining artifact and worker output",
				"artifact", j.ArtifactPath, "output_bytes", len(stdout))
			return
		}
		if j.ArtifactPath != "" {
			if err := os.Remove(j.ArtifactPath); err != nil && !os.IsNotExist(err) {
				logger.Warn("artifact cleanup failed", "artifact", j.ArtifactPath, "error", err)
			}
		}
	}()

	defer func() {
		m.record(j, artifactHash, stderr)
	}()

	if j.Status != job.StatusExited {
		err := abnormalExitError(j, waitErr)
		j.Err = err
		logger.Error("worker terminated abnormally", "status", j.Status, "error", err)
		return err
	}

	value, err := sexp.ReadLast(stdout)
	if err != nil {
		// Clean exit but no well-formed trailing value: a defect to
		// surface, never a silent default.
		err = fmt.Errorf("job %s: %w", j.ID, err)
		j.Err = err
		logger.Error("result extraction failed", "error", err)
		return err
	}
	j.Result = value

	if err := j.RunCallbacks(); err != nil {
		err = fmt.Errorf("job %s: completion callback: %w", j.ID, err)
		j.Err = err
		logger.Error("completion callback failed", "error", err)
		return err
	}

	logger.Info("job completed", "status", j.Status, "result", sexp.Print(value))
	return nil
}

// record publishes the terminal summary and appends the journal entry.
func (m *Monitor) record(j *job.Job, artifactHash string, stderr []byte) {
	summary := stack.Summary{
		ID:          j.ID,
		Origin:      j.Origin,
		Status:      j.Status,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.Result != nil {
		summary.Result = sexp.Print(j.Result)
	}
	if j.Err != nil {
		summary.Error = j.Err.Error()
	}
	if m.Stack != nil {
		m.Stack.Put(summary)
	}

	if m.Journal == nil {
		return
	}

	entry := journal.Entry{
		JobID:        j.ID,
		Origin:       j.Origin,
		Status:       j.Status,
		CreatedAt:    j.CreatedAt,
		CompletedAt:  *j.CompletedAt,
		Duration:     j.CompletedAt.Sub(j.CreatedAt),
		Result:       summary.Result,
		ArtifactHash: artifactHash,
	}
	if j.Err != nil {
		msg := j.Err.Error()
		if detail := truncateStderr(string(stderr)); detail != "" {
			msg = msg + "; stderr: " + detail
		}
		entry.LastError = &msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Journal.Append(ctx, entry); err != nil {
		m.logger.Error("failed to journal completion", "job_id", j.ID, "error", err)
	}
}

// classify maps a Wait error to the terminal status.
func classify(waitErr error) job.Status {
	if waitErr == nil {
		return job.StatusExited
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if exitErr.ExitCode() > 0 {
			return job.StatusFailed
		}
		// Signal death or no recorded exit code.
		return job.StatusUnknown
	}
	return job.StatusUnknown
}

func abnormalExitError(j *job.Job, waitErr error) error {
	pid := -1
	if j.Process != nil {
		pid = j.Process.Pid
	}
	return fmt.Errorf("worker process %d for job %s (origin %q) terminated abnormally: %v",
		pid, j.ID, j.Origin, waitErr)
}

// truncateStderr caps recorded stderr at maxStderrBytes.
func truncateStderr(s string) string {
	if len(s) > maxStderrBytes {
		return s[:maxStderrBytes]
	}
	return s
}
