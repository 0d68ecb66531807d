// Package launch spawns worker processes for serialized jobs and attaches
// their completion monitors.
package launch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/occidens/org-async/internal/job"
	"github.com/occidens/org-async/internal/log"
	"github.com/occidens/org-async/internal/monitor"
	"github.com/occidens/org-async/internal/script"
	"github.com/occidens/org-async/internal/stack"
)

// Config controls how worker processes are spawned. It is explicit
// per-launcher state, not ambient process-wide configuration, so job
// execution stays deterministic and testable in isolation.
type Config struct {
	// HostExec is the executable evaluating artifacts in batch mode.
	HostExec string

	// InitFile selects the worker's initialization strategy. Empty means
	// the normal initialization sequence; a non-empty absolute path means
	// the worker loads only that file.
	InitFile string

	// Debug retains artifacts and worker output after completion.
	Debug bool

	// ArtifactDir is where generated artifacts are written.
	ArtifactDir string
}

// Launcher materializes jobs and starts their worker processes.
type Launcher struct {
	cfg        Config
	serializer *script.Serializer
	monitor    *monitor.Monitor
	stack      *stack.Stack
	logger     *slog.Logger
}

// New creates a Launcher. mon must not be nil; st may be nil when no live
// inspection is needed.
func New(cfg Config, mon *monitor.Monitor, st *stack.Stack) *Launcher {
	return &Launcher{
		cfg:        cfg,
		serializer: script.New(cfg.ArtifactDir),
		monitor:    mon,
		stack:      st,
		logger:     log.WithComponent("launch"),
	}
}

// Start serializes j, spawns its worker, and attaches the completion
// monitor. It returns as soon as the worker is running; the monitor
// goroutine performs the wait. Serialization and spawn failures are
// returned synchronously and stop the job before any process exists.
//
// A terminal job may be started again: it gets a fresh artifact and a fresh
// process handle. A job that is already running is rejected.
func (l *Launcher) Start(ctx context.Context, j *job.Job) error {
	if j.Status == job.StatusRunning {
		return fmt.Errorf("job %s is already running", j.ID)
	}
	if j.Status.Terminal() {
		j.Reset()
	}

	art, err := l.serializer.Write(j)
	if err != nil {
		return fmt.Errorf("serialize job %s: %w", j.ID, err)
	}
	j.ArtifactPath = art.Path

	args := invocationArgs(l.cfg.InitFile, art.Path)
	cmd := exec.Command(l.cfg.HostExec, args...)

	// In-memory pipes, never a pty: buffering and control-sequence
	// handling stay predictable across platforms.
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	l.logger.Debug("spawning worker",
		"job_id", j.ID, "host", l.cfg.HostExec, "args", args)

	if err := cmd.Start(); err != nil {
		if !l.cfg.Debug {
			if rmErr := os.Remove(art.Path); rmErr != nil && !os.IsNotExist(rmErr) {
				l.logger.Warn("artifact cleanup failed", "artifact", art.Path, "error", rmErr)
			}
		}
		return fmt.Errorf("start worker for job %s: %w", j.ID, err)
	}

	j.Process = cmd.Process
	j.Status = job.StatusRunning

	if l.stack != nil {
		l.stack.Put(stack.Summary{
			ID:        j.ID,
			Origin:    j.Origin,
			Status:    job.StatusRunning,
			CreatedAt: j.CreatedAt,
		})
	}

	l.logger.Info("worker started", "job_id", j.ID, "pid", cmd.Process.Pid)

	// The monitor attaches to the exec.Cmd returned by the spawn call
	// itself, so the exit notification cannot be missed even if the
	// process dies immediately.
	go func() {
		if err := l.monitor.Watch(j, cmd, &stdout, &stderr, art.Hash); err != nil {
			l.logger.Error("job completion failed", "job_id", j.ID, "error", err)
		}
	}()

	return nil
}

// invocationArgs builds the worker argument sequence. This shape is an
// external contract: batch mode, then either a single override init file
// (loaded with a bare environment) or the normal initialization sequence,
// then the artifact.
func invocationArgs(initFile, artifactPath string) []string {
	args := []string{"--batch"}
	if initFile != "" {
		args = append(args, "-Q", "-l", initFile)
	}
	return append(args, "-l", artifactPath)
}
