// Package doctor validates that the environment can actually run workers:
// host executable, init file, artifact directory, journal database.
package doctor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/occidens/org-async/internal/config"
	"github.com/occidens/org-async/internal/journal"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration against the host environment.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.checkHostExec(r)
	d.checkInitFile(r)
	d.checkArtifactDir(r)
	d.checkJournal(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkHostExec verifies the host executable resolves on PATH.
func (d *Doctor) checkHostExec(r *Result) {
	host := d.cfg.Worker.HostExec
	if host == "" {
		d.addError(r, "worker", "worker.host_exec", "host_exec is required")
		return
	}
	if _, err := exec.LookPath(host); err != nil {
		d.addError(r, "worker", "worker.host_exec",
			"host executable not found: "+host)
	}
}

// checkInitFile verifies a configured init file override exists.
func (d *Doctor) checkInitFile(r *Result) {
	initFile := d.cfg.Worker.InitFile
	if initFile == "" {
		return
	}
	if !filepath.IsAbs(initFile) {
		d.addError(r, "worker", "worker.init_file", "init_file must be an absolute path")
		return
	}
	if _, err := os.Stat(initFile); err != nil {
		d.addError(r, "worker", "worker.init_file", "init file not found: "+initFile)
	}
}

// checkArtifactDir verifies artifacts can be written.
func (d *Doctor) checkArtifactDir(r *Result) {
	dir := d.cfg.Worker.ArtifactDir
	if dir == "" {
		d.addError(r, "worker", "worker.artifact_dir", "artifact_dir is required")
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.addError(r, "worker", "worker.artifact_dir", "cannot create artifact dir: "+err.Error())
		return
	}
	probe, err := os.CreateTemp(dir, "doctor-*")
	if err != nil {
		d.addError(r, "worker", "worker.artifact_dir", "artifact dir not writable: "+err.Error())
		return
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())
}

// checkJournal verifies the journal database opens.
func (d *Doctor) checkJournal(r *Result) {
	path := d.cfg.Journal.Path
	if path == "" {
		d.addWarning(r, "journal", "journal.path", "no journal configured; completions will not persist")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	jr, err := journal.Open(ctx, path)
	if err != nil {
		d.addError(r, "journal", "journal.path", "cannot open journal: "+err.Error())
		return
	}
	_ = jr.Close()
}
