package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/occidens/org-async/internal/config"
)

func validTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Defaults()
	cfg.Worker.HostExec = "/bin/sh" // always present on test hosts
	cfg.Worker.ArtifactDir = filepath.Join(dir, "artifacts")
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	return cfg
}

func TestValidate_OK(t *testing.T) {
	d := New(validTestConfig(t))

	r := d.Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %+v", r.Errors)
	}
}

func TestValidate_MissingHostExec(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Worker.HostExec = "definitely-not-a-real-binary-12345"

	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid result for missing host executable")
	}
	found := false
	for _, issue := range r.Errors {
		if issue.Field == "worker.host_exec" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected host_exec error, got %+v", r.Errors)
	}
}

func TestValidate_MissingInitFile(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Worker.InitFile = filepath.Join(t.TempDir(), "missing-init.el")

	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid result for missing init file")
	}
}

func TestValidate_InitFilePresent(t *testing.T) {
	cfg := validTestConfig(t)
	initFile := filepath.Join(t.TempDir(), "init.el")
	if err := os.WriteFile(initFile, []byte("(setq debug-on-error nil)\n"), 0644); err != nil {
		t.Fatalf("write init file: %v", err)
	}
	cfg.Worker.InitFile = initFile

	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %+v", r.Errors)
	}
}

func TestValidate_NoJournalWarns(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Journal.Path = ""

	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("missing journal should warn, not error: %+v", r.Errors)
	}
	if len(r.Warnings) == 0 {
		t.Error("expected a warning for missing journal")
	}
}
