// Package script materializes a job into a standalone artifact that a worker
// process can load and evaluate with no access to the coordinator's memory.
package script

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/zeebo/blake3"

	"github.com/occidens/org-async/internal/job"
	"github.com/occidens/org-async/internal/sexp"
)

// ErrNotSerializable reports that a job's work or setup form cannot be
// captured as self-contained, reconstructable code. There is no partial
// serialization: nothing is written when this is returned.
var ErrNotSerializable = errors.New("form is not serializable")

var encodingPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*$`)

// Artifact describes a written runnable unit.
type Artifact struct {
	Path string
	// Hash is the BLAKE3 fingerprint of the artifact content, recorded in
	// the completion journal.
	Hash string
}

// Serializer writes job artifacts into a directory.
type Serializer struct {
	dir string
}

// New creates a Serializer writing artifacts under dir.
func New(dir string) *Serializer {
	return &Serializer{dir: dir}
}

// Write materializes j into a runnable artifact file and returns its path
// and content hash. The generated program, in order: establishes a private
// workspace with the job's encoding, disables interactive prompts, runs the
// setup form, marks the workspace unmodified, then evaluates the work form
// and prints its value as the trailing output.
func (s *Serializer) Write(j *job.Job) (*Artifact, error) {
	content, err := Render(j)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}

	f, err := os.CreateTemp(s.dir, "org-async-*.el")
	if err != nil {
		return nil, fmt.Errorf("create artifact file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("close artifact: %w", err)
	}

	sum := blake3.Sum256(content)
	return &Artifact{
		Path: f.Name(),
		Hash: hex.EncodeToString(sum[:]),
	}, nil
}

// Render produces the artifact text for j without writing it. Serialization
// fails loudly when the work or setup form is empty or unbalanced.
func Render(j *job.Job) ([]byte, error) {
	encoding := j.Encoding
	if encoding == "" {
		encoding = job.DefaultEncoding
	}
	if !encodingPattern.MatchString(encoding) {
		return nil, fmt.Errorf("%w: invalid encoding %q", ErrNotSerializable, encoding)
	}

	if err := sexp.CheckBalanced(string(j.Work)); err != nil {
		return nil, fmt.Errorf("%w: work form: %v", ErrNotSerializable, err)
	}
	setup := string(j.Setup)
	if setup != "" {
		if err := sexp.CheckBalanced(setup); err != nil {
			return nil, fmt.Errorf("%w: setup form: %v", ErrNotSerializable, err)
		}
	}
	if setup == "" {
		setup = "nil"
	}

	var b bytes.Buffer

	// The coding declaration must be the first line so the worker decodes
	// the rest of the file, and the data embedded in it, correctly even
	// when forms carry null or control bytes.
	fmt.Fprintf(&b, ";; -*- coding: %s; lexical-binding: t; -*-\n", encoding)
	fmt.Fprintf(&b, ";; generated worker program for job %s (origin %q)\n", j.ID, j.Origin)
	fmt.Fprintf(&b, `(with-temp-buffer
  (set-buffer-file-coding-system '%s)
  (setq kill-buffer-query-functions nil)
  (fset 'yes-or-no-p #'ignore)
  (fset 'y-or-n-p #'ignore)
  %s
  (set-buffer-modified-p nil)
  (prin1
   (progn
     %s)))
(terpri)
`, encoding, setup, string(j.Work))

	return b.Bytes(), nil
}
