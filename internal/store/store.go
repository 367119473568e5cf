// Package store persists traces as one JSON document per run in a runs
// directory and provides the validated read path over them.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rlmlab/rlmtrace/internal/trace"
)

// ErrNotFound is returned when no trace exists for a run id. Invalid ids
// and unparseable artifacts map to the same error so callers cannot probe
// the storage layer through crafted identifiers.
var ErrNotFound = errors.New("trace not found")

// runIDPattern restricts run ids to a safe filename alphabet. Anything else
// is rejected before touching the filesystem.
var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidRunID reports whether id may be used as a storage key.
func ValidRunID(id string) bool {
	return runIDPattern.MatchString(id)
}

// Store reads and writes trace artifacts under a single runs directory.
// Both read operations are stateless and idempotent; Save overwrites
// wholesale via rename so readers never observe a torn document.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a Store over dir. The directory is created lazily on the
// first Save; List and Load treat a missing directory as empty.
func New(dir string) *Store {
	return &Store{dir: dir, logger: slog.Default()}
}

// Dir returns the runs directory this store reads and writes.
func (s *Store) Dir() string {
	return s.dir
}

// Save serializes t as <run_id>.json in the runs directory, replacing any
// existing artifact with that id. A single attempt; failures propagate.
func (s *Store) Save(t trace.Trace) error {
	if !ValidRunID(t.RunID) {
		return fmt.Errorf("invalid run id %q", t.RunID)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating runs directory: %w", err)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling trace %s: %w", t.RunID, err)
	}

	// Write to a temp file in the same directory, then rename into place,
	// so a concurrent reader sees either the old or the new artifact in
	// full.
	tmp, err := os.CreateTemp(s.dir, t.RunID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing trace %s: %w", t.RunID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing trace %s: %w", t.RunID, err)
	}
	if err := os.Rename(tmpName, s.path(t.RunID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storing trace %s: %w", t.RunID, err)
	}
	return nil
}

// List returns summaries for every parseable trace in the runs directory,
// ordered lexicographically by storage key. A missing or unreadable
// directory yields no traces rather than an error, and corrupt artifacts
// are skipped so one bad file cannot hide the rest.
func (s *Store) List() []trace.Summary {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	var runs []trace.Summary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("skipping unreadable trace", "file", name, "error", err)
			continue
		}
		var t trace.Trace
		if err := json.Unmarshal(data, &t); err != nil {
			s.logger.Warn("skipping corrupt trace", "file", name, "error", err)
			continue
		}
		if t.RunID == "" {
			t.RunID = strings.TrimSuffix(name, ".json")
		}
		runs = append(runs, trace.Summarize(t))
	}
	return runs
}

// Load returns the trace stored under runID. Ids outside the allowed
// pattern are rejected without any filesystem access; missing and corrupt
// artifacts both return ErrNotFound.
func (s *Store) Load(runID string) (trace.Trace, error) {
	if !ValidRunID(runID) {
		return trace.Trace{}, ErrNotFound
	}

	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		return trace.Trace{}, ErrNotFound
	}

	var t trace.Trace
	if err := json.Unmarshal(data, &t); err != nil {
		s.logger.Warn("stored trace is corrupt", "run_id", runID, "error", err)
		return trace.Trace{}, ErrNotFound
	}
	return t, nil
}

func (s *Store) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}
