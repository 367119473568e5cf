// Package history keeps a SQLite catalog of recorded runs. The JSON trace
// artifacts stay the source of truth; the catalog only serves queries like
// "what did I record last week" without scanning every trace file.
package history

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rlmlab/rlmtrace/internal/trace"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested run is not in the catalog.
var ErrNotFound = errors.New("not found")

// Entry is one catalog row describing a recorded run.
type Entry struct {
	RunID        string    `json:"run_id"`
	RecordedAt   time.Time `json:"recorded_at"`
	Question     string    `json:"question"`
	Model        string    `json:"model"`
	Iterations   int       `json:"iterations"`
	LLMCalls     int       `json:"llm_calls"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Source       string    `json:"source"` // "cli", "api", "live"
}

// Store wraps a SQLite database holding the run catalog.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the catalog database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "history.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// RecordTrace upserts the catalog row for t. Re-recording a run replaces
// its row, mirroring the wholesale overwrite of the trace artifact.
func (s *Store) RecordTrace(t trace.Trace, source string) error {
	if source == "" {
		source = "cli"
	}
	var inTokens, outTokens int
	if t.TotalTokens != nil {
		inTokens = t.TotalTokens.Input
		outTokens = t.TotalTokens.Output
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, recorded_at, question, model, iterations, llm_calls, input_tokens, output_tokens, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			recorded_at = excluded.recorded_at,
			question = excluded.question,
			model = excluded.model,
			iterations = excluded.iterations,
			llm_calls = excluded.llm_calls,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			source = excluded.source`,
		t.RunID, t.Timestamp, t.Question, t.Model,
		t.IterationsUsed, t.LLMCallsUsed, inTokens, outTokens, source,
	)
	return err
}

// Get returns the catalog entry for runID.
func (s *Store) Get(runID string) (Entry, error) {
	var e Entry
	var recordedAt string
	err := s.db.QueryRow(`
		SELECT run_id, recorded_at, question, model, iterations, llm_calls, input_tokens, output_tokens, source
		FROM runs WHERE run_id = ?`, runID,
	).Scan(&e.RunID, &recordedAt, &e.Question, &e.Model, &e.Iterations, &e.LLMCalls, &e.InputTokens, &e.OutputTokens, &e.Source)
	if err == sql.ErrNoRows {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	e.RecordedAt, err = time.Parse(trace.TimestampFormat, recordedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing recorded_at: %w", err)
	}
	return e, nil
}

// Recent returns up to limit catalog entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT run_id, recorded_at, question, model, iterations, llm_calls, input_tokens, output_tokens, source
		FROM runs ORDER BY recorded_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recordedAt string
		if err := rows.Scan(&e.RunID, &recordedAt, &e.Question, &e.Model, &e.Iterations, &e.LLMCalls, &e.InputTokens, &e.OutputTokens, &e.Source); err != nil {
			return nil, err
		}
		t, err := time.Parse(trace.TimestampFormat, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		e.RecordedAt = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
