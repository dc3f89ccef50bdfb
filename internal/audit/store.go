// Package audit records every dispatched action and command in SQLite.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Kind distinguishes typed actions from agent commands.
type Kind string

const (
	KindAction  Kind = "action"
	KindCommand Kind = "command"
)

// Outcome values mirror the agentlink_actions_total outcome label.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeFatal = "fatal"
)

// Entry is one audited request.
type Entry struct {
	ID        int64
	Agent     string
	Kind      Kind
	Name      string // action name or command name
	Outcome   string
	Display   string // rendered HTML on success
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// Store is the SQLite-backed audit trail.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the database file and its directory if needed and applies
// pending migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Record appends e. A zero CreatedAt is stamped with the current time.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (agent, kind, name, outcome, display, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Agent, string(e.Kind), e.Name, e.Outcome, e.Display, e.Error,
		e.Duration.Milliseconds(), e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent, kind, name, outcome, display, error, duration_ms, created_at
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			kind       string
			durationMS int64
			createdAt  string
		)
		if err := rows.Scan(&e.ID, &e.Agent, &kind, &e.Name, &e.Outcome, &e.Display, &e.Error, &durationMS, &createdAt); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByOutcome aggregates entries for one agent.
func (s *Store) CountByOutcome(ctx context.Context, agent string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM audit_log WHERE agent = ? GROUP BY outcome`, agent)
	if err != nil {
		return nil, fmt.Errorf("count audit log: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
