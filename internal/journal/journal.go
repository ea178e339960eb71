// Package journal persists build session events in a local SQLite database.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Event kinds recorded for a session.
const (
	KindSession    = "session"
	KindMessage    = "message"
	KindParse      = "parse"
	KindFold       = "fold"
	KindRejection  = "rejection"
	KindTransition = "transition"
)

// Event is one journal row.
type Event struct {
	ID      int64
	Session string
	Kind    string
	Detail  string
	At      time.Time
}

// Summary describes one session in the journal.
type Summary struct {
	Session string
	Started time.Time
	Last    time.Time
	Events  int
	Prompt  string
}

// Recorder is the write side of the journal used by build sessions.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Discard is a Recorder that drops every event.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) error { return nil }

// Journal is an append-only event log backed by SQLite.
type Journal struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or opens the journal at path.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal path must be set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare journal dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session TEXT NOT NULL,
	kind TEXT NOT NULL,
	detail TEXT NOT NULL,
	at INTEGER NOT NULL
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	if _, err := db.ExecContext(context.Background(),
		`CREATE INDEX IF NOT EXISTS events_session ON events(session, id)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal index: %w", err)
	}
	return &Journal{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file location.
func (j *Journal) Path() string { return j.path }

// Record appends ev. A zero At is stamped with the current time.
func (j *Journal) Record(ctx context.Context, ev Event) error {
	if ev.Session == "" || ev.Kind == "" {
		return errors.New("journal event needs a session and a kind")
	}
	if ev.At.IsZero() {
		ev.At = j.now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events(session, kind, detail, at) VALUES(?, ?, ?, ?)`,
		ev.Session, ev.Kind, ev.Detail, ev.At.UnixNano())
	if err != nil {
		return fmt.Errorf("record %s event: %w", ev.Kind, err)
	}
	return nil
}

// Events returns a session's events oldest first. limit <= 0 returns all.
func (j *Journal) Events(ctx context.Context, session string, limit int) ([]Event, error) {
	query := `SELECT id, session, kind, detail, at FROM events WHERE session = ? ORDER BY id`
	args := []any{session}
	if limit > 0 {
		query = `SELECT id, session, kind, detail, at FROM (
	SELECT id, session, kind, detail, at FROM events WHERE session = ? ORDER BY id DESC LIMIT ?
) ORDER BY id`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev Event
			at int64
		)
		if err := rows.Scan(&ev.ID, &ev.Session, &ev.Kind, &ev.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.At = time.Unix(0, at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Sessions lists every session, most recently active first. The prompt is the
// detail of the session's first "session" event.
func (j *Journal) Sessions(ctx context.Context) ([]Summary, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT e.session, MIN(e.at), MAX(e.at), COUNT(*),
	COALESCE((SELECT s.detail FROM events s WHERE s.session = e.session AND s.kind = ? ORDER BY s.id LIMIT 1), '')
FROM events e
GROUP BY e.session
ORDER BY MAX(e.at) DESC`, KindSession)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			s           Summary
			first, last int64
		)
		if err := rows.Scan(&s.Session, &first, &last, &s.Events, &s.Prompt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.Started = time.Unix(0, first)
		s.Last = time.Unix(0, last)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
