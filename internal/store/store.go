// Package store indexes recorded sessions, their results and lifecycle
// events in a sqlite database.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/observe"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/result"
)

//go:embed schema.sql
var schemaSQL string

const defaultLimit = 200

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

type ListQuery struct {
	Limit  int
	Offset int
}

type Session struct {
	ID          string     `json:"id"`
	Section     string     `json:"section,omitempty"`
	Profile     string     `json:"profile,omitempty"`
	OutputDir   string     `json:"outputDir,omitempty"`
	Status      string     `json:"status,omitempty"`
	Error       string     `json:"error,omitempty"`
	ArchivePath string     `json:"archivePath,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// Result is one leaf result of a session. Collections are flattened.
type Result struct {
	SessionID   string          `json:"sessionId"`
	Recorder    string          `json:"recorder"`
	Identifier  string          `json:"identifier"`
	Type        string          `json:"type"`
	Path        string          `json:"path,omitempty"`
	ContentType string          `json:"contentType,omitempty"`
	SampleCount int             `json:"sampleCount,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Decode returns the stored result value.
func (r Result) Decode() (result.Data, error) {
	return result.Decode(r.Payload)
}

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable wal: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}
	return &Store{db: db}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	if strings.TrimSpace(sess.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	var finished string
	if sess.FinishedAt != nil {
		finished = formatTime(*sess.FinishedAt)
	}
	const q = `
INSERT INTO sessions (session_id, section, profile, output_dir, status, error, archive_path, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
  section = excluded.section,
  profile = excluded.profile,
  output_dir = excluded.output_dir,
  status = excluded.status,
  error = excluded.error,
  archive_path = excluded.archive_path,
  finished_at = excluded.finished_at;
`
	_, err := s.db.ExecContext(ctx, q, sess.ID, sess.Section, sess.Profile, sess.OutputDir,
		sess.Status, sess.Error, sess.ArchivePath, formatTime(sess.StartedAt), finished)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// FinishSession records the final status of a session.
func (s *Store) FinishSession(ctx context.Context, id, status, errMsg string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, error = ?, finished_at = ? WHERE session_id = ?;`,
		status, errMsg, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	return requireRow(res, id)
}

func (s *Store) SetArchivePath(ctx context.Context, id, path string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET archive_path = ? WHERE session_id = ?;`, path, id)
	if err != nil {
		return fmt.Errorf("failed to save archive path: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

const sessionColumns = `session_id, section, profile, output_dir, status, error, archive_path, started_at, finished_at`

func scanSession(scanner interface{ Scan(dest ...any) error }) (Session, error) {
	var (
		sess     Session
		started  string
		finished string
	)
	if err := scanner.Scan(&sess.ID, &sess.Section, &sess.Profile, &sess.OutputDir, &sess.Status,
		&sess.Error, &sess.ArchivePath, &started, &finished); err != nil {
		return Session{}, err
	}
	sess.StartedAt = parseTime(started)
	if t := parseTime(finished); !t.IsZero() {
		sess.FinishedAt = &t
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?;`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to read session: %w", err)
	}
	return sess, nil
}

// ListSessions returns the newest sessions first.
func (s *Store) ListSessions(ctx context.Context, query ListQuery) ([]Session, error) {
	limit, offset := bounds(query)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT ? OFFSET ?;`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

func bounds(query ListQuery) (int, int) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// SaveResult stores data under the recorder that produced it. Collections
// are stored as their leaves.
func (s *Store) SaveResult(ctx context.Context, sessionID, recorder string, data result.Data) error {
	if data == nil {
		return nil
	}
	if c, ok := data.(*result.Collection); ok {
		for _, child := range c.Children {
			if err := s.SaveResult(ctx, sessionID, recorder, child); err != nil {
				return err
			}
		}
		return nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode result %s: %w", data.Identifier(), err)
	}
	row := Result{SessionID: sessionID, Recorder: recorder, Identifier: data.Identifier(), Type: data.Type()}
	switch f := data.(type) {
	case result.File:
		row.Path, row.ContentType, row.SampleCount = f.URL, f.ContentType, f.SampleCount
	case *result.File:
		row.Path, row.ContentType, row.SampleCount = f.URL, f.ContentType, f.SampleCount
	}
	const q = `
INSERT INTO results (session_id, recorder, identifier, result_type, path, content_type, sample_count, payload, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	_, err = s.db.ExecContext(ctx, q, row.SessionID, row.Recorder, row.Identifier, row.Type, row.Path,
		row.ContentType, row.SampleCount, string(payload), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

func (s *Store) ListResults(ctx context.Context, sessionID string) ([]Result, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("sessionID is required")
	}
	const q = `
SELECT session_id, recorder, identifier, result_type, path, content_type, sample_count, payload, created_at
FROM results
WHERE session_id = ?
ORDER BY id ASC;
`
	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var (
			r       Result
			payload string
			created string
		)
		if err := rows.Scan(&r.SessionID, &r.Recorder, &r.Identifier, &r.Type, &r.Path,
			&r.ContentType, &r.SampleCount, &payload, &created); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Payload = json.RawMessage(payload)
		r.CreatedAt = parseTime(created)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}
	return out, nil
}

func (s *Store) SaveEvent(ctx context.Context, event observe.Event) error {
	event.Normalize()
	attrs, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode event attributes: %w", err)
	}
	const q = `
INSERT INTO events (event_id, session_id, recorder, kind, from_state, to_state, step_path, message, error, attributes, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	_, err = s.db.ExecContext(ctx, q, event.ID, event.SessionID, event.Recorder, string(event.Kind),
		event.From, event.To, event.StepPath, event.Message, event.Error, string(attrs),
		formatTime(event.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// Emit lets the store act as an observe.Sink.
func (s *Store) Emit(ctx context.Context, event observe.Event) error {
	return s.SaveEvent(ctx, event)
}

func (s *Store) ListEvents(ctx context.Context, sessionID string, query ListQuery) ([]observe.Event, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("sessionID is required")
	}
	limit, offset := bounds(query)
	const q = `
SELECT event_id, session_id, recorder, kind, from_state, to_state, step_path, message, error, attributes, timestamp
FROM events
WHERE session_id = ?
ORDER BY timestamp ASC
LIMIT ? OFFSET ?;
`
	rows, err := s.db.QueryContext(ctx, q, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []observe.Event
	for rows.Next() {
		var (
			e     observe.Event
			kind  string
			attrs string
			ts    string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Recorder, &kind, &e.From, &e.To, &e.StepPath,
			&e.Message, &e.Error, &attrs, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Kind = observe.Kind(kind)
		e.Timestamp = parseTime(ts)
		if attrs != "" {
			_ = json.Unmarshal([]byte(attrs), &e.Attributes)
		}
		e.Normalize()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
