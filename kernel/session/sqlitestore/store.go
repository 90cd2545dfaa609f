// Package sqlitestore persists sessions in a single sqlite database,
// for deployments that outlive the process without adopting a server
// database. Events and pending checkpoints are stored as JSON payloads;
// the schema only indexes what queries need.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/basnijholt/kernelchat/kernel/session"
)

const (
	driver = "sqlite"
	dsnOpt = "?_pragma=busy_timeout(3000)&_pragma=journal_mode(WAL)"
)

// Store is a sqlite-backed session store.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlitestore: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlitestore: create dir: %w", err)
	}
	db, err := sql.Open(driver, path+dsnOpt)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) GetOrCreate(ctx context.Context, req *session.Session) (*session.Session, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	const q = `
INSERT INTO sessions (app_name, user_id, session_id)
VALUES (?, ?, ?)
ON CONFLICT(app_name, user_id, session_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, req.AppName, req.UserID, req.ID); err != nil {
		return nil, err
	}
	cp := *req
	return &cp, nil
}

func (s *Store) AppendEvent(ctx context.Context, req *session.Session, ev *session.Event) error {
	if err := validate(req); err != nil {
		return err
	}
	if ev == nil {
		return fmt.Errorf("sqlitestore: event is nil")
	}
	exists, err := s.hasSession(ctx, req)
	if err != nil {
		return err
	}
	if !exists {
		return session.ErrSessionNotFound
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	const q = `
INSERT INTO events (app_name, user_id, session_id, payload)
VALUES (?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q, req.AppName, req.UserID, req.ID, string(raw))
	return err
}

func (s *Store) ListEvents(ctx context.Context, req *session.Session) ([]*session.Event, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	exists, err := s.hasSession(ctx, req)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, session.ErrSessionNotFound
	}
	const q = `
SELECT payload FROM events
WHERE app_name = ? AND user_id = ? AND session_id = ?
ORDER BY seq ASC`
	rows, err := s.db.QueryContext(ctx, q, req.AppName, req.UserID, req.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*session.Event{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		ev := &session.Event{}
		if err := json.Unmarshal([]byte(raw), ev); err != nil {
			return nil, fmt.Errorf("sqlitestore: decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) SetPendingCall(ctx context.Context, req *session.Session, pc *session.PendingCall) error {
	if err := validate(req); err != nil {
		return err
	}
	if pc == nil {
		return fmt.Errorf("sqlitestore: pending call is nil")
	}
	exists, err := s.hasSession(ctx, req)
	if err != nil {
		return err
	}
	if !exists {
		return session.ErrSessionNotFound
	}
	raw, err := json.Marshal(pc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	const q = `
INSERT INTO pending_calls (app_name, user_id, session_id, payload)
VALUES (?, ?, ?, ?)
ON CONFLICT(app_name, user_id, session_id) DO UPDATE SET
	payload = excluded.payload`
	_, err = s.db.ExecContext(ctx, q, req.AppName, req.UserID, req.ID, string(raw))
	return err
}

func (s *Store) PendingCall(ctx context.Context, req *session.Session) (*session.PendingCall, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	const q = `
SELECT payload FROM pending_calls
WHERE app_name = ? AND user_id = ? AND session_id = ?`
	var raw string
	err := s.db.QueryRowContext(ctx, q, req.AppName, req.UserID, req.ID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pc := &session.PendingCall{}
	if err := json.Unmarshal([]byte(raw), pc); err != nil {
		return nil, fmt.Errorf("sqlitestore: decode pending call: %w", err)
	}
	return pc, nil
}

func (s *Store) ClearPendingCall(ctx context.Context, req *session.Session) error {
	if err := validate(req); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	const q = `
DELETE FROM pending_calls
WHERE app_name = ? AND user_id = ? AND session_id = ?`
	_, err := s.db.ExecContext(ctx, q, req.AppName, req.UserID, req.ID)
	return err
}

func (s *Store) hasSession(ctx context.Context, req *session.Session) (bool, error) {
	const q = `
SELECT 1 FROM sessions
WHERE app_name = ? AND user_id = ? AND session_id = ? LIMIT 1`
	var one int
	err := s.db.QueryRowContext(ctx, q, req.AppName, req.UserID, req.ID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func validate(req *session.Session) error {
	if req == nil || req.AppName == "" || req.UserID == "" || req.ID == "" {
		return fmt.Errorf("sqlitestore: app_name, user_id and session_id are required")
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
	app_name TEXT NOT NULL,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	PRIMARY KEY (app_name, user_id, session_id)
);
CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	app_name TEXT NOT NULL,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session
ON events(app_name, user_id, session_id, seq);
CREATE TABLE IF NOT EXISTS pending_calls (
	app_name TEXT NOT NULL,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (app_name, user_id, session_id)
);`
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return nil
}
