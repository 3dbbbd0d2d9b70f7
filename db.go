// sqlite state store: last selected workspace and a lifecycle journal.
//
// only lifecycle metadata lives here (started, stopped, exited,
// spawn-failed). workspace output is never written to disk. every row
// is keyed by repo root so one state.db serves every monorepo.

package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const stateSchema = `
CREATE TABLE IF NOT EXISTS last_workspace (
	root       TEXT PRIMARY KEY,
	workspace  TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS lifecycle (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	root       TEXT NOT NULL,
	workspace  TEXT NOT NULL,
	kind       TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS lifecycle_root_at ON lifecycle(root, at);
`

// journalRetention caps lifecycle rows per repo root.
const journalRetention = 5000

type stateStore struct {
	db   *sql.DB
	root string
	log  *slog.Logger
}

// openStateStore opens (creating if needed) the state db at path.
func openStateStore(path, root string, logger *slog.Logger) (*stateStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}
	return &stateStore{db: db, root: root, log: logger}, nil
}

func (s *stateStore) Close() error {
	return s.db.Close()
}

// lastWorkspace returns the remembered workspace for this root, or "".
func (s *stateStore) lastWorkspace() (workspaceID, error) {
	var ws string
	err := s.db.QueryRow(`SELECT workspace FROM last_workspace WHERE root = ?`, s.root).Scan(&ws)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return ws, err
}

func (s *stateStore) setLastWorkspace(id workspaceID) error {
	_, err := s.db.Exec(`
		INSERT INTO last_workspace (root, workspace, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(root) DO UPDATE SET workspace = excluded.workspace, updated_at = excluded.updated_at
	`, s.root, id, time.Now().UnixMilli())
	return err
}

// record journals a lifecycle event. failures are logged, never
// returned: the supervisor calls this from its goroutines.
func (s *stateStore) record(ev lifecycleEvent) {
	_, err := s.db.Exec(`
		INSERT INTO lifecycle (root, workspace, kind, detail, at) VALUES (?, ?, ?, ?, ?)
	`, s.root, ev.workspace, ev.kind, ev.detail, ev.at.UnixMilli())
	if err != nil {
		s.log.Warn("journal write failed", "workspace", ev.workspace, "kind", ev.kind, "err", err)
	}
}

// prune drops the oldest journal rows past journalRetention.
func (s *stateStore) prune() error {
	_, err := s.db.Exec(`
		DELETE FROM lifecycle
		WHERE root = ? AND id NOT IN (
			SELECT id FROM lifecycle WHERE root = ? ORDER BY at DESC, id DESC LIMIT ?
		)
	`, s.root, s.root, journalRetention)
	return err
}

// history returns the newest events first. workspace "" means all.
func (s *stateStore) history(ws workspaceID, limit int) ([]lifecycleEvent, error) {
	rows, err := s.db.Query(`
		SELECT workspace, kind, detail, at FROM lifecycle
		WHERE root = ? AND (? = '' OR workspace = ?)
		ORDER BY at DESC, id DESC
		LIMIT ?
	`, s.root, ws, ws, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []lifecycleEvent
	for rows.Next() {
		var ev lifecycleEvent
		var at int64
		if err := rows.Scan(&ev.workspace, &ev.kind, &ev.detail, &at); err != nil {
			return nil, err
		}
		ev.at = time.UnixMilli(at)
		events = append(events, ev)
	}
	return events, rows.Err()
}
