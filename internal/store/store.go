// Package store persists the diagnostic audit trail in SQLite: AIT decode
// events, Application Manager state transitions, and JSON-RPC negotiation
// history. This is postmortem telemetry only — it never feeds back into
// Get() or the Manager's live state (spec.md's Non-goal on persisted
// application state survives unchanged).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrBlobNotFound is returned when no blob metadata exists for an ID.
var ErrBlobNotFound = errors.New("blob metadata not found")

// BlobMetadata describes one archived raw AIT payload on disk.
type BlobMetadata struct {
	ID           string
	Kind         string
	OriginalName string
	ContentType  string
	DiskName     string
	SizeBytes    int64
	CreatedAt    time.Time
}

// Store persists diagnostic state in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database and runs migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	st := &Store{db: db}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("sqlite store opened", "path", path)
	return st, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	original_name TEXT NOT NULL,
	content_type TEXT NOT NULL,
	disk_name TEXT NOT NULL UNIQUE,
	size_bytes INTEGER NOT NULL CHECK(size_bytes >= 0),
	created_at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_blobs_created_at ON blobs(created_at_unix_ms);

CREATE TABLE IF NOT EXISTS ait_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	onid INTEGER NOT NULL,
	tsid INTEGER NOT NULL,
	sid INTEGER NOT NULL,
	source TEXT NOT NULL,
	detail TEXT NOT NULL,
	ts_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ait_events_service ON ait_events(onid, tsid, sid, ts_unix_ms);

CREATE TABLE IF NOT EXISTS app_transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	app_id INTEGER NOT NULL,
	org_id INTEGER NOT NULL,
	event TEXT NOT NULL,
	reason TEXT NOT NULL,
	ts_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_app_transitions_app ON app_transitions(app_id, ts_unix_ms);

CREATE TABLE IF NOT EXISTS rpc_negotiations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	connection_id INTEGER NOT NULL,
	app_to_terminal TEXT NOT NULL,
	terminal_to_app TEXT NOT NULL,
	ts_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rpc_negotiations_connection ON rpc_negotiations(connection_id, ts_unix_ms);
`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run sqlite migrations: %w", err)
	}

	slog.Debug("sqlite migrations applied")
	return nil
}

// CreateBlob creates one blob metadata row.
func (s *Store) CreateBlob(ctx context.Context, meta BlobMetadata) error {
	if strings.TrimSpace(meta.ID) == "" {
		return fmt.Errorf("blob id is required")
	}
	if strings.TrimSpace(meta.Kind) == "" {
		return fmt.Errorf("blob kind is required")
	}
	if strings.TrimSpace(meta.OriginalName) == "" {
		return fmt.Errorf("blob original name is required")
	}
	if strings.TrimSpace(meta.ContentType) == "" {
		return fmt.Errorf("blob content type is required")
	}
	if strings.TrimSpace(meta.DiskName) == "" {
		return fmt.Errorf("blob disk name is required")
	}
	if meta.SizeBytes < 0 {
		return fmt.Errorf("blob size must be non-negative")
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	const q = `
INSERT INTO blobs (
	id, kind, original_name, content_type, disk_name, size_bytes, created_at_unix_ms
) VALUES (?, ?, ?, ?, ?, ?, ?)
`
	_, err := s.db.ExecContext(
		ctx,
		q,
		meta.ID,
		meta.Kind,
		meta.OriginalName,
		meta.ContentType,
		meta.DiskName,
		meta.SizeBytes,
		meta.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert blob metadata: %w", err)
	}
	slog.Debug("blob metadata created", "blob_id", meta.ID, "size", meta.SizeBytes)
	return nil
}

// BlobByID returns blob metadata by UUID.
func (s *Store) BlobByID(ctx context.Context, id string) (BlobMetadata, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return BlobMetadata{}, fmt.Errorf("blob id is required")
	}

	const q = `
SELECT id, kind, original_name, content_type, disk_name, size_bytes, created_at_unix_ms
FROM blobs
WHERE id = ?
`

	var (
		meta           BlobMetadata
		createdAtUnixM int64
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&meta.ID,
		&meta.Kind,
		&meta.OriginalName,
		&meta.ContentType,
		&meta.DiskName,
		&meta.SizeBytes,
		&createdAtUnixM,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Debug("blob not found", "blob_id", id)
			return BlobMetadata{}, ErrBlobNotFound
		}
		return BlobMetadata{}, fmt.Errorf("query blob metadata: %w", err)
	}

	meta.CreatedAt = time.UnixMilli(createdAtUnixM).UTC()
	slog.Debug("blob loaded", "blob_id", id, "size", meta.SizeBytes)
	return meta, nil
}

// AITEventRow is a single recorded AIT decode/processing event.
type AITEventRow struct {
	ID     int64
	ONID   uint16
	TSID   uint16
	SID    uint16
	Source string
	Detail string
	TS     int64
}

// RecordAITEvent appends one diagnostic entry for an AIT section or XML
// decode outcome, keyed by the broadcast triplet it concerns.
func (s *Store) RecordAITEvent(ctx context.Context, onid, tsid, sid uint16, source, detail string, ts int64) error {
	const q = `INSERT INTO ait_events (onid, tsid, sid, source, detail, ts_unix_ms) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, onid, tsid, sid, source, detail, ts)
	if err != nil {
		return fmt.Errorf("insert ait event: %w", err)
	}
	return nil
}

// RecentAITEvents returns the most recent AIT events, newest first.
func (s *Store) RecentAITEvents(ctx context.Context, limit int) ([]AITEventRow, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, onid, tsid, sid, source, detail, ts_unix_ms FROM ait_events ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query ait events: %w", err)
	}
	defer rows.Close()

	var events []AITEventRow
	for rows.Next() {
		var e AITEventRow
		if err := rows.Scan(&e.ID, &e.ONID, &e.TSID, &e.SID, &e.Source, &e.Detail, &e.TS); err != nil {
			return nil, fmt.Errorf("scan ait event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// AppTransitionRow is a single recorded Application Manager state change.
type AppTransitionRow struct {
	ID     int64
	AppID  uint16
	OrgID  uint32
	Event  string
	Reason string
	TS     int64
}

// RecordAppTransition appends one Application Manager lifecycle event
// (create/destroy/show/hide/kill) for the diagnostics surface.
func (s *Store) RecordAppTransition(ctx context.Context, appID uint16, orgID uint32, event, reason string, ts int64) error {
	const q = `INSERT INTO app_transitions (app_id, org_id, event, reason, ts_unix_ms) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, appID, orgID, event, reason, ts)
	if err != nil {
		return fmt.Errorf("insert app transition: %w", err)
	}
	return nil
}

// RecentAppTransitions returns the most recent Application Manager
// transitions, newest first.
func (s *Store) RecentAppTransitions(ctx context.Context, limit int) ([]AppTransitionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, app_id, org_id, event, reason, ts_unix_ms FROM app_transitions ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query app transitions: %w", err)
	}
	defer rows.Close()

	var transitions []AppTransitionRow
	for rows.Next() {
		var t AppTransitionRow
		if err := rows.Scan(&t.ID, &t.AppID, &t.OrgID, &t.Event, &t.Reason, &t.TS); err != nil {
			return nil, fmt.Errorf("scan app transition: %w", err)
		}
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

// RecordRPCNegotiation appends one org.hbbtv.negotiateMethods outcome for
// a connection, as JSON-encoded method lists.
func (s *Store) RecordRPCNegotiation(ctx context.Context, connectionID int, appToTerminalJSON, terminalToAppJSON string, ts int64) error {
	const q = `INSERT INTO rpc_negotiations (connection_id, app_to_terminal, terminal_to_app, ts_unix_ms) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, connectionID, appToTerminalJSON, terminalToAppJSON, ts)
	if err != nil {
		return fmt.Errorf("insert rpc negotiation: %w", err)
	}
	return nil
}
