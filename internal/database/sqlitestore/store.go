// Package sqlitestore provides the SQLite-backed implementation of the trust
// core's persistence: moderation records, the warning ledger, the audit log,
// reports, target content state, and notifications.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"

	"tangled.org/creel.social/creel/internal/trust"
)

// schema is applied on every open; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS moderation_records (
	user_id          TEXT PRIMARY KEY,
	status           TEXT NOT NULL DEFAULT 'active',
	warn_count       INTEGER NOT NULL DEFAULT 0,
	suspension_until TEXT,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS warnings (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	issued_by      TEXT NOT NULL,
	severity       TEXT NOT NULL,
	duration_hours INTEGER,
	reason         TEXT NOT NULL,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_warnings_user ON warnings(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS moderation_log (
	id          TEXT PRIMARY KEY,
	action      TEXT NOT NULL,
	admin_id    TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	reason      TEXT NOT NULL,
	detail      TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_log_target ON moderation_log(target_type, target_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_log_created ON moderation_log(created_at DESC);

CREATE TABLE IF NOT EXISTS reports (
	id               TEXT PRIMARY KEY,
	target_type      TEXT NOT NULL,
	target_id        TEXT NOT NULL,
	subject_user_id  TEXT NOT NULL DEFAULT '',
	reporter_id      TEXT NOT NULL,
	reason           TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'open',
	created_at       TEXT NOT NULL,
	reviewed_by      TEXT NOT NULL DEFAULT '',
	reviewed_at      TEXT,
	resolution_notes TEXT NOT NULL DEFAULT '',
	UNIQUE(reporter_id, target_type, target_id)
);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_subject ON reports(subject_user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS catches (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	deleted_at TEXT
);

CREATE TABLE IF NOT EXISTS comments (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	deleted_at TEXT
);

CREATE TABLE IF NOT EXISTS notifications (
	id             TEXT PRIMARY KEY,
	target_user_id TEXT NOT NULL,
	type           TEXT NOT NULL,
	actor_id       TEXT NOT NULL DEFAULT '',
	subject_id     TEXT NOT NULL DEFAULT '',
	message        TEXT NOT NULL,
	created_at     TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_dedupe
	ON notifications(target_user_id, type, actor_id, subject_id);
CREATE INDEX IF NOT EXISTS idx_notifications_target
	ON notifications(target_user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS notification_reads (
	user_id   TEXT PRIMARY KEY,
	last_read TEXT NOT NULL
);
`

// Store implements trust.Store on SQLite.
type Store struct {
	db *sql.DB
}

// Ensure Store implements the interface at compile time.
var _ trust.Store = (*Store)(nil)

// Open opens (creating if needed) the trust database at path. The driver is
// wrapped with otelsql so every query shows up in traces.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := otelsql.Open("sqlite", dsn,
		otelsql.WithAttributes(attribute.String("db.system", "sqlite")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent admin sessions.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle for advanced operations and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a single SQL transaction. Any error rolls the
// transaction back in full; the commit error is surfaced to the caller so a
// timed-out action never reports success for a partial write.
func (s *Store) WithTx(ctx context.Context, fn func(tx trust.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&storeTx{ctx: ctx, tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// storeTx implements trust.Tx over one in-flight *sql.Tx.
type storeTx struct {
	ctx context.Context
	tx  *sql.Tx
}

var _ trust.Tx = (*storeTx)(nil)

func (t *storeTx) ApplyModeration(userID string, status trust.Status, suspensionUntil *time.Time, now time.Time) (*trust.UserModerationRecord, error) {
	// warn_count is incremented in SQL, never read-modify-write, so two
	// admins acting concurrently cannot lose an increment.
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO moderation_records (user_id, status, warn_count, suspension_until, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			status           = excluded.status,
			warn_count       = moderation_records.warn_count + 1,
			suspension_until = excluded.suspension_until,
			updated_at       = excluded.updated_at
	`, userID, string(status), nullableTime(suspensionUntil), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("apply moderation: %w", err)
	}
	return getRecordTx(t.ctx, t.tx, userID)
}

func (t *storeTx) ClearModeration(userID string, now time.Time) (*trust.UserModerationRecord, error) {
	prior, err := getRecordTx(t.ctx, t.tx, userID)
	if err != nil {
		return nil, err
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO moderation_records (user_id, status, warn_count, suspension_until, updated_at)
		VALUES (?, 'active', 0, NULL, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			status           = 'active',
			suspension_until = NULL,
			updated_at       = excluded.updated_at
	`, userID, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("clear moderation: %w", err)
	}
	return prior, nil
}

func (t *storeTx) InsertWarning(w trust.Warning) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO warnings (id, user_id, issued_by, severity, duration_hours, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.UserID, w.IssuedBy, string(w.Severity), nullableInt(w.DurationHours), w.Reason,
		w.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert warning: %w", err)
	}
	return nil
}

func (t *storeTx) InsertLogEntry(e trust.LogEntry) error {
	detail, err := trust.EncodeDetail(e.Detail)
	if err != nil {
		return fmt.Errorf("encode detail: %w", err)
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO moderation_log (id, action, admin_id, target_type, target_id, reason, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Action), e.AdminID, string(e.TargetType), e.TargetID,
		e.Detail.Reason(), string(detail), e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

func (t *storeTx) SetTargetDeleted(targetType trust.TargetType, targetID string, deletedAt *time.Time) error {
	table, err := targetTable(targetType)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE `+table+` SET deleted_at = ? WHERE id = ?`,
		nullableTime(deletedAt), targetID)
	if err != nil {
		return fmt.Errorf("set target deleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return trust.ErrTargetNotFound
	}
	return nil
}

func (t *storeTx) SetReportStatus(reportID string, status trust.ReportStatus, reviewedBy, notes string, now time.Time) error {
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE reports SET status = ?, reviewed_by = ?, reviewed_at = ?, resolution_notes = ?
		WHERE id = ?
	`, string(status), reviewedBy, now.Format(time.RFC3339Nano), notes, reportID)
	if err != nil {
		return fmt.Errorf("set report status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return trust.ErrReportNotFound
	}
	return nil
}

// ========== helpers ==========

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func targetTable(targetType trust.TargetType) (string, error) {
	switch targetType {
	case trust.TargetCatch:
		return "catches", nil
	case trust.TargetComment:
		return "comments", nil
	default:
		return "", fmt.Errorf("no content table for target type %q", targetType)
	}
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func nullableInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
