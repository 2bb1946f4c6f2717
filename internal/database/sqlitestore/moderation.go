package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tangled.org/creel.social/creel/internal/trust"
)

// ========== Moderation Records ==========

func (s *Store) GetRecord(ctx context.Context, userID string) (*trust.UserModerationRecord, error) {
	return getRecordTx(ctx, s.db, userID)
}

func getRecordTx(ctx context.Context, q execer, userID string) (*trust.UserModerationRecord, error) {
	var r trust.UserModerationRecord
	var suspensionStr sql.NullString
	var updatedAtStr string
	err := q.QueryRowContext(ctx, `
		SELECT user_id, status, warn_count, suspension_until, updated_at
		FROM moderation_records WHERE user_id = ?
	`, userID).Scan(&r.UserID, &r.Status, &r.WarnCount, &suspensionStr, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	r.SuspensionUntil = parseTimePtr(suspensionStr)
	r.UpdatedAt = parseTime(updatedAtStr)
	return &r, nil
}

// ========== Warning Ledger ==========

func (s *Store) ListWarnings(ctx context.Context, userID string) ([]trust.Warning, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, issued_by, severity, duration_hours, reason, created_at
		FROM warnings WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list warnings: %w", err)
	}
	defer rows.Close()

	var warnings []trust.Warning
	for rows.Next() {
		var w trust.Warning
		var duration sql.NullInt64
		var createdAtStr string
		if err := rows.Scan(&w.ID, &w.UserID, &w.IssuedBy, &w.Severity, &duration, &w.Reason, &createdAtStr); err != nil {
			continue
		}
		if duration.Valid {
			d := int(duration.Int64)
			w.DurationHours = &d
		}
		w.CreatedAt = parseTime(createdAtStr)
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

// ========== Audit Log ==========

func (s *Store) ListLog(ctx context.Context, filter trust.LogFilter, dir trust.SortDirection, page int) ([]trust.LogEntry, error) {
	var clauses []string
	var args []any

	if filter.AdminID != "" {
		clauses = append(clauses, "admin_id = ?")
		args = append(args, filter.AdminID)
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.Search != "" {
		// Union of four case-insensitive substring matches; not full-text.
		needle := "%" + strings.ToLower(filter.Search) + "%"
		clauses = append(clauses, `(
			LOWER(admin_id)  LIKE ? OR
			LOWER(reason)    LIKE ? OR
			LOWER(target_id) LIKE ? OR
			LOWER(detail)    LIKE ?)`)
		args = append(args, needle, needle, needle, needle)
	}
	if !filter.From.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.From.Format(time.RFC3339Nano))
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, filter.To.Format(time.RFC3339Nano))
	}

	query := `SELECT id, action, admin_id, target_type, target_id, detail, created_at FROM moderation_log`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at " + orderKeyword(dir)
	query += " LIMIT ? OFFSET ?"
	args = append(args, trust.PageSize, page*trust.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list log: %w", err)
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

func (s *Store) ListLogForTarget(ctx context.Context, targetType trust.TargetType, targetID string) ([]trust.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, admin_id, target_type, target_id, detail, created_at
		FROM moderation_log WHERE target_type = ? AND target_id = ?
		ORDER BY created_at DESC
	`, string(targetType), targetID)
	if err != nil {
		return nil, fmt.Errorf("list log for target: %w", err)
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

func (s *Store) ListLogForUser(ctx context.Context, userID string) ([]trust.LogEntry, error) {
	return s.ListLogForTarget(ctx, trust.TargetUser, userID)
}

func scanLogEntries(rows *sql.Rows) ([]trust.LogEntry, error) {
	var entries []trust.LogEntry
	for rows.Next() {
		var e trust.LogEntry
		var detailStr, createdAtStr string
		if err := rows.Scan(&e.ID, &e.Action, &e.AdminID, &e.TargetType, &e.TargetID, &detailStr, &createdAtStr); err != nil {
			continue
		}
		detail, err := trust.DecodeDetail([]byte(detailStr))
		if err != nil {
			continue
		}
		e.Detail = detail
		e.CreatedAt = parseTime(createdAtStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ========== Stats ==========

func (s *Store) CountOpenReports(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE status = 'open'`).Scan(&count)
	return count, err
}

func (s *Store) CountByStatus(ctx context.Context) (map[trust.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM moderation_records GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[trust.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			continue
		}
		counts[trust.Status(status)] = count
	}
	return counts, rows.Err()
}

func orderKeyword(dir trust.SortDirection) string {
	if dir == trust.SortAsc {
		return "ASC"
	}
	return "DESC"
}
