package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tangled.org/creel.social/creel/internal/trust"
)

// ========== Reports ==========

func (s *Store) CreateReport(ctx context.Context, report trust.Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports
			(id, target_type, target_id, subject_user_id, reporter_id, reason, status, created_at, reviewed_by, reviewed_at, resolution_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, report.ID, string(report.TargetType), report.TargetID, report.SubjectUserID,
		report.ReporterID, report.Reason, string(report.Status),
		report.CreatedAt.Format(time.RFC3339Nano), report.ReviewedBy,
		nullableTime(report.ReviewedAt), report.ResolutionNotes)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (s *Store) GetReport(ctx context.Context, id string) (*trust.Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, target_type, target_id, subject_user_id, reporter_id, reason, status, created_at, reviewed_by, reviewed_at, resolution_notes
		FROM reports WHERE id = ?
	`, id)

	report, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return report, nil
}

func (s *Store) ListReports(ctx context.Context, filter trust.ReportFilter, dir trust.SortDirection, page int) ([]trust.Report, error) {
	var clauses []string
	var args []any

	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.TargetType != "" {
		clauses = append(clauses, "target_type = ?")
		args = append(args, string(filter.TargetType))
	}
	if filter.ReportedUserID != "" {
		clauses = append(clauses, "subject_user_id = ?")
		args = append(args, filter.ReportedUserID)
	}
	if !filter.From.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.From.Format(time.RFC3339Nano))
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, filter.To.Format(time.RFC3339Nano))
	}

	query := `SELECT id, target_type, target_id, subject_user_id, reporter_id, reason, status, created_at, reviewed_by, reviewed_at, resolution_notes FROM reports`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at " + orderKeyword(dir)
	query += " LIMIT ? OFFSET ?"
	args = append(args, trust.PageSize, page*trust.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []trust.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			continue
		}
		reports = append(reports, *report)
	}
	return reports, rows.Err()
}

func (s *Store) HasReported(ctx context.Context, reporterID string, targetType trust.TargetType, targetID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM reports WHERE reporter_id = ? AND target_type = ? AND target_id = ? LIMIT 1
	`, reporterID, string(targetType), targetID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return exists == 1, err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*trust.Report, error) {
	var r trust.Report
	var createdAtStr string
	var reviewedAtStr sql.NullString
	err := row.Scan(&r.ID, &r.TargetType, &r.TargetID, &r.SubjectUserID, &r.ReporterID,
		&r.Reason, &r.Status, &createdAtStr, &r.ReviewedBy, &reviewedAtStr, &r.ResolutionNotes)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = parseTime(createdAtStr)
	r.ReviewedAt = parseTimePtr(reviewedAtStr)
	return &r, nil
}

// ========== Targets ==========

func (s *Store) GetTarget(ctx context.Context, targetType trust.TargetType, targetID string) (*trust.TargetRecord, error) {
	table, err := targetTable(targetType)
	if err != nil {
		return nil, err
	}

	var t trust.TargetRecord
	var deletedAtStr sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, deleted_at FROM `+table+` WHERE id = ?`,
		targetID).Scan(&t.ID, &t.OwnerID, &deletedAtStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}
	t.Type = targetType
	t.DeletedAt = parseTimePtr(deletedAtStr)
	return &t, nil
}

// PutTarget registers or updates a catch/comment row. The content service
// owns these tables in production; the trust core only needs them seeded in
// tests and local development.
func (s *Store) PutTarget(ctx context.Context, target trust.TargetRecord) error {
	table, err := targetTable(target.Type)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+table+` (id, owner_id, deleted_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id   = excluded.owner_id,
			deleted_at = excluded.deleted_at
	`, target.ID, target.OwnerID, nullableTime(target.DeletedAt))
	if err != nil {
		return fmt.Errorf("put target: %w", err)
	}
	return nil
}
