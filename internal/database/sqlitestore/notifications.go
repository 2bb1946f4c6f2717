package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tangled.org/creel.social/creel/internal/metrics"
	"tangled.org/creel.social/creel/internal/notify"
	"tangled.org/creel.social/creel/internal/trust"
)

// NotificationStore persists in-app notifications. It implements notify.Sink
// for the moderation services and serves the user-facing listing.
type NotificationStore struct {
	db *sql.DB
}

// NotificationStore returns the notification store sharing this database.
func (s *Store) NotificationStore() *NotificationStore {
	return &NotificationStore{db: s.db}
}

var _ notify.Sink = (*NotificationStore)(nil)

// Send stores a notification for the target user.
// Deduplicates by (user, type, actor, subject) via the unique index.
// Self-notifications (actor == target) are silently skipped.
func (n *NotificationStore) Send(ctx context.Context, msg notify.Message) error {
	if msg.UserID == "" || msg.UserID == msg.ActorID {
		return nil // skip self-notifications
	}

	now := time.Now()
	// INSERT OR IGNORE deduplicates via the unique index.
	_, err := n.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO notifications (id, target_user_id, type, actor_id, subject_id, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), msg.UserID, msg.Type, msg.ActorID, msg.SubjectID, msg.Message,
		now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	metrics.NotificationsSentTotal.WithLabelValues(msg.Type).Inc()
	return nil
}

// List returns notifications for a user, newest first, with cursor-based
// pagination. Returns the notifications, the next cursor, and an error.
func (n *NotificationStore) List(ctx context.Context, userID string, limit int, cursor string) ([]trust.Notification, string, error) {
	if limit <= 0 {
		limit = 20
	}

	lastRead := n.getLastRead(ctx, userID)

	var args []any
	query := `SELECT id, type, actor_id, subject_id, message, created_at
		FROM notifications WHERE target_user_id = ?`
	args = append(args, userID)

	if cursor != "" {
		query += ` AND created_at < ?`
		args = append(args, cursor)
	}

	query += ` ORDER BY created_at DESC LIMIT ?`
	// Fetch one extra to determine if there's a next page
	args = append(args, limit+1)

	rows, err := n.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []trust.Notification
	for rows.Next() {
		var notif trust.Notification
		var createdAtStr string
		if err := rows.Scan(&notif.ID, &notif.Type, &notif.ActorID, &notif.SubjectID, &notif.Message, &createdAtStr); err != nil {
			continue
		}
		notif.UserID = userID
		notif.CreatedAt = parseTime(createdAtStr)
		if !lastRead.IsZero() && !notif.CreatedAt.After(lastRead) {
			notif.Read = true
		}
		notifications = append(notifications, notif)
	}

	var nextCursor string
	if len(notifications) > limit {
		last := notifications[limit-1]
		nextCursor = last.CreatedAt.Format(time.RFC3339Nano)
		notifications = notifications[:limit]
	}

	return notifications, nextCursor, rows.Err()
}

// UnreadCount returns the number of notifications newer than the user's
// last-read marker.
func (n *NotificationStore) UnreadCount(ctx context.Context, userID string) int {
	if userID == "" {
		return 0
	}

	lastRead := n.getLastRead(ctx, userID)

	var count int
	if lastRead.IsZero() {
		_ = n.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM notifications WHERE target_user_id = ?`, userID).Scan(&count)
	} else {
		_ = n.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM notifications WHERE target_user_id = ? AND created_at > ?`,
			userID, lastRead.Format(time.RFC3339Nano)).Scan(&count)
	}
	return count
}

// MarkRead advances the user's last-read marker to now.
func (n *NotificationStore) MarkRead(ctx context.Context, userID string) error {
	_, err := n.db.ExecContext(ctx, `
		INSERT INTO notification_reads (user_id, last_read) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_read = excluded.last_read
	`, userID, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (n *NotificationStore) getLastRead(ctx context.Context, userID string) time.Time {
	var lastReadStr string
	err := n.db.QueryRowContext(ctx,
		`SELECT last_read FROM notification_reads WHERE user_id = ?`, userID).Scan(&lastReadStr)
	if err != nil {
		return time.Time{}
	}
	return parseTime(lastReadStr)
}
