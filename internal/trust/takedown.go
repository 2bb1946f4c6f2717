package trust

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tangled.org/creel.social/creel/internal/metrics"
	"tangled.org/creel.social/creel/internal/notify"
)

// Takedown soft-deletes and restores reported catches and comments,
// independent of the owning user's moderation status.
type Takedown struct {
	store     Store
	access    *Access
	notifier  *notify.Dispatcher
	publisher Publisher

	now func() time.Time
}

// NewTakedown creates the takedown service. notifier and publisher may be nil.
func NewTakedown(store Store, access *Access, notifier *notify.Dispatcher, publisher Publisher) *Takedown {
	return &Takedown{
		store:     store,
		access:    access,
		notifier:  notifier,
		publisher: publisher,
		now:       time.Now,
	}
}

// Delete soft-deletes a catch or comment. Deleting content that is already
// soft-deleted succeeds and writes another audit entry; the repeated entry is
// the record of a re-confirmed decision. Only a target that is absent
// entirely produces ErrTargetNotFound.
func (t *Takedown) Delete(ctx context.Context, adminID string, targetType TargetType, targetID, reason string) (*LogEntry, error) {
	if err := t.access.Require(adminID, PermissionDeleteContent); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "must not be blank"}
	}
	if targetType != TargetCatch && targetType != TargetComment {
		return nil, &ValidationError{Field: "target_type", Message: "must be catch or comment"}
	}

	target, err := t.store.GetTarget(ctx, targetType, targetID)
	if err != nil {
		return nil, storageErr("get target", err)
	}
	if target == nil {
		return nil, ErrTargetNotFound
	}

	now := t.now()
	entry := LogEntry{
		ID:         uuid.NewString(),
		Action:     deleteAction(targetType),
		AdminID:    adminID,
		TargetType: targetType,
		TargetID:   targetID,
		Detail: TakedownDetail{
			Note:     reason,
			OwnerID:  target.OwnerID,
			Redelete: target.Deleted(),
		},
		CreatedAt: now,
	}

	err = t.store.WithTx(ctx, func(tx Tx) error {
		if txErr := tx.SetTargetDeleted(targetType, targetID, &now); txErr != nil {
			return fmt.Errorf("set deleted: %w", txErr)
		}
		if txErr := tx.InsertLogEntry(entry); txErr != nil {
			return fmt.Errorf("insert log entry: %w", txErr)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("takedown delete", err)
	}

	log.Info().
		Str("admin_id", adminID).
		Str("target_type", string(targetType)).
		Str("target_id", targetID).
		Bool("redelete", target.Deleted()).
		Msg("trust: content taken down")
	metrics.TakedownsTotal.WithLabelValues("delete").Inc()

	// Owner comes from the target record, never from the report.
	t.notifier.Dispatch(notify.Message{
		UserID:    target.OwnerID,
		ActorID:   adminID,
		Type:      notify.TypeContentRemoved,
		Message:   fmt.Sprintf("Your %s was removed by a moderator: %s", targetType, reason),
		SubjectID: targetID,
	})
	t.publish(entry)

	return &entry, nil
}

// Restore clears the soft-delete marker. Restoring a target that carries no
// marker is a no-op reported as ErrNothingToRestore, and no audit entry is
// written.
func (t *Takedown) Restore(ctx context.Context, adminID string, targetType TargetType, targetID, reason string) (*LogEntry, error) {
	if err := t.access.Require(adminID, PermissionRestoreContent); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "must not be blank"}
	}
	if targetType != TargetCatch && targetType != TargetComment {
		return nil, &ValidationError{Field: "target_type", Message: "must be catch or comment"}
	}

	target, err := t.store.GetTarget(ctx, targetType, targetID)
	if err != nil {
		return nil, storageErr("get target", err)
	}
	if target == nil {
		return nil, ErrTargetNotFound
	}
	if !target.Deleted() {
		return nil, ErrNothingToRestore
	}

	now := t.now()
	entry := LogEntry{
		ID:         uuid.NewString(),
		Action:     restoreAction(targetType),
		AdminID:    adminID,
		TargetType: targetType,
		TargetID:   targetID,
		Detail: TakedownDetail{
			Note:    reason,
			OwnerID: target.OwnerID,
		},
		CreatedAt: now,
	}

	err = t.store.WithTx(ctx, func(tx Tx) error {
		if txErr := tx.SetTargetDeleted(targetType, targetID, nil); txErr != nil {
			return fmt.Errorf("clear deleted: %w", txErr)
		}
		if txErr := tx.InsertLogEntry(entry); txErr != nil {
			return fmt.Errorf("insert log entry: %w", txErr)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("takedown restore", err)
	}

	log.Info().
		Str("admin_id", adminID).
		Str("target_type", string(targetType)).
		Str("target_id", targetID).
		Msg("trust: content restored")
	metrics.TakedownsTotal.WithLabelValues("restore").Inc()

	t.notifier.Dispatch(notify.Message{
		UserID:    target.OwnerID,
		ActorID:   adminID,
		Type:      notify.TypeContentRestored,
		Message:   fmt.Sprintf("Your %s was restored by a moderator: %s", targetType, reason),
		SubjectID: targetID,
	})
	t.publish(entry)

	return &entry, nil
}

func (t *Takedown) publish(entry LogEntry) {
	if t.publisher != nil {
		t.publisher.Publish(TopicAudit, entry)
	}
}

func deleteAction(targetType TargetType) Action {
	if targetType == TargetComment {
		return ActionDeleteComment
	}
	return ActionDeleteCatch
}

func restoreAction(targetType TargetType) Action {
	if targetType == TargetComment {
		return ActionRestoreComment
	}
	return ActionRestoreCatch
}
