package trust

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tangled.org/creel.social/creel/internal/metrics"
	"tangled.org/creel.social/creel/internal/notify"
	"tangled.org/creel.social/creel/internal/tracing"
)

// DedupeWindow is how long an identical action key is treated as a duplicate
// (double-click protection). Within this window a repeated apply is a no-op.
const DedupeWindow = 10 * time.Second

// ApplyInput describes a warn/suspend/ban action against a user.
type ApplyInput struct {
	AdminID       string
	UserID        string
	Severity      Severity
	DurationHours int // required and > 0 iff Severity is temporary_suspension
	Reason        string
}

// LiftInput describes a lift-restrictions action.
type LiftInput struct {
	AdminID string
	UserID  string
	Reason  string
}

// ActionResult reports the outcome of an executor operation.
type ActionResult struct {
	Record       *UserModerationRecord `json:"record"`
	Warning      *Warning              `json:"warning,omitempty"`
	LogEntry     *LogEntry             `json:"log_entry,omitempty"`
	Deduplicated bool                  `json:"deduplicated,omitempty"`
}

// Executor applies moderation actions atomically: status mutation, warning
// ledger append, and audit log append all commit in one transaction. The
// notification and the realtime publish happen after commit and are never
// allowed to fail the action.
type Executor struct {
	store     Store
	access    *Access
	dedupe    DedupeStore
	notifier  *notify.Dispatcher
	publisher Publisher

	now func() time.Time
}

// NewExecutor creates the action executor. dedupe, notifier and publisher may
// be nil; the corresponding behavior is skipped.
func NewExecutor(store Store, access *Access, dedupe DedupeStore, notifier *notify.Dispatcher, publisher Publisher) *Executor {
	return &Executor{
		store:     store,
		access:    access,
		dedupe:    dedupe,
		notifier:  notifier,
		publisher: publisher,
		now:       time.Now,
	}
}

// Apply validates and executes a warn/suspend/ban against a user.
func (e *Executor) Apply(ctx context.Context, in ApplyInput) (result *ActionResult, err error) {
	ctx, span := tracing.ActionSpan(ctx, "apply", in.AdminID, in.UserID)
	defer func() {
		tracing.EndWithError(span, err)
		span.End()
	}()

	if err := e.access.Require(in.AdminID, PermissionWarnUser); err != nil {
		return nil, err
	}
	if err := validateApply(in); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.Reason)

	now := e.now()

	if dup, err := e.isDuplicate(dedupeKey("apply", in.AdminID, in.UserID, string(in.Severity), strconv.Itoa(in.DurationHours), reason), now); err != nil {
		return nil, err
	} else if dup {
		metrics.ModerationDedupeHitsTotal.Inc()
		log.Warn().
			Str("admin_id", in.AdminID).
			Str("user_id", in.UserID).
			Str("severity", string(in.Severity)).
			Msg("trust: duplicate moderation action ignored")
		record, err := e.store.GetRecord(ctx, in.UserID)
		if err != nil {
			return nil, storageErr("get record", err)
		}
		return &ActionResult{Record: record, Deduplicated: true}, nil
	}

	var suspensionUntil *time.Time
	var durationHours *int
	if in.Severity == SeverityTemporarySuspension {
		until := now.Add(time.Duration(in.DurationHours) * time.Hour)
		suspensionUntil = &until
		d := in.DurationHours
		durationHours = &d
	}

	warning := Warning{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		IssuedBy:      in.AdminID,
		Severity:      in.Severity,
		DurationHours: durationHours,
		Reason:        reason,
		CreatedAt:     now,
	}

	entry := LogEntry{
		ID:         uuid.NewString(),
		Action:     actionFor(in.Severity),
		AdminID:    in.AdminID,
		TargetType: TargetUser,
		TargetID:   in.UserID,
		Detail: ModerationDetail{
			Severity:      in.Severity,
			DurationHours: durationHours,
			Note:          reason,
			WarningID:     warning.ID,
		},
		CreatedAt: now,
	}

	var record *UserModerationRecord
	err = e.store.WithTx(ctx, func(tx Tx) error {
		var txErr error
		record, txErr = tx.ApplyModeration(in.UserID, in.Severity.Status(), suspensionUntil, now)
		if txErr != nil {
			return fmt.Errorf("apply moderation: %w", txErr)
		}
		if txErr = tx.InsertWarning(warning); txErr != nil {
			return fmt.Errorf("insert warning: %w", txErr)
		}
		if txErr = tx.InsertLogEntry(entry); txErr != nil {
			return fmt.Errorf("insert log entry: %w", txErr)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("moderation action", err)
	}

	log.Info().
		Str("admin_id", in.AdminID).
		Str("user_id", in.UserID).
		Str("severity", string(in.Severity)).
		Int("warn_count", record.WarnCount).
		Msg("trust: moderation action applied")
	metrics.ModerationActionsTotal.WithLabelValues(string(in.Severity)).Inc()

	e.notifier.Dispatch(applyNotification(in, reason, suspensionUntil))
	e.publish(TopicModeration, record)
	e.publish(TopicAudit, entry)

	return &ActionResult{Record: record, Warning: &warning, LogEntry: &entry}, nil
}

// Lift resets a user's status to active and clears any suspension. The warning
// count is deliberately left intact as historical evidence, and no Warning
// record is created.
func (e *Executor) Lift(ctx context.Context, in LiftInput) (result *ActionResult, err error) {
	ctx, span := tracing.ActionSpan(ctx, "lift", in.AdminID, in.UserID)
	defer func() {
		tracing.EndWithError(span, err)
		span.End()
	}()

	if err := e.access.Require(in.AdminID, PermissionLiftRestrictions); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "must not be blank"}
	}

	now := e.now()

	if dup, err := e.isDuplicate(dedupeKey("lift", in.AdminID, in.UserID, reason), now); err != nil {
		return nil, err
	} else if dup {
		metrics.ModerationDedupeHitsTotal.Inc()
		record, err := e.store.GetRecord(ctx, in.UserID)
		if err != nil {
			return nil, storageErr("get record", err)
		}
		return &ActionResult{Record: record, Deduplicated: true}, nil
	}

	entry := LogEntry{
		ID:         uuid.NewString(),
		Action:     ActionClearModeration,
		AdminID:    in.AdminID,
		TargetType: TargetUser,
		TargetID:   in.UserID,
		CreatedAt:  now,
	}

	err = e.store.WithTx(ctx, func(tx Tx) error {
		prior, txErr := tx.ClearModeration(in.UserID, now)
		if txErr != nil {
			return fmt.Errorf("clear moderation: %w", txErr)
		}
		detail := ClearDetail{Note: reason}
		if prior != nil {
			detail.PreviousStatus = prior.Status
		}
		entry.Detail = detail
		if txErr = tx.InsertLogEntry(entry); txErr != nil {
			return fmt.Errorf("insert log entry: %w", txErr)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("lift restrictions", err)
	}

	// Reflect the post-lift state in the result.
	lifted, err := e.store.GetRecord(ctx, in.UserID)
	if err != nil {
		return nil, storageErr("get record", err)
	}

	log.Info().
		Str("admin_id", in.AdminID).
		Str("user_id", in.UserID).
		Msg("trust: restrictions lifted")
	metrics.ModerationLiftsTotal.Inc()

	e.notifier.Dispatch(notify.Message{
		UserID:  in.UserID,
		ActorID: in.AdminID,
		Type:    notify.TypeRestrictionLift,
		Message: "Restrictions on your account have been lifted: " + reason,
	})
	e.publish(TopicModeration, lifted)
	e.publish(TopicAudit, entry)

	return &ActionResult{Record: lifted, LogEntry: &entry}, nil
}

func (e *Executor) isDuplicate(key string, now time.Time) (bool, error) {
	if e.dedupe == nil {
		return false, nil
	}
	first, err := e.dedupe.FirstSeen(key, DedupeWindow, now)
	if err != nil {
		// A broken dedupe store must not block moderation; fall through.
		log.Error().Err(err).Msg("trust: dedupe check failed")
		return false, nil
	}
	return !first, nil
}

func (e *Executor) publish(topic string, event any) {
	if e.publisher != nil {
		e.publisher.Publish(topic, event)
	}
}

func validateApply(in ApplyInput) error {
	if strings.TrimSpace(in.Reason) == "" {
		return &ValidationError{Field: "reason", Message: "must not be blank"}
	}
	if !in.Severity.Valid() {
		return &ValidationError{Field: "severity", Message: "unknown severity: " + string(in.Severity)}
	}
	if in.Severity == SeverityTemporarySuspension {
		if in.DurationHours <= 0 {
			return &ValidationError{Field: "duration_hours", Message: "must be a positive number of hours"}
		}
	} else if in.DurationHours != 0 {
		return &ValidationError{Field: "duration_hours", Message: "only valid for temporary suspensions"}
	}
	return nil
}

// actionFor maps a severity to its audit log label. Warnings log as
// warn_user; suspensions and bans both log as suspend_user.
func actionFor(severity Severity) Action {
	if severity == SeverityWarning {
		return ActionWarnUser
	}
	return ActionSuspendUser
}

func applyNotification(in ApplyInput, reason string, until *time.Time) notify.Message {
	switch in.Severity {
	case SeverityTemporarySuspension:
		return notify.Message{
			UserID:  in.UserID,
			ActorID: in.AdminID,
			Type:    notify.TypeSuspension,
			Message: fmt.Sprintf("Your account has been suspended until %s: %s",
				until.Format(time.RFC1123), reason),
		}
	case SeverityPermanentBan:
		return notify.Message{
			UserID:  in.UserID,
			ActorID: in.AdminID,
			Type:    notify.TypeBan,
			Message: "Your account has been permanently banned: " + reason,
		}
	default:
		return notify.Message{
			UserID:  in.UserID,
			ActorID: in.AdminID,
			Type:    notify.TypeWarning,
			Message: "You have received a warning: " + reason,
		}
	}
}

func dedupeKey(parts ...string) string {
	return strings.Join(parts, "|")
}
