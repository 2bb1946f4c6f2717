// Package trust implements the moderation lifecycle for Creel: per-user
// moderation status, the append-only warning ledger, the system-wide audit
// log, content takedown, and the report triage queue.
package trust

import "time"

// Status is the enum governing whether a user may act on the platform.
type Status string

const (
	StatusActive    Status = "active"
	StatusWarned    Status = "warned"
	StatusSuspended Status = "suspended"
	StatusBanned    Status = "banned"
)

// Severity classifies a disciplinary action.
type Severity string

const (
	SeverityWarning             Severity = "warning"
	SeverityTemporarySuspension Severity = "temporary_suspension"
	SeverityPermanentBan        Severity = "permanent_ban"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityWarning, SeverityTemporarySuspension, SeverityPermanentBan:
		return true
	}
	return false
}

// Status returns the user status a severity resolves to.
func (s Severity) Status() Status {
	switch s {
	case SeverityTemporarySuspension:
		return StatusSuspended
	case SeverityPermanentBan:
		return StatusBanned
	default:
		return StatusWarned
	}
}

// UserModerationRecord is the single source of truth for "can this user act".
// One record per user; created on first moderation touch, never deleted.
// WarnCount only ever increases. A "lift restrictions" action resets status
// and suspension but leaves WarnCount as historical evidence.
type UserModerationRecord struct {
	UserID          string     `json:"user_id"`
	Status          Status     `json:"status"`
	WarnCount       int        `json:"warn_count"`
	SuspensionUntil *time.Time `json:"suspension_until,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Blocked reports whether the record blocks the user at the given instant.
// Suspension expiry is computed on read; nothing flips the record back to
// active in the background.
func (r *UserModerationRecord) Blocked(now time.Time) bool {
	if r == nil {
		return false
	}
	switch r.Status {
	case StatusBanned:
		return true
	case StatusSuspended:
		return r.SuspensionUntil != nil && r.SuspensionUntil.After(now)
	}
	return false
}

// Warning is one entry in a user's append-only disciplinary ledger.
// Immutable after creation.
type Warning struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	IssuedBy      string    `json:"issued_by"`
	Severity      Severity  `json:"severity"`
	DurationHours *int      `json:"duration_hours,omitempty"` // set iff severity is temporary_suspension
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

// Action identifies a state-changing moderation operation in the audit log.
type Action string

const (
	ActionDeleteCatch     Action = "delete_catch"
	ActionDeleteComment   Action = "delete_comment"
	ActionRestoreCatch    Action = "restore_catch"
	ActionRestoreComment  Action = "restore_comment"
	ActionWarnUser        Action = "warn_user"
	ActionSuspendUser     Action = "suspend_user"
	ActionClearModeration Action = "clear_moderation"
)

// TargetType identifies what a moderation operation or report points at.
type TargetType string

const (
	TargetCatch   TargetType = "catch"
	TargetComment TargetType = "comment"
	TargetProfile TargetType = "profile"
	TargetUser    TargetType = "user"
)

// LogEntry is one row of the system-wide append-only audit log. It is written
// in the same transaction as the operation it records: the warning ledger and
// the audit log always agree on ordering for a given user.
type LogEntry struct {
	ID         string     `json:"id"`
	Action     Action     `json:"action"`
	AdminID    string     `json:"admin_id"`
	TargetType TargetType `json:"target_type"`
	TargetID   string     `json:"target_id"`
	Detail     Detail     `json:"detail"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ReportStatus is the triage state of a user-submitted report.
type ReportStatus string

const (
	ReportOpen      ReportStatus = "open"
	ReportResolved  ReportStatus = "resolved"
	ReportDismissed ReportStatus = "dismissed"
)

// Valid reports whether s is a known report status.
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportOpen, ReportResolved, ReportDismissed:
		return true
	}
	return false
}

// Report is a user-submitted flag against a catch, comment, or profile.
// Reports are never deleted; status moves freely between open, resolved and
// dismissed, settable only by admins.
type Report struct {
	ID              string       `json:"id"`
	TargetType      TargetType   `json:"target_type"`
	TargetID        string       `json:"target_id"`
	SubjectUserID   string       `json:"subject_user_id,omitempty"` // owner of the reported content, or the profile itself
	ReporterID      string       `json:"reporter_id"`
	Reason          string       `json:"reason"`
	Status          ReportStatus `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	ReviewedBy      string       `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time   `json:"reviewed_at,omitempty"`
	ResolutionNotes string       `json:"resolution_notes,omitempty"`
}

// TargetRecord is the resolution view over reportable content (catches and
// comments): owner and current soft-delete state.
type TargetRecord struct {
	Type      TargetType `json:"type"`
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the target currently carries a soft-delete marker.
func (t *TargetRecord) Deleted() bool {
	return t != nil && t.DeletedAt != nil
}

// Notification is an in-app message to a user about a moderation outcome or
// social event. Deduplicated by (user, type, actor, subject).
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	SubjectID string    `json:"subject_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}
