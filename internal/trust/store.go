package trust

import (
	"context"
	"time"
)

// PageSize is the fixed page size for audit log and triage queue listings.
const PageSize = 50

// SortDirection orders listings by creation time.
type SortDirection string

const (
	SortDesc SortDirection = "desc"
	SortAsc  SortDirection = "asc"
)

// LogFilter narrows an audit log listing. Zero values mean "no constraint".
type LogFilter struct {
	AdminID string
	Action  Action
	// Search matches case-insensitively against admin id, reason, target id,
	// and the serialized detail payload. Union of substring matches, not
	// full-text search.
	Search string
	From   time.Time
	To     time.Time
}

// ReportFilter narrows a triage queue listing. Zero values mean "no constraint".
type ReportFilter struct {
	Status         ReportStatus
	TargetType     TargetType
	ReportedUserID string
	From           time.Time
	To             time.Time
}

// Tx exposes the write operations available inside a moderation transaction.
// Every method either succeeds as part of the enclosing transaction or the
// whole transaction rolls back.
type Tx interface {
	// ApplyModeration upserts the user's moderation record, incrementing
	// warn_count atomically in storage (never read-modify-write), and returns
	// the record as written.
	ApplyModeration(userID string, status Status, suspensionUntil *time.Time, now time.Time) (*UserModerationRecord, error)

	// ClearModeration resets status to active and clears the suspension
	// expiry. WarnCount is left untouched. Returns the prior record, which may
	// be nil if the user had never been moderated.
	ClearModeration(userID string, now time.Time) (*UserModerationRecord, error)

	// InsertWarning appends to the warning ledger.
	InsertWarning(w Warning) error

	// InsertLogEntry appends to the audit log.
	InsertLogEntry(e LogEntry) error

	// SetTargetDeleted sets or clears the soft-delete marker on a catch or
	// comment. The target must exist.
	SetTargetDeleted(targetType TargetType, targetID string, deletedAt *time.Time) error

	// SetReportStatus updates a report's triage state.
	SetReportStatus(reportID string, status ReportStatus, reviewedBy, notes string, now time.Time) error
}

// Store is the persistence boundary for the trust core.
// Implementations must be safe for concurrent use.
type Store interface {
	// WithTx runs fn inside a single transaction. Any error from fn rolls the
	// transaction back in full.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Moderation records
	GetRecord(ctx context.Context, userID string) (*UserModerationRecord, error)
	ListWarnings(ctx context.Context, userID string) ([]Warning, error)

	// Audit log
	ListLog(ctx context.Context, filter LogFilter, dir SortDirection, page int) ([]LogEntry, error)
	ListLogForTarget(ctx context.Context, targetType TargetType, targetID string) ([]LogEntry, error)
	ListLogForUser(ctx context.Context, userID string) ([]LogEntry, error)

	// Reports
	CreateReport(ctx context.Context, report Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	ListReports(ctx context.Context, filter ReportFilter, dir SortDirection, page int) ([]Report, error)
	HasReported(ctx context.Context, reporterID string, targetType TargetType, targetID string) (bool, error)

	// Targets
	// GetTarget returns nil when the record is absent entirely. Soft-deleted
	// targets are returned with DeletedAt set.
	GetTarget(ctx context.Context, targetType TargetType, targetID string) (*TargetRecord, error)

	// Stats for the metrics collector
	CountOpenReports(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// DedupeStore remembers recently issued action keys so an accidental
// double-submit does not double-count a warning.
type DedupeStore interface {
	// FirstSeen records key with the given time-to-live and reports whether
	// this call was the first sighting inside the TTL.
	FirstSeen(key string, ttl time.Duration, now time.Time) (bool, error)
}

// Publisher receives an event for every mutation so open admin views can
// refresh without polling.
type Publisher interface {
	Publish(topic string, event any)
}

// Topics for the realtime change feed.
const (
	TopicReports    = "reports"
	TopicAudit      = "audit"
	TopicModeration = "moderation"
)
