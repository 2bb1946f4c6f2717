package trust

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for caller mistakes. No state change accompanies any of them.
var (
	// ErrTargetNotFound is returned when the target record is absent entirely.
	// An already-soft-deleted record is a valid delete target and does not
	// produce this error.
	ErrTargetNotFound = errors.New("target not found")

	// ErrNothingToRestore is returned when restore is called on a target with
	// no soft-delete marker. No audit entry is written.
	ErrNothingToRestore = errors.New("nothing to restore")

	// ErrUnauthorized is returned when the caller lacks the required
	// moderation permission. Checked before sensitive reads, not just writes.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrReportNotFound is returned when a report id does not exist.
	ErrReportNotFound = errors.New("report not found")

	// ErrDuplicateReport is returned when a reporter flags the same target twice.
	ErrDuplicateReport = errors.New("already reported")
)

// RateLimitError is returned when a throttled action exceeds its window.
// Recoverable by waiting; never escalated as a system error.
type RateLimitError struct {
	Action  string
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, resets at %s", e.Action, e.ResetAt.Format(time.RFC3339))
}

// ValidationError rejects invalid moderation input before any mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid moderation input: " + e.Field + ": " + e.Message
}

// StorageError wraps an underlying persistence failure. The in-flight
// transaction is rolled back in full; callers may retry safely because
// moderation actions carry a dedupe key.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage failure in " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr is a convenience wrapper used by the services.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
