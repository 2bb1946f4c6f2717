package trust

import (
	"context"
	"time"
)

// StatusChecker is the narrow gate consulted by every write path that needs
// "may this user act". Keeping it an interface stops moderation state reads
// from spreading through the codebase.
type StatusChecker interface {
	IsBlocked(ctx context.Context, userID string) (bool, error)
}

// StatusService answers moderation status questions from the status store.
type StatusService struct {
	store Store
	now   func() time.Time
}

// NewStatusService creates a status service.
func NewStatusService(store Store) *StatusService {
	return &StatusService{store: store, now: time.Now}
}

var _ StatusChecker = (*StatusService)(nil)

// IsBlocked reports whether the user is currently barred from acting: banned,
// or suspended with an expiry still in the future. Expiry is evaluated here at
// read time; nothing flips an expired suspension back to active in storage.
func (s *StatusService) IsBlocked(ctx context.Context, userID string) (bool, error) {
	record, err := s.store.GetRecord(ctx, userID)
	if err != nil {
		return false, storageErr("get record", err)
	}
	return record.Blocked(s.now()), nil
}

// Record returns the user's moderation record. Users that have never been
// moderated get a synthetic active record so callers need no nil handling.
func (s *StatusService) Record(ctx context.Context, userID string) (*UserModerationRecord, error) {
	record, err := s.store.GetRecord(ctx, userID)
	if err != nil {
		return nil, storageErr("get record", err)
	}
	if record == nil {
		return &UserModerationRecord{UserID: userID, Status: StatusActive}, nil
	}
	return record, nil
}

// Warnings returns the user's disciplinary ledger, newest first.
func (s *StatusService) Warnings(ctx context.Context, userID string) ([]Warning, error) {
	warnings, err := s.store.ListWarnings(ctx, userID)
	if err != nil {
		return nil, storageErr("list warnings", err)
	}
	return warnings, nil
}
