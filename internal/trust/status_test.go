package trust

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusServiceIsBlocked(t *testing.T) {
	store := newFakeStore()
	svc := NewStatusService(store)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	future := now.Add(2 * time.Hour)
	past := now.Add(-2 * time.Hour)
	store.mu.Lock()
	store.records["banned-1"] = &UserModerationRecord{UserID: "banned-1", Status: StatusBanned}
	store.records["warned-1"] = &UserModerationRecord{UserID: "warned-1", Status: StatusWarned, WarnCount: 2}
	store.records["suspended-1"] = &UserModerationRecord{UserID: "suspended-1", Status: StatusSuspended, SuspensionUntil: &future}
	store.records["expired-1"] = &UserModerationRecord{UserID: "expired-1", Status: StatusSuspended, SuspensionUntil: &past}
	store.mu.Unlock()

	tests := []struct {
		userID  string
		blocked bool
	}{
		{"never-moderated", false},
		{"banned-1", true},
		{"warned-1", false},
		{"suspended-1", true},
		// Expiry is evaluated at read time; the stored status still says
		// suspended but the user may act again.
		{"expired-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			blocked, err := svc.IsBlocked(context.Background(), tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.blocked, blocked)
		})
	}
}

func TestStatusServiceRecord(t *testing.T) {
	store := newFakeStore()
	svc := NewStatusService(store)

	t.Run("synthetic record for clean user", func(t *testing.T) {
		record, err := svc.Record(context.Background(), "angler-9")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, StatusActive, record.Status)
		assert.Zero(t, record.WarnCount)
	})

	t.Run("stored record returned as is", func(t *testing.T) {
		store.mu.Lock()
		store.records[testUserID] = &UserModerationRecord{UserID: testUserID, Status: StatusWarned, WarnCount: 3}
		store.mu.Unlock()

		record, err := svc.Record(context.Background(), testUserID)
		require.NoError(t, err)
		assert.Equal(t, StatusWarned, record.Status)
		assert.Equal(t, 3, record.WarnCount)
	})
}

func TestStatusServiceWarnings(t *testing.T) {
	store := newFakeStore()
	svc := NewStatusService(store)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	store.mu.Lock()
	store.warnings[testUserID] = []Warning{
		{ID: "w-old", UserID: testUserID, CreatedAt: base},
		{ID: "w-new", UserID: testUserID, CreatedAt: base.Add(time.Hour)},
	}
	store.mu.Unlock()

	warnings, err := svc.Warnings(context.Background(), testUserID)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	assert.Equal(t, "w-new", warnings[0].ID)
}

func TestRecordBlocked(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)

	var nilRecord *UserModerationRecord
	assert.False(t, nilRecord.Blocked(now))

	assert.False(t, (&UserModerationRecord{Status: StatusActive}).Blocked(now))
	assert.False(t, (&UserModerationRecord{Status: StatusWarned}).Blocked(now))
	assert.True(t, (&UserModerationRecord{Status: StatusBanned}).Blocked(now))
	assert.True(t, (&UserModerationRecord{Status: StatusSuspended, SuspensionUntil: &future}).Blocked(now))
	assert.False(t, (&UserModerationRecord{Status: StatusSuspended, SuspensionUntil: &now}).Blocked(now))
	// A suspended record with no expiry cannot block forever.
	assert.False(t, (&UserModerationRecord{Status: StatusSuspended}).Blocked(now))
}

func TestSeverityStatus(t *testing.T) {
	assert.Equal(t, StatusWarned, SeverityWarning.Status())
	assert.Equal(t, StatusSuspended, SeverityTemporarySuspension.Status())
	assert.Equal(t, StatusBanned, SeverityPermanentBan.Status())
}
