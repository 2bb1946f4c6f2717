package sqlitestore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled.org/creel.social/creel/internal/notify"
)

func TestNotificationSendAndList(t *testing.T) {
	notifications := openTestStore(t).NotificationStore()
	ctx := context.Background()

	require.NoError(t, notifications.Send(ctx, notify.Message{
		UserID:  "angler-1",
		ActorID: "admin-1",
		Type:    notify.TypeWarning,
		Message: "You have received a warning: spam",
	}))

	list, cursor, err := notifications.List(ctx, "angler-1", 10, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, cursor)
	assert.Equal(t, notify.TypeWarning, list[0].Type)
	assert.Equal(t, "admin-1", list[0].ActorID)
	assert.False(t, list[0].Read)
}

func TestNotificationSendSkips(t *testing.T) {
	notifications := openTestStore(t).NotificationStore()
	ctx := context.Background()

	t.Run("self notification", func(t *testing.T) {
		require.NoError(t, notifications.Send(ctx, notify.Message{
			UserID: "angler-1", ActorID: "angler-1", Type: notify.TypeWarning, Message: "x",
		}))
		assert.Zero(t, notifications.UnreadCount(ctx, "angler-1"))
	})

	t.Run("empty user", func(t *testing.T) {
		require.NoError(t, notifications.Send(ctx, notify.Message{Type: notify.TypeWarning, Message: "x"}))
	})
}

func TestNotificationDeduplicates(t *testing.T) {
	notifications := openTestStore(t).NotificationStore()
	ctx := context.Background()

	msg := notify.Message{
		UserID:    "angler-1",
		ActorID:   "admin-1",
		Type:      notify.TypeContentRemoved,
		SubjectID: "catch-1",
		Message:   "Your catch was removed by a moderator: spam",
	}
	require.NoError(t, notifications.Send(ctx, msg))
	require.NoError(t, notifications.Send(ctx, msg))

	assert.Equal(t, 1, notifications.UnreadCount(ctx, "angler-1"))

	// A different subject is a distinct notification.
	msg.SubjectID = "catch-2"
	require.NoError(t, notifications.Send(ctx, msg))
	assert.Equal(t, 2, notifications.UnreadCount(ctx, "angler-1"))
}

func TestNotificationMarkRead(t *testing.T) {
	notifications := openTestStore(t).NotificationStore()
	ctx := context.Background()

	require.NoError(t, notifications.Send(ctx, notify.Message{
		UserID: "angler-1", ActorID: "admin-1", Type: notify.TypeWarning, Message: "warned",
	}))
	require.Equal(t, 1, notifications.UnreadCount(ctx, "angler-1"))

	require.NoError(t, notifications.MarkRead(ctx, "angler-1"))
	assert.Zero(t, notifications.UnreadCount(ctx, "angler-1"))

	list, _, err := notifications.List(ctx, "angler-1", 10, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Read)
}

func TestNotificationListPagination(t *testing.T) {
	notifications := openTestStore(t).NotificationStore()
	ctx := context.Background()

	// Distinct subjects so the dedupe index keeps all of them; small sleeps
	// keep created_at strictly ordered for the cursor.
	for i := 0; i < 5; i++ {
		require.NoError(t, notifications.Send(ctx, notify.Message{
			UserID:    "angler-1",
			ActorID:   "admin-1",
			Type:      notify.TypeContentRemoved,
			SubjectID: fmt.Sprintf("catch-%d", i),
			Message:   "removed",
		}))
		time.Sleep(2 * time.Millisecond)
	}

	first, cursor, err := notifications.List(ctx, "angler-1", 3, "")
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.NotEmpty(t, cursor)

	second, next, err := notifications.List(ctx, "angler-1", 3, cursor)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Empty(t, next)

	// No overlap between pages.
	seen := make(map[string]bool)
	for _, n := range append(first, second...) {
		assert.False(t, seen[n.ID])
		seen[n.ID] = true
	}
}
