package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub()

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	hub.Publish("audit", map[string]string{"action": "warn_user"})

	event := <-sub.C
	assert.Equal(t, "audit", event.Topic)
}

func TestHubTopicFiltering(t *testing.T) {
	hub := NewHub()

	sub := hub.Subscribe("reports")
	defer hub.Unsubscribe(sub)

	hub.Publish("audit", "ignored")
	hub.Publish("reports", "wanted")

	event := <-sub.C
	assert.Equal(t, "reports", event.Topic)
	assert.Equal(t, "wanted", event.Payload)

	select {
	case extra := <-sub.C:
		t.Fatalf("unexpected event: %+v", extra)
	default:
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	// Fill the buffer and then some; the overflow must not block.
	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Publish("audit", i)
	}

	assert.Equal(t, int64(10), hub.Dropped())
	assert.Len(t, sub.C, subscriberBuffer)
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()

	sub := hub.Subscribe()
	require.Equal(t, 1, hub.SubscriberCount())

	hub.Unsubscribe(sub)
	assert.Equal(t, 0, hub.SubscriberCount())

	_, open := <-sub.C
	assert.False(t, open)

	// Double unsubscribe is a no-op.
	hub.Unsubscribe(sub)
}
