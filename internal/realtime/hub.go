package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"tangled.org/creel.social/creel/internal/metrics"
	"tangled.org/creel.social/creel/internal/trust"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// cannot keep up has events dropped rather than blocking the publisher.
const subscriberBuffer = 32

// Event is a published message on a hub topic.
type Event struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// Subscription is a live feed of events for a single consumer.
type Subscription struct {
	C      chan Event
	topics map[string]bool
	id     uint64
}

// Wants reports whether the subscription covers the given topic.
func (s *Subscription) Wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	return s.topics[topic]
}

// Hub fans events out to connected subscribers. Publishing never blocks:
// slow subscribers lose events.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID atomic.Uint64

	dropped atomic.Int64
}

var _ trust.Publisher = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[uint64]*Subscription),
	}
}

// Subscribe registers a new subscriber. With no topics, the subscriber
// receives every event; otherwise only events on the named topics.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{
		C:  make(chan Event, subscriberBuffer),
		id: h.nextID.Add(1),
	}
	if len(topics) > 0 {
		sub.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	metrics.RealtimeSubscribers.Set(float64(h.SubscriberCount()))
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if _, ok := h.subs[sub.id]; ok {
		delete(h.subs, sub.id)
		close(sub.C)
	}
	h.mu.Unlock()

	metrics.RealtimeSubscribers.Set(float64(h.SubscriberCount()))
}

// Publish delivers an event to all matching subscribers without blocking.
func (h *Hub) Publish(topic string, payload any) {
	event := Event{Topic: topic, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.Wants(topic) {
			continue
		}
		select {
		case sub.C <- event:
		default:
			h.dropped.Add(1)
			metrics.RealtimeEventsDropped.Inc()
			log.Debug().Str("topic", topic).Msg("realtime: dropped event for slow subscriber")
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns the total number of events dropped for slow subscribers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
