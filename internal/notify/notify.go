// Package notify delivers in-app notifications to affected users. Delivery is
// fire-and-forget: a failed send is logged and swallowed, never allowed to
// fail the moderation action that already persisted.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Notification types emitted by the trust core.
const (
	TypeWarning         = "moderation_warning"
	TypeSuspension      = "moderation_suspension"
	TypeBan             = "moderation_ban"
	TypeRestrictionLift = "moderation_lift"
	TypeContentRemoved  = "content_removed"
	TypeContentRestored = "content_restored"
)

// Message is one notification to deliver.
type Message struct {
	UserID    string `json:"user_id"`
	ActorID   string `json:"actor_id,omitempty"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	SubjectID string `json:"subject_id,omitempty"`
}

// Sink accepts notifications for storage or forwarding.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// Fanout delivers each message to every sink. Errors are collected rather
// than short-circuiting: one broken sink must not starve the others.
type Fanout []Sink

var _ Sink = (Fanout)(nil)

func (f Fanout) Send(ctx context.Context, msg Message) error {
	var firstErr error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Send(ctx, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Dispatcher sends notifications asynchronously through a Sink.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
}

// NewDispatcher creates a dispatcher. A nil sink yields a dispatcher that
// drops everything, which keeps callers free of nil checks.
func NewDispatcher(sink Sink) *Dispatcher {
	return &Dispatcher{sink: sink, timeout: 5 * time.Second}
}

// Dispatch delivers msg in the background. The caller's context is not
// reused: the moderation action has already committed by the time this runs,
// and a cancelled request must not suppress the notification.
func (d *Dispatcher) Dispatch(msg Message) {
	if d == nil || d.sink == nil || msg.UserID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.sink.Send(ctx, msg); err != nil {
			log.Error().
				Err(err).
				Str("user_id", msg.UserID).
				Str("type", msg.Type).
				Msg("notify: delivery failed")
		}
	}()
}
