package email

import (
	"context"
	"fmt"

	"tangled.org/creel.social/creel/internal/notify"
)

// AlertSink implements notify.Sink by mailing severe moderation outcomes to
// the staff address. It only reacts to suspensions and bans; everything else
// passes through silently, so it pairs with the in-app store in a fanout.
type AlertSink struct {
	sender *Sender
}

// NewAlertSink wraps a Sender for use in a notification fanout.
func NewAlertSink(sender *Sender) *AlertSink {
	return &AlertSink{sender: sender}
}

var _ notify.Sink = (*AlertSink)(nil)

// Send mails a copy of the notification when it records a suspension or ban.
func (a *AlertSink) Send(ctx context.Context, msg notify.Message) error {
	if a.sender == nil || !a.sender.Enabled() || a.sender.StaffAddr() == "" {
		return nil
	}
	if msg.Type != notify.TypeSuspension && msg.Type != notify.TypeBan {
		return nil
	}

	subject := fmt.Sprintf("[creel-trust] %s: %s", msg.Type, msg.UserID)
	body := fmt.Sprintf("User: %s\nAction by: %s\n\n%s\n", msg.UserID, msg.ActorID, msg.Message)
	return a.sender.Send(a.sender.StaffAddr(), subject, body)
}
