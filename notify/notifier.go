// Package notify defines the outbound notification hook. Actual email
// delivery is an external collaborator; the engine only reports lifecycle
// events through this interface.
package notify

import (
	"context"

	"groupage/core"

	"go.uber.org/zap"
)

// Notifier receives lifecycle events worth telling the announcement's
// contact about.
type Notifier interface {
	AnnouncementExpired(ctx context.Context, a *core.Announcement, reason core.ExpirationReason) error
}

// LogNotifier logs events instead of sending anything; the default when no
// mailer integration is wired.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

// NewLogNotifier creates a logging notifier.
func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// AnnouncementExpired logs the expiration.
func (n *LogNotifier) AnnouncementExpired(_ context.Context, a *core.Announcement, reason core.ExpirationReason) error {
	n.logger.Infow("Expiration notice",
		"reference", a.Reference,
		"contact_email", a.ContactEmail,
		"reason", reason,
	)
	return nil
}

type discard struct{}

func (discard) AnnouncementExpired(context.Context, *core.Announcement, core.ExpirationReason) error {
	return nil
}

// Discard returns a notifier that drops every event.
func Discard() Notifier {
	return discard{}
}
