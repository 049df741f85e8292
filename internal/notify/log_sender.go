package notify

import (
	"context"
	"io"
	"log/slog"

	"github.com/sirenhq/siren/pkg/models"
)

// LogSender records notifications in the log instead of delivering them. It backs
// channels when the service runs in dry-run mode.
type LogSender struct {
	channel models.Channel
	log     *slog.Logger
}

// NewLogSender returns a sender that always succeeds after logging the notification.
func NewLogSender(channel models.Channel, log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LogSender{channel: channel, log: log.With("component", "dry_run_sender")}
}

func (s *LogSender) Send(_ context.Context, recipient models.Recipient, content Content) error {
	s.log.Info("dry-run notification",
		"channel", s.channel,
		"alert_id", content.AlertID,
		"recipient_id", recipient.ID,
		"severity", content.Severity,
		"title", content.Title)
	return nil
}
