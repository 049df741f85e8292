// Package notify delivers rendered alerts to recipients over the configured channels.
package notify

import (
	"context"
	"time"

	"github.com/sirenhq/siren/pkg/models"
)

// Content is the rendered alert handed to channel providers.
type Content struct {
	AlertID      models.AlertID
	Title        string
	Message      string
	Severity     models.AlertSeverity
	SentAt       time.Time
	FromIncident *models.IncidentID
}

// ContentFor builds the provider payload for alert.
func ContentFor(alert *models.Alert) Content {
	c := Content{
		AlertID:      alert.ID,
		Title:        alert.Title,
		Message:      alert.Message,
		Severity:     alert.Severity,
		FromIncident: alert.FromIncident,
	}
	if alert.SentAt != nil {
		c.SentAt = *alert.SentAt
	}
	return c
}

// ChannelSender abstracts the delivery mechanism of a single channel.
type ChannelSender interface {
	Send(ctx context.Context, recipient models.Recipient, content Content) error
}

// SenderFunc adapts a function to ChannelSender.
type SenderFunc func(ctx context.Context, recipient models.Recipient, content Content) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, recipient models.Recipient, content Content) error {
	return f(ctx, recipient, content)
}

// Result is the outcome of one delivery attempt.
type Result struct {
	RecipientID models.UserID  `json:"recipient_id"`
	Channel     models.Channel `json:"channel"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
}
