package models

import "time"

// TemplateID identifies a notification template.
type TemplateID int64

// NotificationTemplate is a reusable alert blueprint with {{variable}} placeholders.
type NotificationTemplate struct {
	ID              TemplateID    `json:"id"`
	Name            string        `json:"name"`
	Category        string        `json:"category"`
	Type            string        `json:"type"`
	TitlePattern    string        `json:"title_pattern"`
	ContentPattern  string        `json:"content_pattern"`
	Variables       []string      `json:"variables"`
	DefaultChannels []Channel     `json:"default_channels"`
	DefaultSeverity AlertSeverity `json:"default_severity"`
	IsActive        bool          `json:"is_active"`
	CreatedBy       UserID        `json:"created_by"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// CreateTemplateRequest is the payload for creating a template.
type CreateTemplateRequest struct {
	Name            string        `json:"name" validate:"required"`
	Category        string        `json:"category" validate:"required"`
	Type            string        `json:"type"`
	TitlePattern    string        `json:"title_pattern" validate:"required"`
	ContentPattern  string        `json:"content_pattern" validate:"required"`
	Variables       []string      `json:"variables"`
	DefaultChannels []Channel     `json:"default_channels" validate:"omitempty,dive,oneof=email sms push"`
	DefaultSeverity AlertSeverity `json:"default_severity" validate:"omitempty,oneof=low medium high critical"`
	IsActive        *bool         `json:"is_active"`
}

// UpdateTemplateRequest defines the patchable template fields.
type UpdateTemplateRequest struct {
	Name            *string        `json:"name"`
	Category        *string        `json:"category"`
	Type            *string        `json:"type"`
	TitlePattern    *string        `json:"title_pattern"`
	ContentPattern  *string        `json:"content_pattern"`
	Variables       *[]string      `json:"variables"`
	DefaultChannels *[]Channel     `json:"default_channels"`
	DefaultSeverity *AlertSeverity `json:"default_severity"`
	IsActive        *bool          `json:"is_active"`
}

// ApplyTemplateRequest renders a template into a draft alert. Channels and Severity
// override the template defaults when set.
type ApplyTemplateRequest struct {
	Variables map[string]string `json:"variables"`
	Targeting *Targeting        `json:"targeting" validate:"required"`
	Channels  []Channel         `json:"channels" validate:"omitempty,dive,oneof=email sms push"`
	Severity  AlertSeverity     `json:"severity" validate:"omitempty,oneof=low medium high critical"`
}

// TemplateFilter narrows template listings.
type TemplateFilter struct {
	Category   string
	ActiveOnly bool
}
