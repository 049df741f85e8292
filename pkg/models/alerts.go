package models

import "time"

// AlertID identifies an emergency alert.
type AlertID int64

// AlertSeverity is the urgency of an alert, used for routing and display.
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Valid reports whether s is a known severity.
func (s AlertSeverity) Valid() bool {
	switch s {
	case AlertSeverityLow, AlertSeverityMedium, AlertSeverityHigh, AlertSeverityCritical:
		return true
	}
	return false
}

// AlertStatus captures the lifecycle state of an alert.
type AlertStatus string

const (
	AlertStatusDraft     AlertStatus = "draft"
	AlertStatusPending   AlertStatus = "pending"
	AlertStatusSent      AlertStatus = "sent"
	AlertStatusCancelled AlertStatus = "cancelled"
	AlertStatusFailed    AlertStatus = "failed"
)

// AllAlertStatuses lists every lifecycle state in display order.
var AllAlertStatuses = []AlertStatus{
	AlertStatusDraft,
	AlertStatusPending,
	AlertStatusSent,
	AlertStatusCancelled,
	AlertStatusFailed,
}

// Valid reports whether s is a known status.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusDraft, AlertStatusPending, AlertStatusSent, AlertStatusCancelled, AlertStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s AlertStatus) IsTerminal() bool {
	switch s {
	case AlertStatusCancelled, AlertStatusFailed:
		return true
	case AlertStatusDraft, AlertStatusPending, AlertStatusSent:
		return false
	}
	return true
}

// ContentEditable reports whether title, message, severity and channels may change in s.
func (s AlertStatus) ContentEditable() bool {
	switch s {
	case AlertStatusDraft, AlertStatusPending:
		return true
	case AlertStatusSent, AlertStatusCancelled, AlertStatusFailed:
		return false
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving from s to next.
//
//	draft   -> pending | sent
//	pending -> draft | sent
//	sent    -> cancelled | failed
//	cancelled, failed: terminal
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	switch s {
	case AlertStatusDraft:
		return next == AlertStatusPending || next == AlertStatusSent
	case AlertStatusPending:
		return next == AlertStatusDraft || next == AlertStatusSent
	case AlertStatusSent:
		return next == AlertStatusCancelled || next == AlertStatusFailed
	case AlertStatusCancelled, AlertStatusFailed:
		return false
	}
	return false
}

// Channel enumerates the notification transports an alert can be delivered over.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// AllChannels lists every supported channel.
var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelPush}

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// Targeting describes who should receive an alert. Specific and UserIDs are synonyms;
// both are honored and merged.
type Targeting struct {
	Roles    []Role   `json:"roles,omitempty"`
	Specific []UserID `json:"specific,omitempty"`
	UserIDs  []UserID `json:"userIds,omitempty"`
	All      bool     `json:"all,omitempty"`
}

// ExplicitIDs returns the union of Specific and UserIDs in first-seen order.
func (t Targeting) ExplicitIDs() []UserID {
	seen := make(map[UserID]struct{}, len(t.Specific)+len(t.UserIDs))
	ids := make([]UserID, 0, len(t.Specific)+len(t.UserIDs))
	for _, list := range [][]UserID{t.Specific, t.UserIDs} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// IsEmpty reports whether the targeting selects nobody.
func (t Targeting) IsEmpty() bool {
	return !t.All && len(t.Roles) == 0 && len(t.Specific) == 0 && len(t.UserIDs) == 0
}

// DeliveryStats aggregates per-recipient delivery outcomes for an alert.
type DeliveryStats struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// Acknowledgment records a recipient confirming receipt of a sent alert.
type Acknowledgment struct {
	UserID    UserID    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Notes     string    `json:"notes"`
}

// DefaultAcknowledgmentNotes is stored when the recipient supplies no notes.
const DefaultAcknowledgmentNotes = "Acknowledged via API"

// TemplateUsage links an alert to the template it was rendered from.
type TemplateUsage struct {
	TemplateID TemplateID `json:"template_id"`
	UsedAt     time.Time  `json:"used_at"`
}

// Alert is a single emergency broadcast with its delivery and acknowledgment state.
type Alert struct {
	ID              AlertID          `json:"id"`
	Title           string           `json:"title"`
	Message         string           `json:"message"`
	Severity        AlertSeverity    `json:"severity"`
	Channels        []Channel        `json:"channels"`
	Targeting       Targeting        `json:"targeting"`
	Status          AlertStatus      `json:"status"`
	CreatedBy       UserID           `json:"created_by"`
	FromTemplate    *TemplateUsage   `json:"from_template,omitempty"`
	FromIncident    *IncidentID      `json:"from_incident,omitempty"`
	DeliveryStats   DeliveryStats    `json:"delivery_stats"`
	Acknowledgments []Acknowledgment `json:"acknowledgments"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	SentAt          *time.Time       `json:"sent_at,omitempty"`
	CancelledAt     *time.Time       `json:"cancelled_at,omitempty"`
}

// HasAcknowledged reports whether userID already acknowledged the alert.
func (a *Alert) HasAcknowledged(userID UserID) bool {
	for _, ack := range a.Acknowledgments {
		if ack.UserID == userID {
			return true
		}
	}
	return false
}

// CreateAlertRequest is the payload required to create a new alert.
type CreateAlertRequest struct {
	Title     string        `json:"title" validate:"required"`
	Message   string        `json:"message" validate:"required"`
	Severity  AlertSeverity `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Channels  []Channel     `json:"channels" validate:"required,min=1,dive,oneof=email sms push"`
	Targeting *Targeting    `json:"targeting" validate:"required"`
	// Status is optional; omitting it sends the alert immediately.
	Status *AlertStatus `json:"status" validate:"omitempty,oneof=draft pending sent"`
}

// UpdateAlertRequest defines the patchable fields of an alert.
type UpdateAlertRequest struct {
	Title     *string        `json:"title"`
	Message   *string        `json:"message"`
	Severity  *AlertSeverity `json:"severity"`
	Channels  *[]Channel     `json:"channels"`
	Targeting *Targeting     `json:"targeting"`
	Status    *AlertStatus   `json:"status"`
}

// TouchesContent reports whether the patch modifies fields frozen once an alert is sent.
func (r *UpdateAlertRequest) TouchesContent() bool {
	return r.Title != nil || r.Message != nil || r.Severity != nil || r.Channels != nil || r.Targeting != nil
}

// AcknowledgeRequest carries optional notes supplied with an acknowledgment.
type AcknowledgeRequest struct {
	Notes string `json:"notes"`
}

// AlertFilter narrows alert listings and analytics.
type AlertFilter struct {
	Status    AlertStatus
	Severity  AlertSeverity
	CreatedBy UserID
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// AlertAnalytics summarizes the alert collection.
type AlertAnalytics struct {
	TotalAlerts          int                   `json:"total_alerts"`
	ByStatus             map[AlertStatus]int   `json:"by_status"`
	BySeverity           map[AlertSeverity]int `json:"by_severity"`
	ByChannel            map[Channel]int       `json:"by_channel"`
	TotalRecipients      int                   `json:"total_recipients"`
	SentNotifications    int                   `json:"sent_notifications"`
	FailedNotifications  int                   `json:"failed_notifications"`
	TotalAcknowledgments int                   `json:"total_acknowledgments"`
	DeliverySuccessRate  float64               `json:"delivery_success_rate"`
}

// DefaultAlertListLimit bounds alert listings when no limit is provided.
const DefaultAlertListLimit = 100
