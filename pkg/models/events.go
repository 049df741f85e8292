package models

import "time"

// Realtime event names published to observers.
const (
	EventNewAlert              = "newAlert"
	EventPersonalAlert         = "personalAlert"
	EventAlertCancelled        = "alertCancelled"
	EventAlertAcknowledged     = "alertAcknowledged"
	EventNewIncident           = "newIncident"
	EventIncidentUpdated       = "incidentUpdated"
	EventIncidentStatusUpdated = "incidentStatusUpdated"
	EventIncidentResponseAdded = "incidentResponseAdded"
	EventIncidentDeleted       = "incidentDeleted"
	EventTemplateCreated       = "templateCreated"
	EventTemplateUpdated       = "templateUpdated"
	EventTemplateDeleted       = "templateDeleted"
)

// Role-scoped realtime rooms.
const (
	RoomAdmin    = "admin"
	RoomOperator = "operator"
)

// AlertCancelledEvent is published when a sent alert is withdrawn.
type AlertCancelledEvent struct {
	AlertID     AlertID   `json:"alert_id"`
	CancelledBy UserID    `json:"cancelled_by"`
	CancelledAt time.Time `json:"cancelled_at"`
	Alert       *Alert    `json:"alert"`
}

// AlertAcknowledgedEvent is published for every recorded acknowledgment.
type AlertAcknowledgedEvent struct {
	AlertID   AlertID   `json:"alert_id"`
	UserID    UserID    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// IncidentEvent wraps incident broadcasts.
type IncidentEvent struct {
	IncidentID IncidentID `json:"incident_id"`
	Incident   *Incident  `json:"incident,omitempty"`
	AlertID    *AlertID   `json:"alert_id,omitempty"`
}

// TemplateEvent wraps template broadcasts.
type TemplateEvent struct {
	TemplateID TemplateID            `json:"template_id"`
	Template   *NotificationTemplate `json:"template,omitempty"`
}
