package models

import "time"

// IncidentID identifies a reported incident.
type IncidentID int64

// IncidentStatus tracks the handling of an incident.
type IncidentStatus string

const (
	IncidentStatusReported      IncidentStatus = "reported"
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusResolved      IncidentStatus = "resolved"
	IncidentStatusClosed        IncidentStatus = "closed"
)

// Valid reports whether s is a known incident status.
func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentStatusReported, IncidentStatusInvestigating, IncidentStatusResolved, IncidentStatusClosed:
		return true
	}
	return false
}

// IncidentResponse is an entry in an incident's response log.
type IncidentResponse struct {
	UserID    UserID    `json:"user_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// IncidentStatusUpdate is an entry in an incident's status history.
type IncidentStatusUpdate struct {
	Status    IncidentStatus `json:"status"`
	Notes     string         `json:"notes,omitempty"`
	UserID    UserID         `json:"user_id"`
	Timestamp time.Time      `json:"timestamp"`
}

// Incident is a standalone report that may be escalated into an alert.
type Incident struct {
	ID             IncidentID             `json:"id"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Location       string                 `json:"location,omitempty"`
	Severity       AlertSeverity          `json:"severity"`
	Status         IncidentStatus         `json:"status"`
	ReportedBy     UserID                 `json:"reported_by"`
	ReportedAt     time.Time              `json:"reported_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	Responses      []IncidentResponse     `json:"responses"`
	StatusUpdates  []IncidentStatusUpdate `json:"status_updates"`
	RelatedAlertID *AlertID               `json:"related_alert_id,omitempty"`
}

// CreateIncidentRequest is the payload for reporting an incident.
type CreateIncidentRequest struct {
	Title       string        `json:"title" validate:"required"`
	Description string        `json:"description" validate:"required"`
	Location    string        `json:"location"`
	Severity    AlertSeverity `json:"severity" validate:"omitempty,oneof=low medium high critical"`
}

// UpdateIncidentRequest defines the patchable descriptive fields of an incident.
type UpdateIncidentRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Location    *string        `json:"location"`
	Severity    *AlertSeverity `json:"severity"`
}

// UpdateIncidentStatusRequest moves an incident to a new status.
type UpdateIncidentStatusRequest struct {
	Status IncidentStatus `json:"status" validate:"required,oneof=reported investigating resolved closed"`
	Notes  string         `json:"notes"`
}

// AddIncidentResponseRequest appends to the response log.
type AddIncidentResponseRequest struct {
	Message string `json:"message" validate:"required"`
}

// CreateAlertFromIncidentRequest escalates an incident into an alert.
type CreateAlertFromIncidentRequest struct {
	Message   string     `json:"message"`
	Channels  []Channel  `json:"channels" validate:"required,min=1,dive,oneof=email sms push"`
	Targeting *Targeting `json:"targeting" validate:"required"`
}

// IncidentFilter narrows incident listings.
type IncidentFilter struct {
	Status IncidentStatus
	Limit  int
}

// IncidentEscalation is returned after an incident has been turned into an alert.
// LinkError is set when the alert was created but the incident could not be
// pointed at it.
type IncidentEscalation struct {
	Incident  *Incident `json:"incident"`
	Alert     *Alert    `json:"alert"`
	LinkError string    `json:"link_error,omitempty"`
}
