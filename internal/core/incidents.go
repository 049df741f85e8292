package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirenhq/siren/pkg/models"
)

// DefaultIncidentListLimit bounds incident listings when no limit is provided.
const DefaultIncidentListLimit = 100

// CreateIncident records a newly reported incident.
func (s *Service) CreateIncident(ctx context.Context, actor models.Actor, req *models.CreateIncidentRequest) (*models.Incident, error) {
	if req == nil {
		return nil, fieldError("request", "is required")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	severity := req.Severity
	if severity == "" {
		severity = models.AlertSeverityMedium
	}
	now := s.clock()
	incident := &models.Incident{
		Title:         req.Title,
		Description:   req.Description,
		Location:      strings.TrimSpace(req.Location),
		Severity:      severity,
		Status:        models.IncidentStatusReported,
		ReportedBy:    actor.UserID,
		ReportedAt:    now,
		UpdatedAt:     now,
		Responses:     []models.IncidentResponse{},
		StatusUpdates: []models.IncidentStatusUpdate{},
	}
	if err := s.store.CreateIncident(ctx, incident); err != nil {
		return nil, persistenceError("create incident", err)
	}
	s.log.Info("incident reported", "incident_id", incident.ID, "reported_by", actor.UserID, "severity", severity)
	s.publishIncident(models.EventNewIncident, incident, nil)
	return incident, nil
}

// GetIncident returns a single incident.
func (s *Service) GetIncident(ctx context.Context, id models.IncidentID) (*models.Incident, error) {
	return s.getIncident(ctx, id)
}

func (s *Service) getIncident(ctx context.Context, id models.IncidentID) (*models.Incident, error) {
	incident, err := s.store.GetIncident(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrIncidentNotFound
		}
		return nil, persistenceError("get incident", err)
	}
	return incident, nil
}

// ListIncidents returns incidents newest first.
func (s *Service) ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fieldError("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultIncidentListLimit
	}
	incidents, err := s.store.ListIncidents(ctx, filter)
	if err != nil {
		return nil, persistenceError("list incidents", err)
	}
	return incidents, nil
}

// UpdateIncident patches the descriptive fields of an open incident.
func (s *Service) UpdateIncident(ctx context.Context, id models.IncidentID, req *models.UpdateIncidentRequest) (*models.Incident, error) {
	if req == nil {
		return nil, fieldError("request", "is required")
	}
	return s.mutateIncident(ctx, id, models.EventIncidentUpdated, func(incident *models.Incident) error {
		fields := map[string]string{}
		if req.Title != nil {
			if title := strings.TrimSpace(*req.Title); title == "" {
				fields["title"] = "is required"
			} else {
				incident.Title = title
			}
		}
		if req.Description != nil {
			if desc := strings.TrimSpace(*req.Description); desc == "" {
				fields["description"] = "is required"
			} else {
				incident.Description = desc
			}
		}
		if req.Location != nil {
			incident.Location = strings.TrimSpace(*req.Location)
		}
		if req.Severity != nil {
			if !req.Severity.Valid() {
				fields["severity"] = "must be one of [low medium high critical]"
			} else {
				incident.Severity = *req.Severity
			}
		}
		if len(fields) > 0 {
			return &ValidationError{Fields: fields}
		}
		return nil
	})
}

// UpdateIncidentStatus moves an incident to a new status and appends to its status log.
// Closed incidents are final.
func (s *Service) UpdateIncidentStatus(ctx context.Context, actor models.Actor, id models.IncidentID, req *models.UpdateIncidentStatusRequest) (*models.Incident, error) {
	if req == nil {
		return nil, fieldError("request", "is required")
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	return s.mutateIncident(ctx, id, models.EventIncidentStatusUpdated, func(incident *models.Incident) error {
		incident.Status = req.Status
		incident.StatusUpdates = append(incident.StatusUpdates, models.IncidentStatusUpdate{
			Status:    req.Status,
			Notes:     strings.TrimSpace(req.Notes),
			UserID:    actor.UserID,
			Timestamp: s.clock(),
		})
		return nil
	})
}

// AddIncidentResponse appends an entry to an incident's response log.
func (s *Service) AddIncidentResponse(ctx context.Context, actor models.Actor, id models.IncidentID, req *models.AddIncidentResponseRequest) (*models.Incident, error) {
	if req == nil {
		return nil, fieldError("request", "is required")
	}
	req.Message = strings.TrimSpace(req.Message)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	return s.mutateIncident(ctx, id, models.EventIncidentResponseAdded, func(incident *models.Incident) error {
		incident.Responses = append(incident.Responses, models.IncidentResponse{
			UserID:    actor.UserID,
			Message:   req.Message,
			Timestamp: s.clock(),
		})
		return nil
	})
}

// mutateIncident loads an open incident under its lock, applies fn, persists the
// result and publishes event.
func (s *Service) mutateIncident(ctx context.Context, id models.IncidentID, event string, fn func(*models.Incident) error) (*models.Incident, error) {
	unlock := s.incidentLocks.lock(int64(id))
	defer unlock()

	incident, err := s.getIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if incident.Status == models.IncidentStatusClosed {
		return nil, fmt.Errorf("%w: incident is closed", ErrInvalidState)
	}
	if err := fn(incident); err != nil {
		return nil, err
	}
	incident.UpdatedAt = s.clock()
	if err := s.store.UpdateIncident(ctx, incident); err != nil {
		return nil, persistenceError("update incident", err)
	}
	s.log.Info("incident updated", "incident_id", id, "event", event, "status", incident.Status)
	s.publishIncident(event, incident, nil)
	return incident, nil
}

// DeleteIncident removes an incident.
func (s *Service) DeleteIncident(ctx context.Context, id models.IncidentID) error {
	unlock := s.incidentLocks.lock(int64(id))
	defer unlock()

	if err := s.store.DeleteIncident(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrIncidentNotFound
		}
		return persistenceError("delete incident", err)
	}
	s.log.Info("incident deleted", "incident_id", id)
	s.publishIncident(models.EventIncidentDeleted, &models.Incident{ID: id}, nil)
	return nil
}

// CreateAlertFromIncident escalates an incident into an alert and links the two.
// The alert is titled after the incident, carries its severity and uses the
// incident description when no message is supplied. The incident lock is only held
// for the link write. A failed link does not undo the alert, which may already have
// reached recipients; the escalation is returned with LinkError set instead.
func (s *Service) CreateAlertFromIncident(ctx context.Context, actor models.Actor, id models.IncidentID, req *models.CreateAlertFromIncidentRequest) (*models.IncidentEscalation, error) {
	if req == nil {
		return nil, fieldError("request", "is required")
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	incident, err := s.getIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if incident.Status == models.IncidentStatusClosed {
		return nil, fmt.Errorf("%w: incident is closed", ErrInvalidState)
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = incident.Description
	}
	incidentID := incident.ID
	alert, err := s.createAlert(ctx, actor, &models.CreateAlertRequest{
		Title:     "Incident: " + incident.Title,
		Message:   message,
		Severity:  incident.Severity,
		Channels:  req.Channels,
		Targeting: req.Targeting,
	}, provenance{incident: &incidentID})
	if err != nil {
		return nil, err
	}

	escalation := &models.IncidentEscalation{Incident: incident, Alert: alert}
	linked, err := s.linkIncident(context.WithoutCancel(ctx), id, alert.ID)
	if err != nil {
		s.log.Error("failed to link incident to alert", "incident_id", id, "alert_id", alert.ID, "error", err)
		escalation.LinkError = err.Error()
		return escalation, nil
	}
	escalation.Incident = linked
	s.log.Info("incident escalated", "incident_id", id, "alert_id", alert.ID, "escalated_by", actor.UserID)
	s.publishIncident(models.EventIncidentUpdated, linked, &alert.ID)
	return escalation, nil
}

func (s *Service) linkIncident(ctx context.Context, id models.IncidentID, alertID models.AlertID) (*models.Incident, error) {
	unlock := s.incidentLocks.lock(int64(id))
	defer unlock()

	incident, err := s.getIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	incident.RelatedAlertID = &alertID
	incident.UpdatedAt = s.clock()
	if err := s.store.UpdateIncident(ctx, incident); err != nil {
		return nil, persistenceError("link incident to alert", err)
	}
	return incident, nil
}

func (s *Service) publishIncident(event string, incident *models.Incident, alertID *models.AlertID) {
	s.emit(event, func() {
		payload := models.IncidentEvent{IncidentID: incident.ID, AlertID: alertID}
		if event != models.EventIncidentDeleted {
			payload.Incident = incident
		}
		s.publisher.Broadcast(event, payload)
	})
}
