package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirenhq/siren/pkg/models"
)

// AcknowledgeAlert records that userID has seen a sent alert. Each user may
// acknowledge an alert once; the per-alert lock and the store's conditional insert
// both enforce it.
func (s *Service) AcknowledgeAlert(ctx context.Context, id models.AlertID, userID models.UserID, notes string) (*models.Acknowledgment, error) {
	unlock := s.alertLocks.lock(int64(id))
	defer unlock()

	alert, err := s.getAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Status != models.AlertStatusSent {
		return nil, fmt.Errorf("%w: alert is %s and cannot be acknowledged", ErrInvalidState, alert.Status)
	}
	if alert.HasAcknowledged(userID) {
		return nil, ErrDuplicateAcknowledgment
	}

	notes = strings.TrimSpace(notes)
	if notes == "" {
		notes = models.DefaultAcknowledgmentNotes
	}
	ack := models.Acknowledgment{
		UserID:    userID,
		Timestamp: s.clock(),
		Notes:     notes,
	}
	if err := s.store.AddAcknowledgment(ctx, id, ack); err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			return nil, ErrDuplicateAcknowledgment
		case errors.Is(err, models.ErrPrecondition):
			return nil, fmt.Errorf("%w: alert is no longer sent", ErrInvalidState)
		case errors.Is(err, models.ErrNotFound):
			return nil, ErrAlertNotFound
		}
		return nil, persistenceError("add acknowledgment", err)
	}

	s.log.Info("alert acknowledged", "alert_id", id, "user_id", userID)
	s.emit(models.EventAlertAcknowledged, func() {
		s.publisher.Broadcast(models.EventAlertAcknowledged, models.AlertAcknowledgedEvent{
			AlertID:   id,
			UserID:    userID,
			Timestamp: ack.Timestamp,
		})
	})
	return &ack, nil
}

// ListAcknowledgments returns an alert's acknowledgments in the order they were made.
func (s *Service) ListAcknowledgments(ctx context.Context, id models.AlertID) ([]models.Acknowledgment, error) {
	alert, err := s.getAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	acks := make([]models.Acknowledgment, len(alert.Acknowledgments))
	copy(acks, alert.Acknowledgments)
	return acks, nil
}
