package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirenhq/siren/internal/notify"
	"github.com/sirenhq/siren/pkg/models"
)

// provenance records where a new alert came from.
type provenance struct {
	template *models.TemplateUsage
	incident *models.IncidentID
}

// CreateAlert validates and stores a new alert. Without an explicit status the alert
// is sent immediately: recipients are resolved, notified, and the delivery stats are
// persisted before the alert is announced. Creation is all-or-nothing with respect
// to storage.
func (s *Service) CreateAlert(ctx context.Context, actor models.Actor, req *models.CreateAlertRequest) (*models.Alert, error) {
	return s.createAlert(ctx, actor, req, provenance{})
}

func (s *Service) createAlert(ctx context.Context, actor models.Actor, req *models.CreateAlertRequest, prov provenance) (*models.Alert, error) {
	if req == nil {
		return nil, fieldError("request", "is required")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	status := models.AlertStatusSent
	if req.Status != nil {
		status = *req.Status
	}
	severity := req.Severity
	if severity == "" {
		severity = models.AlertSeverityMedium
	}
	now := s.clock()
	alert := &models.Alert{
		Title:           req.Title,
		Message:         req.Message,
		Severity:        severity,
		Channels:        uniqueChannels(req.Channels),
		Targeting:       *req.Targeting,
		Status:          status,
		CreatedBy:       actor.UserID,
		FromTemplate:    prov.template,
		FromIncident:    prov.incident,
		Acknowledgments: []models.Acknowledgment{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if status != models.AlertStatusSent {
		if err := s.store.CreateAlert(ctx, alert); err != nil {
			return nil, persistenceError("create alert", err)
		}
		s.log.Info("alert created", "alert_id", alert.ID, "status", alert.Status, "created_by", actor.UserID)
		s.announce(alert, nil)
		return alert, nil
	}

	recipients, err := s.resolver.Resolve(ctx, alert.Targeting)
	if err != nil {
		return nil, persistenceError("resolve recipients", err)
	}
	alert.SentAt = &now
	alert.DeliveryStats = models.DeliveryStats{Total: len(recipients), Pending: len(recipients)}
	if err := s.store.CreateAlert(ctx, alert); err != nil {
		return nil, persistenceError("create alert", err)
	}

	if err := s.deliver(ctx, alert, recipients); err != nil {
		if delErr := s.store.DeleteAlert(context.WithoutCancel(ctx), alert.ID); delErr != nil {
			s.log.Error("failed to remove alert after persistence failure", "alert_id", alert.ID, "error", delErr)
		}
		return nil, err
	}
	s.announce(alert, recipients)
	return alert, nil
}

// SendAlert publishes a draft or pending alert. The status change happens under the
// alert's lock; dispatch runs after it is released.
func (s *Service) SendAlert(ctx context.Context, actor models.Actor, id models.AlertID) (*models.Alert, error) {
	alert, previous, recipients, err := s.markSent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.deliver(ctx, alert, recipients); err != nil {
		unlock := s.alertLocks.lock(int64(id))
		if revertErr := s.store.UpdateAlert(context.WithoutCancel(ctx), previous); revertErr != nil {
			s.log.Error("failed to revert alert after persistence failure", "alert_id", id, "error", revertErr)
		}
		unlock()
		return nil, err
	}
	s.log.Info("alert sent", "alert_id", id, "sent_by", actor.UserID)
	s.announce(alert, recipients)
	return alert, nil
}

func (s *Service) markSent(ctx context.Context, id models.AlertID) (*models.Alert, *models.Alert, []models.Recipient, error) {
	unlock := s.alertLocks.lock(int64(id))
	defer unlock()

	alert, err := s.getAlert(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if !alert.Status.CanTransitionTo(models.AlertStatusSent) {
		return nil, nil, nil, fmt.Errorf("%w: cannot send alert in status %s", ErrInvalidState, alert.Status)
	}
	recipients, err := s.resolver.Resolve(ctx, alert.Targeting)
	if err != nil {
		return nil, nil, nil, persistenceError("resolve recipients", err)
	}

	previous := *alert
	now := s.clock()
	alert.Status = models.AlertStatusSent
	alert.SentAt = &now
	alert.UpdatedAt = now
	alert.DeliveryStats = models.DeliveryStats{Total: len(recipients), Pending: len(recipients)}
	if err := s.store.UpdateAlert(ctx, alert); err != nil {
		return nil, nil, nil, persistenceError("update alert", err)
	}
	return alert, &previous, recipients, nil
}

// deliver dispatches a sent alert and persists the aggregated stats. Only the stats
// write takes the alert's lock; the store keeps a cancellation that lands meanwhile.
func (s *Service) deliver(ctx context.Context, alert *models.Alert, recipients []models.Recipient) error {
	// Delivery runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	results := s.dispatcher.Dispatch(ctx, notify.ContentFor(alert), alert.Channels, recipients)
	stats := notify.Summarize(recipients, results)
	markFailed := stats.Total > 0 && stats.Sent == 0 && alert.Status.CanTransitionTo(models.AlertStatusFailed)

	unlock := s.alertLocks.lock(int64(alert.ID))
	defer unlock()

	now := s.clock()
	status, err := s.store.RecordDelivery(ctx, alert.ID, stats, markFailed, now)
	if err != nil {
		return persistenceError("record delivery", err)
	}
	alert.DeliveryStats = stats
	alert.Status = status
	alert.UpdatedAt = now

	s.log.Info("alert delivered",
		"alert_id", alert.ID,
		"status", alert.Status,
		"total", stats.Total,
		"sent", stats.Sent,
		"failed", stats.Failed)
	return nil
}

// announce publishes a new or newly sent alert. Unsent alerts are only visible to
// staff rooms; delivered alerts go to everyone and to each recipient's private channel.
func (s *Service) announce(alert *models.Alert, recipients []models.Recipient) {
	switch alert.Status {
	case models.AlertStatusDraft, models.AlertStatusPending:
		s.emit(models.EventNewAlert, func() {
			s.publisher.PublishToRoom(models.RoomAdmin, models.EventNewAlert, alert)
			s.publisher.PublishToRoom(models.RoomOperator, models.EventNewAlert, alert)
		})
	case models.AlertStatusSent:
		s.emit(models.EventNewAlert, func() {
			s.publisher.Broadcast(models.EventNewAlert, alert)
		})
		s.emit(models.EventPersonalAlert, func() {
			for _, r := range recipients {
				s.publisher.PublishToUser(r.ID, models.EventPersonalAlert, alert)
			}
		})
	case models.AlertStatusFailed, models.AlertStatusCancelled:
		s.emit(models.EventNewAlert, func() {
			s.publisher.Broadcast(models.EventNewAlert, alert)
		})
	}
}

// GetAlert returns a single alert with its acknowledgments.
func (s *Service) GetAlert(ctx context.Context, id models.AlertID) (*models.Alert, error) {
	return s.getAlert(ctx, id)
}

func (s *Service) getAlert(ctx context.Context, id models.AlertID) (*models.Alert, error) {
	alert, err := s.store.GetAlert(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, persistenceError("get alert", err)
	}
	return alert, nil
}

// ListAlerts returns alerts newest first.
func (s *Service) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fieldError("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		return nil, fieldError("severity", fmt.Sprintf("unknown severity %q", filter.Severity))
	}
	if filter.Limit <= 0 {
		filter.Limit = models.DefaultAlertListLimit
	}
	alerts, err := s.store.ListAlerts(ctx, filter)
	if err != nil {
		return nil, persistenceError("list alerts", err)
	}
	return alerts, nil
}

// UpdateAlert applies a patch. Content and targeting are frozen once the alert is
// sent and terminal alerts accept no patch at all.
func (s *Service) UpdateAlert(ctx context.Context, id models.AlertID, req *models.UpdateAlertRequest) (*models.Alert, error) {
	if req == nil {
		return nil, fieldError("request", "is required")
	}
	unlock := s.alertLocks.lock(int64(id))
	defer unlock()

	alert, err := s.getAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: alert is %s", ErrInvalidState, alert.Status)
	}
	if req.TouchesContent() && !alert.Status.ContentEditable() {
		return nil, ErrImmutableSentAlert
	}
	if err := applyAlertPatch(alert, req); err != nil {
		return nil, err
	}

	alert.UpdatedAt = s.clock()
	if err := s.store.UpdateAlert(ctx, alert); err != nil {
		return nil, persistenceError("update alert", err)
	}
	s.log.Info("alert updated", "alert_id", id, "status", alert.Status)
	return alert, nil
}

func applyAlertPatch(alert *models.Alert, req *models.UpdateAlertRequest) error {
	fields := map[string]string{}
	if req.Title != nil {
		if title := strings.TrimSpace(*req.Title); title == "" {
			fields["title"] = "is required"
		} else {
			alert.Title = title
		}
	}
	if req.Message != nil {
		if msg := strings.TrimSpace(*req.Message); msg == "" {
			fields["message"] = "is required"
		} else {
			alert.Message = msg
		}
	}
	if req.Severity != nil {
		if !req.Severity.Valid() {
			fields["severity"] = "must be one of [low medium high critical]"
		} else {
			alert.Severity = *req.Severity
		}
	}
	if req.Channels != nil {
		if msg := checkChannels(*req.Channels); msg != "" {
			fields["channels"] = msg
		} else {
			alert.Channels = uniqueChannels(*req.Channels)
		}
	}
	if req.Targeting != nil {
		alert.Targeting = *req.Targeting
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}

	if req.Status != nil && *req.Status != alert.Status {
		next := *req.Status
		if !next.Valid() {
			return fieldError("status", fmt.Sprintf("unknown status %q", next))
		}
		// Sending and cancelling have dedicated operations.
		if next != models.AlertStatusDraft && next != models.AlertStatusPending {
			return fmt.Errorf("%w: status can only be patched between draft and pending", ErrInvalidState)
		}
		if !alert.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: cannot move alert from %s to %s", ErrInvalidState, alert.Status, next)
		}
		alert.Status = next
	}
	return nil
}

// CancelAlert withdraws a sent alert within the cancel window. Any other status fails
// the same way as an expired window. The window is measured at the time of the
// request; the check and the conditional store update both run under the alert's lock.
func (s *Service) CancelAlert(ctx context.Context, actor models.Actor, id models.AlertID) (*models.Alert, error) {
	requestedAt := s.clock()
	unlock := s.alertLocks.lock(int64(id))
	defer unlock()

	alert, err := s.getAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if !alert.Status.CanTransitionTo(models.AlertStatusCancelled) {
		return nil, fmt.Errorf("%w: alert is %s", ErrCancellationWindowExpired, alert.Status)
	}
	if alert.SentAt == nil || requestedAt.Sub(*alert.SentAt) > s.cancelWindow {
		return nil, ErrCancellationWindowExpired
	}
	now := s.clock()

	if err := s.store.CancelAlert(ctx, id, now); err != nil {
		switch {
		case errors.Is(err, models.ErrPrecondition):
			return nil, fmt.Errorf("%w: alert is no longer sent", ErrCancellationWindowExpired)
		case errors.Is(err, models.ErrNotFound):
			return nil, ErrAlertNotFound
		}
		return nil, persistenceError("cancel alert", err)
	}
	alert.Status = models.AlertStatusCancelled
	alert.CancelledAt = &now
	alert.UpdatedAt = now

	s.log.Info("alert cancelled", "alert_id", id, "cancelled_by", actor.UserID)
	s.emit(models.EventAlertCancelled, func() {
		s.publisher.Broadcast(models.EventAlertCancelled, models.AlertCancelledEvent{
			AlertID:     id,
			CancelledBy: actor.UserID,
			CancelledAt: now,
			Alert:       alert,
		})
	})
	return alert, nil
}

// DeleteAlert removes an alert regardless of its status.
func (s *Service) DeleteAlert(ctx context.Context, id models.AlertID) error {
	unlock := s.alertLocks.lock(int64(id))
	defer unlock()

	if err := s.store.DeleteAlert(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrAlertNotFound
		}
		return persistenceError("delete alert", err)
	}
	s.log.Info("alert deleted", "alert_id", id)
	return nil
}

func checkChannels(channels []models.Channel) string {
	if len(channels) == 0 {
		return "must contain at least 1 item(s)"
	}
	for _, ch := range channels {
		if !ch.Valid() {
			return fmt.Sprintf("unsupported channel %q", ch)
		}
	}
	return ""
}

func uniqueChannels(channels []models.Channel) []models.Channel {
	seen := make(map[models.Channel]struct{}, len(channels))
	out := make([]models.Channel, 0, len(channels))
	for _, ch := range channels {
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	return out
}
