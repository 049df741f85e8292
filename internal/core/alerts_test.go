package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirenhq/siren/pkg/models"
)

var operator = models.Actor{UserID: 2, Role: models.RoleOperator}

func sendRequest(targeting models.Targeting) *models.CreateAlertRequest {
	return &models.CreateAlertRequest{
		Title:     "Boil water notice",
		Message:   "Boil tap water before drinking until further notice.",
		Severity:  models.AlertSeverityHigh,
		Channels:  []models.Channel{models.ChannelEmail, models.ChannelPush},
		Targeting: &targeting,
	}
}

func draftRequest() *models.CreateAlertRequest {
	req := sendRequest(models.Targeting{Roles: []models.Role{models.RoleSubscriber}})
	status := models.AlertStatusDraft
	req.Status = &status
	return req
}

func TestCreateAlertSendsImmediately(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	alert, err := h.svc.CreateAlert(ctx, operator, sendRequest(models.Targeting{
		Roles:    []models.Role{models.RoleAdmin, models.RoleOperator},
		Specific: []models.UserID{5},
	}))
	require.NoError(t, err)

	assert.Equal(t, models.AlertStatusSent, alert.Status)
	require.NotNil(t, alert.SentAt)
	assert.Equal(t, h.clock.Now(), *alert.SentAt)
	assert.Equal(t, models.DeliveryStats{Total: 3, Sent: 3}, alert.DeliveryStats)
	assert.Equal(t, operator.UserID, alert.CreatedBy)

	stored, err := h.store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, alert.DeliveryStats, stored.DeliveryStats)

	require.Len(t, h.publisher.named(models.EventNewAlert), 1)
	assert.Equal(t, "global", h.publisher.named(models.EventNewAlert)[0].scope)
	personal := h.publisher.named(models.EventPersonalAlert)
	require.Len(t, personal, 3)
	targets := []string{personal[0].target, personal[1].target, personal[2].target}
	assert.ElementsMatch(t, []string{"user-1", "user-2", "user-5"}, targets)
}

func TestCreateAlertDefaultsSeverity(t *testing.T) {
	h := newHarness()
	req := sendRequest(models.Targeting{Roles: []models.Role{models.RoleAdmin}})
	req.Severity = ""

	alert, err := h.svc.CreateAlert(context.Background(), operator, req)
	require.NoError(t, err)
	assert.Equal(t, models.AlertSeverityMedium, alert.Severity)
}

func TestCreateAlertValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.CreateAlertRequest)
		field  string
	}{
		{"blank title", func(r *models.CreateAlertRequest) { r.Title = "   " }, "title"},
		{"missing message", func(r *models.CreateAlertRequest) { r.Message = "" }, "message"},
		{"no channels", func(r *models.CreateAlertRequest) { r.Channels = nil }, "channels"},
		{"unknown channel", func(r *models.CreateAlertRequest) { r.Channels = []models.Channel{"pager"} }, "channels[0]"},
		{"missing targeting", func(r *models.CreateAlertRequest) { r.Targeting = nil }, "targeting"},
		{"bad severity", func(r *models.CreateAlertRequest) { r.Severity = "extreme" }, "severity"},
		{"terminal status", func(r *models.CreateAlertRequest) {
			s := models.AlertStatusCancelled
			r.Status = &s
		}, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			req := sendRequest(models.Targeting{All: true})
			tt.mutate(req)

			_, err := h.svc.CreateAlert(context.Background(), operator, req)

			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
			assert.Empty(t, h.store.alerts)
		})
	}
}

func TestCreateDraftDoesNotDispatch(t *testing.T) {
	h := newHarness()

	alert, err := h.svc.CreateAlert(context.Background(), operator, draftRequest())
	require.NoError(t, err)

	assert.Equal(t, models.AlertStatusDraft, alert.Status)
	assert.Nil(t, alert.SentAt)
	assert.Equal(t, models.DeliveryStats{}, alert.DeliveryStats)
	assert.Empty(t, h.publisher.named(models.EventPersonalAlert))
	rooms := h.publisher.named(models.EventNewAlert)
	require.Len(t, rooms, 2)
	assert.Equal(t, "room", rooms[0].scope)
}

func TestCreateAlertEmptyTargeting(t *testing.T) {
	h := newHarness()

	alert, err := h.svc.CreateAlert(context.Background(), operator, sendRequest(models.Targeting{}))
	require.NoError(t, err)

	assert.Equal(t, models.AlertStatusSent, alert.Status)
	assert.Equal(t, models.DeliveryStats{}, alert.DeliveryStats)
}

func TestCreateAlertPartialFailureStillSent(t *testing.T) {
	h := newHarness()
	h.fail(10)

	alert, err := h.svc.CreateAlert(context.Background(), operator, sendRequest(models.Targeting{Roles: []models.Role{models.RoleSubscriber}}))
	require.NoError(t, err)

	assert.Equal(t, models.AlertStatusSent, alert.Status)
	assert.Equal(t, models.DeliveryStats{Total: 3, Sent: 2, Failed: 1}, alert.DeliveryStats)
}

func TestCreateAlertEveryRecipientFailed(t *testing.T) {
	h := newHarness()
	h.fail(10, 11, 12)

	alert, err := h.svc.CreateAlert(context.Background(), operator, sendRequest(models.Targeting{Roles: []models.Role{models.RoleSubscriber}}))
	require.NoError(t, err)

	assert.Equal(t, models.AlertStatusFailed, alert.Status)
	assert.Equal(t, models.DeliveryStats{Total: 3, Failed: 3}, alert.DeliveryStats)
	assert.Empty(t, h.publisher.named(models.EventPersonalAlert))
}

func TestCreateAlertIsAllOrNothing(t *testing.T) {
	h := newHarness()
	h.store.failRecordDelivery = errors.New("disk full")

	_, err := h.svc.CreateAlert(context.Background(), operator, sendRequest(models.Targeting{All: true}))

	require.ErrorIs(t, err, ErrPersistence)
	assert.Empty(t, h.store.alerts)
	assert.Empty(t, h.publisher.events)
}

func TestCreateAlertResolverFailure(t *testing.T) {
	h := newHarness()
	h.resolver.err = errors.New("users table locked")

	_, err := h.svc.CreateAlert(context.Background(), operator, sendRequest(models.Targeting{All: true}))

	require.ErrorIs(t, err, ErrPersistence)
	assert.Empty(t, h.store.alerts)
}

func TestCancelWindow(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{"immediately", 0, nil},
		{"four fifty nine", 4*time.Minute + 59*time.Second, nil},
		{"exactly five minutes", 5 * time.Minute, nil},
		{"five minutes one second", 5*time.Minute + time.Second, ErrCancellationWindowExpired},
		{"an hour later", time.Hour, ErrCancellationWindowExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			ctx := context.Background()
			alert, err := h.svc.CreateAlert(ctx, operator, sendRequest(models.Targeting{All: true}))
			require.NoError(t, err)

			h.clock.Advance(tt.elapsed)
			cancelled, err := h.svc.CancelAlert(ctx, operator, alert.ID)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				stored, _ := h.store.GetAlert(ctx, alert.ID)
				assert.Equal(t, models.AlertStatusSent, stored.Status)
				assert.Empty(t, h.publisher.named(models.EventAlertCancelled))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.AlertStatusCancelled, cancelled.Status)
			require.NotNil(t, cancelled.CancelledAt)
			assert.Equal(t, h.clock.Now(), *cancelled.CancelledAt)
			events := h.publisher.named(models.EventAlertCancelled)
			require.Len(t, events, 1)
			payload := events[0].payload.(models.AlertCancelledEvent)
			assert.Equal(t, alert.ID, payload.AlertID)
			assert.Equal(t, operator.UserID, payload.CancelledBy)
		})
	}
}

func TestCancelRequiresSentAlert(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	draft, err := h.svc.CreateAlert(ctx, operator, draftRequest())
	require.NoError(t, err)

	_, err = h.svc.CancelAlert(ctx, operator, draft.ID)
	require.ErrorIs(t, err, ErrCancellationWindowExpired)
	assert.NotErrorIs(t, err, ErrInvalidState)

	sent, err := h.svc.CreateAlert(ctx, operator, sendRequest(models.Targeting{All: true}))
	require.NoError(t, err)
	_, err = h.svc.CancelAlert(ctx, operator, sent.ID)
	require.NoError(t, err)
	_, err = h.svc.CancelAlert(ctx, operator, sent.ID)
	require.ErrorIs(t, err, ErrCancellationWindowExpired)

	_, err = h.svc.CancelAlert(ctx, operator, 9999)
	require.ErrorIs(t, err, ErrAlertNotFound)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSlowDeliveryDoesNotBlockOtherAlerts(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first, err := h.svc.CreateAlert(ctx, operator, sendRequest(models.Targeting{All: true}))
	require.NoError(t, err)
	require.Equal(t, models.AlertID(101), first.ID)

	// 165 and 101 share a bucket under a 64-way striped lock.
	h.store.mu.Lock()
	h.store.nextID = 164
	h.store.mu.Unlock()
	entered, release := h.hold(165)
	defer release()

	type outcome struct {
		alert *models.Alert
		err   error
	}
	slow := make(chan outcome, 1)
	go func() {
		a, err := h.svc.CreateAlert(ctx, operator, sendRequest(models.Targeting{All: true}))
		slow <- outcome{a, err}
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery for alert 165 never started")
	}

	done := make(chan error, 1)
	go func() {
		if _, err := h.svc.AcknowledgeAlert(ctx, first.ID, 10, ""); err != nil {
			done <- err
			return
		}
		_, err := h.svc.CancelAlert(ctx, operator, first.ID)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("acknowledge and cancel on alert 101 waited for delivery of alert 165")
	}

	// The in-flight alert can be cancelled too, and the cancellation survives the
	// delivery bookkeeping that follows.
	cancelled, err := h.svc.CancelAlert(ctx, operator, 165)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusCancelled, cancelled.Status)

	release()
	res := <-slow
	require.NoError(t, res.err)
	assert.Equal(t, models.AlertStatusCancelled, res.alert.Status)

	stored, err := h.store.GetAlert(ctx, 165)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusCancelled, stored.Status)
	assert.Equal(t, 0, stored.DeliveryStats.Pending)
	assert.Zero(t, h.svc.alertLocks.size())
}

func TestCustomCancelWindow(t *testing.T) {
	h := newHarness()
	h.svc.cancelWindow = time.Minute
	ctx := context.Background()
	alert, err := h.svc.CreateAlert(ctx, operator, sendRequest(models.Targeting{All: true}))
	require.NoError(t, err)

	h.clock.Advance(2 * time.Minute)
	_, err = h.svc.CancelAlert(ctx, operator, alert.ID)
	require.ErrorIs(t, err, ErrCancellationWindowExpired)
}

func TestUpdateAlertContentFreezesOnceSent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	title := "Updated title"

	draft, err := h.svc.CreateAlert(ctx, operator, draftRequest())
	require.NoError(t, err)
	updated, err := h.svc.UpdateAlert(ctx, draft.ID, &models.UpdateAlertRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)

	sent, err := h.svc.CreateAlert(ctx, operator, sendRequest(models.Targeting{All: true}))
	require.NoError(t, err)
	_, err = h.svc.UpdateAlert(ctx, sent.ID, &models.UpdateAlertRequest{Title: &title})
	require.ErrorIs(t, err, ErrImmutableSentAlert)

	channels := []models.Channel{models.ChannelSMS}
	_, err = h.svc.UpdateAlert(ctx, sent.ID, &models.UpdateAlertRequest{Channels: &channels})
	require.ErrorIs(t, err, ErrImmutableSentAlert)

	stored, _ := h.store.GetAlert(ctx, sent.ID)
	assert.Equal(t, "Boil water notice", stored.Title)
}

func TestUpdateAlertStatusPatch(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	draft, err := h.svc.CreateAlert(ctx, operator, draftRequest())
	require.NoError(t, err)

	pending := models.AlertStatusPending
	updated, err := h.svc.UpdateAlert(ctx, draft.ID, &models.UpdateAlertRequest{Status: &pending})
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusPending, updated.Status)

	sent := models.AlertStatusSent
	_, err = h.svc.UpdateAlert(ctx, draft.ID, &models.UpdateAlertRequest{Status: &sent})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdateTerminalAlertRejected(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	alert, err := h.svc.CreateAlert(ctx, operator, sendRequest(models.Targeting{All: true}))
	require.NoError(t, err)
	_, err = h.svc.CancelAlert(ctx, operator, alert.ID)
	require.NoError(t, err)

	_, err = h.svc.UpdateAlert(ctx, alert.ID, &models.UpdateAlertRequest{})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdateAlertValidatesPatch(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	draft, err := h.svc.CreateAlert(ctx, operator, draftRequest())
	require.NoError(t, err)

	empty := " "
	none := []models.Channel{}
	_, err = h.svc.UpdateAlert(ctx, draft.ID, &models.UpdateAlertRequest{Message: &empty, Channels: &none})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "message")
	assert.Contains(t, verr.Fields, "channels")
}

func TestSendAlertPublishesDraft(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	draft, err := h.svc.CreateAlert(ctx, operator, draftRequest())
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	sent, err := h.svc.SendAlert(ctx, operator, draft.ID)
	require.NoError(t, err)

	assert.Equal(t, models.AlertStatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	assert.Equal(t, h.clock.Now(), *sent.SentAt)
	assert.Equal(t, models.DeliveryStats{Total: 3, Sent: 3}, sent.DeliveryStats)
	assert.Len(t, h.publisher.named(models.EventPersonalAlert), 3)

	_, err = h.svc.SendAlert(ctx, operator, draft.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestDeleteAlertIgnoresStatus(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	alert, err := h.svc.CreateAlert(ctx, operator, sendRequest(models.Targeting{All: true}))
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteAlert(ctx, alert.ID))
	_, err = h.svc.GetAlert(ctx, alert.ID)
	require.ErrorIs(t, err, ErrAlertNotFound)
	require.ErrorIs(t, h.svc.DeleteAlert(ctx, alert.ID), ErrAlertNotFound)
}

func TestListAlertsRejectsUnknownStatus(t *testing.T) {
	h := newHarness()
	_, err := h.svc.ListAlerts(context.Background(), models.AlertFilter{Status: "archived"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestGetAnalytics(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.fail(10)

	_, err := h.svc.CreateAlert(ctx, operator, sendRequest(models.Targeting{Roles: []models.Role{models.RoleSubscriber}}))
	require.NoError(t, err)
	second, err := h.svc.CreateAlert(ctx, operator, sendRequest(models.Targeting{Roles: []models.Role{models.RoleOperator}}))
	require.NoError(t, err)
	_, err = h.svc.CreateAlert(ctx, operator, draftRequest())
	require.NoError(t, err)
	_, err = h.svc.AcknowledgeAlert(ctx, second.ID, 2, "")
	require.NoError(t, err)

	stats, err := h.svc.GetAnalytics(ctx, models.AlertFilter{})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalAlerts)
	assert.Equal(t, 2, stats.ByStatus[models.AlertStatusSent])
	assert.Equal(t, 1, stats.ByStatus[models.AlertStatusDraft])
	assert.Equal(t, 3, stats.BySeverity[models.AlertSeverityHigh])
	assert.Equal(t, 3, stats.ByChannel[models.ChannelEmail])
	assert.Equal(t, 5, stats.TotalRecipients)
	assert.Equal(t, 4, stats.SentNotifications)
	assert.Equal(t, 1, stats.FailedNotifications)
	assert.Equal(t, 1, stats.TotalAcknowledgments)
	assert.InDelta(t, 80.0, stats.DeliverySuccessRate, 0.001)
}

func TestGetAnalyticsEmpty(t *testing.T) {
	h := newHarness()
	stats, err := h.svc.GetAnalytics(context.Background(), models.AlertFilter{})
	require.NoError(t, err)
	assert.Zero(t, stats.TotalAlerts)
	assert.Zero(t, stats.DeliverySuccessRate)
}

func TestPublisherPanicDoesNotFailOperation(t *testing.T) {
	h := newHarness()
	h.svc.publisher = panickingPublisher{}

	alert, err := h.svc.CreateAlert(context.Background(), operator, sendRequest(models.Targeting{All: true}))
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusSent, alert.Status)
}

type panickingPublisher struct{}

func (panickingPublisher) Broadcast(string, any)                    { panic("transport gone") }
func (panickingPublisher) PublishToRoom(string, string, any)        { panic("transport gone") }
func (panickingPublisher) PublishToUser(models.UserID, string, any) { panic("transport gone") }
