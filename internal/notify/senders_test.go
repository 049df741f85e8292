package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirenhq/siren/pkg/models"
)

func TestSMSSenderPostsToGateway(t *testing.T) {
	var got smsPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSMSSender(GatewayOptions{URL: srv.URL, Token: "secret"}, "SIREN")
	err := s.Send(context.Background(), models.Recipient{ID: 4, Phone: "+15550100"}, Content{
		AlertID:  12,
		Title:    "Flood",
		Message:  "Move to higher ground",
		Severity: models.AlertSeverityHigh,
	})

	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "+15550100", got.To)
	assert.Equal(t, "SIREN", got.From)
	assert.Equal(t, int64(12), got.AlertID)
	assert.Equal(t, "[HIGH] Flood: Move to higher ground", got.Body)
}

func TestSMSSenderRequiresPhone(t *testing.T) {
	s := NewSMSSender(GatewayOptions{URL: "http://127.0.0.1:1"}, "")
	err := s.Send(context.Background(), models.Recipient{ID: 4}, Content{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no phone number")
}

func TestPushSenderReportsGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "device not registered", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewPushSender(GatewayOptions{URL: srv.URL, Timeout: time.Second})
	err := s.Send(context.Background(), models.Recipient{ID: 4}, Content{AlertID: 1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "device not registered")
}

func TestPushSenderIncludesIncident(t *testing.T) {
	var got pushPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	incident := models.IncidentID(7)
	s := NewPushSender(GatewayOptions{URL: srv.URL})
	require.NoError(t, s.Send(context.Background(), models.Recipient{ID: 4}, Content{AlertID: 3, FromIncident: &incident}))

	assert.Equal(t, int64(4), got.UserID)
	assert.Equal(t, "3", got.Data["alert_id"])
	assert.Equal(t, "7", got.Data["incident_id"])
}

func TestGatewayWithoutURL(t *testing.T) {
	s := NewPushSender(GatewayOptions{})
	err := s.Send(context.Background(), models.Recipient{ID: 1}, Content{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestEmailSenderRequiresConfiguration(t *testing.T) {
	s := NewEmailSender(EmailSenderOptions{})
	assert.False(t, s.Configured())

	err := s.Send(context.Background(), models.Recipient{ID: 1, Email: "a@example.com"}, Content{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp is not configured")
}

func TestEmailMessageFormat(t *testing.T) {
	s := NewEmailSender(EmailSenderOptions{Host: "smtp.example.com", Port: 587, From: "alerts@example.com", ReplyTo: "ops@example.com"})
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	msg := string(s.buildMessage(Content{
		AlertID:  9,
		Title:    "Gas leak",
		Message:  "Evacuate building C",
		Severity: models.AlertSeverityCritical,
		SentAt:   sentAt,
	}, "resident@example.com"))

	assert.Contains(t, msg, "Subject: [CRITICAL] Gas leak\r\n")
	assert.Contains(t, msg, "To: resident@example.com\r\n")
	assert.Contains(t, msg, "Reply-To: ops@example.com")
	assert.True(t, strings.HasSuffix(msg, "Sent At: 2026-03-01T12:00:00Z\n"))
	assert.Contains(t, msg, "Evacuate building C")
}

func TestLogSenderSucceeds(t *testing.T) {
	s := NewLogSender(models.ChannelSMS, nil)
	assert.NoError(t, s.Send(context.Background(), models.Recipient{ID: 1}, Content{}))
}
