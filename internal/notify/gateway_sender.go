package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sirenhq/siren/pkg/models"
)

// GatewayOptions configures an HTTP provider gateway.
type GatewayOptions struct {
	URL           string
	Token         string
	Timeout       time.Duration
	SkipTLSVerify bool
	Logger        *slog.Logger
}

// gateway posts JSON payloads to a provider endpoint.
type gateway struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

func newGateway(opts GatewayOptions, component string) gateway {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.SkipTLSVerify}, // #nosec G402
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return gateway{
		url:    strings.TrimSpace(opts.URL),
		token:  opts.Token,
		client: &http.Client{Timeout: timeout, Transport: transport},
		logger: logger.With("component", component),
	}
}

func (g gateway) post(ctx context.Context, payload any) error {
	if g.url == "" {
		return fmt.Errorf("gateway url is not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway payload: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		request.Header.Set("Authorization", "Bearer "+g.token)
	}
	response, err := g.client.Do(request)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	responseBody, readErr := io.ReadAll(io.LimitReader(response.Body, 4096))
	_ = response.Body.Close()
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		if readErr != nil {
			return fmt.Errorf("status %d (body read error: %v)", response.StatusCode, readErr)
		}
		trimmed := strings.TrimSpace(string(responseBody))
		if trimmed == "" {
			trimmed = response.Status
		}
		return fmt.Errorf("status %d (%s)", response.StatusCode, trimmed)
	}
	return nil
}

// SMSSender delivers alerts as text messages through an HTTP SMS gateway.
type SMSSender struct {
	gateway
	senderID string
	maxLen   int
}

type smsPayload struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Body    string `json:"body"`
	AlertID int64  `json:"alert_id"`
}

// NewSMSSender constructs an SMS sender; senderID is the originating number or name.
func NewSMSSender(opts GatewayOptions, senderID string) *SMSSender {
	return &SMSSender{gateway: newGateway(opts, "sms_sender"), senderID: senderID, maxLen: 480}
}

func (s *SMSSender) Send(ctx context.Context, recipient models.Recipient, content Content) error {
	if recipient.Phone == "" {
		return fmt.Errorf("recipient %d has no phone number", recipient.ID)
	}
	body := fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(content.Severity)), content.Title, content.Message)
	if len(body) > s.maxLen {
		body = body[:s.maxLen-3] + "..."
	}
	if err := s.post(ctx, smsPayload{
		To:      recipient.Phone,
		From:    s.senderID,
		Body:    body,
		AlertID: int64(content.AlertID),
	}); err != nil {
		return fmt.Errorf("sms delivery failed: %w", err)
	}
	return nil
}

// PushSender delivers alerts as mobile push notifications through an HTTP push gateway
// that maps user ids to registered devices.
type PushSender struct {
	gateway
}

type pushPayload struct {
	UserID int64             `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data"`
}

func NewPushSender(opts GatewayOptions) *PushSender {
	return &PushSender{gateway: newGateway(opts, "push_sender")}
}

func (s *PushSender) Send(ctx context.Context, recipient models.Recipient, content Content) error {
	data := map[string]string{
		"alert_id": fmt.Sprintf("%d", content.AlertID),
		"severity": string(content.Severity),
	}
	if content.FromIncident != nil {
		data["incident_id"] = fmt.Sprintf("%d", *content.FromIncident)
	}
	if err := s.post(ctx, pushPayload{
		UserID: int64(recipient.ID),
		Title:  content.Title,
		Body:   content.Message,
		Data:   data,
	}); err != nil {
		return fmt.Errorf("push delivery failed: %w", err)
	}
	return nil
}
