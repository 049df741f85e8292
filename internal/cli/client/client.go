// Package client provides the HTTP client for the siren API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirenhq/siren/internal/cli/config"
	"github.com/sirenhq/siren/pkg/models"
)

// Client is the siren API client
type Client struct {
	baseURL    string
	actorID    int64
	actorRole  string
	httpClient *http.Client
}

// New creates a new siren API client
func New(cfg *config.Config) (*Client, error) {
	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	return &Client{
		baseURL:   strings.TrimSuffix(cfg.Server.URL, "/"),
		actorID:   cfg.Actor.ID,
		actorRole: cfg.Actor.Role,
		httpClient: &http.Client{
			Timeout: cfg.Server.Timeout,
		},
	}, nil
}

// RequestOptions describes a single API call.
type RequestOptions struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// APIError represents an error response from the API
type APIError struct {
	Status     string            `json:"status"`
	Message    string            `json:"message"`
	ErrorType  string            `json:"error_type,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	StatusCode int               `json:"-"`
}

func (e *APIError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
	}
	return e.Message
}

// Do performs an HTTP request to the siren API
func (c *Client) Do(ctx context.Context, opts RequestOptions) (*http.Response, error) {
	reqURL, err := url.Parse(c.baseURL + opts.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if len(opts.Query) > 0 {
		reqURL.RawQuery = opts.Query.Encode()
	}

	var body io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "siren-cli/1.0")
	if c.actorID > 0 {
		req.Header.Set("X-Actor-ID", strconv.FormatInt(c.actorID, 10))
	}
	if c.actorRole != "" {
		req.Header.Set("X-Actor-Role", c.actorRole)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// DoJSON performs a request and decodes the data field of the success envelope
// into result.
func (c *Client) DoJSON(ctx context.Context, opts RequestOptions, result any) error {
	resp, err := c.Do(ctx, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err != nil || apiErr.Message == "" {
			return &APIError{
				Status:     "error",
				Message:    strings.TrimSpace(string(respBody)),
				StatusCode: resp.StatusCode,
			}
		}
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	if result == nil {
		return nil
	}
	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, result); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// --- API Methods ---

// ListAlerts returns alerts matching filter, newest first.
func (c *Client) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	var alerts []*models.Alert
	err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/alerts",
		Query:  alertQuery(filter),
	}, &alerts)
	return alerts, err
}

// GetAlert returns a single alert.
func (c *Client) GetAlert(ctx context.Context, id models.AlertID) (*models.Alert, error) {
	var alert models.Alert
	if err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/api/v1/alerts/%d", id),
	}, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// CreateAlert creates an alert. Without a status the server sends it immediately.
func (c *Client) CreateAlert(ctx context.Context, req *models.CreateAlertRequest) (*models.Alert, error) {
	var alert models.Alert
	if err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   "/api/v1/alerts",
		Body:   req,
	}, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// SendAlert publishes a draft or pending alert.
func (c *Client) SendAlert(ctx context.Context, id models.AlertID) (*models.Alert, error) {
	return c.alertAction(ctx, id, "send")
}

// CancelAlert withdraws a recently sent alert.
func (c *Client) CancelAlert(ctx context.Context, id models.AlertID) (*models.Alert, error) {
	return c.alertAction(ctx, id, "cancel")
}

func (c *Client) alertAction(ctx context.Context, id models.AlertID, action string) (*models.Alert, error) {
	var alert models.Alert
	if err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/api/v1/alerts/%d/%s", id, action),
	}, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// AcknowledgeAlert records the configured actor's acknowledgment.
func (c *Client) AcknowledgeAlert(ctx context.Context, id models.AlertID, notes string) (*models.Acknowledgment, error) {
	var ack models.Acknowledgment
	if err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/api/v1/alerts/%d/acknowledge", id),
		Body:   models.AcknowledgeRequest{Notes: notes},
	}, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// GetAnalytics returns delivery and acknowledgment statistics.
func (c *Client) GetAnalytics(ctx context.Context, filter models.AlertFilter) (*models.AlertAnalytics, error) {
	var analytics models.AlertAnalytics
	if err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/alerts/analytics",
		Query:  alertQuery(filter),
	}, &analytics); err != nil {
		return nil, err
	}
	return &analytics, nil
}

// ListIncidents returns incidents, optionally narrowed to one status.
func (c *Client) ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	var incidents []*models.Incident
	err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/incidents",
		Query:  query,
	}, &incidents)
	return incidents, err
}

func alertQuery(filter models.AlertFilter) url.Values {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.Severity != "" {
		query.Set("severity", string(filter.Severity))
	}
	if filter.CreatedBy > 0 {
		query.Set("created_by", strconv.FormatInt(int64(filter.CreatedBy), 10))
	}
	if filter.Since != nil {
		query.Set("since", filter.Since.UTC().Format(time.RFC3339))
	}
	if filter.Until != nil {
		query.Set("until", filter.Until.UTC().Format(time.RFC3339))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	return query
}

// Setting is a runtime setting as returned by the admin API.
type Setting struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	MaskedValue string `json:"masked_value,omitempty"`
	ValueType   string `json:"value_type"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	IsSensitive bool   `json:"is_sensitive"`
	UpdatedAt   string `json:"updated_at"`
}

// SettingsCategory groups settings sharing a key prefix.
type SettingsCategory struct {
	Category string    `json:"category"`
	Settings []Setting `json:"settings"`
}

// ListSettings returns every stored runtime setting grouped by category.
func (c *Client) ListSettings(ctx context.Context) ([]SettingsCategory, error) {
	var groups []SettingsCategory
	err := c.DoJSON(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   "/api/v1/admin/settings",
	}, &groups)
	return groups, err
}

// UpdateSetting stores a runtime setting. The server applies it on its next start.
func (c *Client) UpdateSetting(ctx context.Context, key, value string) error {
	return c.DoJSON(ctx, RequestOptions{
		Method: http.MethodPut,
		Path:   "/api/v1/admin/settings/" + url.PathEscape(key),
		Body:   map[string]string{"value": value},
	}, nil)
}

// DeleteSetting removes a runtime setting so the static configuration applies again.
func (c *Client) DeleteSetting(ctx context.Context, key string) error {
	return c.DoJSON(ctx, RequestOptions{
		Method: http.MethodDelete,
		Path:   "/api/v1/admin/settings/" + url.PathEscape(key),
	}, nil)
}
