package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirenhq/siren/internal/config"
	"github.com/sirenhq/siren/internal/notify"
	"github.com/sirenhq/siren/pkg/models"
)

type mapSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *mapSettings) set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *mapSettings) GetSettingWithDefault(_ context.Context, key, defaultValue string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v
	}
	return defaultValue
}

func (m *mapSettings) GetIntSetting(ctx context.Context, key string, defaultValue int) int {
	v, err := strconv.Atoi(m.GetSettingWithDefault(ctx, key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func (m *mapSettings) GetBoolSetting(ctx context.Context, key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(m.GetSettingWithDefault(ctx, key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func (m *mapSettings) GetDurationSetting(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(m.GetSettingWithDefault(ctx, key, defaultValue.String()))
	if err != nil {
		return defaultValue
	}
	return v
}

func testApp(cfg *config.Config) *App {
	return &App{Config: cfg, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func reachableEverywhere() models.Recipient {
	return models.Recipient{
		ID:           42,
		Role:         models.RoleSubscriber,
		Email:        "resident@example.com",
		Phone:        "+15550100",
		EmailEnabled: true,
		SMSEnabled:   true,
		PushEnabled:  true,
	}
}

func dispatchAll(t *testing.T, a *App, settings notify.SettingsReader) ([]notify.Result, models.DeliveryStats) {
	t.Helper()
	d := notify.NewDispatcher(notify.DispatcherOptions{
		Senders: a.buildSenders(settings),
		Timeout: 2 * time.Second,
		Logger:  a.Logger,
	})
	recipients := []models.Recipient{reachableEverywhere()}
	content := notify.Content{AlertID: 7, Title: "Flood warning", Message: "Move to high ground.", Severity: models.AlertSeverityCritical}
	results := d.Dispatch(context.Background(), content, models.AllChannels, recipients)
	return results, notify.Summarize(recipients, results)
}

func TestUnconfiguredProvidersFail(t *testing.T) {
	a := testApp(config.Default())
	settings := &mapSettings{values: map[string]string{}}

	results, stats := dispatchAll(t, a, settings)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.False(t, r.Success, "channel %s", r.Channel)
		assert.Contains(t, r.Error, "not configured", "channel %s", r.Channel)
	}
	assert.Equal(t, models.DeliveryStats{Total: 1, Sent: 0, Failed: 1}, stats)
}

func TestProviderSettingsApplyWithoutRestart(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []map[string]any
		auth   []string
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies = append(bodies, body)
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer gateway.Close()

	a := testApp(config.Default())
	settings := &mapSettings{values: map[string]string{}}
	senders := a.buildSenders(settings)
	d := notify.NewDispatcher(notify.DispatcherOptions{Senders: senders, Timeout: 2 * time.Second, Logger: a.Logger})
	recipients := []models.Recipient{reachableEverywhere()}
	content := notify.Content{AlertID: 7, Title: "Flood warning", Message: "Move to high ground.", Severity: models.AlertSeverityCritical}

	results := d.Dispatch(context.Background(), content, []models.Channel{models.ChannelSMS}, recipients)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)

	settings.set("sms.gateway_url", gateway.URL)
	settings.set("sms.token", "s3cret")
	results = d.Dispatch(context.Background(), content, []models.Channel{models.ChannelSMS}, recipients)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success, results[0].Error)
	assert.Equal(t, models.DeliveryStats{Total: 1, Sent: 1}, notify.Summarize(recipients, results))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	assert.Equal(t, "+15550100", bodies[0]["to"])
	assert.Equal(t, "SIREN", bodies[0]["from"])
	assert.Equal(t, "Bearer s3cret", auth[0])
}

func TestDryRunLogsEveryChannel(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.DryRun = true
	a := testApp(cfg)

	results, stats := dispatchAll(t, a, &mapSettings{values: map[string]string{}})
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success, "channel %s", r.Channel)
	}
	assert.Equal(t, models.DeliveryStats{Total: 1, Sent: 1}, stats)
}
