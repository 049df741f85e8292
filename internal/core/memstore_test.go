package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sirenhq/siren/internal/notify"
	"github.com/sirenhq/siren/pkg/models"
)

// memStore is an in-memory Store with the same conditional-write semantics as the
// sqlite implementation.
type memStore struct {
	mu        sync.Mutex
	alerts    map[models.AlertID]*models.Alert
	incidents map[models.IncidentID]*models.Incident
	templates map[models.TemplateID]*models.NotificationTemplate
	nextID    int64

	failRecordDelivery error
	failUpdateIncident error
}

func newMemStore() *memStore {
	return &memStore{
		alerts:    map[models.AlertID]*models.Alert{},
		incidents: map[models.IncidentID]*models.Incident{},
		templates: map[models.TemplateID]*models.NotificationTemplate{},
		nextID:    100,
	}
}

func cloneAlert(a *models.Alert) *models.Alert {
	c := *a
	c.Channels = append([]models.Channel(nil), a.Channels...)
	c.Acknowledgments = append([]models.Acknowledgment{}, a.Acknowledgments...)
	return &c
}

func cloneIncident(i *models.Incident) *models.Incident {
	c := *i
	c.Responses = append([]models.IncidentResponse{}, i.Responses...)
	c.StatusUpdates = append([]models.IncidentStatusUpdate{}, i.StatusUpdates...)
	return &c
}

func cloneTemplate(t *models.NotificationTemplate) *models.NotificationTemplate {
	c := *t
	c.Variables = append([]string{}, t.Variables...)
	c.DefaultChannels = append([]models.Channel{}, t.DefaultChannels...)
	return &c
}

func (m *memStore) CreateAlert(_ context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	alert.ID = models.AlertID(m.nextID)
	m.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

func (m *memStore) GetAlert(_ context.Context, id models.AlertID) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneAlert(a), nil
}

func (m *memStore) ListAlerts(_ context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Alert
	for _, a := range m.alerts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		out = append(out, cloneAlert(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memStore) UpdateAlert(_ context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[alert.ID]; !ok {
		return models.ErrNotFound
	}
	m.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

func (m *memStore) RecordDelivery(_ context.Context, id models.AlertID, stats models.DeliveryStats, markFailed bool, at time.Time) (models.AlertStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRecordDelivery != nil {
		return "", m.failRecordDelivery
	}
	a, ok := m.alerts[id]
	if !ok {
		return "", models.ErrNotFound
	}
	a.DeliveryStats = stats
	if markFailed && a.Status == models.AlertStatusSent {
		a.Status = models.AlertStatusFailed
	}
	a.UpdatedAt = at
	return a.Status, nil
}

func (m *memStore) CancelAlert(_ context.Context, id models.AlertID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return models.ErrNotFound
	}
	if a.Status != models.AlertStatusSent {
		return models.ErrPrecondition
	}
	a.Status = models.AlertStatusCancelled
	a.CancelledAt = &at
	a.UpdatedAt = at
	return nil
}

func (m *memStore) DeleteAlert(_ context.Context, id models.AlertID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.alerts, id)
	return nil
}

func (m *memStore) AddAcknowledgment(_ context.Context, id models.AlertID, ack models.Acknowledgment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return models.ErrNotFound
	}
	if a.Status != models.AlertStatusSent {
		return models.ErrPrecondition
	}
	if a.HasAcknowledged(ack.UserID) {
		return models.ErrConflict
	}
	a.Acknowledgments = append(a.Acknowledgments, ack)
	return nil
}

func (m *memStore) CreateIncident(_ context.Context, incident *models.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	incident.ID = models.IncidentID(m.nextID)
	m.incidents[incident.ID] = cloneIncident(incident)
	return nil
}

func (m *memStore) GetIncident(_ context.Context, id models.IncidentID) (*models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.incidents[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneIncident(i), nil
}

func (m *memStore) ListIncidents(_ context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Incident
	for _, i := range m.incidents {
		if filter.Status != "" && i.Status != filter.Status {
			continue
		}
		out = append(out, cloneIncident(i))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	return out, nil
}

func (m *memStore) UpdateIncident(_ context.Context, incident *models.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdateIncident != nil {
		return m.failUpdateIncident
	}
	if _, ok := m.incidents[incident.ID]; !ok {
		return models.ErrNotFound
	}
	m.incidents[incident.ID] = cloneIncident(incident)
	return nil
}

func (m *memStore) DeleteIncident(_ context.Context, id models.IncidentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incidents[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.incidents, id)
	return nil
}

func (m *memStore) CreateTemplate(_ context.Context, tmpl *models.NotificationTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	tmpl.ID = models.TemplateID(m.nextID)
	m.templates[tmpl.ID] = cloneTemplate(tmpl)
	return nil
}

func (m *memStore) GetTemplate(_ context.Context, id models.TemplateID) (*models.NotificationTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneTemplate(t), nil
}

func (m *memStore) ListTemplates(_ context.Context, filter models.TemplateFilter) ([]*models.NotificationTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.NotificationTemplate
	for _, t := range m.templates {
		if filter.Category != "" && t.Category != filter.Category {
			continue
		}
		if filter.ActiveOnly && !t.IsActive {
			continue
		}
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateTemplate(_ context.Context, tmpl *models.NotificationTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[tmpl.ID]; !ok {
		return models.ErrNotFound
	}
	m.templates[tmpl.ID] = cloneTemplate(tmpl)
	return nil
}

func (m *memStore) DeleteTemplate(_ context.Context, id models.TemplateID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.templates, id)
	return nil
}

// staticResolver resolves roles from a fixed directory.
type staticResolver struct {
	byRole map[models.Role][]models.Recipient
	err    error
}

func (r *staticResolver) Resolve(_ context.Context, t models.Targeting) ([]models.Recipient, error) {
	if r.err != nil {
		return nil, r.err
	}
	seen := map[models.UserID]struct{}{}
	out := []models.Recipient{}
	add := func(rc models.Recipient) {
		if _, ok := seen[rc.ID]; ok {
			return
		}
		seen[rc.ID] = struct{}{}
		out = append(out, rc)
	}
	roles := t.Roles
	if t.All {
		roles = []models.Role{models.RoleAdmin, models.RoleOperator, models.RoleSubscriber}
	}
	for _, role := range roles {
		for _, rc := range r.byRole[role] {
			add(rc)
		}
	}
	for _, id := range t.ExplicitIDs() {
		for _, list := range r.byRole {
			for _, rc := range list {
				if rc.ID == id {
					add(rc)
				}
			}
		}
	}
	return out, nil
}

type publishedEvent struct {
	scope   string
	target  string
	event   string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) record(e publishedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Broadcast(event string, payload any) {
	p.record(publishedEvent{scope: "global", event: event, payload: payload})
}

func (p *recordingPublisher) PublishToRoom(room, event string, payload any) {
	p.record(publishedEvent{scope: "room", target: room, event: event, payload: payload})
}

func (p *recordingPublisher) PublishToUser(userID models.UserID, event string, payload any) {
	p.record(publishedEvent{scope: "user", target: models.UserRoom(userID), event: event, payload: payload})
}

func (p *recordingPublisher) named(event string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errProviderDown = errors.New("provider down")

type harness struct {
	svc       *Service
	store     *memStore
	publisher *recordingPublisher
	clock     *fakeClock
	resolver  *staticResolver
	// failing lists recipients whose every delivery attempt fails.
	failing map[models.UserID]bool
	gates   map[models.AlertID]*deliveryGate
	mu      sync.Mutex
}

// deliveryGate parks every delivery attempt for one alert until released.
type deliveryGate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func reachable(id int64, role models.Role) models.Recipient {
	return models.Recipient{
		ID:           models.UserID(id),
		Role:         role,
		Email:        "user@example.com",
		EmailEnabled: true,
		PushEnabled:  true,
	}
}

func newHarness() *harness {
	h := &harness{
		store:     newMemStore(),
		publisher: &recordingPublisher{},
		clock:     &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)},
		resolver: &staticResolver{byRole: map[models.Role][]models.Recipient{
			models.RoleAdmin:      {reachable(1, models.RoleAdmin)},
			models.RoleOperator:   {reachable(2, models.RoleOperator), reachable(5, models.RoleOperator)},
			models.RoleSubscriber: {reachable(10, models.RoleSubscriber), reachable(11, models.RoleSubscriber), reachable(12, models.RoleSubscriber)},
		}},
		failing: map[models.UserID]bool{},
		gates:   map[models.AlertID]*deliveryGate{},
	}
	send := notify.SenderFunc(func(_ context.Context, r models.Recipient, c notify.Content) error {
		h.mu.Lock()
		gate := h.gates[c.AlertID]
		failing := h.failing[r.ID]
		h.mu.Unlock()
		if gate != nil {
			gate.once.Do(func() { close(gate.entered) })
			<-gate.release
		}
		if failing {
			return errProviderDown
		}
		return nil
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.svc = New(Options{
		Store:    h.store,
		Resolver: h.resolver,
		Dispatcher: notify.NewDispatcher(notify.DispatcherOptions{
			Senders: map[models.Channel]notify.ChannelSender{
				models.ChannelEmail: send,
				models.ChannelPush:  send,
			},
			Logger: logger,
		}),
		Publisher: h.publisher,
		Logger:    logger,
		Now:       h.clock.Now,
	})
	return h
}

// hold blocks deliveries for id until the returned release func is called.
func (h *harness) hold(id models.AlertID) (<-chan struct{}, func()) {
	gate := &deliveryGate{entered: make(chan struct{}), release: make(chan struct{})}
	h.mu.Lock()
	h.gates[id] = gate
	h.mu.Unlock()
	var once sync.Once
	return gate.entered, func() { once.Do(func() { close(gate.release) }) }
}

func (h *harness) fail(ids ...models.UserID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		h.failing[id] = true
	}
}
