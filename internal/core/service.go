// Package core implements the alert distribution engine: the alert lifecycle,
// acknowledgments, templates and incident escalation.
package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sirenhq/siren/internal/notify"
	"github.com/sirenhq/siren/pkg/models"
)

// DefaultCancelWindow is how long after sending an alert may still be cancelled.
const DefaultCancelWindow = 5 * time.Minute

// AlertStore persists alerts and their acknowledgments.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	GetAlert(ctx context.Context, id models.AlertID) (*models.Alert, error)
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error)
	UpdateAlert(ctx context.Context, alert *models.Alert) error
	// RecordDelivery stores final delivery stats and, when markFailed is set and the
	// alert is still sent, moves it to failed. It returns the resulting status.
	RecordDelivery(ctx context.Context, id models.AlertID, stats models.DeliveryStats, markFailed bool, at time.Time) (models.AlertStatus, error)
	// CancelAlert cancels the alert only while its status is sent and returns
	// models.ErrPrecondition otherwise.
	CancelAlert(ctx context.Context, id models.AlertID, at time.Time) error
	DeleteAlert(ctx context.Context, id models.AlertID) error
	// AddAcknowledgment inserts ack only while the alert is sent (models.ErrPrecondition)
	// and the user has not acknowledged it yet (models.ErrConflict).
	AddAcknowledgment(ctx context.Context, id models.AlertID, ack models.Acknowledgment) error
}

// IncidentStore persists incidents including their response and status logs.
type IncidentStore interface {
	CreateIncident(ctx context.Context, incident *models.Incident) error
	GetIncident(ctx context.Context, id models.IncidentID) (*models.Incident, error)
	ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error)
	UpdateIncident(ctx context.Context, incident *models.Incident) error
	DeleteIncident(ctx context.Context, id models.IncidentID) error
}

// TemplateStore persists notification templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, tmpl *models.NotificationTemplate) error
	GetTemplate(ctx context.Context, id models.TemplateID) (*models.NotificationTemplate, error)
	ListTemplates(ctx context.Context, filter models.TemplateFilter) ([]*models.NotificationTemplate, error)
	UpdateTemplate(ctx context.Context, tmpl *models.NotificationTemplate) error
	DeleteTemplate(ctx context.Context, id models.TemplateID) error
}

// Store is the storage collaborator of the engine.
type Store interface {
	AlertStore
	IncidentStore
	TemplateStore
}

// Resolver turns targeting into a deduplicated recipient list.
type Resolver interface {
	Resolve(ctx context.Context, targeting models.Targeting) ([]models.Recipient, error)
}

// Dispatcher delivers content to recipients over channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, content notify.Content, channels []models.Channel, recipients []models.Recipient) []notify.Result
}

// Publisher is the fire-and-forget realtime transport.
type Publisher interface {
	Broadcast(event string, payload any)
	PublishToRoom(room, event string, payload any)
	PublishToUser(userID models.UserID, event string, payload any)
}

// Options configures a Service.
type Options struct {
	Store        Store
	Resolver     Resolver
	Dispatcher   Dispatcher
	Publisher    Publisher
	Logger       *slog.Logger
	CancelWindow time.Duration
	Now          func() time.Time
}

// Service orchestrates the engine's components.
type Service struct {
	store        Store
	resolver     Resolver
	dispatcher   Dispatcher
	publisher    Publisher
	log          *slog.Logger
	cancelWindow time.Duration
	now          func() time.Time

	alertLocks    keyedLock
	incidentLocks keyedLock
}

// New constructs a Service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := opts.CancelWindow
	if window <= 0 {
		window = DefaultCancelWindow
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Service{
		store:        opts.Store,
		resolver:     opts.Resolver,
		dispatcher:   opts.Dispatcher,
		publisher:    publisher,
		log:          logger.With("component", "alert_engine"),
		cancelWindow: window,
		now:          now,
	}
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// emit runs a publish call; a misbehaving transport is logged and never fails the caller.
func (s *Service) emit(event string, publish func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("realtime publish failed", "event", event, "panic", r)
		}
	}()
	publish()
}

// keyedLock serializes writers per record id. An entry exists only while the id is
// held or awaited.
type keyedLock struct {
	mu    sync.Mutex
	locks map[int64]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (l *keyedLock) lock(id int64) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[int64]*keyedEntry)
	}
	e, ok := l.locks[id]
	if !ok {
		e = &keyedEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *keyedLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

type nopPublisher struct{}

func (nopPublisher) Broadcast(string, any)                    {}
func (nopPublisher) PublishToRoom(string, string, any)        {}
func (nopPublisher) PublishToUser(models.UserID, string, any) {}
