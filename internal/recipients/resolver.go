// Package recipients turns alert targeting into a deduplicated list of recipients.
package recipients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ttlcache "github.com/jellydator/ttlcache/v3"

	"github.com/sirenhq/siren/pkg/models"
)

// UserStore is the read-only view of users the resolver needs.
type UserStore interface {
	GetUser(ctx context.Context, id models.UserID) (*models.User, error)
	ListUsersByRole(ctx context.Context, role models.Role) ([]*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
}

// Options configures a Resolver.
type Options struct {
	Store  UserStore
	Logger *slog.Logger
	// CacheTTL enables caching of role lookups when positive.
	CacheTTL time.Duration
}

// Resolver resolves targeting specifications against the user store.
type Resolver struct {
	store     UserStore
	log       *slog.Logger
	roleCache *ttlcache.Cache[models.Role, []*models.User]
}

// New constructs a Resolver. Call Close to release the cache janitor.
func New(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		store: opts.Store,
		log:   logger.With("component", "recipient_resolver"),
	}
	if opts.CacheTTL > 0 {
		r.roleCache = ttlcache.New(
			ttlcache.WithTTL[models.Role, []*models.User](opts.CacheTTL),
			ttlcache.WithDisableTouchOnHit[models.Role, []*models.User](),
		)
		go r.roleCache.Start()
	}
	return r
}

// Close stops the cache janitor.
func (r *Resolver) Close() {
	if r.roleCache != nil {
		r.roleCache.Stop()
	}
}

// Resolve returns the recipients selected by t, each user at most once.
// Explicit ids that match no user are skipped. Empty targeting yields no recipients.
func (r *Resolver) Resolve(ctx context.Context, t models.Targeting) ([]models.Recipient, error) {
	if t.IsEmpty() {
		return []models.Recipient{}, nil
	}

	set := newRecipientSet()

	if t.All {
		users, err := r.store.ListUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
		set.addAll(users)
	}

	seenRoles := make(map[models.Role]struct{}, len(t.Roles))
	for _, role := range t.Roles {
		if _, ok := seenRoles[role]; ok {
			continue
		}
		seenRoles[role] = struct{}{}
		users, err := r.usersByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		set.addAll(users)
	}

	for _, id := range t.ExplicitIDs() {
		if set.contains(id) {
			continue
		}
		user, err := r.store.GetUser(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				r.log.Debug("skipping unknown recipient id", "user_id", id)
				continue
			}
			return nil, fmt.Errorf("failed to load user %d: %w", id, err)
		}
		set.add(user)
	}

	r.log.Debug("resolved recipients", "count", set.len(), "roles", len(seenRoles), "explicit", len(t.ExplicitIDs()), "all", t.All)
	return set.recipients(), nil
}

func (r *Resolver) usersByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	if r.roleCache != nil {
		if item := r.roleCache.Get(role); item != nil {
			return item.Value(), nil
		}
	}
	users, err := r.store.ListUsersByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with role %q: %w", role, err)
	}
	if r.roleCache != nil {
		r.roleCache.Set(role, users, ttlcache.DefaultTTL)
	}
	return users, nil
}

// recipientSet deduplicates users by id while keeping first-seen order.
type recipientSet struct {
	ids   map[models.UserID]struct{}
	items []models.Recipient
}

func newRecipientSet() *recipientSet {
	return &recipientSet{ids: make(map[models.UserID]struct{})}
}

func (s *recipientSet) add(u *models.User) {
	if u == nil {
		return
	}
	if _, ok := s.ids[u.ID]; ok {
		return
	}
	s.ids[u.ID] = struct{}{}
	s.items = append(s.items, u.Recipient())
}

func (s *recipientSet) addAll(users []*models.User) {
	for _, u := range users {
		s.add(u)
	}
}

func (s *recipientSet) contains(id models.UserID) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *recipientSet) len() int { return len(s.items) }

func (s *recipientSet) recipients() []models.Recipient {
	if s.items == nil {
		return []models.Recipient{}
	}
	return s.items
}
