package recipients

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirenhq/siren/pkg/models"
)

type fakeUserStore struct {
	mu          sync.Mutex
	users       []*models.User
	roleLookups map[models.Role]int
	idLookups   int
	listErr     error
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	return &fakeUserStore{users: users, roleLookups: make(map[models.Role]int)}
}

func (f *fakeUserStore) GetUser(_ context.Context, id models.UserID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idLookups++
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeUserStore) ListUsersByRole(_ context.Context, role models.Role) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.roleLookups[role]++
	var out []*models.User
	for _, u := range f.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUserStore) ListUsers(_ context.Context) ([]*models.User, error) {
	return f.users, nil
}

func user(id int64, role models.Role) *models.User {
	return &models.User{ID: models.UserID(id), Username: "user", Email: "u@example.com", Role: role, EmailEnabled: true}
}

func ids(recipients []models.Recipient) []models.UserID {
	out := make([]models.UserID, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, r.ID)
	}
	return out
}

func TestResolveRolesAndSpecificDeduplicates(t *testing.T) {
	store := newFakeUserStore(
		user(1, models.RoleAdmin),
		user(2, models.RoleAdmin),
		user(5, models.RoleOperator),
		user(6, models.RoleOperator),
		user(9, models.RoleSubscriber),
	)
	r := New(Options{Store: store})

	got, err := r.Resolve(context.Background(), models.Targeting{
		Roles:    []models.Role{models.RoleAdmin, models.RoleOperator},
		Specific: []models.UserID{5},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []models.UserID{1, 2, 5, 6}, ids(got))
}

func TestResolveNoDuplicatesAcrossOverlappingCriteria(t *testing.T) {
	store := newFakeUserStore(
		user(1, models.RoleAdmin),
		user(2, models.RoleOperator),
		user(3, models.RoleSubscriber),
	)
	r := New(Options{Store: store})

	got, err := r.Resolve(context.Background(), models.Targeting{
		Roles:    []models.Role{models.RoleAdmin, models.RoleAdmin, models.RoleSubscriber},
		Specific: []models.UserID{1, 3, 3},
		UserIDs:  []models.UserID{2, 1},
		All:      true,
	})
	require.NoError(t, err)

	seen := make(map[models.UserID]bool)
	for _, rec := range got {
		assert.False(t, seen[rec.ID], "duplicate recipient %d", rec.ID)
		seen[rec.ID] = true
	}
	assert.Len(t, got, 3)
	assert.Equal(t, 1, store.roleLookups[models.RoleAdmin], "one lookup per distinct role")
}

func TestResolveUserIDsSynonym(t *testing.T) {
	store := newFakeUserStore(user(4, models.RoleSubscriber), user(7, models.RoleSubscriber))
	r := New(Options{Store: store})

	got, err := r.Resolve(context.Background(), models.Targeting{UserIDs: []models.UserID{7}})
	require.NoError(t, err)
	assert.Equal(t, []models.UserID{7}, ids(got))
}

func TestResolveSkipsUnknownIDs(t *testing.T) {
	store := newFakeUserStore(user(4, models.RoleSubscriber))
	r := New(Options{Store: store})

	got, err := r.Resolve(context.Background(), models.Targeting{Specific: []models.UserID{4, 404}})
	require.NoError(t, err)
	assert.Equal(t, []models.UserID{4}, ids(got))
}

func TestResolveEmptyTargeting(t *testing.T) {
	r := New(Options{Store: newFakeUserStore(user(1, models.RoleAdmin))})

	got, err := r.Resolve(context.Background(), models.Targeting{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestResolveAll(t *testing.T) {
	store := newFakeUserStore(user(1, models.RoleAdmin), user(2, models.RoleSubscriber))
	r := New(Options{Store: store})

	got, err := r.Resolve(context.Background(), models.Targeting{All: true})
	require.NoError(t, err)
	assert.Equal(t, []models.UserID{1, 2}, ids(got))
}

func TestResolvePropagatesStoreErrors(t *testing.T) {
	store := newFakeUserStore()
	store.listErr = errors.New("disk on fire")
	r := New(Options{Store: store})

	_, err := r.Resolve(context.Background(), models.Targeting{Roles: []models.Role{models.RoleAdmin}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestResolveCachesRoleLookups(t *testing.T) {
	store := newFakeUserStore(user(1, models.RoleOperator))
	r := New(Options{Store: store, CacheTTL: time.Minute})
	defer r.Close()

	targeting := models.Targeting{Roles: []models.Role{models.RoleOperator}}
	for i := 0; i < 3; i++ {
		got, err := r.Resolve(context.Background(), targeting)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}
	assert.Equal(t, 1, store.roleLookups[models.RoleOperator])
}

func TestResolveWithoutCacheSeesMembershipChanges(t *testing.T) {
	store := newFakeUserStore(user(1, models.RoleOperator), user(2, models.RoleOperator))
	r := New(Options{Store: store})
	defer r.Close()

	targeting := models.Targeting{Roles: []models.Role{models.RoleOperator}}
	got, err := r.Resolve(context.Background(), targeting)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	store.mu.Lock()
	store.users = []*models.User{user(2, models.RoleOperator), user(3, models.RoleOperator), user(4, models.RoleOperator)}
	store.mu.Unlock()

	got, err = r.Resolve(context.Background(), targeting)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.UserID{2, 3, 4}, ids(got))
	assert.Equal(t, 2, store.roleLookups[models.RoleOperator])
}

func TestResolveProjectsRecipient(t *testing.T) {
	u := &models.User{ID: 3, Username: "dispatch", Email: "d@example.com", Phone: "+15550100", Role: models.RoleOperator, SMSEnabled: true}
	r := New(Options{Store: newFakeUserStore(u)})

	got, err := r.Resolve(context.Background(), models.Targeting{Specific: []models.UserID{3}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, u.Recipient(), got[0])
	assert.True(t, got[0].OptedIn(models.ChannelSMS))
	assert.False(t, got[0].OptedIn(models.ChannelEmail))
}
