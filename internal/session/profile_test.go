package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/cache"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/config"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/entity"
	userrepo "github.com/Zannatul-Fahmida/e-commerce-core/internal/repository/user"
)

type mapStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
}

func newMapStore() *mapStore {
	return &mapStore{entries: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (s *mapStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.entries[key]; ok {
		return v, nil
	}
	return nil, cache.ErrCacheMiss
}

func (s *mapStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *mapStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

type mockSource struct {
	getByIDFn func(ctx context.Context, id uuid.UUID) (*entity.User, error)
	calls     int
}

func (m *mockSource) GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	m.calls++
	return m.getByIDFn(ctx, id)
}

func testConfig() config.Config {
	return config.Config{Session: config.Session{ProfileTTL: 30 * time.Second}}
}

func TestProfileCacheHitSkipsSource(t *testing.T) {
	user := &entity.User{ID: uuid.New(), FullName: "Test Customer", Email: "test@example.com"}
	source := &mockSource{
		getByIDFn: func(context.Context, uuid.UUID) (*entity.User, error) {
			return user, nil
		},
	}
	store := newMapStore()
	p := NewProfileCache(source, store, testConfig(), zap.NewNop())

	first, err := p.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, first.Email)
	assert.Equal(t, 1, source.calls)

	second, err := p.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, second.Email)
	assert.Equal(t, 1, source.calls, "second read comes from the cache")

	assert.Equal(t, 30*time.Second, store.ttls["session:profile:"+user.ID.String()])
}

func TestProfileCacheMissingUser(t *testing.T) {
	source := &mockSource{
		getByIDFn: func(context.Context, uuid.UUID) (*entity.User, error) {
			return nil, userrepo.ErrNotFound
		},
	}
	p := NewProfileCache(source, newMapStore(), testConfig(), zap.NewNop())

	_, err := p.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestProfileCacheInvalidateForcesReload(t *testing.T) {
	user := &entity.User{ID: uuid.New(), FullName: "Test Customer"}
	source := &mockSource{
		getByIDFn: func(context.Context, uuid.UUID) (*entity.User, error) {
			return user, nil
		},
	}
	p := NewProfileCache(source, newMapStore(), testConfig(), zap.NewNop())

	_, err := p.Get(context.Background(), user.ID)
	require.NoError(t, err)
	require.NoError(t, p.Invalidate(context.Background(), user.ID))

	_, err = p.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestProfileCacheCorruptEntryFallsThrough(t *testing.T) {
	user := &entity.User{ID: uuid.New(), FullName: "Test Customer"}
	source := &mockSource{
		getByIDFn: func(context.Context, uuid.UUID) (*entity.User, error) {
			return user, nil
		},
	}
	store := newMapStore()
	require.NoError(t, store.Set(context.Background(), "session:profile:"+user.ID.String(), []byte("{broken"), time.Minute))

	p := NewProfileCache(source, store, testConfig(), zap.NewNop())
	got, err := p.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.FullName, got.FullName)
	assert.Equal(t, 1, source.calls)
}
