package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/cache"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/config"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/entity"
	userrepo "github.com/Zannatul-Fahmida/e-commerce-core/internal/repository/user"
)

// ErrProfileNotFound is returned when the authenticated user has no profile.
var ErrProfileNotFound = errors.New("profile not found")

// Profiles is the lookup surface checkout uses for customer contact fields.
type Profiles interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.User, error)
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// ProfileSource is the backing store for profile lookups.
type ProfileSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
}

// ProfileCache fronts profile lookups with a short-TTL cache. The bound and
// invalidation window are explicit; the cache sits outside the reconciliation
// concurrency contract and a stale read only affects contact fields.
type ProfileCache struct {
	repo   ProfileSource
	store  cache.Store
	ttl    time.Duration
	logger *zap.Logger
}

// Module provides the profile cache to Fx.
var Module = fx.Provide(
	func(repo *userrepo.Repository, store cache.Store, cfg config.Config, logger *zap.Logger) *ProfileCache {
		return NewProfileCache(repo, store, cfg, logger)
	},
	func(c *ProfileCache) Profiles { return c },
)

// NewProfileCache wires the cache-backed profile lookup.
func NewProfileCache(repo ProfileSource, store cache.Store, cfg config.Config, logger *zap.Logger) *ProfileCache {
	return &ProfileCache{
		repo:   repo,
		store:  store,
		ttl:    cfg.Session.ProfileTTL,
		logger: logger,
	}
}

// Get returns the profile for id, consulting the cache first.
func (p *ProfileCache) Get(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	key := p.key(id)
	if bytes, err := p.store.Get(ctx, key); err == nil {
		var u entity.User
		if err := json.Unmarshal(bytes, &u); err == nil {
			return &u, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		p.logger.Warn("profile cache read failed", zap.String("user_id", id.String()), zap.Error(err))
	}

	u, err := p.repo.GetByID(ctx, id)
	if errors.Is(err, userrepo.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}

	if bytes, err := json.Marshal(u); err == nil {
		if err := p.store.Set(ctx, key, bytes, p.ttl); err != nil {
			p.logger.Warn("profile cache write failed", zap.String("user_id", id.String()), zap.Error(err))
		}
	}
	return u, nil
}

// Invalidate drops the cached profile, e.g. after a profile update elsewhere.
func (p *ProfileCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return p.store.Delete(ctx, p.key(id))
}

func (p *ProfileCache) key(id uuid.UUID) string {
	return "session:profile:" + id.String()
}
