package cache

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-board/pkg/log"
	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
	"github.com/weiawesome/wes-board/realtime-service/internal/repository"
)

// CachedUserStore reads identities through the cache. A broken cache only
// costs a database round trip; it never fails a lookup.
type CachedUserStore struct {
	users repository.UserRepository
	cache IdentityCache
	ttl   time.Duration
}

// NewCachedUserStore decorates users with cache.
func NewCachedUserStore(users repository.UserRepository, cache IdentityCache, ttl time.Duration) *CachedUserStore {
	return &CachedUserStore{users: users, cache: cache, ttl: ttl}
}

func (s *CachedUserStore) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	l := log.Ctx(ctx)

	identity, err := s.cache.Get(ctx, id)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		l.Warn().Err(err).Str(log.FieldUserID, id).Msg("identity cache read failed")
	}

	identity, err = s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, identity, s.ttl); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, id).Msg("identity cache write failed")
	}
	return identity, nil
}
