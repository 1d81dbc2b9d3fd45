package cache

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// IdentityCache stores identities by user id.
type IdentityCache interface {
	Get(ctx context.Context, userID string) (*domain.Identity, error)
	Set(ctx context.Context, identity *domain.Identity, ttl time.Duration) error
	Delete(ctx context.Context, userIDs ...string) error
	Close() error
}
