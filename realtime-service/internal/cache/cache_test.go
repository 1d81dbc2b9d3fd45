package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
	"github.com/weiawesome/wes-board/realtime-service/internal/repository"
)

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*domain.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestCache(t *testing.T) (*miniredis.Miniredis, *RedisIdentityCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisIdentityCache(client, "board:user")
	t.Cleanup(func() { c.Close() })
	return mr, c
}

var alice = &domain.Identity{ID: "u1", FirstName: "Alice", LastName: "Chen", Email: "alice@example.com"}

func TestRedisIdentityCache_RoundTrip(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, alice, time.Minute))
	assert.True(t, mr.Exists("board:user:id:u1"))
	assert.Equal(t, time.Minute, mr.TTL("board:user:id:u1"))

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	require.NoError(t, c.Delete(ctx, "u1"))
	_, err = c.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisIdentityCache_Expiry(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, alice, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := c.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisIdentityCache_CorruptEntry(t *testing.T) {
	mr, c := newTestCache(t)
	require.NoError(t, mr.Set("board:user:id:u1", "{not json"))

	_, err := c.Get(context.Background(), "u1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
}

func TestCachedUserStore_MissThenHit(t *testing.T) {
	_, c := newTestCache(t)
	repo := new(mockUserRepository)
	repo.On("GetByID", mock.Anything, "u1").Return(alice, nil).Once()

	store := NewCachedUserStore(repo, c, time.Minute)
	ctx := context.Background()

	got, err := store.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	got, err = store.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	repo.AssertExpectations(t)
}

func TestCachedUserStore_NotFoundNotCached(t *testing.T) {
	mr, c := newTestCache(t)
	repo := new(mockUserRepository)
	repo.On("GetByID", mock.Anything, "ghost").Return(nil, repository.ErrUserNotFound).Twice()

	store := NewCachedUserStore(repo, c, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := store.GetByID(context.Background(), "ghost")
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
	}
	assert.False(t, mr.Exists("board:user:id:ghost"))
	repo.AssertExpectations(t)
}

func TestCachedUserStore_CacheDownFallsThrough(t *testing.T) {
	mr, c := newTestCache(t)
	mr.Close()

	repo := new(mockUserRepository)
	repo.On("GetByID", mock.Anything, "u1").Return(alice, nil)

	store := NewCachedUserStore(repo, c, time.Minute)

	got, err := store.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, alice, got)
}
