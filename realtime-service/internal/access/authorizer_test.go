package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
)

type mockMembershipStore struct {
	mock.Mock
}

func (m *mockMembershipStore) HasAccess(ctx context.Context, projectID, userID string) (bool, error) {
	args := m.Called(ctx, projectID, userID)
	return args.Bool(0), args.Error(1)
}

var alice = &domain.Identity{ID: "u1"}

func TestAllowAll(t *testing.T) {
	ok, err := AllowAll{}.CanJoin(context.Background(), alice, "anything")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProjectMembers(t *testing.T) {
	store := new(mockMembershipStore)
	store.On("HasAccess", mock.Anything, "p1", "u1").Return(true, nil)
	store.On("HasAccess", mock.Anything, "p2", "u1").Return(false, nil)
	store.On("HasAccess", mock.Anything, "p3", "u1").Return(false, errors.New("db down"))

	authz := NewProjectMembers(store)
	ctx := context.Background()

	ok, err := authz.CanJoin(ctx, alice, "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = authz.CanJoin(ctx, alice, "p2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = authz.CanJoin(ctx, alice, "p3")
	assert.Error(t, err)

	ok, err = authz.CanJoin(ctx, nil, "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	store.AssertNumberOfCalls(t, "HasAccess", 3)
}
