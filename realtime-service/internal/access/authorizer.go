// Package access decides whether a connection may join a project room.
package access

import (
	"context"

	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
)

// Authorizer decides room joins.
type Authorizer interface {
	CanJoin(ctx context.Context, identity *domain.Identity, projectID string) (bool, error)
}

// AllowAll lets any authenticated connection join any project.
type AllowAll struct{}

func (AllowAll) CanJoin(context.Context, *domain.Identity, string) (bool, error) {
	return true, nil
}

// MembershipStore answers whether a user belongs to a project.
type MembershipStore interface {
	HasAccess(ctx context.Context, projectID, userID string) (bool, error)
}

// ProjectMembers admits the project owner and listed members.
type ProjectMembers struct {
	store MembershipStore
}

// NewProjectMembers creates a membership-backed authorizer.
func NewProjectMembers(store MembershipStore) *ProjectMembers {
	return &ProjectMembers{store: store}
}

func (p *ProjectMembers) CanJoin(ctx context.Context, identity *domain.Identity, projectID string) (bool, error) {
	if identity == nil || projectID == "" {
		return false, nil
	}
	return p.store.HasAccess(ctx, projectID, identity.ID)
}
