package repository

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrProjectNotFound = errors.New("project not found")
)

// UserRepository resolves token subjects to identities.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
}

// ProjectRepository answers project membership questions.
type ProjectRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ProjectModel, error)
	HasAccess(ctx context.Context, projectID, userID string) (bool, error)
}
