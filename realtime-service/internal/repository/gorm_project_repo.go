package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-board/pkg/log"
	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
)

// GormProjectRepository implements ProjectRepository using GORM.
type GormProjectRepository struct {
	db *gorm.DB
}

// NewGormProjectRepository creates a new GORM-based project repository.
func NewGormProjectRepository(db *gorm.DB) *GormProjectRepository {
	return &GormProjectRepository{db: db}
}

// GetByID retrieves a project by ID.
func (r *GormProjectRepository) GetByID(ctx context.Context, id string) (*domain.ProjectModel, error) {
	var model domain.ProjectModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldProjectID, id).Msg("failed to get project by id")
		return nil, result.Error
	}
	return &model, nil
}

// HasAccess reports whether userID owns or is a member of the project.
// An unknown project grants nobody access.
func (r *GormProjectRepository) HasAccess(ctx context.Context, projectID, userID string) (bool, error) {
	project, err := r.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return project.HasAccess(userID), nil
}
