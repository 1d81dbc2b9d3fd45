package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-board/pkg/log"
	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
)

// GormUserRepository implements UserRepository using GORM.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based user repository.
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// GetByID returns the public identity of a user. The password hash is
// never selected.
func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	var model domain.UserModel
	result := r.db.WithContext(ctx).
		Select("id", "first_name", "last_name", "email").
		First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldUserID, id).Msg("failed to get user by id")
		return nil, result.Error
	}
	return model.ToIdentity(), nil
}
