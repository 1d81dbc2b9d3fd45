package domain

import (
	"time"

	"github.com/weiawesome/wes-board/pkg/database"
	"gorm.io/gorm"
)

// UserModel is the GORM model for the users table. The table is owned by
// the REST API; this service only reads it.
type UserModel struct {
	ID           string         `gorm:"type:varchar(36);primaryKey"`
	FirstName    string         `gorm:"type:varchar(100)"`
	LastName     string         `gorm:"type:varchar(100)"`
	Email        string         `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string         `gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time      `gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (UserModel) TableName() string {
	return "users"
}

// ToIdentity drops everything a collaborator must not see.
func (m *UserModel) ToIdentity() *Identity {
	return &Identity{
		ID:        m.ID,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Email:     m.Email,
	}
}

// ProjectModel is the GORM model for the projects table.
type ProjectModel struct {
	ID        string               `gorm:"type:varchar(36);primaryKey"`
	Name      string               `gorm:"type:varchar(200);not null"`
	OwnerID   string               `gorm:"type:varchar(36);index;not null"`
	Members   database.StringArray `gorm:"type:text"`
	CreatedAt time.Time            `gorm:"autoCreateTime"`
	UpdatedAt time.Time            `gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt       `gorm:"index"`
}

func (ProjectModel) TableName() string {
	return "projects"
}

// HasAccess reports whether userID owns the project or is listed as a
// member.
func (m *ProjectModel) HasAccess(userID string) bool {
	return m.OwnerID == userID || m.Members.Contains(userID)
}
