package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoleAssignment records a (user, role) capability grant. At most one row may
// exist per pair; lifecycle is soft-state through IsActive and rows are never
// deleted.
type RoleAssignment struct {
	ID       string   `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string   `gorm:"type:uuid;not null;uniqueIndex:idx_user_role" json:"user_id"`
	RoleName RoleName `gorm:"not null;type:varchar(32);uniqueIndex:idx_user_role" json:"role"`

	IsActive bool `gorm:"default:false;index" json:"is_active"`

	ApprovedByID *string    `gorm:"type:uuid" json:"approved_by"`
	ApprovedBy   *User      `gorm:"foreignKey:ApprovedByID" json:"-"`
	ApprovedAt   *time.Time `json:"approved_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *RoleAssignment) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
