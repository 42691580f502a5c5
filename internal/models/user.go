package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User describes platform accounts. Email is stored lower-cased and compared
// case-insensitively. IsVerified flips false->true exactly once and never
// reverts.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	IsVerified bool       `gorm:"default:false" json:"is_verified"`
	VerifiedAt *time.Time `json:"verified_at"`

	IsAdmin bool `gorm:"default:false" json:"is_admin"`

	// PrimaryRole mirrors the single active role in the payment-granted
	// lineage (guest<->student). Updated only inside SwitchExclusive; the
	// role_assignments rows remain the source of truth.
	PrimaryRole *RoleName `gorm:"type:varchar(32)" json:"primary_role"`

	RoleAssignments []RoleAssignment `gorm:"foreignKey:UserID" json:"role_assignments,omitempty"`
	Enrollments     []Enrollment     `gorm:"foreignKey:UserID" json:"-"`
	Sessions        []Session        `gorm:"foreignKey:UserID" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
