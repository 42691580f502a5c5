package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuthEventType enumerates the recognised authentication audit events.
type AuthEventType string

const (
	EventLoginSuccess           AuthEventType = "LOGIN_SUCCESS"
	EventLoginFailed            AuthEventType = "LOGIN_FAILED"
	EventLoginBlockedUnverified AuthEventType = "LOGIN_BLOCKED_UNVERIFIED"
	EventVerifyEmailSuccess     AuthEventType = "VERIFY_EMAIL_SUCCESS"
	EventVerifyEmailFailed      AuthEventType = "VERIFY_EMAIL_FAILED"
	EventResendVerification     AuthEventType = "RESEND_VERIFICATION"
)

// AuthEvent is an append-only audit row for authentication-relevant actions.
// Rows are never mutated or deleted (outside retention sweeps) and never
// contain secrets.
type AuthEvent struct {
	ID        string        `gorm:"primaryKey;type:uuid" json:"id"`
	EventType AuthEventType `gorm:"not null;index;type:varchar(40)" json:"event_type"`
	UserID    *string       `gorm:"type:uuid;index" json:"user_id"`
	User      *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	IPAddress string        `json:"ip_address"`
	UserAgent string        `json:"user_agent"`
	CreatedAt time.Time     `gorm:"index" json:"created_at"`
}

func (e *AuthEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
