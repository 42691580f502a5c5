package models

import "time"

// Enrollment status values.
const (
	EnrollmentStatusActive  = "ACTIVE"
	EnrollmentStatusRevoked = "REVOKED"
)

// Enrollment links a user to a course they may access. Unique per
// (user, course); created or reactivated exactly once per settlement.
type Enrollment struct {
	BaseModel

	UserID   string  `gorm:"type:uuid;not null;uniqueIndex:idx_user_course" json:"user_id"`
	User     *User   `gorm:"foreignKey:UserID" json:"-"`
	CourseID string  `gorm:"type:uuid;not null;uniqueIndex:idx_user_course" json:"course_id"`
	Course   *Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`

	Status     string    `gorm:"not null;index;type:varchar(20)" json:"status"`
	EnrolledAt time.Time `json:"enrolled_at"`
}
