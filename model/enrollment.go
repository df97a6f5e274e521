package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Enrollment statuses
const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusCompleted = "completed"
)

// Enrollment grants a student access to a course. The unique index on
// (user_id, course_id) is the enforcement mechanism for at-most-one
// enrollment per student and course, regardless of how many payment attempts
// or webhook deliveries occur.
type Enrollment struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UserID       uint           `gorm:"not null;uniqueIndex:ux_enrollment_user_course" json:"user_id"`
	CourseID     uint           `gorm:"not null;uniqueIndex:ux_enrollment_user_course" json:"course_id"`
	InstructorID uint           `gorm:"not null;index" json:"instructor_id"`
	PaymentID    *uint          `gorm:"index" json:"payment_id,omitempty"` // nil for free direct enrollment
	Status       string         `gorm:"type:varchar(20);default:'active'" json:"status"` // active, completed
	EnrolledAt   time.Time      `json:"enrolled_at"`
	Progress     datatypes.JSON `json:"progress,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User    User           `gorm:"foreignKey:UserID" json:"-"`
	Course  Course         `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	Payment *CoursePayment `gorm:"foreignKey:PaymentID" json:"payment,omitempty"`
}

// TableName specifies the table name for Enrollment
func (Enrollment) TableName() string {
	return "enrollments"
}
