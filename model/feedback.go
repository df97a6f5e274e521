package model

import (
	"time"

	"gorm.io/gorm"
)

// CourseFeedback is a student's rating and review of a course
type CourseFeedback struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;uniqueIndex:ux_feedback_user_course" json:"user_id"`
	CourseID  uint           `gorm:"not null;uniqueIndex:ux_feedback_user_course" json:"course_id"`
	Rating    int            `gorm:"not null" json:"rating"` // 1..5
	Comment   string         `gorm:"type:text" json:"comment"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for CourseFeedback
func (CourseFeedback) TableName() string {
	return "course_feedback"
}
