package model

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType categorizes in-app notifications
type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeWarning NotificationType = "warning"
	NotificationTypeError   NotificationType = "error"
)

// NotificationCategory groups notifications by feature area
type NotificationCategory string

const (
	NotificationCategoryPayment    NotificationCategory = "payment"
	NotificationCategoryEnrollment NotificationCategory = "enrollment"
	NotificationCategoryCourse     NotificationCategory = "course"
	NotificationCategorySystem     NotificationCategory = "system"
)

// UserNotification is an in-app notification shown to a user
type UserNotification struct {
	ID        uint                 `gorm:"primaryKey" json:"id"`
	UserID    uint                 `gorm:"not null;index" json:"user_id"`
	Type      NotificationType     `gorm:"type:varchar(20);default:'info'" json:"type"`
	Category  NotificationCategory `gorm:"type:varchar(30);index" json:"category"`
	Title     string               `gorm:"not null" json:"title"`
	Message   string               `gorm:"type:text" json:"message"`
	Read      bool                 `gorm:"default:false;index" json:"read"`
	Metadata  datatypes.JSON       `json:"metadata,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for UserNotification
func (UserNotification) TableName() string {
	return "user_notifications"
}
