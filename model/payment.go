package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payment statuses. Transitions are monotone: pending moves to completed or
// failed exactly once; terminal rows are never overwritten.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Revenue split applied to each course's own price.
const (
	InstructorSharePercent = 0.70
	PlatformSharePercent   = 0.30
)

// CoursePayment represents one course-purchase leg. Rows sharing a gateway
// order id belong to the same checkout. Payments are retained for accounting
// and never hard-deleted.
type CoursePayment struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	UserID       uint    `gorm:"not null;index:idx_payment_user_order" json:"user_id"`
	CourseID     uint    `gorm:"not null;index" json:"course_id"`
	InstructorID uint    `gorm:"not null;index" json:"instructor_id"`
	Amount       float64 `gorm:"not null" json:"amount"`
	Currency     string  `gorm:"type:varchar(10);default:'INR'" json:"currency"`
	Status       string  `gorm:"type:varchar(20);default:'pending';index" json:"status"` // pending, completed, failed

	// Gateway identifiers
	GatewayOrderID   string `gorm:"type:varchar(100);index:idx_payment_user_order" json:"gateway_order_id"`
	GatewayPaymentID string `gorm:"type:varchar(100)" json:"gateway_payment_id"`
	Signature        string `gorm:"type:varchar(200)" json:"-"`
	PaymentMethod    string `gorm:"type:varchar(50)" json:"payment_method"`
	CardBrand        string `gorm:"type:varchar(50)" json:"card_brand,omitempty"`
	CardLast4        string `gorm:"type:varchar(4)" json:"card_last4,omitempty"`

	// Pricing breakdown
	Subtotal    float64 `gorm:"not null;default:0" json:"subtotal"`
	PlatformFee float64 `gorm:"not null;default:0" json:"platform_fee"`
	FinalAmount float64 `gorm:"not null;default:0" json:"final_amount"`

	// Revenue split per course
	InstructorShare float64 `gorm:"not null;default:0" json:"instructor_share"`
	PlatformShare   float64 `gorm:"not null;default:0" json:"platform_share"`

	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	FailedAt      *time.Time     `json:"failed_at,omitempty"`
	FailureReason string         `gorm:"type:varchar(255)" json:"failure_reason,omitempty"`
	Notes         datatypes.JSON `json:"notes,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Course Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}

// TableName specifies the table name for CoursePayment
func (CoursePayment) TableName() string {
	return "course_payments"
}
