package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/courseloom/api/model"
	"github.com/courseloom/api/services/enroll"
	"gorm.io/gorm"
)

// EnrollmentStore is the GORM implementation of enroll.Store. The
// conditional status updates only touch rows still in pending state, which
// is what keeps the verify path, the webhook path and the expiry sweep from
// overwriting each other's terminal transitions.
type EnrollmentStore struct {
	db *gorm.DB
}

// NewEnrollmentStore creates a store over the given connection.
func NewEnrollmentStore(db *gorm.DB) *EnrollmentStore {
	return &EnrollmentStore{db: db}
}

var _ enroll.Store = (*EnrollmentStore)(nil)

// CoursesByIDs loads the requested courses.
func (s *EnrollmentStore) CoursesByIDs(ctx context.Context, ids []uint) ([]model.Course, error) {
	var courses []model.Course
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

// ActiveEnrollmentCourseIDs returns the subset of courseIDs the user already
// holds an active or completed enrollment for.
func (s *EnrollmentStore) ActiveEnrollmentCourseIDs(ctx context.Context, userID uint, courseIDs []uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id IN ? AND status IN ?", userID, courseIDs,
			[]string{model.EnrollmentStatusActive, model.EnrollmentStatusCompleted}).
		Pluck("course_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CreatePayment inserts a payment row.
func (s *EnrollmentStore) CreatePayment(ctx context.Context, p *model.CoursePayment) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// PendingPayments loads pending rows for a gateway order, with the course
// preloaded for notifications and cart cleanup. userID 0 matches any user.
func (s *EnrollmentStore) PendingPayments(ctx context.Context, gatewayOrderID string, userID uint) ([]model.CoursePayment, error) {
	query := s.db.WithContext(ctx).Preload("Course").
		Where("gateway_order_id = ? AND status = ?", gatewayOrderID, model.PaymentStatusPending)
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}

	var payments []model.CoursePayment
	if err := query.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// CompletePayment conditionally flips one row from pending to completed.
// The status guard in the WHERE clause makes the transition atomic per row:
// a row already finalized by the concurrent path reports zero rows affected.
func (s *EnrollmentStore) CompletePayment(ctx context.Context, paymentID uint, upd enroll.PaymentCompletion) (bool, error) {
	updates := map[string]interface{}{
		"status":             model.PaymentStatusCompleted,
		"gateway_payment_id": upd.GatewayPaymentID,
		"signature":          upd.Signature,
		"completed_at":       upd.CompletedAt,
	}
	if upd.Method != "" {
		updates["payment_method"] = upd.Method
	}
	if upd.CardBrand != "" {
		updates["card_brand"] = upd.CardBrand
	}
	if upd.CardLast4 != "" {
		updates["card_last4"] = upd.CardLast4
	}

	result := s.db.WithContext(ctx).Model(&model.CoursePayment{}).
		Where("id = ? AND status = ?", paymentID, model.PaymentStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FailPendingPayments marks every pending row on the order as failed.
// Terminal rows are excluded by the status guard.
func (s *EnrollmentStore) FailPendingPayments(ctx context.Context, gatewayOrderID string, userID uint, reason string) (int64, error) {
	query := s.db.WithContext(ctx).Model(&model.CoursePayment{}).
		Where("gateway_order_id = ? AND status = ?", gatewayOrderID, model.PaymentStatusPending)
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}

	result := query.Updates(map[string]interface{}{
		"status":         model.PaymentStatusFailed,
		"failed_at":      gorm.Expr("NOW()"),
		"failure_reason": reason,
	})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CreateEnrollment inserts an enrollment unless one already exists for the
// (user, course) pair. The existence check runs first; the unique index on
// (user_id, course_id) backstops the race, and a duplicate-key insert is
// resolved by loading the winner's row.
func (s *EnrollmentStore) CreateEnrollment(ctx context.Context, e *model.Enrollment) (bool, error) {
	var existing model.Enrollment
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", e.UserID, e.CourseID).
		First(&existing).Error
	if err == nil {
		*e = existing
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			loadErr := s.db.WithContext(ctx).
				Where("user_id = ? AND course_id = ?", e.UserID, e.CourseID).
				First(&existing).Error
			if loadErr != nil {
				return false, fmt.Errorf("enrollment exists but could not be loaded: %w", loadErr)
			}
			*e = existing
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IncrementStudentCount bumps the course counter atomically.
func (s *EnrollmentStore) IncrementStudentCount(ctx context.Context, courseID uint) error {
	return s.db.WithContext(ctx).Model(&model.Course{}).
		Where("id = ?", courseID).
		UpdateColumn("student_count", gorm.Expr("student_count + ?", 1)).Error
}

// RemoveCartItems clears purchased courses from the user's cart.
func (s *EnrollmentStore) RemoveCartItems(ctx context.Context, userID uint, courseIDs []uint) error {
	if len(courseIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("user_id = ? AND course_id IN ?", userID, courseIDs).
		Delete(&model.CartItem{}).Error
}

// IsEnrolled reports whether the user holds an active or completed
// enrollment for the course.
func (s *EnrollmentStore) IsEnrolled(ctx context.Context, userID, courseID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ? AND status IN ?", userID, courseID,
			[]string{model.EnrollmentStatusActive, model.EnrollmentStatusCompleted}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// EnrollmentsByUser lists the user's enrollments with course details.
func (s *EnrollmentStore) EnrollmentsByUser(ctx context.Context, userID uint) ([]model.Enrollment, error) {
	var enrollments []model.Enrollment
	err := s.db.WithContext(ctx).Preload("Course").
		Where("user_id = ?", userID).
		Order("enrolled_at DESC").
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}

// RecordWebhookEvent inserts a delivery row; a duplicate provider event id
// reports created=false without error.
func (s *EnrollmentStore) RecordWebhookEvent(ctx context.Context, ev *model.WebhookEvent) (bool, error) {
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkWebhookProcessed stamps the delivery row after processing.
func (s *EnrollmentStore) MarkWebhookProcessed(ctx context.Context, eventID uint, processingError string) error {
	return s.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"processed_at":     gorm.Expr("NOW()"),
			"processing_error": processingError,
		}).Error
}
