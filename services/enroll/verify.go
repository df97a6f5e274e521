package enroll

import (
	"context"
	"fmt"
	"log"

	"github.com/courseloom/api/model"
)

// VerifyInput is the client-submitted payment proof from the hosted checkout.
type VerifyInput struct {
	OrderID   string
	PaymentID string
	Signature string
	CourseIDs []uint // optional, for cart cleanup
}

// VerifyResult confirms completed payments and the enrollments they granted.
type VerifyResult struct {
	Verified    bool               `json:"verified"`
	OrderID     string             `json:"order_id"`
	PaymentID   string             `json:"payment_id"`
	Enrollments []model.Enrollment `json:"enrollments"`
}

// VerifyPayment is the synchronous confirmation path. It recomputes the
// checkout signature, and on a match funnels the order's pending payments
// through completePayments. A mismatch terminally fails the pending rows.
func (s *Service) VerifyPayment(ctx context.Context, userID uint, in VerifyInput) (*VerifyResult, error) {
	if in.OrderID == "" || in.PaymentID == "" || in.Signature == "" {
		return nil, ErrMissingVerificationFields
	}

	if !s.gateway.VerifyCheckoutSignature(in.OrderID, in.PaymentID, in.Signature) {
		n, err := s.store.FailPendingPayments(ctx, in.OrderID, userID, "Invalid payment signature")
		if err != nil {
			log.Printf("[enroll] failed to mark payments failed for order %s: %v", in.OrderID, err)
		} else if n > 0 {
			log.Printf("[enroll] marked %d payment(s) failed for order %s: signature mismatch", n, in.OrderID)
		}
		return nil, ErrSignatureMismatch
	}

	// Enrichment only. A fetch failure must not abort verification.
	completion := PaymentCompletion{
		GatewayPaymentID: in.PaymentID,
		Signature:        in.Signature,
		CompletedAt:      s.now(),
	}
	if details, err := s.gateway.FetchPayment(ctx, in.PaymentID); err != nil {
		log.Printf("[enroll] failed to fetch payment %s details: %v", in.PaymentID, err)
	} else {
		completion.Method = details.Method
		completion.CardBrand = details.CardBrand
		completion.CardLast4 = details.CardLast4
	}

	enrollments, courses, err := s.completePayments(ctx, in.OrderID, userID, completion)
	if err != nil {
		return nil, err
	}

	cartIDs := make([]uint, 0, len(courses)+len(in.CourseIDs))
	for _, c := range courses {
		cartIDs = append(cartIDs, c.ID)
	}
	cartIDs = append(cartIDs, in.CourseIDs...)
	if err := s.store.RemoveCartItems(ctx, userID, dedupeIDs(cartIDs)); err != nil {
		log.Printf("[enroll] failed to clear cart for user %d: %v", userID, err)
	}

	if s.notifier != nil {
		if err := s.notifier.PaymentSucceeded(ctx, userID, in.OrderID, courses); err != nil {
			log.Printf("[enroll] payment-success notification failed for user %d: %v", userID, err)
		}
	}

	return &VerifyResult{
		Verified:    true,
		OrderID:     in.OrderID,
		PaymentID:   in.PaymentID,
		Enrollments: enrollments,
	}, nil
}

// completePayments is the single idempotent completion routine both the
// verify and webhook triggers funnel through. For each payment row still
// pending on the order it performs a conditional pending-to-completed update,
// then creates the enrollment if absent. A row flipped by the other path is
// excluded by the conditional update, so running both paths in either order
// or concurrently yields exactly one completed payment and one enrollment per
// course. userID 0 matches payments of any user (webhook trigger).
func (s *Service) completePayments(ctx context.Context, orderID string, userID uint, completion PaymentCompletion) ([]model.Enrollment, []model.Course, error) {
	pending, err := s.store.PendingPayments(ctx, orderID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load pending payments: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil, ErrNoPendingPayments
	}

	var enrollments []model.Enrollment
	var courses []model.Course

	for _, payment := range pending {
		updated, err := s.store.CompletePayment(ctx, payment.ID, completion)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to complete payment %d: %w", payment.ID, err)
		}
		if !updated {
			// Lost the race to the other confirmation path.
			continue
		}

		s.publish(ctx, "payment.completed", map[string]interface{}{
			"payment_id":         payment.ID,
			"user_id":            payment.UserID,
			"course_id":          payment.CourseID,
			"gateway_order_id":   orderID,
			"gateway_payment_id": completion.GatewayPaymentID,
			"amount":             payment.Amount,
			"currency":           payment.Currency,
		})

		paymentID := payment.ID
		enrollment := model.Enrollment{
			UserID:       payment.UserID,
			CourseID:     payment.CourseID,
			InstructorID: payment.InstructorID,
			PaymentID:    &paymentID,
			Status:       model.EnrollmentStatusActive,
			EnrolledAt:   completion.CompletedAt,
		}
		created, err := s.store.CreateEnrollment(ctx, &enrollment)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create enrollment for course %d: %w", payment.CourseID, err)
		}
		if created {
			if err := s.store.IncrementStudentCount(ctx, payment.CourseID); err != nil {
				log.Printf("[enroll] failed to increment student count for course %d: %v", payment.CourseID, err)
			}
			s.publish(ctx, "enrollment.created", map[string]interface{}{
				"user_id":    payment.UserID,
				"course_id":  payment.CourseID,
				"payment_id": payment.ID,
			})
		}

		enrollments = append(enrollments, enrollment)
		courses = append(courses, payment.Course)
	}

	return enrollments, courses, nil
}
