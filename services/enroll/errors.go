package enroll

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCoursesRequested is returned when the course id list is empty.
	ErrNoCoursesRequested = errors.New("at least one course id is required")

	// ErrMissingVerificationFields is returned when the verify request lacks
	// the order id, payment id or signature.
	ErrMissingVerificationFields = errors.New("order id, payment id and signature are required")

	// ErrSignatureMismatch is returned when a submitted signature does not
	// match the recomputed HMAC. For the checkout path this transition is
	// terminal: matching pending payments are marked failed first.
	ErrSignatureMismatch = errors.New("invalid payment signature")

	// ErrMissingWebhookSignature is returned when the webhook signature
	// header is absent.
	ErrMissingWebhookSignature = errors.New("missing webhook signature header")

	// ErrNoPendingPayments is returned when no pending payment rows match
	// the given order: either the order is already finalized or unknown.
	ErrNoPendingPayments = errors.New("no pending payments found for this order")

	// ErrInvalidAmount is returned when the basket total does not convert to
	// a positive integer amount in the gateway's minor unit.
	ErrInvalidAmount = errors.New("order amount must convert to a positive integer minor-unit value")

	// ErrMixedCurrencies is returned when the requested courses do not share
	// a single currency.
	ErrMixedCurrencies = errors.New("courses in one order must share a currency")
)

// CoursesNotFoundError reports requested course ids that do not exist.
type CoursesNotFoundError struct {
	IDs []uint
}

func (e *CoursesNotFoundError) Error() string {
	return fmt.Sprintf("courses not found: %v", e.IDs)
}

// AlreadyEnrolledError rejects a batch containing courses the student
// already holds an active or completed enrollment for.
type AlreadyEnrolledError struct {
	IDs []uint
}

func (e *AlreadyEnrolledError) Error() string {
	return fmt.Sprintf("already enrolled in courses: %v", e.IDs)
}

// InvalidCourseError flags a course that is unpublished or carries no
// instructor reference. A missing instructor is a data defect, but it is
// still surfaced to the caller as a bad request.
type InvalidCourseError struct {
	ID     uint
	Reason string
}

func (e *InvalidCourseError) Error() string {
	return fmt.Sprintf("course %d is not purchasable: %s", e.ID, e.Reason)
}
