package enroll

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/courseloom/api/model"
)

// GatewayOrder is the result of creating an order with the payment gateway.
type GatewayOrder struct {
	ID          string
	AmountMinor int64
	Currency    string
	Receipt     string
}

// GatewayPayment holds enrichment details fetched from the gateway after a
// payment succeeds.
type GatewayPayment struct {
	Method    string
	CardBrand string
	CardLast4 string
	Status    string
}

// Gateway wraps the payment provider. Amounts cross this boundary in major
// units; the adapter owns minor-unit conversion.
type Gateway interface {
	CreateOrder(ctx context.Context, amount float64, currency, receipt string, notes map[string]interface{}) (GatewayOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (GatewayPayment, error)
	// VerifyCheckoutSignature checks the client-submitted signature over
	// "{orderID}|{paymentID}".
	VerifyCheckoutSignature(orderID, paymentID, signature string) bool
	// VerifyWebhookSignature checks the inbound webhook signature over the
	// raw body. verified is false when no webhook secret is configured and
	// the check was skipped.
	VerifyWebhookSignature(body []byte, signature string) (valid bool, verified bool)
}

// PaymentCompletion carries the fields attached to a payment row when it
// transitions from pending to completed.
type PaymentCompletion struct {
	GatewayPaymentID string
	Signature        string
	Method           string
	CardBrand        string
	CardLast4        string
	CompletedAt      time.Time
}

// Store is the persistence contract the enrollment core needs. Conditional
// updates (pending-only) are the correctness mechanism for the concurrent
// verify/webhook paths; implementations must make them atomic per row.
type Store interface {
	CoursesByIDs(ctx context.Context, ids []uint) ([]model.Course, error)
	ActiveEnrollmentCourseIDs(ctx context.Context, userID uint, courseIDs []uint) ([]uint, error)
	CreatePayment(ctx context.Context, p *model.CoursePayment) error
	// PendingPayments returns pending rows for the gateway order. userID 0
	// matches any user (webhook path).
	PendingPayments(ctx context.Context, gatewayOrderID string, userID uint) ([]model.CoursePayment, error)
	// CompletePayment flips one row from pending to completed. It returns
	// false when the row was no longer pending, which callers treat as a
	// lost race, not an error.
	CompletePayment(ctx context.Context, paymentID uint, upd PaymentCompletion) (bool, error)
	// FailPendingPayments marks every pending row for the order as failed.
	// Terminal rows are left untouched.
	FailPendingPayments(ctx context.Context, gatewayOrderID string, userID uint, reason string) (int64, error)
	// CreateEnrollment inserts an enrollment unless one already exists for
	// (user, course). created is false for the existing-row case and e is
	// populated either way.
	CreateEnrollment(ctx context.Context, e *model.Enrollment) (created bool, err error)
	IncrementStudentCount(ctx context.Context, courseID uint) error
	RemoveCartItems(ctx context.Context, userID uint, courseIDs []uint) error
	IsEnrolled(ctx context.Context, userID, courseID uint) (bool, error)
	EnrollmentsByUser(ctx context.Context, userID uint) ([]model.Enrollment, error)
	// RecordWebhookEvent persists a delivery for dedup. created is false
	// when the provider event id was seen before.
	RecordWebhookEvent(ctx context.Context, ev *model.WebhookEvent) (created bool, err error)
	MarkWebhookProcessed(ctx context.Context, eventID uint, processingError string) error
}

// Notifier delivers a fire-and-forget payment-success notification.
type Notifier interface {
	PaymentSucceeded(ctx context.Context, userID uint, gatewayOrderID string, courses []model.Course) error
}

// Publisher emits outbound domain events. Delivery is an external concern;
// failures are logged and swallowed.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}

// Service implements the enrollment/payment reconciliation workflow: order
// creation, synchronous verification and asynchronous webhook handling. The
// verify and webhook triggers funnel through the same idempotent
// completePayments routine.
type Service struct {
	store    Store
	gateway  Gateway
	notifier Notifier
	events   Publisher
	now      func() time.Time
}

// NewService creates the enrollment service. notifier and events may be nil.
func NewService(store Store, gateway Gateway, notifier Notifier, events Publisher) *Service {
	return &Service{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		events:   events,
		now:      time.Now,
	}
}

// CourseLine is the per-course breakdown returned for client display.
type CourseLine struct {
	CourseID        uint    `json:"course_id"`
	Title           string  `json:"title"`
	Price           float64 `json:"price"`
	InstructorShare float64 `json:"instructor_share"`
	PlatformShare   float64 `json:"platform_share"`
}

// OrderResult is the outcome of CreateOrder: either an immediate free
// enrollment or a gateway order awaiting checkout.
type OrderResult struct {
	IsFree      bool               `json:"is_free"`
	OrderID     string             `json:"order_id,omitempty"`
	Amount      float64            `json:"amount"`
	AmountMinor int64              `json:"amount_minor,omitempty"`
	Currency    string             `json:"currency"`
	Receipt     string             `json:"receipt,omitempty"`
	Courses     []CourseLine       `json:"courses"`
	Enrollments []model.Enrollment `json:"enrollments,omitempty"`
}

// CreateOrder validates the requested courses and either enrolls the student
// directly (all courses free) or creates a gateway order plus one pending
// payment per course. The gateway order is created before any payment rows
// so a gateway failure leaves nothing dangling.
func (s *Service) CreateOrder(ctx context.Context, userID uint, courseIDs []uint) (*OrderResult, error) {
	ids := dedupeIDs(courseIDs)
	if len(ids) == 0 {
		return nil, ErrNoCoursesRequested
	}

	courses, err := s.store.CoursesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load courses: %w", err)
	}
	if missing := missingIDs(ids, courses); len(missing) > 0 {
		return nil, &CoursesNotFoundError{IDs: missing}
	}

	currency := ""
	for _, c := range courses {
		if c.InstructorID == 0 {
			return nil, &InvalidCourseError{ID: c.ID, Reason: "missing instructor reference"}
		}
		if !c.Published {
			return nil, &InvalidCourseError{ID: c.ID, Reason: "course is not published"}
		}
		if currency == "" {
			currency = c.Currency
		} else if c.Currency != currency {
			return nil, ErrMixedCurrencies
		}
	}

	enrolled, err := s.store.ActiveEnrollmentCourseIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to check enrollments: %w", err)
	}
	if len(enrolled) > 0 {
		return nil, &AlreadyEnrolledError{IDs: enrolled}
	}

	total := 0.0
	for _, c := range courses {
		total += c.Price
	}

	if total == 0 {
		return s.enrollFree(ctx, userID, courses, currency)
	}

	receipt := buildReceipt(userID, s.now())
	notes := map[string]interface{}{
		"user_id":      userID,
		"course_ids":   joinIDs(ids),
		"course_count": len(ids),
	}

	order, err := s.gateway.CreateOrder(ctx, total, currency, receipt, notes)
	if err != nil {
		return nil, fmt.Errorf("gateway order creation failed: %w", err)
	}

	lines := make([]CourseLine, 0, len(courses))
	for _, c := range courses {
		payment := model.CoursePayment{
			UserID:          userID,
			CourseID:        c.ID,
			InstructorID:    c.InstructorID,
			Amount:          c.Price,
			Currency:        currency,
			Status:          model.PaymentStatusPending,
			GatewayOrderID:  order.ID,
			Subtotal:        c.Price,
			FinalAmount:     c.Price,
			InstructorShare: roundMoney(c.Price * model.InstructorSharePercent),
			PlatformShare:   roundMoney(c.Price * model.PlatformSharePercent),
		}
		if err := s.store.CreatePayment(ctx, &payment); err != nil {
			// The gateway order exists but no enrollment can ever be
			// created from rows that never reach completed, so a
			// half-written batch self-heals on the next verify.
			return nil, fmt.Errorf("failed to create payment record: %w", err)
		}
		lines = append(lines, CourseLine{
			CourseID:        c.ID,
			Title:           c.Title,
			Price:           c.Price,
			InstructorShare: payment.InstructorShare,
			PlatformShare:   payment.PlatformShare,
		})
	}

	return &OrderResult{
		IsFree:      false,
		OrderID:     order.ID,
		Amount:      total,
		AmountMinor: order.AmountMinor,
		Currency:    order.Currency,
		Receipt:     order.Receipt,
		Courses:     lines,
	}, nil
}

// enrollFree creates completed zero-amount payments and enrollments for a
// basket of free courses. No gateway call is made.
func (s *Service) enrollFree(ctx context.Context, userID uint, courses []model.Course, currency string) (*OrderResult, error) {
	now := s.now()
	enrollments := make([]model.Enrollment, 0, len(courses))
	lines := make([]CourseLine, 0, len(courses))
	courseIDs := make([]uint, 0, len(courses))

	for _, c := range courses {
		completedAt := now
		payment := model.CoursePayment{
			UserID:         userID,
			CourseID:       c.ID,
			InstructorID:   c.InstructorID,
			Amount:         0,
			Currency:       currency,
			Status:         model.PaymentStatusCompleted,
			GatewayOrderID: freeTransactionID(userID, c.ID, now),
			PaymentMethod:  "free",
			CompletedAt:    &completedAt,
		}
		if err := s.store.CreatePayment(ctx, &payment); err != nil {
			return nil, fmt.Errorf("failed to create free payment record: %w", err)
		}

		enrollment := model.Enrollment{
			UserID:       userID,
			CourseID:     c.ID,
			InstructorID: c.InstructorID,
			PaymentID:    &payment.ID,
			Status:       model.EnrollmentStatusActive,
			EnrolledAt:   now,
		}
		created, err := s.store.CreateEnrollment(ctx, &enrollment)
		if err != nil {
			return nil, fmt.Errorf("failed to create enrollment: %w", err)
		}
		if created {
			if err := s.store.IncrementStudentCount(ctx, c.ID); err != nil {
				log.Printf("[enroll] failed to increment student count for course %d: %v", c.ID, err)
			}
			s.publish(ctx, "enrollment.created", map[string]interface{}{
				"user_id":   userID,
				"course_id": c.ID,
				"free":      true,
			})
		}
		enrollments = append(enrollments, enrollment)
		lines = append(lines, CourseLine{CourseID: c.ID, Title: c.Title, Price: 0})
		courseIDs = append(courseIDs, c.ID)
	}

	if err := s.store.RemoveCartItems(ctx, userID, courseIDs); err != nil {
		log.Printf("[enroll] failed to clear cart for user %d: %v", userID, err)
	}

	return &OrderResult{
		IsFree:      true,
		Amount:      0,
		Currency:    currency,
		Courses:     lines,
		Enrollments: enrollments,
	}, nil
}

// IsEnrolled reports whether the user holds an active or completed
// enrollment for the course.
func (s *Service) IsEnrolled(ctx context.Context, userID, courseID uint) (bool, error) {
	return s.store.IsEnrolled(ctx, userID, courseID)
}

// EnrollmentsByUser lists the user's enrollments with course details.
func (s *Service) EnrollmentsByUser(ctx context.Context, userID uint) ([]model.Enrollment, error) {
	return s.store.EnrollmentsByUser(ctx, userID)
}

func (s *Service) publish(ctx context.Context, key string, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, key, payload); err != nil {
		log.Printf("[enroll] failed to publish %s event: %v", key, err)
	}
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(requested []uint, found []model.Course) []uint {
	have := make(map[uint]struct{}, len(found))
	for _, c := range found {
		have[c.ID] = struct{}{}
	}
	var missing []uint
	for _, id := range requested {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func joinIDs(ids []uint) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", id)
	}
	return out
}

// buildReceipt derives a short gateway reference from the user id and a
// timestamp suffix. Razorpay caps receipts at 40 characters.
func buildReceipt(userID uint, now time.Time) string {
	user := fmt.Sprintf("%d", userID)
	if len(user) > 8 {
		user = user[len(user)-8:]
	}
	ts := fmt.Sprintf("%d", now.UnixNano())
	if len(ts) > 12 {
		ts = ts[len(ts)-12:]
	}
	return fmt.Sprintf("rcpt_%s_%s", user, ts)
}

// freeTransactionID builds a synthetic transaction id unique per
// (student, course, timestamp) for zero-amount purchases.
func freeTransactionID(userID, courseID uint, now time.Time) string {
	return fmt.Sprintf("free_%d_%d_%d", userID, courseID, now.UnixNano())
}

func roundMoney(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
