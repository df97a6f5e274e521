package enroll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/courseloom/api/model"
)

// --- in-memory fakes ---

type gatewayOrderCall struct {
	Amount   float64
	Currency string
	Receipt  string
	Notes    map[string]interface{}
}

type fakeGateway struct {
	orderCalls []gatewayOrderCall
	orderErr   error

	payment  GatewayPayment
	fetchErr error

	// the one signature VerifyCheckoutSignature accepts
	goodSignature string

	webhookValid    bool
	webhookVerified bool
}

func (g *fakeGateway) CreateOrder(_ context.Context, amount float64, currency, receipt string, notes map[string]interface{}) (GatewayOrder, error) {
	g.orderCalls = append(g.orderCalls, gatewayOrderCall{Amount: amount, Currency: currency, Receipt: receipt, Notes: notes})
	if g.orderErr != nil {
		return GatewayOrder{}, g.orderErr
	}
	return GatewayOrder{
		ID:          "order_test123",
		AmountMinor: int64(amount * 100),
		Currency:    currency,
		Receipt:     receipt,
	}, nil
}

func (g *fakeGateway) FetchPayment(_ context.Context, _ string) (GatewayPayment, error) {
	if g.fetchErr != nil {
		return GatewayPayment{}, g.fetchErr
	}
	return g.payment, nil
}

func (g *fakeGateway) VerifyCheckoutSignature(_, _, signature string) bool {
	return signature == g.goodSignature
}

func (g *fakeGateway) VerifyWebhookSignature(_ []byte, _ string) (bool, bool) {
	return g.webhookValid, g.webhookVerified
}

type enrollmentKey struct {
	UserID   uint
	CourseID uint
}

type fakeStore struct {
	mu sync.Mutex

	courses map[uint]model.Course

	nextPaymentID uint
	payments      map[uint]*model.CoursePayment

	nextEnrollmentID uint
	enrollments      map[enrollmentKey]*model.Enrollment

	studentCounts map[uint]int
	cartRemovals  [][]uint

	nextEventID   uint
	webhookEvents map[string]*model.WebhookEvent
}

func newFakeStore(courses ...model.Course) *fakeStore {
	s := &fakeStore{
		courses:       make(map[uint]model.Course),
		payments:      make(map[uint]*model.CoursePayment),
		enrollments:   make(map[enrollmentKey]*model.Enrollment),
		studentCounts: make(map[uint]int),
		webhookEvents: make(map[string]*model.WebhookEvent),
	}
	for _, c := range courses {
		s.courses[c.ID] = c
	}
	return s
}

func (s *fakeStore) CoursesByIDs(_ context.Context, ids []uint) ([]model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Course
	for _, id := range ids {
		if c, ok := s.courses[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) ActiveEnrollmentCourseIDs(_ context.Context, userID uint, courseIDs []uint) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uint
	for _, id := range courseIDs {
		if _, ok := s.enrollments[enrollmentKey{userID, id}]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *fakeStore) CreatePayment(_ context.Context, p *model.CoursePayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPaymentID++
	p.ID = s.nextPaymentID
	p.CreatedAt = time.Now()
	p.Course = s.courses[p.CourseID]
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *fakeStore) PendingPayments(_ context.Context, gatewayOrderID string, userID uint) ([]model.CoursePayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CoursePayment
	for _, p := range s.payments {
		if p.GatewayOrderID != gatewayOrderID || p.Status != model.PaymentStatusPending {
			continue
		}
		if userID != 0 && p.UserID != userID {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakeStore) CompletePayment(_ context.Context, paymentID uint, upd PaymentCompletion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	completedAt := upd.CompletedAt
	p.Status = model.PaymentStatusCompleted
	p.GatewayPaymentID = upd.GatewayPaymentID
	p.Signature = upd.Signature
	p.PaymentMethod = upd.Method
	p.CardBrand = upd.CardBrand
	p.CardLast4 = upd.CardLast4
	p.CompletedAt = &completedAt
	return true, nil
}

func (s *fakeStore) FailPendingPayments(_ context.Context, gatewayOrderID string, userID uint, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now()
	for _, p := range s.payments {
		if p.GatewayOrderID != gatewayOrderID || p.Status != model.PaymentStatusPending {
			continue
		}
		if userID != 0 && p.UserID != userID {
			continue
		}
		p.Status = model.PaymentStatusFailed
		p.FailureReason = reason
		p.FailedAt = &now
		n++
	}
	return n, nil
}

func (s *fakeStore) CreateEnrollment(_ context.Context, e *model.Enrollment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := enrollmentKey{e.UserID, e.CourseID}
	if existing, ok := s.enrollments[key]; ok {
		*e = *existing
		return false, nil
	}
	s.nextEnrollmentID++
	e.ID = s.nextEnrollmentID
	cp := *e
	s.enrollments[key] = &cp
	return true, nil
}

func (s *fakeStore) IncrementStudentCount(_ context.Context, courseID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.studentCounts[courseID]++
	return nil
}

func (s *fakeStore) RemoveCartItems(_ context.Context, _ uint, courseIDs []uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cartRemovals = append(s.cartRemovals, courseIDs)
	return nil
}

func (s *fakeStore) IsEnrolled(_ context.Context, userID, courseID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.enrollments[enrollmentKey{userID, courseID}]
	return ok, nil
}

func (s *fakeStore) EnrollmentsByUser(_ context.Context, userID uint) ([]model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Enrollment
	for _, e := range s.enrollments {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *fakeStore) RecordWebhookEvent(_ context.Context, ev *model.WebhookEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.webhookEvents[ev.ProviderEventID]; ok {
		return false, nil
	}
	s.nextEventID++
	ev.ID = s.nextEventID
	cp := *ev
	s.webhookEvents[ev.ProviderEventID] = &cp
	return true, nil
}

func (s *fakeStore) MarkWebhookProcessed(_ context.Context, eventID uint, processingError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, ev := range s.webhookEvents {
		if ev.ID == eventID {
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
		}
	}
	return nil
}

func (s *fakeStore) paymentsByStatus(status string) []*model.CoursePayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.CoursePayment
	for _, p := range s.payments {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

func (s *fakeStore) enrollmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.enrollments)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *fakeNotifier) PaymentSucceeded(_ context.Context, _ uint, _ string, _ []model.Course) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *fakePublisher) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.keys {
		if k == key {
			n++
		}
	}
	return n
}

func publishedCourse(id uint, instructorID uint, price float64) model.Course {
	return model.Course{
		ID:           id,
		InstructorID: instructorID,
		Title:        "Course",
		Price:        price,
		Currency:     "INR",
		Published:    true,
	}
}

func newTestService(store *fakeStore, gw *fakeGateway) (*Service, *fakeNotifier, *fakePublisher) {
	notifier := &fakeNotifier{}
	publisher := &fakePublisher{}
	svc := NewService(store, gw, notifier, publisher)
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return svc, notifier, publisher
}

// --- CreateOrder ---

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("creates gateway order and one pending payment per course", func(t *testing.T) {
		store := newFakeStore(
			publishedCourse(1, 10, 499),
			publishedCourse(2, 11, 501),
		)
		gw := &fakeGateway{}
		svc, _, _ := newTestService(store, gw)

		result, err := svc.CreateOrder(ctx, 7, []uint{1, 2})
		if err != nil {
			t.Fatalf("CreateOrder returned error: %v", err)
		}

		if result.IsFree {
			t.Error("expected a paid order, got free enrollment")
		}
		if result.OrderID != "order_test123" {
			t.Errorf("unexpected order id %q", result.OrderID)
		}
		if result.Amount != 1000 {
			t.Errorf("expected amount 1000, got %v", result.Amount)
		}
		if result.AmountMinor != 100000 {
			t.Errorf("expected 100000 minor units, got %d", result.AmountMinor)
		}

		if len(gw.orderCalls) != 1 {
			t.Fatalf("expected 1 gateway call, got %d", len(gw.orderCalls))
		}
		if gw.orderCalls[0].Amount != 1000 {
			t.Errorf("gateway got amount %v, want 1000", gw.orderCalls[0].Amount)
		}
		if gw.orderCalls[0].Currency != "INR" {
			t.Errorf("gateway got currency %q, want INR", gw.orderCalls[0].Currency)
		}

		pending := store.paymentsByStatus(model.PaymentStatusPending)
		if len(pending) != 2 {
			t.Fatalf("expected 2 pending payments, got %d", len(pending))
		}
		for _, p := range pending {
			if p.GatewayOrderID != "order_test123" {
				t.Errorf("payment %d has order id %q", p.ID, p.GatewayOrderID)
			}
			wantInstructor := roundMoney(p.Amount * model.InstructorSharePercent)
			wantPlatform := roundMoney(p.Amount * model.PlatformSharePercent)
			if p.InstructorShare != wantInstructor || p.PlatformShare != wantPlatform {
				t.Errorf("payment %d split = (%v, %v), want (%v, %v)",
					p.ID, p.InstructorShare, p.PlatformShare, wantInstructor, wantPlatform)
			}
		}

		if store.enrollmentCount() != 0 {
			t.Error("no enrollments should exist before payment confirmation")
		}
	})

	t.Run("receipt stays within gateway limit", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 100))
		gw := &fakeGateway{}
		svc, _, _ := newTestService(store, gw)

		if _, err := svc.CreateOrder(ctx, 4294967295, []uint{1}); err != nil {
			t.Fatalf("CreateOrder returned error: %v", err)
		}
		receipt := gw.orderCalls[0].Receipt
		if len(receipt) > 40 {
			t.Errorf("receipt %q is %d chars, gateway limit is 40", receipt, len(receipt))
		}
		if !strings.HasPrefix(receipt, "rcpt_") {
			t.Errorf("receipt %q missing prefix", receipt)
		}
	})

	t.Run("duplicate course ids collapse to one payment", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 250))
		gw := &fakeGateway{}
		svc, _, _ := newTestService(store, gw)

		result, err := svc.CreateOrder(ctx, 7, []uint{1, 1, 1})
		if err != nil {
			t.Fatalf("CreateOrder returned error: %v", err)
		}
		if result.Amount != 250 {
			t.Errorf("expected amount 250, got %v", result.Amount)
		}
		if got := len(store.paymentsByStatus(model.PaymentStatusPending)); got != 1 {
			t.Errorf("expected 1 pending payment, got %d", got)
		}
	})

	t.Run("empty basket is rejected", func(t *testing.T) {
		svc, _, _ := newTestService(newFakeStore(), &fakeGateway{})

		if _, err := svc.CreateOrder(ctx, 7, nil); !errors.Is(err, ErrNoCoursesRequested) {
			t.Errorf("expected ErrNoCoursesRequested, got %v", err)
		}
		if _, err := svc.CreateOrder(ctx, 7, []uint{0}); !errors.Is(err, ErrNoCoursesRequested) {
			t.Errorf("expected ErrNoCoursesRequested for zero ids, got %v", err)
		}
	})

	t.Run("unknown course ids are reported", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 100))
		svc, _, _ := newTestService(store, &fakeGateway{})

		_, err := svc.CreateOrder(ctx, 7, []uint{1, 99})
		var notFound *CoursesNotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected CoursesNotFoundError, got %v", err)
		}
		if len(notFound.IDs) != 1 || notFound.IDs[0] != 99 {
			t.Errorf("expected missing ids [99], got %v", notFound.IDs)
		}
	})

	t.Run("unpublished course is rejected", func(t *testing.T) {
		course := publishedCourse(1, 10, 100)
		course.Published = false
		svc, _, _ := newTestService(newFakeStore(course), &fakeGateway{})

		_, err := svc.CreateOrder(ctx, 7, []uint{1})
		var invalid *InvalidCourseError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidCourseError, got %v", err)
		}
	})

	t.Run("course without instructor is rejected", func(t *testing.T) {
		course := publishedCourse(1, 0, 100)
		svc, _, _ := newTestService(newFakeStore(course), &fakeGateway{})

		_, err := svc.CreateOrder(ctx, 7, []uint{1})
		var invalid *InvalidCourseError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidCourseError, got %v", err)
		}
	})

	t.Run("mixed currencies are rejected", func(t *testing.T) {
		usd := publishedCourse(2, 11, 50)
		usd.Currency = "USD"
		store := newFakeStore(publishedCourse(1, 10, 100), usd)
		svc, _, _ := newTestService(store, &fakeGateway{})

		if _, err := svc.CreateOrder(ctx, 7, []uint{1, 2}); !errors.Is(err, ErrMixedCurrencies) {
			t.Errorf("expected ErrMixedCurrencies, got %v", err)
		}
	})

	t.Run("already enrolled courses are rejected", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 100), publishedCourse(2, 11, 100))
		gw := &fakeGateway{}
		svc, _, _ := newTestService(store, gw)

		store.CreateEnrollment(ctx, &model.Enrollment{UserID: 7, CourseID: 1, InstructorID: 10})

		_, err := svc.CreateOrder(ctx, 7, []uint{1, 2})
		var already *AlreadyEnrolledError
		if !errors.As(err, &already) {
			t.Fatalf("expected AlreadyEnrolledError, got %v", err)
		}
		if len(already.IDs) != 1 || already.IDs[0] != 1 {
			t.Errorf("expected enrolled ids [1], got %v", already.IDs)
		}
		if len(gw.orderCalls) != 0 {
			t.Error("gateway must not be called for a rejected basket")
		}
	})

	t.Run("gateway amount rejection keeps its sentinel through the wrap", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 100))
		gw := &fakeGateway{orderErr: fmt.Errorf("razorpay: %w", ErrInvalidAmount)}
		svc, _, _ := newTestService(store, gw)

		_, err := svc.CreateOrder(ctx, 7, []uint{1})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("expected ErrInvalidAmount in chain, got %v", err)
		}
	})

	t.Run("gateway failure creates no payment rows", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 100))
		gw := &fakeGateway{orderErr: errors.New("gateway down")}
		svc, _, _ := newTestService(store, gw)

		if _, err := svc.CreateOrder(ctx, 7, []uint{1}); err == nil {
			t.Fatal("expected error from gateway failure")
		}
		if got := len(store.paymentsByStatus(model.PaymentStatusPending)); got != 0 {
			t.Errorf("expected 0 pending payments after gateway failure, got %d", got)
		}
	})
}

func TestCreateOrderFreeCourses(t *testing.T) {
	ctx := context.Background()

	t.Run("free basket enrolls immediately without gateway", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 0), publishedCourse(2, 11, 0))
		gw := &fakeGateway{}
		svc, _, publisher := newTestService(store, gw)

		result, err := svc.CreateOrder(ctx, 7, []uint{1, 2})
		if err != nil {
			t.Fatalf("CreateOrder returned error: %v", err)
		}

		if !result.IsFree {
			t.Error("expected free enrollment result")
		}
		if len(gw.orderCalls) != 0 {
			t.Error("gateway must not be called for a free basket")
		}
		if len(result.Enrollments) != 2 {
			t.Fatalf("expected 2 enrollments, got %d", len(result.Enrollments))
		}
		if store.enrollmentCount() != 2 {
			t.Errorf("expected 2 stored enrollments, got %d", store.enrollmentCount())
		}

		completed := store.paymentsByStatus(model.PaymentStatusCompleted)
		if len(completed) != 2 {
			t.Fatalf("expected 2 completed payments, got %d", len(completed))
		}
		for _, p := range completed {
			if p.Amount != 0 || p.PaymentMethod != "free" {
				t.Errorf("payment %d: amount=%v method=%q, want zero-amount free", p.ID, p.Amount, p.PaymentMethod)
			}
			if !strings.HasPrefix(p.GatewayOrderID, "free_") {
				t.Errorf("payment %d has transaction id %q, want free_ prefix", p.ID, p.GatewayOrderID)
			}
		}

		if store.studentCounts[1] != 1 || store.studentCounts[2] != 1 {
			t.Errorf("student counts = %v, want 1 each", store.studentCounts)
		}
		if len(store.cartRemovals) != 1 {
			t.Errorf("expected one cart cleanup call, got %d", len(store.cartRemovals))
		}
		if publisher.count("enrollment.created") != 2 {
			t.Errorf("expected 2 enrollment.created events, got %d", publisher.count("enrollment.created"))
		}
	})

	t.Run("repeat free enrollment is rejected as already enrolled", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 0))
		svc, _, _ := newTestService(store, &fakeGateway{})

		if _, err := svc.CreateOrder(ctx, 7, []uint{1}); err != nil {
			t.Fatalf("first CreateOrder returned error: %v", err)
		}

		_, err := svc.CreateOrder(ctx, 7, []uint{1})
		var already *AlreadyEnrolledError
		if !errors.As(err, &already) {
			t.Fatalf("expected AlreadyEnrolledError on repeat, got %v", err)
		}
		if store.enrollmentCount() != 1 {
			t.Errorf("expected 1 enrollment, got %d", store.enrollmentCount())
		}
		if store.studentCounts[1] != 1 {
			t.Errorf("student count = %d, want 1", store.studentCounts[1])
		}
	})

	t.Run("mixed free and paid basket goes through the gateway", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 0), publishedCourse(2, 11, 300))
		gw := &fakeGateway{}
		svc, _, _ := newTestService(store, gw)

		result, err := svc.CreateOrder(ctx, 7, []uint{1, 2})
		if err != nil {
			t.Fatalf("CreateOrder returned error: %v", err)
		}
		if result.IsFree {
			t.Error("basket with a paid course must not be treated as free")
		}
		if result.Amount != 300 {
			t.Errorf("expected amount 300, got %v", result.Amount)
		}
		if got := len(store.paymentsByStatus(model.PaymentStatusPending)); got != 2 {
			t.Errorf("expected 2 pending payments, got %d", got)
		}
	})
}
