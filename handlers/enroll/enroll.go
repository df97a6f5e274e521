package enroll

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	enrollsvc "github.com/courseloom/api/services/enroll"
	"github.com/courseloom/api/utils/middleware"
	"github.com/courseloom/api/utils/response"
	"github.com/courseloom/api/utils/validation"
)

// WebhookSignatureHeader carries the gateway's HMAC over the raw body.
const WebhookSignatureHeader = "X-Razorpay-Signature"

// WebhookEventIDHeader carries the gateway's unique delivery id.
const WebhookEventIDHeader = "X-Razorpay-Event-Id"

// EnrollHandler exposes the enrollment/payment workflow over HTTP
type EnrollHandler struct {
	service   *enrollsvc.Service
	validator *validation.Validator
}

// NewEnrollHandler creates a new enrollment handler
func NewEnrollHandler(service *enrollsvc.Service) *EnrollHandler {
	return &EnrollHandler{
		service:   service,
		validator: validation.NewValidator(),
	}
}

// CreateOrderRequest represents the request body for creating an order.
// Either course_id or course_ids may be supplied.
type CreateOrderRequest struct {
	CourseID  uint   `json:"course_id"`
	CourseIDs []uint `json:"course_ids"`
}

// VerifyPaymentRequest represents the client's payment proof after checkout
type VerifyPaymentRequest struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
	CourseIDs []uint `json:"course_ids"`
}

// CreateOrder handles POST /api/v1/enroll/create-order
func (h *EnrollHandler) CreateOrder(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	courseIDs := req.CourseIDs
	if req.CourseID != 0 {
		courseIDs = append(courseIDs, req.CourseID)
	}

	result, err := h.service.CreateOrder(c.Context(), user.ID, courseIDs)
	if err != nil {
		return h.mapServiceError(c, err)
	}

	if result.IsFree {
		return response.SuccessWithMessage(c, "Enrolled successfully", result)
	}
	return response.Created(c, result)
}

// VerifyPayment handles POST /api/v1/enroll/verify
func (h *EnrollHandler) VerifyPayment(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req VerifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	result, err := h.service.VerifyPayment(c.Context(), user.ID, enrollsvc.VerifyInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		CourseIDs: req.CourseIDs,
	})
	if err != nil {
		return h.mapServiceError(c, err)
	}

	return response.SuccessWithMessage(c, "Payment verified successfully", result)
}

// Webhook handles POST /api/v1/enroll/webhook. There is no auth on this
// route: the signature header is the trust boundary. Once the signature
// check passes, the gateway always gets a 200 so it stops retrying.
func (h *EnrollHandler) Webhook(c *fiber.Ctx) error {
	signature := c.Get(WebhookSignatureHeader)
	eventID := c.Get(WebhookEventIDHeader)

	result, err := h.service.HandleWebhook(c.Context(), c.Body(), signature, eventID)
	if err != nil {
		switch {
		case errors.Is(err, enrollsvc.ErrMissingWebhookSignature):
			return response.BadRequest(c, "Missing webhook signature")
		case errors.Is(err, enrollsvc.ErrSignatureMismatch):
			return response.BadRequest(c, "Invalid webhook signature")
		default:
			return response.BadRequest(c, "Invalid webhook payload")
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"received": true,
		"event":    result.Event,
	})
}

// CheckEnrollment handles GET /api/v1/enroll/check/:courseId
func (h *EnrollHandler) CheckEnrollment(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	courseID, err := strconv.ParseUint(c.Params("courseId"), 10, 32)
	if err != nil || courseID == 0 {
		return response.BadRequest(c, "Invalid course id")
	}

	enrolled, err := h.service.IsEnrolled(c.Context(), user.ID, uint(courseID))
	if err != nil {
		return response.InternalServerError(c, "Failed to check enrollment")
	}

	return response.Success(c, fiber.Map{"enrolled": enrolled})
}

// MyCourses handles GET /api/v1/enroll/my-courses
func (h *EnrollHandler) MyCourses(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	enrollments, err := h.service.EnrollmentsByUser(c.Context(), user.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch enrollments")
	}

	return response.Success(c, enrollments)
}

// mapServiceError translates enrollment service errors to HTTP responses
func (h *EnrollHandler) mapServiceError(c *fiber.Ctx, err error) error {
	var notFound *enrollsvc.CoursesNotFoundError
	var alreadyEnrolled *enrollsvc.AlreadyEnrolledError
	var invalidCourse *enrollsvc.InvalidCourseError

	switch {
	case errors.Is(err, enrollsvc.ErrNoCoursesRequested),
		errors.Is(err, enrollsvc.ErrMissingVerificationFields),
		errors.Is(err, enrollsvc.ErrInvalidAmount),
		errors.Is(err, enrollsvc.ErrMixedCurrencies):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, enrollsvc.ErrSignatureMismatch):
		return response.BadRequest(c, "Invalid payment signature")
	case errors.Is(err, enrollsvc.ErrNoPendingPayments):
		return response.NotFound(c, "No pending payments found for this order")
	case errors.As(err, &notFound):
		return response.NotFound(c, err.Error())
	case errors.As(err, &alreadyEnrolled):
		return response.BadRequest(c, err.Error())
	case errors.As(err, &invalidCourse):
		return response.BadRequest(c, err.Error())
	default:
		return response.InternalServerError(c, "Failed to process enrollment request")
	}
}
