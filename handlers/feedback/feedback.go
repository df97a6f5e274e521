package feedback

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/courseloom/api/model"
	"github.com/courseloom/api/utils/middleware"
	"github.com/courseloom/api/utils/response"
	"github.com/courseloom/api/utils/validation"
)

// FeedbackHandler handles course feedback endpoints
type FeedbackHandler struct {
	db        *gorm.DB
	validator *validation.Validator
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(db *gorm.DB) *FeedbackHandler {
	return &FeedbackHandler{
		db:        db,
		validator: validation.NewValidator(),
	}
}

// SubmitFeedbackRequest represents the feedback submission body
type SubmitFeedbackRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=5000"`
}

// SubmitFeedback handles POST /api/v1/courses/:id/feedback. Only enrolled
// students may rate a course; resubmitting updates the existing rating.
func (h *FeedbackHandler) SubmitFeedback(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	courseID, err := parseCourseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid course id")
	}

	var req SubmitFeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var enrolled int64
	if err := h.db.Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ?", user.ID, courseID).
		Count(&enrolled).Error; err != nil {
		return response.InternalServerError(c, "Failed to submit feedback")
	}
	if enrolled == 0 {
		return response.Forbidden(c, "You must be enrolled to rate this course")
	}

	comment := validation.StripHTML(req.Comment)

	var feedback model.CourseFeedback
	err = h.db.Where("user_id = ? AND course_id = ?", user.ID, courseID).First(&feedback).Error
	switch {
	case err == nil:
		feedback.Rating = req.Rating
		feedback.Comment = comment
		if err := h.db.Save(&feedback).Error; err != nil {
			return response.InternalServerError(c, "Failed to update feedback")
		}
		return response.Success(c, feedback)
	case errors.Is(err, gorm.ErrRecordNotFound):
		feedback = model.CourseFeedback{
			UserID:   user.ID,
			CourseID: courseID,
			Rating:   req.Rating,
			Comment:  comment,
		}
		if err := h.db.Create(&feedback).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return response.Conflict(c, "Feedback already submitted")
			}
			return response.InternalServerError(c, "Failed to submit feedback")
		}
		return response.Created(c, feedback)
	default:
		return response.InternalServerError(c, "Failed to submit feedback")
	}
}

// ListFeedback handles GET /api/v1/courses/:id/feedback
func (h *FeedbackHandler) ListFeedback(c *fiber.Ctx) error {
	courseID, err := parseCourseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid course id")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := h.db.Model(&model.CourseFeedback{}).Where("course_id = ?", courseID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch feedback")
	}

	var feedback []model.CourseFeedback
	if err := query.
		Preload("User").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&feedback).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch feedback")
	}

	return response.Paginated(c, feedback, response.CalculatePagination(page, limit, total))
}

// DeleteFeedback handles DELETE /api/v1/courses/:id/feedback
func (h *FeedbackHandler) DeleteFeedback(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	courseID, err := parseCourseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid course id")
	}

	result := h.db.Where("user_id = ? AND course_id = ?", user.ID, courseID).
		Delete(&model.CourseFeedback{})
	if result.Error != nil {
		return response.InternalServerError(c, "Failed to delete feedback")
	}
	if result.RowsAffected == 0 {
		return response.NotFound(c, "Feedback not found")
	}

	return response.SuccessWithMessage(c, "Feedback deleted", nil)
}

func parseCourseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid course id")
	}
	return uint(id), nil
}
