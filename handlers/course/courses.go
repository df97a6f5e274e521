package course

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/courseloom/api/model"
	"github.com/courseloom/api/services/storage"
	"github.com/courseloom/api/utils/middleware"
	"github.com/courseloom/api/utils/pdfvalidation"
	"github.com/courseloom/api/utils/response"
	"github.com/courseloom/api/utils/validation"
)

// MaxThumbnailSizeMB limits thumbnail uploads
const MaxThumbnailSizeMB = 5

// CourseHandler handles course catalog endpoints
type CourseHandler struct {
	db        *gorm.DB
	storage   *storage.Client
	validator *validation.Validator
}

// NewCourseHandler creates a new course handler. The storage client may be
// nil, in which case upload endpoints are disabled.
func NewCourseHandler(db *gorm.DB, storageClient *storage.Client) *CourseHandler {
	return &CourseHandler{
		db:        db,
		storage:   storageClient,
		validator: validation.NewValidator(),
	}
}

// CreateCourseRequest represents the course creation request body
type CreateCourseRequest struct {
	Title       string  `json:"title" validate:"required,min=3,max=200"`
	Description string  `json:"description" validate:"max=10000"`
	Category    string  `json:"category" validate:"max=100"`
	Level       string  `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Price       float64 `json:"price" validate:"gte=0"`
	Currency    string  `json:"currency" validate:"omitempty,len=3"`
}

// UpdateCourseRequest represents the course update request body
type UpdateCourseRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string  `json:"description" validate:"omitempty,max=10000"`
	Category    *string  `json:"category" validate:"omitempty,max=100"`
	Level       *string  `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
}

// ListCourses handles GET /api/v1/courses. Only published courses are
// listed; supports category/level filters and pagination.
func (h *CourseHandler) ListCourses(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := h.db.Model(&model.Course{}).Where("published = ?", true)
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if level := c.Query("level"); level != "" {
		query = query.Where("level = ?", level)
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("title ILIKE ?", "%"+validation.SanitizeString(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch courses")
	}

	var courses []model.Course
	if err := query.
		Preload("Instructor").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&courses).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch courses")
	}

	return response.Paginated(c, courses, response.CalculatePagination(page, limit, total))
}

// GetCourse handles GET /api/v1/courses/:id
func (h *CourseHandler) GetCourse(c *fiber.Ctx) error {
	courseID, err := h.parseCourseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid course id")
	}

	var course model.Course
	if err := h.db.Preload("Instructor").First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	// Unpublished courses are only visible to their instructor
	if !course.Published {
		user, ok := middleware.GetUser(c)
		if !ok || user == nil || (user.ID != course.InstructorID && user.Role != model.RoleAdmin) {
			return response.NotFound(c, "Course not found")
		}
	}

	return response.Success(c, course)
}

// CreateCourse handles POST /api/v1/courses (instructor only)
func (h *CourseHandler) CreateCourse(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "INR"
	}
	level := req.Level
	if level == "" {
		level = "beginner"
	}

	course := model.Course{
		InstructorID: user.ID,
		Title:        validation.SanitizeString(req.Title),
		Description:  validation.StripHTML(req.Description),
		Category:     validation.SanitizeString(req.Category),
		Level:        level,
		Price:        req.Price,
		Currency:     currency,
	}
	if err := h.db.Create(&course).Error; err != nil {
		return response.InternalServerError(c, "Failed to create course")
	}

	return response.Created(c, course)
}

// UpdateCourse handles PUT /api/v1/courses/:id. Only the provided fields
// are changed.
func (h *CourseHandler) UpdateCourse(c *fiber.Ctx) error {
	course, errResp := h.loadOwnedCourse(c)
	if errResp != nil {
		return errResp
	}

	var req UpdateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = validation.SanitizeString(*req.Title)
	}
	if req.Description != nil {
		updates["description"] = validation.StripHTML(*req.Description)
	}
	if req.Category != nil {
		updates["category"] = validation.SanitizeString(*req.Category)
	}
	if req.Level != nil {
		updates["level"] = *req.Level
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if len(updates) == 0 {
		return response.BadRequest(c, "No fields to update")
	}

	if err := h.db.Model(course).Updates(updates).Error; err != nil {
		return response.InternalServerError(c, "Failed to update course")
	}

	return response.Success(c, course)
}

// PublishCourse handles POST /api/v1/courses/:id/publish
func (h *CourseHandler) PublishCourse(c *fiber.Ctx) error {
	course, errResp := h.loadOwnedCourse(c)
	if errResp != nil {
		return errResp
	}

	if err := h.db.Model(course).Update("published", true).Error; err != nil {
		return response.InternalServerError(c, "Failed to publish course")
	}

	return response.SuccessWithMessage(c, "Course published", course)
}

// DeleteCourse handles DELETE /api/v1/courses/:id. Soft delete; enrolled
// students keep access through their enrollment records.
func (h *CourseHandler) DeleteCourse(c *fiber.Ctx) error {
	course, errResp := h.loadOwnedCourse(c)
	if errResp != nil {
		return errResp
	}

	if err := h.db.Delete(course).Error; err != nil {
		return response.InternalServerError(c, "Failed to delete course")
	}

	return response.SuccessWithMessage(c, "Course deleted", nil)
}

// UploadThumbnail handles POST /api/v1/courses/:id/thumbnail
func (h *CourseHandler) UploadThumbnail(c *fiber.Ctx) error {
	if h.storage == nil {
		return response.BadRequest(c, "File uploads are not configured")
	}

	course, errResp := h.loadOwnedCourse(c)
	if errResp != nil {
		return errResp
	}

	file, err := c.FormFile("thumbnail")
	if err != nil {
		return response.BadRequest(c, "Missing thumbnail file")
	}
	if file.Size > MaxThumbnailSizeMB*1024*1024 {
		return response.BadRequest(c, "Thumbnail exceeds maximum size of 5MB")
	}

	contentType := file.Header.Get("Content-Type")
	if contentType != "image/jpeg" && contentType != "image/png" && contentType != "image/webp" {
		return response.BadRequest(c, "Thumbnail must be a JPEG, PNG or WebP image")
	}

	src, err := file.Open()
	if err != nil {
		return response.InternalServerError(c, "Failed to read uploaded file")
	}
	defer src.Close()

	url, err := h.storage.UploadCourseThumbnail(c.Context(), course.ID, file.Filename, src, contentType)
	if err != nil {
		return response.InternalServerError(c, "Failed to upload thumbnail")
	}

	if err := h.db.Model(course).Update("thumbnail_url", url).Error; err != nil {
		return response.InternalServerError(c, "Failed to save thumbnail URL")
	}

	return response.Success(c, fiber.Map{"thumbnail_url": url})
}

// UploadSyllabus handles POST /api/v1/courses/:id/syllabus
func (h *CourseHandler) UploadSyllabus(c *fiber.Ctx) error {
	if h.storage == nil {
		return response.BadRequest(c, "File uploads are not configured")
	}

	course, errResp := h.loadOwnedCourse(c)
	if errResp != nil {
		return errResp
	}

	file, err := c.FormFile("syllabus")
	if err != nil {
		return response.BadRequest(c, "Missing syllabus file")
	}

	result, err := pdfvalidation.ValidatePDFFile(file, pdfvalidation.SyllabusLimits)
	if err != nil {
		return response.InternalServerError(c, "Failed to validate PDF")
	}
	if !result.Valid {
		return response.BadRequest(c, result.Error)
	}

	src, err := file.Open()
	if err != nil {
		return response.InternalServerError(c, "Failed to read uploaded file")
	}
	defer src.Close()

	url, err := h.storage.UploadCourseSyllabus(c.Context(), course.ID, file.Filename, src)
	if err != nil {
		return response.InternalServerError(c, "Failed to upload syllabus")
	}

	if err := h.db.Model(course).Update("syllabus_url", url).Error; err != nil {
		return response.InternalServerError(c, "Failed to save syllabus URL")
	}

	return response.Success(c, fiber.Map{
		"syllabus_url": url,
		"page_count":   result.PageCount,
	})
}

func (h *CourseHandler) parseCourseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid course id")
	}
	return uint(id), nil
}

// loadOwnedCourse fetches the course from the path and checks the caller
// owns it (or is an admin). Returns a non-nil error response on failure.
func (h *CourseHandler) loadOwnedCourse(c *fiber.Ctx) (*model.Course, error) {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return nil, response.Unauthorized(c, "User not authenticated")
	}

	courseID, err := h.parseCourseID(c)
	if err != nil {
		return nil, response.BadRequest(c, "Invalid course id")
	}

	var course model.Course
	if err := h.db.First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NotFound(c, "Course not found")
		}
		return nil, response.InternalServerError(c, "Failed to fetch course")
	}

	if course.InstructorID != user.ID && user.Role != model.RoleAdmin {
		return nil, response.Forbidden(c, "You do not own this course")
	}

	return &course, nil
}
