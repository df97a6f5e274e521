package cart

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/courseloom/api/services"
	"github.com/courseloom/api/utils/middleware"
	"github.com/courseloom/api/utils/response"
)

// CartHandler handles cart and wishlist endpoints
type CartHandler struct {
	service *services.CartService
}

// NewCartHandler creates a new cart handler
func NewCartHandler(service *services.CartService) *CartHandler {
	return &CartHandler{service: service}
}

// AddItemRequest represents the add-to-cart/wishlist request body
type AddItemRequest struct {
	CourseID uint `json:"course_id"`
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	items, err := h.service.GetCart(c.Context(), user.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch cart")
	}
	return response.Success(c, items)
}

// AddToCart handles POST /api/v1/cart
func (h *CartHandler) AddToCart(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req AddItemRequest
	if err := c.BodyParser(&req); err != nil || req.CourseID == 0 {
		return response.BadRequest(c, "Invalid course id")
	}

	item, err := h.service.AddToCart(c.Context(), user.ID, req.CourseID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAlreadyInCart):
			return response.Conflict(c, "Course is already in your cart")
		case errors.Is(err, services.ErrCourseNotFound):
			return response.NotFound(c, "Course not found")
		case errors.Is(err, services.ErrAlreadyEnrolled):
			return response.BadRequest(c, "You are already enrolled in this course")
		default:
			return response.InternalServerError(c, "Failed to add course to cart")
		}
	}
	return response.Created(c, item)
}

// RemoveFromCart handles DELETE /api/v1/cart/:courseId
func (h *CartHandler) RemoveFromCart(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	courseID, err := parseCourseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid course id")
	}

	if err := h.service.RemoveFromCart(c.Context(), user.ID, courseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Course is not in your cart")
		}
		return response.InternalServerError(c, "Failed to remove course from cart")
	}
	return response.SuccessWithMessage(c, "Removed from cart", nil)
}

// GetWishlist handles GET /api/v1/wishlist
func (h *CartHandler) GetWishlist(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	items, err := h.service.GetWishlist(c.Context(), user.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch wishlist")
	}
	return response.Success(c, items)
}

// AddToWishlist handles POST /api/v1/wishlist
func (h *CartHandler) AddToWishlist(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req AddItemRequest
	if err := c.BodyParser(&req); err != nil || req.CourseID == 0 {
		return response.BadRequest(c, "Invalid course id")
	}

	item, err := h.service.AddToWishlist(c.Context(), user.ID, req.CourseID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAlreadyInWishlist):
			return response.Conflict(c, "Course is already in your wishlist")
		case errors.Is(err, services.ErrCourseNotFound):
			return response.NotFound(c, "Course not found")
		default:
			return response.InternalServerError(c, "Failed to add course to wishlist")
		}
	}
	return response.Created(c, item)
}

// RemoveFromWishlist handles DELETE /api/v1/wishlist/:courseId
func (h *CartHandler) RemoveFromWishlist(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	courseID, err := parseCourseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid course id")
	}

	if err := h.service.RemoveFromWishlist(c.Context(), user.ID, courseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Course is not in your wishlist")
		}
		return response.InternalServerError(c, "Failed to remove course from wishlist")
	}
	return response.SuccessWithMessage(c, "Removed from wishlist", nil)
}

func parseCourseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("courseId"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid course id")
	}
	return uint(id), nil
}
