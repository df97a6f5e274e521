package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/courseloom/api/model"
	"gorm.io/gorm"
)

var (
	// ErrAlreadyInCart is returned when a course is added to the cart twice
	ErrAlreadyInCart = errors.New("course already in cart")
	// ErrAlreadyInWishlist is returned when a course is wishlisted twice
	ErrAlreadyInWishlist = errors.New("course already in wishlist")
	// ErrCourseNotFound is returned when the course does not exist or is
	// not published
	ErrCourseNotFound = errors.New("course not found")
	// ErrAlreadyEnrolled is returned when the user already owns the course
	ErrAlreadyEnrolled = errors.New("already enrolled in course")
)

// CartService manages cart and wishlist entries
type CartService struct {
	db *gorm.DB
}

// NewCartService creates a new cart service
func NewCartService(db *gorm.DB) *CartService {
	return &CartService{db: db}
}

// GetCart lists the user's cart items with course details
func (s *CartService) GetCart(ctx context.Context, userID uint) ([]model.CartItem, error) {
	var items []model.CartItem
	err := s.db.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cart: %w", err)
	}
	return items, nil
}

// AddToCart adds a course to the user's cart. The course must exist, be
// published and not already be owned by the user.
func (s *CartService) AddToCart(ctx context.Context, userID, courseID uint) (*model.CartItem, error) {
	if err := s.checkPurchasable(ctx, userID, courseID); err != nil {
		return nil, err
	}

	var existing model.CartItem
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&existing).Error
	if err == nil {
		return nil, ErrAlreadyInCart
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check cart: %w", err)
	}

	item := model.CartItem{UserID: userID, CourseID: courseID}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyInCart
		}
		return nil, fmt.Errorf("failed to add to cart: %w", err)
	}
	return &item, nil
}

// RemoveFromCart removes one course from the user's cart
func (s *CartService) RemoveFromCart(ctx context.Context, userID, courseID uint) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Delete(&model.CartItem{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove from cart: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetWishlist lists the user's wishlist with course details
func (s *CartService) GetWishlist(ctx context.Context, userID uint) ([]model.WishlistItem, error) {
	var items []model.WishlistItem
	err := s.db.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch wishlist: %w", err)
	}
	return items, nil
}

// AddToWishlist adds a course to the user's wishlist
func (s *CartService) AddToWishlist(ctx context.Context, userID, courseID uint) (*model.WishlistItem, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Course{}).
		Where("id = ? AND published = ?", courseID, true).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check course: %w", err)
	}
	if count == 0 {
		return nil, ErrCourseNotFound
	}

	var existing model.WishlistItem
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&existing).Error
	if err == nil {
		return nil, ErrAlreadyInWishlist
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check wishlist: %w", err)
	}

	item := model.WishlistItem{UserID: userID, CourseID: courseID}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyInWishlist
		}
		return nil, fmt.Errorf("failed to add to wishlist: %w", err)
	}
	return &item, nil
}

// checkPurchasable verifies the course is published and the user is not
// already enrolled in it.
func (s *CartService) checkPurchasable(ctx context.Context, userID, courseID uint) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Course{}).
		Where("id = ? AND published = ?", courseID, true).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to check course: %w", err)
	}
	if count == 0 {
		return ErrCourseNotFound
	}

	err = s.db.WithContext(ctx).Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to check enrollment: %w", err)
	}
	if count > 0 {
		return ErrAlreadyEnrolled
	}
	return nil
}

// RemoveFromWishlist removes one course from the user's wishlist
func (s *CartService) RemoveFromWishlist(ctx context.Context, userID, courseID uint) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Delete(&model.WishlistItem{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove from wishlist: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
