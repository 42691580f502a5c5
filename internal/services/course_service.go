package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/shikshacom/shiksha/internal/models"
	apperrors "github.com/shikshacom/shiksha/pkg/errors"
)

// CourseService reads the purchasable course catalogue and the enrollments
// that settlement produces.
type CourseService struct {
	db *gorm.DB
}

// NewCourseService constructs a CourseService instance.
func NewCourseService(db *gorm.DB) (*CourseService, error) {
	if db == nil {
		return nil, errors.New("course service: db is required")
	}
	return &CourseService{db: db}, nil
}

// ListPublished returns the published catalogue ordered by title.
func (s *CourseService) ListPublished(ctx context.Context) ([]models.Course, error) {
	ctx = ensureContext(ctx)

	var courses []models.Course
	err := s.db.WithContext(ctx).
		Where("is_published = ?", true).
		Order("title").
		Find(&courses).Error
	if err != nil {
		return nil, fmt.Errorf("course service: list courses: %w", err)
	}
	return courses, nil
}

// GetBySlug loads a published course by its slug.
func (s *CourseService) GetBySlug(ctx context.Context, slug string) (*models.Course, error) {
	ctx = ensureContext(ctx)

	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, apperrors.NewBadRequest("course slug is required")
	}

	var course models.Course
	err := s.db.WithContext(ctx).
		Where("slug = ? AND is_published = ?", slug, true).
		Take(&course).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("course service: load course: %w", err)
	}
	return &course, nil
}

// IsEnrolled reports whether the user holds an active enrollment in the course.
func (s *CourseService) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("user_id = ? AND course_id = ? AND status = ?",
			strings.TrimSpace(userID), strings.TrimSpace(courseID), models.EnrollmentStatusActive).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("course service: check enrollment: %w", err)
	}
	return count > 0, nil
}

// ListEnrollments returns the user's active enrollments with their courses.
func (s *CourseService) ListEnrollments(ctx context.Context, userID string) ([]models.Enrollment, error) {
	ctx = ensureContext(ctx)

	var enrollments []models.Enrollment
	err := s.db.WithContext(ctx).
		Preload("Course").
		Where("user_id = ? AND status = ?", strings.TrimSpace(userID), models.EnrollmentStatusActive).
		Order("enrolled_at DESC").
		Find(&enrollments).Error
	if err != nil {
		return nil, fmt.Errorf("course service: list enrollments: %w", err)
	}
	return enrollments, nil
}
