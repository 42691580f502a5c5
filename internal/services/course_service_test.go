package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shikshacom/shiksha/internal/models"
	apperrors "github.com/shikshacom/shiksha/pkg/errors"
)

func TestCourseCatalogue(t *testing.T) {
	db := newTestDB(t)

	svc, err := NewCourseService(db)
	require.NoError(t, err)

	published := createTestCourse(t, db, 9900)
	hidden := createTestCourse(t, db, 4900)
	require.NoError(t, db.Model(hidden).Update("is_published", false).Error)

	courses, err := svc.ListPublished(context.Background())
	require.NoError(t, err)

	slugs := make(map[string]bool, len(courses))
	for _, c := range courses {
		slugs[c.Slug] = true
	}
	require.True(t, slugs[published.Slug])
	require.False(t, slugs[hidden.Slug])

	got, err := svc.GetBySlug(context.Background(), published.Slug)
	require.NoError(t, err)
	require.Equal(t, published.ID, got.ID)

	_, err = svc.GetBySlug(context.Background(), hidden.Slug)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestEnrollmentQueries(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, true)
	course := createTestCourse(t, db, 9900)

	svc, err := NewCourseService(db)
	require.NoError(t, err)

	enrolled, err := svc.IsEnrolled(context.Background(), user.ID, course.ID)
	require.NoError(t, err)
	require.False(t, enrolled)

	require.NoError(t, db.Create(&models.Enrollment{
		UserID:   user.ID,
		CourseID: course.ID,
		Status:   models.EnrollmentStatusActive,
	}).Error)

	enrolled, err = svc.IsEnrolled(context.Background(), user.ID, course.ID)
	require.NoError(t, err)
	require.True(t, enrolled)

	list, err := svc.ListEnrollments(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Course)
	require.Equal(t, course.Slug, list[0].Course.Slug)
}
