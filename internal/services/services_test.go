package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shikshacom/shiksha/internal/database/testutil"
	"github.com/shikshacom/shiksha/internal/models"
	"github.com/shikshacom/shiksha/pkg/crypto"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithSeedData())
}

func createTestUser(t *testing.T, db *gorm.DB, verified bool) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("sup3rsecret")
	require.NoError(t, err)

	suffix := uuid.NewString()[:8]
	user := &models.User{
		Username:   fmt.Sprintf("user-%s", suffix),
		Email:      fmt.Sprintf("user-%s@example.com", suffix),
		Password:   hashed,
		IsVerified: verified,
	}
	if verified {
		now := time.Now()
		user.VerifiedAt = &now
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestCourse(t *testing.T, db *gorm.DB, price int64) *models.Course {
	t.Helper()

	suffix := uuid.NewString()[:8]
	course := &models.Course{
		Title:       fmt.Sprintf("Course %s", suffix),
		Slug:        fmt.Sprintf("course-%s", suffix),
		Price:       price,
		IsPublished: true,
	}
	require.NoError(t, db.Create(course).Error)
	return course
}

func activeRoleNames(t *testing.T, db *gorm.DB, userID string) []models.RoleName {
	t.Helper()

	var names []models.RoleName
	require.NoError(t, db.
		Model(&models.RoleAssignment{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("role_name").
		Pluck("role_name", &names).Error)
	return names
}
