package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shikshacom/shiksha/internal/models"
	apperrors "github.com/shikshacom/shiksha/pkg/errors"
)

func TestGrantImmediate(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, false)

	svc, err := NewRoleService(db)
	require.NoError(t, err)

	require.NoError(t, svc.GrantImmediate(context.Background(), user.ID, models.RoleGuest))

	has, err := svc.HasRole(context.Background(), user.ID, models.RoleGuest)
	require.NoError(t, err)
	require.True(t, has)

	var refreshed models.User
	require.NoError(t, db.Take(&refreshed, "id = ?", user.ID).Error)
	require.NotNil(t, refreshed.PrimaryRole)
	require.Equal(t, models.RoleGuest, *refreshed.PrimaryRole)

	// One row per (user, role); a second grant conflicts.
	err = svc.GrantImmediate(context.Background(), user.ID, models.RoleGuest)
	require.ErrorIs(t, err, apperrors.ErrDuplicateRequest)
}

func TestGrantImmediateRejectsUnknownRole(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, false)

	svc, err := NewRoleService(db)
	require.NoError(t, err)

	err = svc.GrantImmediate(context.Background(), user.ID, models.RoleName("superuser"))
	require.Error(t, err)
	appErr := apperrors.FromError(err)
	require.Equal(t, 400, appErr.StatusCode)
}

func TestRequestApprovalLifecycle(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, true)
	admin := createTestUser(t, db, true)

	svc, err := NewRoleService(db)
	require.NoError(t, err)

	request, err := svc.RequestApproval(context.Background(), user.ID, models.RoleTeacher)
	require.NoError(t, err)
	require.False(t, request.IsActive)
	require.Nil(t, request.ApprovedByID)

	// A second request while one is pending conflicts.
	_, err = svc.RequestApproval(context.Background(), user.ID, models.RoleTeacher)
	require.ErrorIs(t, err, apperrors.ErrDuplicateRequest)

	assignment, err := svc.Approve(context.Background(), user.ID, models.RoleTeacher, admin.ID)
	require.NoError(t, err)
	require.True(t, assignment.IsActive)
	require.NotNil(t, assignment.ApprovedByID)
	require.Equal(t, admin.ID, *assignment.ApprovedByID)
	require.NotNil(t, assignment.ApprovedAt)

	// Once active, further requests and approvals both fail.
	_, err = svc.RequestApproval(context.Background(), user.ID, models.RoleTeacher)
	require.ErrorIs(t, err, apperrors.ErrAlreadyHasRole)

	_, err = svc.Approve(context.Background(), user.ID, models.RoleTeacher, admin.ID)
	require.ErrorIs(t, err, apperrors.ErrNoPendingRequest)
}

func TestApproveWithoutRequest(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, true)
	admin := createTestUser(t, db, true)

	svc, err := NewRoleService(db)
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), user.ID, models.RoleTeacher, admin.ID)
	require.ErrorIs(t, err, apperrors.ErrNoPendingRequest)
}

func TestSwitchExclusive(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, true)

	svc, err := NewRoleService(db)
	require.NoError(t, err)

	require.NoError(t, svc.GrantImmediate(context.Background(), user.ID, models.RoleGuest))

	require.NoError(t, svc.SwitchExclusive(context.Background(), user.ID, models.RoleStudent))

	names := activeRoleNames(t, db, user.ID)
	require.Equal(t, []models.RoleName{models.RoleStudent}, names)

	var refreshed models.User
	require.NoError(t, db.Take(&refreshed, "id = ?", user.ID).Error)
	require.NotNil(t, refreshed.PrimaryRole)
	require.Equal(t, models.RoleStudent, *refreshed.PrimaryRole)

	// The guest row survives as inactive; rows are never deleted.
	var total int64
	require.NoError(t, db.Model(&models.RoleAssignment{}).
		Where("user_id = ?", user.ID).Count(&total).Error)
	require.Equal(t, int64(2), total)

	// Switching again reuses the existing row.
	require.NoError(t, svc.SwitchExclusive(context.Background(), user.ID, models.RoleStudent))
	require.Equal(t, []models.RoleName{models.RoleStudent}, activeRoleNames(t, db, user.ID))
}

func TestSwitchExclusiveUnknownUser(t *testing.T) {
	db := newTestDB(t)

	svc, err := NewRoleService(db)
	require.NoError(t, err)

	err = svc.SwitchExclusive(context.Background(), "7b6fc6f0-0000-0000-0000-000000000000", models.RoleStudent)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestActiveRoles(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, true)
	admin := createTestUser(t, db, true)

	svc, err := NewRoleService(db)
	require.NoError(t, err)

	require.NoError(t, svc.GrantImmediate(context.Background(), user.ID, models.RoleGuest))
	_, err = svc.RequestApproval(context.Background(), user.ID, models.RoleTeacher)
	require.NoError(t, err)

	// Pending rows are not active roles.
	names, err := svc.ActiveRoles(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, []models.RoleName{models.RoleGuest}, names)

	_, err = svc.Approve(context.Background(), user.ID, models.RoleTeacher, admin.ID)
	require.NoError(t, err)

	names, err = svc.ActiveRoles(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, []models.RoleName{models.RoleGuest, models.RoleTeacher}, names)
}
