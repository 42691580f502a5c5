package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/shikshacom/shiksha/internal/auth"
	"github.com/shikshacom/shiksha/internal/models"
	apperrors "github.com/shikshacom/shiksha/pkg/errors"
)

type authStack struct {
	db           *gorm.DB
	auth         *AuthService
	verification *VerificationService
	roles        *RoleService
	audit        *AuditService
	sessions     *iauth.SessionService
}

func newAuthStack(t *testing.T) *authStack {
	t.Helper()

	db := newTestDB(t)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "test-secret",
		Issuer:         "shiksha-test",
		AccessTokenTTL: time.Minute,
	})
	require.NoError(t, err)

	sessions, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{})
	require.NoError(t, err)

	verification, err := NewVerificationService(db, nil)
	require.NoError(t, err)

	roles, err := NewRoleService(db)
	require.NoError(t, err)

	audit, err := NewAuditService(db)
	require.NoError(t, err)

	auth, err := NewAuthService(db, sessions, verification, roles, audit)
	require.NoError(t, err)

	return &authStack{
		db:           db,
		auth:         auth,
		verification: verification,
		roles:        roles,
		audit:        audit,
		sessions:     sessions,
	}
}

func signupInput() SignupInput {
	suffix := uuid.NewString()[:8]
	return SignupInput{
		Username: fmt.Sprintf("learner-%s", suffix),
		Email:    fmt.Sprintf("learner-%s@example.com", suffix),
		Password: "pass1234word",
	}
}

func countAuditEvents(t *testing.T, db *gorm.DB, userID string, eventType models.AuthEventType) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.AuthEvent{}).
		Where("user_id = ? AND event_type = ?", userID, eventType).
		Count(&count).Error)
	return count
}

func TestSignupCreatesUnverifiedGuest(t *testing.T) {
	stack := newAuthStack(t)
	input := signupInput()

	user, err := stack.auth.Signup(context.Background(), input)
	require.NoError(t, err)
	require.False(t, user.IsVerified)
	require.NotNil(t, user.PrimaryRole)
	require.Equal(t, models.RoleGuest, *user.PrimaryRole)
	require.Equal(t, []models.RoleName{models.RoleGuest}, user.ActiveRoles)

	// A verification token was issued for the new account.
	var tokens int64
	require.NoError(t, stack.db.Model(&models.EmailVerification{}).
		Where("user_id = ?", user.ID).Count(&tokens).Error)
	require.Equal(t, int64(1), tokens)

	// No session exists until the user verifies and logs in.
	var sessions int64
	require.NoError(t, stack.db.Model(&models.Session{}).
		Where("user_id = ?", user.ID).Count(&sessions).Error)
	require.Zero(t, sessions)
}

func TestSignupDuplicateEmail(t *testing.T) {
	stack := newAuthStack(t)
	input := signupInput()

	_, err := stack.auth.Signup(context.Background(), input)
	require.NoError(t, err)

	input.Username = input.Username + "-other"
	_, err = stack.auth.Signup(context.Background(), input)
	require.Error(t, err)
	require.Equal(t, 400, apperrors.FromError(err).StatusCode)
}

func TestSignupWeakPassword(t *testing.T) {
	stack := newAuthStack(t)

	input := signupInput()
	input.Password = "short1"
	_, err := stack.auth.Signup(context.Background(), input)
	require.Error(t, err)

	input = signupInput()
	input.Password = "allletterspassword"
	_, err = stack.auth.Signup(context.Background(), input)
	require.Error(t, err)
}

func TestLoginBlockedUntilVerified(t *testing.T) {
	stack := newAuthStack(t)
	input := signupInput()

	user, err := stack.auth.Signup(context.Background(), input)
	require.NoError(t, err)

	_, err = stack.auth.Login(context.Background(), LoginInput{
		Email:    input.Email,
		Password: input.Password,
	})
	require.ErrorIs(t, err, apperrors.ErrEmailNotVerified)
	require.Equal(t, int64(1), countAuditEvents(t, stack.db, user.ID, models.EventLoginBlockedUnverified))

	var sessions int64
	require.NoError(t, stack.db.Model(&models.Session{}).
		Where("user_id = ?", user.ID).Count(&sessions).Error)
	require.Zero(t, sessions)
}

func TestVerifyThenLogin(t *testing.T) {
	stack := newAuthStack(t)
	input := signupInput()

	user, err := stack.auth.Signup(context.Background(), input)
	require.NoError(t, err)

	token, _, err := stack.verification.Issue(context.Background(), user.ID, input.Email)
	require.NoError(t, err)

	verified, err := stack.auth.VerifyEmail(context.Background(), token, ClientMeta{})
	require.NoError(t, err)
	require.True(t, verified.IsVerified)
	require.Equal(t, int64(1), countAuditEvents(t, stack.db, user.ID, models.EventVerifyEmailSuccess))

	result, err := stack.auth.Login(context.Background(), LoginInput{
		Email:    input.Email,
		Password: input.Password,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Tokens.AccessToken)
	require.NotEmpty(t, result.Tokens.RefreshToken)
	require.Equal(t, user.ID, result.User.ID)
	require.Equal(t, int64(1), countAuditEvents(t, stack.db, user.ID, models.EventLoginSuccess))
}

func TestLoginIsCaseInsensitiveOnEmail(t *testing.T) {
	stack := newAuthStack(t)
	input := signupInput()

	user, err := stack.auth.Signup(context.Background(), input)
	require.NoError(t, err)

	token, _, err := stack.verification.Issue(context.Background(), user.ID, input.Email)
	require.NoError(t, err)
	_, err = stack.auth.VerifyEmail(context.Background(), token, ClientMeta{})
	require.NoError(t, err)

	result, err := stack.auth.Login(context.Background(), LoginInput{
		Email:    "  " + strings.ToUpper(input.Email) + " ",
		Password: input.Password,
	})
	require.NoError(t, err)
	require.Equal(t, user.ID, result.User.ID)
}

func TestLoginWrongPassword(t *testing.T) {
	stack := newAuthStack(t)
	input := signupInput()

	user, err := stack.auth.Signup(context.Background(), input)
	require.NoError(t, err)

	_, err = stack.auth.Login(context.Background(), LoginInput{
		Email:    input.Email,
		Password: "wrong-password1",
	})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	require.Equal(t, int64(1), countAuditEvents(t, stack.db, user.ID, models.EventLoginFailed))
}

func TestLoginUnknownEmail(t *testing.T) {
	stack := newAuthStack(t)

	// Unknown account and wrong password are indistinguishable to the caller.
	_, err := stack.auth.Login(context.Background(), LoginInput{
		Email:    "nobody-" + uuid.NewString()[:8] + "@example.com",
		Password: "whatever123",
	})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestVerifyEmailIsIdempotent(t *testing.T) {
	stack := newAuthStack(t)
	input := signupInput()

	user, err := stack.auth.Signup(context.Background(), input)
	require.NoError(t, err)

	token, _, err := stack.verification.Issue(context.Background(), user.ID, input.Email)
	require.NoError(t, err)
	first, err := stack.auth.VerifyEmail(context.Background(), token, ClientMeta{})
	require.NoError(t, err)
	require.True(t, first.IsVerified)

	// Verifying an already-verified account with a fresh token stays verified.
	token2, _, err := stack.verification.Issue(context.Background(), user.ID, input.Email)
	require.NoError(t, err)
	second, err := stack.auth.VerifyEmail(context.Background(), token2, ClientMeta{})
	require.NoError(t, err)
	require.True(t, second.IsVerified)

	var refreshed models.User
	require.NoError(t, stack.db.Take(&refreshed, "id = ?", user.ID).Error)
	require.NotNil(t, refreshed.VerifiedAt)
}

func TestVerifyEmailBadTokenAudited(t *testing.T) {
	stack := newAuthStack(t)

	_, err := stack.auth.VerifyEmail(context.Background(), "bogus", ClientMeta{})
	require.ErrorIs(t, err, apperrors.ErrTokenInvalid)

	var count int64
	require.NoError(t, stack.db.Model(&models.AuthEvent{}).
		Where("event_type = ?", models.EventVerifyEmailFailed).
		Count(&count).Error)
	require.GreaterOrEqual(t, count, int64(1))
}

func TestResendVerification(t *testing.T) {
	stack := newAuthStack(t)
	input := signupInput()

	user, err := stack.auth.Signup(context.Background(), input)
	require.NoError(t, err)

	require.NoError(t, stack.auth.ResendVerification(context.Background(), input.Email, ClientMeta{}))
	require.Equal(t, int64(1), countAuditEvents(t, stack.db, user.ID, models.EventResendVerification))

	// After verification a resend is rejected.
	token, _, err := stack.verification.Issue(context.Background(), user.ID, input.Email)
	require.NoError(t, err)
	_, err = stack.auth.VerifyEmail(context.Background(), token, ClientMeta{})
	require.NoError(t, err)

	err = stack.auth.ResendVerification(context.Background(), input.Email, ClientMeta{})
	require.ErrorIs(t, err, apperrors.ErrAlreadyVerified)
}

func TestResendVerificationUnknownEmail(t *testing.T) {
	stack := newAuthStack(t)

	err := stack.auth.ResendVerification(context.Background(), "ghost-"+uuid.NewString()[:8]+"@example.com", ClientMeta{})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestTeacherRoleFlow(t *testing.T) {
	stack := newAuthStack(t)
	user := createTestUser(t, stack.db, true)
	admin := createTestUser(t, stack.db, true)

	request, err := stack.auth.RequestTeacherRole(context.Background(), user.ID)
	require.NoError(t, err)
	require.False(t, request.IsActive)

	assignment, err := stack.auth.ApproveTeacherRole(context.Background(), user.ID, admin.ID)
	require.NoError(t, err)
	require.True(t, assignment.IsActive)

	has, err := stack.roles.HasRole(context.Background(), user.ID, models.RoleTeacher)
	require.NoError(t, err)
	require.True(t, has)
}
