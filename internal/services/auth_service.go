package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"gorm.io/gorm"

	"github.com/shikshacom/shiksha/internal/auth"
	"github.com/shikshacom/shiksha/internal/models"
	"github.com/shikshacom/shiksha/pkg/crypto"
	apperrors "github.com/shikshacom/shiksha/pkg/errors"
	"github.com/shikshacom/shiksha/pkg/metrics"
)

const minPasswordLength = 8

// ErrUserNotFound indicates the requested user does not exist.
var ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", 404)

// ClientMeta carries request metadata used for audit logging.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// SignupInput describes the fields accepted when registering a user.
type SignupInput struct {
	Username string
	Email    string
	Password string
}

// LoginInput carries the credentials presented at login.
type LoginInput struct {
	Email    string
	Password string
	Meta     ClientMeta
}

// PublicUser is the projection of a user safe to return to callers.
type PublicUser struct {
	ID          string            `json:"id"`
	Username    string            `json:"username"`
	Email       string            `json:"email"`
	IsVerified  bool              `json:"is_verified"`
	IsAdmin     bool              `json:"is_admin"`
	PrimaryRole *models.RoleName  `json:"primary_role"`
	ActiveRoles []models.RoleName `json:"active_roles"`
}

// LoginResult bundles the session credential with the public user projection.
type LoginResult struct {
	User   PublicUser     `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

// AuthOption customises the AuthService.
type AuthOption func(*AuthService)

// WithAuthClock injects a custom time source.
func WithAuthClock(clock func() time.Time) AuthOption {
	return func(s *AuthService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// AuthService orchestrates signup, login, email verification and the
// teacher-role request flow. Verification gating is its central invariant: no
// code path hands out a session credential for an unverified user.
type AuthService struct {
	db           *gorm.DB
	sessions     *auth.SessionService
	verification *VerificationService
	roles        *RoleService
	audit        *AuditService
	now          func() time.Time
}

// NewAuthService constructs an AuthService with its collaborators.
func NewAuthService(db *gorm.DB, sessions *auth.SessionService, verification *VerificationService, roles *RoleService, audit *AuditService, opts ...AuthOption) (*AuthService, error) {
	if db == nil {
		return nil, errors.New("auth service: db is required")
	}
	if sessions == nil {
		return nil, errors.New("auth service: session service is required")
	}
	if verification == nil {
		return nil, errors.New("auth service: verification service is required")
	}
	if roles == nil {
		return nil, errors.New("auth service: role service is required")
	}

	service := &AuthService{
		db:           db,
		sessions:     sessions,
		verification: verification,
		roles:        roles,
		audit:        audit,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Signup registers a new unverified user, grants the guest role and issues a
// verification token. It never returns a session credential.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*PublicUser, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" {
		return nil, apperrors.NewBadRequest("username is required")
	}
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth service: hash password: %w", err)
	}

	user := &models.User{
		Username:   username,
		Email:      email,
		Password:   hashed,
		IsVerified: false,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(user).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("username or email already exists")
		}
		return nil, fmt.Errorf("auth service: create user: %w", err)
	}

	if err := s.roles.GrantImmediate(ctx, user.ID, models.RoleGuest); err != nil {
		return nil, fmt.Errorf("auth service: grant guest role: %w", err)
	}

	// Mail dispatch is fire-and-forget; a disabled mailer is not an error.
	if _, _, err := s.verification.Issue(ctx, user.ID, user.Email); err != nil {
		return nil, fmt.Errorf("auth service: issue verification token: %w", err)
	}

	projection := s.project(ctx, user)
	return &projection, nil
}

// Login authenticates the credential pair. Unverified users are blocked before
// any credential is minted.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		recordAuthEvent(s.audit, ctx, AuthEventEntry{
			EventType: models.EventLoginFailed,
			IPAddress: input.Meta.IPAddress,
			UserAgent: input.Meta.UserAgent,
		})
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("auth service: query user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		recordAuthEvent(s.audit, ctx, AuthEventEntry{
			EventType: models.EventLoginFailed,
			UserID:    &user.ID,
			IPAddress: input.Meta.IPAddress,
			UserAgent: input.Meta.UserAgent,
		})
		return nil, apperrors.ErrInvalidCredentials
	}

	if !user.IsVerified {
		metrics.AuthAttempts.WithLabelValues("blocked_unverified").Inc()
		recordAuthEvent(s.audit, ctx, AuthEventEntry{
			EventType: models.EventLoginBlockedUnverified,
			UserID:    &user.ID,
			IPAddress: input.Meta.IPAddress,
			UserAgent: input.Meta.UserAgent,
		})
		return nil, apperrors.ErrEmailNotVerified
	}

	pair, _, err := s.sessions.CreateSession(user.ID, auth.SessionMetadata{
		IPAddress: input.Meta.IPAddress,
		UserAgent: input.Meta.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: create session: %w", err)
	}

	now := s.now()
	_ = s.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"last_login_at": now,
		"last_login_ip": strings.TrimSpace(input.Meta.IPAddress),
	}).Error

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	recordAuthEvent(s.audit, ctx, AuthEventEntry{
		EventType: models.EventLoginSuccess,
		UserID:    &user.ID,
		IPAddress: input.Meta.IPAddress,
		UserAgent: input.Meta.UserAgent,
	})

	return &LoginResult{
		User:   s.project(ctx, &user),
		Tokens: pair,
	}, nil
}

// VerifyEmail redeems a verification token and flips the user's verified flag.
// Verifying an already-verified user is an idempotent no-op.
func (s *AuthService) VerifyEmail(ctx context.Context, token string, meta ClientMeta) (*PublicUser, error) {
	ctx = ensureContext(ctx)

	verification, err := s.verification.Redeem(ctx, token)
	if err != nil {
		recordAuthEvent(s.audit, ctx, AuthEventEntry{
			EventType: models.EventVerifyEmailFailed,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
		})
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", verification.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth service: load user: %w", err)
	}

	if !user.IsVerified {
		now := s.now()
		if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]any{
			"is_verified": true,
			"verified_at": now,
		}).Error; err != nil {
			return nil, fmt.Errorf("auth service: mark verified: %w", err)
		}
		user.IsVerified = true
		user.VerifiedAt = &now
	}

	recordAuthEvent(s.audit, ctx, AuthEventEntry{
		EventType: models.EventVerifyEmailSuccess,
		UserID:    &user.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	projection := s.project(ctx, &user)
	return &projection, nil
}

// ResendVerification issues a fresh token for an unverified account.
func (s *AuthService) ResendVerification(ctx context.Context, email string, meta ClientMeta) error {
	ctx = ensureContext(ctx)

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperrors.NewBadRequest("email is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("auth service: query user: %w", err)
	}

	if user.IsVerified {
		return apperrors.ErrAlreadyVerified
	}

	if _, _, err := s.verification.Issue(ctx, user.ID, user.Email); err != nil {
		return fmt.Errorf("auth service: issue verification token: %w", err)
	}

	recordAuthEvent(s.audit, ctx, AuthEventEntry{
		EventType: models.EventResendVerification,
		UserID:    &user.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	return nil
}

// RequestTeacherRole records a pending teacher-role request for the user.
// Callers must ensure the user is authenticated and verified.
func (s *AuthService) RequestTeacherRole(ctx context.Context, userID string) (*models.RoleAssignment, error) {
	return s.roles.RequestApproval(ensureContext(ctx), userID, models.RoleTeacher)
}

// ApproveTeacherRole activates a pending teacher-role request. Callers must
// ensure the approver holds the administrator capability.
func (s *AuthService) ApproveTeacherRole(ctx context.Context, userID, approverID string) (*models.RoleAssignment, error) {
	return s.roles.Approve(ensureContext(ctx), userID, models.RoleTeacher, approverID)
}

// GetUser loads the public projection for an existing user.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*PublicUser, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("auth service: load user: %w", err)
	}

	projection := s.project(ctx, &user)
	return &projection, nil
}

func (s *AuthService) project(ctx context.Context, user *models.User) PublicUser {
	active, err := s.roles.ActiveRoles(ctx, user.ID)
	if err != nil {
		active = nil
	}

	return PublicUser{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		IsVerified:  user.IsVerified,
		IsAdmin:     user.IsAdmin,
		PrimaryRole: user.PrimaryRole,
		ActiveRoles: active,
	}
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.NewBadRequest(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return apperrors.NewBadRequest("password must contain both letters and digits")
	}

	return nil
}
