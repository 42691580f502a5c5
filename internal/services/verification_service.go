package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/shikshacom/shiksha/internal/models"
	"github.com/shikshacom/shiksha/pkg/crypto"
	apperrors "github.com/shikshacom/shiksha/pkg/errors"
	"github.com/shikshacom/shiksha/pkg/mail"
)

const (
	defaultVerificationExpiry     = 24 * time.Hour
	defaultVerificationTokenBytes = 48
)

// VerificationOption customises the VerificationService.
type VerificationOption func(*VerificationService)

// WithVerificationBaseURL sets the base URL used in verification links.
func WithVerificationBaseURL(url string) VerificationOption {
	return func(s *VerificationService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithVerificationExpiry overrides the token lifetime.
func WithVerificationExpiry(d time.Duration) VerificationOption {
	return func(s *VerificationService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithVerificationClock injects a custom time source.
func WithVerificationClock(clock func() time.Time) VerificationOption {
	return func(s *VerificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// VerificationService issues and redeems single-use email verification tokens.
// Tokens are persisted hashed with a fixed time-to-live; a redeemed token can
// never be redeemed twice, even under concurrent attempts.
type VerificationService struct {
	db      *gorm.DB
	mailer  mail.Mailer
	baseURL string
	expiry  time.Duration
	now     func() time.Time
}

// NewVerificationService constructs a verification service with the provided dependencies.
func NewVerificationService(db *gorm.DB, mailer mail.Mailer, opts ...VerificationOption) (*VerificationService, error) {
	if db == nil {
		return nil, errors.New("verification service: db is required")
	}

	service := &VerificationService{
		db:     db,
		mailer: mailer,
		expiry: defaultVerificationExpiry,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Issue creates a fresh verification token for the user and dispatches the
// verification link when a mailer is configured. Any prior unconsumed tokens
// for the user are removed first, so at most one honorable token exists per
// user at any time.
func (s *VerificationService) Issue(ctx context.Context, userID, email string) (string, string, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	email = strings.TrimSpace(strings.ToLower(email))
	if userID == "" {
		return "", "", errors.New("verification service: user id is required")
	}
	if email == "" {
		return "", "", errors.New("verification service: email is required")
	}

	token, err := crypto.GenerateToken(defaultVerificationTokenBytes)
	if err != nil {
		return "", "", fmt.Errorf("verification service: generate token: %w", err)
	}

	now := s.now()
	verification := models.EmailVerification{
		UserID:    userID,
		TokenHash: hashToken(token),
		ExpiresAt: now.Add(s.expiry),
	}

	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND consumed_at IS NULL", userID).
		Delete(&models.EmailVerification{}).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", fmt.Errorf("verification service: cleanup existing: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(&verification).Error; err != nil {
		return "", "", fmt.Errorf("verification service: create token: %w", err)
	}

	link := s.verificationLink(token)

	if s.mailer != nil {
		message := mail.Message{
			To:      []string{email},
			Subject: "Verify your Shiksha account",
			Body:    s.verificationBody(link),
		}
		if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrSMTPDisabled) {
			return "", "", fmt.Errorf("verification service: send email: %w", mailErr)
		}
	}

	return token, link, nil
}

// Redeem validates and consumes a verification token, returning the consumed
// record. The consumption is a conditional update so concurrent redemption of
// the same value succeeds exactly once; the loser observes ErrTokenInvalid.
func (s *VerificationService) Redeem(ctx context.Context, token string) (*models.EmailVerification, error) {
	ctx = ensureContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.ErrTokenInvalid
	}

	var verification models.EmailVerification
	if err := s.db.WithContext(ctx).
		Where("token_hash = ?", hashToken(token)).
		First(&verification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTokenInvalid
		}
		return nil, fmt.Errorf("verification service: find token: %w", err)
	}

	now := s.now()
	if verification.ConsumedAt != nil {
		return nil, apperrors.ErrTokenInvalid
	}
	if verification.ExpiresAt.Before(now) {
		return nil, apperrors.ErrTokenExpired
	}

	result := s.db.WithContext(ctx).
		Model(&models.EmailVerification{}).
		Where("id = ? AND consumed_at IS NULL", verification.ID).
		Update("consumed_at", now)
	if result.Error != nil {
		return nil, fmt.Errorf("verification service: consume token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost a concurrent redemption race.
		return nil, apperrors.ErrTokenInvalid
	}

	verification.ConsumedAt = &now
	return &verification, nil
}

// SweepExpired deletes verification rows that are expired or already consumed.
func (s *VerificationService) SweepExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now()).
		Or("consumed_at IS NOT NULL").
		Delete(&models.EmailVerification{})
	if result.Error != nil {
		return 0, fmt.Errorf("verification service: sweep expired: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func (s *VerificationService) verificationLink(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s?token=%s", s.baseURL, token)
}

func (s *VerificationService) verificationBody(link string) string {
	return fmt.Sprintf("Welcome to Shiksha!\n\nPlease confirm your email address by visiting the link below:\n%s\n\nIf you did not create an account, you can ignore this message.\n", link)
}

func hashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
