package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shikshacom/shiksha/internal/database/testutil"
	"github.com/shikshacom/shiksha/internal/models"
)

func newSessionService(t *testing.T) (*gorm.DB, *SessionService) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	jwtSvc, err := NewJWTService(JWTConfig{
		Secret:         "session-test",
		Issuer:         "shiksha-test",
		AccessTokenTTL: time.Minute,
	})
	require.NoError(t, err)

	svc, err := NewSessionService(db, jwtSvc, SessionConfig{})
	require.NoError(t, err)
	return db, svc
}

func sessionUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	suffix := uuid.NewString()[:8]
	user := &models.User{
		Username: "session-" + suffix,
		Email:    fmt.Sprintf("session-%s@example.com", suffix),
		Password: "irrelevant",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestCreateAndRefreshSession(t *testing.T) {
	db, svc := newSessionService(t)
	user := sessionUser(t, db)

	pair, session, err := svc.CreateSession(user.ID, SessionMetadata{IPAddress: "198.51.100.4"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, user.ID, session.UserID)

	rotated, refreshed, err := svc.RefreshSession(pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	require.Equal(t, session.ID, refreshed.ID)

	// The old refresh token is dead after rotation.
	_, _, err = svc.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRefreshRevokedSession(t *testing.T) {
	db, svc := newSessionService(t)
	user := sessionUser(t, db)

	pair, session, err := svc.CreateSession(user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(session.ID))

	_, _, err = svc.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionRevoked)

	// Double revoke reports not found.
	require.ErrorIs(t, svc.RevokeSession(session.ID), ErrSessionNotFound)
}

func TestRefreshExpiredSession(t *testing.T) {
	db, svc := newSessionService(t)
	user := sessionUser(t, db)

	pair, session, err := svc.CreateSession(user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", session.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	_, _, err = svc.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestRevokeUserSessionsAndCleanup(t *testing.T) {
	db, svc := newSessionService(t)
	user := sessionUser(t, db)

	_, _, err := svc.CreateSession(user.ID, SessionMetadata{})
	require.NoError(t, err)
	_, _, err = svc.CreateSession(user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeUserSessions(user.ID))

	var active int64
	require.NoError(t, db.Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", user.ID).
		Count(&active).Error)
	require.Zero(t, active)

	removed, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, removed, int64(2))
}
