package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shikshacom/shiksha/internal/models"
	apperrors "github.com/shikshacom/shiksha/pkg/errors"
)

// RoleOption customises the RoleService.
type RoleOption func(*RoleService)

// WithRoleClock injects a custom time source.
func WithRoleClock(clock func() time.Time) RoleOption {
	return func(s *RoleService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// RoleService is the state machine over (user, role) assignments. Each pair is
// absent, pending (inactive, no approver) or active; rows are never deleted.
type RoleService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRoleService constructs a RoleService instance.
func NewRoleService(db *gorm.DB, opts ...RoleOption) (*RoleService, error) {
	if db == nil {
		return nil, errors.New("role service: db is required")
	}

	service := &RoleService{
		db:  db,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// GrantImmediate moves (user, role) from absent to active without an approver.
// Used for the default guest grant on signup.
func (s *RoleService) GrantImmediate(ctx context.Context, userID string, role models.RoleName) error {
	ctx = ensureContext(ctx)

	if err := validateRoleInput(userID, role); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		assignment := models.RoleAssignment{
			UserID:   strings.TrimSpace(userID),
			RoleName: role,
			IsActive: true,
		}
		if err := tx.Create(&assignment).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.ErrDuplicateRequest
			}
			return fmt.Errorf("role service: grant role: %w", err)
		}

		// First active grant establishes the primary-role pointer.
		return tx.Model(&models.User{}).
			Where("id = ? AND primary_role IS NULL", assignment.UserID).
			Update("primary_role", role).Error
	})
}

// RequestApproval moves (user, role) from absent to pending. It fails with
// ErrAlreadyHasRole when the role is already active and ErrDuplicateRequest
// when any row for the pair exists, including the unique-index race between
// two concurrent requests.
func (s *RoleService) RequestApproval(ctx context.Context, userID string, role models.RoleName) (*models.RoleAssignment, error) {
	ctx = ensureContext(ctx)

	if err := validateRoleInput(userID, role); err != nil {
		return nil, err
	}

	userID = strings.TrimSpace(userID)

	var existing models.RoleAssignment
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND role_name = ?", userID, role).
		Take(&existing).Error
	switch {
	case err == nil:
		if existing.IsActive {
			return nil, apperrors.ErrAlreadyHasRole
		}
		return nil, apperrors.ErrDuplicateRequest
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through to create
	default:
		return nil, fmt.Errorf("role service: check existing assignment: %w", err)
	}

	assignment := &models.RoleAssignment{
		UserID:   userID,
		RoleName: role,
		IsActive: false,
	}
	if err := s.db.WithContext(ctx).Create(assignment).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrDuplicateRequest
		}
		return nil, fmt.Errorf("role service: create request: %w", err)
	}

	return assignment, nil
}

// Approve moves (user, role) from pending to active, stamping the approver and
// approval time. It fails with ErrNoPendingRequest when no pending row exists.
func (s *RoleService) Approve(ctx context.Context, userID string, role models.RoleName, approverID string) (*models.RoleAssignment, error) {
	ctx = ensureContext(ctx)

	if err := validateRoleInput(userID, role); err != nil {
		return nil, err
	}
	approverID = strings.TrimSpace(approverID)
	if approverID == "" {
		return nil, apperrors.NewBadRequest("approver id is required")
	}

	userID = strings.TrimSpace(userID)
	now := s.now()

	var assignment models.RoleAssignment

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND role_name = ?", userID, role).
			Take(&assignment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNoPendingRequest
		}
		if err != nil {
			return fmt.Errorf("role service: load request: %w", err)
		}

		if assignment.IsActive {
			return apperrors.ErrNoPendingRequest
		}

		updates := map[string]any{
			"is_active":      true,
			"approved_by_id": approverID,
			"approved_at":    now,
		}
		if err := tx.Model(&assignment).Updates(updates).Error; err != nil {
			return fmt.Errorf("role service: approve request: %w", err)
		}

		assignment.IsActive = true
		assignment.ApprovedByID = &approverID
		assignment.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &assignment, nil
}

// SwitchExclusive deactivates every currently active assignment for the user
// and activates-or-creates the target role, as one atomic unit. A concurrent
// reader never observes the user with zero active roles or with both old and
// new roles active. Only the payment settlement path calls this.
func (s *RoleService) SwitchExclusive(ctx context.Context, userID string, toRole models.RoleName) error {
	ctx = ensureContext(ctx)

	if err := validateRoleInput(userID, toRole); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.switchExclusiveTx(tx, userID, toRole)
	})
}

// switchExclusiveTx is the transactional body of SwitchExclusive, exposed so
// the payment settlement transaction can run the switch in its own scope.
func (s *RoleService) switchExclusiveTx(tx *gorm.DB, userID string, toRole models.RoleName) error {
	userID = strings.TrimSpace(userID)

	// Lock the user's assignment rows to serialize against concurrent
	// RequestApproval/Approve calls for the same user.
	var assignments []models.RoleAssignment
	if err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Find(&assignments).Error; err != nil {
		return fmt.Errorf("role service: lock assignments: %w", err)
	}

	if err := tx.Model(&models.RoleAssignment{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false).Error; err != nil {
		return fmt.Errorf("role service: deactivate roles: %w", err)
	}

	var target *models.RoleAssignment
	for i := range assignments {
		if assignments[i].RoleName == toRole {
			target = &assignments[i]
			break
		}
	}

	if target != nil {
		if err := tx.Model(target).Update("is_active", true).Error; err != nil {
			return fmt.Errorf("role service: activate target role: %w", err)
		}
	} else {
		created := models.RoleAssignment{
			UserID:   userID,
			RoleName: toRole,
			IsActive: true,
		}
		if err := tx.Create(&created).Error; err != nil {
			return fmt.Errorf("role service: create target role: %w", err)
		}
	}

	result := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Update("primary_role", toRole)
	if result.Error != nil {
		return fmt.Errorf("role service: update primary role: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// HasRole reports whether an active assignment exists for (user, role).
func (s *RoleService) HasRole(ctx context.Context, userID string, role models.RoleName) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.RoleAssignment{}).
		Where("user_id = ? AND role_name = ? AND is_active = ?", strings.TrimSpace(userID), role, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("role service: check role: %w", err)
	}
	return count > 0, nil
}

// ActiveRoles returns the names of the user's active roles.
func (s *RoleService) ActiveRoles(ctx context.Context, userID string) ([]models.RoleName, error) {
	ctx = ensureContext(ctx)

	var names []models.RoleName
	err := s.db.WithContext(ctx).
		Model(&models.RoleAssignment{}).
		Where("user_id = ? AND is_active = ?", strings.TrimSpace(userID), true).
		Order("role_name").
		Pluck("role_name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("role service: list active roles: %w", err)
	}
	return names, nil
}

func validateRoleInput(userID string, role models.RoleName) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.NewBadRequest("user id is required")
	}
	if !models.KnownRole(role) {
		return apperrors.NewBadRequest(fmt.Sprintf("unknown role %q", role))
	}
	return nil
}
