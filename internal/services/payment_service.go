package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shikshacom/shiksha/internal/models"
	"github.com/shikshacom/shiksha/internal/payments"
	"github.com/shikshacom/shiksha/pkg/crypto"
	apperrors "github.com/shikshacom/shiksha/pkg/errors"
	"github.com/shikshacom/shiksha/pkg/logger"
	"github.com/shikshacom/shiksha/pkg/metrics"
)

// Webhook processing outcomes. Every outcome except an internal error is
// acknowledged with HTTP 200 so the gateway stops redelivering.
const (
	WebhookOutcomeSettled   = "settled"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeIgnored   = "ignored"
)

// eventPaymentCaptured is the only webhook event kind that settles an order.
const eventPaymentCaptured = "payment.captured"

// webhookEnvelope mirrors the gateway's delivery format.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// WebhookResult reports how a delivery was handled.
type WebhookResult struct {
	Outcome string `json:"status"`
}

// PaymentOption customises the PaymentService.
type PaymentOption func(*PaymentService)

// WithPaymentClock injects a custom time source.
func WithPaymentClock(clock func() time.Time) PaymentOption {
	return func(s *PaymentService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// PaymentService creates gateway orders and settles payment-confirmation
// webhooks. Settlement is idempotent: however many times the gateway delivers
// the same confirmation, its side effects are applied exactly once.
type PaymentService struct {
	db            *gorm.DB
	gateway       payments.Gateway
	roles         *RoleService
	webhookSecret string
	now           func() time.Time
}

// NewPaymentService constructs a PaymentService with its collaborators.
func NewPaymentService(db *gorm.DB, gateway payments.Gateway, roles *RoleService, webhookSecret string, opts ...PaymentOption) (*PaymentService, error) {
	if db == nil {
		return nil, errors.New("payment service: db is required")
	}
	if gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}
	if roles == nil {
		return nil, errors.New("payment service: role service is required")
	}
	if strings.TrimSpace(webhookSecret) == "" {
		return nil, errors.New("payment service: webhook secret is required")
	}

	service := &PaymentService{
		db:            db,
		gateway:       gateway,
		roles:         roles,
		webhookSecret: webhookSecret,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// CreateOrder registers a purchase intent for a published course with the
// gateway and persists the local order in CREATED state.
func (s *PaymentService) CreateOrder(ctx context.Context, userID, courseSlug string) (*models.Order, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	courseSlug = strings.TrimSpace(courseSlug)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	if courseSlug == "" {
		return nil, apperrors.NewBadRequest("course slug is required")
	}

	var course models.Course
	err := s.db.WithContext(ctx).
		Where("slug = ? AND is_published = ?", courseSlug, true).
		Take(&course).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payment service: load course: %w", err)
	}

	gatewayOrder, err := s.gateway.CreateOrder(ctx, payments.CreateOrderRequest{
		Amount:   course.Price,
		Currency: "INR",
		Receipt:  fmt.Sprintf("course_%s_user_%s", course.Slug, userID),
	})
	if err != nil {
		return nil, fmt.Errorf("payment service: gateway order: %w", err)
	}

	order := &models.Order{
		UserID:         userID,
		CourseID:       course.ID,
		GatewayOrderID: gatewayOrder.ID,
		Amount:         course.Price,
		Status:         models.OrderStatusCreated,
	}
	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, fmt.Errorf("payment service: create order: %w", err)
	}

	return order, nil
}

// HandleWebhook verifies and settles a gateway delivery. The signature is a
// hex HMAC-SHA256 of the raw body; verification happens before any parsing.
func (s *PaymentService) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error) {
	ctx = ensureContext(ctx)
	log := logger.WithModule("payments")

	if !crypto.VerifyHMAC([]byte(s.webhookSecret), rawBody, signature) {
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		return nil, apperrors.ErrSignatureMismatch
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		return nil, apperrors.NewBadRequest("malformed webhook payload")
	}

	if envelope.Event != eventPaymentCaptured {
		// Unknown kinds are acknowledged so the gateway stops retrying.
		metrics.WebhookDeliveries.WithLabelValues("ignored").Inc()
		log.Debug("ignoring webhook event", zap.String("event", envelope.Event))
		return &WebhookResult{Outcome: WebhookOutcomeIgnored}, nil
	}

	gatewayPaymentID := strings.TrimSpace(envelope.Payload.Payment.Entity.ID)
	gatewayOrderID := strings.TrimSpace(envelope.Payload.Payment.Entity.OrderID)
	if gatewayPaymentID == "" || gatewayOrderID == "" {
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		return nil, apperrors.NewBadRequest("webhook payload missing payment identifiers")
	}

	result, err := s.settle(ctx, gatewayOrderID, gatewayPaymentID, rawBody)
	if err != nil {
		if appErr := apperrors.FromError(err); appErr != nil && appErr.StatusCode < 500 {
			metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		} else {
			metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.WebhookDeliveries.WithLabelValues(result.Outcome).Inc()
	if result.Outcome == WebhookOutcomeSettled {
		metrics.Settlements.Inc()
		log.Info("order settled",
			zap.String("gateway_order_id", gatewayOrderID),
			zap.String("gateway_payment_id", gatewayPaymentID),
		)
	}

	return result, nil
}

// settle applies the side effects of a captured payment inside one
// transaction. The order row is locked first; a payment row already present
// means an earlier delivery won and the whole delivery is a no-op.
func (s *PaymentService) settle(ctx context.Context, gatewayOrderID, gatewayPaymentID string, rawBody []byte) (*WebhookResult, error) {
	var outcome string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("gateway_order_id = ?", gatewayOrderID).
			Take(&order).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("payment service: lock order: %w", err)
		}

		var existing int64
		if err := tx.Model(&models.Payment{}).
			Where("order_id = ?", order.ID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("payment service: check payment: %w", err)
		}
		if existing > 0 {
			outcome = WebhookOutcomeDuplicate
			return nil
		}

		payment := models.Payment{
			OrderID:          order.ID,
			GatewayPaymentID: gatewayPaymentID,
			Status:           models.PaymentStatusSuccess,
			RawPayload:       datatypes.JSON(rawBody),
		}
		if err := tx.Create(&payment).Error; err != nil {
			if isUniqueConstraintError(err) {
				outcome = WebhookOutcomeDuplicate
				return nil
			}
			return fmt.Errorf("payment service: create payment: %w", err)
		}

		if err := tx.Model(&order).Update("status", models.OrderStatusPaid).Error; err != nil {
			return fmt.Errorf("payment service: mark order paid: %w", err)
		}

		if err := s.upsertEnrollment(tx, order.UserID, order.CourseID); err != nil {
			return err
		}

		if err := s.roles.switchExclusiveTx(tx, order.UserID, models.RoleStudent); err != nil {
			return fmt.Errorf("payment service: promote to student: %w", err)
		}

		outcome = WebhookOutcomeSettled
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &WebhookResult{Outcome: outcome}, nil
}

func (s *PaymentService) upsertEnrollment(tx *gorm.DB, userID, courseID string) error {
	var enrollment models.Enrollment
	err := tx.
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Take(&enrollment).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		enrollment = models.Enrollment{
			UserID:     userID,
			CourseID:   courseID,
			Status:     models.EnrollmentStatusActive,
			EnrolledAt: s.now(),
		}
		if err := tx.Create(&enrollment).Error; err != nil {
			return fmt.Errorf("payment service: create enrollment: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("payment service: load enrollment: %w", err)
	}

	if enrollment.Status != models.EnrollmentStatusActive {
		if err := tx.Model(&enrollment).Updates(map[string]any{
			"status":      models.EnrollmentStatusActive,
			"enrolled_at": s.now(),
		}).Error; err != nil {
			return fmt.Errorf("payment service: reactivate enrollment: %w", err)
		}
	}

	return nil
}
