package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shikshacom/shiksha/internal/database/testutil"
	"github.com/shikshacom/shiksha/internal/models"
	"github.com/shikshacom/shiksha/internal/payments"
	"github.com/shikshacom/shiksha/internal/services"
	"github.com/shikshacom/shiksha/pkg/crypto"
)

const webhookTestSecret = "handler-test-secret"

type staticGateway struct{}

func (staticGateway) CreateOrder(_ context.Context, req payments.CreateOrderRequest) (*payments.GatewayOrder, error) {
	return &payments.GatewayOrder{
		ID:     "order_" + uuid.NewString()[:12],
		Amount: req.Amount,
		Status: "created",
	}, nil
}

func newWebhookRig(t *testing.T) (*gorm.DB, *services.PaymentService, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	roles, err := services.NewRoleService(db)
	require.NoError(t, err)

	svc, err := services.NewPaymentService(db, staticGateway{}, roles, webhookTestSecret)
	require.NoError(t, err)

	r := gin.New()
	r.POST("/api/webhooks/payment", NewWebhookHandler(svc).Receive)
	return db, svc, r
}

func deliver(r *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(signatureHeader, signature)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookEndpointRejectsBadSignature(t *testing.T) {
	_, _, r := newWebhookRig(t)

	body := []byte(`{"event":"payment.captured"}`)
	w := deliver(r, body, "not-a-signature")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = deliver(r, body, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookEndpointUnknownOrder(t *testing.T) {
	_, _, r := newWebhookRig(t)

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_ghost"}}}}`)
	w := deliver(r, body, crypto.SignHMAC([]byte(webhookTestSecret), body))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookEndpointAcknowledgesUnknownEventKind(t *testing.T) {
	_, _, r := newWebhookRig(t)

	body := []byte(`{"event":"refund.created","payload":{}}`)
	w := deliver(r, body, crypto.SignHMAC([]byte(webhookTestSecret), body))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "ignored")
}

func TestWebhookEndpointSettlesAndDeduplicates(t *testing.T) {
	db, svc, r := newWebhookRig(t)

	suffix := uuid.NewString()[:8]
	hashed, err := crypto.HashPassword("sup3rsecret")
	require.NoError(t, err)
	user := &models.User{
		Username:   "buyer-" + suffix,
		Email:      fmt.Sprintf("buyer-%s@example.com", suffix),
		Password:   hashed,
		IsVerified: true,
	}
	require.NoError(t, db.Create(user).Error)

	course := &models.Course{
		Title:       "Geometry",
		Slug:        "geometry-" + suffix,
		Price:       25000,
		IsPublished: true,
	}
	require.NoError(t, db.Create(course).Error)

	order, err := svc.CreateOrder(context.Background(), user.ID, course.Slug)
	require.NoError(t, err)

	body := []byte(fmt.Sprintf(
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_%s","order_id":%q}}}}`,
		suffix, order.GatewayOrderID,
	))
	signature := crypto.SignHMAC([]byte(webhookTestSecret), body)

	w := deliver(r, body, signature)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "settled")

	w = deliver(r, body, signature)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "duplicate")
}
