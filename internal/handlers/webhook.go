package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shikshacom/shiksha/internal/services"
	"github.com/shikshacom/shiksha/pkg/errors"
	"github.com/shikshacom/shiksha/pkg/response"
)

// signatureHeader carries the gateway's hex HMAC of the raw request body.
const signatureHeader = "X-Razorpay-Signature"

const maxWebhookBody = 1 << 20

// WebhookHandler receives payment-confirmation deliveries from the gateway.
type WebhookHandler struct {
	payments *services.PaymentService
}

func NewWebhookHandler(payments *services.PaymentService) *WebhookHandler {
	return &WebhookHandler{payments: payments}
}

// POST /api/webhooks/payment
//
// The body is read raw before any parsing so the signature check covers the
// exact bytes the gateway signed.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, errors.NewBadRequest("unable to read request body"))
		return
	}

	result, err := h.payments.HandleWebhook(requestContext(c), body, c.GetHeader(signatureHeader))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}
