package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shikshacom/shiksha/internal/middleware"
	"github.com/shikshacom/shiksha/internal/services"
	"github.com/shikshacom/shiksha/pkg/errors"
	"github.com/shikshacom/shiksha/pkg/response"
)

// OrderHandler registers purchase intents with the payment gateway.
type OrderHandler struct {
	payments *services.PaymentService
}

func NewOrderHandler(payments *services.PaymentService) *OrderHandler {
	return &OrderHandler{payments: payments}
}

type createOrderRequest struct {
	CourseSlug string `json:"course_slug" validate:"required"`
}

// POST /api/orders
func (h *OrderHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req createOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}

	order, err := h.payments.CreateOrder(requestContext(c), userID, req.CourseSlug)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"order": order})
}
