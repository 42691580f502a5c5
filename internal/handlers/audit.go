package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shikshacom/shiksha/internal/services"
	"github.com/shikshacom/shiksha/pkg/response"
)

// AuditHandler exposes the authentication audit trail to administrators.
type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GET /api/audit/events (admin only)
func (h *AuditHandler) List(c *gin.Context) {
	opts := services.AuditListOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "per_page", 50),
		Filters: services.AuditFilters{
			UserID:    strings.TrimSpace(c.Query("user_id")),
			EventType: strings.TrimSpace(c.Query("event_type")),
		},
	}

	if since := strings.TrimSpace(c.Query("since")); since != "" {
		if ts, err := time.Parse(time.RFC3339, since); err == nil {
			opts.Filters.Since = &ts
		}
	}
	if until := strings.TrimSpace(c.Query("until")); until != "" {
		if ts, err := time.Parse(time.RFC3339, until); err == nil {
			opts.Filters.Until = &ts
		}
	}

	events, total, err := h.audit.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	totalPages := int(total) / perPage
	if int(total)%perPage != 0 {
		totalPages++
	}

	response.SuccessWithMeta(c, http.StatusOK, gin.H{"events": events}, &response.Meta{
		Page:       opts.Page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: totalPages,
	})
}
