package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shikshacom/shiksha/internal/middleware"
	"github.com/shikshacom/shiksha/internal/services"
	"github.com/shikshacom/shiksha/pkg/errors"
	"github.com/shikshacom/shiksha/pkg/response"
)

// RoleHandler exposes the teacher-role request and approval flow.
type RoleHandler struct {
	auth  *services.AuthService
	roles *services.RoleService
}

func NewRoleHandler(auth *services.AuthService, roles *services.RoleService) *RoleHandler {
	return &RoleHandler{auth: auth, roles: roles}
}

// POST /api/roles/teacher/request
func (h *RoleHandler) RequestTeacher(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	assignment, err := h.auth.RequestTeacherRole(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"request": assignment})
}

type approveTeacherRequest struct {
	UserID string `json:"user_id" validate:"required,uuid4"`
}

// POST /api/roles/teacher/approve (admin only)
func (h *RoleHandler) ApproveTeacher(c *gin.Context) {
	approverID := c.GetString(middleware.CtxUserIDKey)
	if approverID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req approveTeacherRequest
	if !bindAndValidate(c, &req) {
		return
	}

	assignment, err := h.auth.ApproveTeacherRole(requestContext(c), req.UserID, approverID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"assignment": assignment})
}

// GET /api/roles/mine
func (h *RoleHandler) Mine(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	roles, err := h.roles.ActiveRoles(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"roles": roles})
}
