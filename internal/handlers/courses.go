package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shikshacom/shiksha/internal/middleware"
	"github.com/shikshacom/shiksha/internal/services"
	"github.com/shikshacom/shiksha/pkg/errors"
	"github.com/shikshacom/shiksha/pkg/response"
)

// CourseHandler serves the published catalogue and the caller's enrollments.
type CourseHandler struct {
	courses *services.CourseService
}

func NewCourseHandler(courses *services.CourseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// GET /api/courses
func (h *CourseHandler) List(c *gin.Context) {
	courses, err := h.courses.ListPublished(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"courses": courses})
}

// GET /api/courses/:slug
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.GetBySlug(requestContext(c), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"course": course})
}

// GET /api/enrollments
func (h *CourseHandler) Enrollments(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	enrollments, err := h.courses.ListEnrollments(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"enrollments": enrollments})
}
