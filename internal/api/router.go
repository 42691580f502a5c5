package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/shikshacom/shiksha/internal/auth"
	"github.com/shikshacom/shiksha/internal/handlers"
	"github.com/shikshacom/shiksha/internal/middleware"
	"github.com/shikshacom/shiksha/internal/services"
)

// Services bundles the domain services the router depends on.
type Services struct {
	Auth     *services.AuthService
	Roles    *services.RoleService
	Courses  *services.CourseService
	Payments *services.PaymentService
	Audit    *services.AuditService
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, sessions *iauth.SessionService, svc Services) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}
	if svc.Auth == nil || svc.Roles == nil || svc.Courses == nil || svc.Payments == nil || svc.Audit == nil {
		return nil, fmt.Errorf("all services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	// Basic rate limiting: 100 requests/minute per IP+path
	r.Use(middleware.RateLimit(100, time.Minute))

	r.GET("/health", handlers.Health(db))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(svc.Auth, sessions)
	roleHandler := handlers.NewRoleHandler(svc.Auth, svc.Roles)
	courseHandler := handlers.NewCourseHandler(svc.Courses)
	orderHandler := handlers.NewOrderHandler(svc.Payments)
	webhookHandler := handlers.NewWebhookHandler(svc.Payments)
	auditHandler := handlers.NewAuditHandler(svc.Audit)

	// Public auth routes. Login and resend carry tighter limits because both
	// are abuse targets.
	auth := r.Group("/api/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", middleware.RateLimit(10, time.Minute), authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.GET("/verify-email", authHandler.VerifyEmail)
		auth.POST("/resend-verification", middleware.RateLimit(3, time.Minute), authHandler.ResendVerification)
	}

	// Gateway deliveries authenticate with an HMAC signature, not a session.
	r.POST("/api/webhooks/payment", webhookHandler.Receive)

	// Public catalogue
	r.GET("/api/courses", courseHandler.List)
	r.GET("/api/courses/:slug", courseHandler.Get)

	requireAuth := middleware.Auth(jwt)
	requireAdmin := middleware.RequireAdmin(db)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)
	api.POST("/auth/logout", authHandler.Logout)

	api.GET("/enrollments", courseHandler.Enrollments)
	api.POST("/orders", orderHandler.Create)

	roles := api.Group("/roles")
	{
		roles.GET("/mine", roleHandler.Mine)
		roles.POST("/teacher/request", roleHandler.RequestTeacher)
		roles.POST("/teacher/approve", requireAdmin, roleHandler.ApproveTeacher)
	}

	api.GET("/audit/events", requireAdmin, auditHandler.List)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
