package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shikshacom/shiksha/internal/api"
	"github.com/shikshacom/shiksha/internal/app"
	"github.com/shikshacom/shiksha/internal/app/maintenance"
	iauth "github.com/shikshacom/shiksha/internal/auth"
	"github.com/shikshacom/shiksha/internal/database"
	"github.com/shikshacom/shiksha/internal/payments"
	"github.com/shikshacom/shiksha/internal/services"
	"github.com/shikshacom/shiksha/pkg/logger"
	"github.com/shikshacom/shiksha/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	SessionSvc *iauth.SessionService
	AuditSvc   *services.AuditService
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, services, and the HTTP router.
func bootstrapRuntime(_ context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.SessionSvc, err = iauth.NewSessionService(stack.DB, jwtSvc, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	stack.AuditSvc, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	verificationSvc, err := services.NewVerificationService(stack.DB, mailer,
		services.WithVerificationBaseURL(cfg.Auth.Verification.BaseURL),
		services.WithVerificationExpiry(cfg.Auth.Verification.TokenTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise verification service: %w", err)
	}

	roleSvc, err := services.NewRoleService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise role service: %w", err)
	}

	authSvc, err := services.NewAuthService(stack.DB, stack.SessionSvc, verificationSvc, roleSvc, stack.AuditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}

	courseSvc, err := services.NewCourseService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise course service: %w", err)
	}

	gateway, err := payments.NewClient(payments.ClientConfig{
		BaseURL:   cfg.Payments.Gateway.BaseURL,
		KeyID:     cfg.Payments.Gateway.KeyID,
		KeySecret: cfg.Payments.Gateway.KeySecret,
		Timeout:   cfg.Payments.Gateway.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise payment gateway: %w", err)
	}

	paymentSvc, err := services.NewPaymentService(stack.DB, gateway, roleSvc, cfg.Payments.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("initialise payment service: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.SessionSvc, stack.AuditSvc, verificationSvc,
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays))
	if cfg.Maintenance.Enabled {
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, stack.SessionSvc, api.Services{
		Auth:     authSvc,
		Roles:    roleSvc,
		Courses:  courseSvc,
		Payments: paymentSvc,
		Audit:    stack.AuditSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
