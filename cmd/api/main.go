package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/vs-ai-ds/hms-backend/internal/authz"
	"github.com/vs-ai-ds/hms-backend/internal/config"
	"github.com/vs-ai-ds/hms-backend/internal/email"
	admissionHandler "github.com/vs-ai-ds/hms-backend/internal/handler/admission"
	appointmentHandler "github.com/vs-ai-ds/hms-backend/internal/handler/appointment"
	auditHandler "github.com/vs-ai-ds/hms-backend/internal/handler/audit"
	authHandler "github.com/vs-ai-ds/hms-backend/internal/handler/auth"
	departmentHandler "github.com/vs-ai-ds/hms-backend/internal/handler/department"
	healthHandler "github.com/vs-ai-ds/hms-backend/internal/handler/health"
	patientHandler "github.com/vs-ai-ds/hms-backend/internal/handler/patient"
	prescriptionHandler "github.com/vs-ai-ds/hms-backend/internal/handler/prescription"
	rbacHandler "github.com/vs-ai-ds/hms-backend/internal/handler/rbac"
	sharingHandler "github.com/vs-ai-ds/hms-backend/internal/handler/sharing"
	stockHandler "github.com/vs-ai-ds/hms-backend/internal/handler/stock"
	tenantHandler "github.com/vs-ai-ds/hms-backend/internal/handler/tenant"
	userHandler "github.com/vs-ai-ds/hms-backend/internal/handler/user"
	"github.com/vs-ai-ds/hms-backend/internal/middleware"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository/postgres"
	"github.com/vs-ai-ds/hms-backend/internal/router"
	admissionService "github.com/vs-ai-ds/hms-backend/internal/service/admission"
	appointmentService "github.com/vs-ai-ds/hms-backend/internal/service/appointment"
	auditService "github.com/vs-ai-ds/hms-backend/internal/service/audit"
	authService "github.com/vs-ai-ds/hms-backend/internal/service/auth"
	departmentService "github.com/vs-ai-ds/hms-backend/internal/service/department"
	patientService "github.com/vs-ai-ds/hms-backend/internal/service/patient"
	prescriptionService "github.com/vs-ai-ds/hms-backend/internal/service/prescription"
	rbacService "github.com/vs-ai-ds/hms-backend/internal/service/rbac"
	stockService "github.com/vs-ai-ds/hms-backend/internal/service/stock"
	tenantService "github.com/vs-ai-ds/hms-backend/internal/service/tenant"
	userService "github.com/vs-ai-ds/hms-backend/internal/service/user"
	"github.com/vs-ai-ds/hms-backend/internal/sharing"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
	"github.com/vs-ai-ds/hms-backend/internal/workflow"
	pkgauth "github.com/vs-ai-ds/hms-backend/pkg/auth"
	"github.com/vs-ai-ds/hms-backend/pkg/logger"
	"github.com/vs-ai-ds/hms-backend/pkg/metrics"
)

const tokenIssuer = "hms-backend"

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)
	zl := appLogger.Zerolog()

	db, err := postgres.NewDB(postgres.DBConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx := context.Background()
	if err := postgres.EnsurePublicSchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare public schema")
	}

	base := postgres.NewBaseRepository(db)
	tenantRepo := postgres.NewTenantRepository(base)
	userRepo := postgres.NewUserRepository(base)
	tokenRepo := postgres.NewTokenRepository(base)
	permRepo := postgres.NewPermissionRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)
	auditRepo := postgres.NewAuditRepository(base)
	shareRepo := postgres.NewShareRepository(base)
	provisioner := postgres.NewSchemaProvisioner(base)

	if err := seedPermissions(ctx, permRepo); err != nil {
		log.Fatal().Err(err).Msg("failed to seed permission catalogue")
	}

	m := metrics.NewMetrics("hms", "api")

	scope := tenant.NewScope(db, zl, m)
	resolver := tenant.NewResolver(tenantRepo, cfg.Authz.CacheTTL())

	stores := postgres.NewTenantStores
	rbacSource := rbacService.NewSource(scope, stores)
	evaluator := authz.NewEvaluator(rbacSource, cfg.Authz.CacheTTL(), m)

	engine := workflow.NewEngine(postgres.NewWorkflowRepository(db), outboxRepo, zl, m)
	engine.Register(appointmentService.Table(stores, cfg.Workflow.CheckinGrace()))
	engine.Register(prescriptionService.Table(stores))
	engine.Register(admissionService.Table(stores))

	jwtSvc := pkgauth.NewJWTService(cfg.JWT.Secret, tokenIssuer, cfg.JWT.AccessTTL(), cfg.JWT.RefreshTTL())
	emailSender := email.NewSender(cfg.Email.ToSenderConfig(), zl)
	emailSvc := email.NewService(emailSender, cfg.Email.LinkBaseURL)

	auditorSvc := auditService.NewService(auditRepo, zl)
	authSvc := authService.NewService(userRepo, tokenRepo, jwtSvc, emailSvc, auditorSvc, zl)
	tenantSvc := tenantService.NewService(tenantRepo, userRepo, tokenRepo, provisioner, outboxRepo, emailSvc, auditorSvc, resolver, zl, cfg.Tenant.AutoActivate)
	userSvc := userService.NewService(userRepo, tenantRepo, scope, stores, outboxRepo, emailSvc, auditorSvc, evaluator, zl)
	patientSvc := patientService.NewService(scope, stores, tenantRepo, auditorSvc)
	appointmentSvc := appointmentService.NewService(scope, stores, userRepo, engine, outboxRepo, auditorSvc)
	prescriptionSvc := prescriptionService.NewService(scope, stores, userRepo, engine, outboxRepo, auditorSvc)
	admissionSvc := admissionService.NewService(scope, stores, userRepo, engine, outboxRepo, auditorSvc)
	stockSvc := stockService.NewService(scope, stores, outboxRepo, auditorSvc)
	departmentSvc := departmentService.NewService(scope, stores, auditorSvc)
	rbacSvc := rbacService.NewService(scope, stores, permRepo, userRepo, evaluator, auditorSvc)
	sharingSvc := sharing.NewService(scope, stores, shareRepo, resolver, outboxRepo, auditorSvc, zl, cfg.Sharing.DefaultTTL())

	authMw := middleware.NewAuthMiddleware(authSvc)
	guard := middleware.NewTenantContextMiddleware(resolver, evaluator, userRepo, cfg.Authz.OnboardingStatuses)
	platformMw := middleware.NewPlatformMiddleware(userRepo)

	handlers := router.Handlers{
		Health:       healthHandler.NewHandler(db),
		Auth:         authHandler.NewHandler(authSvc),
		Tenant:       tenantHandler.NewHandler(tenantSvc, guard),
		Patient:      patientHandler.NewHandler(patientSvc, evaluator, guard),
		Appointment:  appointmentHandler.NewHandler(appointmentSvc, evaluator, guard),
		Prescription: prescriptionHandler.NewHandler(prescriptionSvc, evaluator, guard),
		Admission:    admissionHandler.NewHandler(admissionSvc, evaluator, guard),
		Stock:        stockHandler.NewHandler(stockSvc, guard),
		Department:   departmentHandler.NewHandler(departmentSvc, guard),
		User:         userHandler.NewHandler(userSvc, guard),
		RBAC:         rbacHandler.NewHandler(rbacSvc, guard),
		Sharing:      sharingHandler.NewHandler(sharingSvc, guard),
		Audit:        auditHandler.NewHandler(auditorSvc, guard),
	}

	r := router.NewRouter(authMw, guard, platformMw, handlers, router.Config{
		RateLimitRPS:   cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst: cfg.RateLimit.Burst,
		RequestTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		CORS: middleware.CORSConfig{
			AllowOrigins: cfg.CORS.AllowedOrigins,
		},
		MetricsPrefix: "hms_api",
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}

func seedPermissions(ctx context.Context, repo interface {
	UpsertMany(ctx context.Context, permissions []*model.Permission) error
}) error {
	defs := authz.Catalogue()
	permissions := make([]*model.Permission, 0, len(defs))
	for _, d := range defs {
		permissions = append(permissions, &model.Permission{
			Base:        model.Base{ID: uuid.New()},
			Code:        d.Code,
			Description: d.Description,
		})
	}
	return repo.UpsertMany(ctx, permissions)
}
