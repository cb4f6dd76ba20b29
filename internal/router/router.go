package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vs-ai-ds/hms-backend/internal/middleware"
)

// Handler is anything that can mount its routes on a group.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// TenantHandler additionally owns tenant-scoped routes that require
// an established tenant context.
type TenantHandler interface {
	Handler
	RegisterTenantRoutes(*gin.RouterGroup)
	RegisterPlatformRoutes(*gin.RouterGroup)
}

// AuthHandler splits its routes across the public and authenticated
// groups.
type AuthHandler interface {
	Handler
	RegisterProtectedRoutes(*gin.RouterGroup)
}

// SharingHandler mounts its redemption route outside the tenant
// chain; the share token is the credential there.
type SharingHandler interface {
	Handler
	RegisterRedeemRoute(*gin.RouterGroup)
}

// AuditHandler exposes the tenant-scoped trail and the operators'
// unscoped one.
type AuditHandler interface {
	Handler
	RegisterPlatformRoutes(*gin.RouterGroup)
}

type Handlers struct {
	Health       Handler
	Auth         AuthHandler
	Tenant       TenantHandler
	Patient      Handler
	Appointment  Handler
	Prescription Handler
	Admission    Handler
	Stock        Handler
	Department   Handler
	User         Handler
	RBAC         Handler
	Sharing      SharingHandler
	Audit        AuditHandler
}

type Config struct {
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
	CORS           middleware.CORSConfig
	MetricsPrefix  string
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	guard    *middleware.TenantContextMiddleware
	platform *middleware.PlatformMiddleware
	handlers Handlers
	metrics  *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	guard *middleware.TenantContextMiddleware,
	platform *middleware.PlatformMiddleware,
	handlers Handlers,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		guard:    guard,
		platform: platform,
		handlers: handlers,
		metrics:  initRouterMetrics(config.MetricsPrefix),
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		r.metricsMiddleware(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)
	engine.Use(middleware.CORS(config.CORS))

	limiter := middleware.NewRateLimiter(config.RateLimitRPS, config.RateLimitBurst)
	engine.Use(limiter.Limit())

	return r
}

func (r *Router) Setup() {
	root := r.engine.Group("")
	r.handlers.Health.RegisterRoutes(root)
	root.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.setupPublicRoutes(api)

	authed := api.Group("", r.auth.Authenticate())
	r.handlers.Auth.RegisterProtectedRoutes(authed)

	r.setupTenantRoutes(authed)
	r.setupPlatformRoutes(authed)
}

// Public routes: credential endpoints, hospital registration and
// share redemption. Redemption authenticates by the token in the
// body, not by a session.
func (r *Router) setupPublicRoutes(rg *gin.RouterGroup) {
	r.handlers.Auth.RegisterRoutes(rg)
	r.handlers.Tenant.RegisterRoutes(rg)
	r.handlers.Sharing.RegisterRedeemRoute(rg)
}

// Tenant routes run behind the full chain: authentication, tenant
// context establishment, access-reason capture and cache suppression
// on clinical payloads.
func (r *Router) setupTenantRoutes(rg *gin.RouterGroup) {
	scoped := rg.Group("",
		r.guard.Establish(),
		middleware.AccessReason(),
		middleware.NoStore(),
	)

	r.handlers.Tenant.RegisterTenantRoutes(scoped)
	r.handlers.Patient.RegisterRoutes(scoped)
	r.handlers.Appointment.RegisterRoutes(scoped)
	r.handlers.Prescription.RegisterRoutes(scoped)
	r.handlers.Admission.RegisterRoutes(scoped)
	r.handlers.Stock.RegisterRoutes(scoped)
	r.handlers.Department.RegisterRoutes(scoped)
	r.handlers.User.RegisterRoutes(scoped)
	r.handlers.RBAC.RegisterRoutes(scoped)
	r.handlers.Sharing.RegisterRoutes(scoped)
	r.handlers.Audit.RegisterRoutes(scoped)
}

func (r *Router) setupPlatformRoutes(rg *gin.RouterGroup) {
	platform := rg.Group("/platform", r.platform.RequireOperator())
	r.handlers.Tenant.RegisterPlatformRoutes(platform)
	r.handlers.Audit.RegisterPlatformRoutes(platform)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string) *routerMetrics {
	m := &routerMetrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of HTTP errors",
			},
			[]string{"method", "path", "type"},
		),
	}
	prometheus.MustRegister(m.requestDuration, m.requestTotal, m.errorTotal)
	return m
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		status := fmt.Sprintf("%d", c.Writer.Status())
		duration := time.Since(start).Seconds()

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		if c.Writer.Status() >= 400 {
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "http").Inc()
		}
	}
}
