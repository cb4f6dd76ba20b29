package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/vs-ai-ds/hms-backend/internal/config"
	"github.com/vs-ai-ds/hms-backend/internal/email"
	"github.com/vs-ai-ds/hms-backend/internal/notification"
	"github.com/vs-ai-ds/hms-backend/internal/repository/postgres"
	admissionService "github.com/vs-ai-ds/hms-backend/internal/service/admission"
	appointmentService "github.com/vs-ai-ds/hms-backend/internal/service/appointment"
	prescriptionService "github.com/vs-ai-ds/hms-backend/internal/service/prescription"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
	"github.com/vs-ai-ds/hms-backend/internal/worker"
	"github.com/vs-ai-ds/hms-backend/internal/workflow"
	"github.com/vs-ai-ds/hms-backend/pkg/logger"
	"github.com/vs-ai-ds/hms-backend/pkg/messaging/redis"
	"github.com/vs-ai-ds/hms-backend/pkg/metrics"
)

// WorkerConfig holds the worker-only tunables. Shared settings
// (database, email, workflow) come from the same config file the API
// reads.
type WorkerConfig struct {
	HealthAddr string `envconfig:"WORKER_HEALTH_ADDR" default:":8081"`

	RedisURL      string `envconfig:"REDIS_URL" default:"redis://localhost:6379"`
	RedisPoolSize int    `envconfig:"REDIS_POOL_SIZE" default:"10"`

	RelayBatchSize       int `envconfig:"RELAY_BATCH_SIZE" default:"100"`
	RelayPollSeconds     int `envconfig:"RELAY_POLL_SECONDS" default:"5"`
	RelayMaxAttempts     int `envconfig:"RELAY_MAX_ATTEMPTS" default:"5"`
	RelayRetrySeconds    int `envconfig:"RELAY_RETRY_SECONDS" default:"30"`
	NoShowThresholdHours int `envconfig:"NOSHOW_THRESHOLD_HOURS" default:"3"`
	NoShowSweepMinutes   int `envconfig:"NOSHOW_SWEEP_MINUTES" default:"10"`
	ShareExpiryMinutes   int `envconfig:"SHARE_EXPIRY_MINUTES" default:"5"`
	JanitorIntervalHours int `envconfig:"JANITOR_INTERVAL_HOURS" default:"1"`
	AuditRetentionDays   int `envconfig:"AUDIT_RETENTION_DAYS" default:"365"`
	OutboxRetentionDays  int `envconfig:"OUTBOX_RETENTION_DAYS" default:"7"`

	SMSEnabled      bool `envconfig:"SMS_ENABLED" default:"false"`
	WhatsAppEnabled bool `envconfig:"WHATSAPP_ENABLED" default:"false"`
}

func main() {
	_ = godotenv.Load()

	var wcfg WorkerConfig
	if err := envconfig.Process("", &wcfg); err != nil {
		log.Fatal().Err(err).Msg("failed to read worker environment")
	}

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

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:      wcfg.RedisURL,
		PoolSize: wcfg.RedisPoolSize,
	}, &zl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	base := postgres.NewBaseRepository(db)
	tenantRepo := postgres.NewTenantRepository(base)
	userRepo := postgres.NewUserRepository(base)
	tokenRepo := postgres.NewTokenRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)
	auditRepo := postgres.NewAuditRepository(base)
	shareRepo := postgres.NewShareRepository(base)
	notifRepo := postgres.NewNotificationRepository(base)

	m := metrics.NewMetrics("hms", "worker")
	scope := tenant.NewScope(db, zl, m)
	resolver := tenant.NewResolver(tenantRepo, cfg.Authz.CacheTTL())
	stores := postgres.NewTenantStores

	engine := workflow.NewEngine(postgres.NewWorkflowRepository(db), outboxRepo, zl, m)
	engine.Register(appointmentService.Table(stores, cfg.Workflow.CheckinGrace()))
	engine.Register(prescriptionService.Table(stores))
	engine.Register(admissionService.Table(stores))

	relay := worker.NewOutboxRelay(outboxRepo, broker, worker.RelayConfig{
		BatchSize:    wcfg.RelayBatchSize,
		PollInterval: time.Duration(wcfg.RelayPollSeconds) * time.Second,
		MaxAttempts:  wcfg.RelayMaxAttempts,
		RetryDelay:   time.Duration(wcfg.RelayRetrySeconds) * time.Second,
	}, zl, m)

	sweeper := worker.NewNoShowSweeper(tenantRepo, scope, stores, engine, worker.SweeperConfig{
		Threshold: time.Duration(wcfg.NoShowThresholdHours) * time.Hour,
		Interval:  time.Duration(wcfg.NoShowSweepMinutes) * time.Minute,
	}, zl)

	expirer := worker.NewShareExpirer(shareRepo, time.Duration(wcfg.ShareExpiryMinutes)*time.Minute, zl)

	janitor := worker.NewJanitor(auditRepo, tokenRepo, outboxRepo, worker.JanitorConfig{
		Interval:        time.Duration(wcfg.JanitorIntervalHours) * time.Hour,
		AuditRetention:  time.Duration(wcfg.AuditRetentionDays) * 24 * time.Hour,
		OutboxRetention: time.Duration(wcfg.OutboxRetentionDays) * 24 * time.Hour,
	}, zl)

	emailSender := email.NewSender(cfg.Email.ToSenderConfig(), zl)
	senders := notification.Channels(emailSender, wcfg.SMSEnabled, wcfg.WhatsAppEnabled, zl)
	dispatcher := notification.NewDispatcher(broker, notifRepo, userRepo, resolver, scope, stores, senders, zl, notification.Config{})

	startHealthServer(wcfg.HealthAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutting down workers")
		cancel()
	}()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			log.Info().Str("worker", name).Msg("worker stopped")
		}()
	}

	run("outbox_relay", relay.Start)
	run("noshow_sweeper", sweeper.Start)
	run("share_expirer", expirer.Start)
	run("janitor", janitor.Start)
	run("notification_dispatcher", func(ctx context.Context) {
		if err := dispatcher.Start(ctx); err != nil {
			log.Error().Err(err).Msg("notification dispatcher failed")
		}
	})

	wg.Wait()
	log.Info().Msg("all workers stopped")
}

func startHealthServer(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Msg("health server failed")
			os.Exit(1)
		}
	}()
}
