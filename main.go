// Package main provides the main entry point for the mobile-money SMS reconciler
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/momo-reconciler/app/handlers"
	"github.com/amirphl/momo-reconciler/app/jobqueue"
	"github.com/amirphl/momo-reconciler/app/middleware"
	"github.com/amirphl/momo-reconciler/app/router"
	"github.com/amirphl/momo-reconciler/app/services"
	businessflow "github.com/amirphl/momo-reconciler/business_flow"
	"github.com/amirphl/momo-reconciler/config"
	"github.com/amirphl/momo-reconciler/migrations"
	"github.com/amirphl/momo-reconciler/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// @title Momo Reconciler API
// @version 1.0
// @description Reconciles mobile-money SMS receipts against open payment intents.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	accessLog := initializeLogging(cfg.Logging)
	log.Printf("Starting momo-reconciler %s (%s) in %s", cfg.Deployment.Version, cfg.Deployment.CommitHash, cfg.Deployment.Environment)

	app, err := initializeApplication(cfg, accessLog)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting webhooks before draining the workers
	if err := app.router.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	for i := len(app.stopFuncs) - 1; i >= 0; i-- {
		app.stopFuncs[i]()
	}

	log.Println("Server stopped")
}

// initializeLogging points the standard logger at stdout, a rotated file or both, and returns the access log writer
func initializeLogging(cfg config.LoggingConfig) io.Writer {
	log.SetFlags(log.LstdFlags | log.LUTC | log.Lmicroseconds)

	if cfg.Output == "stdout" || cfg.FilePath == "" {
		log.SetOutput(os.Stdout)
		return os.Stdout
	}

	rotated := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  false,
	}

	var out io.Writer = rotated
	if cfg.Output == "both" {
		out = io.MultiWriter(os.Stdout, rotated)
	}
	log.SetOutput(out)
	return out
}

func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	level := gormlogger.Warn
	if !cfg.SlowQueryLog {
		level = gormlogger.Error
	}
	gormLog := gormlogger.New(log.Default(), gormlogger.Config{
		SlowThreshold:             cfg.SlowQueryTime,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:  gormLog,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	if cfg.AutoMigrate {
		if err := migrations.Up(cfg.URL(), log.Default()); err != nil {
			return nil, err
		}
	}

	return db, nil
}

func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// componentLogger shares the process sink with a per-component prefix
func componentLogger(name string) *log.Logger {
	return log.New(log.Writer(), name+" ", log.Flags())
}

func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

func initializeParser(cfg config.ParserConfig, prompts services.PromptStore) (services.SMSParser, error) {
	rules, err := services.NewRulesExtractor()
	if err != nil {
		return nil, fmt.Errorf("failed to load parser rules: %w", err)
	}

	var model services.Extractor
	if cfg.ModelEnabled {
		model = services.NewModelExtractor(services.ModelExtractorConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Redact:  cfg.Redact,
		}, prompts)
		log.Printf("Model extraction enabled with %s", cfg.Model)
	}

	return services.NewSMSParser(rules, model, componentLogger("sms-parser")), nil
}

func initializeApplication(cfg *config.ProductionConfig, accessLog io.Writer) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, func() {
		if err := rc.Close(); err != nil {
			log.Printf("Error closing redis: %v", err)
		}
	})

	tx := repository.NewTransactor(db)
	smsRepo := repository.NewRawSmsRepository(db)
	parsedRepo := repository.NewParsedPaymentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	passRepo := repository.NewTicketPassRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	promptRepo := repository.NewSmsParserPromptRepository(db)

	intents := businessflow.NewIntentRegistry(
		repository.NewTicketOrderRepository(db),
		repository.NewShopOrderRepository(db),
		repository.NewInsuranceQuoteRepository(db),
		repository.NewSaccoDepositRepository(db),
		repository.NewMembershipRepository(db),
		repository.NewFundDonationRepository(db),
	)

	parser, err := initializeParser(cfg.Parser, promptRepo)
	if err != nil {
		return nil, err
	}

	stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, 30*time.Second))

	var publisher services.RealtimePublisher
	if cfg.Cache.Enabled {
		publisher = services.NewRedisRealtimePublisher(rc, cfg.Cache.RedisPrefix, componentLogger("realtime"))
	} else {
		publisher = services.NewLogRealtimePublisher(componentLogger("realtime"))
	}

	queue := jobqueue.NewQueue(rc, jobqueue.Config{
		Prefix:             cfg.Queue.Prefix,
		Concurrency:        cfg.Queue.Concurrency,
		MaxAttempts:        cfg.Queue.MaxAttempts,
		BackoffBase:        cfg.Queue.BackoffBase,
		JobTimeout:         cfg.Queue.JobTimeout,
		StuckAfter:         cfg.Queue.StuckAfter,
		PromoteInterval:    cfg.Queue.PromoteInterval,
		CompletedRetention: cfg.Queue.CompletedRetention,
	}, nil, componentLogger("jobqueue"))

	if cfg.Metrics.Enabled {
		prometheus.MustRegister(jobqueue.NewCollector(queue))
	}

	auditRecorder := businessflow.NewAuditRecorder(auditRepo)
	matcher := businessflow.NewCandidateMatcher(intents, cfg.SMS.Lookback())

	settlementFlow := businessflow.NewSettlementFlow(
		tx,
		smsRepo,
		parsedRepo,
		paymentRepo,
		passRepo,
		intents,
		auditRecorder,
		publisher,
	)

	ingestFlow := businessflow.NewSmsIngestFlow(
		tx,
		smsRepo,
		parsedRepo,
		paymentRepo,
		parser,
		matcher,
		settlementFlow,
		queue,
		publisher,
		cfg.SMS,
		componentLogger("sms-ingest"),
	)

	reviewFlow := businessflow.NewManualReviewFlow(
		tx,
		smsRepo,
		parsedRepo,
		paymentRepo,
		intents,
		matcher,
		queue,
		auditRecorder,
		componentLogger("sms-review"),
	)

	promptFlow := businessflow.NewSmsParserPromptFlow(
		tx,
		promptRepo,
		parser,
		auditRecorder,
		cfg.SMS.ConfidenceThreshold,
	)

	queue.SetProcessor(ingestFlow)
	stopQueue := queue.Start(context.Background())
	stopFuncs = append(stopFuncs, stopQueue)
	log.Printf("SMS parse queue started with %d workers", cfg.Queue.Concurrency)

	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	checks := map[string]router.HealthCheck{
		"database": sqlDB.PingContext,
		"redis": func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		},
	}

	appRouter := router.NewFiberRouter(cfg, router.Handlers{
		Webhook: handlers.NewSmsWebhookHandler(ingestFlow),
		Admin:   handlers.NewSmsAdminHandler(reviewFlow, settlementFlow),
		Parser:  handlers.NewSmsParserHandler(promptFlow),
		Auth:    middleware.NewAuthMiddleware(tokenService),
	}, checks, accessLog)

	return &Application{
		router:    appRouter,
		config:    cfg,
		stopFuncs: stopFuncs,
	}, nil
}
