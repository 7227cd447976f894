package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/karvy-labs/loyaltypulse/internal/batch"
	"github.com/karvy-labs/loyaltypulse/internal/circuitbreaker"
	"github.com/karvy-labs/loyaltypulse/internal/config"
	"github.com/karvy-labs/loyaltypulse/internal/db"
	"github.com/karvy-labs/loyaltypulse/internal/dispatch"
	"github.com/karvy-labs/loyaltypulse/internal/events"
	"github.com/karvy-labs/loyaltypulse/internal/membership"
	"github.com/karvy-labs/loyaltypulse/internal/metrics"
	"github.com/karvy-labs/loyaltypulse/internal/observ"
	"github.com/karvy-labs/loyaltypulse/internal/redis"
	"github.com/karvy-labs/loyaltypulse/internal/report"
	"github.com/karvy-labs/loyaltypulse/internal/rules"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting loyaltypulse batchd",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.Int("batch_hour", cfg.BatchHour),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	repo := db.NewRepository(database, logger)

	// Initialize Redis for the dedup guard and the send throttle
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, dedup guard and throttle disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var dedup dispatch.Dedup
	var limiter *redis.RateLimiter
	if redisClient != nil {
		dedup = redis.NewDedupGuard(redisClient, logger)
		limiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.ThrottleRate,
			Window: 1 * time.Minute,
		})
		defer redisClient.Close()
	}

	// Rule catalog: immutable for the daemon's lifetime. A rule change means
	// a restart.
	catalog, err := loadCatalog(ctx, cfg, repo)
	if err != nil {
		return fmt.Errorf("failed to load rule catalog: %w", err)
	}
	logger.Info("rule catalog loaded", zap.Int("rules", catalog.Len()))

	// SMS transport chain: the provider (HTTP gateway or SNS), wrapped in a
	// circuit breaker, wrapped in the Redis send throttle. Falls back to the
	// log transport when neither provider is available.
	transport := buildTransport(ctx, cfg, logger)
	if limiter != nil && cfg.ThrottleRate > 0 {
		transport = dispatch.NewThrottledTransport(transport, limiter, "sms", logger)
	}

	dispatcher := dispatch.New(catalog, transport, repo, dedup, logger)

	runner := batch.New(repo, repo, dispatcher, repo, batch.Config{
		Workers: cfg.BatchWorkers,
	}, logger)

	if cfg.MembershipEnabled() {
		runner.WithMembership(membership.NewClient(membership.Config{
			BaseURL:   cfg.MembershipBaseURL,
			ProgramID: cfg.MembershipProgramID,
			TierID:    cfg.MembershipTierID,
			APIKey:    cfg.MembershipAPIKey,
			APISecret: cfg.MembershipAPISecret,
		}, logger))
		logger.Info("membership sync enabled", zap.String("program", cfg.MembershipProgramID))
	}

	if cfg.SQSQueueURL != "" {
		publisher, err := events.NewPublisher(ctx, events.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSQueueURL,
		}, logger)
		if err != nil {
			logger.Warn("sqs publisher unavailable, tier-change events disabled",
				zap.Error(err),
			)
		} else {
			runner.WithPublisher(publisher)
			defer publisher.Close()
		}
	}

	var mailer *report.Mailer
	if cfg.SESReportTo != "" {
		mailer, err = report.NewMailer(ctx, report.Config{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
			ToEmail:   cfg.SESReportTo,
		}, logger)
		if err != nil {
			logger.Warn("SES mailer unavailable, summary emails disabled", zap.Error(err))
			mailer = nil
		}
	}

	// Daily scheduler
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()

	go schedule(schedCtx, cfg.BatchHour, logger, func(runCtx context.Context, day time.Time) {
		summary := runner.Run(runCtx, day)
		if mailer != nil {
			if err := mailer.SendSummary(runCtx, summary); err != nil {
				logger.Warn("summary email failed", zap.Error(err))
			}
		}
	})

	logger.Info("daily scheduler started")

	// Ops router: health + metrics only, the daemon has no request API.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		schedCancel()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

// buildTransport picks the SMS provider and wraps it in a circuit breaker.
func buildTransport(ctx context.Context, cfg *config.Config, logger *zap.Logger) dispatch.Transport {
	var provider dispatch.Transport

	if cfg.SMSGatewayURL != "" {
		headers := map[string]string{}
		if cfg.SMSGatewayKey != "" {
			headers["X-Api-Key"] = cfg.SMSGatewayKey
		}
		provider = dispatch.NewGatewayTransport(dispatch.GatewayConfig{
			URL:     cfg.SMSGatewayURL,
			Headers: headers,
		}, logger)
		logger.Info("using HTTP gateway SMS transport")
	} else {
		sns, err := dispatch.NewSNSTransport(ctx, dispatch.SNSConfig{
			Region: cfg.SNSRegion,
		}, logger)
		if err != nil {
			logger.Warn("SNS transport unavailable, logging sends instead", zap.Error(err))
			return dispatch.NewLogTransport(logger)
		}
		provider = sns
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:            "sms",
		MaxFailures:     5,
		RecoveryTimeout: 30 * time.Second,
	}, logger)
	return circuitbreaker.NewProtectedTransport(provider, breaker, logger)
}

// loadCatalog prefers the YAML rule file and falls back to the rules stored
// in the database.
func loadCatalog(ctx context.Context, cfg *config.Config, repo *db.Repository) (*rules.Catalog, error) {
	if cfg.RuleFile != "" {
		return rules.LoadFile(cfg.RuleFile)
	}

	list, err := repo.EnabledRules(ctx)
	if err != nil {
		return nil, err
	}
	return rules.NewCatalog(list), nil
}

// schedule fires fn once per day at the given local hour until ctx is
// cancelled. The run date passed to fn is the day the run fires on.
func schedule(ctx context.Context, hour int, logger *zap.Logger, fn func(context.Context, time.Time)) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}

		logger.Info("next batch run scheduled", zap.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case fireTime := <-timer.C:
			fn(ctx, fireTime)
		}
	}
}
