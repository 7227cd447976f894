// Package cli implements the loyctl command: manual batch runs and
// operational inspection against the same stores the daemon uses.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/karvy-labs/loyaltypulse/internal/config"
	"github.com/karvy-labs/loyaltypulse/internal/db"
	"github.com/karvy-labs/loyaltypulse/internal/dispatch"
	"github.com/karvy-labs/loyaltypulse/internal/observ"
	"github.com/karvy-labs/loyaltypulse/internal/redis"
	"github.com/karvy-labs/loyaltypulse/internal/rules"
)

// Version is set at build time via ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "loyctl",
	Short: "loyaltypulse operations CLI",
	Long: `loyctl drives the loyalty notification engine from the command line:
run a day's batch, classify a spend total, send a test notification,
and inspect the notification log.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the same environment configuration the daemon uses.
func loadConfig() (*config.Config, error) {
	return config.Load()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return observ.NewLogger(cfg.Env, cfg.LogLevel)
}

// initRepo connects to postgres and returns the repository plus a cleanup.
func initRepo(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*db.Repository, func(), error) {
	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	return db.NewRepository(database, logger), database.Close, nil
}

// initDedup returns the dedup guard, or nil when Redis is unreachable.
func initDedup(ctx context.Context, cfg *config.Config, logger *zap.Logger) (dispatch.Dedup, func()) {
	client, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, dedup guard disabled", zap.Error(err))
		return nil, func() {}
	}
	return redis.NewDedupGuard(client, logger), func() { client.Close() }
}

// initCatalog loads the rule catalog from the configured YAML file or the
// database.
func initCatalog(ctx context.Context, cfg *config.Config, repo *db.Repository) (*rules.Catalog, error) {
	if cfg.RuleFile != "" {
		return rules.LoadFile(cfg.RuleFile)
	}
	list, err := repo.EnabledRules(ctx)
	if err != nil {
		return nil, err
	}
	return rules.NewCatalog(list), nil
}

// initTransport picks the SMS transport: the live provider only when asked
// for, otherwise sends are logged.
func initTransport(ctx context.Context, cfg *config.Config, live bool, logger *zap.Logger) (dispatch.Transport, error) {
	if !live {
		return dispatch.NewLogTransport(logger), nil
	}
	if cfg.SMSGatewayURL != "" {
		headers := map[string]string{}
		if cfg.SMSGatewayKey != "" {
			headers["X-Api-Key"] = cfg.SMSGatewayKey
		}
		return dispatch.NewGatewayTransport(dispatch.GatewayConfig{
			URL:     cfg.SMSGatewayURL,
			Headers: headers,
		}, logger), nil
	}
	return dispatch.NewSNSTransport(ctx, dispatch.SNSConfig{Region: cfg.SNSRegion}, logger)
}
