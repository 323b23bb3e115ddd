// Package sentinel assembles the abuse-prevention core from configuration.
// The request-handling layer embeds the returned Guard; everything behind it
// (Postgres for durable facts, Redis for counters, SES for delivery and
// paging) is wired here.
package sentinel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/halcyonsec/sentinel/internal/config"
	"github.com/halcyonsec/sentinel/internal/database"
	"github.com/halcyonsec/sentinel/internal/keystore"
	"github.com/halcyonsec/sentinel/internal/notify"
	"github.com/halcyonsec/sentinel/internal/repositories"
	"github.com/halcyonsec/sentinel/internal/services"
)

// Guard bundles the composed service facade with the resources it owns.
type Guard struct {
	*services.GuardService

	Audit    *services.AuditService
	Analyzer *services.AnalyzerService

	db    *database.DB
	store *keystore.RedisStore
}

// New builds a Guard from the environment-driven configuration. The caller
// owns the returned Guard and must Close it on shutdown.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Guard, error) {
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	store := keystore.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.KeyPrefix)
	if err := store.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	clock := keystore.SystemClock{}

	attemptRepo := repositories.NewLoginAttemptRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)

	var sink services.AlertSink
	var notifier services.Notifier
	if cfg.Alerting.AlertRecipient != "" {
		sesSink, err := notify.NewSESAlertSink(cfg.Alerting.AWSRegion, cfg.Alerting.FromAddress, cfg.Alerting.AlertRecipient, logger)
		if err != nil {
			store.Close()
			db.Close()
			return nil, fmt.Errorf("initialize alert sink: %w", err)
		}
		sink = sesSink

		sesNotifier, err := notify.NewSESNotifier(cfg.Alerting.AWSRegion, cfg.Alerting.FromAddress, logger)
		if err != nil {
			store.Close()
			db.Close()
			return nil, fmt.Errorf("initialize notifier: %w", err)
		}
		notifier = sesNotifier
	} else {
		sink = notify.NewLogAlertSink(logger)
		notifier = notify.NewLogNotifier(logger)
	}

	lockoutConfig := services.LockoutConfig{
		MaxFailures:     cfg.Lockout.MaxFailures,
		Window:          cfg.Lockout.Window,
		RetentionPeriod: cfg.Lockout.RetentionPeriod,
	}
	twoFactorConfig := services.DefaultTwoFactorConfig()
	twoFactorConfig.CodeLength = cfg.TwoFactor.CodeLength
	twoFactorConfig.ChallengeTTL = cfg.TwoFactor.ChallengeTTL
	twoFactorConfig.MaxAttempts = int64(cfg.TwoFactor.MaxAttempts)
	twoFactorConfig.LockoutDuration = cfg.TwoFactor.LockoutDuration
	analyzerConfig := services.AnalyzerConfig{
		DefaultAlertThreshold: cfg.Analyzer.AlertThreshold,
		BotUserAgentThreshold: cfg.Analyzer.BotUserAgentThreshold,
		HighRiskOriginLimit:   cfg.Analyzer.HighRiskOriginLimit,
	}

	audit := services.NewAuditService(eventRepo, sink, clock, logger)
	lockout := services.NewLockoutService(attemptRepo, lockoutConfig, clock, logger)
	limiter := services.NewRateLimiter(store, logger)
	escalator := services.NewEscalationService(limiter, audit, services.DefaultEscalationConfig(), logger)
	twoFactor := services.NewTwoFactorService(store, notifier, twoFactorConfig, clock, logger)
	analyzer := services.NewAnalyzerService(attemptRepo, eventRepo, audit, analyzerConfig, clock, logger)

	guard := services.NewGuardService(lockout, limiter, escalator, twoFactor, audit, services.DefaultGuardConfig(), logger)

	return &Guard{
		GuardService: guard,
		Audit:        audit,
		Analyzer:     analyzer,
		db:           db,
		store:        store,
	}, nil
}

// Close releases the database pool and the counter store client.
func (g *Guard) Close() error {
	g.db.Close()
	return g.store.Close()
}
