package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/halcyonsec/sentinel/internal/background"
	"github.com/halcyonsec/sentinel/internal/config"
	"github.com/halcyonsec/sentinel/internal/database"
	"github.com/halcyonsec/sentinel/internal/keystore"
	"github.com/halcyonsec/sentinel/internal/notify"
	"github.com/halcyonsec/sentinel/internal/repositories"
	"github.com/halcyonsec/sentinel/internal/services"
)

func main() {
	hours := flag.Int("hours", 24, "analysis window in hours")
	threshold := flag.Int("threshold", 0, "alert threshold (0 = configured default)")
	purge := flag.Bool("purge", false, "run retention purge after analysis")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	clock := keystore.SystemClock{}

	attemptRepo := repositories.NewLoginAttemptRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)

	var sink services.AlertSink
	if cfg.Alerting.AlertRecipient != "" {
		sesSink, err := notify.NewSESAlertSink(cfg.Alerting.AWSRegion, cfg.Alerting.FromAddress, cfg.Alerting.AlertRecipient, logger)
		if err != nil {
			logger.Error("failed to initialize alert sink", slog.Any("error", err))
			os.Exit(1)
		}
		sink = sesSink
	} else {
		sink = notify.NewLogAlertSink(logger)
	}

	audit := services.NewAuditService(eventRepo, sink, clock, logger)

	analyzerConfig := services.AnalyzerConfig{
		DefaultAlertThreshold: cfg.Analyzer.AlertThreshold,
		BotUserAgentThreshold: cfg.Analyzer.BotUserAgentThreshold,
		HighRiskOriginLimit:   cfg.Analyzer.HighRiskOriginLimit,
	}
	analyzer := services.NewAnalyzerService(attemptRepo, eventRepo, audit, analyzerConfig, clock, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := analyzer.Analyze(ctx, *hours, *threshold)
	if err != nil {
		logger.Error("analysis failed", slog.Any("error", err))
		os.Exit(1)
	}

	if *purge {
		retention := background.NewRetentionManager(attemptRepo, eventRepo, clock, logger, cfg.Retention.Interval, cfg.Retention.EventHorizon)
		retention.RunOnce(ctx)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		logger.Error("failed to encode report", slog.Any("error", err))
		os.Exit(1)
	}
}
