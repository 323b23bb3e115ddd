package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/halcyonsec/sentinel/internal/keystore"
	"github.com/halcyonsec/sentinel/internal/services"
)

// RetentionManager periodically purges login attempts past their retention
// horizon and security events older than the configured cutoff. Counter
// state needs no sweeping; the key store's TTLs handle it.
type RetentionManager struct {
	attempts     services.LoginAttemptRepository
	events       services.SecurityEventRepository
	clock        keystore.Clock
	logger       *slog.Logger
	interval     time.Duration
	eventHorizon time.Duration
	stopCh       chan struct{}
}

// NewRetentionManager creates a new retention manager.
func NewRetentionManager(
	attempts services.LoginAttemptRepository,
	events services.SecurityEventRepository,
	clock keystore.Clock,
	logger *slog.Logger,
	interval time.Duration,
	eventHorizon time.Duration,
) *RetentionManager {
	return &RetentionManager{
		attempts:     attempts,
		events:       events,
		clock:        clock,
		logger:       logger,
		interval:     interval,
		eventHorizon: eventHorizon,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the periodic purge task
func (rm *RetentionManager) Start(ctx context.Context) {
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	rm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			rm.RunOnce(ctx)
		case <-rm.stopCh:
			rm.logger.Info("retention manager stopped")
			return
		case <-ctx.Done():
			rm.logger.Info("retention manager context cancelled")
			return
		}
	}
}

// Stop signals the periodic task to exit.
func (rm *RetentionManager) Stop() {
	close(rm.stopCh)
}

// RunOnce performs a single purge pass.
func (rm *RetentionManager) RunOnce(ctx context.Context) {
	purgeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	attemptsRemoved, err := rm.attempts.DeleteExpired(purgeCtx)
	if err != nil {
		rm.logger.Error("failed to purge expired login attempts", slog.Any("error", err))
	}

	cutoff := rm.clock.Now().Add(-rm.eventHorizon)
	eventsRemoved, err := rm.events.DeleteBefore(purgeCtx, cutoff)
	if err != nil {
		rm.logger.Error("failed to purge old security events", slog.Any("error", err))
	}

	if attemptsRemoved > 0 || eventsRemoved > 0 {
		rm.logger.Info("retention purge complete",
			slog.Int64("attempts_removed", attemptsRemoved),
			slog.Int64("events_removed", eventsRemoved))
	}
}
