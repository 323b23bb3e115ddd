package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/halcyonsec/sentinel/internal/models"
)

// Tier is one (ceiling, window) pair selected by prior-violation count.
type Tier struct {
	Name    string
	Ceiling int64
	Window  time.Duration
}

// The tier table. Tier selection is a pure function of the current violation
// count: 0 normal, 1-2 light, 3-4 moderate, 5+ severe.
var (
	TierNormal   = Tier{Name: "normal", Ceiling: 1000, Window: time.Hour}
	TierLight    = Tier{Name: "light", Ceiling: 200, Window: time.Hour}
	TierModerate = Tier{Name: "moderate", Ceiling: 50, Window: 2 * time.Hour}
	TierSevere   = Tier{Name: "severe", Ceiling: 10, Window: 24 * time.Hour}
)

// TierFor maps a violation count to its tier.
func TierFor(violations int64) Tier {
	switch {
	case violations >= 5:
		return TierSevere
	case violations >= 3:
		return TierModerate
	case violations >= 1:
		return TierLight
	default:
		return TierNormal
	}
}

// EscalationConfig holds configuration for progressive escalation.
type EscalationConfig struct {
	ViolationTTL time.Duration
}

// DefaultEscalationConfig returns the stock 24-hour violation memory.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{ViolationTTL: 24 * time.Hour}
}

// EscalationService wraps the rate limiter with per-origin violation
// history: repeat offenders get a lower ceiling and a wider window.
// Evaluate never escalates on its own; callers that decide a denial is
// worth remembering call RecordViolation. That separation keeps "checked
// and blocked" distinct from "chose to escalate".
type EscalationService struct {
	limiter *RateLimiter
	audit   *AuditService
	config  EscalationConfig
	logger  *slog.Logger
}

// NewEscalationService creates a new EscalationService.
func NewEscalationService(limiter *RateLimiter, audit *AuditService, config EscalationConfig, logger *slog.Logger) *EscalationService {
	return &EscalationService{
		limiter: limiter,
		audit:   audit,
		config:  config,
		logger:  logger,
	}
}

// Evaluate reads the origin's violation history, selects the tier, and
// applies the rate limiter with that tier's ceiling and window.
func (s *EscalationService) Evaluate(ctx context.Context, origin string) (*models.ThrottleDecision, error) {
	violations, err := s.limiter.Attempts(ctx, violationKey(origin))
	if err != nil {
		return nil, fmt.Errorf("read violations: %w", err)
	}

	tier := TierFor(violations)
	count, err := s.limiter.Hit(ctx, throttleKey(origin), tier.Window)
	if err != nil {
		return nil, fmt.Errorf("hit throttle counter: %w", err)
	}

	decision := &models.ThrottleDecision{
		Allowed:    count <= tier.Ceiling,
		Tier:       tier.Name,
		Ceiling:    tier.Ceiling,
		Window:     tier.Window,
		Violations: violations,
		Attempts:   count,
	}

	if !decision.Allowed {
		retryAfter, err := s.limiter.AvailableIn(ctx, throttleKey(origin))
		if err != nil {
			return nil, fmt.Errorf("read throttle ttl: %w", err)
		}
		decision.RetryAfter = retryAfter

		s.logger.Warn("origin throttled",
			slog.String("origin", origin),
			slog.String("tier", tier.Name),
			slog.Int64("attempts", count),
			slog.Int64("ceiling", tier.Ceiling))
	}

	return decision, nil
}

// RecordViolation bumps the origin's violation counter and emits a
// rate_limit_violation security event.
func (s *EscalationService) RecordViolation(ctx context.Context, origin string) error {
	count, err := s.limiter.Hit(ctx, violationKey(origin), s.config.ViolationTTL)
	if err != nil {
		return fmt.Errorf("record violation: %w", err)
	}

	return s.audit.LogSecurityViolation(ctx, models.AnonymousActor(),
		models.ActionRateLimitViolation,
		"rate limit exceeded repeatedly",
		origin, "",
		models.EventContext{
			"origin":     origin,
			"violations": count,
			"tier":       TierFor(count).Name,
		})
}

func violationKey(origin string) string {
	return "violations:" + origin
}

func throttleKey(origin string) string {
	return "throttle:" + origin
}
