package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/halcyonsec/sentinel/internal/models"
	pkglogger "github.com/halcyonsec/sentinel/pkg/logger"
)

// LimitPolicy is the ceiling/window pair for one named rate-limit kind.
type LimitPolicy struct {
	Max    int64
	Window time.Duration
}

// GuardConfig holds the facade's policy knobs.
type GuardConfig struct {
	// LimitKinds maps a kind name ("auth_ip", "api", ...) to its policy.
	LimitKinds map[string]LimitPolicy
	// FailOpen controls behavior when the backing store or database is
	// unreachable during advisory checks (lockout, rate limit). When true
	// the check degrades to an allow and the error is logged; 2FA
	// verification always fails closed regardless.
	FailOpen bool
}

// DefaultGuardConfig returns the stock limit kinds and the availability-
// biased failure policy.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		LimitKinds: map[string]LimitPolicy{
			"auth_ip":       {Max: 20, Window: time.Hour},
			"auth_identity": {Max: 10, Window: time.Hour},
			"api":           {Max: 1000, Window: time.Hour},
			"operation":     {Max: 60, Window: time.Minute},
		},
		FailOpen: true,
	}
}

// AttemptRequest is the validated input for recording a login attempt.
type AttemptRequest struct {
	Identity  string `validate:"required,max=255"`
	Origin    string `validate:"required,ip"`
	UserAgent string `validate:"max=1024"`
	Succeeded bool
	SubjectID *uuid.UUID
	Actor     models.Actor
}

// GuardService is the internal API surface the request-handling layer calls
// into. It validates inputs, composes the stateful components, and applies
// the configured fail-open policy on infrastructure trouble. Policy denials
// come back as typed decisions, never errors.
type GuardService struct {
	lockout   *LockoutService
	limiter   *RateLimiter
	escalator *EscalationService
	twoFactor *TwoFactorService
	audit     *AuditService
	config    GuardConfig
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewGuardService creates a new GuardService.
func NewGuardService(lockout *LockoutService, limiter *RateLimiter, escalator *EscalationService, twoFactor *TwoFactorService, audit *AuditService, config GuardConfig, logger *slog.Logger) *GuardService {
	return &GuardService{
		lockout:   lockout,
		limiter:   limiter,
		escalator: escalator,
		twoFactor: twoFactor,
		audit:     audit,
		config:    config,
		validate:  validator.New(),
		logger:    logger,
	}
}

// CheckLockout runs the dual-key lockout check. Call it before credential
// comparison so attack traffic never reaches the password hash.
func (g *GuardService) CheckLockout(ctx context.Context, identity, origin string) (*models.Decision, error) {
	if err := g.validatePair(identity, origin); err != nil {
		return nil, err
	}

	status, err := g.lockout.Status(ctx, identity, origin)
	if err != nil {
		return g.degrade(ctx, "lockout check", err)
	}

	if !status.LockedOut {
		return models.Allow(), nil
	}

	var retryAfter time.Duration
	if status.Remaining != nil {
		retryAfter = *status.Remaining
	}
	return models.Deny(models.DenialLockedOut, retryAfter), nil
}

// RecordAttempt appends the login attempt fact and funnels the outcome into
// the audit pipeline.
func (g *GuardService) RecordAttempt(ctx context.Context, req AttemptRequest) (*models.LoginAttempt, error) {
	if err := g.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	attempt, err := g.lockout.RecordAttempt(ctx, req.Identity, req.Origin, req.UserAgent, req.Succeeded, req.SubjectID)
	if err != nil {
		return nil, err
	}

	if auditErr := g.audit.LogAuthEvent(ctx, req.Actor, req.Succeeded, req.Origin, req.UserAgent, models.EventContext{
		"identity": pkglogger.SanitizedIdentity(req.Identity),
	}); auditErr != nil {
		g.logger.ErrorContext(ctx, "failed to audit login attempt", slog.Any("error", auditErr))
	}

	return attempt, nil
}

// CheckRateLimit hits the counter for the named kind and key, and reports
// whether the request may proceed.
func (g *GuardService) CheckRateLimit(ctx context.Context, kind, key string) (*models.Decision, error) {
	policy, ok := g.config.LimitKinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown rate limit kind %q", models.ErrBadRequest, kind)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: rate limit key required", models.ErrBadRequest)
	}

	counterKey := kind + ":" + key
	count, err := g.limiter.Hit(ctx, counterKey, policy.Window)
	if err != nil {
		return g.degrade(ctx, "rate limit check", err)
	}

	if count <= policy.Max {
		return models.Allow(), nil
	}

	retryAfter, err := g.limiter.AvailableIn(ctx, counterKey)
	if err != nil {
		return g.degrade(ctx, "rate limit ttl", err)
	}
	return models.Deny(models.DenialRateLimited, retryAfter), nil
}

// ClearRateLimit resets a counter after a qualifying success.
func (g *GuardService) ClearRateLimit(ctx context.Context, kind, key string) error {
	if _, ok := g.config.LimitKinds[kind]; !ok {
		return fmt.Errorf("%w: unknown rate limit kind %q", models.ErrBadRequest, kind)
	}
	return g.limiter.Clear(ctx, kind+":"+key)
}

// EvaluateOrigin runs the progressive-escalation check for an origin.
func (g *GuardService) EvaluateOrigin(ctx context.Context, origin string) (*models.ThrottleDecision, error) {
	if err := g.validate.Var(origin, "required,ip"); err != nil {
		return nil, fmt.Errorf("%w: origin must be an IP address", models.ErrBadRequest)
	}
	return g.escalator.Evaluate(ctx, origin)
}

// RecordViolation escalates an origin: bumps its violation counter and
// emits the rate_limit_violation event.
func (g *GuardService) RecordViolation(ctx context.Context, origin string) error {
	if err := g.validate.Var(origin, "required,ip"); err != nil {
		return fmt.Errorf("%w: origin must be an IP address", models.ErrBadRequest)
	}
	return g.escalator.RecordViolation(ctx, origin)
}

// IssueTwoFactor issues a challenge for the subject. Infrastructure errors
// propagate; 2FA never degrades to an allow.
func (g *GuardService) IssueTwoFactor(ctx context.Context, subject models.TwoFactorSubject, method models.DeliveryMethod) (*models.IssueResult, error) {
	if subject.ID == "" {
		return nil, fmt.Errorf("%w: subject id required", models.ErrBadRequest)
	}
	if method != models.DeliveryEmail && method != models.DeliverySMS {
		return nil, fmt.Errorf("%w: unknown delivery method %q", models.ErrBadRequest, method)
	}
	return g.twoFactor.Issue(ctx, subject, method)
}

// VerifyTwoFactor checks a submitted code. Fails closed on store trouble.
func (g *GuardService) VerifyTwoFactor(ctx context.Context, subject models.TwoFactorSubject, code string) (*models.VerifyResult, error) {
	if subject.ID == "" {
		return nil, fmt.Errorf("%w: subject id required", models.ErrBadRequest)
	}
	if err := g.validate.Var(code, "required,numeric"); err != nil {
		return nil, fmt.Errorf("%w: code must be numeric", models.ErrBadRequest)
	}
	return g.twoFactor.Verify(ctx, subject, code)
}

// TwoFactorRequired reports whether the subject needs a second factor for
// the action.
func (g *GuardService) TwoFactorRequired(subject models.TwoFactorSubject, action string) bool {
	return g.twoFactor.IsRequired(subject, action)
}

// Audit records an arbitrary security event through the pipeline.
func (g *GuardService) Audit(ctx context.Context, actor models.Actor, action, description string, eventCtx models.EventContext, severity models.Severity, ipAddress, userAgent string) error {
	if action == "" {
		return fmt.Errorf("%w: action required", models.ErrBadRequest)
	}
	if !severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", models.ErrBadRequest, severity)
	}
	return g.audit.Record(ctx, actor, action, description, eventCtx, severity, ipAddress, userAgent)
}

func (g *GuardService) validatePair(identity, origin string) error {
	if err := g.validate.Var(identity, "required,max=255"); err != nil {
		return fmt.Errorf("%w: identity required", models.ErrBadRequest)
	}
	if err := g.validate.Var(origin, "required,ip"); err != nil {
		return fmt.Errorf("%w: origin must be an IP address", models.ErrBadRequest)
	}
	return nil
}

// degrade applies the fail-open policy to an infrastructure error during an
// advisory check. With FailOpen the caller gets a degraded allow; otherwise
// the error propagates for the caller to fail closed on.
func (g *GuardService) degrade(ctx context.Context, op string, err error) (*models.Decision, error) {
	if !g.config.FailOpen {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	g.logger.ErrorContext(ctx, "security check degraded, failing open",
		slog.String("operation", op),
		slog.Any("error", err))
	return &models.Decision{Allowed: true, Degraded: true}, nil
}
