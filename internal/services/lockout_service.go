package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/halcyonsec/sentinel/internal/keystore"
	"github.com/halcyonsec/sentinel/internal/models"
)

// LoginAttemptRepository defines the persistence operations the lockout
// tracker and analyzer need for login attempt facts.
type LoginAttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	CountFailuresByIdentity(ctx context.Context, identity string, since time.Time) (int, error)
	CountFailuresByOrigin(ctx context.Context, origin string, since time.Time) (int, error)
	LatestFailureByIdentity(ctx context.Context, identity string, since time.Time) (*time.Time, error)
	LatestFailureByOrigin(ctx context.Context, origin string, since time.Time) (*time.Time, error)
	ListSince(ctx context.Context, since time.Time) ([]*models.LoginAttempt, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// LockoutConfig holds configuration for login lockout behavior.
type LockoutConfig struct {
	MaxFailures     int
	Window          time.Duration
	RetentionPeriod time.Duration
}

// DefaultLockoutConfig returns the stock policy: 5 failures in 15 minutes,
// attempts retained for 30 days.
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxFailures:     5,
		Window:          15 * time.Minute,
		RetentionPeriod: 30 * 24 * time.Hour,
	}
}

// LockoutService records login attempts and decides whether an identity or
// network origin is currently locked out. The two keys are independent;
// either being tripped locks out the pair. Counting is failure-only: a
// success neither counts nor clears prior failures, the window just ages out.
type LockoutService struct {
	repo   LoginAttemptRepository
	config LockoutConfig
	clock  keystore.Clock
	logger *slog.Logger
}

// NewLockoutService creates a new LockoutService.
func NewLockoutService(repo LoginAttemptRepository, config LockoutConfig, clock keystore.Clock, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		repo:   repo,
		config: config,
		clock:  clock,
		logger: logger,
	}
}

// RecordAttempt appends an immutable login attempt fact. SubjectID is set
// only on success.
func (s *LockoutService) RecordAttempt(ctx context.Context, identity, origin, userAgent string, succeeded bool, subjectID *uuid.UUID) (*models.LoginAttempt, error) {
	now := s.clock.Now()
	attempt := &models.LoginAttempt{
		ID:          uuid.New(),
		Identity:    identity,
		IPAddress:   origin,
		UserAgent:   userAgent,
		Succeeded:   succeeded,
		SubjectID:   subjectID,
		AttemptTime: now,
		ExpiresAt:   now.Add(s.config.RetentionPeriod),
	}

	if err := s.repo.RecordAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	return attempt, nil
}

// IsLockedOut reports whether either the identity or the origin has reached
// the failure threshold inside the lockout window.
func (s *LockoutService) IsLockedOut(ctx context.Context, identity, origin string) (bool, error) {
	status, err := s.Status(ctx, identity, origin)
	if err != nil {
		return false, err
	}
	return status.LockedOut, nil
}

// TimeRemaining returns how long until the lockout lifts; nil when the pair
// is not locked out. The remaining time tracks the more recent of the two
// triggering failures.
func (s *LockoutService) TimeRemaining(ctx context.Context, identity, origin string) (*time.Duration, error) {
	status, err := s.Status(ctx, identity, origin)
	if err != nil {
		return nil, err
	}
	return status.Remaining, nil
}

// Status performs the dual-key check once and returns both the verdict and
// the remaining lockout time. Reads are best-effort with respect to
// concurrent writers; a request may pass this check and still lose the race
// to be the Nth failure.
func (s *LockoutService) Status(ctx context.Context, identity, origin string) (*models.LockoutStatus, error) {
	since := s.clock.Now().Add(-s.config.Window)

	identityFailures, err := s.repo.CountFailuresByIdentity(ctx, identity, since)
	if err != nil {
		return nil, fmt.Errorf("count identity failures: %w", err)
	}

	originFailures, err := s.repo.CountFailuresByOrigin(ctx, origin, since)
	if err != nil {
		return nil, fmt.Errorf("count origin failures: %w", err)
	}

	status := &models.LockoutStatus{
		IdentityFailures: identityFailures,
		OriginFailures:   originFailures,
	}

	var latest *time.Time
	if identityFailures >= s.config.MaxFailures {
		t, err := s.repo.LatestFailureByIdentity(ctx, identity, since)
		if err != nil {
			return nil, fmt.Errorf("latest identity failure: %w", err)
		}
		latest = laterOf(latest, t)
	}
	if originFailures >= s.config.MaxFailures {
		t, err := s.repo.LatestFailureByOrigin(ctx, origin, since)
		if err != nil {
			return nil, fmt.Errorf("latest origin failure: %w", err)
		}
		latest = laterOf(latest, t)
	}

	if latest == nil {
		return status, nil
	}

	status.LockedOut = true
	remaining := latest.Add(s.config.Window).Sub(s.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	status.Remaining = &remaining

	s.logger.Warn("login pair locked out",
		slog.Int("identity_failures", identityFailures),
		slog.Int("origin_failures", originFailures),
		slog.Duration("remaining", remaining))

	return status, nil
}

func laterOf(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || a.After(*b) {
		return a
	}
	return b
}
