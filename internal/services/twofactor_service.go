package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/halcyonsec/sentinel/internal/keystore"
	"github.com/halcyonsec/sentinel/internal/models"
)

// Notifier dispatches challenge codes to subjects. Implementation-agnostic:
// email, SMS, whatever the deployment wires in.
type Notifier interface {
	Send(ctx context.Context, subject models.TwoFactorSubject, code string, method models.DeliveryMethod) error
}

// TwoFactorConfig holds configuration for the challenge lifecycle.
type TwoFactorConfig struct {
	CodeLength      int
	ChallengeTTL    time.Duration
	MaxAttempts     int64
	LockoutDuration time.Duration
	// SensitiveActions is the set of actions that require a second factor
	// when the subject has one enabled.
	SensitiveActions []string
	// EnforcedRoles always require a second factor for sensitive actions,
	// enabled flag or not.
	EnforcedRoles []string
}

// DefaultTwoFactorConfig returns the stock policy: 6-digit codes valid for
// 5 minutes, 3 attempts, 15-minute lockout.
func DefaultTwoFactorConfig() TwoFactorConfig {
	return TwoFactorConfig{
		CodeLength:      6,
		ChallengeTTL:    5 * time.Minute,
		MaxAttempts:     3,
		LockoutDuration: 15 * time.Minute,
		SensitiveActions: []string{
			"password_change",
			"payout",
			"api_key_create",
			models.ActionBulkOperation,
		},
	}
}

// TwoFactorService issues, stores, and verifies short-lived one-time codes.
// Per subject the machine runs NONE -> ISSUED -> {VERIFIED | EXPIRED |
// LOCKED}; the store holds at most one unconsumed challenge per subject,
// and issuing again replaces it. Attempt counting uses the store's atomic
// increment so two racing verifications cannot both pass the bound check.
type TwoFactorService struct {
	store    keystore.Store
	notifier Notifier
	config   TwoFactorConfig
	clock    keystore.Clock
	logger   *slog.Logger

	sensitive map[string]struct{}
	enforced  map[string]struct{}
}

// NewTwoFactorService creates a new TwoFactorService.
func NewTwoFactorService(store keystore.Store, notifier Notifier, config TwoFactorConfig, clock keystore.Clock, logger *slog.Logger) *TwoFactorService {
	sensitive := make(map[string]struct{}, len(config.SensitiveActions))
	for _, action := range config.SensitiveActions {
		sensitive[action] = struct{}{}
	}
	enforced := make(map[string]struct{}, len(config.EnforcedRoles))
	for _, role := range config.EnforcedRoles {
		enforced[role] = struct{}{}
	}

	return &TwoFactorService{
		store:     store,
		notifier:  notifier,
		config:    config,
		clock:     clock,
		logger:    logger,
		sensitive: sensitive,
		enforced:  enforced,
	}
}

// IsRequired is a pure predicate: does this subject need a second factor for
// this action.
func (s *TwoFactorService) IsRequired(subject models.TwoFactorSubject, action string) bool {
	if _, ok := s.sensitive[action]; !ok {
		return false
	}
	if subject.Enabled {
		return true
	}
	_, ok := s.enforced[subject.Role]
	return ok
}

// Issue generates and stores a fresh challenge for the subject, replacing
// any prior unconsumed one, and dispatches it. A locked subject gets a
// refusal without a state transition. Delivery failure is reported as
// ErrDeliveryFailed; the stored challenge stays valid so the caller can ask
// for redelivery, and re-issuing generates a new code.
func (s *TwoFactorService) Issue(ctx context.Context, subject models.TwoFactorSubject, method models.DeliveryMethod) (*models.IssueResult, error) {
	if retryAfter, locked, err := s.lockedFor(ctx, subject); err != nil {
		return nil, err
	} else if locked {
		return &models.IssueResult{Locked: true, RetryAfter: retryAfter}, nil
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	now := s.clock.Now()
	challenge := models.TwoFactorChallenge{
		SubjectID:   subject.ID,
		SubjectType: subject.Type,
		Code:        code,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.config.ChallengeTTL),
	}

	blob, err := json.Marshal(challenge)
	if err != nil {
		return nil, fmt.Errorf("marshal challenge: %w", err)
	}

	if err := s.store.Set(ctx, codeKey(subject), string(blob), s.config.ChallengeTTL); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}
	if err := s.store.Delete(ctx, attemptsKey(subject)); err != nil {
		return nil, fmt.Errorf("reset attempts: %w", err)
	}

	result := &models.IssueResult{
		Issued:    true,
		Code:      code,
		ExpiresAt: challenge.ExpiresAt,
	}

	if err := s.notifier.Send(ctx, subject, code, method); err != nil {
		s.logger.ErrorContext(ctx, "failed to deliver challenge code",
			slog.String("subject_id", subject.ID),
			slog.String("method", string(method)),
			slog.Any("error", err))
		return result, fmt.Errorf("%w: %w", models.ErrDeliveryFailed, err)
	}

	s.logger.Info("challenge issued",
		slog.String("subject_id", subject.ID),
		slog.String("method", string(method)),
		slog.Time("expires_at", challenge.ExpiresAt))

	return result, nil
}

// Verify checks a submitted code. Wrong codes consume attempts; the third
// consecutive failure locks the subject for the cool-down period and
// discards the challenge. Submitting against a missing challenge also
// consumes an attempt, so verify-without-issue probing gains nothing.
func (s *TwoFactorService) Verify(ctx context.Context, subject models.TwoFactorSubject, submitted string) (*models.VerifyResult, error) {
	if retryAfter, locked, err := s.lockedFor(ctx, subject); err != nil {
		return nil, err
	} else if locked {
		return &models.VerifyResult{Locked: true, RetryAfter: retryAfter}, nil
	}

	blob, err := s.store.Get(ctx, codeKey(subject))
	if errors.Is(err, keystore.ErrKeyMissing) {
		return s.failAttempt(ctx, subject)
	}
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}

	var challenge models.TwoFactorChallenge
	if err := json.Unmarshal([]byte(blob), &challenge); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}

	// The store's TTL normally removes expired challenges; the timestamp
	// check covers clock skew between issue and verify.
	if !s.clock.Now().Before(challenge.ExpiresAt) {
		if err := s.store.Delete(ctx, codeKey(subject)); err != nil {
			return nil, fmt.Errorf("discard expired challenge: %w", err)
		}
		return &models.VerifyResult{Expired: true}, nil
	}

	if subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(submitted)) == 1 {
		if err := s.store.Delete(ctx, codeKey(subject)); err != nil {
			return nil, fmt.Errorf("consume challenge: %w", err)
		}
		if err := s.store.Delete(ctx, attemptsKey(subject)); err != nil {
			return nil, fmt.Errorf("clear attempts: %w", err)
		}

		s.logger.Info("challenge verified", slog.String("subject_id", subject.ID))
		return &models.VerifyResult{Success: true}, nil
	}

	return s.failAttempt(ctx, subject)
}

// failAttempt atomically bumps the attempt counter and locks the subject
// when the bound is reached.
func (s *TwoFactorService) failAttempt(ctx context.Context, subject models.TwoFactorSubject) (*models.VerifyResult, error) {
	attempts, err := s.store.Increment(ctx, attemptsKey(subject), s.config.LockoutDuration)
	if err != nil {
		return nil, fmt.Errorf("count attempt: %w", err)
	}

	if attempts >= s.config.MaxAttempts {
		if err := s.store.Set(ctx, lockKey(subject), "1", s.config.LockoutDuration); err != nil {
			return nil, fmt.Errorf("set lockout: %w", err)
		}
		if err := s.store.Delete(ctx, codeKey(subject)); err != nil {
			return nil, fmt.Errorf("discard challenge: %w", err)
		}

		s.logger.Warn("subject locked out of verification",
			slog.String("subject_id", subject.ID),
			slog.Int64("attempts", attempts))

		return &models.VerifyResult{Locked: true, RetryAfter: s.config.LockoutDuration}, nil
	}

	return &models.VerifyResult{RemainingAttempts: int(s.config.MaxAttempts - attempts)}, nil
}

func (s *TwoFactorService) lockedFor(ctx context.Context, subject models.TwoFactorSubject) (time.Duration, bool, error) {
	ttl, err := s.store.TTL(ctx, lockKey(subject))
	if errors.Is(err, keystore.ErrKeyMissing) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("check lockout: %w", err)
	}
	return ttl, ttl > 0, nil
}

// generateCode returns a uniformly random numeric code, left-zero-padded to
// the configured length.
func (s *TwoFactorService) generateCode() (string, error) {
	bound := big.NewInt(1)
	for i := 0; i < s.config.CodeLength; i++ {
		bound.Mul(bound, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", s.config.CodeLength, n), nil
}

func codeKey(subject models.TwoFactorSubject) string {
	return "2fa:code:" + subject.Type + ":" + subject.ID
}

func attemptsKey(subject models.TwoFactorSubject) string {
	return "2fa:attempts:" + subject.Type + ":" + subject.ID
}

func lockKey(subject models.TwoFactorSubject) string {
	return "2fa:lock:" + subject.Type + ":" + subject.ID
}
