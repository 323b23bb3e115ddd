package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonsec/sentinel/internal/keystore"
	"github.com/halcyonsec/sentinel/internal/models"
	"github.com/halcyonsec/sentinel/internal/services"
)

// failingStore simulates an unreachable counter store. Like the real
// adapter, it reports the outage wrapped in models.ErrStoreUnavailable.
type failingStore struct{}

var errStoreDown = fmt.Errorf("%w: connection refused", models.ErrStoreUnavailable)

func (failingStore) Get(ctx context.Context, key string) (string, error) {
	return "", errStoreDown
}
func (failingStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errStoreDown
}
func (failingStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, errStoreDown
}
func (failingStore) Delete(ctx context.Context, key string) error {
	return errStoreDown
}
func (failingStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return 0, errStoreDown
}

type guardFixture struct {
	svc      *services.GuardService
	attempts *MemLoginAttemptRepository
	events   *MemSecurityEventRepository
	notifier *CaptureNotifier
	clock    *keystore.FakeClock
}

func newGuardFixture(t *testing.T, store keystore.Store, config services.GuardConfig) *guardFixture {
	t.Helper()
	clock := keystore.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if store == nil {
		store = keystore.NewMemoryStore(clock)
	}
	logger := testLogger()

	attempts := NewMemLoginAttemptRepository(clock)
	events := NewMemSecurityEventRepository()
	notifier := &CaptureNotifier{}

	lockout := services.NewLockoutService(attempts, services.DefaultLockoutConfig(), clock, logger)
	limiter := services.NewRateLimiter(store, logger)
	audit := services.NewAuditService(events, &CaptureAlertSink{}, clock, logger)
	escalator := services.NewEscalationService(limiter, audit, services.DefaultEscalationConfig(), logger)
	twoFactor := services.NewTwoFactorService(store, notifier, services.DefaultTwoFactorConfig(), clock, logger)

	svc := services.NewGuardService(lockout, limiter, escalator, twoFactor, audit, config, logger)
	return &guardFixture{svc: svc, attempts: attempts, events: events, notifier: notifier, clock: clock}
}

func TestGuardCheckLockout_AllowThenDeny(t *testing.T) {
	f := newGuardFixture(t, nil, services.DefaultGuardConfig())
	ctx := context.Background()

	decision, err := f.svc.CheckLockout(ctx, "alice@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	for i := 0; i < 5; i++ {
		_, err := f.svc.RecordAttempt(ctx, services.AttemptRequest{
			Identity:  "alice@example.com",
			Origin:    "10.0.0.1",
			UserAgent: "Mozilla/5.0",
			Succeeded: false,
			Actor:     models.AnonymousActor(),
		})
		require.NoError(t, err)
	}

	decision, err = f.svc.CheckLockout(ctx, "alice@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.DenialLockedOut, decision.Reason)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
	assert.False(t, decision.Degraded)
}

func TestGuardCheckLockout_ValidationErrorsAreNotDenials(t *testing.T) {
	f := newGuardFixture(t, nil, services.DefaultGuardConfig())
	ctx := context.Background()

	_, err := f.svc.CheckLockout(ctx, "", "10.0.0.1")
	require.ErrorIs(t, err, models.ErrBadRequest)

	_, err = f.svc.CheckLockout(ctx, "alice@example.com", "not-an-ip")
	require.ErrorIs(t, err, models.ErrBadRequest)
}

func TestGuardRecordAttempt_ValidatesAndAudits(t *testing.T) {
	f := newGuardFixture(t, nil, services.DefaultGuardConfig())
	ctx := context.Background()

	_, err := f.svc.RecordAttempt(ctx, services.AttemptRequest{
		Identity: "alice@example.com",
		Origin:   "999.999.0.1",
	})
	require.ErrorIs(t, err, models.ErrBadRequest)
	assert.Empty(t, f.events.Events())

	attempt, err := f.svc.RecordAttempt(ctx, services.AttemptRequest{
		Identity:  "alice@example.com",
		Origin:    "10.0.0.1",
		UserAgent: "Mozilla/5.0",
		Succeeded: false,
		Actor:     models.AnonymousActor(),
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", attempt.Identity)

	// The fact row landed even though the anonymous audit event stays out of
	// durable storage.
	count, err := f.attempts.CountFailuresByIdentity(ctx, "alice@example.com", f.clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGuardCheckRateLimit_KindPolicies(t *testing.T) {
	f := newGuardFixture(t, nil, services.DefaultGuardConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		decision, err := f.svc.CheckRateLimit(ctx, "auth_identity", "alice@example.com")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	}

	decision, err := f.svc.CheckRateLimit(ctx, "auth_identity", "alice@example.com")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.DenialRateLimited, decision.Reason)
	assert.Equal(t, time.Hour, decision.RetryAfter)

	// Kinds are separate namespaces: the same key under another kind is
	// untouched.
	decision, err = f.svc.CheckRateLimit(ctx, "api", "alice@example.com")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestGuardCheckRateLimit_UnknownKind(t *testing.T) {
	f := newGuardFixture(t, nil, services.DefaultGuardConfig())

	_, err := f.svc.CheckRateLimit(context.Background(), "websocket", "alice")
	require.ErrorIs(t, err, models.ErrBadRequest)

	_, err = f.svc.CheckRateLimit(context.Background(), "api", "")
	require.ErrorIs(t, err, models.ErrBadRequest)
}

func TestGuardClearRateLimit_ResetsCounter(t *testing.T) {
	f := newGuardFixture(t, nil, services.DefaultGuardConfig())
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		_, err := f.svc.CheckRateLimit(ctx, "auth_identity", "alice@example.com")
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.ClearRateLimit(ctx, "auth_identity", "alice@example.com"))

	decision, err := f.svc.CheckRateLimit(ctx, "auth_identity", "alice@example.com")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestGuardFailOpen_StoreOutageDegradesRateLimit(t *testing.T) {
	f := newGuardFixture(t, failingStore{}, services.DefaultGuardConfig())

	decision, err := f.svc.CheckRateLimit(context.Background(), "api", "tenant-1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Degraded)
}

func TestGuardFailClosed_WhenConfigured(t *testing.T) {
	config := services.DefaultGuardConfig()
	config.FailOpen = false
	f := newGuardFixture(t, failingStore{}, config)

	_, err := f.svc.CheckRateLimit(context.Background(), "api", "tenant-1")
	require.ErrorIs(t, err, errStoreDown)
	// The outage keeps its typed kind through the wrap chain, so a caller
	// implementing its own fail-closed policy can tell it apart from other
	// internal errors.
	require.ErrorIs(t, err, models.ErrStoreUnavailable)
	require.NotErrorIs(t, err, models.ErrBadRequest)
}

func TestGuardFailOpen_DatabaseOutageDegradesLockout(t *testing.T) {
	f := newGuardFixture(t, nil, services.DefaultGuardConfig())
	f.attempts.Err = errors.New("connection refused")

	decision, err := f.svc.CheckLockout(context.Background(), "alice@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Degraded)
}

func TestGuardTwoFactor_AlwaysFailsClosed(t *testing.T) {
	f := newGuardFixture(t, failingStore{}, services.DefaultGuardConfig())
	subject := testSubject()

	_, err := f.svc.IssueTwoFactor(context.Background(), subject, models.DeliveryEmail)
	require.Error(t, err)

	_, err = f.svc.VerifyTwoFactor(context.Background(), subject, "123456")
	require.Error(t, err)
}

func TestGuardTwoFactor_InputValidation(t *testing.T) {
	f := newGuardFixture(t, nil, services.DefaultGuardConfig())
	ctx := context.Background()

	_, err := f.svc.IssueTwoFactor(ctx, models.TwoFactorSubject{}, models.DeliveryEmail)
	require.ErrorIs(t, err, models.ErrBadRequest)

	_, err = f.svc.IssueTwoFactor(ctx, testSubject(), models.DeliveryMethod("pigeon"))
	require.ErrorIs(t, err, models.ErrBadRequest)

	_, err = f.svc.VerifyTwoFactor(ctx, testSubject(), "abc123")
	require.ErrorIs(t, err, models.ErrBadRequest)
}

func TestGuardTwoFactor_EndToEnd(t *testing.T) {
	f := newGuardFixture(t, nil, services.DefaultGuardConfig())
	ctx := context.Background()
	subject := testSubject()

	require.True(t, f.svc.TwoFactorRequired(subject, "payout"))

	issued, err := f.svc.IssueTwoFactor(ctx, subject, models.DeliveryEmail)
	require.NoError(t, err)
	require.True(t, issued.Issued)

	result, err := f.svc.VerifyTwoFactor(ctx, subject, issued.Code)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestGuardEvaluateOrigin_RequiresIPAddress(t *testing.T) {
	f := newGuardFixture(t, nil, services.DefaultGuardConfig())
	ctx := context.Background()

	_, err := f.svc.EvaluateOrigin(ctx, "not-an-ip")
	require.ErrorIs(t, err, models.ErrBadRequest)

	decision, err := f.svc.EvaluateOrigin(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, "normal", decision.Tier)
}

func TestGuardRecordViolation_FeedsEscalation(t *testing.T) {
	f := newGuardFixture(t, nil, services.DefaultGuardConfig())
	ctx := context.Background()

	require.ErrorIs(t, f.svc.RecordViolation(ctx, "nowhere"), models.ErrBadRequest)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.RecordViolation(ctx, "203.0.113.9"))
	}

	decision, err := f.svc.EvaluateOrigin(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, "moderate", decision.Tier)
}

func TestGuardAudit_RejectsMalformedEvents(t *testing.T) {
	f := newGuardFixture(t, nil, services.DefaultGuardConfig())
	ctx := context.Background()
	actor := models.AnonymousActor()

	err := f.svc.Audit(ctx, actor, "", "no action", nil, models.SeverityInfo, "", "")
	require.ErrorIs(t, err, models.ErrBadRequest)

	err = f.svc.Audit(ctx, actor, "config_change", "x", nil, models.Severity("loud"), "", "")
	require.ErrorIs(t, err, models.ErrBadRequest)

	err = f.svc.Audit(ctx, actor, "config_change", "updated limits", nil, models.SeverityInfo, "", "")
	require.NoError(t, err)
}
