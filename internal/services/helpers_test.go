package services_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/halcyonsec/sentinel/internal/keystore"
	"github.com/halcyonsec/sentinel/internal/models"
	"github.com/halcyonsec/sentinel/internal/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// MemLoginAttemptRepository implements services.LoginAttemptRepository in
// memory for testing.
type MemLoginAttemptRepository struct {
	mu       sync.Mutex
	clock    keystore.Clock
	attempts []*models.LoginAttempt
	// Err, when set, is returned from every method to exercise
	// infrastructure failure paths.
	Err error
}

func NewMemLoginAttemptRepository(clock keystore.Clock) *MemLoginAttemptRepository {
	return &MemLoginAttemptRepository{clock: clock}
}

func (m *MemLoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *MemLoginAttemptRepository) CountFailuresByIdentity(ctx context.Context, identity string, since time.Time) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.attempts {
		if a.Identity == identity && !a.Succeeded && !a.AttemptTime.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemLoginAttemptRepository) CountFailuresByOrigin(ctx context.Context, origin string, since time.Time) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.attempts {
		if a.IPAddress == origin && !a.Succeeded && !a.AttemptTime.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemLoginAttemptRepository) LatestFailureByIdentity(ctx context.Context, identity string, since time.Time) (*time.Time, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *time.Time
	for _, a := range m.attempts {
		if a.Identity == identity && !a.Succeeded && !a.AttemptTime.Before(since) {
			t := a.AttemptTime
			if latest == nil || t.After(*latest) {
				latest = &t
			}
		}
	}
	return latest, nil
}

func (m *MemLoginAttemptRepository) LatestFailureByOrigin(ctx context.Context, origin string, since time.Time) (*time.Time, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *time.Time
	for _, a := range m.attempts {
		if a.IPAddress == origin && !a.Succeeded && !a.AttemptTime.Before(since) {
			t := a.AttemptTime
			if latest == nil || t.After(*latest) {
				latest = &t
			}
		}
	}
	return latest, nil
}

func (m *MemLoginAttemptRepository) ListSince(ctx context.Context, since time.Time) ([]*models.LoginAttempt, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.LoginAttempt, 0)
	for _, a := range m.attempts {
		if !a.AttemptTime.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemLoginAttemptRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	kept := m.attempts[:0]
	var removed int64
	for _, a := range m.attempts {
		if a.ExpiresAt.After(now) {
			kept = append(kept, a)
		} else {
			removed++
		}
	}
	m.attempts = kept
	return removed, nil
}

// MemSecurityEventRepository implements services.SecurityEventRepository in
// memory for testing.
type MemSecurityEventRepository struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
	Err    error
}

func NewMemSecurityEventRepository() *MemSecurityEventRepository {
	return &MemSecurityEventRepository{}
}

func (m *MemSecurityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemSecurityEventRepository) ListSince(ctx context.Context, since time.Time) ([]*models.SecurityEvent, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.SecurityEvent, 0)
	for _, e := range m.events {
		if !e.OccurredAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemSecurityEventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	var removed int64
	for _, e := range m.events {
		if e.OccurredAt.Before(cutoff) {
			removed++
		} else {
			kept = append(kept, e)
		}
	}
	m.events = kept
	return removed, nil
}

// Events returns a snapshot of the stored events.
func (m *MemSecurityEventRepository) Events() []*models.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.SecurityEvent, len(m.events))
	copy(out, m.events)
	return out
}

// CaptureAlertSink records alert payloads for assertions.
type CaptureAlertSink struct {
	mu       sync.Mutex
	payloads []services.AlertPayload
	Err      error
}

func (s *CaptureAlertSink) Critical(ctx context.Context, payload services.AlertPayload) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *CaptureAlertSink) Payloads() []services.AlertPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]services.AlertPayload, len(s.payloads))
	copy(out, s.payloads)
	return out
}

// CaptureNotifier records dispatched codes for assertions.
type CaptureNotifier struct {
	mu    sync.Mutex
	codes []string
	Err   error
}

func (n *CaptureNotifier) Send(ctx context.Context, subject models.TwoFactorSubject, code string, method models.DeliveryMethod) error {
	if n.Err != nil {
		return n.Err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, code)
	return nil
}

func (n *CaptureNotifier) Codes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.codes))
	copy(out, n.codes)
	return out
}
