package models

import (
	"time"

	"github.com/google/uuid"
)

// LoginAttempt is an immutable fact recording a single authentication
// attempt. Written once by the authentication flow, never mutated, and
// purged after its retention horizon elapses.
type LoginAttempt struct {
	ID          uuid.UUID  `db:"id"`
	Identity    string     `db:"identity"`
	IPAddress   string     `db:"ip_address"`
	UserAgent   string     `db:"user_agent"`
	Succeeded   bool       `db:"succeeded"`
	SubjectID   *uuid.UUID `db:"subject_id"`
	AttemptTime time.Time  `db:"attempt_time"`
	ExpiresAt   time.Time  `db:"expires_at"`
}

// LockoutStatus is the result of a dual-key lockout check. The identity and
// origin axes are independent; either tripping locks out the pair.
type LockoutStatus struct {
	LockedOut        bool
	IdentityFailures int
	OriginFailures   int
	// Remaining is the time until the more recent triggering failure ages out
	// of the lockout window. Nil when not locked out.
	Remaining *time.Duration
}
