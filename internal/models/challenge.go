package models

import "time"

// DeliveryMethod selects how a challenge code reaches the subject.
type DeliveryMethod string

const (
	DeliveryEmail DeliveryMethod = "email"
	DeliverySMS   DeliveryMethod = "sms"
)

// TwoFactorSubject identifies who a challenge is bound to. Destination is the
// address the code is delivered to (email address or phone number, depending
// on the method).
type TwoFactorSubject struct {
	ID          string
	Type        string
	Role        string
	Enabled     bool
	Destination string
}

// TwoFactorChallenge is the stored shape of an issued code. Exactly one
// unconsumed challenge exists per subject; issuing again replaces it.
type TwoFactorChallenge struct {
	SubjectID   string    `json:"subject_id"`
	SubjectType string    `json:"subject_type"`
	Code        string    `json:"code"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IssueResult reports the outcome of issuing a challenge. A locked subject
// gets Locked=true and no code. Delivery problems are reported as
// ErrDeliveryFailed alongside a populated result; the stored challenge stays
// valid either way.
type IssueResult struct {
	Issued     bool
	Locked     bool
	RetryAfter time.Duration
	Code       string
	ExpiresAt  time.Time
}

// VerifyResult reports the outcome of a code submission. Policy denials
// (locked, wrong code, expired) are results, not errors.
type VerifyResult struct {
	Success           bool
	Locked            bool
	Expired           bool
	RemainingAttempts int
	RetryAfter        time.Duration
}
