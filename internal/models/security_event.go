package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Severity is a closed enumeration of event severities, ordered least to most
// severe. String routing on severities is deliberately avoided; alerting is
// decided by set membership, not substring matching.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityNotice    Severity = "notice"
	SeverityWarning   Severity = "warning"
	SeverityError     Severity = "error"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityNotice, SeverityWarning, SeverityError, SeverityCritical, SeverityEmergency:
		return true
	}
	return false
}

// AlwaysAlerts reports whether the severity alone is enough to page.
func (s Severity) AlwaysAlerts() bool {
	return s == SeverityCritical || s == SeverityEmergency
}

// Actions recorded by the pipeline and its callers.
const (
	ActionLoginFailed            = "login_failed"
	ActionLoginSucceeded         = "login_succeeded"
	ActionAuthorizationDenied    = "authorization_denied"
	ActionRateLimitViolation     = "rate_limit_violation"
	ActionSecurityViolation      = "security_violation"
	ActionSuspiciousActivity     = "suspicious_activity"
	ActionBulkOperation          = "bulk_operation"
	ActionAccountTakeoverAttempt = "account_takeover_attempt"
	ActionAnalysisAlert          = "security_analysis_alert"
)

// alertActions is the fixed set of actions that page regardless of severity.
var alertActions = map[string]struct{}{
	ActionSuspiciousActivity:     {},
	ActionBulkOperation:          {},
	ActionAccountTakeoverAttempt: {},
}

// IsAlertAction reports whether the action is in the always-alert set.
func IsAlertAction(action string) bool {
	_, ok := alertActions[action]
	return ok
}

// SecurityEvent is an append-only record of a security-relevant occurrence.
// Events are never mutated or deleted by the core; retention is external
// policy (see background.RetentionManager for the bundled implementation).
type SecurityEvent struct {
	ID          uuid.UUID    `db:"id"`
	ActorID     *uuid.UUID   `db:"actor_id"`
	ActorType   ActorType    `db:"actor_type"`
	TenantID    *uuid.UUID   `db:"tenant_id"`
	Action      string       `db:"action"`
	Description string       `db:"description"`
	Severity    Severity     `db:"severity"`
	IPAddress   string       `db:"ip_address"`
	UserAgent   string       `db:"user_agent"`
	Context     EventContext `db:"context"`
	OccurredAt  time.Time    `db:"occurred_at"`
}

// EventContext holds additional structured context for security events
type EventContext map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (ec *EventContext) Scan(value interface{}) error {
	if value == nil {
		*ec = make(EventContext)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*ec = EventContext(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (ec EventContext) Value() (driver.Value, error) {
	if ec == nil {
		return nil, nil
	}
	return json.Marshal(ec)
}

// MarshalJSON implements json.Marshaler
func (ec EventContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(ec))
}

// UnmarshalJSON implements json.Unmarshaler
func (ec *EventContext) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*ec = EventContext(m)
	return nil
}
