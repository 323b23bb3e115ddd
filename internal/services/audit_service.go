package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/halcyonsec/sentinel/internal/keystore"
	"github.com/halcyonsec/sentinel/internal/models"
)

// SecurityEventRepository defines persistence for security events.
type SecurityEventRepository interface {
	Create(ctx context.Context, event *models.SecurityEvent) error
	ListSince(ctx context.Context, since time.Time) ([]*models.SecurityEvent, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertPayload is what gets handed to the alert sink when an event crosses
// the alerting bar.
type AlertPayload struct {
	Action      string              `json:"action"`
	Severity    models.Severity     `json:"severity"`
	Description string              `json:"description"`
	IPAddress   string              `json:"ip_address,omitempty"`
	Context     models.EventContext `json:"context,omitempty"`
	OccurredAt  time.Time           `json:"occurred_at"`
}

// AlertSink delivers critical alerts to paging/chat/ticketing. Delivery is
// synchronous from Record; implementations should bound their own timeouts.
type AlertSink interface {
	Critical(ctx context.Context, payload AlertPayload) error
}

// AuditService normalizes security-relevant occurrences into structured
// events with a dual-write pattern: always to the slog sink, and to durable
// storage when an actor is present. Anonymous events live only in the sink
// log, which avoids ownership ambiguity in per-actor storage. Persistence is
// best-effort relative to the operation being audited.
type AuditService struct {
	repo   SecurityEventRepository
	sink   AlertSink
	clock  keystore.Clock
	logger *slog.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo SecurityEventRepository, sink AlertSink, clock keystore.Clock, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		sink:   sink,
		clock:  clock,
		logger: logger,
	}
}

// Record captures one security event. Side effects in order: structured log
// write (always), durable row (actor present only), synchronous alert when
// the severity or action demands it.
func (s *AuditService) Record(ctx context.Context, actor models.Actor, action, description string, eventCtx models.EventContext, severity models.Severity, ipAddress, userAgent string) error {
	if !severity.Valid() {
		severity = models.SeverityNotice
	}

	event := &models.SecurityEvent{
		ID:          uuid.New(),
		ActorID:     actor.ID,
		ActorType:   actor.Type,
		TenantID:    actor.TenantID,
		Action:      action,
		Description: description,
		Severity:    severity,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Context:     eventCtx,
		OccurredAt:  s.clock.Now(),
	}

	s.write(ctx, event)

	if !actor.IsAnonymous() {
		if err := s.repo.Create(ctx, event); err != nil {
			// Audit is not a transaction participant: log and move on.
			s.logger.ErrorContext(ctx, "failed to persist security event",
				slog.String("action", action),
				slog.Any("error", err))
		}
	}

	if severity.AlwaysAlerts() || models.IsAlertAction(action) {
		s.alert(ctx, event)
	}

	return nil
}

// LogAuthEvent records the outcome of an authentication step.
func (s *AuditService) LogAuthEvent(ctx context.Context, actor models.Actor, succeeded bool, ipAddress, userAgent string, eventCtx models.EventContext) error {
	action := models.ActionLoginSucceeded
	severity := models.SeverityInfo
	description := "authentication succeeded"
	if !succeeded {
		action = models.ActionLoginFailed
		severity = models.SeverityNotice
		description = "authentication failed"
	}
	return s.Record(ctx, actor, action, description, eventCtx, severity, ipAddress, userAgent)
}

// LogAuthorizationEvent records a denied authorization decision.
func (s *AuditService) LogAuthorizationEvent(ctx context.Context, actor models.Actor, resource string, ipAddress, userAgent string, eventCtx models.EventContext) error {
	if eventCtx == nil {
		eventCtx = models.EventContext{}
	}
	eventCtx["resource"] = resource
	return s.Record(ctx, actor, models.ActionAuthorizationDenied, "authorization denied", eventCtx, models.SeverityWarning, ipAddress, userAgent)
}

// LogSuspiciousActivity records anomalous behavior and always takes the
// alert path regardless of severity.
func (s *AuditService) LogSuspiciousActivity(ctx context.Context, actor models.Actor, description string, ipAddress, userAgent string, eventCtx models.EventContext) error {
	// suspicious_activity is in the always-alert set, so Record alerts.
	return s.Record(ctx, actor, models.ActionSuspiciousActivity, description, eventCtx, models.SeverityWarning, ipAddress, userAgent)
}

// LogSecurityViolation records a policy violation at error severity.
func (s *AuditService) LogSecurityViolation(ctx context.Context, actor models.Actor, action, description string, ipAddress, userAgent string, eventCtx models.EventContext) error {
	return s.Record(ctx, actor, action, description, eventCtx, models.SeverityError, ipAddress, userAgent)
}

// write emits the event to the structured log sink. This happens for every
// event, actor or not.
func (s *AuditService) write(ctx context.Context, event *models.SecurityEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security_event"),
		slog.String("action", event.Action),
		slog.String("severity", string(event.Severity)),
		slog.String("description", event.Description),
		slog.String("actor_type", string(event.ActorType)),
		slog.String("occurred_at", event.OccurredAt.UTC().Format(time.RFC3339)),
	}
	if event.ActorID != nil {
		attrs = append(attrs, slog.String("actor_id", event.ActorID.String()))
	}
	if event.TenantID != nil {
		attrs = append(attrs, slog.String("tenant_id", event.TenantID.String()))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if len(event.Context) > 0 {
		attrs = append(attrs, slog.Any("context", event.Context))
	}

	s.logger.LogAttrs(ctx, severityLevel(event.Severity), "security event", attrs...)
}

func (s *AuditService) alert(ctx context.Context, event *models.SecurityEvent) {
	payload := AlertPayload{
		Action:      event.Action,
		Severity:    event.Severity,
		Description: event.Description,
		IPAddress:   event.IPAddress,
		Context:     event.Context,
		OccurredAt:  event.OccurredAt,
	}
	if err := s.sink.Critical(ctx, payload); err != nil {
		s.logger.ErrorContext(ctx, "failed to deliver security alert",
			slog.String("action", event.Action),
			slog.Any("error", err))
	}
}

func severityLevel(severity models.Severity) slog.Level {
	switch severity {
	case models.SeverityInfo, models.SeverityNotice:
		return slog.LevelInfo
	case models.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
