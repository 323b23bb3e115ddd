package notify

import (
	"context"
	"log/slog"

	"github.com/halcyonsec/sentinel/internal/models"
	"github.com/halcyonsec/sentinel/internal/services"
)

// LogAlertSink writes alerts to the structured log instead of paging. Used
// in development and whenever no alert recipient is configured.
type LogAlertSink struct {
	logger *slog.Logger
}

// NewLogAlertSink creates a new LogAlertSink.
func NewLogAlertSink(logger *slog.Logger) *LogAlertSink {
	return &LogAlertSink{logger: logger}
}

func (s *LogAlertSink) Critical(ctx context.Context, payload services.AlertPayload) error {
	s.logger.ErrorContext(ctx, "SECURITY ALERT",
		slog.String("action", payload.Action),
		slog.String("severity", string(payload.Severity)),
		slog.String("description", payload.Description),
		slog.String("ip_address", payload.IPAddress),
		slog.Any("context", payload.Context))
	return nil
}

// LogNotifier writes challenge codes to the log instead of delivering them.
// Development only; never configure it where the log is not trusted.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, subject models.TwoFactorSubject, code string, method models.DeliveryMethod) error {
	n.logger.InfoContext(ctx, "challenge code (log delivery)",
		slog.String("subject_id", subject.ID),
		slog.String("method", string(method)),
		slog.String("code", code))
	return nil
}
