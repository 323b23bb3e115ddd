// Package notify holds the outbound collaborator adapters: challenge code
// delivery and critical-alert paging over AWS SES.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/halcyonsec/sentinel/internal/models"
	"github.com/halcyonsec/sentinel/internal/services"
)

// SESNotifier delivers challenge codes by email using AWS SES. SMS delivery
// is not wired in this adapter; deployments needing it plug in their own
// services.Notifier.
type SESNotifier struct {
	client      *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewSESNotifier creates a new SESNotifier.
func NewSESNotifier(region, fromAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESNotifier{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// Send dispatches a challenge code to the subject's destination address.
func (n *SESNotifier) Send(ctx context.Context, subject models.TwoFactorSubject, code string, method models.DeliveryMethod) error {
	if method != models.DeliveryEmail {
		return fmt.Errorf("%w: %q", models.ErrUnsupportedDelivery, method)
	}
	if subject.Destination == "" {
		return fmt.Errorf("subject %s has no delivery destination", subject.ID)
	}

	textBody := fmt.Sprintf(
		"Your verification code is: %s\n\nThe code expires shortly. If you did not request it, ignore this message and consider changing your password.",
		code,
	)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{subject.Destination},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String("Your verification code"),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(textBody),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := n.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send challenge email: %w", err)
	}

	n.logger.Info("challenge code dispatched",
		slog.String("subject_id", subject.ID),
		slog.String("method", string(method)))

	return nil
}

// SESAlertSink delivers critical alerts to the security mailbox. The payload
// rides along as pretty-printed JSON so the on-call reader gets the full
// event context.
type SESAlertSink struct {
	client    *ses.Client
	from      string
	recipient string
	logger    *slog.Logger
}

// NewSESAlertSink creates a new SESAlertSink.
func NewSESAlertSink(region, from, recipient string, logger *slog.Logger) (*SESAlertSink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESAlertSink{
		client:    ses.NewFromConfig(cfg),
		from:      from,
		recipient: recipient,
		logger:    logger,
	}, nil
}

// Critical sends one alert email synchronously.
func (s *SESAlertSink) Critical(ctx context.Context, payload services.AlertPayload) error {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode alert payload: %w", err)
	}

	subject := fmt.Sprintf("[SECURITY %s] %s", payload.Severity, payload.Action)

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{s.recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(payload.Description + "\n\n" + string(body)),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	s.logger.Info("security alert dispatched",
		slog.String("action", payload.Action),
		slog.String("severity", string(payload.Severity)))

	return nil
}
