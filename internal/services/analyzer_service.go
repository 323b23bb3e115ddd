package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/halcyonsec/sentinel/internal/keystore"
	"github.com/halcyonsec/sentinel/internal/models"
)

// AnalyzerConfig holds thresholds for the batch analyzer.
type AnalyzerConfig struct {
	// DefaultAlertThreshold is used when a run does not pass its own.
	DefaultAlertThreshold int
	// BotUserAgentThreshold is the attempt volume above which a bot-pattern
	// user agent earns a CAPTCHA recommendation.
	BotUserAgentThreshold int
	// HighRiskOriginLimit is how many high-risk origins are tolerated
	// before the analyzer raises an alert.
	HighRiskOriginLimit int
}

// DefaultAnalyzerConfig returns the stock thresholds.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		DefaultAlertThreshold: 100,
		BotUserAgentThreshold: 20,
		HighRiskOriginLimit:   5,
	}
}

// botPatterns are matched against lowercased user agents. Substring matching
// is acceptable here: the result is a recommendation, not an enforcement
// decision.
var botPatterns = []string{"bot", "crawler", "spider", "curl", "wget", "python", "scanner", "scrapy"}

// AnalyzerService is the out-of-band batch job: it reads a window of login
// attempts and security events, derives per-origin risk profiles, and
// assembles recommendations and alerts. It only reads, so overlapping runs
// are harmless.
type AnalyzerService struct {
	attempts LoginAttemptRepository
	events   SecurityEventRepository
	audit    *AuditService
	config   AnalyzerConfig
	clock    keystore.Clock
	logger   *slog.Logger
}

// NewAnalyzerService creates a new AnalyzerService.
func NewAnalyzerService(attempts LoginAttemptRepository, events SecurityEventRepository, audit *AuditService, config AnalyzerConfig, clock keystore.Clock, logger *slog.Logger) *AnalyzerService {
	return &AnalyzerService{
		attempts: attempts,
		events:   events,
		audit:    audit,
		config:   config,
		clock:    clock,
		logger:   logger,
	}
}

// Analyze scans the last windowHours of stored facts and produces a report.
// alertThreshold <= 0 falls back to the configured default. Tripped alert
// thresholds are also emitted through the audit pipeline's sink.
func (s *AnalyzerService) Analyze(ctx context.Context, windowHours, alertThreshold int) (*models.AnalysisReport, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	if alertThreshold <= 0 {
		alertThreshold = s.config.DefaultAlertThreshold
	}

	end := s.clock.Now()
	start := end.Add(-time.Duration(windowHours) * time.Hour)

	attempts, err := s.attempts.ListSince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	events, err := s.events.ListSince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	report := &models.AnalysisReport{
		PeriodStart: start,
		PeriodEnd:   end,
		WindowHours: windowHours,
	}

	profiles := make(map[string]*models.RiskProfile)
	profile := func(origin string) *models.RiskProfile {
		p, ok := profiles[origin]
		if !ok {
			p = &models.RiskProfile{Origin: origin, EventCounts: make(map[string]int)}
			profiles[origin] = p
		}
		return p
	}

	agentVolume := make(map[string]int)

	for _, attempt := range attempts {
		agentVolume[attempt.UserAgent]++
		if attempt.Succeeded {
			continue
		}
		report.FailedLogins++
		p := profile(attempt.IPAddress)
		p.FailedLogins++
		p.TotalEvents++
		p.EventCounts[models.ActionLoginFailed]++
	}

	criticalSeen := 0
	for _, event := range events {
		if event.Severity.AlwaysAlerts() {
			criticalSeen++
		}

		p := profile(event.IPAddress)
		p.TotalEvents++
		p.EventCounts[event.Action]++

		switch event.Action {
		case models.ActionSuspiciousActivity:
			report.SuspiciousActivities++
			p.SuspiciousActivities++
		case models.ActionRateLimitViolation:
			report.RateLimitViolations++
			p.SecurityViolations++
		case models.ActionSecurityViolation, models.ActionAccountTakeoverAttempt:
			report.SecurityViolations++
			p.SecurityViolations++
		}
	}

	highRisk := 0
	maxScore := 0
	for _, p := range profiles {
		p.RiskScore = p.Score()
		p.HighRisk = p.RiskScore > models.RiskHighThreshold
		if p.HighRisk {
			highRisk++
		}
		if p.RiskScore > maxScore {
			maxScore = p.RiskScore
		}
		report.IPAnalysis = append(report.IPAnalysis, *p)
	}
	sort.Slice(report.IPAnalysis, func(i, j int) bool {
		if report.IPAnalysis[i].RiskScore != report.IPAnalysis[j].RiskScore {
			return report.IPAnalysis[i].RiskScore > report.IPAnalysis[j].RiskScore
		}
		return report.IPAnalysis[i].Origin < report.IPAnalysis[j].Origin
	})

	botVolume := 0
	for agent, count := range agentVolume {
		stats := models.UserAgentStats{
			UserAgent:  agent,
			Count:      count,
			BotPattern: isBotAgent(agent),
		}
		if stats.BotPattern {
			botVolume += count
		}
		report.UserAgentAnalysis = append(report.UserAgentAnalysis, stats)
	}
	sort.Slice(report.UserAgentAnalysis, func(i, j int) bool {
		if report.UserAgentAnalysis[i].Count != report.UserAgentAnalysis[j].Count {
			return report.UserAgentAnalysis[i].Count > report.UserAgentAnalysis[j].Count
		}
		return report.UserAgentAnalysis[i].UserAgent < report.UserAgentAnalysis[j].UserAgent
	})

	report.Recommendations = s.recommend(report, maxScore, botVolume, alertThreshold)
	report.Alerts = s.evaluateAlerts(report, alertThreshold, criticalSeen, highRisk)

	for _, alert := range report.Alerts {
		s.emitAlert(ctx, alert, report)
	}

	s.logger.Info("analysis complete",
		slog.Int("window_hours", windowHours),
		slog.Int("failed_logins", report.FailedLogins),
		slog.Int("origins", len(report.IPAnalysis)),
		slog.Int("high_risk_origins", highRisk),
		slog.Int("alerts", len(report.Alerts)))

	return report, nil
}

func (s *AnalyzerService) recommend(report *models.AnalysisReport, maxScore, botVolume, threshold int) []models.Recommendation {
	var recs []models.Recommendation

	if report.FailedLogins > 100 {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationHighFailedLogins,
			Severity: models.SeverityWarning,
			Message:  fmt.Sprintf("%d failed logins in window; consider tightening authentication rate limits", report.FailedLogins),
		})
	}
	if maxScore > 80 {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationBlockHighRiskIPs,
			Severity: models.SeverityError,
			Message:  "one or more origins scored above 80; consider blocking them at the edge",
		})
	}
	if botVolume > s.config.BotUserAgentThreshold {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationEnableCaptcha,
			Severity: models.SeverityNotice,
			Message:  fmt.Sprintf("%d attempts came from bot-pattern user agents; consider a CAPTCHA challenge", botVolume),
		})
	}
	if report.SuspiciousActivities > threshold/2 {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationInvestigateSuspicious,
			Severity: models.SeverityWarning,
			Message:  fmt.Sprintf("%d suspicious activity events recorded; manual review recommended", report.SuspiciousActivities),
		})
	}

	return recs
}

func (s *AnalyzerService) evaluateAlerts(report *models.AnalysisReport, threshold, criticalSeen, highRisk int) []models.AnalysisAlert {
	var alerts []models.AnalysisAlert

	if report.FailedLogins > threshold {
		alerts = append(alerts, models.AnalysisAlert{
			Code:    models.AlertHighFailedLogins,
			Count:   report.FailedLogins,
			Message: fmt.Sprintf("failed logins (%d) exceeded threshold (%d)", report.FailedLogins, threshold),
		})
	}
	if report.SuspiciousActivities > threshold/2 {
		alerts = append(alerts, models.AnalysisAlert{
			Code:    models.AlertHighSuspiciousActivity,
			Count:   report.SuspiciousActivities,
			Message: fmt.Sprintf("suspicious activities (%d) exceeded threshold (%d)", report.SuspiciousActivities, threshold/2),
		})
	}
	if criticalSeen > 0 {
		alerts = append(alerts, models.AnalysisAlert{
			Code:    models.AlertCriticalViolations,
			Count:   criticalSeen,
			Message: fmt.Sprintf("%d critical severity events in window", criticalSeen),
		})
	}
	if highRisk > s.config.HighRiskOriginLimit {
		alerts = append(alerts, models.AnalysisAlert{
			Code:    models.AlertManyHighRiskOrigins,
			Count:   highRisk,
			Message: fmt.Sprintf("%d origins flagged high risk", highRisk),
		})
	}

	return alerts
}

func (s *AnalyzerService) emitAlert(ctx context.Context, alert models.AnalysisAlert, report *models.AnalysisReport) {
	err := s.audit.Record(ctx, models.AnonymousActor(),
		models.ActionAnalysisAlert,
		alert.Message,
		models.EventContext{
			"alert_code":   alert.Code,
			"count":        alert.Count,
			"window_hours": report.WindowHours,
		},
		models.SeverityCritical, "", "")
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to emit analysis alert",
			slog.String("code", alert.Code),
			slog.Any("error", err))
	}
}

func isBotAgent(agent string) bool {
	lowered := strings.ToLower(agent)
	for _, pattern := range botPatterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}
