package models

import "time"

// Risk scoring weights and thresholds. Fixed by design: the score is
// reproducible and auditable, not a tuned model.
const (
	RiskWeightFailedLogin        = 2
	RiskWeightSecurityViolation  = 5
	RiskWeightSuspiciousActivity = 10
	RiskFrequencyBonusHigh       = 20
	RiskFrequencyBonusLow        = 10
	RiskScoreCap                 = 100
	RiskHighThreshold            = 50
)

// RiskProfile is a derived, non-persisted summary of one origin's activity
// inside the analysis window. Regenerated on every run.
type RiskProfile struct {
	Origin               string         `json:"origin"`
	FailedLogins         int            `json:"failed_logins"`
	SecurityViolations   int            `json:"security_violations"`
	SuspiciousActivities int            `json:"suspicious_activities"`
	TotalEvents          int            `json:"total_events"`
	EventCounts          map[string]int `json:"event_counts"`
	RiskScore            int            `json:"risk_score"`
	HighRisk             bool           `json:"flagged_as_high_risk"`
}

// Score computes the risk score from the profile's aggregates, clamped to
// [0, RiskScoreCap].
func (p *RiskProfile) Score() int {
	score := RiskWeightFailedLogin*p.FailedLogins +
		RiskWeightSecurityViolation*p.SecurityViolations +
		RiskWeightSuspiciousActivity*p.SuspiciousActivities

	if p.TotalEvents > 20 {
		score += RiskFrequencyBonusHigh
	} else if p.TotalEvents > 10 {
		score += RiskFrequencyBonusLow
	}

	if score > RiskScoreCap {
		score = RiskScoreCap
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Recommendation types emitted by the analyzer.
const (
	RecommendationHighFailedLogins      = "high_failed_logins"
	RecommendationBlockHighRiskIPs      = "block_high_risk_ips"
	RecommendationEnableCaptcha         = "enable_captcha"
	RecommendationInvestigateSuspicious = "investigate_suspicious"
)

// Recommendation is one actionable suggestion in an analysis report.
type Recommendation struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Alert codes raised by the analyzer when thresholds trip.
const (
	AlertHighFailedLogins       = "HIGH_FAILED_LOGINS"
	AlertHighSuspiciousActivity = "HIGH_SUSPICIOUS_ACTIVITY"
	AlertCriticalViolations     = "CRITICAL_VIOLATIONS"
	AlertManyHighRiskOrigins    = "MANY_HIGH_RISK_IPS"
)

// AnalysisAlert pairs an alert code with the measurement that tripped it.
type AnalysisAlert struct {
	Code    string `json:"code"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// UserAgentStats aggregates attempt volume per user agent.
type UserAgentStats struct {
	UserAgent  string `json:"user_agent"`
	Count      int    `json:"count"`
	BotPattern bool   `json:"bot_pattern"`
}

// AnalysisReport is the plain structured document produced by one analyzer
// run. Rendering (JSON, table, log line) is the consumer's business.
type AnalysisReport struct {
	PeriodStart          time.Time        `json:"period_start"`
	PeriodEnd            time.Time        `json:"period_end"`
	WindowHours          int              `json:"window_hours"`
	FailedLogins         int              `json:"failed_logins"`
	SuspiciousActivities int              `json:"suspicious_activities"`
	RateLimitViolations  int              `json:"rate_limit_violations"`
	SecurityViolations   int              `json:"security_violations"`
	IPAnalysis           []RiskProfile    `json:"ip_analysis"`
	UserAgentAnalysis    []UserAgentStats `json:"user_agent_analysis"`
	Recommendations      []Recommendation `json:"recommendations"`
	Alerts               []AnalysisAlert  `json:"alerts"`
}
