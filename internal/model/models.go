package model

import "time"

// ReportStatus tracks a web report through its lifecycle.
type ReportStatus string

const (
	StatusPending   ReportStatus = "pending"
	StatusReviewed  ReportStatus = "reviewed"
	StatusResponded ReportStatus = "responded"
	StatusClosed    ReportStatus = "closed"
	StatusSpam      ReportStatus = "spam"
)

// validTransitions lists the status changes an admin action may perform.
// Reports are never deleted; closed and spam are terminal.
var validTransitions = map[ReportStatus][]ReportStatus{
	StatusPending:   {StatusReviewed, StatusResponded, StatusClosed, StatusSpam},
	StatusReviewed:  {StatusResponded, StatusClosed, StatusSpam},
	StatusResponded: {StatusClosed, StatusSpam},
}

// ValidStatusTransition reports whether an admin action may move a report
// from one status to another.
func ValidStatusTransition(from, to ReportStatus) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ReportSubmission is the untrusted input of a new web report.
type ReportSubmission struct {
	Email       string `json:"email"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	UserAgent   string `json:"userAgent,omitempty"`
}

// RiskAssessment holds the scorer's findings for one submission. It is
// computed once and attached to the report; TotalRiskScore is always the
// clamped sum of the sub-scores.
type RiskAssessment struct {
	ContainsExternalLinks bool     `json:"containsExternalLinks"`
	SpamScore             int      `json:"spamScore"`
	ForbiddenWords        []string `json:"forbiddenWords,omitempty"`
	MaliciousPatternScore int      `json:"maliciousPatternScore"`
	EmailRiskScore        int      `json:"emailRiskScore"`
	UserAgentRiskScore    int      `json:"userAgentRiskScore"`
	LengthRiskScore       int      `json:"lengthRiskScore"`
	TotalRiskScore        int      `json:"totalRiskScore"`
	IsSuspicious          bool     `json:"isSuspicious"`
}

// ReportAction is one entry in a report's action history.
type ReportAction struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Detail    string    `json:"detail,omitempty"`
}

// WebReport is a persisted support report with its risk assessment and
// admin action history.
type WebReport struct {
	TicketID    string
	Email       string
	Subject     string
	Description string
	UserAgent   string
	ClientID    string
	Assessment  RiskAssessment
	Status      ReportStatus
	Actions     []ReportAction // stored as JSON in DB
	CreatedAt   time.Time
}

// SecretRoute is the single time-boxed admin access path. At most one is
// active at a time; an expired record is treated as absent by all reads.
type SecretRoute struct {
	Path      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// AdminSession is a server-stored session minted after a successful secret
// route exchange.
type AdminSession struct {
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SecurityStats aggregates report counts for the admin dashboard.
type SecurityStats struct {
	TotalReports     int     `json:"totalReports"`
	PendingReports   int     `json:"pendingReports"`
	SpamReports      int     `json:"spamReports"`
	SuspiciousCount  int     `json:"suspiciousCount"`
	AverageRiskScore float64 `json:"averageRiskScore"`
}
