package models

// Statistics summarizes one audit's findings (spec §4.1 Phase 5, invariant 3).
type Statistics struct {
	CountsBySeverity map[Severity]int          `json:"counts_by_severity"`
	CountsByStatus   map[VerificationStatus]int `json:"counts_by_status"`
	TotalConfirmed   int                        `json:"total_confirmed"`
	TotalFalsePositive int                      `json:"total_false_positive"`
}

// NewStatistics computes Statistics from a finished set of VerifiedFindings.
// False positives are excluded from the severity totals (invariant 3).
func NewStatistics(findings []VerifiedFinding) Statistics {
	s := Statistics{
		CountsBySeverity: map[Severity]int{},
		CountsByStatus:   map[VerificationStatus]int{},
	}
	for _, f := range findings {
		s.CountsByStatus[f.VerificationStatus]++
		if f.VerificationStatus == StatusFalsePositive {
			s.TotalFalsePositive++
			continue
		}
		s.CountsBySeverity[f.FinalSeverity]++
		s.TotalConfirmed++
	}
	return s
}

// AuditStatus is the terminal state of an audit.
type AuditStatus string

const (
	AuditStatusCompleted AuditStatus = "completed"
	AuditStatusCancelled AuditStatus = "cancelled"
	AuditStatusFailed    AuditStatus = "failed"
)

// Report is the final, deterministic Phase 5 output.
type Report struct {
	ProjectName string                       `json:"project_name"`
	Status      AuditStatus                  `json:"status"`
	Findings    []VerifiedFinding             `json:"findings"`
	Statistics  Statistics                    `json:"statistics"`
	TokenUsage  map[string]TokenUsage         `json:"token_usage_by_role"`
	Error       string                        `json:"error,omitempty"`
	Markdown    string                        `json:"markdown,omitempty"`
}
