package models

// ExploitStatus is the WhiteHat agent's exploitability verdict (spec §4.6).
type ExploitStatus string

const (
	ExploitVerified       ExploitStatus = "verified"
	ExploitLikely         ExploitStatus = "likely"
	ExploitNeedsReview    ExploitStatus = "needs_review"
	ExploitTheoretical    ExploitStatus = "theoretical"
	ExploitFalsePositive  ExploitStatus = "false_positive"
)

// DeriveExploitStatus implements the spec §4.6 decision table mapping
// (is_exploitable, confidence, exploitability_score) to a status. confidence
// is 0-100, exploitabilityScore is 0-10.
func DeriveExploitStatus(isExploitable bool, confidence int, exploitabilityScore float64) ExploitStatus {
	switch {
	case isExploitable && confidence >= 80 && exploitabilityScore >= 7:
		return ExploitVerified
	case isExploitable && confidence >= 60 && exploitabilityScore >= 5:
		return ExploitLikely
	case isExploitable && exploitabilityScore >= 4:
		return ExploitNeedsReview
	case !isExploitable && confidence >= 80 && exploitabilityScore <= 2:
		return ExploitFalsePositive
	case !isExploitable && confidence >= 80 && exploitabilityScore > 2:
		return ExploitTheoretical
	default:
		return ExploitNeedsReview
	}
}

// AttackStep is one ordered step in an exploit-chain's attack path.
type AttackStep struct {
	Step        int    `json:"step"`
	Description string `json:"description"`
	FunctionRef string `json:"function_ref,omitempty"`
}

// SimilarCase is a RAG-retrieved precedent surfaced alongside an exploit
// report (spec "similar_cases (from RAG)").
type SimilarCase struct {
	Title    string  `json:"title"`
	Summary  string  `json:"summary"`
	Score    float32 `json:"score"`
}

// ExploitVerificationReport is the Phase 4 output for one finding.
type ExploitVerificationReport struct {
	Status               ExploitStatus `json:"status"`
	ExploitabilityScore  float64       `json:"exploitability_score"` // 0-10
	ConfidenceScore      int           `json:"confidence_score"`      // 0-100
	EntryPoint           string        `json:"entry_point"`
	AttackPath           []AttackStep  `json:"attack_path"`
	Preconditions        []string      `json:"preconditions,omitempty"`
	Impact               string        `json:"impact"`
	PoCCode              string        `json:"poc_code,omitempty"`
	SimilarCases         []SimilarCase `json:"similar_cases,omitempty"`
	VulnerabilitySummary string        `json:"vulnerability_summary"`
}
