package models

// VerificationStatus is the Phase 3 verdict for a finding.
type VerificationStatus string

const (
	StatusConfirmed      VerificationStatus = "confirmed"
	StatusFalsePositive  VerificationStatus = "false_positive"
	StatusNeedsReview    VerificationStatus = "needs_review"
	StatusPartiallyValid VerificationStatus = "partially_valid"
)

// SwapRound records one agent's verdict during Phase 3's multi-round
// verification trace (role-swap verification, spec §4.5).
type SwapRound struct {
	Round      int    `json:"round"`
	Role       string `json:"role"`
	Verdict    string `json:"verdict"`
	Reasoning  string `json:"reasoning"`
	Confidence int    `json:"confidence"`
}

// VerifierResult is the full record returned by the Verifier agent for one
// finding within a group call.
type VerifierResult struct {
	Conclusion      string `json:"conclusion"`
	FinalSeverity   string `json:"final_severity"`
	Confidence      int    `json:"confidence"`
	Reasoning       string `json:"reasoning"`
	MechanismName   string `json:"mechanism_name,omitempty"`
	Recommendations string `json:"recommendations,omitempty"`
}

// VerifiedFinding is the Phase 3 output: exactly one is produced per input
// Finding (spec invariant 1).
type VerifiedFinding struct {
	OriginalFinding     Finding            `json:"original_finding"`
	VerificationStatus  VerificationStatus `json:"verification_status"`
	FinalSeverity       Severity           `json:"final_severity"`
	FinalConfidence     int                `json:"final_confidence"`
	SwapRounds          []SwapRound        `json:"swap_rounds,omitempty"`
	VerifierResult      VerifierResult     `json:"verifier_result"`
	ManagerVerdict       string            `json:"manager_verdict,omitempty"`
	Recommendations      string            `json:"recommendations,omitempty"`
	CodeContext           string           `json:"code_context,omitempty"`

	// Exploit is attached by Phase 4 only for high/critical confirmed or
	// partially_valid findings when exploit verification is enabled; nil otherwise.
	Exploit *ExploitVerificationReport `json:"exploit,omitempty"`
}

// Normalize enforces the invariant final_severity="none" <=> status is
// false_positive (spec invariant 2), and applies the conservative
// escalation policy for needs_review (spec §4.5 Step 5). It mutates and
// returns the receiver for chaining.
func (v *VerifiedFinding) Normalize() *VerifiedFinding {
	switch v.VerificationStatus {
	case StatusFalsePositive:
		v.FinalSeverity = SeverityNone
	case StatusNeedsReview:
		v.VerificationStatus = StatusConfirmed
		if v.FinalConfidence < 60 {
			v.FinalConfidence = 60
		}
		// manager escalation for confidence<80 would go here — not wired;
		// the Manager agent is declared but short-circuited (see DESIGN.md).
	}
	// The ⇐ direction: a non-false-positive status can never carry
	// final_severity="none" (e.g. a verifier reply that sets conclusion
	// "confirmed" but leaves final_severity empty/"none"). Fall back to the
	// original finding's severity rather than let a confirmed finding with
	// no severity escape the report.
	if v.VerificationStatus != StatusFalsePositive && (v.FinalSeverity == SeverityNone || v.FinalSeverity == "") {
		v.FinalSeverity = v.OriginalFinding.Severity
	}
	return v
}
