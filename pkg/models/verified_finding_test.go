package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_FalsePositiveForcesSeverityNone(t *testing.T) {
	vf := (&VerifiedFinding{
		OriginalFinding:    Finding{Severity: SeverityHigh},
		VerificationStatus: StatusFalsePositive,
		FinalSeverity:      SeverityHigh,
	}).Normalize()

	assert.Equal(t, SeverityNone, vf.FinalSeverity)
}

func TestNormalize_NeedsReviewEscalatesToConfirmedWithConfidenceFloor(t *testing.T) {
	vf := (&VerifiedFinding{
		OriginalFinding:    Finding{Severity: SeverityMedium},
		VerificationStatus: StatusNeedsReview,
		FinalSeverity:      SeverityMedium,
		FinalConfidence:    40,
	}).Normalize()

	assert.Equal(t, StatusConfirmed, vf.VerificationStatus)
	assert.Equal(t, 60, vf.FinalConfidence)
}

func TestNormalize_ConfirmedWithNoneSeverityFallsBackToOriginalSeverity(t *testing.T) {
	vf := (&VerifiedFinding{
		OriginalFinding:    Finding{Severity: SeverityHigh},
		VerificationStatus: StatusConfirmed,
		FinalSeverity:      SeverityNone,
	}).Normalize()

	assert.Equal(t, StatusConfirmed, vf.VerificationStatus)
	assert.Equal(t, SeverityHigh, vf.FinalSeverity, "a confirmed finding must never carry final_severity=none")
}

func TestNormalize_PartiallyValidWithNoneSeverityFallsBackToOriginalSeverity(t *testing.T) {
	vf := (&VerifiedFinding{
		OriginalFinding:    Finding{Severity: SeverityLow},
		VerificationStatus: StatusPartiallyValid,
		FinalSeverity:      SeverityNone,
	}).Normalize()

	assert.Equal(t, SeverityLow, vf.FinalSeverity)
}

func TestNormalize_ConfirmedWithRealSeverityIsUnchanged(t *testing.T) {
	vf := (&VerifiedFinding{
		OriginalFinding:    Finding{Severity: SeverityHigh},
		VerificationStatus: StatusConfirmed,
		FinalSeverity:      SeverityCritical,
	}).Normalize()

	assert.Equal(t, SeverityCritical, vf.FinalSeverity)
}
