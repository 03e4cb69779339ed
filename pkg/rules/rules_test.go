package rules

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sui-sentry/auditengine/pkg/models"
)

func TestEngineNeverDropsFindings(t *testing.T) {
	e := NewEngine()
	f := models.Finding{ID: "f1", Title: "integer overflow in fee calculation", Description: "arithmetic overflow on fee accumulation"}
	out := e.Apply(f)
	require.Equal(t, f.ID, out.ID, "Apply must never remove the finding, only annotate it")
}

func TestLanguageProtectionRuleAttachesHint(t *testing.T) {
	e := NewEngine()
	f := models.Finding{Title: "possible integer overflow", Description: "arithmetic overflow may occur when adding balances"}
	hint := e.Evaluate(f)
	require.NotNil(t, hint)
	require.Equal(t, "move_vm_overflow_abort", hint.RuleName)
}

func TestFirstMatchWins(t *testing.T) {
	e := NewEngine()
	f := models.Finding{
		Title:       "reentrancy in swap function",
		Description: "virtually every swap call could potentially allow a reentrant call",
	}
	hint := e.Evaluate(f)
	require.NotNil(t, hint)
	require.Equal(t, "reentrancy_immunity", hint.RuleName, "reentrancy rule registers before semantic-signal rules, so it should win")
}

func TestNoRuleMatchesReturnsNil(t *testing.T) {
	e := NewEngine()
	f := models.Finding{Title: "concrete unauthorized withdrawal", Description: "a user without any capability can call withdraw_all and drain the treasury"}
	hint := e.Evaluate(f)
	require.Nil(t, hint)
}

func TestHotPotatoRule(t *testing.T) {
	e := NewEngine()
	f := models.Finding{Title: "flash loan receipt not consumed", Description: "the hot potato struct from borrow() is never passed to repay()"}
	hint := e.Evaluate(f)
	require.NotNil(t, hint)
	require.Equal(t, "hot_potato_enforcement", hint.RuleName)
}

func TestRuleCountIsNonTrivial(t *testing.T) {
	e := NewEngine()
	require.Greater(t, e.RuleCount(), 15)
}

func TestApplyClonesRatherThanMutatesOriginal(t *testing.T) {
	e := NewEngine()
	f := models.Finding{Title: "getter view function", Description: "a read-only function leaks internal state"}
	out := e.Apply(f)
	require.Nil(t, f.SoftFilterHint, "original finding must be untouched")
	require.NotNil(t, out.SoftFilterHint)
}

func TestIsLikelyFalsePositiveNeverSignalsDrop(t *testing.T) {
	ok, reason := IsLikelyFalsePositive("access-control", "this is a theoretical issue unlikely to be exploited in practice")
	require.True(t, ok)
	require.NotEmpty(t, reason)

	ok2, _ := IsLikelyFalsePositive("logic-error", "an unauthenticated attacker can drain all pool funds in one transaction")
	require.False(t, ok2)
}
