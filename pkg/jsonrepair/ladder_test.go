package jsonrepair

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectParse(t *testing.T) {
	r := Parse(`{"conclusion":"confirmed","confidence":90}`, nil)
	require.Equal(t, StrategyDirect, r.Strategy)
	require.Equal(t, "confirmed", r.Value["conclusion"])
}

func TestFencedBlock(t *testing.T) {
	text := "Here is my answer:\n```json\n{\"final_severity\":\"high\"}\n```\nThanks."
	r := Parse(text, nil)
	require.Equal(t, StrategyFencedBlock, r.Strategy)
	require.Equal(t, "high", r.Value["final_severity"])
}

func TestOuterBraces(t *testing.T) {
	text := `Sure, the result is {"is_exploitable": true, "confidence": 80} as requested.`
	r := Parse(text, nil)
	require.Equal(t, StrategyOuterBraces, r.Strategy)
	require.Equal(t, true, r.Value["is_exploitable"])
}

func TestCommonRepairsTrailingComma(t *testing.T) {
	text := `{"findings": [1, 2, 3,], "count": 3,}`
	r := Parse(text, nil)
	require.Equal(t, StrategyCommonRepairs, r.Strategy)
	require.EqualValues(t, 3, r.Value["count"])
}

func TestCommonRepairsLineComment(t *testing.T) {
	text := "{\n  \"severity\": \"medium\", // flagged by analyst\n  \"confidence\": 70\n}"
	r := Parse(text, nil)
	require.Equal(t, StrategyCommonRepairs, r.Strategy)
	require.Equal(t, "medium", r.Value["severity"])
}

func TestCommonRepairsUnescapedNewlineInString(t *testing.T) {
	text := "{\"evidence\": \"line one\nline two\", \"severity\": \"low\"}"
	r := Parse(text, nil)
	require.Equal(t, StrategyCommonRepairs, r.Strategy)
	require.Equal(t, "low", r.Value["severity"])
}

func TestSingleQuotes(t *testing.T) {
	text := `{'conclusion': 'false_positive', 'confidence': 10}`
	r := Parse(text, nil)
	require.Equal(t, StrategySingleQuotes, r.Strategy)
	require.Equal(t, "false_positive", r.Value["conclusion"])
}

func TestLineByLine(t *testing.T) {
	text := "Step 1: consider the struct { field } pattern.\nFinal answer:\n{\"severity\": \"critical\", \"confidence\": 95}"
	r := Parse(text, nil)
	require.Equal(t, StrategyLineByLine, r.Strategy)
	require.Equal(t, "critical", r.Value["severity"])
}

func TestPartialFindingsExtraction(t *testing.T) {
	text := `some preamble garbage {{{ "findings": [{"id": "f1"}, {"id": "f2"}]`
	r := Parse(text, nil)
	require.Equal(t, StrategyPartialFindings, r.Strategy)
	arr, ok := r.Value["findings"].([]any)
	require.True(t, ok)
	require.Len(t, arr, 2)
}

func TestTruncationComplete(t *testing.T) {
	text := `{"conclusion": "confirmed", "confidence": 85, "final_severity": "high"`
	r := Parse(text, nil)
	require.Equal(t, StrategyTruncationComplete, r.Strategy)
}

func TestAggressiveTruncationUnterminatedString(t *testing.T) {
	text := `{"conclusion": "confirmed", "reasoning": "the attacker can drain the pool because`
	r := Parse(text, nil)
	require.Equal(t, StrategyAggressiveTruncation, r.Strategy)
	require.Equal(t, "confirmed", r.Value["conclusion"])
}

func TestRegexFieldExtractorUsedWhenLadderFails(t *testing.T) {
	text := "I cannot produce JSON right now, but is_exploitable=false and confidence=20 if you need a quick read."
	extractor := func(text string) map[string]any {
		return map[string]any{"is_exploitable": false, "confidence": 20}
	}
	r := Parse(text, extractor)
	require.Equal(t, StrategyRegexFieldExtract, r.Strategy)
	require.Equal(t, false, r.Value["is_exploitable"])
}

func TestConservativeDefaultWhenEverythingFails(t *testing.T) {
	r := Parse("totally unstructured prose with no json-like content at all", nil)
	require.Equal(t, StrategyConservativeDefault, r.Strategy)
	require.Equal(t, "confirmed", r.Value["conclusion"])
}

func TestThinkingTagsStrippedBeforeParsing(t *testing.T) {
	text := "<thinking>let me work through the call graph</thinking>{\"severity\": \"low\"}"
	r := Parse(text, nil)
	require.Equal(t, StrategyDirect, r.Strategy)
	require.Equal(t, "low", r.Value["severity"])
}

func TestParseIntHelper(t *testing.T) {
	require.Equal(t, 42, ParseInt(" 42 "))
	require.Equal(t, 0, ParseInt("not-a-number"))
}
