package toolkit

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sui-sentry/auditengine/pkg/indexer"
)

func fixtureToolkit(t *testing.T) *Toolkit {
	t.Helper()
	fsys := fstest.MapFS{
		"sources/vault.move": &fstest.MapFile{Data: []byte(`
module sui_sentry::vault {
    struct Receipt { amount: u64 }

    public entry fun withdraw(receipt: Receipt) {
        settle(receipt);
    }

    fun settle(receipt: Receipt) {
        let _ = receipt;
    }
}
`)},
	}
	idx, err := indexer.Build(fsys, "sources")
	require.NoError(t, err)
	return New(idx, nil)
}

func TestCallTool_UnknownToolReturnsFailureEnvelope(t *testing.T) {
	tk := fixtureToolkit(t)
	res := tk.CallTool("does_not_exist", map[string]any{}, "auditor")
	assert.False(t, res.Success)
	assert.Equal(t, "does_not_exist", res.Source)
	assert.Contains(t, res.Error, "unknown tool")
}

func TestCallTool_MissingRequiredParameterReturnsFailureEnvelope(t *testing.T) {
	tk := fixtureToolkit(t)
	res := tk.CallTool("get_function_code", map[string]any{"module": "sui_sentry::vault"}, "auditor")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "function")
}

func TestCallTool_KnownToolSucceeds(t *testing.T) {
	tk := fixtureToolkit(t)
	res := tk.CallTool("get_function_code", map[string]any{
		"module": "sui_sentry::vault", "function": "settle",
	}, "auditor")
	require.True(t, res.Success)
	data, ok := res.Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data["body"], "settle")
}

func TestCallTool_RecordsCallLogEntryRegardlessOfOutcome(t *testing.T) {
	tk := fixtureToolkit(t)
	tk.CallTool("get_entry_points", map[string]any{}, "analyst")
	tk.CallTool("unknown_tool", map[string]any{}, "analyst")

	log := tk.CallLog()
	require.Len(t, log, 2)
	assert.Equal(t, "analyst", log[0].Caller)
	assert.True(t, log[0].Success)
	assert.False(t, log[1].Success)
}

func TestCallTool_QuerySecurityKnowledgeFindsRegisteredTopic(t *testing.T) {
	tk := fixtureToolkit(t)
	res := tk.CallTool("query_security_knowledge", map[string]any{"topic": "capability"}, "verifier")
	require.True(t, res.Success)
	data, ok := res.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "capability_access_control", data["topic"])
}

func TestCallTool_SearchVulnerabilityPatternsWithoutBackendFails(t *testing.T) {
	tk := fixtureToolkit(t) // nil VectorSearcher
	res := tk.CallTool("search_vulnerability_patterns", map[string]any{"query": "reentrancy"}, "auditor")
	assert.False(t, res.Success)
}

func TestToolNames_IncludesEveryRegisteredTool(t *testing.T) {
	names := ToolNames()
	assert.Len(t, names, len(registry))
	assert.Contains(t, names, "get_function_code")
	assert.Contains(t, names, "check_flashloan_security")
}
