package indexer

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func fixtureFS() fstest.MapFS {
	return fstest.MapFS{
		"sources/vault.move": &fstest.MapFile{Data: []byte(`
module sui_sentry::vault {
    struct Receipt { amount: u64 }
    struct Vault has key, store { balance: u64 }

    public entry fun withdraw(vault: &mut Vault, receipt: Receipt) {
        settle(vault, receipt);
    }

    fun settle(vault: &mut Vault, receipt: Receipt) {
        let _ = receipt;
    }
}
`)},
		"sources/pool.move": &fstest.MapFile{Data: []byte(`
module sui_sentry::pool {
    public fun deposit_into_vault(amount: u64) {
        withdraw_helper(amount);
    }

    fun withdraw_helper(amount: u64) {}
}
`)},
	}
}

func TestBuildIndexesModulesAndChunks(t *testing.T) {
	idx, err := Build(fixtureFS(), "sources")
	require.NoError(t, err)
	require.Contains(t, idx.Modules, "sui_sentry::vault")
	require.Contains(t, idx.Modules, "sui_sentry::pool")
	require.Contains(t, idx.Chunks, "sui_sentry::vault::Receipt")
	require.Contains(t, idx.Chunks, "sui_sentry::vault::withdraw")
}

func TestBuildFlagsHotPotatoStructAsRiskIndicator(t *testing.T) {
	idx, err := Build(fixtureFS(), "sources")
	require.NoError(t, err)
	receipt := idx.Chunks["sui_sentry::vault::Receipt"]
	require.True(t, receipt.RiskIndicators["is_hot_potato"])
}

func TestBuildCallGraphResolvesSameModuleCall(t *testing.T) {
	idx, err := Build(fixtureFS(), "sources")
	require.NoError(t, err)
	require.Equal(t, "ok", string(idx.CallGraph.Status))

	node := idx.CallGraph.Nodes["sui_sentry::vault::withdraw"]
	require.NotNil(t, node)
	_, called := node.Calls["sui_sentry::vault::settle"]
	require.True(t, called)
}

func TestGetEntryPointsListsPublicAndEntryOnly(t *testing.T) {
	idx, err := Build(fixtureFS(), "sources")
	require.NoError(t, err)
	entries := GetEntryPoints(idx)

	var names []string
	for _, c := range entries {
		names = append(names, c.ID)
	}
	require.Contains(t, names, "sui_sentry::vault::withdraw")
	require.Contains(t, names, "sui_sentry::pool::deposit_into_vault")
	require.NotContains(t, names, "sui_sentry::pool::withdraw_helper")
}

func TestSearchCodeSubstringMatch(t *testing.T) {
	idx, err := Build(fixtureFS(), "sources")
	require.NoError(t, err)
	matches, err := SearchCode(idx, "settle", false)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
}

func TestSearchCodeRegexMatch(t *testing.T) {
	idx, err := Build(fixtureFS(), "sources")
	require.NoError(t, err)
	matches, err := SearchCode(idx, `fun \w+_helper`, true)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
}

func TestGetFunctionContextReportsCallersAndCallees(t *testing.T) {
	idx, err := Build(fixtureFS(), "sources")
	require.NoError(t, err)

	ctx, err := GetFunctionContext(idx, "sui_sentry::vault::settle", 2, false)
	require.NoError(t, err)
	require.Equal(t, "sui_sentry::vault::settle", ctx.Target.ID)

	var callerIDs []string
	for _, c := range ctx.Callers {
		callerIDs = append(callerIDs, c.ID)
	}
	require.Contains(t, callerIDs, "sui_sentry::vault::withdraw")
}

func TestGetFunctionContextUnknownIDReturnsError(t *testing.T) {
	idx, err := Build(fixtureFS(), "sources")
	require.NoError(t, err)
	_, err = GetFunctionContext(idx, "does::not::exist", 2, false)
	require.Error(t, err)
}

func TestGetProjectOverviewListsModulesAndSignatures(t *testing.T) {
	idx, err := Build(fixtureFS(), "sources")
	require.NoError(t, err)
	overview := GetProjectOverview(idx, 5000)
	require.Contains(t, overview, "sui_sentry::vault")
	require.Contains(t, overview, "withdraw")
}
