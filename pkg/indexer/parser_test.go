package indexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSource = `
module sui_sentry::vault {
    use sui::coin::Coin;
    use sui::balance::Balance;

    const EInsufficientBalance: u64 = 1;

    struct Receipt { amount: u64 }

    struct Vault has key, store {
        balance: Balance<u64>,
    }

    public entry fun deposit(vault: &mut Vault, coin: Coin<u64>) {
        let amount = coin_value(coin);
        if (amount == 0) { abort EInsufficientBalance };
        merge_balance(vault, coin);
    }

    fun merge_balance(vault: &mut Vault, coin: Coin<u64>) {
        // internal helper
    }

    public fun coin_value(coin: Coin<u64>): u64 {
        0
    }
}
`

func TestParseSourceExtractsModule(t *testing.T) {
	mods := ParseSource(sampleSource)
	require.Len(t, mods, 1)
	m := mods[0]
	require.Equal(t, "sui_sentry", m.Address)
	require.Equal(t, "vault", m.Name)
}

func TestParseSourceExtractsHotPotatoStruct(t *testing.T) {
	mods := ParseSource(sampleSource)
	m := mods[0]
	receipt, ok := m.Structs["Receipt"]
	require.True(t, ok)
	require.True(t, receipt.IsHotPotato, "a struct with no abilities enforces linear consumption")

	vault, ok := m.Structs["Vault"]
	require.True(t, ok)
	require.False(t, vault.IsHotPotato)
	require.Contains(t, vault.Abilities, "key")
	require.Contains(t, vault.Abilities, "store")
}

func TestParseSourceExtractsFunctionsWithBraceMatchedBody(t *testing.T) {
	mods := ParseSource(sampleSource)
	m := mods[0]

	deposit, ok := m.Functions["deposit"]
	require.True(t, ok)
	require.Equal(t, "entry", deposit.Visibility)
	require.Contains(t, deposit.Body, "merge_balance(vault, coin)")
	require.Contains(t, deposit.Body, "}") // body is brace-matched, includes closing brace

	helper, ok := m.Functions["merge_balance"]
	require.True(t, ok)
	require.Equal(t, "private", helper.Visibility)

	getter, ok := m.Functions["coin_value"]
	require.True(t, ok)
	require.Equal(t, "public", getter.Visibility)
	require.Equal(t, "u64", getter.ReturnType)
}

func TestParseSourceExtractsConstantsAndImports(t *testing.T) {
	mods := ParseSource(sampleSource)
	m := mods[0]
	require.Equal(t, "1", m.Constants["EInsufficientBalance"])
	require.Contains(t, m.Imports, "sui::coin::Coin")
}

func TestParseSourceBodyRoundTripsByteIdentical(t *testing.T) {
	mods := ParseSource(sampleSource)
	m := mods[0]
	deposit := m.Functions["deposit"]
	startIdx := indexOfSignature(sampleSource, deposit.Signature)
	require.GreaterOrEqual(t, startIdx, 0)
	require.GreaterOrEqual(t, indexOfSignature(sampleSource, deposit.Body), 0, "body must be a verbatim slice of the source")
}

func indexOfSignature(source, sig string) int {
	for i := 0; i+len(sig) <= len(source); i++ {
		if source[i:i+len(sig)] == sig {
			return i
		}
	}
	return -1
}

func TestParseSourceNoModuleReturnsNil(t *testing.T) {
	mods := ParseSource("// just a comment, no module here")
	require.Nil(t, mods)
}

func TestParseSourceMultipleModulesInOneFile(t *testing.T) {
	src := sampleSource + "\nmodule sui_sentry::pool {\n  fun noop() {}\n}\n"
	mods := ParseSource(src)
	require.Len(t, mods, 2)
	require.Equal(t, "pool", mods[1].Name)
	require.Contains(t, mods[1].Functions, "noop")
}
