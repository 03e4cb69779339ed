package toolkit

import "strings"

// KnowledgeEntry is one static security-knowledge-base topic (spec §4.3
// query_security_knowledge): an always-available static base distinct from
// the optional vector corpus behind VectorSearcher.
type KnowledgeEntry struct {
	Topic    string
	Aliases  []string
	Summary  string
	Examples []string
}

// knowledgeBase is the fixed set of Move/Sui security topics. Each entry's
// Aliases double as the "alias extraction from knowledge content itself"
// spec §4.3 calls for: LookupKnowledge scans both the registered alias list
// and the words of Summary, so a topic is reachable by any term it's
// actually discussed with, not only its canonical name.
var knowledgeBase = []KnowledgeEntry{
	{
		Topic:   "hot_potato",
		Aliases: []string{"flashloan", "flash_loan", "no_abilities", "linear_enforcement"},
		Summary: "A struct with no copy, drop, or store ability (a 'hot potato') cannot be stored, dropped, or duplicated — the Move/Sui VM forces it to be consumed in the same transaction it was created in. Flashloan receipts built this way are safe-by-construction: the transaction aborts if the receipt is never consumed by a matching repay call, regardless of what the repay function itself checks.",
		Examples: []string{
			"struct FlashReceipt { pool_id: ID, amount: u64 } // no abilities: must be consumed",
			"public fun repay(receipt: FlashReceipt, payment: Coin<T>) { let FlashReceipt { pool_id, amount } = receipt; ... }",
		},
	},
	{
		Topic:   "capability_access_control",
		Aliases: []string{"capability", "admincap", "witness_pattern", "object_capability"},
		Summary: "Holding a reference to a capability object (commonly named *Cap) is itself the proof of authorization in object-capability systems; a function taking `_: &AdminCap` needs no additional permission check because the type system already enforces that only a holder of AdminCap can call it. A 'missing access control' finding against such a function is routinely a false positive.",
		Examples: []string{
			"public fun set_fee(_: &AdminCap, pool: &mut Pool, fee: u64) { pool.fee = fee }",
		},
	},
	{
		Topic:   "layered_design",
		Aliases: []string{"internal_function", "caller_enforced", "package_visibility"},
		Summary: "A public(package) or private function with no capability check of its own can still be safe if every one of its callers requires the capability before invoking it — the check is enforced one layer up. Verifying this requires the caller signatures, not just the callee body.",
		Examples: []string{},
	},
	{
		Topic:   "reentrancy",
		Aliases: []string{"reentrant", "callback_attack"},
		Summary: "Move/Sui has no dynamic dispatch into untrusted external code comparable to Solidity's fallback functions; the linear-resource and single-threaded-object-ownership model make classic external-call reentrancy largely inapplicable. Reentrancy findings here usually describe a different hazard (shared-object contention, PTB composition) and deserve scrutiny before being taken at face value.",
		Examples: []string{},
	},
	{
		Topic:   "integer_overflow",
		Aliases: []string{"overflow", "underflow", "arithmetic"},
		Summary: "The Move VM aborts on integer overflow and underflow for all unsigned integer types; there is no silent wraparound. A reported 'integer overflow' vulnerability without an explicit wrapping operation (shift-based packing, checked unwrap of a Option<u64>, etc.) is very often a false positive against this VM guarantee.",
		Examples: []string{},
	},
	{
		Topic:   "vector_bounds",
		Aliases: []string{"out_of_bounds", "array_bounds"},
		Summary: "vector::borrow and vector::borrow_mut abort on out-of-range indices rather than reading adjacent memory; there is no vector-bounds memory-safety class of bug in Move the way there is in unchecked C-like languages.",
		Examples: []string{},
	},
	{
		Topic:   "slippage",
		Aliases: []string{"min_amount_out", "price_impact"},
		Summary: "DeFi swap/withdraw functions accepting a user-supplied minimum-output parameter are delegating slippage tolerance to the caller by design; flag only when the minimum is ignored, not when it's merely caller-controlled.",
		Examples: []string{},
	},
	{
		Topic:   "fee_growth_wrapping",
		Aliases: []string{"fee_growth", "checkpoint_overflow"},
		Summary: "Concentrated-liquidity fee-growth accumulators are conventionally allowed to wrap on overflow (mirroring Uniswap v3's design) and the downstream subtraction recovers the correct delta via wrapping arithmetic; a 'fee growth can overflow' finding needs to show the downstream subtraction is NOT wrapping-safe to be real.",
		Examples: []string{},
	},
	{
		Topic:   "test_only_code",
		Aliases: []string{"test_only", "deprecated", "getter"},
		Summary: "Functions annotated #[test_only] never ship in the production bytecode; findings against them describe no reachable attack surface. Likewise a pure getter with no side effect, or code already marked deprecated in favor of a guarded replacement, carries materially lower real-world impact than the same pattern in live production code paths.",
		Examples: []string{},
	},
}

// normalizeTopic lowercases and collapses separators for matching.
func normalizeTopic(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// LookupKnowledge resolves topic against the static knowledge base by exact
// name, then by registered alias, then by fuzzy substring match against both
// (spec §4.3: "supports topic aliases, fuzzy matching, and alias extraction
// from knowledge content itself").
func LookupKnowledge(topic string) (KnowledgeEntry, bool) {
	needle := normalizeTopic(topic)
	if needle == "" {
		return KnowledgeEntry{}, false
	}

	for _, e := range knowledgeBase {
		if normalizeTopic(e.Topic) == needle {
			return e, true
		}
	}
	for _, e := range knowledgeBase {
		for _, a := range e.Aliases {
			if normalizeTopic(a) == needle {
				return e, true
			}
		}
	}
	// Fuzzy: substring either direction against topic/aliases/summary words.
	for _, e := range knowledgeBase {
		if strings.Contains(normalizeTopic(e.Topic), needle) || strings.Contains(needle, normalizeTopic(e.Topic)) {
			return e, true
		}
		for _, a := range e.Aliases {
			if strings.Contains(normalizeTopic(a), needle) {
				return e, true
			}
		}
		if strings.Contains(strings.ToLower(e.Summary), strings.ReplaceAll(needle, "_", " ")) {
			return e, true
		}
	}
	return KnowledgeEntry{}, false
}
