// Package rules implements the exclusion rules engine: an ordered list of
// pure functions that annotate (never drop) a finding with a soft-filter
// hint, one per recognized false-positive-prone pattern (spec §4.7), each
// rule's trigger condition written from its category description in a
// pure-function, first-match-wins shape.
package rules

import (
	"regexp"
	"strings"

	"github.com/sui-sentry/auditengine/pkg/models"
)

// Rule is a pure function: given a finding, it either returns a hint or nil.
// Rules must never mutate the finding and must never signal "drop".
type Rule func(models.Finding) *models.SoftFilterHint

// Category groups rules for diagnostics and documentation; it has no
// bearing on evaluation order beyond the order rules are registered in.
type Category string

const (
	CategoryLanguageProtection Category = "language_level_protection"
	CategoryAccessControl      Category = "access_control"
	CategoryResourceSafety     Category = "resource_safety"
	CategoryDesignPattern      Category = "design_pattern"
	CategoryCodeQuality        Category = "code_quality"
	CategoryDeFi               Category = "defi_specific"
	CategorySemanticSignal     Category = "semantic_signal"
)

// namedRuleDef pairs a rule with its name in a slice, not a map, because
// registration order decides which rule wins a first-match-wins tie and a
// map would iterate that in random order.
type namedRuleDef struct {
	name string
	rule Rule
}

type namedRule struct {
	name     string
	category Category
	rule     Rule
}

// Engine runs the ordered rule list against a finding.
type Engine struct {
	rules []namedRule
}

// NewEngine builds the default ordered engine, one category at a time in
// the order spec.md §4.7 lists them.
func NewEngine() *Engine {
	e := &Engine{}
	e.register(CategoryLanguageProtection, languageProtectionRules())
	e.register(CategoryAccessControl, accessControlRules())
	e.register(CategoryResourceSafety, resourceSafetyRules())
	e.register(CategoryDesignPattern, designPatternRules())
	e.register(CategoryCodeQuality, codeQualityRules())
	e.register(CategoryDeFi, defiRules())
	e.register(CategorySemanticSignal, semanticSignalRules())
	return e
}

func (e *Engine) register(cat Category, defs []namedRuleDef) {
	for _, d := range defs {
		e.rules = append(e.rules, namedRule{name: d.name, category: cat, rule: d.rule})
	}
}

// Evaluate runs every registered rule against f in registration order and
// returns the first attached hint, or nil if no rule matched. It never
// mutates f; the caller is responsible for attaching the hint.
func (e *Engine) Evaluate(f models.Finding) *models.SoftFilterHint {
	for _, nr := range e.rules {
		if hint := nr.rule(f); hint != nil {
			return hint
		}
	}
	return nil
}

// Apply evaluates f and, if a rule matched, returns a clone of f with the
// hint attached; otherwise returns f unchanged. Findings are never dropped.
func (e *Engine) Apply(f models.Finding) models.Finding {
	hint := e.Evaluate(f)
	if hint == nil {
		return f
	}
	out := f.Clone()
	out.SoftFilterHint = hint
	return out
}

// RuleCount reports how many rules are registered.
func (e *Engine) RuleCount() int {
	return len(e.rules)
}

func hint(rule, reason, hintForAI string) *models.SoftFilterHint {
	return &models.SoftFilterHint{RuleName: rule, Reason: reason, HintForAI: hintForAI}
}

func haystack(f models.Finding) string {
	return strings.ToLower(f.Title + " " + f.Description + " " + f.Evidence + " " + f.Proof + " " + f.Recommendation)
}

func containsAny(h string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(h, n) {
			return true
		}
	}
	return false
}

// --- Language-level protection ---------------------------------------

func languageProtectionRules() []namedRuleDef {
	return []namedRuleDef{
		{"move_vm_overflow_abort", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "integer overflow", "arithmetic overflow", "overflow/underflow") &&
				!containsAny(h, "unchecked", "wrapping", "u256 downcast") {
				return hint("move_vm_overflow_abort", "Move's VM aborts on arithmetic overflow by default",
					"Confirm the operation isn't already inside a checked/saturating helper before treating this as exploitable.")
			}
			return nil
		}},
		{"vector_bounds_abort", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "out of bounds", "vector index", "array bounds") && !containsAny(h, "unsafe", "native") {
				return hint("vector_bounds_abort", "vector::borrow and friends abort on out-of-range access",
					"Verify the finding targets a path that bypasses the VM's native bounds check, not the check itself.")
			}
			return nil
		}},
		{"reentrancy_immunity", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "reentrancy", "re-entrant", "reentrant call") {
				return hint("reentrancy_immunity", "Move has no dynamic dispatch into untrusted code from within a call",
					"Classic EVM-style reentrancy needs a concrete cross-module callback path here; ask for it explicitly.")
			}
			return nil
		}},
		{"init_function_runtime_protection", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "init function", "module initializer") && containsAny(h, "called twice", "re-invoke", "re-run") {
				return hint("init_function_runtime_protection", "init functions run exactly once at publish time by VM guarantee",
					"Check whether the finding actually depends on a second invocation, which the runtime disallows.")
			}
			return nil
		}},
		{"abort_code_not_silent_failure", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "silent failure", "error swallowed") && containsAny(h, "abort", "assert!") {
				return hint("abort_code_not_silent_failure", "Move's assert!/abort unwind the whole transaction; there is no partial-apply-then-ignore state",
					"Confirm the path doesn't actually abort the transaction before treating a failure as silently accepted.")
			}
			return nil
		}},
	}
}

// --- Access control -----------------------------------------------------

func accessControlRules() []namedRuleDef {
	capabilityPattern := regexp.MustCompile(`\b\w*cap\b`)
	return []namedRuleDef{
		{"capability_parameter_idiom", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "missing access control", "no authorization check", "anyone can call") &&
				capabilityPattern.MatchString(h) {
				return hint("capability_parameter_idiom", "Move commonly gates privileged calls by requiring a capability object as a parameter rather than a runtime check",
					"Confirm the function truly lacks a capability/witness parameter before calling this missing access control.")
			}
			return nil
		}},
		{"package_visibility", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "public function", "exposed function") && containsAny(h, "should be private", "should be restricted") {
				return hint("package_visibility", "public(package) narrows callers to the same package without needing a capability",
					"Check the function's actual visibility modifier before assuming it is fully public.")
			}
			return nil
		}},
		{"admin_cap_transfer_idiom", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "admin takeover", "admin hijack") && containsAny(h, "transfer", "one-step") {
				return hint("admin_cap_transfer_idiom", "single-step capability transfers are a deliberate pattern in many Sui packages, not always a bug",
					"Check whether a two-step transfer was actually specified as a requirement before flagging single-step transfer.")
			}
			return nil
		}},
	}
}

// --- Resource safety ------------------------------------------------------

func resourceSafetyRules() []namedRuleDef {
	return []namedRuleDef{
		{"linear_type_no_duplication", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "double spend", "duplicate resource", "resource cloned") {
				return hint("linear_type_no_duplication", "structs without the copy ability cannot be duplicated by the type system",
					"Verify the struct involved actually has the copy ability or this path routes through unsafe deserialization.")
			}
			return nil
		}},
		{"ownership_by_reference", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "use after free", "dangling reference", "use-after-move") {
				return hint("ownership_by_reference", "Move's borrow checker statically rejects use-after-move for references",
					"Confirm this isn't simply a compile-time-rejected pattern; look for the concrete runtime path.")
			}
			return nil
		}},
		{"object_deletion_is_explicit", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "memory leak", "object never freed") {
				return hint("object_deletion_is_explicit", "Sui objects that are merely left un-deleted cost storage rent, not a memory-safety defect",
					"Reframe as a storage-cost concern unless the finding shows an actual fund-recovery failure.")
			}
			return nil
		}},
	}
}

// --- Design patterns ------------------------------------------------------

func designPatternRules() []namedRuleDef {
	return []namedRuleDef{
		{"hot_potato_enforcement", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "hot potato", "flash loan not repaid", "receipt not consumed") {
				return hint("hot_potato_enforcement", "A struct with no abilities must be consumed in the same transaction or the transaction aborts",
					"Confirm the receipt/potato struct genuinely lacks abilities before treating non-repayment as feasible.")
			}
			return nil
		}},
		{"shared_object_capability_gate", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "shared object", "global state") && containsAny(h, "unauthorized mutation", "anyone can modify") {
				return hint("shared_object_capability_gate", "Shared-object mutation is commonly gated by a capability argument, not object ownership",
					"Check for a capability/admin-cap parameter guarding the mutating entry function.")
			}
			return nil
		}},
		{"witness_pattern_one_time", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "witness", "one-time witness") && containsAny(h, "reused", "replayed") {
				return hint("witness_pattern_one_time", "one-time witness types are enforced unique by the VM at module init; they cannot be reconstructed afterward",
					"Check whether the flagged type actually carries the drop-only, no-constructor witness shape before assuming replay is possible.")
			}
			return nil
		}},
	}
}

// --- Code quality -----------------------------------------------------

func codeQualityRules() []namedRuleDef {
	return []namedRuleDef{
		{"test_only_function", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "#[test_only]", "test_only", "test helper") {
				return hint("test_only_function", "test_only code is stripped from the published bytecode",
					"Confirm the vulnerable function is reachable outside #[test_only] scope.")
			}
			return nil
		}},
		{"deprecated_code_path", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "deprecated", "legacy function", "unused function") {
				return hint("deprecated_code_path", "deprecated functions are frequently unreachable from any live entry point",
					"Confirm the function is still called from a live entry point before treating this as live risk.")
			}
			return nil
		}},
		{"getter_no_state_change", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "getter", "view function", "read-only function") && !containsAny(h, "mutable reference", "&mut") {
				return hint("getter_no_state_change", "pure getters that take no mutable references cannot alter contract state",
					"Double check the function signature has no &mut parameters before flagging a state-changing bug here.")
			}
			return nil
		}},
		{"naming_mismatch_only", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "misleading name", "poorly named") && !containsAny(h, "exploit", "drain") {
				return hint("naming_mismatch_only", "a confusing identifier name is a readability issue, not by itself a vulnerability",
					"Ask whether the naming confusion actually causes a caller to misuse the function unsafely.")
			}
			return nil
		}},
	}
}

// --- DeFi-specific ------------------------------------------------------

func defiRules() []namedRuleDef {
	return []namedRuleDef{
		{"user_chosen_slippage", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "slippage", "price impact") && containsAny(h, "no minimum", "unbounded") {
				return hint("user_chosen_slippage", "many swap entry points intentionally let the caller supply their own min-out bound",
					"Confirm there truly is no caller-supplied slippage parameter on this entry function.")
			}
			return nil
		}},
		{"fee_growth_wrapping", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "fee growth", "overflow wraps") && containsAny(h, "u128", "u256") {
				return hint("fee_growth_wrapping", "fee-growth accumulators are commonly designed to wrap intentionally, like Uniswap v3's feeGrowthGlobal",
					"Check whether downstream subtraction is itself wrapping-safe before flagging the wrap as the bug.")
			}
			return nil
		}},
		{"oracle_staleness_configurable", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "stale price", "oracle staleness") && !containsAny(h, "no staleness check", "missing timestamp") {
				return hint("oracle_staleness_configurable", "many oracle integrations already carry a configurable max-age check",
					"Confirm the integration truly lacks any timestamp/max-age validation before flagging staleness.")
			}
			return nil
		}},
	}
}

// --- Semantic signals -----------------------------------------------------

func semanticSignalRules() []namedRuleDef {
	return []namedRuleDef{
		{"speculative_phrasing", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "virtualy", "virtually", "might be", "could potentially", "may allow", "possibly vulnerable") {
				return hint("speculative_phrasing", "the finding's own wording hedges rather than asserts a concrete exploit path",
					"Ask the reporting agent for a concrete trigger sequence before treating this as confirmed.")
			}
			return nil
		}},
		{"commented_out_code", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "commented-out", "commented out", "// todo", "dead code in comment") {
				return hint("commented_out_code", "commented-out source is never compiled into the module",
					"Confirm the flagged lines are live code, not a comment block.")
			}
			return nil
		}},
		{"hedged_confidence_language", func(f models.Finding) *models.SoftFilterHint {
			h := haystack(f)
			if containsAny(h, "not entirely sure", "hard to tell", "unclear if this is exploitable") {
				return hint("hedged_confidence_language", "the finding's own language signals the reporting agent wasn't confident",
					"Ask for a concrete proof-of-concept or drop confidence accordingly.")
			}
			return nil
		}},
	}
}

// IsLikelyFalsePositive is the standalone heuristic invoked independently
// of the ordered rule list (spec §4.7's is_likely_false_positive helper).
// It never drops a finding; it only surfaces an additional preliminary
// flag for the verifier prompt.
func IsLikelyFalsePositive(vulnType, description string) (bool, string) {
	h := strings.ToLower(vulnType + " " + description)
	switch {
	case containsAny(h, "theoretical", "in theory", "edge case that is unlikely"):
		return true, "description hedges the finding as theoretical rather than demonstrated"
	case containsAny(h, "best practice", "style issue", "code smell") && !containsAny(h, "exploit", "drain", "steal"):
		return true, "reads as a style/best-practice note rather than a security defect"
	case containsAny(h, "requires admin", "requires owner") && containsAny(h, "trusted", "intended behavior"):
		return true, "the described actor is already a trusted/privileged role"
	default:
		return false, ""
	}
}
