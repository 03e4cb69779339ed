package agent

import (
	"fmt"

	"github.com/sui-sentry/auditengine/pkg/llm"
	"github.com/sui-sentry/auditengine/pkg/toolkit"
)

// Prompts carry the behavioral contract for each role (spec §4.4): the
// full prompt text is an external collaborator (loaded from a config
// template in a real deployment), so these constants state only the
// non-negotiable instructions a generated prompt must always include.

const analystPrompt = `You are the Analyst agent in a Move/Sui smart-contract security audit.
Your job is Phase 1: build structural understanding the later phases depend on.
For every public and entry function, describe its purpose in one or two sentences,
identify state variables it reads or mutates, note any numeric threshold or comparison
that gates a privileged action, and flag multi-function call chains that move value or
change authorization state. Never speculate about exploitability — that is not your role.
Respond with a single JSON object; do not wrap it in prose.`

const auditorBroadPrompt = `You are the Auditor agent in a Move/Sui smart-contract security audit, running in
broad mode: scan the given code for vulnerabilities of any type. Report every finding you
believe is real, each with a title, severity, category, the exact module and function,
evidence copied verbatim from the source (never paraphrased or reconstructed from memory),
and a one-paragraph description. Respond with a JSON object containing a "findings" array.`

const auditorTargetedPromptTemplate = `You are the Auditor agent in a Move/Sui smart-contract security audit, running in
targeted mode for vulnerability type: %s. Look only for that vulnerability class in the
given code. Evidence must be copied verbatim from the source. Respond with a JSON object
containing a "findings" array; an empty array is a fully valid result.`

const verifierPrompt = `You are the Verifier agent, the sole agent driving Phase 3 (role-swap verification)
of a Move/Sui smart-contract security audit. You receive a group of raw findings from the
same module, a shared code context (target bodies, one-hop callees, one-hop caller
signatures), and a knowledge bundle of relevant Move/Sui security facts and soft-filter
hints. For each finding, decide independently whether it is a real, exploitable issue.
Move's VM aborts on integer overflow/underflow and out-of-bounds vector access, and has no
external-call reentrancy surface — treat findings that only restate these VM guarantees as
false positives unless the evidence shows an actual wrapping or bypass. A function guarded
by a capability reference parameter, or whose every caller enforces that capability one
layer up, is not missing access control. Respond with a JSON array with exactly one result
object per input finding, in the same order, each keyed by its vuln_index.`

const managerPrompt = `You are the Manager agent. You adjudicate Verifier results the pipeline marked
low-confidence. Decide whether to uphold, downgrade, or escalate the verdict, and give a
one-sentence rationale. Respond with a single JSON object.`

const whiteHatPrompt = `You are the WhiteHat agent performing exploit-chain analysis on a single HIGH or
CRITICAL confirmed finding in a Move/Sui smart contract. You are a dedicated sub-agent
instance with no access to any other agent's conversation history. Given the target
function, its callers and callees, its stated purpose, and relevant analysis hints,
determine whether the finding is actually exploitable, construct a concrete numbered
attack path referencing real functions, and estimate impact. Respond with a single JSON
object: is_exploitable (bool), confidence (0-100), exploitability_score (0-10),
entry_point, attack_path (array of {step, description, function_ref}), preconditions
(array), impact, poc_code, vulnerability_summary.`

// NewAnalyst builds the Phase 1 structural-analysis agent.
func NewAnalyst(provider *llm.Provider, tools *toolkit.Toolkit) *Agent {
	return New(RoleAnalyst, analystPrompt, provider, tools, toolkit.DefinitionsForRole(string(RoleAnalyst)))
}

// NewAuditor builds the Phase 2 raw-finding agent, seeded with the broad-scan
// system prompt. For targeted-mode calls, issue CallLLMWithTools with the
// prompt text from AuditorTargetedPrompt instead of relying on this agent's
// fixed system prompt.
func NewAuditor(provider *llm.Provider, tools *toolkit.Toolkit) *Agent {
	return New(RoleAuditor, auditorBroadPrompt, provider, tools, toolkit.DefinitionsForRole(string(RoleAuditor)))
}

// AuditorTargetedPrompt renders the targeted-mode prompt for one
// vulnerability type (spec §4.4: "targeted (one vulnerability type per
// call)").
func AuditorTargetedPrompt(vulnType string) string {
	return fmt.Sprintf(auditorTargetedPromptTemplate, vulnType)
}

// NewVerifier builds the Phase 3 role-swap verification agent.
func NewVerifier(provider *llm.Provider, tools *toolkit.Toolkit) *Agent {
	return New(RoleVerifier, verifierPrompt, provider, tools, toolkit.DefinitionsForRole(string(RoleVerifier)))
}

// NewManager builds the optional low-confidence adjudication agent (spec
// §4.5: "currently short-circuited" — constructed for completeness but not
// invoked by the default pipeline; see DESIGN.md's Open Question decision).
func NewManager(provider *llm.Provider, tools *toolkit.Toolkit) *Agent {
	return New(RoleManager, managerPrompt, provider, tools, toolkit.DefinitionsForRole(string(RoleManager)))
}

// NewWhiteHat builds the Phase 4 exploit-chain-analysis agent. Each
// per-finding sub-agent call should use a fresh *Agent from this
// constructor (spec §4.6: "no lock sharing with the main WhiteHat agent"),
// merging its usage back into the parent via MergeUsage.
func NewWhiteHat(provider *llm.Provider, tools *toolkit.Toolkit) *Agent {
	return New(RoleWhiteHat, whiteHatPrompt, provider, tools, toolkit.DefinitionsForRole(string(RoleWhiteHat)))
}
