// Package models holds the plain data types shared across the audit
// pipeline: findings, the project index, token accounting, and the final
// report. None of these types carry behavior beyond small invariant-
// preserving helpers — persistence, serialization for storage, and
// rendering are external collaborators, out of scope for this package.
package models

import "sync"

// TokenUsage aggregates token consumption for one agent instance across
// every LLM call it issues (main calls and any sub-agent calls merged back
// in). Counters are monotonically non-decreasing for the lifetime of an
// audit.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	CallCount        int `json:"call_count"`
}

// Add accumulates u into the receiver. Callers holding the owning agent's
// lock may call this directly; stateless call sites use AtomicUsage instead.
func (t *TokenUsage) Add(u TokenUsage) {
	t.PromptTokens += u.PromptTokens
	t.CompletionTokens += u.CompletionTokens
	t.TotalTokens += u.TotalTokens
	t.CallCount += u.CallCount
}

// AtomicUsage is a mutex-guarded TokenUsage for agent instances that also
// serve stateless calls, which bypass the conversation lock but must still
// merge their usage back without a data race (spec §5, "Token counters are
// updated under the agent's lock (stateful) or via atomic-accumulate
// (stateless)").
type AtomicUsage struct {
	mu    sync.Mutex
	usage TokenUsage
}

// Add merges u into the accumulator under its own lock.
func (a *AtomicUsage) Add(u TokenUsage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage.Add(u)
}

// Snapshot returns a copy of the current totals.
func (a *AtomicUsage) Snapshot() TokenUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}
