// Package session holds per-agent conversation state: the message history
// an Agent accumulates across stateful LLM calls. Thread-safe
// Append/Snapshot over a mutex-guarded slice, narrowed to just the
// conversation history one Agent instance owns, and extended with the
// stateless fast path spec §9 requires: a stateless call must skip the
// lock entirely rather than hold it briefly, since its whole purpose is
// concurrent reuse of one agent instance across goroutines.
package session

import (
	"sync"

	"github.com/sui-sentry/auditengine/pkg/llm"
)

// Conversation is the mutable message history for one Agent instance.
// Safe for concurrent use: stateful callers go through Append/Snapshot,
// which take the internal mutex; stateless callers use StatelessView and
// never touch the mutex at all.
type Conversation struct {
	mu       sync.Mutex
	messages []llm.Message
}

// New returns an empty conversation, optionally seeded with a system prompt.
func New(systemPrompt string) *Conversation {
	c := &Conversation{}
	if systemPrompt != "" {
		c.messages = append(c.messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	return c
}

// Append adds messages under the conversation lock. Callers making a
// stateless call must NOT use this method — see StatelessView's doc.
func (c *Conversation) Append(msgs ...llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
}

// Snapshot returns a copy of the current history for sending to the
// provider. The copy means the caller can append the model's reply and any
// tool results without racing a concurrent stateful call on this instance.
func (c *Conversation) Snapshot() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len reports the current history length (diagnostics only).
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// StatelessView builds a fresh, unshared message slice for a stateless call:
// the conversation's system prompt (if any) plus the caller-supplied turn,
// with no history read or written and no lock taken. This is the mechanism
// spec §9 calls for sub-agent isolation: "use a fresh message list (no
// parent history)".
func StatelessView(systemPrompt string, turn ...llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(turn)+1)
	if systemPrompt != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	return append(out, turn...)
}
