// Package agent implements the LLM-wrapper layer every audit phase drives
// (spec §4.4): a common Agent shell (role prompt, provider, conversation,
// toolkit, token counters) plus the CallLLM / CallLLMWithTools contract,
// and the five role constructors (Analyst, Auditor, Verifier, Manager,
// WhiteHat) that differ only in system prompt and tool subset. The shell
// follows a controller-delegation pattern (base struct holding provider +
// conversation + tools, role constructors only vary prompt/tool subset)
// adapted to a blocking, in-memory Conversation rather than a DB-backed
// execution-context/controller strategy.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sui-sentry/auditengine/pkg/jsonrepair"
	"github.com/sui-sentry/auditengine/pkg/llm"
	"github.com/sui-sentry/auditengine/pkg/models"
	"github.com/sui-sentry/auditengine/pkg/session"
	"github.com/sui-sentry/auditengine/pkg/toolkit"
)

// Role identifies one of the five fixed agent roles (spec §4.4).
type Role string

const (
	RoleAnalyst  Role = "analyst"
	RoleAuditor  Role = "auditor"
	RoleVerifier Role = "verifier"
	RoleManager  Role = "manager"
	RoleWhiteHat Role = "whitehat"
)

// Agent is the common shell every role shares: a fixed system prompt, a
// provider to call through, a conversation history, and the toolkit a
// CallLLMWithTools loop dispatches against. Token counters accumulate
// across every call this instance makes, main or sub-agent merged-back.
type Agent struct {
	Role         Role
	SystemPrompt string

	provider *llm.Provider
	conv     *session.Conversation
	tools    *toolkit.Toolkit
	toolDefs []llm.ToolDefinition

	// callMu serializes stateful calls on this instance (spec §4.4: "a lock
	// serialises concurrent calls on the same agent instance"). Stateless
	// calls never take it — that's the whole point of stateless mode.
	callMu sync.Mutex

	usage models.AtomicUsage
}

// New builds an Agent for role, wired to provider and tools. toolDefs is
// normally toolkit.DefinitionsForRole(string(role)).
func New(role Role, systemPrompt string, provider *llm.Provider, tools *toolkit.Toolkit, toolDefs []llm.ToolDefinition) *Agent {
	return &Agent{
		Role:         role,
		SystemPrompt: systemPrompt,
		provider:     provider,
		conv:         session.New(systemPrompt),
		tools:        tools,
		toolDefs:     toolDefs,
	}
}

// Usage returns a snapshot of this agent's accumulated token counters.
func (a *Agent) Usage() models.TokenUsage {
	return a.usage.Snapshot()
}

// MergeUsage folds a sub-agent's usage into this agent's counters (spec
// §4.6: "all token usage from sub-agents is aggregated into the parent
// WhiteHat agent's counters").
func (a *Agent) MergeUsage(u models.TokenUsage) {
	a.usage.Add(u)
}

// CallLLM issues one user turn with no tool specs (spec §4.4's
// CallLLM(prompt, systemPrompt?, jsonMode?, stateless?)). In stateful mode
// (stateless=false) the turn is appended to, and the reply recorded into,
// this agent's persistent conversation, serialized by callMu. In stateless
// mode the call bypasses the lock and the shared history entirely, using
// session.StatelessView so concurrent stateless calls on the same Agent
// never race.
func (a *Agent) CallLLM(ctx context.Context, prompt string, jsonMode, stateless bool) (string, error) {
	if a.provider == nil {
		return "", ErrNoProvider
	}

	if stateless {
		messages := session.StatelessView(a.SystemPrompt, llm.Message{Role: llm.RoleUser, Content: prompt})
		resp, err := a.provider.Chat(ctx, messages, nil, jsonMode)
		if err != nil {
			return "", err
		}
		a.usage.Add(usageFrom(resp.Usage))
		return resp.Content, nil
	}

	a.callMu.Lock()
	defer a.callMu.Unlock()

	a.conv.Append(llm.Message{Role: llm.RoleUser, Content: prompt})
	resp, err := a.provider.Chat(ctx, a.conv.Snapshot(), nil, jsonMode)
	if err != nil {
		return "", err
	}
	a.conv.Append(llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
	a.usage.Add(usageFrom(resp.Usage))
	return resp.Content, nil
}

// toolCallCacheKey is name + canonical-args-JSON (spec §4.4 step 3):
// re-marshaling through a sorted-keys encoder makes argument order
// irrelevant to the dedup key.
func toolCallCacheKey(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]any, len(args))
	for _, k := range keys {
		ordered[k] = args[k]
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		return name + "::" + fmt.Sprintf("%v", args)
	}
	return name + "::" + string(b)
}

// LoopOptions configures one CallLLMWithTools invocation.
type LoopOptions struct {
	MaxRounds       int    // spec §4.4: 3-8 for the main loop, 5 for sub-agents
	MaxToolsPerRound int   // 0 = unbounded; sub-agent loops cap this at 2 (spec §4.6)
	JSONMode        bool
	Stateless       bool
	CallerTag       string // attributed to toolkit.CallTool's caller/logging param
}

// CallLLMWithTools implements spec §4.4's tool-call loop: send messages
// (with tool specs), execute any requested tool calls via the toolkit,
// append role:"tool" results, and loop until a non-tool-call response
// arrives or MaxRounds is exhausted — at which point a final no-tools
// "stop calling tools, output JSON now" prompt is sent and its text
// response is accepted regardless. Repeated tool calls (by name +
// canonical-args-JSON) are served from a per-call cache rather than
// re-executed.
func (a *Agent) CallLLMWithTools(ctx context.Context, prompt string, opts LoopOptions) (string, error) {
	if a.provider == nil {
		return "", ErrNoProvider
	}
	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 5
	}

	var messages []llm.Message
	var statefulPrefixLen int
	if opts.Stateless {
		messages = session.StatelessView(a.SystemPrompt, llm.Message{Role: llm.RoleUser, Content: prompt})
	} else {
		a.callMu.Lock()
		defer a.callMu.Unlock()
		a.conv.Append(llm.Message{Role: llm.RoleUser, Content: prompt})
		messages = a.conv.Snapshot()
		statefulPrefixLen = len(messages)
	}

	cache := map[string]string{} // toolCallCacheKey -> serialized result
	var finalText string

	for round := 0; round < maxRounds; round++ {
		resp, err := a.provider.Chat(ctx, messages, a.toolDefs, opts.JSONMode)
		if err != nil {
			return "", err
		}
		a.usage.Add(usageFrom(resp.Usage))

		if len(resp.ToolCalls) == 0 {
			finalText = resp.Content
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
			break
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})

		calls := resp.ToolCalls
		if opts.MaxToolsPerRound > 0 && len(calls) > opts.MaxToolsPerRound {
			calls = calls[:opts.MaxToolsPerRound]
		}

		for _, call := range calls {
			key := toolCallCacheKey(call.Name, call.Arguments)
			var resultJSON string
			if cached, ok := cache[key]; ok {
				resultJSON = cached
			} else {
				result := a.tools.CallTool(call.Name, call.Arguments, opts.CallerTag)
				b, mErr := json.Marshal(result)
				if mErr != nil {
					resultJSON = fmt.Sprintf(`{"success":false,"error":%q}`, mErr.Error())
				} else {
					resultJSON = string(b)
				}
				cache[key] = resultJSON
			}
			messages = append(messages, llm.Message{
				Role: llm.RoleTool, Content: resultJSON, ToolCallID: call.ID, ToolName: call.Name,
			})
		}
	}

	if !opts.Stateless && len(messages) > statefulPrefixLen {
		a.conv.Append(messages[statefulPrefixLen:]...)
	}

	if finalText != "" {
		return finalText, nil
	}

	// MaxRounds exhausted without a tool-free response: one final prompt
	// with no tool specs, accepting whatever text comes back (spec §4.4
	// step 4).
	slog.Debug("agent: max tool-call rounds reached, requesting final answer", "role", a.Role, "max_rounds", maxRounds)
	stopPrompt := llm.Message{Role: llm.RoleUser, Content: "Stop calling tools. Output the final JSON now."}
	messages = append(messages, stopPrompt)
	resp, err := a.provider.Chat(ctx, messages, nil, opts.JSONMode)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMaxRoundsExceeded, err)
	}
	a.usage.Add(usageFrom(resp.Usage))
	if !opts.Stateless {
		a.conv.Append(stopPrompt, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
	}
	return resp.Content, nil
}

func usageFrom(u llm.Usage) models.TokenUsage {
	return models.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		CallCount:        1,
	}
}

// ParseJSON runs the jsonrepair ladder over raw with a role-appropriate
// FieldExtractor fallback (spec §4.9 step 10). Callers pass nil to accept
// the package-default conservative fallback.
func (a *Agent) ParseJSON(raw string, extractor jsonrepair.FieldExtractor) jsonrepair.Result {
	return jsonrepair.Parse(raw, extractor)
}
