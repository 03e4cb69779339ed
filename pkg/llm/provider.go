// Package llm defines the provider abstraction every agent calls through
// (spec §4.8): a single blocking Chat(messages, tools) → Response contract,
// with jittered exponential backoff on rate-limit errors. Collapsed from a
// streaming Chunk-based interface to a blocking call, since spec §4.8 names
// a blocking Chat contract rather than a streaming one.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Role is a chat message's speaker, mirroring spec §4.8's fixed role set.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function-call request a model emitted.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Message is one entry in a chat conversation.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string // set on RoleTool messages: which ToolCall this answers
	ToolName   string // set on RoleTool messages
}

// ToolDefinition describes a callable tool to the provider, in JSON-schema
// shape (spec §4.3's fixed tool set is translated into these at call time).
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// Usage reports token accounting for one Chat call; a provider that can't
// report usage returns the zero value rather than an error.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is what every provider's Chat call returns.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	Usage        Usage
	Model        string
	FinishReason string
	Raw          any // the provider's native response, for diagnostics only
}

// Provider is the one interface every agent calls through.
type Provider struct {
	backend     Backend
	retry       RetryPolicy
	modelName   string
	callTimeout time.Duration
}

// DefaultCallTimeout is spec §5's per-LLM-call timeout, enforced at the
// provider layer regardless of what the caller's own context deadline is.
const DefaultCallTimeout = 120 * time.Second

// Backend is what a concrete provider (OpenAI, a test double, ...) must
// implement; Provider wraps it with the shared retry policy so no backend
// has to reimplement backoff.
type Backend interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, jsonMode bool) (Response, error)
}

// RetryPolicy mirrors spec §4.1's exact backoff parameters.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterMin   float64
	JitterMax   float64
}

// DefaultRetryPolicy is spec §4.1's policy: 5 attempts, base 3s, cap 30s,
// jitter uniform in [0.5, 1.5].
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   3 * time.Second,
	MaxDelay:    30 * time.Second,
	JitterMin:   0.5,
	JitterMax:   1.5,
}

// ErrRateLimited is returned by a Backend to signal spec §4.8's "HTTP 429 or
// provider-specific equivalent" rate-limit condition; Provider retries it
// with backoff. Any other error propagates immediately without retry.
var ErrRateLimited = errors.New("llm: rate limited")

// rateLimitSubstrings are provider-specific error phrasings that count as a
// rate limit even when the backend didn't wrap ErrRateLimited directly —
// spec §4.8 calls for substring matching on error text.
var rateLimitSubstrings = []string{
	"rate limit", "429", "too many requests", "quota exceeded", "overloaded",
}

// IsRateLimited reports whether err should trigger the retry/backoff path.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, s := range rateLimitSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// NewProvider wraps backend with the given retry policy and per-call
// timeout. callTimeout <= 0 falls back to DefaultCallTimeout.
func NewProvider(backend Backend, retry RetryPolicy, modelName string, callTimeout time.Duration) *Provider {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Provider{backend: backend, retry: retry, modelName: modelName, callTimeout: callTimeout}
}

// Chat sends messages (and optional tool definitions) to the backend,
// retrying rate-limit failures with jittered exponential backoff. A
// non-rate-limit error propagates immediately, per spec §4.8. Every backend
// call (including retries) runs under p.callTimeout, enforced independently
// of whatever deadline ctx already carries (spec §5: "per-LLM-call timeout
// enforced at the provider layer").
func (p *Provider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, jsonMode bool) (Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retry.BaseDelay
	b.MaxInterval = p.retry.MaxDelay
	b.Multiplier = 2.0
	b.RandomizationFactor = jitterFactor(p.retry)
	bctx := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetriesFrom(p.retry))), ctx)

	var resp Response
	err := backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
		r, err := p.backend.Chat(callCtx, messages, tools, jsonMode)
		if err != nil {
			if IsRateLimited(err) {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}, bctx)

	if err != nil {
		return Response{}, fmt.Errorf("llm chat: %w", unwrapPermanent(err))
	}
	return resp, nil
}

// jitterFactor converts spec §4.8's jitter range [min,max] into the
// RandomizationFactor cenkalti/backoff expects: a symmetric ± around 1.0.
// [0.5, 1.5] maps to a randomization factor of 0.5 (delay * [0.5, 1.5]).
func jitterFactor(r RetryPolicy) float64 {
	spread := r.JitterMax - 1.0
	if lo := 1.0 - r.JitterMin; lo > spread {
		spread = lo
	}
	if spread <= 0 {
		return 0.5
	}
	return spread
}

func maxRetriesFrom(r RetryPolicy) int {
	if r.MaxAttempts <= 0 {
		return DefaultRetryPolicy.MaxAttempts - 1
	}
	return r.MaxAttempts - 1
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
