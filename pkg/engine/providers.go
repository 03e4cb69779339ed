package engine

import (
	"fmt"
	"time"

	"github.com/sui-sentry/auditengine/pkg/config"
	"github.com/sui-sentry/auditengine/pkg/llm"
)

// buildProvider resolves AuditConfig's default LLM provider into an
// llm.Provider. Every backend in config.LLMBackend speaks an
// OpenAI-compatible chat/completions wire format in this deployment (the
// concrete per-vendor SDK adapter is named a specified-interface-only
// external collaborator, not this module's concern) — BaseURL is what
// actually selects the vendor endpoint, so one Backend construction path
// covers all of them.
func buildProvider(cfg *config.AuditConfig, providerName string) (*llm.Provider, error) {
	pc, err := cfg.GetLLMProvider(providerName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDefaultProvider, err)
	}

	backend := llm.NewOpenAIBackend(pc.APIKey, pc.BaseURL, pc.Model)
	retry := retryPolicyFromConfig(cfg.Retry)
	return llm.NewProvider(backend, retry, pc.Model, iterationTimeout(cfg)), nil
}

// retryPolicyFromConfig converts the YAML-facing RetryConfig into
// llm.RetryPolicy, falling back to spec §4.1's defaults for any unset field.
func retryPolicyFromConfig(rc config.RetryConfig) llm.RetryPolicy {
	p := llm.DefaultRetryPolicy
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	if rc.BaseDelay > 0 {
		p.BaseDelay = rc.BaseDelay
	}
	if rc.MaxDelay > 0 {
		p.MaxDelay = rc.MaxDelay
	}
	if rc.JitterMin > 0 {
		p.JitterMin = rc.JitterMin
	}
	if rc.JitterMax > 0 {
		p.JitterMax = rc.JitterMax
	}
	return p
}

// iterationTimeout returns cfg's per-call timeout, defaulting to 120s
// (spec §5).
func iterationTimeout(cfg *config.AuditConfig) time.Duration {
	if cfg.IterationTimeout > 0 {
		return cfg.IterationTimeout
	}
	return 120 * time.Second
}
