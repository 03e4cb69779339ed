// Package config assembles the audit engine's configuration: a typed
// struct tree loaded from YAML, with environment-variable expansion and
// validation (struct-tree-plus-validate-plus-merge), re-fielded here for
// the option table spec.md §6 enumerates.
package config

import "time"

// LLMBackend names a concrete provider implementation.
type LLMBackend string

const (
	LLMBackendOpenAI    LLMBackend = "openai"
	LLMBackendAnthropic LLMBackend = "anthropic"
	LLMBackendDeepSeek  LLMBackend = "deepseek"
	LLMBackendGoogle    LLMBackend = "google"
	LLMBackendDashScope LLMBackend = "dashscope"
	LLMBackendOllama    LLMBackend = "ollama"
	LLMBackendCompatible LLMBackend = "openai_compatible"
)

// LLMProviderConfig configures one pluggable LLM provider (spec §6, §4.8).
type LLMProviderConfig struct {
	Name    string     `yaml:"name" validate:"required"`
	Backend LLMBackend `yaml:"backend" validate:"required"`
	Model   string     `yaml:"model" validate:"required"`
	BaseURL string     `yaml:"base_url,omitempty"`
	APIKey  string     `yaml:"api_key,omitempty"`
	TimeoutSeconds int  `yaml:"timeout_seconds,omitempty" validate:"omitempty,min=1"`
}

// RetryConfig is the jittered exponential backoff policy for LLM rate
// limits (spec §4.1).
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" validate:"omitempty,min=1"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	JitterMin       float64       `yaml:"jitter_min"`
	JitterMax       float64       `yaml:"jitter_max"`
}

// ConcurrencyConfig holds the bounded-fan-out semaphore sizes for each
// phase (spec §5).
type ConcurrencyConfig struct {
	MaxConcurrentFunctionAnalyses int           `yaml:"max_concurrent_function_analyses" validate:"omitempty,min=1"`
	MaxConcurrentVerify           int           `yaml:"max_concurrent_verify" validate:"omitempty,min=1"`
	MaxConcurrentExploit          int           `yaml:"max_concurrent_exploit" validate:"omitempty,min=1"`
	BatchCooldown                 time.Duration `yaml:"batch_cooldown"`
}

// AuditConfig is the umbrella configuration for one Audit() call. Every
// option named in spec.md §6's Configuration table is a field here.
type AuditConfig struct {
	// Architecture / phase toggles.
	UseSimplifiedArchitecture bool `yaml:"use_simplified_architecture"`
	EnableBroadAnalysis       bool `yaml:"enable_broad_analysis"`
	EnableTargetedAnalysis    bool `yaml:"enable_targeted_analysis"`
	EnableRoleSwap            bool `yaml:"enable_role_swap"`
	EnableExploitVerification bool `yaml:"enable_exploit_verification"`
	EnableContextSystem       bool `yaml:"enable_context_system"`

	// Verification pipeline.
	UseGroupVerify bool `yaml:"use_group_verify"`
	GroupSize      int  `yaml:"group_size" validate:"omitempty,min=1"`

	// Vulnerability types iterated over in targeted-analysis mode.
	TargetedVulnTypes []string `yaml:"targeted_vuln_types,omitempty"`

	// Output.
	OutputDir string `yaml:"output_dir,omitempty"`

	// Sub-configs.
	Concurrency  ConcurrencyConfig            `yaml:"concurrency"`
	Retry        RetryConfig                  `yaml:"retry"`
	LLMProviders map[string]*LLMProviderConfig `yaml:"llm_providers"`
	DefaultLLM   string                        `yaml:"default_llm_provider" validate:"required"`

	// Dependency cache root for the dependency resolver (spec §6), defaults
	// to "~/.move".
	DependencyCacheDir string `yaml:"dependency_cache_dir,omitempty"`

	// IterationTimeout bounds a single LLM call (spec §5, default 120s).
	IterationTimeout time.Duration `yaml:"iteration_timeout"`
}

// GetLLMProvider resolves a named provider, or the default if name is empty.
func (c *AuditConfig) GetLLMProvider(name string) (*LLMProviderConfig, error) {
	if name == "" {
		name = c.DefaultLLM
	}
	p, ok := c.LLMProviders[name]
	if !ok {
		return nil, ErrLLMProviderNotFound
	}
	return p, nil
}
