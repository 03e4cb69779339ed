package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultThenValidateRequiresProvider(t *testing.T) {
	cfg := Default()
	cfg.DefaultLLM = "openai-main"
	err := Validate(cfg)
	require.Error(t, err, "default provider is not registered yet")

	cfg.LLMProviders["openai-main"] = &LLMProviderConfig{
		Name:    "openai-main",
		Backend: LLMBackendOpenAI,
		Model:   "gpt-4.1",
	}
	require.NoError(t, Validate(cfg))
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := &AuditConfig{DefaultLLM: "p", LLMProviders: map[string]*LLMProviderConfig{
		"p": {Name: "p", Backend: LLMBackendOpenAI, Model: "m"},
	}}
	applyDefaults(cfg)
	require.Equal(t, 5, cfg.GroupSize)
	require.Equal(t, 3, cfg.Concurrency.MaxConcurrentVerify)
	require.Equal(t, 5, cfg.Retry.MaxAttempts)
	require.NoError(t, Validate(cfg))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("AUDITENGINE_TEST_KEY", "secret-value")
	out := ExpandEnv([]byte("api_key: ${AUDITENGINE_TEST_KEY}"))
	require.Equal(t, "api_key: secret-value", string(out))
}
