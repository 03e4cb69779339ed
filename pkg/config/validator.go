package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags (`validate:"..."`) on AuditConfig and its
// sub-configs, then applies the few cross-field invariants struct tags
// can't express: the default LLM provider must actually be registered, and
// group-verify mode needs a positive group size.
func Validate(cfg *AuditConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	for name, p := range cfg.LLMProviders {
		if err := validate.Struct(p); err != nil {
			return fmt.Errorf("llm_providers[%s]: %w", name, err)
		}
	}
	if _, ok := cfg.LLMProviders[cfg.DefaultLLM]; !ok {
		return fmt.Errorf("default_llm_provider %q is not in llm_providers", cfg.DefaultLLM)
	}
	if cfg.UseGroupVerify && cfg.GroupSize < 1 {
		return fmt.Errorf("group_size must be >= 1 when use_group_verify is set")
	}
	return nil
}
