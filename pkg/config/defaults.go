package config

import "time"

// Default concurrency and retry values, taken directly from spec §4.1 and
// §5: 5 retry attempts, base 3s capped at 30s, jitter in [0.5,1.5]; ≈3
// concurrent tasks per bounded fan-out; 1s inter-batch cooldown; group size
// 5; 120s per-LLM-call timeout.
func Default() *AuditConfig {
	return &AuditConfig{
		UseSimplifiedArchitecture: true,
		EnableBroadAnalysis:       true,
		EnableTargetedAnalysis:    false,
		EnableRoleSwap:            true,
		EnableExploitVerification: true,
		EnableContextSystem:       true,
		UseGroupVerify:            true,
		GroupSize:                 5,
		OutputDir:                 "./audit-output",
		DependencyCacheDir:        "~/.move",
		IterationTimeout:          120 * time.Second,
		Concurrency: ConcurrencyConfig{
			MaxConcurrentFunctionAnalyses: 3,
			MaxConcurrentVerify:           3,
			MaxConcurrentExploit:          3,
			BatchCooldown:                 1 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   3 * time.Second,
			MaxDelay:    30 * time.Second,
			JitterMin:   0.5,
			JitterMax:   1.5,
		},
		LLMProviders: map[string]*LLMProviderConfig{},
	}
}

// applyDefaults fills zero-valued fields on cfg from Default() — a layered
// defaults merge over a single struct rather than per-registry merges.
func applyDefaults(cfg *AuditConfig) {
	d := Default()
	if cfg.GroupSize == 0 {
		cfg.GroupSize = d.GroupSize
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = d.OutputDir
	}
	if cfg.DependencyCacheDir == "" {
		cfg.DependencyCacheDir = d.DependencyCacheDir
	}
	if cfg.IterationTimeout == 0 {
		cfg.IterationTimeout = d.IterationTimeout
	}
	if cfg.Concurrency.MaxConcurrentFunctionAnalyses == 0 {
		cfg.Concurrency.MaxConcurrentFunctionAnalyses = d.Concurrency.MaxConcurrentFunctionAnalyses
	}
	if cfg.Concurrency.MaxConcurrentVerify == 0 {
		cfg.Concurrency.MaxConcurrentVerify = d.Concurrency.MaxConcurrentVerify
	}
	if cfg.Concurrency.MaxConcurrentExploit == 0 {
		cfg.Concurrency.MaxConcurrentExploit = d.Concurrency.MaxConcurrentExploit
	}
	if cfg.Concurrency.BatchCooldown == 0 {
		cfg.Concurrency.BatchCooldown = d.Concurrency.BatchCooldown
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = d.Retry.BaseDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = d.Retry.MaxDelay
	}
	if cfg.Retry.JitterMin == 0 && cfg.Retry.JitterMax == 0 {
		cfg.Retry.JitterMin = d.Retry.JitterMin
		cfg.Retry.JitterMax = d.Retry.JitterMax
	}
	if cfg.LLMProviders == nil {
		cfg.LLMProviders = map[string]*LLMProviderConfig{}
	}
}
