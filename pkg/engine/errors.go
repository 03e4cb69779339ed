package engine

import "errors"

var (
	// ErrAuditCancelled's message is recorded in the cancelled Report's
	// Error field when Cancel was called before or during a phase boundary
	// check; Audit itself returns a nil error alongside that Report.
	ErrAuditCancelled = errors.New("engine: audit cancelled")

	// ErrNoDefaultProvider is returned when the configured default LLM
	// provider name doesn't resolve to an entry in AuditConfig.LLMProviders.
	ErrNoDefaultProvider = errors.New("engine: no default LLM provider configured")
)
