package agent

import "errors"

var (
	// ErrMaxRoundsExceeded is returned by CallLLMWithTools, wrapping the
	// provider error, when the tool-call rounds are used up and the final
	// no-tools prompt itself fails; the returned text is then empty.
	ErrMaxRoundsExceeded = errors.New("agent: max tool-call rounds exceeded")
	// ErrNoProvider indicates an Agent was built without a backing Provider.
	ErrNoProvider = errors.New("agent: no LLM provider configured")
)
