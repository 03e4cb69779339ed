package exploit

import "errors"

// ErrSubAgentFailed is wrapped into the needs_review fallback report
// (spec §4.6: a failed sub-agent call must still produce a report, never
// drop the finding) rather than surfaced to the caller of Analyze.
var ErrSubAgentFailed = errors.New("exploit: sub-agent verification call failed")
