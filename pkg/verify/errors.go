package verify

import "errors"

// ErrGroupCallFailed is wrapped into the per-finding needs_review fallback
// reasoning (spec §4.5 Step 5: "any group-call failure yields per-finding
// needs_review ... never a silent drop") rather than surfaced to the caller.
var ErrGroupCallFailed = errors.New("verify: group verification call failed")
