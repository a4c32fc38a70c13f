package policy_engine

import "errors"

// ErrInvalidOutput marks model output that could not be recovered into a
// valid candidate: text with no parseable JSON payload, or a candidate whose
// answer field is missing, non-text, or empty. The pipeline substitutes the
// fixed fallback reply when it sees this error.
var ErrInvalidOutput = errors.New("invalid model output")
