package policy_engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Candidate is the loosely-typed structured object recovered from model
// output, before validation. Field types are whatever the JSON decoder
// produced; the validator owns coercion and enforcement.
type Candidate map[string]any

// ParseCandidate extracts a structured candidate from a model reply. The
// input is either an already-structured object (passed through as-is) or
// raw text.
//
// Models frequently wrap valid JSON in prose despite instructions, so text
// input is parsed in two attempts: the full text first, then the substring
// between the first '{' and the last '}'. The substring recovery materially
// improves success rate without weakening the schema contract — validation
// still enforces correctness on whatever is recovered.
func ParseCandidate(raw any) (Candidate, error) {
	switch v := raw.(type) {
	case Candidate:
		return v, nil
	case map[string]any:
		return Candidate(v), nil
	case []byte:
		return parseText(string(v))
	case string:
		return parseText(v)
	default:
		return nil, fmt.Errorf("unsupported model output type %T: %w", raw, ErrInvalidOutput)
	}
}

func parseText(text string) (Candidate, error) {
	var candidate Candidate
	if err := json.Unmarshal([]byte(text), &candidate); err == nil {
		return candidate, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &candidate); err == nil {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("model output is not recoverable as JSON: %w", ErrInvalidOutput)
}
