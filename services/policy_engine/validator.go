// Package policy_engine enforces compliance and safety policy on every
// model-generated reply before it reaches a user: output schema, sensitive
// data redaction, resource-link allow-listing, and the escalation decision.
//
// Model output is treated as untrusted, semi-structured text. The recovery
// parser (parser.go) extracts a candidate object from it; the Validator then
// applies the policy steps in a fixed order and emits a ValidatedResponse.
package policy_engine

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/datatypes"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/policy_engine/enforcement"
)

// RedactionNotice replaces an answer that matched a sensitive-data pattern.
// The original content is discarded entirely.
const RedactionNotice = "I'm sorry, but my reply contained information that " +
	"cannot be shared here. A human support agent will follow up with you shortly."

// Validator applies the policy steps to a parse-recovered candidate. It is
// immutable after construction and safe for concurrent use.
type Validator struct {
	patterns            []SensitivePattern
	allowedDomains      []string
	confidenceThreshold float64
}

// NewValidator builds a Validator from the policy rules embedded in the
// binary. Returns an error if the embedded YAML is malformed or contains an
// invalid regex.
func NewValidator() (*Validator, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(enforcement.SensitiveDataPatterns, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded policy file: %w", err)
	}
	if err := file.CompileRegexes(); err != nil {
		return nil, fmt.Errorf("failed to compile a policy regex: %w", err)
	}
	return NewValidatorWithPolicy(&file), nil
}

// NewValidatorWithPolicy builds a Validator from an already-compiled policy
// file. The caller must have called CompileRegexes.
func NewValidatorWithPolicy(file *PolicyFile) *Validator {
	return &Validator{
		patterns:            file.SensitivePatterns,
		allowedDomains:      file.AllowedDomains,
		confidenceThreshold: ConfidenceEscalationThreshold,
	}
}

// SetAllowedDomains replaces the domain allow-list. Only for use during
// process startup, before the validator is shared; the config surface is
// immutable once the service is serving.
func (v *Validator) SetAllowedDomains(domains []string) {
	v.allowedDomains = domains
}

// Validate applies the policy steps to a candidate, in fixed order:
//
//  1. Schema: answer must be non-empty text, else ErrInvalidOutput.
//  2. Coercion: steps/resources default to empty; non-text steps dropped.
//  3. Confidence: numeric coercion, default 0.0, clamped to [0, 1].
//  4. Sensitive scan of the answer, ordered, first match short-circuits
//     with the fixed redaction response. Only the answer text is scanned;
//     steps and resources are not (known policy gap, kept deliberately).
//  5. Resource filtering against the domain allow-list.
//  6. Escalation forced when confidence is below the threshold.
//
// Step 1 is the only hard failure; every later step degrades gracefully so
// cosmetic deficiencies never surface a raw error to the user.
func (v *Validator) Validate(candidate Candidate) (datatypes.ValidatedResponse, error) {
	answer, ok := candidate["answer"].(string)
	answer = strings.TrimSpace(answer)
	if !ok || answer == "" {
		return datatypes.ValidatedResponse{},
			fmt.Errorf("candidate answer is missing or empty: %w", ErrInvalidOutput)
	}

	tags := newTagSet()
	if rawTags, ok := candidate["tags"].([]any); ok {
		for _, t := range rawTags {
			if s, ok := t.(string); ok {
				tags.add(s)
			}
		}
	}

	steps := coerceStringSlice(candidate["steps"])
	confidence := coerceConfidence(candidate["confidence"])
	escalation, _ := candidate["escalation"].(bool)

	for _, pattern := range v.patterns {
		if pattern.compiled.MatchString(answer) {
			slog.Warn("Redacting reply with sensitive content", "pattern", pattern.Id)
			tags.add(TagRedacted)
			return datatypes.ValidatedResponse{
				Answer:     RedactionNotice,
				Steps:      []string{},
				Resources:  []string{},
				Confidence: 0.0,
				Escalation: true,
				Tags:       tags.list(),
			}, nil
		}
	}

	resources := []string{}
	if rawResources, ok := candidate["resources"].([]any); ok {
		for _, r := range rawResources {
			url, ok := r.(string)
			if !ok {
				tags.add(TagInvalidResource)
				continue
			}
			if v.domainAllowed(url) {
				resources = append(resources, url)
			} else {
				tags.add(TagRemovedLink)
			}
		}
	}

	if confidence < v.confidenceThreshold {
		escalation = true
		tags.add(TagLowConfidence)
	}

	return datatypes.ValidatedResponse{
		Answer:     answer,
		Steps:      steps,
		Resources:  resources,
		Confidence: confidence,
		Escalation: escalation,
		Tags:       tags.list(),
	}, nil
}

// domainAllowed reports whether the URL text contains one of the configured
// allowed-domain substrings.
func (v *Validator) domainAllowed(url string) bool {
	for _, domain := range v.allowedDomains {
		if strings.Contains(url, domain) {
			return true
		}
	}
	return false
}

// coerceStringSlice keeps only the text elements of a decoded JSON sequence.
// Non-sequence input and non-text entries are dropped silently.
func coerceStringSlice(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// coerceConfidence converts a decoded JSON value to a confidence in
// [0.0, 1.0]. Absent or non-numeric values become 0.0.
func coerceConfidence(raw any) float64 {
	var value float64
	switch n := raw.(type) {
	case float64:
		value = n
	case int:
		value = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0.0
		}
		value = parsed
	default:
		return 0.0
	}
	if value < 0.0 {
		return 0.0
	}
	if value > 1.0 {
		return 1.0
	}
	return value
}
