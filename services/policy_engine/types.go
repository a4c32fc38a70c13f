package policy_engine

import (
	"fmt"
	"regexp"
)

// Tags accreted by the validator and the pipeline. The final tag set is
// de-duplicated preserving first-seen order.
const (
	TagRedacted        = "REDACTED"
	TagRemovedLink     = "REMOVED_LINK"
	TagInvalidResource = "INVALID_RESOURCE"
	TagLowConfidence   = "LOW_CONFIDENCE"
	TagInvalidOutput   = "INVALID_OUTPUT"
	TagProcessingError = "PROCESSING_ERROR"
)

// ConfidenceEscalationThreshold is the confidence below which a reply is
// always escalated to a human agent.
const ConfidenceEscalationThreshold = 0.2

// PolicyFile is the embedded YAML policy document: the ordered
// sensitive-data pattern list and the resource-link domain allow-list.
type PolicyFile struct {
	SensitivePatterns []SensitivePattern `yaml:"sensitive_patterns"`
	AllowedDomains    []string           `yaml:"allowed_domains"`
}

// SensitivePattern is one matcher in the ordered sensitive-data scan.
type SensitivePattern struct {
	Id          string `yaml:"id"`
	Description string `yaml:"description"`
	Regex       string `yaml:"regex"`

	compiled *regexp.Regexp `yaml:"-"`
}

// CompileRegexes compiles every pattern in file order. The scan order is the
// file order; there is no priority re-sort because first-match-wins
// semantics are part of the policy contract.
func (p *PolicyFile) CompileRegexes() error {
	for i := range p.SensitivePatterns {
		pattern := &p.SensitivePatterns[i]
		re, err := regexp.Compile(pattern.Regex)
		if err != nil {
			return fmt.Errorf("failed to compile the regex %s: %w", pattern.Regex, err)
		}
		pattern.compiled = re
	}
	return nil
}

// tagSet accumulates tags, de-duplicating while preserving first-seen order.
// Tag order is observable (asserted by tests and shown in the UI), so this
// is an ordered sequence with a membership check rather than a plain set.
type tagSet struct {
	order []string
	seen  map[string]struct{}
}

func newTagSet() *tagSet {
	return &tagSet{seen: make(map[string]struct{})}
}

func (s *tagSet) add(tag string) {
	if _, ok := s.seen[tag]; ok {
		return
	}
	s.seen[tag] = struct{}{}
	s.order = append(s.order, tag)
}

// list returns the accumulated tags in first-seen order. Never nil.
func (s *tagSet) list() []string {
	if s.order == nil {
		return []string{}
	}
	return s.order
}
