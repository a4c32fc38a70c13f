// Package datatypes provides the data structures shared across the chatbot
// service: conversation turns, chat messages, and the validated response
// produced by the policy engine.
package datatypes

// Sender values for a ConversationTurn.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message is a single (role, content) entry in the prompt sequence sent to
// the model. Role is one of "system", "user", or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationTurn is one persisted message of a conversation, attributed to
// a sender and timestamped for ordering. Turns are append-only: they are
// never mutated or deleted by this service.
//
// Turns for a session are totally ordered by Timestamp; ties are broken by
// insertion order in the store.
type ConversationTurn struct {
	SessionID string `json:"session_id"`
	Timestamp int64  `json:"timestamp"` // unix seconds
	Sender    string `json:"sender"`
	Message   string `json:"message"`
}

// ValidatedResponse is the policy-checked, user-deliverable form of a model
// reply. Invariants after validation:
//
//   - Answer is non-empty.
//   - Confidence is in [0.0, 1.0].
//   - Resources contains only allow-listed URLs.
//   - Escalation is true whenever a hard policy condition tripped
//     (sensitive-content match, low confidence, unparseable output, or an
//     internal processing error).
//   - Tags is de-duplicated, preserving first-seen order.
type ValidatedResponse struct {
	Answer     string   `json:"answer"`
	Steps      []string `json:"steps"`
	Resources  []string `json:"resources"`
	Confidence float64  `json:"confidence"`
	Escalation bool     `json:"escalation"`
	Tags       []string `json:"tags"`
}

// HasTag reports whether the response carries the given tag.
func (r *ValidatedResponse) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
