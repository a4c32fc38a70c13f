package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// MaxMessageBodyBytes is the maximum size of a single user message body.
// Larger payloads are rejected before they reach the pipeline.
const MaxMessageBodyBytes = 32 * 1024 // 32KB

// Route discriminators recognized on the websocket wire.
const (
	RouteConnectionOpen  = "connection-open"
	RouteConnectionClose = "connection-close"
	RouteMessageSend     = "message-send"
)

// envelopeValidate is the shared validator for inbound envelopes.
var envelopeValidate = validator.New()

// MessagePayload carries the user's literal text for a message-send frame.
type MessagePayload struct {
	Body string `json:"body" validate:"max=32768"`
}

// InboundEnvelope is the wire contract consumed from the websocket client.
// Route selects the handling path; Payload.Body is only meaningful for
// message-send frames.
type InboundEnvelope struct {
	Route   string         `json:"route" validate:"required"`
	Payload MessagePayload `json:"payload"`
}

// Validate checks structural requirements on the envelope. An unknown Route
// value is not a validation error here; the gateway rejects unknown routes
// distinctly from malformed envelopes.
func (e *InboundEnvelope) Validate() error {
	return envelopeValidate.Struct(e)
}

// Outbound frame types pushed to the client.
const (
	FrameSessionCreated = "session_created"
	FrameReply          = "reply"
	FrameError          = "error"
)

// OutboundFrame is the wire contract produced for the websocket client. The
// frontend distinguishes frames by Type: session_created carries SessionID,
// reply carries the rendered Text plus the Escalation flag, error carries a
// short client-safe Error string.
type OutboundFrame struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	Text       string `json:"text,omitempty"`
	Escalation bool   `json:"escalation,omitempty"`
	Error      string `json:"error,omitempty"`
}
