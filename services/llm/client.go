package llm

import (
	"context"

	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/datatypes"
)

// GenerationParams bounds a single model invocation.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
//
// Chat sends the ordered message sequence (system prompt first, then the
// context window, then the new user message as the final user-role entry)
// and returns the raw model output. Implementations make exactly one
// invocation attempt per call; retries are the caller's decision.
type LLMClient interface {
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
}
