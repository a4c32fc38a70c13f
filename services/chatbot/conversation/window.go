package conversation

import (
	"context"
	"fmt"

	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/datatypes"
)

// BuildWindow fetches up to limit most-recent turns for the session and maps
// them to an oldest-first prompt sequence: sender "user" becomes role "user",
// sender "assistant" becomes role "assistant".
//
// The returned sequence is at most limit entries and chronologically
// ascending. A store failure is surfaced to the caller wrapped in
// ErrHistoryFetch; no retry happens here — the pipeline owns the decision to
// abort with a failure reply.
func BuildWindow(ctx context.Context, store Store, sessionID string, limit int) ([]datatypes.Message, error) {
	turns, err := store.RecentTurns(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("build context window: %w", err)
	}

	// The store returns newest-first; the model wants oldest-first.
	window := make([]datatypes.Message, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		role := datatypes.SenderUser
		if turns[i].Sender == datatypes.SenderAssistant {
			role = datatypes.SenderAssistant
		}
		window = append(window, datatypes.Message{Role: role, Content: turns[i].Message})
	}
	return window, nil
}
