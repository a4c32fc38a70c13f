package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/conversation"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/datatypes"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/llm"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/policy_engine"
)

// =============================================================================
// Test Setup
// =============================================================================

// MockLLMClient implements llm.LLMClient for pipeline testing.
type MockLLMClient struct {
	ChatResponse string
	ChatError    error

	GotMessages []datatypes.Message
	GotParams   llm.GenerationParams
}

func (m *MockLLMClient) Chat(ctx context.Context, messages []datatypes.Message, params llm.GenerationParams) (string, error) {
	m.GotMessages = messages
	m.GotParams = params
	return m.ChatResponse, m.ChatError
}

// readFailingStore delegates writes to a real store but fails reads.
type readFailingStore struct {
	*conversation.BadgerStore
}

func (s readFailingStore) RecentTurns(ctx context.Context, sessionID string, limit int) ([]datatypes.ConversationTurn, error) {
	return nil, errors.New("store read unavailable")
}

func newTestPipeline(t *testing.T, mock *MockLLMClient) (*Pipeline, *conversation.BadgerStore) {
	t.Helper()
	store, err := conversation.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	validator, err := policy_engine.NewValidator()
	require.NoError(t, err)

	return New(store, mock, validator, DefaultConfig(), nil), store
}

// =============================================================================
// End-to-end scenarios
// =============================================================================

func TestProcess_HappyPath(t *testing.T) {
	mock := &MockLLMClient{ChatResponse: `{
		"answer": "You can reset your password from the login page.",
		"steps": ["Click 'Forgot password' on the login screen."],
		"resources": ["https://support.example.com/password-reset"],
		"confidence": 0.95,
		"escalation": false
	}`}
	pipe, store := newTestPipeline(t, mock)
	ctx := context.Background()

	reply := pipe.Process(ctx, "s1", "How do I reset my password?")

	expected := "You can reset your password from the login page.\n\n" +
		"Steps:\n" +
		"- Click 'Forgot password' on the login screen.\n\n" +
		"Helpful resources:\n" +
		"https://support.example.com/password-reset"
	assert.Equal(t, expected, reply.Text)
	assert.False(t, reply.Response.Escalation)

	// Both the user turn and the reply are appended to the store.
	turns, err := store.RecentTurns(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, datatypes.SenderAssistant, turns[0].Sender)
	assert.Equal(t, expected, turns[0].Message)
	assert.Equal(t, datatypes.SenderUser, turns[1].Sender)
	assert.Equal(t, "How do I reset my password?", turns[1].Message)
}

func TestProcess_GarbageModelOutputFallsBack(t *testing.T) {
	mock := &MockLLMClient{ChatResponse: "sorry, no idea what you mean!!"}
	pipe, store := newTestPipeline(t, mock)
	ctx := context.Background()

	reply := pipe.Process(ctx, "s1", "help")

	assert.Equal(t, FallbackNotice, reply.Text)
	assert.True(t, reply.Response.Escalation)
	assert.Equal(t, []string{policy_engine.TagInvalidOutput}, reply.Response.Tags)

	// The fallback is still delivered as a normal assistant turn.
	turns, err := store.RecentTurns(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, FallbackNotice, turns[0].Message)
}

func TestProcess_ModelInvocationErrorFallsBack(t *testing.T) {
	mock := &MockLLMClient{ChatError: errors.New("upstream 500")}
	pipe, _ := newTestPipeline(t, mock)

	reply := pipe.Process(context.Background(), "s1", "help")

	assert.Equal(t, FallbackNotice, reply.Text)
	assert.True(t, reply.Response.Escalation)
	assert.Equal(t, []string{policy_engine.TagProcessingError}, reply.Response.Tags)
	// The raw upstream error never leaks into the delivered text.
	assert.NotContains(t, reply.Text, "upstream 500")
}

func TestProcess_EmptyAnswerFallsBack(t *testing.T) {
	mock := &MockLLMClient{ChatResponse: `{"answer": "   ", "confidence": 0.9}`}
	pipe, _ := newTestPipeline(t, mock)

	reply := pipe.Process(context.Background(), "s1", "help")

	assert.Equal(t, FallbackNotice, reply.Text)
	assert.Equal(t, []string{policy_engine.TagInvalidOutput}, reply.Response.Tags)
}

func TestProcess_HistoryFetchErrorFallsBack(t *testing.T) {
	mock := &MockLLMClient{ChatResponse: `{"answer": "unused", "confidence": 0.9}`}
	store, err := conversation.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	validator, err := policy_engine.NewValidator()
	require.NoError(t, err)

	pipe := New(readFailingStore{store}, mock, validator, DefaultConfig(), nil)
	reply := pipe.Process(context.Background(), "s1", "help")

	assert.Equal(t, FallbackNotice, reply.Text)
	assert.Equal(t, []string{policy_engine.TagProcessingError}, reply.Response.Tags)
	// The model is never invoked when context assembly fails.
	assert.Nil(t, mock.GotMessages)
}

func TestProcess_SensitiveAnswerIsRedacted(t *testing.T) {
	mock := &MockLLMClient{ChatResponse: `{
		"answer": "Your SSN on file is 123-45-6789.",
		"steps": ["do not share it"],
		"resources": ["https://example.com/privacy"],
		"confidence": 0.99
	}`}
	pipe, _ := newTestPipeline(t, mock)

	reply := pipe.Process(context.Background(), "s1", "what is my ssn?")

	assert.Equal(t, policy_engine.RedactionNotice, reply.Text)
	assert.True(t, reply.Response.Escalation)
	assert.Contains(t, reply.Response.Tags, policy_engine.TagRedacted)
	assert.Empty(t, reply.Response.Steps)
	assert.Empty(t, reply.Response.Resources)
}

func TestProcess_LowConfidenceEscalates(t *testing.T) {
	mock := &MockLLMClient{ChatResponse: `{"answer": "Maybe reinstall?", "confidence": 0.1}`}
	pipe, _ := newTestPipeline(t, mock)

	reply := pipe.Process(context.Background(), "s1", "weird crash")

	assert.True(t, reply.Response.Escalation)
	assert.Contains(t, reply.Response.Tags, policy_engine.TagLowConfidence)
}

// =============================================================================
// Prompt assembly
// =============================================================================

func TestProcess_PromptAssembly(t *testing.T) {
	mock := &MockLLMClient{ChatResponse: `{"answer": "ok", "confidence": 0.9}`}
	pipe, store := newTestPipeline(t, mock)
	ctx := context.Background()

	// Pre-seed earlier history.
	require.NoError(t, store.Append(ctx, datatypes.ConversationTurn{
		SessionID: "s1", Timestamp: 1000, Sender: datatypes.SenderUser, Message: "my app crashed",
	}))
	require.NoError(t, store.Append(ctx, datatypes.ConversationTurn{
		SessionID: "s1", Timestamp: 1001, Sender: datatypes.SenderAssistant, Message: "which version?",
	}))

	pipe.Process(ctx, "s1", "version 2.3")

	require.Len(t, mock.GotMessages, 4)
	assert.Equal(t, "system", mock.GotMessages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, mock.GotMessages[0].Content)
	assert.Equal(t, datatypes.Message{Role: "user", Content: "my app crashed"}, mock.GotMessages[1])
	assert.Equal(t, datatypes.Message{Role: "assistant", Content: "which version?"}, mock.GotMessages[2])
	// The new message appears exactly once, as the final user entry.
	assert.Equal(t, datatypes.Message{Role: "user", Content: "version 2.3"}, mock.GotMessages[3])

	require.NotNil(t, mock.GotParams.Temperature)
	assert.InDelta(t, 0.2, float64(*mock.GotParams.Temperature), 1e-6)
	require.NotNil(t, mock.GotParams.MaxTokens)
	assert.Equal(t, 512, *mock.GotParams.MaxTokens)
}

func TestProcess_WindowIsBounded(t *testing.T) {
	mock := &MockLLMClient{ChatResponse: `{"answer": "ok", "confidence": 0.9}`}
	pipe, store := newTestPipeline(t, mock)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, store.Append(ctx, datatypes.ConversationTurn{
			SessionID: "s1", Timestamp: int64(1000 + i), Sender: datatypes.SenderUser, Message: "old",
		}))
	}

	pipe.Process(ctx, "s1", "new question")

	// system + at most 10 history turns + the new user message.
	assert.LessOrEqual(t, len(mock.GotMessages), 12)
	assert.Equal(t, "new question", mock.GotMessages[len(mock.GotMessages)-1].Content)
}
