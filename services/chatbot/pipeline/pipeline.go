// Package pipeline orchestrates the message pipeline: persist the user turn,
// assemble the context window, invoke the model, recover and validate the
// reply, render it, and persist the assistant turn.
//
// Each inbound message is one synchronous, sequential transaction. Sessions
// are independent and may run concurrently; the only shared state is the
// read-only configuration and the externally concurrency-safe store and
// model endpoints. All collaborators are injected, never ambient.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/conversation"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/datatypes"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/observability"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/render"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/llm"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/policy_engine"
)

var tracer = otel.Tracer("chatbot.pipeline")

// FallbackNotice is the generic reply delivered when any pipeline stage
// fails after the user turn is stored. Raw error detail is logged only,
// never delivered.
const FallbackNotice = "I'm sorry, I wasn't able to process your request. " +
	"A human support agent will assist you shortly."

// DefaultSystemPrompt instructs the model to reply with the structured JSON
// contract the policy engine enforces.
const DefaultSystemPrompt = `You are a technical support assistant. Respond ONLY with a single JSON object, no surrounding prose, using exactly these fields:
{"answer": string, "steps": [string], "resources": [string], "confidence": number, "escalation": boolean, "tags": [string]}
"answer" is the direct reply to the user. "steps" lists concrete actions in order, or is empty. "resources" lists fully-qualified documentation URLs, or is empty. "confidence" is your self-assessed reliability between 0.0 and 1.0. Set "escalation" to true when the issue needs a human agent. Never include personal, account, or network identifiers in any field.`

// Config is the immutable per-process pipeline configuration. Initialized
// once at startup; read-only thereafter.
type Config struct {
	SystemPrompt    string
	MaxHistoryTurns int
	MaxOutputTokens int
	Temperature     float32
}

// DefaultConfig returns the production defaults: a bounded ten-turn history
// window and a low, deterministic-leaning temperature to minimize variance
// in policy compliance.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:    DefaultSystemPrompt,
		MaxHistoryTurns: 10,
		MaxOutputTokens: 512,
		Temperature:     0.2,
	}
}

// Reply is the outcome of processing one user message: the rendered text to
// deliver plus the validated response it was rendered from.
type Reply struct {
	Text     string
	Response datatypes.ValidatedResponse
}

// Pipeline processes inbound user messages. Construct with New; safe for
// concurrent use across sessions.
type Pipeline struct {
	store     conversation.Store
	llmClient llm.LLMClient
	validator *policy_engine.Validator
	cfg       Config
	metrics   *observability.PipelineMetrics
	now       func() int64
}

// New builds a Pipeline. metrics may be nil to disable instrumentation.
func New(store conversation.Store, llmClient llm.LLMClient,
	validator *policy_engine.Validator, cfg Config,
	metrics *observability.PipelineMetrics) *Pipeline {

	return &Pipeline{
		store:     store,
		llmClient: llmClient,
		validator: validator,
		cfg:       cfg,
		metrics:   metrics,
		now:       func() int64 { return time.Now().Unix() },
	}
}

// Process runs the full transaction for one inbound user message and always
// returns a deliverable reply. Every error after the user turn is stored is
// converted here into the fixed fallback reply, tagged INVALID_OUTPUT when
// the model output was unrecoverable or failed validation and
// PROCESSING_ERROR otherwise. No raw error detail ever reaches the returned
// text.
func (p *Pipeline) Process(ctx context.Context, sessionID, userText string) Reply {
	ctx, span := tracer.Start(ctx, "pipeline.Process")
	defer span.End()

	userTurn := datatypes.ConversationTurn{
		SessionID: sessionID,
		Timestamp: p.now(),
		Sender:    datatypes.SenderUser,
		Message:   userText,
	}
	if err := p.store.Append(ctx, userTurn); err != nil {
		slog.Error("Failed to persist user turn", "sessionID", sessionID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return p.fallback(ctx, sessionID, err)
	}

	resp, err := p.run(ctx, sessionID, userText)
	if err != nil {
		slog.Error("Message pipeline failed", "sessionID", sessionID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return p.fallback(ctx, sessionID, err)
	}

	text := render.Render(resp)
	p.persistAssistantTurn(ctx, sessionID, text)
	p.observe(resp, outcomeFor(&resp))
	return Reply{Text: text, Response: resp}
}

// run executes the fallible stages: context assembly, model invocation,
// recovery parsing, and policy validation.
func (p *Pipeline) run(ctx context.Context, sessionID, userText string) (datatypes.ValidatedResponse, error) {
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()

	// The just-persisted user turn is the newest entry in the store; fetch
	// one extra and drop it so the new message enters the prompt exactly
	// once, as the final user-role entry.
	window, err := conversation.BuildWindow(ctx, p.store, sessionID, p.cfg.MaxHistoryTurns+1)
	if err != nil {
		return datatypes.ValidatedResponse{}, err
	}
	if n := len(window); n > 0 && window[n-1].Role == datatypes.SenderUser && window[n-1].Content == userText {
		window = window[:n-1]
	}

	messages := make([]datatypes.Message, 0, len(window)+2)
	messages = append(messages, datatypes.Message{Role: "system", Content: p.cfg.SystemPrompt})
	messages = append(messages, window...)
	messages = append(messages, datatypes.Message{Role: datatypes.SenderUser, Content: userText})

	temperature := p.cfg.Temperature
	maxTokens := p.cfg.MaxOutputTokens
	params := llm.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	start := time.Now()
	raw, err := p.llmClient.Chat(ctx, messages, params)
	if p.metrics != nil {
		p.metrics.ModelLatencySeconds.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return datatypes.ValidatedResponse{}, fmt.Errorf("model invocation failed: %w", err)
	}

	candidate, err := policy_engine.ParseCandidate(raw)
	if err != nil {
		return datatypes.ValidatedResponse{}, err
	}

	return p.validator.Validate(candidate)
}

// fallback builds, persists, and accounts the fixed safe reply.
func (p *Pipeline) fallback(ctx context.Context, sessionID string, cause error) Reply {
	tag := policy_engine.TagProcessingError
	if errors.Is(cause, policy_engine.ErrInvalidOutput) {
		tag = policy_engine.TagInvalidOutput
	}

	resp := datatypes.ValidatedResponse{
		Answer:     FallbackNotice,
		Steps:      []string{},
		Resources:  []string{},
		Confidence: 0.0,
		Escalation: true,
		Tags:       []string{tag},
	}
	text := render.Render(resp)
	p.persistAssistantTurn(ctx, sessionID, text)
	p.observe(resp, observability.OutcomeFallback)
	return Reply{Text: text, Response: resp}
}

// persistAssistantTurn appends the delivered reply to the store. A failed
// append is logged but does not change the reply: the response has already
// passed validation and withholding it for an audit-write failure would
// surface an internal error cosmetically.
func (p *Pipeline) persistAssistantTurn(ctx context.Context, sessionID, text string) {
	turn := datatypes.ConversationTurn{
		SessionID: sessionID,
		Timestamp: p.now(),
		Sender:    datatypes.SenderAssistant,
		Message:   text,
	}
	if err := p.store.Append(ctx, turn); err != nil {
		slog.Error("Failed to persist assistant turn", "sessionID", sessionID, "error", err)
	}
}

func (p *Pipeline) observe(resp datatypes.ValidatedResponse, outcome string) {
	if p.metrics == nil {
		return
	}
	p.metrics.MessagesTotal.WithLabelValues(outcome).Inc()
	if resp.Escalation {
		p.metrics.EscalationsTotal.Inc()
	}
	if resp.HasTag(policy_engine.TagRemovedLink) {
		p.metrics.RemovedLinksTotal.Inc()
	}
}

func outcomeFor(resp *datatypes.ValidatedResponse) string {
	if resp.HasTag(policy_engine.TagRedacted) {
		return observability.OutcomeRedacted
	}
	return observability.OutcomeOK
}
