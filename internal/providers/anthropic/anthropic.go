// Package anthropic implements agent.LLMProvider against the Anthropic
// Messages API. It is the one piece of the core that is allowed to know a
// wire format exists: everything upstream of Complete only ever sees
// agent.CompletionRequest and agent.StreamEvent.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/pkg/models"
)

// Provider implements agent.LLMProvider using the Anthropic SDK.
type Provider struct {
	client anthropic.Client

	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// Config configures a Provider. APIKey is required; everything else has a
// default.
type Config struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// New builds a Provider. MaxRetries defaults to 3, RetryDelay to 1s,
// DefaultModel to "claude-sonnet-4-20250514".
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client:       anthropic.NewClient(opts...),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name identifies this provider for routing and logging.
func (p *Provider) Name() string { return "anthropic" }

// Complete issues one request against the Messages API and translates its
// SSE stream into agent.StreamEvents. Creation errors (bad messages, bad
// tool schemas) are returned directly; everything past that point is
// delivered as a StreamError event so the caller always drains the
// returned channel to completion.
func (p *Provider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan agent.StreamEvent, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}
	tools, err := convertTools(req.Tools)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert tools: %w", err)
	}

	events := make(chan agent.StreamEvent, 16)
	go p.run(ctx, req, messages, tools, events)
	return events, nil
}

func (p *Provider) run(ctx context.Context, req *agent.CompletionRequest, messages []anthropic.MessageParam, tools []anthropic.ToolUnionParam, events chan<- agent.StreamEvent) {
	defer close(events)

	model := p.model(req.Model)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(p.maxTokens(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	// Retries only cover a stream that fails before emitting a single SSE
	// event (connection refused, 5xx on the initial response, and so on):
	// once any event has reached the caller there is no way to re-run the
	// request without risking duplicate output, so a mid-stream failure is
	// surfaced as a StreamError instead.
	for attempt := 0; ; attempt++ {
		stream := p.client.Messages.NewStreaming(ctx, params)
		emitted, err := processStream(stream, events)
		if err == nil || emitted {
			return
		}
		if !isRetryable(err) || attempt >= p.maxRetries {
			events <- agent.StreamEvent{Kind: agent.StreamError, Err: fmt.Errorf("anthropic: %w", err)}
			return
		}

		backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			events <- agent.StreamEvent{Kind: agent.StreamError, Err: ctx.Err()}
			return
		case <-time.After(backoff):
		}
	}
}

// processStream drains one SSE stream, re-emitting it as StreamEvents. It
// mirrors the tool-call accumulation the Anthropic wire protocol requires:
// a tool_use content block arrives as a start event naming its id/name,
// followed by zero or more input_json_delta chunks, then a stop event.
// It reports whether any event was emitted, so the caller can decide
// whether a failure is safe to retry.
func processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], events chan<- agent.StreamEvent) (emitted bool, err error) {
	var openToolCallID string

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				openToolCallID = toolUse.ID
				events <- agent.StreamEvent{
					Kind:       agent.StreamToolCallStart,
					ToolCallID: toolUse.ID,
					ToolName:   toolUse.Name,
				}
				emitted = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					events <- agent.StreamEvent{Kind: agent.StreamTextChunk, Text: delta.Text}
					emitted = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" && openToolCallID != "" {
					events <- agent.StreamEvent{
						Kind:          agent.StreamToolCallArgumentChunk,
						ToolCallID:    openToolCallID,
						ArgumentChunk: delta.PartialJSON,
					}
					emitted = true
				}
			}

		case "content_block_stop":
			if openToolCallID != "" {
				events <- agent.StreamEvent{Kind: agent.StreamToolCallEnd, ToolCallID: openToolCallID}
				openToolCallID = ""
				emitted = true
			}

		case "message_delta":
			if sr := event.AsMessageDelta().Delta.StopReason; sr == "max_tokens" {
				events <- agent.StreamEvent{Kind: agent.StreamDone, ContextExhausted: true}
				return true, nil
			}

		case "message_stop":
			events <- agent.StreamEvent{Kind: agent.StreamDone}
			return true, nil

		case "error":
			return emitted, errors.New("anthropic: stream error event")
		}
	}

	if err := stream.Err(); err != nil {
		return emitted, err
	}
	events <- agent.StreamEvent{Kind: agent.StreamDone}
	return true, nil
}

// convertMessages translates conversation history into Anthropic message
// params. System-role messages are dropped; the session carries the system
// prompt separately (CompletionRequest.System).
func convertMessages(messages []models.ConversationMessage) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, result := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(result.ToolCallID, result.Content, result.IsError))
		}
		for _, call := range msg.ToolCalls {
			var input map[string]any
			if len(call.Input) > 0 {
				if err := json.Unmarshal(call.Input, &input); err != nil {
					return nil, fmt.Errorf("tool call %s: invalid input: %w", call.ID, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			// User and tool-result messages both surface as a user turn in
			// the Anthropic wire format.
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}

	return out, nil
}

// convertTools translates the tool catalog into Anthropic tool params.
func convertTools(tools []agent.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	var out []anthropic.ToolUnionParam

	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("tool %s: invalid schema: %w", tool.Name, err)
		}

		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("tool %s: missing tool definition", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		out = append(out, param)
	}

	return out, nil
}

func (p *Provider) model(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}

func (p *Provider) maxTokens(requested int) int {
	if requested <= 0 {
		return 4096
	}
	return requested
}

// isRetryable classifies transient failures (rate limits, server errors,
// timeouts, connection resets) as retryable; everything else (bad auth,
// malformed requests) is not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 408, 409, 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}

	msg := err.Error()
	for _, substr := range []string{
		"rate_limit", "429", "too many requests",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}
