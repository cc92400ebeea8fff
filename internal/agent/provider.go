package agent

import (
	"context"
	"encoding/json"

	"github.com/agentcore/agentcore/pkg/models"
)

// LLMProvider is the out-of-core collaborator that encodes a
// CompletionRequest into a provider-specific wire request and decodes the
// response into a StreamEvent sequence. The core never serializes the wire
// protocol itself (see spec Non-goals); it only consumes this interface.
type LLMProvider interface {
	// Complete issues one request and returns a lazy, finite,
	// non-restartable sequence of StreamEvents terminated by either a
	// StreamDone or a StreamError event.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error)
	Name() string
}

// CompletionRequest is built from (system prompt, conversation history, tool
// catalog) at the start of every model round (session_process step 2).
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []models.ConversationMessage
	Tools     []ToolSchema
	MaxTokens int
}

// ToolSchema is the catalog entry advertised to the provider for one
// registered tool.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// StreamEventKind distinguishes the events a provider emits while decoding
// a streaming response. Modeling the stream this way - rather than as a
// context object mutated by callbacks - keeps the turn loop a plain
// consumer of a channel instead of an implicit state machine (see
// DESIGN.md, "Generators / async iteration").
type StreamEventKind int

const (
	StreamTextChunk StreamEventKind = iota
	StreamToolCallStart
	StreamToolCallArgumentChunk
	StreamToolCallEnd
	StreamDone
	StreamError
)

// StreamEvent is one element of a provider's response sequence.
type StreamEvent struct {
	Kind StreamEventKind

	// Text holds the chunk for StreamTextChunk.
	Text string

	// ToolCallID and ToolName identify the call a Start/ArgumentChunk/End
	// event belongs to.
	ToolCallID string
	ToolName   string

	// ArgumentChunk holds a fragment of the tool call's raw argument JSON
	// for StreamToolCallArgumentChunk; the accumulated fragments form the
	// call's final Input once StreamToolCallEnd is observed.
	ArgumentChunk string

	// ContextExhausted is set on a StreamDone event when the provider
	// reports its context window is full; session_process surfaces this
	// as ContextExhausted rather than OK.
	ContextExhausted bool

	// Err holds the cause for a StreamError event.
	Err error
}
