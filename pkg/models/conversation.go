// Package models holds the wire-level and persistence-level data types shared
// by the agent execution core: conversation messages, tool calls/results,
// sessions, work items, goals/actions, and sub-agents. Providers, stores and
// transports live outside this package and convert to/from these types at
// their boundary.
package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a ConversationMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ConversationMessage is one entry in a session's history. Every message
// carries an immutable timestamp. Raw holds the provider's original
// representation of the message when the provider requires exact
// round-tripping (e.g. Anthropic tool_use blocks) - the core never
// interprets Raw, it only preserves it.
type ConversationMessage struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Role        Role            `json:"role"`
	Content     string          `json:"content"`
	ToolCalls   []ToolCall      `json:"tool_calls,omitempty"`
	ToolResults []ToolResult    `json:"tool_results,omitempty"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Attachment is an image or file attached to a message.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Data     []byte `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// ToolCall is a single model-requested invocation inside an assistant
// message's tool batch. Input is the raw argument JSON exactly as emitted
// by the provider; C4 is responsible for parsing and validating it.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of dispatching a ToolCall. Every ToolCall in a
// batch must eventually produce exactly one ToolResult with a matching
// ToolCallID before the next model round-trip.
type ToolResult struct {
	ToolCallID   string `json:"tool_call_id"`
	Content      string `json:"content"`
	IsError      bool   `json:"is_error,omitempty"`
	ClearHistory bool   `json:"clear_history,omitempty"`
}

// ProviderConfig describes how a session talks to its LLM provider.
type ProviderConfig struct {
	Model string `yaml:"model" json:"model"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// MaxTokensField is the name the wire encoder gives the max-tokens
	// parameter in its request body (providers disagree on this); the core
	// never serializes the request itself, it only carries the name
	// through to the provider adapter.
	MaxTokensField string `yaml:"max_tokens_field" json:"max_tokens_field"`
	// MaxTokens is the numeric cap passed to CompletionRequest.MaxTokens.
	MaxTokens     int  `yaml:"max_tokens" json:"max_tokens"`
	ContextWindow int  `yaml:"context_window" json:"context_window"`
	Stream        bool `yaml:"stream" json:"stream"`
}

// SessionStatus tracks a Session's coarse lifecycle state.
type SessionStatus string

const (
	SessionCreated   SessionStatus = "created"
	SessionConfigured SessionStatus = "configured"
	SessionActive    SessionStatus = "active"
	SessionClosed    SessionStatus = "closed"
)

// Session identifies one process-local conversation. The heavyweight
// collaborators (tool registry, provider config, services bundle, turn
// executor) live on agent.Session in the internal/agent package; this type
// is the durable record a store persists and a supervisor/worker looks up.
type Session struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	Mode      string         `json:"mode"` // interactive, single-shot, background, worker, supervisor
	Status    SessionStatus  `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
