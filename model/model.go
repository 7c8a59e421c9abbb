//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package model defines the model abstraction and the uniform response-event
// vocabulary consumed by the streaming pipeline.
package model

import (
	"context"
	"time"

	"github.com/ensemble-ai/ensemble/tool"
)

// Role represents the role of a message author.
type Role string

// Role constants for message authors.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Message represents a single message in a conversation.
type Message struct {
	// Role is the role of the message author.
	Role Role `json:"role"`
	// Content is the message content.
	Content string `json:"content,omitempty"`
	// ReasoningContent is provider-surfaced reasoning text attached to the message.
	ReasoningContent string `json:"reasoning_content,omitempty"`
	// ToolCalls is the optional tool calls requested by an assistant message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID is the ID of the tool call a tool message responds to.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName is the name of the tool a tool message responds to.
	ToolName string `json:"tool_name,omitempty"`
	// OmitFromMemory excludes the message from the persisted conversation history.
	OmitFromMemory bool `json:"omit_from_memory,omitempty"`
	// FromHistory marks messages replayed from a previous run. Their metrics
	// are excluded from run metric summation.
	FromHistory bool `json:"from_history,omitempty"`
	// Metrics holds the token usage attributed to this message.
	Metrics *Metrics `json:"metrics,omitempty"`
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a new tool message.
func NewToolMessage(toolCallID, toolName, content string) Message {
	return Message{
		Role:       RoleTool,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Content:    content,
	}
}

// ToolCall represents a call to a tool requested by the model.
type ToolCall struct {
	// ID is the provider-assigned identifier of the tool call.
	ID string `json:"id"`
	// Name is the name of the tool to call.
	Name string `json:"name"`
	// Arguments is the JSON-encoded call arguments.
	Arguments []byte `json:"arguments,omitempty"`
}

// Metrics holds token and time counters for a message or a run.
//
// Token counts accumulate additively. The duration fields are wall-clock
// values set by the pipeline, not derivable from message metrics, and must
// survive metric recomputation.
type Metrics struct {
	// InputTokens is the number of prompt tokens.
	InputTokens int `json:"input_tokens,omitempty"`
	// OutputTokens is the number of completion tokens.
	OutputTokens int `json:"output_tokens,omitempty"`
	// TotalTokens is the total token count.
	TotalTokens int `json:"total_tokens,omitempty"`
	// Duration is the accumulated wall-clock duration of the run.
	Duration time.Duration `json:"duration,omitempty"`
	// TimeToFirstToken is the duration from request start to the first
	// meaningful token.
	TimeToFirstToken time.Duration `json:"time_to_first_token,omitempty"`
	// ReasoningDuration is the accumulated duration of reasoning phases,
	// including reasoning-style tool executions.
	ReasoningDuration time.Duration `json:"reasoning_duration,omitempty"`
}

// Add accumulates token counts from other into m. Duration fields are not
// touched; they belong to the pipeline, not to per-message accounting.
func (m *Metrics) Add(other *Metrics) {
	if other == nil {
		return
	}
	m.InputTokens += other.InputTokens
	m.OutputTokens += other.OutputTokens
	m.TotalTokens += other.TotalTokens
}

// ResponseFormat hints the desired shape of the final content.
type ResponseFormat struct {
	// Name is the schema name, used as the content type tag for parsed output.
	Name string `json:"name,omitempty"`
	// Schema is the JSON schema the final content should conform to.
	Schema map[string]any `json:"schema,omitempty"`
	// AsMap requests the parsed content as a plain mapping rather than a
	// named schema value.
	AsMap bool `json:"as_map,omitempty"`
}

// Request is the request to the model.
type Request struct {
	// Messages is the conversation history.
	Messages []Message `json:"messages"`
	// Tools is the set of tools available to the model, keyed by name.
	Tools map[string]tool.Tool `json:"-"`
	// Format is the optional structured-output hint.
	Format *ResponseFormat `json:"format,omitempty"`
}

// Response is the final, non-streamed response from the model.
type Response struct {
	// ID is the provider-assigned response identifier.
	ID string `json:"id"`
	// Content is the assistant text content.
	Content string `json:"content,omitempty"`
	// ReasoningContent is the assistant reasoning text.
	ReasoningContent string `json:"reasoning_content,omitempty"`
	// ToolCalls is the tool calls requested by the model.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// Audio is the audio output, if any.
	Audio *AudioChunk `json:"audio,omitempty"`
	// Citations is the citations attached to the response.
	Citations []Citation `json:"citations,omitempty"`
	// Metrics holds the token usage of the response.
	Metrics *Metrics `json:"metrics,omitempty"`
}

// Info identifies a model for telemetry.
type Info struct {
	// ID is the model identifier, e.g. "gpt-4o".
	ID string
	// Provider is the provider name, e.g. "openai".
	Provider string
	// NativeStructuredOutput reports whether the provider enforces a
	// requested output schema itself. When false the pipeline buffers the
	// streamed text and parses it against the schema at stream end.
	NativeStructuredOutput bool
}

// Model is the provider black box consumed by the streaming pipeline.
//
// Both variants yield events in the same order for the same input. Provider
// errors are not retried here; they propagate to the caller, which owns
// retry policy.
type Model interface {
	// Info returns identifying information for telemetry.
	Info() Info

	// Respond performs a blocking request and returns the final response.
	Respond(ctx context.Context, req *Request) (*Response, error)

	// RespondStream performs a streaming request. The returned channel is a
	// lazy, finite, non-restartable sequence of response events, closed when
	// the stream ends.
	RespondStream(ctx context.Context, req *Request) (<-chan *ResponseEvent, error)
}
