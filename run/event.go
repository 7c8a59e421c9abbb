//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package run

import (
	"time"

	"github.com/google/uuid"

	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/tool"
)

// EventType enumerates the externally observable run events. Dispatch is an
// exhaustive switch on this closed set; the wire string exists only at the
// serialization boundary.
type EventType string

// Run event kinds.
//
// Within one run, events appear in the order: model_request_started, then an
// optional reasoning block (started, steps, completed), then interleaved
// content and tool call events, then model_request_completed.
const (
	// EventModelRequestStarted marks the start of a model request.
	EventModelRequestStarted EventType = "model_request_started"
	// EventModelRequestCompleted marks the end of a model request.
	EventModelRequestCompleted EventType = "model_request_completed"
	// EventReasoningStarted marks the start of the reasoning phase.
	EventReasoningStarted EventType = "reasoning_started"
	// EventReasoningContentDelta carries a reasoning text delta.
	EventReasoningContentDelta EventType = "reasoning_content_delta"
	// EventReasoningStep carries one synthesized reasoning step.
	EventReasoningStep EventType = "reasoning_step"
	// EventReasoningCompleted marks the end of the reasoning phase.
	EventReasoningCompleted EventType = "reasoning_completed"
	// EventToolCallStarted marks the start of one tool execution.
	EventToolCallStarted EventType = "tool_call_started"
	// EventToolCallCompleted marks one completed tool execution.
	EventToolCallCompleted EventType = "tool_call_completed"
	// EventToolCallError marks a tool execution that signalled an error.
	EventToolCallError EventType = "tool_call_error"
	// EventToolCallPaused marks tool executions awaiting human approval.
	EventToolCallPaused EventType = "tool_call_paused"
	// EventRunOutputContent carries a content or media delta.
	EventRunOutputContent EventType = "run_output_content"
	// EventCompressionStarted marks the start of tool-result compression.
	EventCompressionStarted EventType = "compression_started"
	// EventCompressionCompleted carries compression size stats.
	EventCompressionCompleted EventType = "compression_completed"
	// EventCustom carries caller-defined payloads.
	EventCustom EventType = "custom"
)

// Event is an externally observable, typed notification derived from run
// progress. Every event carries linkage back to the run that produced it.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`
	// Type discriminates the payload.
	Type EventType `json:"type"`
	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Linkage back to the producing run.
	RunID     string `json:"run_id"`
	SessionID string `json:"session_id,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	AgentName string `json:"agent_name,omitempty"`

	// Content is the text delta for EventRunOutputContent.
	Content string `json:"content,omitempty"`
	// ReasoningContent is the delta for EventReasoningContentDelta.
	ReasoningContent string `json:"reasoning_content,omitempty"`
	// Step is the payload for EventReasoningStep.
	Step *ReasoningStep `json:"step,omitempty"`
	// Tool is the payload for tool call events.
	Tool *tool.Execution `json:"tool,omitempty"`
	// Image is a media delta attached to EventRunOutputContent.
	Image *model.Image `json:"image,omitempty"`
	// Audio is a media delta attached to EventRunOutputContent.
	Audio *model.AudioChunk `json:"audio,omitempty"`
	// Metrics is the payload for EventModelRequestCompleted.
	Metrics *model.Metrics `json:"metrics,omitempty"`
	// Compression is the payload for compression events.
	Compression *model.CompressionStats `json:"compression,omitempty"`
	// Custom is the payload for EventCustom.
	Custom map[string]any `json:"custom,omitempty"`
}

// EventOption configures an event at construction.
type EventOption func(*Event)

// WithContent attaches a content delta.
func WithContent(content string) EventOption {
	return func(e *Event) { e.Content = content }
}

// WithReasoningContent attaches a reasoning delta.
func WithReasoningContent(delta string) EventOption {
	return func(e *Event) { e.ReasoningContent = delta }
}

// WithStep attaches a reasoning step.
func WithStep(step *ReasoningStep) EventOption {
	return func(e *Event) { e.Step = step }
}

// WithTool attaches a tool execution.
func WithTool(te *tool.Execution) EventOption {
	return func(e *Event) { e.Tool = te }
}

// WithImage attaches an image delta.
func WithImage(img *model.Image) EventOption {
	return func(e *Event) { e.Image = img }
}

// WithAudio attaches an audio delta.
func WithAudio(audio *model.AudioChunk) EventOption {
	return func(e *Event) { e.Audio = audio }
}

// WithMetrics attaches request metrics.
func WithMetrics(m *model.Metrics) EventOption {
	return func(e *Event) { e.Metrics = m }
}

// WithCompression attaches compression stats.
func WithCompression(stats *model.CompressionStats) EventOption {
	return func(e *Event) { e.Compression = stats }
}

// WithCustom attaches a custom payload.
func WithCustom(payload map[string]any) EventOption {
	return func(e *Event) { e.Custom = payload }
}

// NewEvent creates an event linked to the given record.
func NewEvent(rec *Record, typ EventType, opts ...EventOption) *Event {
	e := &Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Timestamp: time.Now(),
	}
	if rec != nil {
		e.RunID = rec.RunID
		e.SessionID = rec.SessionID
		e.AgentID = rec.AgentID
		e.AgentName = rec.AgentName
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
