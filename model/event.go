//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package model

import (
	"time"

	"github.com/ensemble-ai/ensemble/tool"
)

// ResponseEventType enumerates the kinds of events a model stream yields.
// The pipeline dispatches on this closed set with exhaustive switches; the
// wire string exists only for serialization.
type ResponseEventType string

// Response event kinds.
const (
	// ResponseEventRequestStarted marks the start of one model request.
	ResponseEventRequestStarted ResponseEventType = "model_request_started"
	// ResponseEventRequestCompleted marks the end of one model request and
	// carries token and latency counters.
	ResponseEventRequestCompleted ResponseEventType = "model_request_completed"
	// ResponseEventAssistantDelta carries an assistant response chunk: any
	// combination of text delta, reasoning delta, redacted reasoning,
	// citations, provider-opaque data, audio fragment or image attachment.
	ResponseEventAssistantDelta ResponseEventType = "assistant_response"
	// ResponseEventToolCallStarted marks the start of tool executions.
	ResponseEventToolCallStarted ResponseEventType = "tool_call_started"
	// ResponseEventToolCallCompleted marks completed tool executions.
	ResponseEventToolCallCompleted ResponseEventType = "tool_call_completed"
	// ResponseEventToolCallPaused marks tool executions awaiting human approval.
	ResponseEventToolCallPaused ResponseEventType = "tool_call_paused"
	// ResponseEventCompressionStarted marks the start of tool-result compression.
	ResponseEventCompressionStarted ResponseEventType = "compression_started"
	// ResponseEventCompressionCompleted carries before/after compression stats.
	ResponseEventCompressionCompleted ResponseEventType = "compression_completed"
)

// ResponseEvent is one typed delta in a model stream.
type ResponseEvent struct {
	// Type discriminates the event payload.
	Type ResponseEventType `json:"type"`
	// Timestamp is when the event was produced.
	Timestamp time.Time `json:"timestamp"`
	// Delta carries the assistant chunk for ResponseEventAssistantDelta.
	Delta *AssistantDelta `json:"delta,omitempty"`
	// ToolExecutions carries the executions for tool call events.
	ToolExecutions []*tool.Execution `json:"tool_executions,omitempty"`
	// Metrics carries the request counters for ResponseEventRequestCompleted.
	Metrics *Metrics `json:"metrics,omitempty"`
	// Response carries the provider's assembled final response on
	// ResponseEventRequestCompleted, including any requested tool calls.
	Response *Response `json:"response,omitempty"`
	// Compression carries the stats for compression events.
	Compression *CompressionStats `json:"compression,omitempty"`
	// Err carries a fatal pipeline error. An event with Err set is the last
	// event of its stream.
	Err error `json:"-"`
}

// AssistantDelta is one assistant response chunk.
type AssistantDelta struct {
	// Content is the text delta.
	Content string `json:"content,omitempty"`
	// ReasoningContent is the reasoning text delta.
	ReasoningContent string `json:"reasoning_content,omitempty"`
	// RedactedReasoning is the redacted reasoning delta.
	RedactedReasoning string `json:"redacted_reasoning,omitempty"`
	// Citations is citations attached to this chunk.
	Citations []Citation `json:"citations,omitempty"`
	// ProviderData is provider-opaque data carried through unchanged.
	ProviderData map[string]any `json:"provider_data,omitempty"`
	// Audio is an audio fragment.
	Audio *AudioChunk `json:"audio,omitempty"`
	// Image is an image attachment.
	Image *Image `json:"image,omitempty"`
}

// Citation references source material for a piece of content.
type Citation struct {
	// URL is the location of the cited source.
	URL string `json:"url,omitempty"`
	// Title is the title of the cited source.
	Title string `json:"title,omitempty"`
}

// AudioChunk is a fragment of audio output.
//
// Providers deliver audio content either as raw bytes (Data) or as base64
// text (DataBase64). The accumulator decodes base64 defensively: when the
// decode fails the text is kept as raw UTF-8 bytes rather than aborting.
type AudioChunk struct {
	// ID is the audio segment identifier.
	ID string `json:"id,omitempty"`
	// Data is raw audio bytes.
	Data []byte `json:"data,omitempty"`
	// DataBase64 is base64-encoded audio content.
	DataBase64 string `json:"data_base64,omitempty"`
	// Transcript is the transcript text for this fragment.
	Transcript string `json:"transcript,omitempty"`
	// SampleRate is the sample rate in Hz.
	SampleRate int `json:"sample_rate,omitempty"`
	// Channels is the channel count.
	Channels int `json:"channels,omitempty"`
	// MimeType is the audio MIME type.
	MimeType string `json:"mime_type,omitempty"`
	// ExpiresAt is the provider expiry timestamp, when given.
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// Image is an image attachment produced during a run.
type Image struct {
	// URL locates the image.
	URL string `json:"url,omitempty"`
	// Data is the raw image bytes, when delivered inline.
	Data []byte `json:"data,omitempty"`
	// MimeType is the image MIME type.
	MimeType string `json:"mime_type,omitempty"`
}

// Video is a video attachment produced during a run.
type Video struct {
	// URL locates the video.
	URL string `json:"url,omitempty"`
	// MimeType is the video MIME type.
	MimeType string `json:"mime_type,omitempty"`
}

// File is a file attachment produced during a run.
type File struct {
	// Name is the file name.
	Name string `json:"name,omitempty"`
	// URL locates the file.
	URL string `json:"url,omitempty"`
	// Data is the raw file bytes, when delivered inline.
	Data []byte `json:"data,omitempty"`
	// MimeType is the file MIME type.
	MimeType string `json:"mime_type,omitempty"`
}

// CompressionStats reports before/after sizes for one compressed tool result.
type CompressionStats struct {
	// ToolCallID identifies the compressed tool result.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// OriginalTokens is the token count before compression.
	OriginalTokens int `json:"original_tokens"`
	// CompressedTokens is the token count after compression.
	CompressedTokens int `json:"compressed_tokens"`
}

// NewRequestStartedEvent creates a model_request_started event.
func NewRequestStartedEvent() *ResponseEvent {
	return &ResponseEvent{Type: ResponseEventRequestStarted, Timestamp: time.Now()}
}

// NewRequestCompletedEvent creates a model_request_completed event carrying
// the assembled response and its counters.
func NewRequestCompletedEvent(resp *Response, metrics *Metrics) *ResponseEvent {
	return &ResponseEvent{
		Type:      ResponseEventRequestCompleted,
		Timestamp: time.Now(),
		Metrics:   metrics,
		Response:  resp,
	}
}

// NewAssistantDeltaEvent creates an assistant_response event.
func NewAssistantDeltaEvent(delta *AssistantDelta) *ResponseEvent {
	return &ResponseEvent{
		Type:      ResponseEventAssistantDelta,
		Timestamp: time.Now(),
		Delta:     delta,
	}
}

// NewToolCallEvent creates a tool call lifecycle event.
func NewToolCallEvent(typ ResponseEventType, execs ...*tool.Execution) *ResponseEvent {
	return &ResponseEvent{
		Type:           typ,
		Timestamp:      time.Now(),
		ToolExecutions: execs,
	}
}

// NewErrorEvent creates a stream-terminating error event.
func NewErrorEvent(err error) *ResponseEvent {
	return &ResponseEvent{
		Type:      ResponseEventRequestCompleted,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// NewCompressionEvent creates a compression lifecycle event.
func NewCompressionEvent(typ ResponseEventType, stats *CompressionStats) *ResponseEvent {
	return &ResponseEvent{
		Type:        typ,
		Timestamp:   time.Now(),
		Compression: stats,
	}
}
