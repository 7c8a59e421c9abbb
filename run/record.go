//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package run defines the mutable run record and the externally observable
// run events derived from it.
package run

import (
	"time"

	"github.com/google/uuid"

	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/tool"
)

// ContentType tags the shape of Record.Content.
const (
	// ContentTypeText marks free-text content.
	ContentTypeText = "str"
	// ContentTypeMap marks content parsed into a plain mapping.
	ContentTypeMap = "dict"
)

// NextAction is the transition requested by a reasoning step.
type NextAction string

// Next action values.
const (
	// NextActionContinue continues reasoning.
	NextActionContinue NextAction = "continue"
	// NextActionValidate asks for validation of the current result.
	NextActionValidate NextAction = "validate"
	// NextActionFinalAnswer terminates reasoning with a final answer.
	NextActionFinalAnswer NextAction = "final_answer"
)

// ReasoningStep is one step of a multi-step reasoning loop.
type ReasoningStep struct {
	// Title is the step title.
	Title string `json:"title,omitempty"`
	// Reasoning is the free-text reasoning for the step.
	Reasoning string `json:"reasoning,omitempty"`
	// Action is the action the step proposes.
	Action string `json:"action,omitempty"`
	// Result is the observed result, for analysis steps.
	Result string `json:"result,omitempty"`
	// Confidence is the model's confidence in the step, 0..1.
	Confidence float64 `json:"confidence,omitempty"`
	// NextAction is the requested transition.
	NextAction NextAction `json:"next_action,omitempty"`
}

// Requirement is a pending human-approval requirement that pauses a run.
type Requirement struct {
	// ToolCallID references the tool execution awaiting approval.
	ToolCallID string `json:"tool_call_id"`
	// ToolName is the name of the tool awaiting approval.
	ToolName string `json:"tool_name"`
	// MemberName is set when the requirement bubbled up from a member run.
	MemberName string `json:"member_name,omitempty"`
	// Confirmed records the human decision. Nil means still pending.
	Confirmed *bool `json:"confirmed,omitempty"`
}

// Resolved reports whether the requirement has received its input.
func (r *Requirement) Resolved() bool {
	return r.Confirmed != nil
}

// Record is the mutable accumulator for one agent or team invocation.
//
// A record is exclusively owned by the run that created it; it is never
// shared across concurrent member tasks. Member records are merged into the
// parent one at a time as results are drained.
type Record struct {
	// RunID is the unique identifier of the run.
	RunID string `json:"run_id"`
	// ParentRunID is set when this run is nested inside a team run.
	ParentRunID string `json:"parent_run_id,omitempty"`
	// AgentID identifies the agent or team that owns the run.
	AgentID string `json:"agent_id,omitempty"`
	// AgentName is the display name of the owning agent or team.
	AgentName string `json:"agent_name,omitempty"`
	// SessionID is the session the run belongs to.
	SessionID string `json:"session_id,omitempty"`
	// UserID is the user on whose behalf the run executes.
	UserID string `json:"user_id,omitempty"`
	// Input is the task or message that started the run.
	Input string `json:"input,omitempty"`

	// Content is the accumulated output: free text or a parsed structured
	// value, tagged by ContentType.
	Content any `json:"content,omitempty"`
	// ContentType tags the shape of Content: "str", "dict" or a schema name.
	ContentType string `json:"content_type,omitempty"`

	// ReasoningContent is the accumulated free-text reasoning narrative.
	ReasoningContent string `json:"reasoning_content,omitempty"`
	// ReasoningSteps is the append-only ordered sequence of reasoning steps.
	ReasoningSteps []ReasoningStep `json:"reasoning_steps,omitempty"`

	// Tools is the ordered sequence of tool executions, keyed by ToolCallID.
	Tools []*tool.Execution `json:"tools,omitempty"`

	// Messages is the final conversation messages to persist for memory.
	Messages []model.Message `json:"messages,omitempty"`

	// Metrics accumulates token and time counters across messages.
	Metrics *model.Metrics `json:"metrics,omitempty"`

	// Requirements is the pending human-approval requirements.
	Requirements []Requirement `json:"requirements,omitempty"`

	// Citations accumulated from assistant response chunks.
	Citations []model.Citation `json:"citations,omitempty"`

	// Media accumulated across the run.
	Images []model.Image     `json:"images,omitempty"`
	Videos []model.Video     `json:"videos,omitempty"`
	Audio  *model.AudioChunk `json:"audio,omitempty"`
	Files  []model.File      `json:"files,omitempty"`

	// MemberRuns holds the runs of delegated members, attached as children.
	MemberRuns []*Record `json:"member_runs,omitempty"`

	// SessionState is the session state snapshot at run end. Team delegation
	// merges a member's snapshot back into the parent session.
	SessionState map[string]any `json:"session_state,omitempty"`

	// CreatedAt is when the run started.
	CreatedAt time.Time `json:"created_at"`

	// messages accumulated during the run before the final memory filter.
	pending []model.Message
}

// NewRecord creates a record with a generated run ID.
func NewRecord(agentID, agentName, sessionID string) *Record {
	return &Record{
		RunID:     uuid.New().String(),
		AgentID:   agentID,
		AgentName: agentName,
		SessionID: sessionID,
		CreatedAt: time.Now(),
	}
}

// IsPaused reports whether the run is suspended awaiting human input: at
// least one requirement is pending and no resolving input was supplied.
func (r *Record) IsPaused() bool {
	for i := range r.Requirements {
		if !r.Requirements[i].Resolved() {
			return true
		}
	}
	return false
}

// TextContent returns Content as a string when it is free text.
func (r *Record) TextContent() string {
	s, _ := r.Content.(string)
	return s
}

// AppendContent appends a text delta to free-text content.
func (r *Record) AppendContent(delta string) {
	r.Content = r.TextContent() + delta
	if r.ContentType == "" {
		r.ContentType = ContentTypeText
	}
}

// FindToolExecution returns the execution with the given tool call ID.
func (r *Record) FindToolExecution(toolCallID string) *tool.Execution {
	for _, te := range r.Tools {
		if te.ToolCallID == toolCallID {
			return te
		}
	}
	return nil
}

// AddToolExecution appends a new execution for a started tool call. When an
// execution with the same ToolCallID already exists, the existing entry is
// kept untouched so that a started/started replay never duplicates entries.
func (r *Record) AddToolExecution(te *tool.Execution) {
	if te == nil || r.FindToolExecution(te.ToolCallID) != nil {
		return
	}
	r.Tools = append(r.Tools, te)
}

// CompleteToolExecution overwrites the execution matching te.ToolCallID in
// place with the completed payload, preserving a previously set ChildRunID.
// When no started entry exists the completed payload is appended, keeping
// the tools list whole for out-of-order streams.
func (r *Record) CompleteToolExecution(te *tool.Execution) {
	if te == nil {
		return
	}
	existing := r.FindToolExecution(te.ToolCallID)
	if existing == nil {
		r.Tools = append(r.Tools, te)
		return
	}
	childRunID := existing.ChildRunID
	*existing = *te
	if existing.ChildRunID == "" {
		existing.ChildRunID = childRunID
	}
}

// AddRequirement records a pending human-approval requirement.
func (r *Record) AddRequirement(req Requirement) {
	r.Requirements = append(r.Requirements, req)
}

// AddMessage accumulates a conversation message produced during the run.
// The final Messages list is rebuilt from these at stream end.
func (r *Record) AddMessage(msg model.Message) {
	r.pending = append(r.pending, msg)
}

// PendingMessages returns the messages accumulated so far.
func (r *Record) PendingMessages() []model.Message {
	return r.pending
}

// SeedMessages resets the accumulated message list to the finalized Messages.
// Resuming a paused run re-seeds the record this way, whether it was restored
// from persistence (empty accumulator) or is still live in memory.
func (r *Record) SeedMessages() {
	r.pending = append(r.pending[:0], r.Messages...)
}

// Finalize rebuilds Messages as the subset of accumulated messages flagged
// for memory and recomputes Metrics by summing the metrics of every
// assistant message not replayed from history. Wall-clock fields already
// present on the record's metrics (Duration, TimeToFirstToken,
// ReasoningDuration) are preserved across the recomputation; they are set by
// the pipeline and cannot be derived from message metrics.
func (r *Record) Finalize() {
	r.Messages = r.Messages[:0]
	for _, msg := range r.pending {
		if msg.OmitFromMemory {
			continue
		}
		r.Messages = append(r.Messages, msg)
	}

	sum := &model.Metrics{}
	for i := range r.pending {
		msg := &r.pending[i]
		if msg.Role != model.RoleAssistant || msg.FromHistory {
			continue
		}
		sum.Add(msg.Metrics)
	}
	if r.Metrics != nil {
		sum.Duration = r.Metrics.Duration
		sum.TimeToFirstToken = r.Metrics.TimeToFirstToken
		sum.ReasoningDuration = r.Metrics.ReasoningDuration
	}
	r.Metrics = sum
}

// AccumulateAudio folds an audio fragment into the record's audio output.
// Transcript and binary content concatenate; scalar fields take the latest
// non-zero value. Base64 content decodes defensively: on decode failure the
// text is kept as raw UTF-8 bytes.
func (r *Record) AccumulateAudio(chunk *model.AudioChunk) {
	if chunk == nil {
		return
	}
	if r.Audio == nil {
		r.Audio = &model.AudioChunk{}
	}
	r.Audio.Transcript += chunk.Transcript
	r.Audio.Data = append(r.Audio.Data, decodeAudioContent(chunk)...)
	if chunk.ID != "" {
		r.Audio.ID = chunk.ID
	}
	if chunk.SampleRate != 0 {
		r.Audio.SampleRate = chunk.SampleRate
	}
	if chunk.Channels != 0 {
		r.Audio.Channels = chunk.Channels
	}
	if chunk.MimeType != "" {
		r.Audio.MimeType = chunk.MimeType
	}
	if chunk.ExpiresAt != 0 {
		r.Audio.ExpiresAt = chunk.ExpiresAt
	}
}

// Scrub removes large payloads from the record before persistence,
// according to the owning agent's storage flags.
func (r *Record) Scrub(storeMedia, storeToolResults, storeHistory bool) {
	if !storeMedia {
		r.Images = nil
		r.Videos = nil
		r.Audio = nil
		r.Files = nil
	}
	if !storeToolResults {
		for _, te := range r.Tools {
			te.Result = ""
		}
	}
	if !storeHistory {
		r.Messages = nil
	}
}
