//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package flow

import (
	"strings"
	"time"

	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/reasoning"
	"github.com/ensemble-ai/ensemble/run"
	"github.com/ensemble-ai/ensemble/tool"
)

// Assembler folds a model event stream into the run record, emitting the
// externally observable run events as it goes.
//
// Text deltas append to the record immediately and surface as content
// events; when structured output was requested from a provider that cannot
// enforce it natively, text is buffered instead and parsed once at stream
// end. Completed calls to reasoning-style tools keep the normal tool
// lifecycle and additionally synthesize reasoning steps, bracketed by a
// reasoning started/completed pair the first time such a tool fires.
type Assembler struct {
	rec       *run.Record
	format    *model.ResponseFormat
	buffering bool

	buffer  strings.Builder
	started time.Time

	// pendingCompleted holds the model_request_completed event while
	// buffering, so parsed content can precede it.
	pendingCompleted *run.Event
	reasoningOpen    bool
}

// NewAssembler creates an assembler for one run. nativeStructured reports
// whether the provider enforces the requested output schema itself; when it
// does not, streamed text is buffered and parsed at stream end.
func NewAssembler(rec *run.Record, format *model.ResponseFormat, nativeStructured bool) *Assembler {
	return &Assembler{
		rec:       rec,
		format:    format,
		buffering: format != nil && !nativeStructured,
		started:   time.Now(),
	}
}

// Fold applies one model event to the record. Events are delivered through
// emit, which may be nil when the caller did not request streaming.
func (a *Assembler) Fold(ev *model.ResponseEvent, emit func(*run.Event)) {
	if ev == nil {
		return
	}
	if emit == nil {
		emit = func(*run.Event) {}
	}

	if ev.Type != model.ResponseEventAssistantDelta {
		a.flushCompleted(emit)
	}

	switch ev.Type {
	case model.ResponseEventRequestStarted:
		a.endReasoning(emit)
		emit(run.NewEvent(a.rec, run.EventModelRequestStarted))
	case model.ResponseEventRequestCompleted:
		a.foldRequestCompleted(ev, emit)
	case model.ResponseEventAssistantDelta:
		a.foldDelta(ev.Delta, emit)
	case model.ResponseEventToolCallStarted:
		for _, exec := range ev.ToolExecutions {
			a.rec.AddToolExecution(exec)
			emit(run.NewEvent(a.rec, run.EventToolCallStarted, run.WithTool(exec)))
		}
	case model.ResponseEventToolCallCompleted:
		for _, exec := range ev.ToolExecutions {
			a.foldToolCompleted(exec, emit)
		}
	case model.ResponseEventToolCallPaused:
		for _, exec := range ev.ToolExecutions {
			a.rec.AddToolExecution(exec)
			a.rec.AddRequirement(run.Requirement{
				ToolCallID: exec.ToolCallID,
				ToolName:   exec.ToolName,
			})
			emit(run.NewEvent(a.rec, run.EventToolCallPaused, run.WithTool(exec)))
		}
	case model.ResponseEventCompressionStarted:
		emit(run.NewEvent(a.rec, run.EventCompressionStarted, run.WithCompression(ev.Compression)))
	case model.ResponseEventCompressionCompleted:
		emit(run.NewEvent(a.rec, run.EventCompressionCompleted, run.WithCompression(ev.Compression)))
	}
}

// Close finishes the stream: buffered structured output is parsed into the
// record, any held model_request_completed event follows the parsed content,
// the message list and metrics are finalized, and the run duration is
// accounted.
func (a *Assembler) Close(emit func(*run.Event)) {
	if emit == nil {
		emit = func(*run.Event) {}
	}
	a.endReasoning(emit)
	if a.buffering && a.buffer.Len() > 0 {
		text := a.buffer.String()
		content, contentType := parseStructured(text, a.format)
		a.rec.Content = content
		a.rec.ContentType = contentType
		emit(run.NewEvent(a.rec, run.EventRunOutputContent, run.WithContent(text)))
	}
	a.flushCompleted(emit)
	a.metrics().Duration += time.Since(a.started)
	a.rec.Finalize()
}

func (a *Assembler) foldRequestCompleted(ev *model.ResponseEvent, emit func(*run.Event)) {
	if ev.Err != nil {
		return
	}
	a.metrics().Add(ev.Metrics)
	if resp := ev.Response; resp != nil {
		a.rec.AddMessage(model.Message{
			Role:             model.RoleAssistant,
			Content:          resp.Content,
			ReasoningContent: resp.ReasoningContent,
			ToolCalls:        resp.ToolCalls,
			Metrics:          resp.Metrics,
		})
	}
	completed := run.NewEvent(a.rec, run.EventModelRequestCompleted, run.WithMetrics(ev.Metrics))
	if a.buffering {
		// The buffered text has not been flushed yet; the completion event
		// must follow every content event, so it is held back.
		a.pendingCompleted = completed
		return
	}
	emit(completed)
}

func (a *Assembler) flushCompleted(emit func(*run.Event)) {
	if a.pendingCompleted == nil {
		return
	}
	emit(a.pendingCompleted)
	a.pendingCompleted = nil
}

func (a *Assembler) foldDelta(delta *model.AssistantDelta, emit func(*run.Event)) {
	if delta == nil {
		return
	}

	if delta.Content != "" {
		a.markFirstToken()
		if a.buffering {
			a.buffer.WriteString(delta.Content)
		} else {
			a.rec.AppendContent(delta.Content)
			emit(run.NewEvent(a.rec, run.EventRunOutputContent, run.WithContent(delta.Content)))
		}
	}

	reasoningDelta := delta.ReasoningContent + delta.RedactedReasoning
	if reasoningDelta != "" {
		a.markFirstToken()
		a.rec.ReasoningContent += reasoningDelta
		emit(run.NewEvent(a.rec, run.EventReasoningContentDelta,
			run.WithReasoningContent(reasoningDelta)))
	}

	if len(delta.Citations) > 0 {
		a.rec.Citations = append(a.rec.Citations, delta.Citations...)
	}
	if delta.Audio != nil {
		a.rec.AccumulateAudio(delta.Audio)
		emit(run.NewEvent(a.rec, run.EventRunOutputContent, run.WithAudio(delta.Audio)))
	}
	if delta.Image != nil {
		a.rec.Images = append(a.rec.Images, *delta.Image)
		emit(run.NewEvent(a.rec, run.EventRunOutputContent, run.WithImage(delta.Image)))
	}
}

// foldToolCompleted merges a completed execution. Every tool keeps the full
// lifecycle: the record entry is overwritten in place, a completed event is
// emitted (plus an error event when the tool signaled one), and a tool
// message joins the conversation. Reasoning-style tools additionally
// synthesize a reasoning step and count toward reasoning time.
func (a *Assembler) foldToolCompleted(exec *tool.Execution, emit func(*run.Event)) {
	a.rec.CompleteToolExecution(exec)
	emit(run.NewEvent(a.rec, run.EventToolCallCompleted, run.WithTool(exec)))
	if exec.Error {
		emit(run.NewEvent(a.rec, run.EventToolCallError, run.WithTool(exec)))
	}
	a.rec.AddMessage(model.Message{
		Role:       model.RoleTool,
		ToolCallID: exec.ToolCallID,
		ToolName:   exec.ToolName,
		Content:    exec.Result,
	})

	if !reasoning.IsReasoningTool(exec.ToolName) {
		a.endReasoning(emit)
		return
	}

	a.beginReasoning(emit)
	if step, ok := reasoning.StepFromToolCall(exec.ToolName, exec.Arguments); ok {
		a.rec.ReasoningSteps = append(a.rec.ReasoningSteps, *step)
		a.rec.ReasoningContent += reasoning.RenderStep(step)
		emit(run.NewEvent(a.rec, run.EventReasoningStep, run.WithStep(step)))
	}
	a.metrics().ReasoningDuration += exec.Duration()
}

// beginReasoning opens the tool-triggered reasoning block on the first
// reasoning-tool completion.
func (a *Assembler) beginReasoning(emit func(*run.Event)) {
	if a.reasoningOpen {
		return
	}
	a.reasoningOpen = true
	emit(run.NewEvent(a.rec, run.EventReasoningStarted))
}

func (a *Assembler) endReasoning(emit func(*run.Event)) {
	if !a.reasoningOpen {
		return
	}
	a.reasoningOpen = false
	emit(run.NewEvent(a.rec, run.EventReasoningCompleted))
}

func (a *Assembler) metrics() *model.Metrics {
	if a.rec.Metrics == nil {
		a.rec.Metrics = &model.Metrics{}
	}
	return a.rec.Metrics
}

func (a *Assembler) markFirstToken() {
	m := a.metrics()
	if m.TimeToFirstToken == 0 {
		m.TimeToFirstToken = time.Since(a.started)
	}
}
