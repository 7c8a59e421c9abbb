//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package reasoning

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ensemble-ai/ensemble/log"
	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/run"
)

// Status is the orchestrator state.
type Status int

// Orchestrator states. Errored is terminal but swallowed: a reasoning
// failure is logged and the parent pipeline proceeds with regular execution.
const (
	// StatusIdle is the initial state.
	StatusIdle Status = iota
	// StatusStarted means the reasoning phase is running.
	StatusStarted
	// StatusCompleted means the reasoning phase finished.
	StatusCompleted
	// StatusErrored means the reasoning phase failed and was abandoned.
	StatusErrored
)

const (
	defaultMinSteps = 1
	defaultMaxSteps = 10
)

const reasoningInstructions = `You are a careful reasoner. Work through the task step by step.
Use the think tool to record intermediate thoughts and the analyze tool to
evaluate results. Set next_action to final_answer in an analyze call when
you are confident in the conclusion.`

// Orchestrator drives a bounded think/analyze pre-pass with a dedicated
// reasoning model before the main model call.
type Orchestrator struct {
	model    model.Model
	minSteps int
	maxSteps int
	status   Status
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMinSteps sets the minimum number of steps required before a
// final_answer transition is honored.
func WithMinSteps(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.minSteps = n
		}
	}
}

// WithMaxSteps sets the step budget. Exceeding it forces termination at the
// current step.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// NewOrchestrator creates a reasoning orchestrator around a reasoning model.
func NewOrchestrator(m model.Model, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		model:    m,
		minSteps: defaultMinSteps,
		maxSteps: defaultMaxSteps,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Status returns the current orchestrator state.
func (o *Orchestrator) Status() Status {
	return o.status
}

// Run executes the reasoning pre-pass for the given record. Synthesized
// steps are appended to the record and rendered into its reasoning
// narrative. Events are delivered through emit, which may be nil when the
// caller did not request streaming; intermediate values never leak past
// emit.
//
// Reasoning failure is never fatal: any error is logged and the record is
// left with whatever steps were produced, letting the parent pipeline
// proceed with regular execution.
func (o *Orchestrator) Run(ctx context.Context, rec *run.Record, emit func(*run.Event)) {
	if o.model == nil {
		return
	}
	if emit == nil {
		emit = func(*run.Event) {}
	}

	o.status = StatusStarted
	started := time.Now()
	emit(run.NewEvent(rec, run.EventReasoningStarted))

	if err := o.loop(ctx, rec, emit); err != nil {
		o.status = StatusErrored
		log.Warnf("reasoning pre-pass failed for run %s, continuing without it: %v",
			rec.RunID, err)
		return
	}

	o.status = StatusCompleted
	if rec.Metrics == nil {
		rec.Metrics = &model.Metrics{}
	}
	rec.Metrics.ReasoningDuration += time.Since(started)
	emit(run.NewEvent(rec, run.EventReasoningCompleted,
		run.WithMetrics(rec.Metrics)))
}

func (o *Orchestrator) loop(ctx context.Context, rec *run.Record, emit func(*run.Event)) error {
	messages := []model.Message{
		model.NewSystemMessage(reasoningInstructions),
		model.NewUserMessage(rec.Input),
	}

	steps := 0
	for steps < o.maxSteps {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := o.model.Respond(ctx, &model.Request{Messages: messages})
		if err != nil {
			return err
		}

		if resp.Content != "" {
			rec.ReasoningContent += resp.Content
			emit(run.NewEvent(rec, run.EventReasoningContentDelta,
				run.WithReasoningContent(resp.Content)))
			messages = append(messages, model.NewAssistantMessage(resp.Content))
		}

		if len(resp.ToolCalls) == 0 {
			return nil
		}

		final := false
		for _, tc := range resp.ToolCalls {
			step, ok := StepFromToolCall(tc.Name, decodeArgs(tc.Arguments))
			if !ok {
				continue
			}
			steps++
			o.recordStep(rec, step, emit)
			messages = append(messages,
				model.NewAssistantMessage("Step: "+RenderStep(step)))
			if step.NextAction == run.NextActionFinalAnswer && steps >= o.minSteps {
				final = true
			}
		}
		if final {
			return nil
		}
	}
	// Step budget exhausted, terminate at the current step.
	return nil
}

func (o *Orchestrator) recordStep(rec *run.Record, step *run.ReasoningStep, emit func(*run.Event)) {
	rec.ReasoningSteps = append(rec.ReasoningSteps, *step)
	rec.ReasoningContent += RenderStep(step)
	emit(run.NewEvent(rec, run.EventReasoningStep, run.WithStep(step)))
}

func decodeArgs(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		log.Warnf("reasoning tool arguments are not valid JSON: %v", err)
		return nil
	}
	return args
}
