//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/run"
)

// scriptedModel replays a fixed sequence of responses.
type scriptedModel struct {
	responses []*model.Response
	err       error
	calls     int
}

func (m *scriptedModel) Info() model.Info {
	return model.Info{ID: "scripted", Provider: "test"}
}

func (m *scriptedModel) Respond(_ context.Context, _ *model.Request) (*model.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.calls >= len(m.responses) {
		return &model.Response{}, nil
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func (m *scriptedModel) RespondStream(ctx context.Context, req *model.Request) (<-chan *model.ResponseEvent, error) {
	ch := make(chan *model.ResponseEvent)
	close(ch)
	return ch, nil
}

func toolCall(name string, args map[string]any) model.ToolCall {
	raw, _ := json.Marshal(args)
	return model.ToolCall{ID: "call-" + name, Name: name, Arguments: raw}
}

func collectEvents(events *[]*run.Event) func(*run.Event) {
	return func(ev *run.Event) { *events = append(*events, ev) }
}

func TestOrchestratorRunSynthesizesSteps(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{
		{ToolCalls: []model.ToolCall{
			toolCall("think", map[string]any{"title": "Recall", "thought": "Paris is the capital."}),
		}},
		{ToolCalls: []model.ToolCall{
			toolCall("analyze", map[string]any{
				"title":       "Check",
				"result":      "ok",
				"next_action": "final_answer",
			}),
		}},
	}}

	o := NewOrchestrator(m)
	rec := run.NewRecord("a1", "agent", "s1")
	rec.Input = "What is the capital of France?"

	var events []*run.Event
	o.Run(context.Background(), rec, collectEvents(&events))

	assert.Equal(t, StatusCompleted, o.Status())
	require.Len(t, rec.ReasoningSteps, 2)
	assert.Equal(t, "Recall", rec.ReasoningSteps[0].Title)
	assert.Equal(t, run.NextActionFinalAnswer, rec.ReasoningSteps[1].NextAction)
	assert.Contains(t, rec.ReasoningContent, "## Recall\nParis is the capital.\n")
	assert.Contains(t, rec.ReasoningContent, "## Check\nResult: ok\n")

	require.NotNil(t, rec.Metrics)
	assert.Greater(t, rec.Metrics.ReasoningDuration, time.Duration(0))

	require.NotEmpty(t, events)
	assert.Equal(t, run.EventReasoningStarted, events[0].Type)
	assert.Equal(t, run.EventReasoningCompleted, events[len(events)-1].Type)

	var stepEvents int
	for _, ev := range events {
		if ev.Type == run.EventReasoningStep {
			stepEvents++
		}
	}
	assert.Equal(t, 2, stepEvents)
}

func TestOrchestratorStopsWithoutToolCalls(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{
		{Content: "Nothing to reason about."},
	}}

	o := NewOrchestrator(m)
	rec := run.NewRecord("a1", "agent", "s1")

	o.Run(context.Background(), rec, nil)

	assert.Equal(t, StatusCompleted, o.Status())
	assert.Empty(t, rec.ReasoningSteps)
	assert.Equal(t, "Nothing to reason about.", rec.ReasoningContent)
	assert.Equal(t, 1, m.calls)
}

func TestOrchestratorHonorsMinSteps(t *testing.T) {
	// final_answer on the very first step is ignored until minSteps is met.
	early := toolCall("analyze", map[string]any{"title": "Rush", "next_action": "final_answer"})
	m := &scriptedModel{responses: []*model.Response{
		{ToolCalls: []model.ToolCall{early}},
		{ToolCalls: []model.ToolCall{early}},
	}}

	o := NewOrchestrator(m, WithMinSteps(2))
	rec := run.NewRecord("a1", "agent", "s1")

	o.Run(context.Background(), rec, nil)

	assert.Equal(t, StatusCompleted, o.Status())
	assert.Len(t, rec.ReasoningSteps, 2)
	assert.Equal(t, 2, m.calls)
}

func TestOrchestratorEnforcesMaxSteps(t *testing.T) {
	endless := toolCall("think", map[string]any{"thought": "still going"})
	m := &scriptedModel{responses: []*model.Response{
		{ToolCalls: []model.ToolCall{endless}},
		{ToolCalls: []model.ToolCall{endless}},
		{ToolCalls: []model.ToolCall{endless}},
		{ToolCalls: []model.ToolCall{endless}},
	}}

	o := NewOrchestrator(m, WithMaxSteps(3))
	rec := run.NewRecord("a1", "agent", "s1")

	o.Run(context.Background(), rec, nil)

	assert.Equal(t, StatusCompleted, o.Status())
	assert.Len(t, rec.ReasoningSteps, 3)
}

func TestOrchestratorSwallowsModelErrors(t *testing.T) {
	m := &scriptedModel{err: errors.New("provider unavailable")}

	o := NewOrchestrator(m)
	rec := run.NewRecord("a1", "agent", "s1")

	var events []*run.Event
	o.Run(context.Background(), rec, collectEvents(&events))

	assert.Equal(t, StatusErrored, o.Status())
	assert.Empty(t, rec.ReasoningSteps)
	// Only the started event is emitted; no completed event after a failure.
	require.Len(t, events, 1)
	assert.Equal(t, run.EventReasoningStarted, events[0].Type)
}

func TestOrchestratorNilModelIsNoop(t *testing.T) {
	o := NewOrchestrator(nil)
	rec := run.NewRecord("a1", "agent", "s1")

	o.Run(context.Background(), rec, nil)

	assert.Equal(t, StatusIdle, o.Status())
}

func TestOrchestratorIgnoresNonReasoningToolCalls(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{
		{ToolCalls: []model.ToolCall{
			toolCall("search", map[string]any{"query": "capital of France"}),
		}},
		{Content: "done"},
	}}

	o := NewOrchestrator(m, WithMaxSteps(2))
	rec := run.NewRecord("a1", "agent", "s1")

	o.Run(context.Background(), rec, nil)

	assert.Equal(t, StatusCompleted, o.Status())
	assert.Empty(t, rec.ReasoningSteps)
}
