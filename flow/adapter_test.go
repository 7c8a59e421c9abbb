//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package flow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/tool"
)

// turn scripts one model request: streamed chunks followed by the final
// response, or a stream error.
type turn struct {
	chunks []string
	resp   *model.Response
	err    error
}

type fakeModel struct {
	turns []*turn
	calls int
}

func (m *fakeModel) Info() model.Info {
	return model.Info{ID: "fake", Provider: "test"}
}

func (m *fakeModel) Respond(_ context.Context, _ *model.Request) (*model.Response, error) {
	t := m.next()
	if t.err != nil {
		return nil, t.err
	}
	return t.resp, nil
}

func (m *fakeModel) RespondStream(_ context.Context, _ *model.Request) (<-chan *model.ResponseEvent, error) {
	t := m.next()
	ch := make(chan *model.ResponseEvent, 16)
	go func() {
		defer close(ch)
		ch <- model.NewRequestStartedEvent()
		for _, chunk := range t.chunks {
			ch <- model.NewAssistantDeltaEvent(&model.AssistantDelta{Content: chunk})
		}
		if t.err != nil {
			ch <- model.NewErrorEvent(t.err)
			return
		}
		ch <- model.NewRequestCompletedEvent(t.resp, t.resp.Metrics)
	}()
	return ch, nil
}

func (m *fakeModel) next() *turn {
	if m.calls >= len(m.turns) {
		return &turn{resp: &model.Response{}}
	}
	t := m.turns[m.calls]
	m.calls++
	return t
}

// echoTool returns its "text" argument, or a fixed reply.
type echoTool struct {
	reply string
}

func (t *echoTool) Declaration() *tool.Declaration {
	return &tool.Declaration{Name: "echo", Description: "echoes text"}
}

func (t *echoTool) Call(_ context.Context, _ []byte) (any, error) {
	return t.reply, nil
}

// deployTool requires human approval before it runs.
type deployTool struct {
	called bool
}

func (t *deployTool) Declaration() *tool.Declaration {
	return &tool.Declaration{Name: "deploy", Description: "deploys the service"}
}

func (t *deployTool) Call(_ context.Context, _ []byte) (any, error) {
	t.called = true
	return "deployed", nil
}

func (t *deployTool) RequiresConfirmation() bool { return true }

func drainEvents(t *testing.T, ch <-chan *model.ResponseEvent) []*model.ResponseEvent {
	t.Helper()
	var events []*model.ResponseEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func eventTypes(events []*model.ResponseEvent) []model.ResponseEventType {
	types := make([]model.ResponseEventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func TestRunForwardsStreamEvents(t *testing.T) {
	m := &fakeModel{turns: []*turn{
		{chunks: []string{"Hello", " world"}, resp: &model.Response{Content: "Hello world"}},
	}}
	a := NewAdapter(m)

	req := &model.Request{Messages: []model.Message{model.NewUserMessage("hi")}}
	ch, err := a.Run(context.Background(), req)
	require.NoError(t, err)

	events := drainEvents(t, ch)
	assert.Equal(t, []model.ResponseEventType{
		model.ResponseEventRequestStarted,
		model.ResponseEventAssistantDelta,
		model.ResponseEventAssistantDelta,
		model.ResponseEventRequestCompleted,
	}, eventTypes(events))
	assert.Equal(t, "Hello", events[1].Delta.Content)
	assert.Equal(t, " world", events[2].Delta.Content)
}

func TestRunExecutesToolLoop(t *testing.T) {
	m := &fakeModel{turns: []*turn{
		{resp: &model.Response{ToolCalls: []model.ToolCall{
			{ID: "call-1", Name: "echo", Arguments: []byte(`{"text":"hi"}`)},
		}}},
		{chunks: []string{"done"}, resp: &model.Response{Content: "done"}},
	}}
	a := NewAdapter(m)

	req := &model.Request{
		Messages: []model.Message{model.NewUserMessage("hi")},
		Tools:    map[string]tool.Tool{"echo": &echoTool{reply: "echoed: hi"}},
	}
	ch, err := a.Run(context.Background(), req)
	require.NoError(t, err)

	events := drainEvents(t, ch)
	assert.Equal(t, []model.ResponseEventType{
		model.ResponseEventRequestStarted,
		model.ResponseEventRequestCompleted,
		model.ResponseEventToolCallStarted,
		model.ResponseEventToolCallCompleted,
		model.ResponseEventRequestStarted,
		model.ResponseEventAssistantDelta,
		model.ResponseEventRequestCompleted,
	}, eventTypes(events))

	completed := events[3].ToolExecutions[0]
	assert.Equal(t, "call-1", completed.ToolCallID)
	assert.Equal(t, "echoed: hi", completed.Result)
	assert.False(t, completed.Error)
	assert.Equal(t, map[string]any{"text": "hi"}, completed.Arguments)

	// user + assistant-with-tool-calls + tool result.
	require.Len(t, req.Messages, 3)
	assert.Equal(t, model.RoleAssistant, req.Messages[1].Role)
	require.Len(t, req.Messages[1].ToolCalls, 1)
	assert.Equal(t, model.RoleTool, req.Messages[2].Role)
	assert.Equal(t, "echoed: hi", req.Messages[2].Content)
}

func TestRunPausesOnConfirmationRequirer(t *testing.T) {
	m := &fakeModel{turns: []*turn{
		{resp: &model.Response{ToolCalls: []model.ToolCall{
			{ID: "call-1", Name: "deploy", Arguments: []byte(`{"env":"prod"}`)},
		}}},
	}}
	a := NewAdapter(m)
	deploy := &deployTool{}

	req := &model.Request{
		Messages: []model.Message{model.NewUserMessage("ship it")},
		Tools:    map[string]tool.Tool{"deploy": deploy},
	}
	ch, err := a.Run(context.Background(), req)
	require.NoError(t, err)

	events := drainEvents(t, ch)
	assert.Equal(t, []model.ResponseEventType{
		model.ResponseEventRequestStarted,
		model.ResponseEventRequestCompleted,
		model.ResponseEventToolCallPaused,
	}, eventTypes(events))

	paused := events[2].ToolExecutions[0]
	assert.Equal(t, "call-1", paused.ToolCallID)
	assert.True(t, paused.RequiresConfirmation)
	assert.False(t, deploy.called, "a paused tool must not run")
	// Only one model request was made.
	assert.Equal(t, 1, m.calls)
}

func TestResumeDeclinedCall(t *testing.T) {
	m := &fakeModel{turns: []*turn{
		{chunks: []string{"ok"}, resp: &model.Response{Content: "ok"}},
	}}
	a := NewAdapter(m)
	deploy := &deployTool{}

	declined := false
	req := &model.Request{
		Messages: []model.Message{model.NewUserMessage("ship it")},
		Tools:    map[string]tool.Tool{"deploy": deploy},
	}
	ch, err := a.Resume(context.Background(), req, []*tool.Execution{{
		ToolCallID: "call-1",
		ToolName:   "deploy",
		Confirmed:  &declined,
	}})
	require.NoError(t, err)

	events := drainEvents(t, ch)
	require.Equal(t, model.ResponseEventToolCallCompleted, events[0].Type)
	assert.Equal(t, "Tool call was declined by the user.", events[0].ToolExecutions[0].Result)
	assert.False(t, deploy.called)

	// The decline notice is fed back to the model.
	require.Len(t, req.Messages, 2)
	assert.Equal(t, model.RoleTool, req.Messages[1].Role)
	assert.Equal(t, "Tool call was declined by the user.", req.Messages[1].Content)
}

func TestResumeConfirmedCall(t *testing.T) {
	m := &fakeModel{turns: []*turn{
		{chunks: []string{"ok"}, resp: &model.Response{Content: "ok"}},
	}}
	a := NewAdapter(m)
	deploy := &deployTool{}

	confirmed := true
	req := &model.Request{
		Messages: []model.Message{model.NewUserMessage("ship it")},
		Tools:    map[string]tool.Tool{"deploy": deploy},
	}
	ch, err := a.Resume(context.Background(), req, []*tool.Execution{{
		ToolCallID: "call-1",
		ToolName:   "deploy",
		Arguments:  map[string]any{"env": "prod"},
		Confirmed:  &confirmed,
	}})
	require.NoError(t, err)

	events := drainEvents(t, ch)
	assert.Equal(t, []model.ResponseEventType{
		model.ResponseEventToolCallStarted,
		model.ResponseEventToolCallCompleted,
		model.ResponseEventRequestStarted,
		model.ResponseEventAssistantDelta,
		model.ResponseEventRequestCompleted,
	}, eventTypes(events))
	assert.True(t, deploy.called)
	assert.Equal(t, "deployed", events[1].ToolExecutions[0].Result)
}

func TestRunUnknownToolBecomesErrorResult(t *testing.T) {
	m := &fakeModel{turns: []*turn{
		{resp: &model.Response{ToolCalls: []model.ToolCall{
			{ID: "call-1", Name: "missing", Arguments: []byte(`{}`)},
		}}},
		{resp: &model.Response{Content: "sorry"}},
	}}
	a := NewAdapter(m)

	req := &model.Request{Messages: []model.Message{model.NewUserMessage("hi")}}
	ch, err := a.Run(context.Background(), req)
	require.NoError(t, err)

	events := drainEvents(t, ch)
	var completed *tool.Execution
	for _, ev := range events {
		if ev.Type == model.ResponseEventToolCallCompleted {
			completed = ev.ToolExecutions[0]
		}
	}
	require.NotNil(t, completed)
	assert.True(t, completed.Error)
	assert.Contains(t, completed.Result, "not available")
}

func TestRunStopsOnStreamError(t *testing.T) {
	m := &fakeModel{turns: []*turn{
		{err: fmt.Errorf("provider unavailable")},
	}}
	a := NewAdapter(m)

	req := &model.Request{Messages: []model.Message{model.NewUserMessage("hi")}}
	ch, err := a.Run(context.Background(), req)
	require.NoError(t, err)

	events := drainEvents(t, ch)
	last := events[len(events)-1]
	require.Error(t, last.Err)
	assert.Contains(t, last.Err.Error(), "provider unavailable")
}

func TestRunHonorsIterationCap(t *testing.T) {
	loopTurn := &turn{resp: &model.Response{ToolCalls: []model.ToolCall{
		{ID: "call-1", Name: "echo", Arguments: []byte(`{}`)},
	}}}
	m := &fakeModel{turns: []*turn{loopTurn, loopTurn, loopTurn, loopTurn}}
	a := NewAdapter(m, WithMaxIterations(2))

	req := &model.Request{
		Messages: []model.Message{model.NewUserMessage("hi")},
		Tools:    map[string]tool.Tool{"echo": &echoTool{reply: "again"}},
	}
	ch, err := a.Run(context.Background(), req)
	require.NoError(t, err)

	events := drainEvents(t, ch)
	var requests int
	for _, ev := range events {
		if ev.Type == model.ResponseEventRequestStarted {
			requests++
		}
	}
	assert.Equal(t, 2, requests)
}

func TestRunRequiresModel(t *testing.T) {
	a := NewAdapter(nil)
	_, err := a.Run(context.Background(), &model.Request{})
	assert.ErrorIs(t, err, ErrNoModel)
}
