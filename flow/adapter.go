//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ensemble-ai/ensemble/log"
	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/telemetry"
	"github.com/ensemble-ai/ensemble/tool"
)

const (
	defaultMaxIterations = 20

	// declinedResult is fed back to the model when a human declines a
	// paused tool call.
	declinedResult = "Tool call was declined by the user."
)

// ErrNoModel is returned when the adapter is constructed without a model.
var ErrNoModel = errors.New("flow: model is required")

// Adapter runs the model request loop: it forwards provider stream events,
// executes requested tool calls between requests, and keeps iterating until
// the model stops requesting tools, a call pauses for human approval, or the
// iteration budget is exhausted.
//
// The adapter does not retry provider errors; they terminate the stream with
// an error event and retry policy stays with the caller.
type Adapter struct {
	model         model.Model
	compressor    *Compressor
	maxIterations int
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithCompressor installs tool-result compression.
func WithCompressor(c *Compressor) AdapterOption {
	return func(a *Adapter) { a.compressor = c }
}

// WithMaxIterations caps the number of model requests per run.
func WithMaxIterations(n int) AdapterOption {
	return func(a *Adapter) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// NewAdapter creates an adapter around a model.
func NewAdapter(m model.Model, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		model:         m,
		maxIterations: defaultMaxIterations,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the request loop. The returned channel is closed when the loop
// finishes, pauses for human approval, or fails; failure surfaces as a final
// event with Err set. The request's message list is mutated as the loop
// appends assistant and tool messages.
func (a *Adapter) Run(ctx context.Context, req *model.Request) (<-chan *model.ResponseEvent, error) {
	if a.model == nil {
		return nil, ErrNoModel
	}
	ch := make(chan *model.ResponseEvent, 64)
	go a.loop(ctx, req, nil, ch)
	return ch, nil
}

// Resume restarts the request loop after a human-approval pause. Resolved
// executions run (or are declined) first, then the loop continues as usual.
func (a *Adapter) Resume(ctx context.Context, req *model.Request, resolved []*tool.Execution) (<-chan *model.ResponseEvent, error) {
	if a.model == nil {
		return nil, ErrNoModel
	}
	ch := make(chan *model.ResponseEvent, 64)
	go a.loop(ctx, req, resolved, ch)
	return ch, nil
}

func (a *Adapter) loop(ctx context.Context, req *model.Request, resolved []*tool.Execution, ch chan<- *model.ResponseEvent) {
	defer close(ch)

	if len(resolved) > 0 {
		if !a.resolveExecutions(ctx, req, resolved, ch) {
			return
		}
	}

	info := a.model.Info()
	for i := 0; i < a.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			send(ctx, ch, model.NewErrorEvent(err))
			return
		}

		mctx, span := telemetry.StartModelSpan(ctx, info.ID, info.Provider)
		resp, ok := a.request(mctx, req, ch)
		span.End()
		if !ok {
			return
		}

		if resp == nil || len(resp.ToolCalls) == 0 {
			return
		}

		req.Messages = append(req.Messages, model.Message{
			Role:             model.RoleAssistant,
			Content:          resp.Content,
			ReasoningContent: resp.ReasoningContent,
			ToolCalls:        resp.ToolCalls,
			Metrics:          resp.Metrics,
		})

		if paused := a.executeToolCalls(ctx, req, resp.ToolCalls, ch); paused {
			return
		}
	}
	log.Warnf("model request loop hit the iteration cap (%d), stopping", a.maxIterations)
}

// request performs one streaming model call, forwarding every provider event
// and returning the assembled final response. It returns ok=false when the
// stream ended the run (error or cancellation).
func (a *Adapter) request(ctx context.Context, req *model.Request, ch chan<- *model.ResponseEvent) (*model.Response, bool) {
	events, err := a.model.RespondStream(ctx, req)
	if err != nil {
		send(ctx, ch, model.NewErrorEvent(fmt.Errorf("model request: %w", err)))
		return nil, false
	}

	var resp *model.Response
	for ev := range events {
		if ev == nil {
			continue
		}
		if ev.Err != nil {
			send(ctx, ch, ev)
			return nil, false
		}
		if ev.Type == model.ResponseEventRequestCompleted && ev.Response != nil {
			resp = ev.Response
		}
		if !send(ctx, ch, ev) {
			return nil, false
		}
	}
	return resp, true
}

// executeToolCalls runs the requested calls in order. Calls whose tool asks
// for human approval are not executed: they are emitted as paused and the
// loop stops, leaving the run suspended. It returns true when the run paused.
func (a *Adapter) executeToolCalls(ctx context.Context, req *model.Request, calls []model.ToolCall, ch chan<- *model.ResponseEvent) bool {
	var pending []*tool.Execution
	for _, tc := range calls {
		exec := &tool.Execution{
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Arguments:  decodeArguments(tc.Arguments),
			StartedAt:  time.Now(),
		}
		if requiresConfirmation(req.Tools[tc.Name]) {
			exec.RequiresConfirmation = true
			pending = append(pending, exec)
			continue
		}
		if !a.executeCall(ctx, req, exec, tc.Arguments, ch) {
			return true
		}
	}
	if len(pending) > 0 {
		send(ctx, ch, model.NewToolCallEvent(model.ResponseEventToolCallPaused, pending...))
		return true
	}
	return false
}

// executeCall runs a single execution end to end: started event, tool call,
// optional compression, completed event and the tool message fed back to the
// model. It returns false when the stream consumer went away.
func (a *Adapter) executeCall(ctx context.Context, req *model.Request, exec *tool.Execution, rawArgs []byte, ch chan<- *model.ResponseEvent) bool {
	if !send(ctx, ch, model.NewToolCallEvent(model.ResponseEventToolCallStarted, exec.Clone())) {
		return false
	}

	result := a.callTool(ctx, req.Tools[exec.ToolName], exec, rawArgs)

	if !exec.Error {
		compressed, stats, didCompress := a.compressor.Compress(exec.ToolCallID, result)
		if didCompress {
			if !send(ctx, ch, model.NewCompressionEvent(model.ResponseEventCompressionStarted,
				&model.CompressionStats{ToolCallID: exec.ToolCallID, OriginalTokens: stats.OriginalTokens})) {
				return false
			}
			result = compressed
			if !send(ctx, ch, model.NewCompressionEvent(model.ResponseEventCompressionCompleted, stats)) {
				return false
			}
		}
	}

	exec.Result = result
	exec.CompletedAt = time.Now()
	req.Messages = append(req.Messages,
		model.NewToolMessage(exec.ToolCallID, exec.ToolName, result))
	return send(ctx, ch, model.NewToolCallEvent(model.ResponseEventToolCallCompleted, exec.Clone()))
}

// callTool invokes the tool and stringifies its result. Tool failures are
// not fatal: the error text becomes the result so the model can react.
func (a *Adapter) callTool(ctx context.Context, t tool.Tool, exec *tool.Execution, rawArgs []byte) string {
	callable, ok := t.(tool.CallableTool)
	if !ok {
		exec.Error = true
		return fmt.Sprintf("tool %q is not available", exec.ToolName)
	}
	out, err := callable.Call(tool.ContextWithCallID(ctx, exec.ToolCallID), rawArgs)
	if err != nil {
		exec.Error = true
		return err.Error()
	}
	return resultString(out)
}

// resolveExecutions replays human decisions after a pause: confirmed calls
// execute, declined ones feed a decline notice back to the model. It returns
// false when the stream consumer went away.
func (a *Adapter) resolveExecutions(ctx context.Context, req *model.Request, resolved []*tool.Execution, ch chan<- *model.ResponseEvent) bool {
	for _, exec := range resolved {
		if exec.Confirmed == nil {
			continue
		}
		if !*exec.Confirmed {
			exec.Result = declinedResult
			exec.CompletedAt = time.Now()
			req.Messages = append(req.Messages,
				model.NewToolMessage(exec.ToolCallID, exec.ToolName, declinedResult))
			if !send(ctx, ch, model.NewToolCallEvent(model.ResponseEventToolCallCompleted, exec.Clone())) {
				return false
			}
			continue
		}
		rawArgs, err := json.Marshal(exec.Arguments)
		if err != nil {
			rawArgs = nil
		}
		exec.StartedAt = time.Now()
		if !a.executeCall(ctx, req, exec, rawArgs, ch) {
			return false
		}
	}
	return true
}

func requiresConfirmation(t tool.Tool) bool {
	cr, ok := t.(tool.ConfirmationRequirer)
	return ok && cr.RequiresConfirmation()
}

// decodeArguments parses tool call arguments for the execution record,
// repairing near-JSON before giving up.
func decodeArguments(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err == nil {
		return args
	}
	repaired, err := jsonrepair.JSONRepair(string(raw))
	if err != nil {
		log.Warnf("tool call arguments are not valid JSON: %v", err)
		return nil
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		log.Warnf("tool call arguments unparseable after repair: %v", err)
		return nil
	}
	return args
}

func resultString(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func send(ctx context.Context, ch chan<- *model.ResponseEvent, ev *model.ResponseEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
