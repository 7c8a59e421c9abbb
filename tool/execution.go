//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package tool

import "time"

// Execution records one tool call made during a run.
//
// An execution is created when the model requests the call ("started") and
// is updated in place when the call finishes ("completed"), matched by
// ToolCallID. ChildRunID survives the completion update: it is set when the
// tool call spawned a nested member run and must not be lost when the
// completion payload overwrites the rest of the record.
type Execution struct {
	// ToolCallID is the provider-assigned identifier of the tool call.
	ToolCallID string `json:"tool_call_id"`
	// ToolName is the name of the tool that was called.
	ToolName string `json:"tool_name"`
	// Arguments holds the decoded call arguments.
	Arguments map[string]any `json:"arguments,omitempty"`
	// Result holds the tool result, or the error text when Error is true.
	Result string `json:"result,omitempty"`
	// Error reports whether the tool signalled an execution error.
	Error bool `json:"error,omitempty"`
	// ChildRunID links the execution to a nested run it triggered.
	ChildRunID string `json:"child_run_id,omitempty"`
	// RequiresConfirmation marks the execution as pending human approval.
	RequiresConfirmation bool `json:"requires_confirmation,omitempty"`
	// Confirmed records the human decision. Nil means still pending.
	Confirmed *bool `json:"confirmed,omitempty"`
	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at,omitempty"`
	// CompletedAt is when execution finished.
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Duration returns the elapsed execution time, or zero when the execution
// has not completed.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt.IsZero() || e.CompletedAt.IsZero() {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// Clone returns a copy of the execution.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Arguments != nil {
		clone.Arguments = make(map[string]any, len(e.Arguments))
		for k, v := range e.Arguments {
			clone.Arguments[k] = v
		}
	}
	if e.Confirmed != nil {
		confirmed := *e.Confirmed
		clone.Confirmed = &confirmed
	}
	return &clone
}
