//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package reasoning drives the optional multi-step think/analyze loop and
// translates its internal steps into run events.
package reasoning

import (
	"fmt"
	"strings"

	"github.com/ensemble-ai/ensemble/run"
)

// Reasoning-style tool names. Completed calls to these tools are folded
// into the run's reasoning narrative instead of being treated as ordinary
// tool results.
const (
	// ToolThink is the incremental thinking tool.
	ToolThink = "think"
	// ToolAnalyze is the result analysis tool.
	ToolAnalyze = "analyze"
)

// defaultThinkTitle titles a bare think call that supplied no title.
const defaultThinkTitle = "Thinking"

// IsReasoningTool reports whether the tool name denotes a reasoning-style
// tool.
func IsReasoningTool(name string) bool {
	return name == ToolThink || name == ToolAnalyze
}

// StepFromToolCall synthesizes a reasoning step from the arguments of a
// completed think or analyze call. It returns false for non-reasoning tools
// or arguments that carry no usable step content.
func StepFromToolCall(toolName string, args map[string]any) (*run.ReasoningStep, bool) {
	switch toolName {
	case ToolThink:
		return thinkStep(args)
	case ToolAnalyze:
		return analyzeStep(args)
	default:
		return nil, false
	}
}

func thinkStep(args map[string]any) (*run.ReasoningStep, bool) {
	thought := stringArg(args, "thought")
	title := stringArg(args, "title")
	if thought == "" && title == "" {
		return nil, false
	}
	if title == "" {
		title = defaultThinkTitle
	}
	return &run.ReasoningStep{
		Title:      title,
		Reasoning:  thought,
		Action:     stringArg(args, "action"),
		Confidence: floatArg(args, "confidence"),
		NextAction: run.NextActionContinue,
	}, true
}

func analyzeStep(args map[string]any) (*run.ReasoningStep, bool) {
	title := stringArg(args, "title")
	if title == "" {
		return nil, false
	}
	return &run.ReasoningStep{
		Title:      title,
		Reasoning:  stringArg(args, "analysis"),
		Result:     stringArg(args, "result"),
		Confidence: floatArg(args, "confidence"),
		NextAction: ParseNextAction(stringArg(args, "next_action")),
	}, true
}

// ParseNextAction maps a next-action string, case-insensitively, to one of
// the known transitions. Unknown values default to continue.
func ParseNextAction(s string) run.NextAction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(run.NextActionValidate):
		return run.NextActionValidate
	case string(run.NextActionFinalAnswer):
		return run.NextActionFinalAnswer
	default:
		return run.NextActionContinue
	}
}

// RenderStep renders a step as the markdown block appended to the run's
// reasoning narrative.
func RenderStep(step *run.ReasoningStep) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n", step.Title)
	if step.Reasoning != "" {
		sb.WriteString(step.Reasoning)
		sb.WriteString("\n")
	}
	if step.Action != "" {
		fmt.Fprintf(&sb, "Action: %s\n", step.Action)
	}
	if step.Result != "" {
		fmt.Fprintf(&sb, "Result: %s\n", step.Result)
	}
	return sb.String()
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func floatArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
