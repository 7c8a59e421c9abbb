//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package function provides function-based tool implementations for the agent system.
package function

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/ensemble-ai/ensemble/log"
	"github.com/ensemble-ai/ensemble/tool"
)

// FunctionTool wraps a Go function as a tool that can be called with JSON
// arguments. The input schema is generated from the input type unless an
// explicit schema is supplied.
type FunctionTool[I, O any] struct {
	name                 string
	description          string
	inputSchema          *tool.Schema
	fn                   func(context.Context, I) (O, error)
	requiresConfirmation bool
}

// Option configures a FunctionTool.
type Option func(*options)

type options struct {
	name                 string
	description          string
	inputSchema          *tool.Schema
	requiresConfirmation bool
}

// WithName sets the name of the function tool.
//
// Tool names must comply with LLM API requirements: use only letters,
// digits, underscores and hyphens.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithDescription sets the description of the function tool.
func WithDescription(description string) Option {
	return func(o *options) { o.description = description }
}

// WithInputSchema sets a custom input schema. When provided, automatic
// schema generation is skipped.
func WithInputSchema(schema *tool.Schema) Option {
	return func(o *options) { o.inputSchema = schema }
}

// WithRequiresConfirmation marks the tool as requiring human approval
// before execution. Calls to such a tool pause the run instead of running.
func WithRequiresConfirmation(requires bool) Option {
	return func(o *options) { o.requiresConfirmation = requires }
}

// New creates a FunctionTool from fn.
func New[I, O any](fn func(context.Context, I) (O, error), opts ...Option) *FunctionTool[I, O] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		log.Warnf("function tool: name is empty")
	}
	schema := o.inputSchema
	if schema == nil {
		var empty I
		schema = generateSchema(reflect.TypeOf(empty))
	}
	return &FunctionTool[I, O]{
		name:                 o.name,
		description:          o.description,
		inputSchema:          schema,
		fn:                   fn,
		requiresConfirmation: o.requiresConfirmation,
	}
}

// Declaration implements tool.Tool.
func (t *FunctionTool[I, O]) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:        t.name,
		Description: t.description,
		InputSchema: t.inputSchema,
	}
}

// Call implements tool.CallableTool.
func (t *FunctionTool[I, O]) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var input I
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &input); err != nil {
			return nil, fmt.Errorf("unmarshal %s arguments: %w", t.name, err)
		}
	}
	return t.fn(ctx, input)
}

// RequiresConfirmation implements tool.ConfirmationRequirer.
func (t *FunctionTool[I, O]) RequiresConfirmation() bool {
	return t.requiresConfirmation
}
