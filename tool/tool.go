//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package tool provides tool interfaces and execution records for the agent system.
package tool

import "context"

// Tool is the interface that all tools implement.
type Tool interface {
	// Declaration returns the declaration of the tool.
	Declaration() *Declaration
}

// CallableTool is a tool that can be invoked with JSON-encoded arguments.
type CallableTool interface {
	Tool

	// Call executes the tool with the given JSON-encoded arguments.
	Call(ctx context.Context, jsonArgs []byte) (any, error)
}

// ConfirmationRequirer is an optional interface for tools whose execution
// must be approved by a human before it runs. When a tool implementing this
// interface returns true, the pipeline does not execute the tool; it records
// a pending requirement on the run and pauses instead.
type ConfirmationRequirer interface {
	RequiresConfirmation() bool
}

// Declaration describes a tool to the model.
type Declaration struct {
	// Name is the name of the tool.
	Name string `json:"name"`
	// Description is the description of the tool.
	Description string `json:"description"`
	// InputSchema is the JSON schema of the tool input.
	InputSchema *Schema `json:"inputSchema,omitempty"`
	// OutputSchema is the JSON schema of the tool output.
	OutputSchema *Schema `json:"outputSchema,omitempty"`
}

// Schema is a JSON-schema-shaped description of a value.
type Schema struct {
	// Type is the JSON schema type, e.g. "object", "string", "number".
	Type string `json:"type,omitempty"`
	// Description describes the value.
	Description string `json:"description,omitempty"`
	// Properties holds the schemas of object properties.
	Properties map[string]*Schema `json:"properties,omitempty"`
	// Required lists the required property names.
	Required []string `json:"required,omitempty"`
	// Items is the schema of array items.
	Items *Schema `json:"items,omitempty"`
	// Enum restricts the value to a fixed set.
	Enum []any `json:"enum,omitempty"`
	// Default is the default value.
	Default any `json:"default,omitempty"`
}
