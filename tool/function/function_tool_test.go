//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package function

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-ai/ensemble/tool"
)

type weatherArgs struct {
	City  string  `json:"city" jsonschema:"description=City to look up"`
	Days  int     `json:"days,omitempty" jsonschema:"description=Forecast days"`
	Units string  `json:"units,omitempty"`
	Temp  float64 `json:"-"`

	hidden string
}

func TestCall(t *testing.T) {
	weather := New(
		func(_ context.Context, args weatherArgs) (string, error) {
			return "sunny in " + args.City, nil
		},
		WithName("get_weather"),
		WithDescription("Looks up the weather"),
	)

	out, err := weather.Call(context.Background(), []byte(`{"city":"Berlin"}`))
	require.NoError(t, err)
	assert.Equal(t, "sunny in Berlin", out)
}

func TestCallEmptyArguments(t *testing.T) {
	echo := New(
		func(_ context.Context, args weatherArgs) (string, error) {
			return args.City, nil
		},
		WithName("echo"),
	)

	out, err := echo.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestCallInvalidArguments(t *testing.T) {
	weather := New(
		func(_ context.Context, _ weatherArgs) (string, error) { return "", nil },
		WithName("get_weather"),
	)

	_, err := weather.Call(context.Background(), []byte(`{"city":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get_weather")
}

func TestCallPropagatesFunctionError(t *testing.T) {
	boom := errors.New("boom")
	failing := New(
		func(_ context.Context, _ weatherArgs) (string, error) { return "", boom },
		WithName("failing"),
	)

	_, err := failing.Call(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, boom)
}

func TestDeclarationSchemaGeneration(t *testing.T) {
	weather := New(
		func(_ context.Context, _ weatherArgs) (string, error) { return "", nil },
		WithName("get_weather"),
		WithDescription("Looks up the weather"),
	)

	decl := weather.Declaration()
	assert.Equal(t, "get_weather", decl.Name)
	assert.Equal(t, "Looks up the weather", decl.Description)

	schema := decl.InputSchema
	require.NotNil(t, schema)
	assert.Equal(t, "object", schema.Type)

	require.Contains(t, schema.Properties, "city")
	assert.Equal(t, "string", schema.Properties["city"].Type)
	assert.Equal(t, "City to look up", schema.Properties["city"].Description)

	require.Contains(t, schema.Properties, "days")
	assert.Equal(t, "integer", schema.Properties["days"].Type)

	// json:"-" and unexported fields are skipped.
	assert.NotContains(t, schema.Properties, "Temp")
	assert.NotContains(t, schema.Properties, "hidden")

	// Only fields without omitempty are required.
	assert.Equal(t, []string{"city"}, schema.Required)
}

func TestWithInputSchemaOverridesGeneration(t *testing.T) {
	custom := &tool.Schema{Type: "object", Description: "custom"}
	weather := New(
		func(_ context.Context, _ weatherArgs) (string, error) { return "", nil },
		WithName("get_weather"),
		WithInputSchema(custom),
	)

	assert.Same(t, custom, weather.Declaration().InputSchema)
}

func TestRequiresConfirmation(t *testing.T) {
	plain := New(
		func(_ context.Context, _ weatherArgs) (string, error) { return "", nil },
		WithName("plain"),
	)
	gated := New(
		func(_ context.Context, _ weatherArgs) (string, error) { return "", nil },
		WithName("gated"),
		WithRequiresConfirmation(true),
	)

	assert.False(t, plain.RequiresConfirmation())
	assert.True(t, gated.RequiresConfirmation())
}

func TestGenerateSchemaKinds(t *testing.T) {
	type nested struct {
		Tags   []string       `json:"tags"`
		Counts map[string]int `json:"counts"`
		Ratio  float64        `json:"ratio"`
		OK     bool           `json:"ok"`
	}
	schema := New(
		func(_ context.Context, _ nested) (string, error) { return "", nil },
		WithName("kinds"),
	).Declaration().InputSchema

	assert.Equal(t, "array", schema.Properties["tags"].Type)
	assert.Equal(t, "string", schema.Properties["tags"].Items.Type)
	assert.Equal(t, "object", schema.Properties["counts"].Type)
	assert.Equal(t, "number", schema.Properties["ratio"].Type)
	assert.Equal(t, "boolean", schema.Properties["ok"].Type)
}
