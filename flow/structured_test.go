//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/run"
)

func TestParseStructuredNamedSchema(t *testing.T) {
	format := &model.ResponseFormat{Name: "weather"}

	content, contentType := parseStructured(`{"temp": 21, "unit": "C"}`, format)

	assert.Equal(t, "weather", contentType)
	assert.Equal(t, map[string]any{"temp": float64(21), "unit": "C"}, content)
}

func TestParseStructuredAsMap(t *testing.T) {
	format := &model.ResponseFormat{Name: "weather", AsMap: true}

	content, contentType := parseStructured(`{"temp": 21}`, format)

	assert.Equal(t, run.ContentTypeMap, contentType)
	assert.Equal(t, map[string]any{"temp": float64(21)}, content)
}

func TestParseStructuredUnnamedFormat(t *testing.T) {
	content, contentType := parseStructured(`{"a": 1}`, &model.ResponseFormat{})

	assert.Equal(t, run.ContentTypeMap, contentType)
	assert.Equal(t, map[string]any{"a": float64(1)}, content)
}

func TestParseStructuredStripsCodeFence(t *testing.T) {
	text := "```json\n{\"temp\": 21}\n```"

	content, contentType := parseStructured(text, &model.ResponseFormat{Name: "weather"})

	assert.Equal(t, "weather", contentType)
	assert.Equal(t, map[string]any{"temp": float64(21)}, content)
}

func TestParseStructuredRepairsNearJSON(t *testing.T) {
	// Trailing comma and single quotes, the usual model slop.
	content, contentType := parseStructured(`{'temp': 21,}`, &model.ResponseFormat{Name: "weather"})

	assert.Equal(t, "weather", contentType)
	assert.Equal(t, map[string]any{"temp": float64(21)}, content)
}

func TestParseStructuredKeepsRawTextOnFailure(t *testing.T) {
	content, contentType := parseStructured("It is sunny today.", &model.ResponseFormat{Name: "weather"})

	assert.Equal(t, run.ContentTypeText, contentType)
	assert.Equal(t, "It is sunny today.", content)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced no language", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  {\"a\": 1}  ", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}
