//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package openai

import (
	"testing"

	openai "github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/tool"
)

func TestConvertToolCall(t *testing.T) {
	tc := convertToolCall("call-1", "get_weather", `{"city":"Paris"}`, 0)
	assert.Equal(t, "call-1", tc.ID)
	assert.Equal(t, "get_weather", tc.Name)
	assert.Equal(t, `{"city":"Paris"}`, string(tc.Arguments))

	// A missing ID is synthesized from the index so results still pair up.
	tc = convertToolCall("", "get_weather", "{}", 2)
	assert.Equal(t, "auto_call_2", tc.ID)
}

func TestUsageMetrics(t *testing.T) {
	metrics := usageMetrics(openai.CompletionUsage{
		PromptTokens:     12,
		CompletionTokens: 5,
		TotalTokens:      17,
	})
	assert.Equal(t, 12, metrics.InputTokens)
	assert.Equal(t, 5, metrics.OutputTokens)
	assert.Equal(t, 17, metrics.TotalTokens)
}

func TestConvertMessagesMapsRoles(t *testing.T) {
	msgs := convertMessages([]model.Message{
		model.NewSystemMessage("be helpful"),
		model.NewUserMessage("hi"),
		{
			Role:    model.RoleAssistant,
			Content: "checking",
			ToolCalls: []model.ToolCall{
				{ID: "call-1", Name: "lookup", Arguments: []byte(`{}`)},
			},
		},
		model.NewToolMessage("call-1", "lookup", "found it"),
	})
	require.Len(t, msgs, 4)

	require.NotNil(t, msgs[0].OfSystem)
	require.NotNil(t, msgs[1].OfUser)

	assistant := msgs[2].OfAssistant
	require.NotNil(t, assistant)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "call-1", assistant.ToolCalls[0].ID)
	assert.Equal(t, "lookup", assistant.ToolCalls[0].Function.Name)

	toolMsg := msgs[3].OfTool
	require.NotNil(t, toolMsg)
	assert.Equal(t, "call-1", toolMsg.ToolCallID)
}

type declTool struct {
	decl *tool.Declaration
}

func (d declTool) Declaration() *tool.Declaration { return d.decl }

func TestConvertToolsSortedByName(t *testing.T) {
	tools := map[string]tool.Tool{
		"zeta": declTool{decl: &tool.Declaration{
			Name:        "zeta",
			Description: "last",
			InputSchema: &tool.Schema{Type: "object"},
		}},
		"alpha": declTool{decl: &tool.Declaration{
			Name:        "alpha",
			Description: "first",
			InputSchema: &tool.Schema{
				Type: "object",
				Properties: map[string]*tool.Schema{
					"city": {Type: "string", Description: "City name"},
				},
				Required: []string{"city"},
			},
		}},
	}

	params := convertTools(tools)
	require.Len(t, params, 2)
	assert.Equal(t, "alpha", params[0].Function.Name)
	assert.Equal(t, "zeta", params[1].Function.Name)

	props, ok := params[0].Function.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
}

func TestInfoReportsNativeStructuredOutput(t *testing.T) {
	m := New("gpt-4.1-mini")
	info := m.Info()
	assert.Equal(t, "gpt-4.1-mini", info.ID)
	assert.Equal(t, "openai", info.Provider)
	assert.True(t, info.NativeStructuredOutput)
}
