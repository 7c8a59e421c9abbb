//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package anthropic

import (
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-ai/ensemble/model"
)

func TestConvertMessagesExtractsSystem(t *testing.T) {
	conversation, system := convertMessages([]model.Message{
		model.NewSystemMessage("be helpful"),
		model.NewUserMessage("hi"),
	})

	require.Len(t, system, 1)
	assert.Equal(t, "be helpful", system[0].Text)
	require.Len(t, conversation, 1)
	assert.Equal(t, anthropic.MessageParamRoleUser, conversation[0].Role)
}

func TestConvertMessagesMergesToolResults(t *testing.T) {
	// Two consecutive tool results belong to one user message; Anthropic
	// rejects them otherwise.
	conversation, _ := convertMessages([]model.Message{
		model.NewUserMessage("do both"),
		{
			Role: model.RoleAssistant,
			ToolCalls: []model.ToolCall{
				{ID: "call-1", Name: "first", Arguments: []byte(`{}`)},
				{ID: "call-2", Name: "second", Arguments: []byte(`{}`)},
			},
		},
		model.NewToolMessage("call-1", "first", "one"),
		model.NewToolMessage("call-2", "second", "two"),
	})

	require.Len(t, conversation, 3)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, conversation[1].Role)
	assert.Equal(t, anthropic.MessageParamRoleUser, conversation[2].Role)
	require.Len(t, conversation[2].Content, 2)
	require.NotNil(t, conversation[2].Content[0].OfToolResult)
	assert.Equal(t, "call-1", conversation[2].Content[0].OfToolResult.ToolUseID)
}

func TestAssistantBlocks(t *testing.T) {
	blocks := assistantBlocks(model.Message{
		Role:    model.RoleAssistant,
		Content: "checking",
		ToolCalls: []model.ToolCall{
			{ID: "call-1", Name: "lookup", Arguments: []byte(`{"q":"go"}`)},
		},
	})

	require.Len(t, blocks, 2)
	require.NotNil(t, blocks[0].OfText)
	require.NotNil(t, blocks[1].OfToolUse)
	assert.Equal(t, "lookup", blocks[1].OfToolUse.Name)
}

func TestDecodeToolArguments(t *testing.T) {
	decoded := decodeToolArguments([]byte(`{"q":"go"}`))
	assert.Equal(t, map[string]any{"q": "go"}, decoded)

	// Empty and malformed arguments degrade to an empty object.
	assert.Equal(t, map[string]any{}, decodeToolArguments(nil))
	assert.Equal(t, map[string]any{}, decodeToolArguments([]byte(`{broken`)))
}

func TestFormatInstructionIncludesSchema(t *testing.T) {
	block := formatInstruction(&model.ResponseFormat{
		Name:   "weather",
		Schema: map[string]any{"type": "object"},
	})
	assert.Contains(t, block.Text, "single JSON object")
	assert.Contains(t, block.Text, `"type":"object"`)
}

func TestInfoHasNoNativeStructuredOutput(t *testing.T) {
	m := New("claude-sonnet-4-5")
	info := m.Info()
	assert.Equal(t, "anthropic", info.Provider)
	assert.False(t, info.NativeStructuredOutput)
}
