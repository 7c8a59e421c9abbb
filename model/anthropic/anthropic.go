//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package anthropic adapts the Anthropic Messages API to the model contract.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/tool"
)

const (
	defaultMaxTokens   = 4096
	defaultChannelSize = 256
)

// Model implements model.Model on top of the Anthropic Messages API.
type Model struct {
	client            anthropic.Client
	name              string
	maxTokens         int64
	temperature       *float64
	channelBufferSize int
	requestOptions    []option.RequestOption
}

type options struct {
	apiKey            string
	baseURL           string
	maxTokens         int64
	temperature       *float64
	channelBufferSize int
	clientOptions     []option.RequestOption
	requestOptions    []option.RequestOption
}

// Option configures the Anthropic model adapter.
type Option func(*options)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *options) { o.temperature = &t }
}

// WithChannelBufferSize sets the event channel buffer.
func WithChannelBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.channelBufferSize = n
		}
	}
}

// WithClientOptions passes extra options to the underlying client.
func WithClientOptions(opts ...option.RequestOption) Option {
	return func(o *options) { o.clientOptions = append(o.clientOptions, opts...) }
}

// WithRequestOptions passes extra options to every request.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(o *options) { o.requestOptions = append(o.requestOptions, opts...) }
}

// New creates an Anthropic model adapter for the named model.
func New(name string, opts ...Option) *Model {
	o := options{
		maxTokens:         defaultMaxTokens,
		channelBufferSize: defaultChannelSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var clientOpts []option.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(o.baseURL))
	}
	clientOpts = append(clientOpts, o.clientOptions...)

	return &Model{
		client:            anthropic.NewClient(clientOpts...),
		name:              name,
		maxTokens:         o.maxTokens,
		temperature:       o.temperature,
		channelBufferSize: o.channelBufferSize,
		requestOptions:    o.requestOptions,
	}
}

// Info implements model.Model. Anthropic does not enforce output schemas, so
// structured output is requested through the prompt and parsed downstream.
func (m *Model) Info() model.Info {
	return model.Info{
		ID:       m.name,
		Provider: "anthropic",
	}
}

// Respond implements model.Model.
func (m *Model) Respond(ctx context.Context, req *model.Request) (*model.Response, error) {
	params := m.buildParams(req)
	msg, err := m.client.Messages.New(ctx, params, m.requestOptions...)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	return convertMessage(msg), nil
}

// RespondStream implements model.Model.
func (m *Model) RespondStream(ctx context.Context, req *model.Request) (<-chan *model.ResponseEvent, error) {
	params := m.buildParams(req)
	ch := make(chan *model.ResponseEvent, m.channelBufferSize)
	go m.stream(ctx, params, ch)
	return ch, nil
}

func (m *Model) stream(ctx context.Context, params anthropic.MessageNewParams, ch chan<- *model.ResponseEvent) {
	defer close(ch)

	if !send(ctx, ch, model.NewRequestStartedEvent()) {
		return
	}

	stream := m.client.Messages.NewStreaming(ctx, params, m.requestOptions...)
	defer stream.Close()

	acc := anthropic.Message{}
	for stream.Next() {
		chunk := stream.Current()
		if err := acc.Accumulate(chunk); err != nil {
			send(ctx, ch, model.NewErrorEvent(fmt.Errorf("anthropic stream: %w", err)))
			return
		}

		delta := deltaFromChunk(chunk)
		if delta == nil {
			continue
		}
		if !send(ctx, ch, model.NewAssistantDeltaEvent(delta)) {
			return
		}
	}
	if err := stream.Err(); err != nil {
		send(ctx, ch, model.NewErrorEvent(fmt.Errorf("anthropic stream: %w", err)))
		return
	}

	resp := convertMessage(&acc)
	send(ctx, ch, model.NewRequestCompletedEvent(resp, resp.Metrics))
}

// deltaFromChunk extracts the visible delta of one stream event, or nil for
// events that carry none.
func deltaFromChunk(chunk anthropic.MessageStreamEventUnion) *model.AssistantDelta {
	event, ok := chunk.AsAny().(anthropic.ContentBlockDeltaEvent)
	if !ok {
		return nil
	}
	switch delta := event.Delta.AsAny().(type) {
	case anthropic.TextDelta:
		if delta.Text == "" {
			return nil
		}
		return &model.AssistantDelta{Content: delta.Text}
	case anthropic.ThinkingDelta:
		if delta.Thinking == "" {
			return nil
		}
		return &model.AssistantDelta{ReasoningContent: delta.Thinking}
	default:
		return nil
	}
}

// convertMessage aggregates the content blocks of a final message into a
// response.
func convertMessage(msg *anthropic.Message) *model.Response {
	resp := &model.Response{ID: msg.ID}
	for _, content := range msg.Content {
		switch block := content.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += block.Text
		case anthropic.ThinkingBlock:
			resp.ReasoningContent += block.Thinking
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: []byte(block.Input),
			})
		}
	}
	resp.Metrics = &model.Metrics{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return resp
}

func (m *Model) buildParams(req *model.Request) anthropic.MessageNewParams {
	messages, system := convertMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.name),
		Messages:  messages,
		MaxTokens: m.maxTokens,
		Tools:     convertTools(req.Tools),
	}
	if m.temperature != nil {
		params.Temperature = anthropic.Float(*m.temperature)
	}
	if req.Format != nil {
		system = append(system, formatInstruction(req.Format))
	}
	if len(system) > 0 {
		params.System = system
	}
	return params
}

// formatInstruction asks for structured output through the system prompt;
// the pipeline buffers and parses the reply downstream.
func formatInstruction(format *model.ResponseFormat) anthropic.TextBlockParam {
	text := "Respond with a single JSON object and nothing else."
	if raw, err := json.Marshal(format.Schema); err == nil && len(format.Schema) > 0 {
		text += " It must conform to this JSON schema: " + string(raw)
	}
	return anthropic.TextBlockParam{Text: text}
}

// convertMessages builds Anthropic message parameters and system blocks.
// Consecutive tool results merge into a single user message so parallel tool
// invocations round-trip correctly.
func convertMessages(messages []model.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var (
		conversation []anthropic.MessageParam
		system       []anthropic.TextBlockParam
		toolResults  []anthropic.ContentBlockParamUnion
	)
	flushToolResults := func() {
		if len(toolResults) == 0 {
			return
		}
		conversation = append(conversation, anthropic.NewUserMessage(toolResults...))
		toolResults = nil
	}

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			if msg.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: msg.Content})
			}
		case model.RoleTool:
			toolResults = append(toolResults,
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		case model.RoleAssistant:
			flushToolResults()
			if blocks := assistantBlocks(msg); len(blocks) > 0 {
				conversation = append(conversation, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			flushToolResults()
			if msg.Content != "" {
				conversation = append(conversation,
					anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}
	flushToolResults()
	return conversation, system
}

func assistantBlocks(msg model.Message) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	if msg.Content != "" {
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		blocks = append(blocks, anthropic.NewToolUseBlock(
			tc.ID, decodeToolArguments(tc.Arguments), tc.Name))
	}
	return blocks
}

// decodeToolArguments parses JSON bytes into any, returning an empty object
// on failure.
func decodeToolArguments(args []byte) any {
	if len(args) == 0 {
		return map[string]any{}
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return map[string]any{}
	}
	return decoded
}

// convertTools builds tool parameters in sorted name order for stable
// requests.
func convertTools(tools map[string]tool.Tool) []anthropic.ToolUnionParam {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var result []anthropic.ToolUnionParam
	for _, name := range names {
		decl := tools[name].Declaration()
		schema := anthropic.ToolInputSchemaParam{}
		if decl.InputSchema != nil {
			schema.Type = constant.Object(decl.InputSchema.Type)
			schema.Properties = decl.InputSchema.Properties
			schema.Required = decl.InputSchema.Required
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        decl.Name,
				Description: anthropic.String(decl.Description),
				InputSchema: schema,
			},
		})
	}
	return result
}

func send(ctx context.Context, ch chan<- *model.ResponseEvent, ev *model.ResponseEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
