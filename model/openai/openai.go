//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package openai adapts the OpenAI Chat Completions API to the model
// contract.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/ensemble-ai/ensemble/log"
	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/tool"
)

const (
	defaultChannelSize = 256

	defaultSchemaName = "response"
)

// Model implements model.Model on top of the OpenAI Chat Completions API.
type Model struct {
	client            openai.Client
	name              string
	channelBufferSize int
	requestOptions    []openaiopt.RequestOption
}

type options struct {
	apiKey            string
	baseURL           string
	channelBufferSize int
	clientOptions     []openaiopt.RequestOption
	requestOptions    []openaiopt.RequestOption
}

// Option configures the OpenAI model adapter.
type Option func(*options)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL overrides the API endpoint, e.g. for compatible gateways.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
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
func WithClientOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) { o.clientOptions = append(o.clientOptions, opts...) }
}

// WithRequestOptions passes extra options to every request.
func WithRequestOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) { o.requestOptions = append(o.requestOptions, opts...) }
}

// New creates an OpenAI model adapter for the named model.
func New(name string, opts ...Option) *Model {
	o := options{channelBufferSize: defaultChannelSize}
	for _, opt := range opts {
		opt(&o)
	}

	var clientOpts []openaiopt.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	clientOpts = append(clientOpts, o.clientOptions...)

	return &Model{
		client:            openai.NewClient(clientOpts...),
		name:              name,
		channelBufferSize: o.channelBufferSize,
		requestOptions:    o.requestOptions,
	}
}

// Info implements model.Model. OpenAI enforces requested output schemas
// natively, so the pipeline streams structured output without buffering.
func (m *Model) Info() model.Info {
	return model.Info{
		ID:                     m.name,
		Provider:               "openai",
		NativeStructuredOutput: true,
	}
}

// Respond implements model.Model.
func (m *Model) Respond(ctx context.Context, req *model.Request) (*model.Response, error) {
	params := m.buildParams(req, false)
	completion, err := m.client.Chat.Completions.New(ctx, params, m.requestOptions...)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}

	resp := &model.Response{ID: completion.ID}
	if len(completion.Choices) > 0 {
		msg := completion.Choices[0].Message
		resp.Content = msg.Content
		for i, tc := range msg.ToolCalls {
			resp.ToolCalls = append(resp.ToolCalls, convertToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments, i))
		}
	}
	resp.Metrics = usageMetrics(completion.Usage)
	return resp, nil
}

// RespondStream implements model.Model.
func (m *Model) RespondStream(ctx context.Context, req *model.Request) (<-chan *model.ResponseEvent, error) {
	params := m.buildParams(req, true)
	ch := make(chan *model.ResponseEvent, m.channelBufferSize)
	go m.stream(ctx, params, ch)
	return ch, nil
}

func (m *Model) stream(ctx context.Context, params openai.ChatCompletionNewParams, ch chan<- *model.ResponseEvent) {
	defer close(ch)

	if !send(ctx, ch, model.NewRequestStartedEvent()) {
		return
	}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params, m.requestOptions...)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			if !send(ctx, ch, model.NewAssistantDeltaEvent(&model.AssistantDelta{Content: content})) {
				return
			}
		}
	}
	if err := stream.Err(); err != nil {
		send(ctx, ch, model.NewErrorEvent(fmt.Errorf("openai stream: %w", err)))
		return
	}

	resp := m.finalResponse(acc)
	send(ctx, ch, model.NewRequestCompletedEvent(resp, resp.Metrics))
}

// finalResponse builds the assembled response from the accumulator.
func (m *Model) finalResponse(acc openai.ChatCompletionAccumulator) *model.Response {
	resp := &model.Response{ID: acc.ID}
	if len(acc.Choices) > 0 {
		msg := acc.Choices[0].Message
		resp.Content = msg.Content
		for i, tc := range msg.ToolCalls {
			// The accumulator yields empty entries when a provider starts
			// tool call indexing above zero.
			if tc.ID == "" && tc.Function.Name == "" {
				continue
			}
			resp.ToolCalls = append(resp.ToolCalls, convertToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments, i))
		}
	}
	resp.Metrics = usageMetrics(acc.Usage)
	return resp
}

// convertToolCall builds a tool call, synthesizing an ID when the provider
// omitted one so results still pair up.
func convertToolCall(id, name, arguments string, index int) model.ToolCall {
	if id == "" {
		id = fmt.Sprintf("auto_call_%d", index)
	}
	return model.ToolCall{
		ID:        id,
		Name:      name,
		Arguments: []byte(arguments),
	}
}

func usageMetrics(usage openai.CompletionUsage) *model.Metrics {
	return &model.Metrics{
		InputTokens:  int(usage.PromptTokens),
		OutputTokens: int(usage.CompletionTokens),
		TotalTokens:  int(usage.TotalTokens),
	}
}

func (m *Model) buildParams(req *model.Request, streaming bool) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: convertMessages(req.Messages),
		Tools:    convertTools(req.Tools),
	}
	if req.Format != nil {
		name := req.Format.Name
		if name == "" {
			name = defaultSchemaName
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: req.Format.Schema,
				},
			},
		}
	}
	if streaming {
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
	}
	return params
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result = append(result, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		case model.RoleAssistant:
			assistant := &openai.ChatCompletionAssistantMessageParam{
				ToolCalls: convertMessageToolCalls(msg.ToolCalls),
			}
			if msg.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(msg.Content),
				}
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		case model.RoleTool:
			result = append(result, openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					Content: openai.ChatCompletionToolMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
					ToolCallID: msg.ToolCallID,
				},
			})
		default:
			result = append(result, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		}
	}
	return result
}

func convertMessageToolCalls(toolCalls []model.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	var result []openai.ChatCompletionMessageToolCallParam
	for _, tc := range toolCalls {
		result = append(result, openai.ChatCompletionMessageToolCallParam{
			ID: tc.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		})
	}
	return result
}

// convertTools builds tool parameters in sorted name order for stable
// requests. Schemas that fail to convert are skipped with an error log
// rather than failing the request.
func convertTools(tools map[string]tool.Tool) []openai.ChatCompletionToolParam {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var result []openai.ChatCompletionToolParam
	for _, name := range names {
		decl := tools[name].Declaration()
		schemaBytes, err := json.Marshal(decl.InputSchema)
		if err != nil {
			log.Errorf("marshal tool schema for %s: %v", decl.Name, err)
			continue
		}
		var parameters shared.FunctionParameters
		if err := json.Unmarshal(schemaBytes, &parameters); err != nil {
			log.Errorf("unmarshal tool schema for %s: %v", decl.Name, err)
			continue
		}
		result = append(result, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        decl.Name,
				Description: openai.String(decl.Description),
				Parameters:  parameters,
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
