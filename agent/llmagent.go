//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ensemble-ai/ensemble/flow"
	"github.com/ensemble-ai/ensemble/knowledge"
	knowledgetool "github.com/ensemble-ai/ensemble/knowledge/tool"
	"github.com/ensemble-ai/ensemble/log"
	"github.com/ensemble-ai/ensemble/memory"
	memorytool "github.com/ensemble-ai/ensemble/memory/tool"
	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/reasoning"
	"github.com/ensemble-ai/ensemble/run"
	"github.com/ensemble-ai/ensemble/session"
	"github.com/ensemble-ai/ensemble/telemetry"
	"github.com/ensemble-ai/ensemble/tool"
)

const defaultStreamBuffer = 64

const memoryContextHeader = "\n\nWhat you remember about the user:\n"

// LLMAgent is a model-backed agent. It builds the model request from the
// session history and the task, runs the request loop, and persists the
// resulting run into the session.
type LLMAgent struct {
	id           string
	name         string
	description  string
	instructions string

	model    model.Model
	reasoner *reasoning.Orchestrator
	tools    []tool.Tool

	sessions  session.Service
	memories  memory.Service
	knowledge *knowledge.Capabilities

	format        *model.ResponseFormat
	compressor    *flow.Compressor
	maxIterations int

	storeMedia       bool
	storeToolResults bool
	storeHistory     bool
}

// Option configures an LLMAgent.
type Option func(*LLMAgent)

// WithDescription sets the description shown to delegating teams.
func WithDescription(desc string) Option {
	return func(a *LLMAgent) { a.description = desc }
}

// WithInstructions sets the system instructions.
func WithInstructions(instructions string) Option {
	return func(a *LLMAgent) { a.instructions = instructions }
}

// WithTools registers tools available to the model.
func WithTools(tools ...tool.Tool) Option {
	return func(a *LLMAgent) { a.tools = append(a.tools, tools...) }
}

// WithSessionService sets the session backend. Without one, runs execute in
// ephemeral sessions that are not persisted.
func WithSessionService(svc session.Service) Option {
	return func(a *LLMAgent) { a.sessions = svc }
}

// WithMemoryService enables user memories: memory tools are registered and
// stored memories are surfaced in the system prompt.
func WithMemoryService(svc memory.Service) Option {
	return func(a *LLMAgent) { a.memories = svc }
}

// WithKnowledge attaches a knowledge base and registers its search tools.
func WithKnowledge(base knowledge.Base) Option {
	return func(a *LLMAgent) {
		caps := knowledge.Resolve(base)
		a.knowledge = &caps
	}
}

// WithResponseFormat requests structured final output.
func WithResponseFormat(format *model.ResponseFormat) Option {
	return func(a *LLMAgent) { a.format = format }
}

// WithReasoningModel enables the reasoning pre-pass on a dedicated model.
func WithReasoningModel(m model.Model, opts ...reasoning.Option) Option {
	return func(a *LLMAgent) { a.reasoner = reasoning.NewOrchestrator(m, opts...) }
}

// WithMaxIterations caps the number of model requests per run.
func WithMaxIterations(n int) Option {
	return func(a *LLMAgent) { a.maxIterations = n }
}

// WithToolResultCompression bounds tool results to the given token limit
// before they re-enter the model context.
func WithToolResultCompression(limit int) Option {
	return func(a *LLMAgent) { a.compressor = flow.NewCompressor(limit) }
}

// WithStoreMedia controls whether media survives run persistence.
func WithStoreMedia(store bool) Option {
	return func(a *LLMAgent) { a.storeMedia = store }
}

// WithStoreToolResults controls whether tool results survive run persistence.
func WithStoreToolResults(store bool) Option {
	return func(a *LLMAgent) { a.storeToolResults = store }
}

// WithStoreHistory controls whether run messages survive run persistence.
func WithStoreHistory(store bool) Option {
	return func(a *LLMAgent) { a.storeHistory = store }
}

// New creates an agent around a model.
func New(name string, m model.Model, opts ...Option) *LLMAgent {
	a := &LLMAgent{
		id:               uuid.New().String(),
		name:             name,
		model:            m,
		storeMedia:       true,
		storeToolResults: true,
		storeHistory:     true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Agent.
func (a *LLMAgent) Name() string { return a.name }

// Description implements Agent.
func (a *LLMAgent) Description() string { return a.description }

// Members implements Agent. A leaf agent has no members.
func (a *LLMAgent) Members() []Agent { return nil }

// Run implements Agent.
func (a *LLMAgent) Run(ctx context.Context, inp *Input) (*run.Record, error) {
	s, err := a.RunStream(ctx, inp)
	if err != nil {
		return nil, err
	}
	return Drain(s)
}

// RunStream implements Agent.
func (a *LLMAgent) RunStream(ctx context.Context, inp *Input) (*Stream, error) {
	if inp == nil {
		return nil, ErrNilInput
	}
	if a.model == nil {
		return nil, flow.ErrNoModel
	}
	stream, producer := NewStream(defaultStreamBuffer)
	go a.execute(ctx, inp, producer)
	return stream, nil
}

// Continue implements Agent.
func (a *LLMAgent) Continue(ctx context.Context, inp *Input) (*run.Record, error) {
	s, err := a.ContinueStream(ctx, inp)
	if err != nil {
		return nil, err
	}
	return Drain(s)
}

// ContinueStream implements Agent. It locates the paused run in the session,
// applies the supplied decisions, and resumes the request loop.
func (a *LLMAgent) ContinueStream(ctx context.Context, inp *Input) (*Stream, error) {
	if inp == nil {
		return nil, ErrNilInput
	}
	if a.model == nil {
		return nil, flow.ErrNoModel
	}

	sess, err := a.loadSession(ctx, inp)
	if err != nil {
		return nil, err
	}
	rec := sess.LastRun()
	if rec == nil || !rec.IsPaused() {
		return nil, ErrNotPaused
	}

	resolved, err := applyDecisions(rec, inp.Decisions)
	if err != nil {
		return nil, err
	}
	// The paused run leaves the session run list; it is re-appended with
	// its messages when the resumed leg finishes.
	sess.Runs = sess.Runs[:len(sess.Runs)-1]

	stream, producer := NewStream(defaultStreamBuffer)
	go a.resume(ctx, inp, sess, rec, resolved, producer)
	return stream, nil
}

func (a *LLMAgent) execute(ctx context.Context, inp *Input, p *StreamProducer) {
	sess, err := a.loadSession(ctx, inp)
	if err != nil {
		p.Close(nil, err)
		return
	}

	rec := run.NewRecord(a.id, a.name, sess.ID)
	rec.UserID = inp.UserID
	rec.ParentRunID = inp.ParentRunID
	rec.Input = inp.Task

	ctx, span := telemetry.StartRunSpan(ctx, a.name, rec.RunID)
	defer span.End()

	emit := func(ev *run.Event) { p.Emit(ctx, ev) }

	if a.reasoner != nil {
		a.reasoner.Run(ctx, rec, emit)
	}

	req := a.buildRequest(ctx, sess, inp)
	rec.AddMessage(model.NewUserMessage(inp.Task))

	adapter := a.newAdapter()
	events, err := adapter.Run(ctx, req)
	if err != nil {
		p.Close(rec, err)
		return
	}
	a.consume(ctx, events, rec, sess, emit, p)
}

func (a *LLMAgent) resume(ctx context.Context, inp *Input, sess *session.Session, rec *run.Record, resolved []*tool.Execution, p *StreamProducer) {
	ctx, span := telemetry.StartRunSpan(ctx, a.name, rec.RunID)
	defer span.End()

	emit := func(ev *run.Event) { p.Emit(ctx, ev) }

	req := &model.Request{
		Messages: a.baseMessages(ctx, sess, inp),
		Tools:    a.buildTools(sess, inp),
		Format:   a.format,
	}
	// The paused leg's messages belong to this run: they re-enter the
	// request and re-seed the record so finalization keeps them.
	req.Messages = append(req.Messages, rec.Messages...)
	rec.SeedMessages()

	adapter := a.newAdapter()
	events, err := adapter.Resume(ctx, req, resolved)
	if err != nil {
		p.Close(rec, err)
		return
	}
	a.consume(ctx, events, rec, sess, emit, p)
}

// consume folds the adapter stream into the record, persists the run and
// finishes the stream.
func (a *LLMAgent) consume(ctx context.Context, events <-chan *model.ResponseEvent, rec *run.Record, sess *session.Session, emit func(*run.Event), p *StreamProducer) {
	asm := flow.NewAssembler(rec, a.format, a.model.Info().NativeStructuredOutput)

	var runErr error
	for ev := range events {
		if ev.Err != nil {
			runErr = ev.Err
			continue
		}
		asm.Fold(ev, emit)
	}
	asm.Close(emit)

	rec.SessionState = sess.State.Clone()

	if runErr == nil {
		a.persist(ctx, sess, rec)
	}
	p.Close(rec, runErr)
}

func (a *LLMAgent) newAdapter() *flow.Adapter {
	var opts []flow.AdapterOption
	if a.compressor != nil {
		opts = append(opts, flow.WithCompressor(a.compressor))
	}
	if a.maxIterations > 0 {
		opts = append(opts, flow.WithMaxIterations(a.maxIterations))
	}
	return flow.NewAdapter(a.model, opts...)
}

// loadSession fetches or creates the session and seeds it with the input
// state. Without a session service the run executes in an ephemeral session.
func (a *LLMAgent) loadSession(ctx context.Context, inp *Input) (*session.Session, error) {
	id := inp.SessionID
	if id == "" {
		id = uuid.New().String()
	}
	if a.sessions == nil || inp.SessionID == "" {
		sess := session.New(id, session.TypeAgent, inp.UserID)
		sess.State = session.Merge(sess.State, inp.State)
		return sess, nil
	}

	key := session.Key{ID: id, Type: session.TypeAgent}
	sess, err := a.sessions.GetSession(ctx, key)
	if err != nil {
		if err != session.ErrSessionNotFound {
			return nil, err
		}
		sess = session.New(id, session.TypeAgent, inp.UserID)
	}
	sess.State = session.Merge(sess.State, inp.State)
	return sess, nil
}

func (a *LLMAgent) buildRequest(ctx context.Context, sess *session.Session, inp *Input) *model.Request {
	messages := a.baseMessages(ctx, sess, inp)
	messages = append(messages, model.NewUserMessage(inp.Task))
	return &model.Request{
		Messages: messages,
		Tools:    a.buildTools(sess, inp),
		Format:   a.format,
	}
}

// baseMessages builds the system message and the replayed session history.
func (a *LLMAgent) baseMessages(ctx context.Context, sess *session.Session, inp *Input) []model.Message {
	var messages []model.Message
	if system := a.systemPrompt(ctx, inp.UserID); system != "" {
		messages = append(messages, model.NewSystemMessage(system))
	}
	for _, msg := range sess.Messages {
		msg.FromHistory = true
		messages = append(messages, msg)
	}
	return messages
}

// systemPrompt combines the instructions with the user's stored memories.
func (a *LLMAgent) systemPrompt(ctx context.Context, userID string) string {
	prompt := a.instructions
	if a.memories == nil || userID == "" {
		return prompt
	}
	entries, err := a.memories.ReadMemories(ctx, userID, 10)
	if err != nil {
		log.Warnf("reading user memories failed, continuing without them: %v", err)
		return prompt
	}
	if len(entries) == 0 {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString(memoryContextHeader)
	for _, e := range entries {
		sb.WriteString("- ")
		sb.WriteString(e.Memory)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (a *LLMAgent) buildTools(sess *session.Session, inp *Input) map[string]tool.Tool {
	tools := make(map[string]tool.Tool, len(a.tools))
	for _, t := range a.tools {
		tools[t.Declaration().Name] = t
	}
	if a.memories != nil {
		cfg := memorytool.Config{
			Memories: a.memories,
			Sessions: a.sessions,
			Current:  sess.Key(),
			UserID:   inp.UserID,
		}
		register(tools, memorytool.NewUpdateUserMemoryTool(cfg))
		if a.sessions != nil {
			register(tools, memorytool.NewGetChatHistoryTool(cfg))
			register(tools, memorytool.NewGetPreviousSessionMessagesTool(cfg))
		}
	}
	if a.knowledge != nil {
		register(tools, knowledgetool.NewSearchTool(*a.knowledge))
		register(tools, knowledgetool.NewSearchLearningsTool(*a.knowledge))
		if a.knowledge.Inserter != nil {
			register(tools, knowledgetool.NewSaveLearningTool(*a.knowledge))
		}
	}
	return tools
}

func register(tools map[string]tool.Tool, t tool.Tool) {
	tools[t.Declaration().Name] = t
}

// persist scrubs the record per the storage flags and saves the session.
// Paused runs are stored without their messages; the messages join the
// session history when the resumed run completes.
func (a *LLMAgent) persist(ctx context.Context, sess *session.Session, rec *run.Record) {
	rec.Scrub(a.storeMedia, a.storeToolResults, a.storeHistory)
	if rec.IsPaused() {
		sess.Runs = append(sess.Runs, rec)
		sess.UpdatedAt = time.Now()
	} else {
		sess.AppendRun(rec)
	}
	if a.sessions == nil {
		return
	}
	if err := a.sessions.SaveSession(ctx, sess); err != nil {
		log.Errorf("saving session %s failed: %v", sess.ID, err)
	}
}

// applyDecisions resolves the record's pending requirements and returns the
// executions to replay. Every pending requirement must receive a decision.
func applyDecisions(rec *run.Record, decisions map[string]bool) ([]*tool.Execution, error) {
	var resolved []*tool.Execution
	for i := range rec.Requirements {
		req := &rec.Requirements[i]
		if req.Resolved() {
			continue
		}
		decision, ok := decisions[req.ToolCallID]
		if !ok {
			return nil, ErrUnresolvedRequirements
		}
		d := decision
		req.Confirmed = &d
		if exec := rec.FindToolExecution(req.ToolCallID); exec != nil {
			exec.Confirmed = &d
			resolved = append(resolved, exec)
		}
	}
	return resolved, nil
}
