//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package team implements a team of agents led by a model that delegates
// tasks to members through tools.
package team

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ensemble-ai/ensemble/agent"
	"github.com/ensemble-ai/ensemble/flow"
	"github.com/ensemble-ai/ensemble/log"
	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/reasoning"
	"github.com/ensemble-ai/ensemble/run"
	"github.com/ensemble-ai/ensemble/session"
	"github.com/ensemble-ai/ensemble/telemetry"
	"github.com/ensemble-ai/ensemble/tool"
)

const defaultStreamBuffer = 64

// Team is an agent whose model coordinates member agents through delegation
// tools. Members may themselves be teams.
type Team struct {
	id           string
	name         string
	description  string
	instructions string

	model    model.Model
	reasoner *reasoning.Orchestrator
	members  []agent.Agent
	tools    []tool.Tool

	sessions session.Service

	format        *model.ResponseFormat
	compressor    *flow.Compressor
	maxIterations int

	// concurrency is the broadcast worker pool size. Zero runs broadcasts
	// sequentially in member order.
	concurrency int

	storeMedia       bool
	storeToolResults bool
	storeHistory     bool
	storeMemberRuns  bool
}

// Option configures a Team.
type Option func(*Team)

// WithDescription sets the description shown to delegating parent teams.
func WithDescription(desc string) Option {
	return func(t *Team) { t.description = desc }
}

// WithInstructions sets the coordination instructions.
func WithInstructions(instructions string) Option {
	return func(t *Team) { t.instructions = instructions }
}

// WithTools registers tools available to the coordinating model in addition
// to the delegation tools.
func WithTools(tools ...tool.Tool) Option {
	return func(t *Team) { t.tools = append(t.tools, tools...) }
}

// WithSessionService sets the session backend.
func WithSessionService(svc session.Service) Option {
	return func(t *Team) { t.sessions = svc }
}

// WithResponseFormat requests structured final output.
func WithResponseFormat(format *model.ResponseFormat) Option {
	return func(t *Team) { t.format = format }
}

// WithReasoningModel enables the reasoning pre-pass on a dedicated model.
func WithReasoningModel(m model.Model, opts ...reasoning.Option) Option {
	return func(t *Team) { t.reasoner = reasoning.NewOrchestrator(m, opts...) }
}

// WithMaxIterations caps the number of model requests per run.
func WithMaxIterations(n int) Option {
	return func(t *Team) { t.maxIterations = n }
}

// WithToolResultCompression bounds tool results to the given token limit.
func WithToolResultCompression(limit int) Option {
	return func(t *Team) { t.compressor = flow.NewCompressor(limit) }
}

// WithConcurrentBroadcast runs broadcast delegations on a worker pool of the
// given size. Broadcast results then arrive in completion order rather than
// member order.
func WithConcurrentBroadcast(poolSize int) Option {
	return func(t *Team) {
		if poolSize > 0 {
			t.concurrency = poolSize
		}
	}
}

// WithStoreMedia controls whether media survives run persistence.
func WithStoreMedia(store bool) Option {
	return func(t *Team) { t.storeMedia = store }
}

// WithStoreToolResults controls whether tool results survive run persistence.
func WithStoreToolResults(store bool) Option {
	return func(t *Team) { t.storeToolResults = store }
}

// WithStoreHistory controls whether run messages survive run persistence.
func WithStoreHistory(store bool) Option {
	return func(t *Team) { t.storeHistory = store }
}

// WithStoreMemberRuns controls whether member run records are attached to
// the persisted team run.
func WithStoreMemberRuns(store bool) Option {
	return func(t *Team) { t.storeMemberRuns = store }
}

// New creates a team around a coordinating model and its members.
func New(name string, m model.Model, members []agent.Agent, opts ...Option) *Team {
	t := &Team{
		id:               uuid.New().String(),
		name:             name,
		model:            m,
		members:          members,
		storeMedia:       true,
		storeToolResults: true,
		storeHistory:     true,
		storeMemberRuns:  true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements agent.Agent.
func (t *Team) Name() string { return t.name }

// Description implements agent.Agent.
func (t *Team) Description() string { return t.description }

// Members implements agent.Agent.
func (t *Team) Members() []agent.Agent { return t.members }

// Run implements agent.Agent.
func (t *Team) Run(ctx context.Context, inp *agent.Input) (*run.Record, error) {
	s, err := t.RunStream(ctx, inp)
	if err != nil {
		return nil, err
	}
	return agent.Drain(s)
}

// RunStream implements agent.Agent.
func (t *Team) RunStream(ctx context.Context, inp *agent.Input) (*agent.Stream, error) {
	if inp == nil {
		return nil, agent.ErrNilInput
	}
	if t.model == nil {
		return nil, flow.ErrNoModel
	}
	stream, producer := agent.NewStream(defaultStreamBuffer)
	go t.execute(ctx, inp, producer)
	return stream, nil
}

// Continue implements agent.Agent.
func (t *Team) Continue(ctx context.Context, inp *agent.Input) (*run.Record, error) {
	s, err := t.ContinueStream(ctx, inp)
	if err != nil {
		return nil, err
	}
	return agent.Drain(s)
}

// ContinueStream implements agent.Agent. Decisions for requirements that
// bubbled up from a member run are routed to that member's own Continue;
// decisions for the team's own paused tools replay through the request loop.
func (t *Team) ContinueStream(ctx context.Context, inp *agent.Input) (*agent.Stream, error) {
	if inp == nil {
		return nil, agent.ErrNilInput
	}
	if t.model == nil {
		return nil, flow.ErrNoModel
	}

	sess, err := t.loadSession(ctx, inp)
	if err != nil {
		return nil, err
	}
	rec := sess.LastRun()
	if rec == nil || !rec.IsPaused() {
		return nil, agent.ErrNotPaused
	}
	sess.Runs = sess.Runs[:len(sess.Runs)-1]

	stream, producer := agent.NewStream(defaultStreamBuffer)
	go t.resume(ctx, inp, sess, rec, producer)
	return stream, nil
}

func (t *Team) execute(ctx context.Context, inp *agent.Input, p *agent.StreamProducer) {
	sess, err := t.loadSession(ctx, inp)
	if err != nil {
		p.Close(nil, err)
		return
	}

	rec := run.NewRecord(t.id, t.name, sess.ID)
	rec.UserID = inp.UserID
	rec.ParentRunID = inp.ParentRunID
	rec.Input = inp.Task

	ctx, span := telemetry.StartRunSpan(ctx, t.name, rec.RunID)
	defer span.End()

	emit := func(ev *run.Event) { p.Emit(ctx, ev) }

	if t.reasoner != nil {
		t.reasoner.Run(ctx, rec, emit)
	}

	dctx := newDelegationContext(t, inp, sess.State.Clone(), rec.RunID)

	req := &model.Request{
		Messages: append(t.baseMessages(sess), model.NewUserMessage(inp.Task)),
		Tools:    t.buildTools(dctx),
		Format:   t.format,
	}
	rec.AddMessage(model.NewUserMessage(inp.Task))

	events, err := t.newAdapter().Run(ctx, req)
	if err != nil {
		p.Close(rec, err)
		return
	}
	t.consume(ctx, events, rec, sess, dctx, emit, p)
}

func (t *Team) resume(ctx context.Context, inp *agent.Input, sess *session.Session, rec *run.Record, p *agent.StreamProducer) {
	ctx, span := telemetry.StartRunSpan(ctx, t.name, rec.RunID)
	defer span.End()

	emit := func(ev *run.Event) { p.Emit(ctx, ev) }

	dctx := newDelegationContext(t, inp, sess.State.Clone(), rec.RunID)

	memberResults, ownResolved, err := t.applyDecisions(ctx, inp, rec, dctx)
	if err != nil {
		p.Close(rec, err)
		return
	}

	req := &model.Request{
		Messages: t.baseMessages(sess),
		Tools:    t.buildTools(dctx),
		Format:   t.format,
	}
	req.Messages = append(req.Messages, rec.Messages...)
	rec.SeedMessages()
	if memberResults != "" {
		notice := model.NewUserMessage(memberResults)
		req.Messages = append(req.Messages, notice)
		rec.AddMessage(notice)
	}

	events, err := t.newAdapter().Resume(ctx, req, ownResolved)
	if err != nil {
		p.Close(rec, err)
		return
	}
	t.consume(ctx, events, rec, sess, dctx, emit, p)
}

// consume folds the adapter stream into the team record, attaches the
// delegation outcomes, persists the run and finishes the stream.
func (t *Team) consume(ctx context.Context, events <-chan *model.ResponseEvent, rec *run.Record, sess *session.Session, dctx *delegationContext, emit func(*run.Event), p *agent.StreamProducer) {
	asm := flow.NewAssembler(rec, t.format, t.model.Info().NativeStructuredOutput)

	var runErr error
	for ev := range events {
		if ev.Err != nil {
			runErr = ev.Err
			continue
		}
		asm.Fold(ev, emit)
	}
	asm.Close(emit)

	dctx.attach(rec)
	sess.State = dctx.state()
	rec.SessionState = sess.State.Clone()

	if runErr == nil {
		t.persist(ctx, sess, rec)
	}
	p.Close(rec, runErr)
}

func (t *Team) newAdapter() *flow.Adapter {
	var opts []flow.AdapterOption
	if t.compressor != nil {
		opts = append(opts, flow.WithCompressor(t.compressor))
	}
	if t.maxIterations > 0 {
		opts = append(opts, flow.WithMaxIterations(t.maxIterations))
	}
	return flow.NewAdapter(t.model, opts...)
}

func (t *Team) loadSession(ctx context.Context, inp *agent.Input) (*session.Session, error) {
	id := inp.SessionID
	if id == "" {
		id = uuid.New().String()
	}
	if t.sessions == nil || inp.SessionID == "" {
		sess := session.New(id, session.TypeTeam, inp.UserID)
		sess.State = session.Merge(sess.State, inp.State)
		return sess, nil
	}

	key := session.Key{ID: id, Type: session.TypeTeam}
	sess, err := t.sessions.GetSession(ctx, key)
	if err != nil {
		if err != session.ErrSessionNotFound {
			return nil, err
		}
		sess = session.New(id, session.TypeTeam, inp.UserID)
	}
	sess.State = session.Merge(sess.State, inp.State)
	return sess, nil
}

func (t *Team) baseMessages(sess *session.Session) []model.Message {
	messages := []model.Message{model.NewSystemMessage(t.systemPrompt())}
	for _, msg := range sess.Messages {
		msg.FromHistory = true
		messages = append(messages, msg)
	}
	return messages
}

func (t *Team) systemPrompt() string {
	var sb strings.Builder
	if t.instructions != "" {
		sb.WriteString(t.instructions)
		sb.WriteString("\n\n")
	}
	sb.WriteString("You coordinate a team of agents. Delegate tasks to members using the delegation tools and synthesize their results.\n")
	sb.WriteString("Members:\n")
	for _, m := range t.members {
		fmt.Fprintf(&sb, "- %s: %s\n", m.Name(), m.Description())
	}
	return sb.String()
}

func (t *Team) buildTools(dctx *delegationContext) map[string]tool.Tool {
	tools := make(map[string]tool.Tool, len(t.tools)+2)
	for _, tl := range t.tools {
		tools[tl.Declaration().Name] = tl
	}
	delegate := dctx.newDelegateTool()
	tools[delegate.Declaration().Name] = delegate
	broadcast := dctx.newBroadcastTool()
	tools[broadcast.Declaration().Name] = broadcast
	return tools
}

func (t *Team) persist(ctx context.Context, sess *session.Session, rec *run.Record) {
	rec.Scrub(t.storeMedia, t.storeToolResults, t.storeHistory)
	if !t.storeMemberRuns {
		rec.MemberRuns = nil
	}
	if rec.IsPaused() {
		sess.Runs = append(sess.Runs, rec)
		sess.UpdatedAt = time.Now()
	} else {
		sess.AppendRun(rec)
	}
	if t.sessions == nil {
		return
	}
	if err := t.sessions.SaveSession(ctx, sess); err != nil {
		log.Errorf("saving team session %s failed: %v", sess.ID, err)
	}
}

// applyDecisions resolves the paused run's requirements. Member requirements
// route to the member's own Continue; the team's own requirements are
// returned for replay through the request loop. It returns a rendered notice
// of resumed member results for the model.
func (t *Team) applyDecisions(ctx context.Context, inp *agent.Input, rec *run.Record, dctx *delegationContext) (string, []*tool.Execution, error) {
	var (
		ownResolved []*tool.Execution
		notices     []string
	)
	for i := range rec.Requirements {
		req := &rec.Requirements[i]
		if req.Resolved() {
			continue
		}
		decision, ok := inp.Decisions[req.ToolCallID]
		if !ok {
			return "", nil, agent.ErrUnresolvedRequirements
		}
		d := decision
		req.Confirmed = &d

		if req.MemberName == "" {
			if exec := rec.FindToolExecution(req.ToolCallID); exec != nil {
				exec.Confirmed = &d
				ownResolved = append(ownResolved, exec)
			}
			continue
		}

		member, ok := findMember(t.members, req.MemberName)
		if !ok {
			notices = append(notices, fmt.Sprintf("%s: member no longer available", req.MemberName))
			continue
		}
		mrec, err := member.Continue(ctx, &agent.Input{
			UserID:    inp.UserID,
			SessionID: memberSessionID(inp.SessionID, req.MemberName),
			Decisions: map[string]bool{req.ToolCallID: d},
		})
		if err != nil {
			notices = append(notices, fmt.Sprintf("%s: %v", req.MemberName, err))
			continue
		}
		dctx.recordMemberRun(mrec)
		notices = append(notices, fmt.Sprintf("%s: %s", req.MemberName, formatMemberResult(mrec)))
	}

	if len(notices) == 0 {
		return "", ownResolved, nil
	}
	return "Member results after review:\n" + strings.Join(notices, "\n"), ownResolved, nil
}
