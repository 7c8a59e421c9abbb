//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package team

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/ensemble-ai/ensemble/agent"
	"github.com/ensemble-ai/ensemble/log"
	"github.com/ensemble-ai/ensemble/run"
	"github.com/ensemble-ai/ensemble/session"
	"github.com/ensemble-ai/ensemble/telemetry"
	"github.com/ensemble-ai/ensemble/tool"
	"github.com/ensemble-ai/ensemble/tool/function"
)

// delegationContext carries the mutable shared state of one team run across
// delegation tool calls: the working session state, accumulated member runs,
// propagated pauses and the interaction history rendered into later tasks.
// Delegation tools may run concurrently during a broadcast, so all access
// goes through the mutex.
type delegationContext struct {
	team        *Team
	inp         *agent.Input
	parentRunID string

	mu         sync.Mutex
	sessState  session.State
	memberRuns []*run.Record
	pauses     []run.Requirement
	children   map[string]string
	history    []interaction
}

type interaction struct {
	member string
	task   string
	result string
}

func newDelegationContext(t *Team, inp *agent.Input, state session.State, parentRunID string) *delegationContext {
	return &delegationContext{
		team:        t,
		inp:         inp,
		parentRunID: parentRunID,
		sessState:   state,
		children:    map[string]string{},
	}
}

// DelegateRequest is the input of the delegate_task_to_member tool.
type DelegateRequest struct {
	MemberName string `json:"member_name" jsonschema:"description=Name of the member to delegate to"`
	Task       string `json:"task" jsonschema:"description=The task for the member"`
}

func (d *delegationContext) newDelegateTool() tool.CallableTool {
	fn := func(ctx context.Context, req *DelegateRequest) (string, error) {
		member, ok := findMember(d.team.members, req.MemberName)
		if !ok {
			return memberNotFound(req.MemberName, d.team.members), nil
		}
		return d.runMember(ctx, member, req.Task, true), nil
	}
	return function.New(fn,
		function.WithName("delegate_task_to_member"),
		function.WithDescription(
			"Delegate a task to a single team member and return their result.",
		),
	)
}

// BroadcastRequest is the input of the delegate_task_to_members tool.
type BroadcastRequest struct {
	Task        string   `json:"task" jsonschema:"description=The task for the members"`
	MemberNames []string `json:"member_names,omitempty" jsonschema:"description=Names of the members to include. All members when omitted"`
}

// newBroadcastTool creates the delegate_task_to_members tool. Sequential
// broadcasts return results in member order; with a worker pool configured
// they return in completion order.
func (d *delegationContext) newBroadcastTool() tool.CallableTool {
	fn := func(ctx context.Context, req *BroadcastRequest) (string, error) {
		targets, notFound := d.resolveTargets(req.MemberNames)
		if len(targets) == 0 {
			if len(notFound) > 0 {
				return strings.Join(notFound, "\n"), nil
			}
			return "The team has no members.", nil
		}

		var parts []string
		parts = append(parts, notFound...)

		if d.team.concurrency > 0 {
			results, err := d.broadcastConcurrent(ctx, targets, req.Task)
			parts = append(parts, results...)
			if err != nil {
				return strings.Join(parts, "\n\n"), err
			}
		} else {
			for _, m := range targets {
				result := d.runMember(ctx, m, req.Task, false)
				parts = append(parts, fmt.Sprintf("%s:\n%s", m.Name(), result))
			}
		}
		return strings.Join(parts, "\n\n"), nil
	}
	return function.New(fn,
		function.WithName("delegate_task_to_members"),
		function.WithDescription(
			"Delegate the same task to several team members and return all results.",
		),
	)
}

func (d *delegationContext) resolveTargets(names []string) ([]agent.Agent, []string) {
	if len(names) == 0 {
		return d.team.members, nil
	}
	var (
		targets  []agent.Agent
		notFound []string
	)
	for _, name := range names {
		member, ok := findMember(d.team.members, name)
		if !ok {
			notFound = append(notFound, memberNotFound(name, d.team.members))
			continue
		}
		targets = append(targets, member)
	}
	return targets, notFound
}

// broadcastConcurrent fans the task out on a worker pool. Every member task
// delivers exactly one outcome, so the collector always terminates. On
// cancellation the outstanding member tasks are cancelled and awaited before
// returning.
func (d *delegationContext) broadcastConcurrent(ctx context.Context, targets []agent.Agent, task string) ([]string, error) {
	pool, err := ants.NewPool(d.team.concurrency)
	if err != nil {
		return nil, fmt.Errorf("broadcast pool: %w", err)
	}
	defer pool.Release()

	memberCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan string, len(targets))
	var wg sync.WaitGroup
	for _, m := range targets {
		member := m
		wg.Add(1)
		job := func() {
			defer wg.Done()
			result := d.runMember(memberCtx, member, task, false)
			outcomes <- fmt.Sprintf("%s:\n%s", member.Name(), result)
		}
		if err := pool.Submit(job); err != nil {
			// Pool rejected the job, run it inline instead of losing the
			// member's sentinel.
			job()
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var parts []string
	for remaining := len(targets); remaining > 0; remaining-- {
		select {
		case out := <-outcomes:
			parts = append(parts, out)
		case <-ctx.Done():
			cancel()
			<-done
			for {
				select {
				case out := <-outcomes:
					parts = append(parts, out)
				default:
					return parts, ctx.Err()
				}
			}
		}
	}
	return parts, nil
}

// runMember executes one delegation end to end: task formatting with the
// interaction history, session-state copy-in, the member run, and merge of
// the member's outcome back into the delegation context. Member failures are
// returned as result text so one failing member never aborts the run.
func (d *delegationContext) runMember(ctx context.Context, member agent.Agent, task string, recordChild bool) string {
	callID := tool.CallIDFromContext(ctx)

	ctx, span := telemetry.StartDelegationSpan(ctx, d.team.name, member.Name())
	defer span.End()

	formatted := d.formatTask(task)

	d.mu.Lock()
	stateCopy := d.sessState.Clone()
	d.mu.Unlock()

	mrec, err := member.Run(ctx, &agent.Input{
		Task:        formatted,
		UserID:      d.inp.UserID,
		SessionID:   memberSessionID(d.inp.SessionID, member.Name()),
		State:       stateCopy,
		ParentRunID: d.parentRunID,
	})
	if err != nil {
		log.Warnf("delegation to member %s failed: %v", member.Name(), err)
		result := fmt.Sprintf("Error: %v", err)
		d.recordInteraction(member.Name(), task, result)
		return result
	}

	d.mergeMemberRun(member.Name(), mrec)
	if recordChild && callID != "" {
		d.mu.Lock()
		d.children[callID] = mrec.RunID
		d.mu.Unlock()
	}

	result := formatMemberResult(mrec)
	d.recordInteraction(member.Name(), task, result)
	return result
}

// mergeMemberRun folds a finished member run into the delegation context:
// the run is attached, its session-state snapshot wins over the working
// state, and unresolved requirements bubble up tagged with the member name.
func (d *delegationContext) mergeMemberRun(memberName string, mrec *run.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memberRuns = append(d.memberRuns, mrec)
	d.sessState = session.Merge(d.sessState, mrec.SessionState)
	for i := range mrec.Requirements {
		req := mrec.Requirements[i]
		if req.Resolved() {
			continue
		}
		req.MemberName = memberName
		d.pauses = append(d.pauses, req)
	}
}

func (d *delegationContext) recordMemberRun(mrec *run.Record) {
	if mrec == nil {
		return
	}
	d.mergeMemberRun(mrec.AgentName, mrec)
}

func (d *delegationContext) recordInteraction(member, task, result string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = append(d.history, interaction{member: member, task: task, result: result})
}

// formatTask renders previous member interactions into the delegated task so
// later members see what the team already learned.
func (d *delegationContext) formatTask(task string) string {
	d.mu.Lock()
	history := make([]interaction, len(d.history))
	copy(history, d.history)
	d.mu.Unlock()

	if len(history) == 0 {
		return task
	}
	var sb strings.Builder
	sb.WriteString("Previous member interactions:\n")
	for _, h := range history {
		fmt.Fprintf(&sb, "- %s was asked: %s\n  Result: %s\n", h.member, h.task, h.result)
	}
	sb.WriteString("\nTask: ")
	sb.WriteString(task)
	return sb.String()
}

// attach transfers the delegation outcomes onto the finished team record.
func (d *delegationContext) attach(rec *run.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec.MemberRuns = append(rec.MemberRuns, d.memberRuns...)
	for _, req := range d.pauses {
		rec.AddRequirement(req)
	}
	for callID, childID := range d.children {
		if exec := rec.FindToolExecution(callID); exec != nil && exec.ChildRunID == "" {
			exec.ChildRunID = childID
		}
	}
}

// state returns the final working session state.
func (d *delegationContext) state() session.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessState
}

// findMember resolves a member by name, descending into sub-teams.
func findMember(members []agent.Agent, name string) (agent.Agent, bool) {
	for _, m := range members {
		if m.Name() == name {
			return m, true
		}
		if subs := m.Members(); len(subs) > 0 {
			if found, ok := findMember(subs, name); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// memberNotFound builds the result returned for an unknown member name. The
// valid ids are listed so the model can correct itself.
func memberNotFound(name string, members []agent.Agent) string {
	return fmt.Sprintf("Member '%s' not found. Valid member ids: %s",
		name, strings.Join(memberNames(members), ", "))
}

func memberNames(members []agent.Agent) []string {
	var names []string
	for _, m := range members {
		names = append(names, m.Name())
		names = append(names, memberNames(m.Members())...)
	}
	return names
}

// memberSessionID derives the member's own session from the team session so
// members keep separate histories. An ephemeral team session stays ephemeral
// for its members.
func memberSessionID(teamSessionID, memberName string) string {
	if teamSessionID == "" {
		return ""
	}
	return teamSessionID + ":" + memberName
}

// formatMemberResult renders a member run for the coordinating model. It
// falls back from text content to joined tool results to indented JSON, and
// never fails: formatting errors degrade to a plain string rendering.
func formatMemberResult(rec *run.Record) string {
	if rec == nil {
		return "No response."
	}
	if rec.IsPaused() {
		var pending []string
		for i := range rec.Requirements {
			if !rec.Requirements[i].Resolved() {
				pending = append(pending, rec.Requirements[i].ToolName)
			}
		}
		return fmt.Sprintf("Run paused awaiting approval of: %s", strings.Join(pending, ", "))
	}

	if text := rec.TextContent(); text != "" {
		return text
	}
	if rec.Content != nil {
		raw, err := json.MarshalIndent(rec.Content, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", rec.Content)
		}
		return string(raw)
	}

	var results []string
	for _, te := range rec.Tools {
		if te.Result != "" {
			results = append(results, te.Result)
		}
	}
	if len(results) > 0 {
		return strings.Join(results, ", ")
	}
	return "No response."
}
