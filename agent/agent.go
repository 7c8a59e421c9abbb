//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package agent defines the agent contract and the model-backed agent that
// drives the streaming pipeline end to end.
package agent

import (
	"context"
	"errors"

	"github.com/ensemble-ai/ensemble/run"
	"github.com/ensemble-ai/ensemble/session"
)

var (
	// ErrNilInput is returned when a run is started without input.
	ErrNilInput = errors.New("agent: input is required")
	// ErrNotPaused is returned when Continue finds no paused run to resume.
	ErrNotPaused = errors.New("agent: no paused run to continue")
	// ErrUnresolvedRequirements is returned when Continue is called while
	// some requirements still await a decision.
	ErrUnresolvedRequirements = errors.New("agent: unresolved requirements remain")
)

// Input carries one invocation of an agent or team.
type Input struct {
	// Task is the task or message to run.
	Task string
	// UserID identifies the user on whose behalf the run executes.
	UserID string
	// SessionID selects the conversation. A new session is created on first
	// use; an empty ID runs in an ephemeral session.
	SessionID string
	// State seeds the session state before the run. A team copies its own
	// state in through this field when delegating.
	State session.State
	// ParentRunID links the run to the team run that delegated it.
	ParentRunID string
	// Decisions resolves pending requirements on Continue, keyed by tool
	// call ID. True approves the call, false declines it.
	Decisions map[string]bool
}

// Agent is anything that can execute a task: a single model-backed agent or
// a team delegating to members.
type Agent interface {
	// Name returns the agent name. Teams resolve members by this name.
	Name() string
	// Description returns the human-readable description shown to models
	// that may delegate to this agent.
	Description() string
	// Run executes the task to completion and returns the run record. The
	// record may be paused awaiting human approval.
	Run(ctx context.Context, inp *Input) (*run.Record, error)
	// RunStream executes the task, delivering run events as they occur.
	RunStream(ctx context.Context, inp *Input) (*Stream, error)
	// Continue resumes a paused run after human decisions were supplied.
	Continue(ctx context.Context, inp *Input) (*run.Record, error)
	// ContinueStream resumes a paused run, delivering run events as they
	// occur.
	ContinueStream(ctx context.Context, inp *Input) (*Stream, error)
	// Members returns the agent's members, or nil for a leaf agent.
	Members() []Agent
}

// Stream is a live run. Events is closed when the run finishes; Record and
// Err are valid once Events has been drained.
type Stream struct {
	// Events delivers run events in emission order.
	Events <-chan *run.Event

	record *run.Record
	err    error
}

// Record returns the final run record. Valid after Events is closed.
func (s *Stream) Record() *run.Record {
	return s.record
}

// Err returns the terminal error of the run, if any. Valid after Events is
// closed.
func (s *Stream) Err() error {
	return s.err
}

// StreamProducer is the producing side of a Stream.
type StreamProducer struct {
	ch     chan *run.Event
	stream *Stream
}

// NewStream creates a stream and its producer.
func NewStream(buffer int) (*Stream, *StreamProducer) {
	ch := make(chan *run.Event, buffer)
	s := &Stream{Events: ch}
	return s, &StreamProducer{ch: ch, stream: s}
}

// Emit delivers one event, giving up when the context is cancelled.
func (p *StreamProducer) Emit(ctx context.Context, ev *run.Event) bool {
	select {
	case p.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close finishes the stream with its result. Must be called exactly once.
func (p *StreamProducer) Close(rec *run.Record, err error) {
	p.stream.record = rec
	p.stream.err = err
	close(p.ch)
}

// Drain consumes a stream to completion and returns its result.
func Drain(s *Stream) (*run.Record, error) {
	for range s.Events {
	}
	return s.Record(), s.Err()
}
