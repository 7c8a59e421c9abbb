//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package session

import (
	"context"
	"errors"
	"time"

	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/run"
)

// Type distinguishes agent sessions from team sessions. Sessions are keyed
// by (ID, Type).
type Type string

// Session type constants.
const (
	// TypeAgent marks a session owned by a single agent.
	TypeAgent Type = "agent"
	// TypeTeam marks a session owned by a team.
	TypeTeam Type = "team"
)

var (
	// ErrSessionIDRequired is returned when a session ID is missing.
	ErrSessionIDRequired = errors.New("session ID is required")
	// ErrSessionNotFound is returned when no session matches the key.
	ErrSessionNotFound = errors.New("session not found")
)

// Key identifies a session.
type Key struct {
	// ID is the session identifier.
	ID string
	// Type is the session type.
	Type Type
}

// Validate checks the key for required fields.
func (k Key) Validate() error {
	if k.ID == "" {
		return ErrSessionIDRequired
	}
	return nil
}

// Session holds the durable state of one conversation.
type Session struct {
	// ID is the session identifier.
	ID string `json:"id"`
	// Type is the session type.
	Type Type `json:"type"`
	// UserID is the owning user.
	UserID string `json:"user_id,omitempty"`
	// State is the shared key/value session state.
	State State `json:"state,omitempty"`
	// Messages is the persisted conversation history.
	Messages []model.Message `json:"messages,omitempty"`
	// Runs is the records of completed runs in this session.
	Runs []*run.Record `json:"runs,omitempty"`
	// CreatedAt is the creation time.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the last update time.
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a session.
func New(id string, typ Type, userID string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Type:      typ,
		UserID:    userID,
		State:     State{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Key returns the session key.
func (s *Session) Key() Key {
	return Key{ID: s.ID, Type: s.Type}
}

// AppendRun records a completed run and its memory-flagged messages.
func (s *Session) AppendRun(rec *run.Record) {
	if rec == nil {
		return
	}
	s.Runs = append(s.Runs, rec)
	s.Messages = append(s.Messages, rec.Messages...)
	s.UpdatedAt = time.Now()
}

// LastRun returns the most recent run record, or nil.
func (s *Session) LastRun() *run.Record {
	if len(s.Runs) == 0 {
		return nil
	}
	return s.Runs[len(s.Runs)-1]
}

// Service is the session persistence contract. Implementations must be safe
// for concurrent use.
type Service interface {
	// GetSession returns the session for the key, or ErrSessionNotFound.
	GetSession(ctx context.Context, key Key) (*Session, error)
	// SaveSession creates or updates a session.
	SaveSession(ctx context.Context, sess *Session) error
	// DeleteSession removes a session. Deleting a missing session is a no-op.
	DeleteSession(ctx context.Context, key Key) error
}
