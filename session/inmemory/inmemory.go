//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package inmemory provides an in-memory session service.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/ensemble-ai/ensemble/session"
)

// Service is an in-memory implementation of session.Service, suitable for
// tests and single-process deployments.
type Service struct {
	mu       sync.RWMutex
	sessions map[session.Key]*session.Session
}

// New creates an in-memory session service.
func New() *Service {
	return &Service{sessions: make(map[session.Key]*session.Session)}
}

// GetSession implements session.Service.
func (s *Service) GetSession(_ context.Context, key session.Key) (*session.Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return sess, nil
}

// SaveSession implements session.Service.
func (s *Service) SaveSession(_ context.Context, sess *session.Session) error {
	if err := sess.Key().Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Key()] = sess
	return nil
}

// DeleteSession implements session.Service.
func (s *Service) DeleteSession(_ context.Context, key session.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

// ListSessions returns all sessions owned by the user, newest first.
func (s *Service) ListSessions(_ context.Context, userID string) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*session.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}
