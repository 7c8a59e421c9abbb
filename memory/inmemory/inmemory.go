//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package inmemory provides an in-memory user-memory service.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ensemble-ai/ensemble/memory"
)

// Service is an in-memory implementation of memory.Service.
type Service struct {
	mu      sync.RWMutex
	entries map[memory.Key]*memory.Entry
}

// New creates an in-memory memory service.
func New() *Service {
	return &Service{entries: make(map[memory.Key]*memory.Entry)}
}

// AddMemory implements memory.Service.
func (s *Service) AddMemory(
	_ context.Context, userID, mem, input string, topics []string,
) (string, error) {
	if userID == "" {
		return "", memory.ErrUserIDRequired
	}
	now := time.Now()
	entry := &memory.Entry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Memory:    mem,
		Topics:    topics,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[memory.Key{MemoryID: entry.ID, UserID: userID}] = entry
	return entry.ID, nil
}

// UpdateMemory implements memory.Service.
func (s *Service) UpdateMemory(_ context.Context, key memory.Key, mem string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return memory.ErrMemoryNotFound
	}
	entry.Memory = mem
	entry.UpdatedAt = time.Now()
	return nil
}

// DeleteMemory implements memory.Service.
func (s *Service) DeleteMemory(_ context.Context, key memory.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// ReadMemories implements memory.Service.
func (s *Service) ReadMemories(
	_ context.Context, userID string, limit int,
) ([]*memory.Entry, error) {
	if userID == "" {
		return nil, memory.ErrUserIDRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*memory.Entry
	for key, entry := range s.entries {
		if key.UserID == userID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
