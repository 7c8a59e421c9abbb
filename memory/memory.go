//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package memory provides the user-memory persistence contract.
package memory

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserIDRequired is returned when a user ID is missing.
	ErrUserIDRequired = errors.New("user ID is required")
	// ErrMemoryIDRequired is returned when a memory ID is missing.
	ErrMemoryIDRequired = errors.New("memory ID is required")
	// ErrMemoryNotFound is returned when no memory matches the key.
	ErrMemoryNotFound = errors.New("memory not found")
)

// Entry is one stored user memory.
type Entry struct {
	// ID is the memory identifier.
	ID string `json:"id"`
	// UserID is the owning user.
	UserID string `json:"user_id"`
	// Memory is the memory content.
	Memory string `json:"memory"`
	// Topics categorize the memory.
	Topics []string `json:"topics,omitempty"`
	// Input is the input the memory was derived from.
	Input string `json:"input,omitempty"`
	// CreatedAt is the creation time.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the last update time.
	UpdatedAt time.Time `json:"updated_at"`
}

// Key identifies a memory. Memories are keyed by (MemoryID, UserID).
type Key struct {
	// MemoryID is the memory identifier.
	MemoryID string
	// UserID is the owning user.
	UserID string
}

// Validate checks the key for required fields.
func (k Key) Validate() error {
	if k.UserID == "" {
		return ErrUserIDRequired
	}
	if k.MemoryID == "" {
		return ErrMemoryIDRequired
	}
	return nil
}

// Service is the user-memory persistence contract.
type Service interface {
	// AddMemory stores a new memory for a user and returns its ID.
	AddMemory(ctx context.Context, userID, memory, input string, topics []string) (string, error)
	// UpdateMemory replaces the content of an existing memory.
	UpdateMemory(ctx context.Context, key Key, memory string) error
	// DeleteMemory removes a memory.
	DeleteMemory(ctx context.Context, key Key) error
	// ReadMemories returns up to limit memories for a user, newest first.
	// A non-positive limit returns all memories.
	ReadMemories(ctx context.Context, userID string, limit int) ([]*Entry, error)
}
