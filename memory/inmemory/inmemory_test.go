//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-ai/ensemble/memory"
)

func TestAddAndReadMemories(t *testing.T) {
	svc := New()
	ctx := context.Background()

	first, err := svc.AddMemory(ctx, "u1", "likes coffee", "", nil)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := svc.AddMemory(ctx, "u1", "prefers tea after noon", "", []string{"drinks"})
	require.NoError(t, err)
	_, err = svc.AddMemory(ctx, "u2", "someone else", "", nil)
	require.NoError(t, err)

	entries, err := svc.ReadMemories(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, second, entries[0].ID)
	assert.Equal(t, first, entries[1].ID)
	assert.Equal(t, []string{"drinks"}, entries[0].Topics)
}

func TestReadMemoriesLimit(t *testing.T) {
	svc := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.AddMemory(ctx, "u1", "memory", "", nil)
		require.NoError(t, err)
	}

	entries, err := svc.ReadMemories(ctx, "u1", 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestAddMemoryRequiresUser(t *testing.T) {
	svc := New()

	_, err := svc.AddMemory(context.Background(), "", "m", "", nil)
	assert.ErrorIs(t, err, memory.ErrUserIDRequired)
}

func TestUpdateMemory(t *testing.T) {
	svc := New()
	ctx := context.Background()

	id, err := svc.AddMemory(ctx, "u1", "old", "", nil)
	require.NoError(t, err)

	key := memory.Key{MemoryID: id, UserID: "u1"}
	require.NoError(t, svc.UpdateMemory(ctx, key, "new"))

	entries, err := svc.ReadMemories(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Memory)
}

func TestUpdateMissingMemory(t *testing.T) {
	svc := New()

	err := svc.UpdateMemory(context.Background(),
		memory.Key{MemoryID: "nope", UserID: "u1"}, "new")
	assert.ErrorIs(t, err, memory.ErrMemoryNotFound)
}

func TestDeleteMemory(t *testing.T) {
	svc := New()
	ctx := context.Background()

	id, err := svc.AddMemory(ctx, "u1", "m", "", nil)
	require.NoError(t, err)

	key := memory.Key{MemoryID: id, UserID: "u1"}
	require.NoError(t, svc.DeleteMemory(ctx, key))
	// Deleting again is a no-op.
	require.NoError(t, svc.DeleteMemory(ctx, key))

	entries, err := svc.ReadMemories(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
