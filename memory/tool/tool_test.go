//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package tool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memoryinmemory "github.com/ensemble-ai/ensemble/memory/inmemory"
	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/session"
	sessioninmemory "github.com/ensemble-ai/ensemble/session/inmemory"
)

func TestUpdateUserMemory(t *testing.T) {
	memories := memoryinmemory.New()
	update := NewUpdateUserMemoryTool(Config{Memories: memories, UserID: "u1"})

	out, err := update.Call(context.Background(),
		[]byte(`{"task":"remember the user prefers metric units"}`))
	require.NoError(t, err)
	assert.Contains(t, out.(string), "updated successfully")

	entries, err := memories.ReadMemories(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "remember the user prefers metric units", entries[0].Memory)
}

func TestUpdateUserMemoryEmptyTask(t *testing.T) {
	update := NewUpdateUserMemoryTool(Config{Memories: memoryinmemory.New(), UserID: "u1"})

	_, err := update.Call(context.Background(), []byte(`{"task":""}`))
	assert.Error(t, err)
}

func TestGetChatHistory(t *testing.T) {
	sessions := sessioninmemory.New()
	sess := session.New("s1", session.TypeAgent, "u1")
	sess.Messages = []model.Message{
		model.NewUserMessage("first"),
		model.NewAssistantMessage("first reply"),
		model.NewUserMessage("second"),
		model.NewAssistantMessage("second reply"),
	}
	require.NoError(t, sessions.SaveSession(context.Background(), sess))

	history := NewGetChatHistoryTool(Config{
		Sessions: sessions,
		Current:  sess.Key(),
	})

	// Limiting to one chat keeps the last user/assistant pair.
	out, err := history.Call(context.Background(), []byte(`{"num_chats":1}`))
	require.NoError(t, err)
	text := out.(string)
	assert.Contains(t, text, "second reply")
	assert.NotContains(t, text, "first reply")

	// Without a limit the full history is returned.
	out, err = history.Call(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, out.(string), "first reply")
}

func TestGetChatHistoryEmptySession(t *testing.T) {
	sessions := sessioninmemory.New()
	sess := session.New("s1", session.TypeAgent, "u1")
	require.NoError(t, sessions.SaveSession(context.Background(), sess))

	history := NewGetChatHistoryTool(Config{Sessions: sessions, Current: sess.Key()})

	out, err := history.Call(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestGetPreviousSessionMessages(t *testing.T) {
	sessions := sessioninmemory.New()

	previous := session.New("old", session.TypeAgent, "u1")
	previous.UpdatedAt = time.Now().Add(-time.Hour)
	previous.Messages = []model.Message{model.NewUserMessage("from before")}
	require.NoError(t, sessions.SaveSession(context.Background(), previous))

	current := session.New("now", session.TypeAgent, "u1")
	require.NoError(t, sessions.SaveSession(context.Background(), current))

	prev := NewGetPreviousSessionMessagesTool(Config{
		Sessions: sessions,
		Current:  current.Key(),
		UserID:   "u1",
	})

	out, err := prev.Call(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, out.(string), "from before")
}

func TestGetPreviousSessionMessagesNoOtherSession(t *testing.T) {
	sessions := sessioninmemory.New()
	current := session.New("now", session.TypeAgent, "u1")
	require.NoError(t, sessions.SaveSession(context.Background(), current))

	prev := NewGetPreviousSessionMessagesTool(Config{
		Sessions: sessions,
		Current:  current.Key(),
		UserID:   "u1",
	})

	out, err := prev.Call(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "No previous session found.", out)
}

// keyOnlyService implements session.Service without session listing.
type keyOnlyService struct {
	session.Service
}

func TestGetPreviousSessionMessagesWithoutLister(t *testing.T) {
	prev := NewGetPreviousSessionMessagesTool(Config{
		Sessions: keyOnlyService{Service: sessioninmemory.New()},
		UserID:   "u1",
	})

	out, err := prev.Call(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "Previous session history is not available.", out)
}
