//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package tool provides memory and history tools exposed to the model.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ensemble-ai/ensemble/memory"
	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/session"
	"github.com/ensemble-ai/ensemble/tool"
	"github.com/ensemble-ai/ensemble/tool/function"
)

// SessionLister is an optional session service capability for enumerating a
// user's sessions, newest first. It is probed once at tool construction.
type SessionLister interface {
	ListSessions(ctx context.Context, userID string) ([]*session.Session, error)
}

// Config wires the memory tools to their backing services and the current
// conversation.
type Config struct {
	// Memories is the user-memory service.
	Memories memory.Service
	// Sessions is the session service backing history tools.
	Sessions session.Service
	// Current identifies the session the tools read history from.
	Current session.Key
	// UserID is the user the tools operate on behalf of.
	UserID string
}

// UpdateUserMemoryRequest is the input of the update_user_memory tool.
type UpdateUserMemoryRequest struct {
	Task string `json:"task" jsonschema:"description=Describe what to remember, update or forget about the user"`
}

// NewUpdateUserMemoryTool creates the update_user_memory tool. The task
// description is stored as a new user memory.
func NewUpdateUserMemoryTool(cfg Config) tool.CallableTool {
	fn := func(ctx context.Context, req *UpdateUserMemoryRequest) (string, error) {
		if req.Task == "" {
			return "", fmt.Errorf("task cannot be empty")
		}
		id, err := cfg.Memories.AddMemory(ctx, cfg.UserID, req.Task, req.Task, nil)
		if err != nil {
			return "", fmt.Errorf("update user memory: %w", err)
		}
		return fmt.Sprintf("Memory %s updated successfully", id), nil
	}
	return function.New(fn,
		function.WithName("update_user_memory"),
		function.WithDescription(
			"Update the memory of the current user based on the given task.",
		),
	)
}

// GetChatHistoryRequest is the input of the get_chat_history tool.
type GetChatHistoryRequest struct {
	NumChats int `json:"num_chats,omitempty" jsonschema:"description=Number of most recent chats to return. Returns all chats when omitted"`
}

// NewGetChatHistoryTool creates the get_chat_history tool. It returns the
// most recent messages of the current session as JSON.
func NewGetChatHistoryTool(cfg Config) tool.CallableTool {
	fn := func(ctx context.Context, req *GetChatHistoryRequest) (string, error) {
		sess, err := cfg.Sessions.GetSession(ctx, cfg.Current)
		if err != nil {
			return "", fmt.Errorf("get chat history: %w", err)
		}
		msgs := sess.Messages
		if req.NumChats > 0 {
			// One chat is a user message plus the assistant reply.
			keep := req.NumChats * 2
			if len(msgs) > keep {
				msgs = msgs[len(msgs)-keep:]
			}
		}
		return marshalMessages(msgs)
	}
	return function.New(fn,
		function.WithName("get_chat_history"),
		function.WithDescription(
			"Return the chat history of the current session as JSON.",
		),
	)
}

// NewGetPreviousSessionMessagesTool creates the get_previous_session_messages
// tool. It returns the messages of the user's most recent other session as
// JSON. The listing capability is resolved once at construction; when the
// session service cannot enumerate sessions the tool reports that instead of
// failing at call time.
func NewGetPreviousSessionMessagesTool(cfg Config) tool.CallableTool {
	lister, _ := cfg.Sessions.(SessionLister)
	fn := func(ctx context.Context, _ *struct{}) (string, error) {
		if lister == nil {
			return "Previous session history is not available.", nil
		}
		sessions, err := lister.ListSessions(ctx, cfg.UserID)
		if err != nil {
			return "", fmt.Errorf("list sessions: %w", err)
		}
		for _, sess := range sessions {
			if sess.ID == cfg.Current.ID && sess.Type == cfg.Current.Type {
				continue
			}
			return marshalMessages(sess.Messages)
		}
		return "No previous session found.", nil
	}
	return function.New(fn,
		function.WithName("get_previous_session_messages"),
		function.WithDescription(
			"Return the messages of the previous session as JSON.",
		),
	)
}

func marshalMessages(msgs []model.Message) (string, error) {
	if len(msgs) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return "", fmt.Errorf("encode messages: %w", err)
	}
	return string(raw), nil
}
