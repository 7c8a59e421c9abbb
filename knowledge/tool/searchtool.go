//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package tool provides knowledge search and learning tools for agents.
package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/ensemble-ai/ensemble/knowledge"
	"github.com/ensemble-ai/ensemble/log"
	"github.com/ensemble-ai/ensemble/tool"
	"github.com/ensemble-ai/ensemble/tool/function"
)

const (
	defaultMaxResults = 10

	// learningTypeKey tags documents saved through the learning tools.
	learningTypeKey   = "type"
	learningTypeValue = "learning"
)

// Option configures the knowledge tools.
type Option func(*options)

type options struct {
	maxResults int
}

// WithMaxResults sets the maximum number of documents returned by searches.
func WithMaxResults(maxResults int) Option {
	return func(o *options) { o.maxResults = maxResults }
}

// SearchRequest is the input of the search_knowledge_base tool.
type SearchRequest struct {
	Query   string         `json:"query" jsonschema:"description=The search query to find relevant information in the knowledge base"`
	Filters map[string]any `json:"filters,omitempty" jsonschema:"description=Optional metadata filters to restrict the search"`
}

// NewSearchTool creates the search_knowledge_base tool. Results are
// formatted into a text block for the model's context. Invalid filter keys
// are dropped with a warning instead of failing the search.
func NewSearchTool(caps knowledge.Capabilities, opts ...Option) tool.CallableTool {
	o := options{maxResults: defaultMaxResults}
	for _, opt := range opts {
		opt(&o)
	}
	fn := func(ctx context.Context, req *SearchRequest) (string, error) {
		if req.Query == "" {
			return "", knowledge.ErrEmptyQuery
		}
		filters := req.Filters
		if caps.FilterValidator != nil && len(filters) > 0 {
			valid, invalid := caps.FilterValidator.ValidateFilters(filters)
			if len(invalid) > 0 {
				log.Warnf("knowledge search: dropping invalid filter keys: %v", invalid)
			}
			filters = valid
		}
		docs, err := caps.Base.Retrieve(ctx, req.Query, o.maxResults, filters)
		if err != nil {
			return "", fmt.Errorf("knowledge search: %w", err)
		}
		if len(docs) == 0 {
			return "No relevant documents found.", nil
		}
		return formatDocuments(docs), nil
	}
	return function.New(fn,
		function.WithName("search_knowledge_base"),
		function.WithDescription(
			"Search the knowledge base for information relevant to a query.",
		),
	)
}

// SearchLearningsRequest is the input of the search_learnings tool.
type SearchLearningsRequest struct {
	Query string `json:"query" jsonschema:"description=The search query to find relevant learnings"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of learnings to return"`
}

// NewSearchLearningsTool creates the search_learnings tool. Learnings are
// documents saved through save_learning, filtered by their type tag.
func NewSearchLearningsTool(caps knowledge.Capabilities, opts ...Option) tool.CallableTool {
	o := options{maxResults: defaultMaxResults}
	for _, opt := range opts {
		opt(&o)
	}
	fn := func(ctx context.Context, req *SearchLearningsRequest) (string, error) {
		if req.Query == "" {
			return "", knowledge.ErrEmptyQuery
		}
		limit := req.Limit
		if limit <= 0 {
			limit = o.maxResults
		}
		filters := map[string]any{learningTypeKey: learningTypeValue}
		docs, err := caps.Base.Retrieve(ctx, req.Query, limit, filters)
		if err != nil {
			return "", fmt.Errorf("search learnings: %w", err)
		}
		if len(docs) == 0 {
			return "No relevant learnings found.", nil
		}
		return formatDocuments(docs), nil
	}
	return function.New(fn,
		function.WithName("search_learnings"),
		function.WithDescription(
			"Search previously saved learnings relevant to a query.",
		),
	)
}

// SaveLearningRequest is the input of the save_learning tool.
type SaveLearningRequest struct {
	Title    string   `json:"title" jsonschema:"description=Short title of the learning"`
	Learning string   `json:"learning" jsonschema:"description=The learning to save"`
	Context  string   `json:"context,omitempty" jsonschema:"description=Context in which the learning applies"`
	Tags     []string `json:"tags,omitempty" jsonschema:"description=Tags categorizing the learning"`
}

// NewSaveLearningTool creates the save_learning tool.
func NewSaveLearningTool(caps knowledge.Capabilities) tool.CallableTool {
	fn := func(ctx context.Context, req *SaveLearningRequest) (string, error) {
		if caps.Inserter == nil {
			return "The knowledge base does not support saving learnings.", nil
		}
		if req.Title == "" || req.Learning == "" {
			return "", fmt.Errorf("title and learning are required")
		}
		content := req.Learning
		if req.Context != "" {
			content += "\n\nContext: " + req.Context
		}
		metadata := map[string]any{learningTypeKey: learningTypeValue}
		if len(req.Tags) > 0 {
			metadata["tags"] = strings.Join(req.Tags, ",")
		}
		if err := caps.Inserter.Insert(ctx, req.Title, content, false, metadata); err != nil {
			return "", fmt.Errorf("save learning: %w", err)
		}
		return fmt.Sprintf("Learning %q saved.", req.Title), nil
	}
	return function.New(fn,
		function.WithName("save_learning"),
		function.WithDescription(
			"Save a learning for future runs to reuse.",
		),
	)
}

func formatDocuments(docs []*knowledge.Document) string {
	var sb strings.Builder
	for i, doc := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if doc.Name != "" {
			fmt.Fprintf(&sb, "[%d] %s (score: %.2f)\n", i+1, doc.Name, doc.Score)
		} else {
			fmt.Fprintf(&sb, "[%d] (score: %.2f)\n", i+1, doc.Score)
		}
		sb.WriteString(doc.Content)
	}
	return sb.String()
}
