//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package knowledge defines the knowledge-base contract consumed by the
// search and learning tools.
package knowledge

import (
	"context"
	"errors"
)

// ErrEmptyQuery is returned when a search query is empty.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Document is one retrieved piece of knowledge.
type Document struct {
	// ID is the document identifier.
	ID string `json:"id,omitempty"`
	// Name is the document name.
	Name string `json:"name,omitempty"`
	// Content is the document text.
	Content string `json:"content"`
	// Metadata is arbitrary document metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
	// Score is the retrieval relevance score.
	Score float64 `json:"score,omitempty"`
}

// Base is the minimal knowledge-base contract.
type Base interface {
	// Retrieve returns up to maxResults documents relevant to the query,
	// optionally restricted by metadata filters.
	Retrieve(ctx context.Context, query string, maxResults int, filters map[string]any) ([]*Document, error)
}

// Inserter is an optional capability for writing documents.
type Inserter interface {
	// Insert stores a document. When skipIfExists is true and a document
	// with the same name is already present, the insert is a no-op.
	Insert(ctx context.Context, name, content string, skipIfExists bool, metadata map[string]any) error
}

// Searcher is an optional capability kept for legacy callers. Search is
// equivalent to Retrieve for bases that expose both.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int, filters map[string]any) ([]*Document, error)
}

// FilterValidator is an optional capability for validating metadata filters
// against the keys the base actually indexes.
type FilterValidator interface {
	// ValidateFilters splits filters into the valid subset and the list of
	// unindexed keys.
	ValidateFilters(filters map[string]any) (valid map[string]any, invalid []string)
}

// Capabilities is the capability surface of a knowledge base, resolved once
// at construction instead of probed per call.
type Capabilities struct {
	// Base is the underlying knowledge base.
	Base Base
	// Inserter is non-nil when the base supports writes.
	Inserter Inserter
	// Searcher is non-nil when the base exposes the legacy search entry.
	Searcher Searcher
	// FilterValidator is non-nil when the base can validate filters.
	FilterValidator FilterValidator
}

// Resolve inspects the base once and records which optional capabilities it
// implements.
func Resolve(base Base) Capabilities {
	caps := Capabilities{Base: base}
	if ins, ok := base.(Inserter); ok {
		caps.Inserter = ins
	}
	if srch, ok := base.(Searcher); ok {
		caps.Searcher = srch
	}
	if fv, ok := base.(FilterValidator); ok {
		caps.FilterValidator = fv
	}
	return caps
}
