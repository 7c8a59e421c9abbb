//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package inmemory provides a naive in-memory knowledge base for tests and
// small deployments. Relevance is term overlap, not embeddings.
package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ensemble-ai/ensemble/knowledge"
)

// Base is an in-memory knowledge.Base with insert, search and filter
// validation capabilities.
type Base struct {
	mu   sync.RWMutex
	docs []*knowledge.Document
	// indexed metadata keys, used by ValidateFilters.
	keys map[string]struct{}
}

// New creates an empty in-memory knowledge base.
func New() *Base {
	return &Base{keys: make(map[string]struct{})}
}

// Retrieve implements knowledge.Base.
func (b *Base) Retrieve(
	_ context.Context, query string, maxResults int, filters map[string]any,
) ([]*knowledge.Document, error) {
	if query == "" {
		return nil, knowledge.ErrEmptyQuery
	}
	terms := strings.Fields(strings.ToLower(query))

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*knowledge.Document
	for _, doc := range b.docs {
		if !matchesFilters(doc, filters) {
			continue
		}
		score := overlapScore(doc, terms)
		if score == 0 {
			continue
		}
		scored := *doc
		scored.Score = score
		out = append(out, &scored)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// Search implements knowledge.Searcher.
func (b *Base) Search(
	ctx context.Context, query string, maxResults int, filters map[string]any,
) ([]*knowledge.Document, error) {
	return b.Retrieve(ctx, query, maxResults, filters)
}

// Insert implements knowledge.Inserter.
func (b *Base) Insert(
	_ context.Context, name, content string, skipIfExists bool, metadata map[string]any,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if skipIfExists {
		for _, doc := range b.docs {
			if doc.Name == name {
				return nil
			}
		}
	}
	b.docs = append(b.docs, &knowledge.Document{
		ID:       uuid.New().String(),
		Name:     name,
		Content:  content,
		Metadata: metadata,
	})
	for k := range metadata {
		b.keys[k] = struct{}{}
	}
	return nil
}

// ValidateFilters implements knowledge.FilterValidator.
func (b *Base) ValidateFilters(filters map[string]any) (map[string]any, []string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	valid := make(map[string]any, len(filters))
	var invalid []string
	for k, v := range filters {
		if _, ok := b.keys[k]; ok {
			valid[k] = v
			continue
		}
		invalid = append(invalid, k)
	}
	return valid, invalid
}

func matchesFilters(doc *knowledge.Document, filters map[string]any) bool {
	for k, v := range filters {
		if doc.Metadata[k] != v {
			return false
		}
	}
	return true
}

func overlapScore(doc *knowledge.Document, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	text := strings.ToLower(doc.Name + " " + doc.Content)
	hits := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
