//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package session provides session state and the session persistence contract.
package session

// State is the arbitrary key/value data shared across a conversation.
//
// State follows a copy-in/merge-out discipline during delegation: each member
// receives a clone, mutates its own copy, and the result is merged back into
// the parent after the member run completes. No two concurrent member tasks
// ever mutate the same State value.
type State map[string]any

// Clone returns a copy of the state. Nested map values are cloned
// recursively so member mutations are never visible to siblings mid-run.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case State:
		return val.Clone()
	case map[string]any:
		return State(val).Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Merge folds delta into base and returns base. The conflict rule is: delta
// wins per key; when both sides hold a mapping the merge recurses instead of
// replacing.
func Merge(base, delta State) State {
	if base == nil {
		base = State{}
	}
	for k, dv := range delta {
		bm, bok := asState(base[k])
		dm, dok := asState(dv)
		if bok && dok {
			base[k] = Merge(bm, dm)
			continue
		}
		base[k] = dv
	}
	return base
}

func asState(v any) (State, bool) {
	switch val := v.(type) {
	case State:
		return val, true
	case map[string]any:
		return State(val), true
	default:
		return nil, false
	}
}
