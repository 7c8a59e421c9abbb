//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsolation(t *testing.T) {
	original := State{
		"topic": "weather",
		"nested": map[string]any{
			"count": 1,
		},
		"list": []any{"a", "b"},
	}

	clone := original.Clone()
	clone["topic"] = "sports"
	clone["nested"].(State)["count"] = 2
	clone["list"].([]any)[0] = "z"

	assert.Equal(t, "weather", original["topic"])
	assert.Equal(t, 1, original["nested"].(map[string]any)["count"])
	assert.Equal(t, "a", original["list"].([]any)[0])
}

func TestCloneNil(t *testing.T) {
	var s State
	clone := s.Clone()
	require.NotNil(t, clone)
	clone["k"] = "v"
	assert.Len(t, clone, 1)
}

func TestMergeDeltaWins(t *testing.T) {
	base := State{"a": 1, "b": "keep"}
	delta := State{"a": 2, "c": true}

	merged := Merge(base, delta)

	assert.Equal(t, 2, merged["a"])
	assert.Equal(t, "keep", merged["b"])
	assert.Equal(t, true, merged["c"])
}

func TestMergeRecursesIntoNestedMappings(t *testing.T) {
	base := State{
		"prefs": map[string]any{"lang": "en", "tz": "UTC"},
	}
	delta := State{
		"prefs": map[string]any{"lang": "de"},
	}

	merged := Merge(base, delta)

	prefs, ok := merged["prefs"].(State)
	require.True(t, ok)
	assert.Equal(t, "de", prefs["lang"])
	assert.Equal(t, "UTC", prefs["tz"])
}

func TestMergeReplacesWhenShapesDiffer(t *testing.T) {
	base := State{"v": map[string]any{"a": 1}}
	delta := State{"v": "scalar"}

	merged := Merge(base, delta)

	assert.Equal(t, "scalar", merged["v"])
}

func TestMergeIntoNilBase(t *testing.T) {
	merged := Merge(nil, State{"k": "v"})
	assert.Equal(t, "v", merged["k"])
}
