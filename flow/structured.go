//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package flow turns a model's chunked reply into a well-ordered run-event
// sequence while folding it into the run record.
package flow

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ensemble-ai/ensemble/log"
	"github.com/ensemble-ai/ensemble/model"
	"github.com/ensemble-ai/ensemble/run"
)

// parseStructured converts buffered model text to the requested output
// schema. A plain-mapping target stores the parsed map tagged "dict"; a
// named schema tags the parsed value with the schema name. On parse failure
// the text is repaired once and re-parsed; if that also fails a warning is
// logged and the raw string is kept. This never returns an error to the
// caller.
func parseStructured(text string, format *model.ResponseFormat) (any, string) {
	raw := extractJSON(text)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			log.Warnf("structured output is not valid JSON, keeping raw text: %v", err)
			return text, run.ContentTypeText
		}
		if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
			log.Warnf("structured output unparseable after repair, keeping raw text: %v", err)
			return text, run.ContentTypeText
		}
	}

	if format.AsMap || format.Name == "" {
		return parsed, run.ContentTypeMap
	}
	return parsed, format.Name
}

// extractJSON strips a markdown code fence when the model wrapped its JSON
// in one.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
