//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package flow

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ensemble-ai/ensemble/log"
	"github.com/ensemble-ai/ensemble/model"
)

const (
	compressionEncoding = "cl100k_base"

	// bytesPerToken approximates token counts when the encoder is
	// unavailable.
	bytesPerToken = 4

	truncationMarker = "\n... [result truncated]"
)

// Compressor bounds tool results before they re-enter the model context.
// Results above the token limit are truncated at a token boundary and
// reported through compression events.
type Compressor struct {
	limit int

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewCompressor creates a compressor with the given per-result token limit.
// A non-positive limit disables compression.
func NewCompressor(limit int) *Compressor {
	return &Compressor{limit: limit}
}

func (c *Compressor) encoder() *tiktoken.Tiktoken {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(compressionEncoding)
		if err != nil {
			log.Warnf("compression: encoding %s unavailable, falling back to byte estimation: %v",
				compressionEncoding, err)
			return
		}
		c.enc = enc
	})
	return c.enc
}

// CountTokens returns the token count of text, estimated from byte length
// when the encoder could not be initialized.
func (c *Compressor) CountTokens(text string) int {
	if enc := c.encoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + bytesPerToken - 1) / bytesPerToken
}

// Compress bounds one tool result. It returns the result unchanged when it
// fits within the limit; otherwise the truncated result, before/after stats
// and true.
func (c *Compressor) Compress(toolCallID, result string) (string, *model.CompressionStats, bool) {
	if c == nil || c.limit <= 0 {
		return result, nil, false
	}
	original := c.CountTokens(result)
	if original <= c.limit {
		return result, nil, false
	}

	var truncated string
	if enc := c.encoder(); enc != nil {
		tokens := enc.Encode(result, nil, nil)
		truncated = enc.Decode(tokens[:c.limit])
	} else {
		truncated = result[:c.limit*bytesPerToken]
	}
	truncated += truncationMarker

	return truncated, &model.CompressionStats{
		ToolCallID:       toolCallID,
		OriginalTokens:   original,
		CompressedTokens: c.CountTokens(truncated),
	}, true
}
