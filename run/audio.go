//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package run

import (
	"encoding/base64"

	"github.com/ensemble-ai/ensemble/log"
	"github.com/ensemble-ai/ensemble/model"
)

// decodeAudioContent returns the binary content of an audio fragment.
// Base64 text that fails to decode is treated as raw UTF-8 bytes rather
// than aborting the stream.
func decodeAudioContent(chunk *model.AudioChunk) []byte {
	if len(chunk.Data) > 0 {
		return chunk.Data
	}
	if chunk.DataBase64 == "" {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(chunk.DataBase64)
	if err != nil {
		log.Warnf("audio content is not valid base64, keeping raw bytes: %v", err)
		return []byte(chunk.DataBase64)
	}
	return decoded
}
