// Package wireline provides a minimal line-oriented framing for
// cryptchats frames, the way the protocol's original IRC-based
// transport carried them: a frame base64-encoded onto a single text
// line.
package wireline

import (
	"encoding/base64"
	"fmt"
)

// EncodeLine base64-encodes frame for transport over a line-oriented
// medium.
func EncodeLine(frame []byte) string {
	return base64.StdEncoding.EncodeToString(frame)
}

// DecodeLine reverses EncodeLine. It returns an error if line is not
// valid base64.
func DecodeLine(line string) ([]byte, error) {
	frame, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		return nil, fmt.Errorf("wireline: decode line: %w", err)
	}
	return frame, nil
}
