package audio

import (
	"encoding/base64"
	"fmt"
)

// EncodeTransport encodes raw bytes into the text form carried inside JSON
// media chunks (standard base64 with padding).
func EncodeTransport(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeTransport is the inverse of [EncodeTransport].
func DecodeTransport(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("audio: decode transport: %w", err)
	}
	return b, nil
}
