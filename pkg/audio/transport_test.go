package audio_test

import (
	"bytes"
	"testing"

	"github.com/MrWong99/oceanwave/pkg/audio"
)

func TestTransport_RoundTrip(t *testing.T) {
	t.Parallel()

	large := make([]byte, 8193)
	for i := range large {
		large[i] = byte(i * 7)
	}
	for _, b := range [][]byte{{}, {0xAB}, large} {
		enc := audio.EncodeTransport(b)
		dec, err := audio.DecodeTransport(enc)
		if err != nil {
			t.Fatalf("DecodeTransport(len %d): %v", len(b), err)
		}
		if !bytes.Equal(dec, b) {
			t.Errorf("round trip of %d bytes altered the payload", len(b))
		}
	}
}

func TestDecodeTransport_Invalid(t *testing.T) {
	t.Parallel()
	if _, err := audio.DecodeTransport("not base64!"); err == nil {
		t.Fatal("expected error for invalid input")
	}
}
