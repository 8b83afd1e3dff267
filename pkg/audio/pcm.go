package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrOddLength is returned by [BytesToPCM16] when the input cannot be split
// into whole 16-bit samples.
var ErrOddLength = errors.New("audio: odd byte length for 16-bit PCM")

// Duration returns how long samples frames last at f.SampleRate. Channels are
// ignored because samples counts frames, not interleaved values.
func (f Format) Duration(samples int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(samples) * int64(time.Second) / int64(f.SampleRate))
}

// Frames returns the number of whole frames that fit in d at f.SampleRate.
func (f Format) Frames(d time.Duration) int64 {
	if f.SampleRate <= 0 || d <= 0 {
		return 0
	}
	return int64(d) * int64(f.SampleRate) / int64(time.Second)
}

// String returns e.g. "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// FloatToPCM16 converts normalised float samples to signed 16-bit PCM.
//
// Each sample is clamped to [-1, 1] and scaled by 32767 when non-negative and
// by 32768 when negative, so both int16 extremes are reachable. NaN maps to 0.
// The fractional part is truncated.
func FloatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s)
		switch {
		case math.IsNaN(v):
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		if v < 0 {
			out[i] = int16(v * 32768)
		} else {
			out[i] = int16(v * 32767)
		}
	}
	return out
}

// PCM16ToFloat converts signed 16-bit PCM to floats by dividing by 32768.
// Results are always in [-1, 1).
func PCM16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// PCM16ToBytes serialises samples as little-endian bytes.
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToPCM16 parses little-endian 16-bit PCM. It returns [ErrOddLength]
// when len(b) is odd.
func BytesToPCM16(b []byte) ([]int16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddLength, len(b))
	}
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out, nil
}
