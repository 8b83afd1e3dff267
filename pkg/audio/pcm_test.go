package audio_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/oceanwave/pkg/audio"
)

func TestFloatToPCM16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"full positive", 1, 32767},
		{"full negative", -1, -32768},
		{"clamp high", 1.5, 32767},
		{"clamp low", -1.5, -32768},
		{"half positive truncates", 0.5, 16383},
		{"half negative", -0.5, -16384},
		{"nan", float32(math.NaN()), 0},
		{"positive infinity", float32(math.Inf(1)), 32767},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := audio.FloatToPCM16([]float32{tc.in})
			if got[0] != tc.want {
				t.Errorf("FloatToPCM16(%v) = %d, want %d", tc.in, got[0], tc.want)
			}
		})
	}
}

func TestFloatToPCM16_PreservesLength(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 1, 4096} {
		if got := audio.FloatToPCM16(make([]float32, n)); len(got) != n {
			t.Errorf("len(FloatToPCM16(%d samples)) = %d", n, len(got))
		}
	}
}

func TestPCM16ToFloat_Range(t *testing.T) {
	t.Parallel()

	all := make([]int16, 0, 65536)
	for v := math.MinInt16; v <= math.MaxInt16; v++ {
		all = append(all, int16(v))
	}
	for i, f := range audio.PCM16ToFloat(all) {
		if f < -1 || f > 1 {
			t.Fatalf("sample %d (%d) mapped to %f, outside [-1, 1]", i, all[i], f)
		}
	}
}

func TestPCM16ToFloat_Values(t *testing.T) {
	t.Parallel()
	got := audio.PCM16ToFloat([]int16{-32768, 0, 16384})
	want := []float32{-1, 0, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestPCM16Bytes_LittleEndian(t *testing.T) {
	t.Parallel()
	b := audio.PCM16ToBytes([]int16{1, -2})
	want := []byte{0x01, 0x00, 0xFE, 0xFF}
	if !bytes.Equal(b, want) {
		t.Fatalf("PCM16ToBytes = %x, want %x", b, want)
	}
	back, err := audio.BytesToPCM16(b)
	if err != nil {
		t.Fatalf("BytesToPCM16: %v", err)
	}
	if back[0] != 1 || back[1] != -2 {
		t.Errorf("BytesToPCM16 = %v, want [1 -2]", back)
	}
}

func TestBytesToPCM16_OddLength(t *testing.T) {
	t.Parallel()
	_, err := audio.BytesToPCM16([]byte{1, 2, 3})
	if !errors.Is(err, audio.ErrOddLength) {
		t.Fatalf("expected ErrOddLength, got %v", err)
	}
}
