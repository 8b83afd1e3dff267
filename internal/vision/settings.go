package vision

import (
	"time"

	"github.com/MrWong99/oceanwave/internal/capture"
	"github.com/MrWong99/oceanwave/pkg/device"
	"github.com/MrWong99/oceanwave/pkg/provider/live"
)

// DefaultInstructions is the system instruction sent when none is configured.
const DefaultInstructions = `You are Vision Pal, an assistant for people with low vision.
Your persona: calm, precise and direct. You act as a sighted guide.

Core tasks:
1. Navigation: keep describing the spatial layout. Use clock positions (for example "at 2 o'clock") and approximate distances. Warn about obstacles immediately.
2. Medication: if you see medication, name it, give the dosage and read any warnings out loud.
3. Pill identification: if you see a loose pill, describe its shape, colour and imprint code.

When interacting:
- Speak clearly.
- If the user shows you a document or a bottle, guide them to move it closer or rotate it when the text is blurry.
- Answer questions right away based on what you see.`

// Defaults for [Settings].
const (
	DefaultBlockSize      = 4096
	DefaultInputRate      = 16000
	DefaultOutboxSize     = 32
	DefaultConnectTimeout = 15 * time.Second
)

// Settings configure the next session. Changing them never affects a
// session that is already connecting or open.
type Settings struct {
	// Instructions is the system instruction for the model.
	Instructions string

	// Voice is the prebuilt voice name; empty uses the provider default.
	Voice string

	// Captions enables transcription of the model's speech.
	Captions bool

	// Facing is the preferred camera.
	Facing string

	// Video controls frame sampling.
	Video capture.VideoConfig

	// BlockSize is the number of microphone frames per payload.
	BlockSize int

	// InputSampleRate is the microphone rate in Hz.
	InputSampleRate int

	// OutputSampleRate is the playback rate in Hz.
	OutputSampleRate int

	// OutboxSize bounds the payloads waiting to be sent.
	OutboxSize int

	// ConnectTimeout bounds dialling the provider.
	ConnectTimeout time.Duration
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{}.withDefaults()
}

func (s Settings) withDefaults() Settings {
	if s.Instructions == "" {
		s.Instructions = DefaultInstructions
	}
	if s.Facing == "" {
		s.Facing = device.FacingEnvironment
	}
	if s.Video.Interval <= 0 {
		s.Video.Interval = capture.DefaultFrameInterval
	}
	if s.Video.Scale <= 0 || s.Video.Scale > 1 {
		s.Video.Scale = capture.DefaultFrameScale
	}
	if s.Video.Quality <= 0 || s.Video.Quality > 100 {
		s.Video.Quality = capture.DefaultJPEGQuality
	}
	if s.BlockSize <= 0 {
		s.BlockSize = DefaultBlockSize
	}
	if s.InputSampleRate <= 0 {
		s.InputSampleRate = DefaultInputRate
	}
	if s.OutputSampleRate <= 0 {
		s.OutputSampleRate = live.OutputSampleRate
	}
	if s.OutboxSize <= 0 {
		s.OutboxSize = DefaultOutboxSize
	}
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = DefaultConnectTimeout
	}
	return s
}
