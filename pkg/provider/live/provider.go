// Package live defines the Provider interface for real-time multimodal
// inference backends.
//
// A live provider wraps a remote model that holds one persistent,
// bidirectional session per user: the client streams microphone audio and
// camera frames into it, and the model answers with synthesised speech (and
// optionally a text transcription of that speech) whenever it decides to.
// There is no request/response pairing; both directions flow independently.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MIME types understood by every provider.
const (
	// MIMEAudioPCM16k is mono little-endian 16-bit PCM at 16 kHz.
	MIMEAudioPCM16k = "audio/pcm;rate=16000"

	// MIMEJPEG is a baseline JPEG still image.
	MIMEJPEG = "image/jpeg"
)

// OutputSampleRate is the rate in Hz of the PCM16 audio emitted on
// [Session.Audio].
const OutputSampleRate = 24000

// AudioMIME returns the MIME type for mono PCM16 at rate Hz.
func AudioMIME(rate int) string {
	if rate == 16000 {
		return MIMEAudioPCM16k
	}
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// IsAudio reports whether mime names a PCM audio payload.
func IsAudio(mime string) bool { return strings.HasPrefix(mime, "audio/") }

// ErrSessionClosed is returned by Send after Close or after the transport
// has failed.
var ErrSessionClosed = errors.New("live: session closed")

// Media is one payload sent into a session.
type Media struct {
	// MIMEType selects how the model interprets Data; see the MIME constants.
	MIMEType string

	// Data is the raw payload. Providers handle any transport encoding.
	Data []byte
}

// Role identifies who produced a transcript.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Transcript is a piece of recognised or generated text.
type Transcript struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// SessionConfig is the initial configuration for a new session.
type SessionConfig struct {
	// Instructions is the system-level prompt that defines the assistant's role.
	Instructions string

	// Voice is a provider-specific prebuilt voice name. Empty selects the
	// provider default.
	Voice string

	// OutputTranscription asks the model to also emit its spoken answers as
	// text on [Session.Transcripts].
	OutputTranscription bool
}

// Capabilities describes static properties of a provider.
type Capabilities struct {
	// Voices lists the prebuilt voice names the provider accepts.
	Voices []string

	// MaxSessionDuration is the provider-imposed session limit. Zero means no
	// documented limit.
	MaxSessionDuration time.Duration
}

// Session represents an open live session.
//
// Send must return quickly; it is called from the sender goroutine that
// drains capture payloads. Audio and Transcripts are owned by the session
// and closed when it ends.
type Session interface {
	// Send delivers one media payload to the model.
	Send(m Media) error

	// Audio emits raw PCM16 little-endian 24 kHz mono audio as the model
	// speaks. The channel is closed when the session ends; check Err after.
	Audio() <-chan []byte

	// Transcripts emits transcription text. Closed when the session ends.
	Transcripts() <-chan Transcript

	// OnError registers a callback for error events reported by the remote
	// side while the connection stays up. Passing nil clears it.
	OnError(handler func(error))

	// Err returns the error that ended the session, or nil if it ended
	// cleanly (including via Close).
	Err() error

	// Close gracefully closes the connection and releases resources.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any live backend.
type Provider interface {
	// Connect opens a session and returns once the remote side has accepted
	// the configuration. The caller owns the Session and must Close it.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)

	// Capabilities returns static metadata about the provider.
	Capabilities() Capabilities
}
