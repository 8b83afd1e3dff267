package vision

import (
	"errors"
	"fmt"

	"github.com/MrWong99/oceanwave/pkg/device"
)

// Phase is the lifecycle position of the live session.
type Phase int

const (
	// PhaseIdle means no session has been started yet.
	PhaseIdle Phase = iota

	// PhaseConnecting means devices are held and the provider is dialling.
	PhaseConnecting

	// PhaseOpen means media is streaming in both directions.
	PhaseOpen

	// PhaseClosed means the last session ended, cleanly or with an error.
	PhaseClosed
)

// String returns the lower-case phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseOpen:
		return "open"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	for _, c := range []Phase{PhaseIdle, PhaseConnecting, PhaseOpen, PhaseClosed} {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("vision: unknown phase %q", b)
}

// Kind classifies why a session failed.
type Kind string

const (
	// KindAcquisition means the camera or microphone could not be opened.
	KindAcquisition Kind = "acquisition"

	// KindConnection means the live provider refused or never answered.
	KindConnection Kind = "connection"

	// KindTransport means an open session broke.
	KindTransport Kind = "transport"
)

// User-facing messages shown for each failure.
const (
	MsgAccessDenied   = "Camera or Microphone access denied. Please grant permissions."
	MsgInitFailed     = "Failed to initialize Vision Pal."
	MsgConnectionLost = "Connection Error. Please Restart."
)

var (
	// ErrSessionActive is returned by Start while a session is connecting or
	// open.
	ErrSessionActive = errors.New("vision: session already active")

	// ErrNotRunning is returned when the controller's event loop is not
	// running.
	ErrNotRunning = errors.New("vision: controller not running")

	// ErrStopped is returned by Start when Stop ends the session before it
	// opened.
	ErrStopped = errors.New("vision: stopped before the session opened")
)

// SessionError reports a failed session together with its [Kind].
type SessionError struct {
	Kind Kind
	Err  error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("vision: %s: %v", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// message maps a failure to the text shown to the user.
func message(kind Kind, err error) string {
	switch kind {
	case KindAcquisition:
		if errors.Is(err, device.ErrPermissionDenied) {
			return MsgAccessDenied
		}
		return MsgInitFailed
	case KindConnection:
		return MsgInitFailed
	default:
		return MsgConnectionLost
	}
}

// State is a snapshot of the controller, published on every transition.
type State struct {
	// SessionID identifies the current or most recent session.
	SessionID string `json:"session_id,omitempty"`

	Phase Phase `json:"phase"`

	// Muted reports whether microphone blocks are being discarded.
	Muted bool `json:"muted"`

	// Previewing reports whether camera and microphone are held.
	Previewing bool `json:"previewing"`

	// Error is set when the last acquisition or session failed.
	Error Kind `json:"error,omitempty"`

	// Message is the user-facing text for Error.
	Message string `json:"message,omitempty"`

	// Caption is the tail of the model's spoken output, when transcription
	// is enabled.
	Caption string `json:"caption,omitempty"`
}

// Active reports whether a session is connecting or open.
func (s State) Active() bool {
	return s.Phase == PhaseConnecting || s.Phase == PhaseOpen
}
