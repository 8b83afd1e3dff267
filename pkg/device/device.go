// Package device defines how the daemon reaches the camera, microphone and
// speaker.
//
// Capture hardware is acquired as a [Media] bundle, the way a browser hands
// out a media stream: one call asks for every track at once, and one Stop
// releases them all. Audio output is opened separately as a playback.Sink
// whose clock starts at zero.
//
// Backends for microphone/speaker and for the camera are independent
// ([AudioBackend], [CameraBackend]); [Compose] joins them into [Devices].
package device

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/MrWong99/oceanwave/pkg/audio"
	"github.com/MrWong99/oceanwave/pkg/audio/playback"
)

var (
	// ErrPermissionDenied is returned when the OS or user refused access to
	// a capture device.
	ErrPermissionDenied = errors.New("device: permission denied")

	// ErrUnavailable is returned when no matching device exists.
	ErrUnavailable = errors.New("device: not available")
)

// Facing modes for [Constraints.Facing].
const (
	FacingUser        = "user"
	FacingEnvironment = "environment"
)

// Constraints selects which tracks to acquire.
type Constraints struct {
	Video bool
	Audio bool

	// Facing is a camera preference; backends fall back to any camera.
	Facing string

	// SampleRate is the rate in Hz microphone blocks are delivered at.
	SampleRate int

	// BlockSize is the number of frames per microphone block.
	BlockSize int
}

// Camera is an acquired video track.
type Camera interface {
	// Frame returns the most recent image. It fails if no frame has been
	// captured yet.
	Frame(ctx context.Context) (image.Image, error)

	// Close stops the track. Idempotent.
	Close() error
}

// Processor is an attached microphone callback.
type Processor interface {
	// Detach stops further deliveries. Idempotent.
	Detach() error
}

// Microphone is an acquired audio input track.
type Microphone interface {
	// Format reports the format blocks are delivered in (always mono).
	Format() audio.Format

	// Attach starts delivering fixed-size blocks to fn. The callback runs
	// on the device thread and must not block. Only one processor may be
	// attached at a time.
	Attach(fn func(block []float32)) (Processor, error)

	// Close stops the track. Idempotent.
	Close() error
}

// Media is a set of acquired capture tracks.
type Media interface {
	// Camera returns the video track, or nil if none was requested.
	Camera() Camera

	// Microphone returns the audio track, or nil if none was requested.
	Microphone() Microphone

	// Stop stops every track. Idempotent.
	Stop() error
}

// Devices acquires capture tracks and opens audio outputs.
type Devices interface {
	Acquire(ctx context.Context, c Constraints) (Media, error)
	OpenOutput(ctx context.Context, rate int) (playback.Sink, error)
}

// AudioBackend provides microphone input and speaker output.
type AudioBackend interface {
	OpenMicrophone(ctx context.Context, rate, block int) (Microphone, error)
	OpenOutput(ctx context.Context, rate int) (playback.Sink, error)
}

// CameraBackend provides video capture.
type CameraBackend interface {
	OpenCamera(ctx context.Context, facing string) (Camera, error)
}

// ── Compose ───────────────────────────────────────────────────────────────────

var _ Devices = (*composite)(nil)

type composite struct {
	audio  AudioBackend
	camera CameraBackend
}

// Compose joins an audio and a camera backend. Either may be nil, in which
// case requests for that track fail with [ErrUnavailable].
func Compose(a AudioBackend, c CameraBackend) Devices {
	return &composite{audio: a, camera: c}
}

// Acquire opens the requested tracks. If any track fails, tracks opened so
// far are closed and the first error is returned.
func (d *composite) Acquire(ctx context.Context, c Constraints) (Media, error) {
	m := &media{}

	if c.Video {
		if d.camera == nil {
			return nil, fmt.Errorf("device: camera: %w", ErrUnavailable)
		}
		cam, err := d.camera.OpenCamera(ctx, c.Facing)
		if err != nil {
			return nil, fmt.Errorf("device: camera: %w", err)
		}
		m.camera = cam
	}

	if c.Audio {
		if d.audio == nil {
			_ = m.Stop()
			return nil, fmt.Errorf("device: microphone: %w", ErrUnavailable)
		}
		mic, err := d.audio.OpenMicrophone(ctx, c.SampleRate, c.BlockSize)
		if err != nil {
			_ = m.Stop()
			return nil, fmt.Errorf("device: microphone: %w", err)
		}
		m.mic = mic
	}

	return m, nil
}

// OpenOutput opens a speaker sink at rate Hz.
func (d *composite) OpenOutput(ctx context.Context, rate int) (playback.Sink, error) {
	if d.audio == nil {
		return nil, fmt.Errorf("device: output: %w", ErrUnavailable)
	}
	return d.audio.OpenOutput(ctx, rate)
}

type media struct {
	camera Camera
	mic    Microphone

	stopOnce sync.Once
	stopErr  error
}

func (m *media) Camera() Camera         { return m.camera }
func (m *media) Microphone() Microphone { return m.mic }

func (m *media) Stop() error {
	m.stopOnce.Do(func() {
		var errs []error
		if m.camera != nil {
			if err := m.camera.Close(); err != nil {
				errs = append(errs, fmt.Errorf("device: close camera: %w", err))
			}
		}
		if m.mic != nil {
			if err := m.mic.Close(); err != nil {
				errs = append(errs, fmt.Errorf("device: close microphone: %w", err))
			}
		}
		m.stopErr = errors.Join(errs...)
	})
	return m.stopErr
}
