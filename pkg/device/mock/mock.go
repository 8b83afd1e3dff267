// Package mock provides in-memory capture devices and audio outputs.
//
// Backend implements both device.AudioBackend and device.CameraBackend, so
// device.Compose(b, b) yields a complete device.Devices. Tests drive the
// microphone with Microphone.Emit and inspect what was scheduled on each
// Output. With Realtime set, outputs render themselves in real time, which
// makes the backend usable for headless runs of the daemon.
package mock

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/MrWong99/oceanwave/pkg/audio"
	"github.com/MrWong99/oceanwave/pkg/audio/playback"
	"github.com/MrWong99/oceanwave/pkg/device"
)

var (
	_ device.AudioBackend  = (*Backend)(nil)
	_ device.CameraBackend = (*Backend)(nil)
	_ device.Microphone    = (*Microphone)(nil)
	_ device.Camera        = (*Camera)(nil)
	_ playback.Sink        = (*Output)(nil)
)

// Backend is a mock capture and playback backend.
type Backend struct {
	mu sync.Mutex

	// MicErr, if non-nil, is returned by OpenMicrophone.
	MicErr error

	// CameraErr, if non-nil, is returned by OpenCamera.
	CameraErr error

	// OutputErr, if non-nil, is returned by OpenOutput.
	OutputErr error

	// Block, if non-nil, makes every Open call wait until it is closed or
	// the context is done.
	Block chan struct{}

	pending int

	// Image is the frame every camera returns. A 64x48 gray image is used
	// when nil.
	Image image.Image

	// Realtime makes outputs render themselves on a wall-clock ticker.
	Realtime bool

	// ReleaseErr, if non-nil, is returned by every microphone and camera
	// Close. The track is still marked closed.
	ReleaseErr error

	// OnRelease, if set, is called with "detach", "microphone", "camera",
	// "flush" or "output" as those resources are let go. Tests use it to
	// check release order.
	OnRelease func(what string)

	Microphones []*Microphone
	Cameras     []*Camera
	Outputs     []*Output
}

// OpenMicrophone returns a new Microphone or MicErr.
func (b *Backend) OpenMicrophone(ctx context.Context, rate, block int) (device.Microphone, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.MicErr != nil {
		return nil, b.MicErr
	}
	m := &Microphone{format: audio.Format{SampleRate: rate, Channels: 1}, block: block, hooks: b.hooks()}
	b.Microphones = append(b.Microphones, m)
	return m, nil
}

// OpenCamera returns a new Camera or CameraErr.
func (b *Backend) OpenCamera(ctx context.Context, facing string) (device.Camera, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.CameraErr != nil {
		return nil, b.CameraErr
	}
	img := b.Image
	if img == nil {
		gray := image.NewGray(image.Rect(0, 0, 64, 48))
		for i := range gray.Pix {
			gray.Pix[i] = 0x80
		}
		img = gray
	}
	c := &Camera{Facing: facing, img: img, hooks: b.hooks()}
	b.Cameras = append(b.Cameras, c)
	return c, nil
}

// OpenOutput returns a new Output or OutputErr.
func (b *Backend) OpenOutput(ctx context.Context, rate int) (playback.Sink, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.OutputErr != nil {
		return nil, b.OutputErr
	}
	o := &Output{Timeline: playback.NewTimeline(rate), hooks: b.hooks()}
	if b.Realtime {
		driveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		o.stopDrive = cancel
		go o.Drive(driveCtx, 0)
	}
	b.Outputs = append(b.Outputs, o)
	return o, nil
}

func (b *Backend) wait(ctx context.Context) error {
	b.mu.Lock()
	block := b.Block
	if block == nil {
		b.mu.Unlock()
		return nil
	}
	b.pending++
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.pending--
		b.mu.Unlock()
	}()
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// hooks snapshots the release knobs for a new track. Callers hold b.mu.
func (b *Backend) hooks() releaseHooks {
	return releaseHooks{err: b.ReleaseErr, notify: b.OnRelease}
}

type releaseHooks struct {
	err    error
	notify func(string)
}

func (h releaseHooks) released(what string) {
	if h.notify != nil {
		h.notify(what)
	}
}

// Waiting returns the number of Open calls blocked on Block.
func (b *Backend) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// LastMicrophone returns the most recently opened microphone, or nil.
func (b *Backend) LastMicrophone() *Microphone {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Microphones) == 0 {
		return nil
	}
	return b.Microphones[len(b.Microphones)-1]
}

// LastCamera returns the most recently opened camera, or nil.
func (b *Backend) LastCamera() *Camera {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Cameras) == 0 {
		return nil
	}
	return b.Cameras[len(b.Cameras)-1]
}

// LastOutput returns the most recently opened output, or nil.
func (b *Backend) LastOutput() *Output {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Outputs) == 0 {
		return nil
	}
	return b.Outputs[len(b.Outputs)-1]
}

// ── Microphone ────────────────────────────────────────────────────────────────

// Microphone is a mock device.Microphone driven by Emit.
type Microphone struct {
	mu       sync.Mutex
	format   audio.Format
	block    int
	fn       func([]float32)
	closed   bool
	attaches int
	hooks    releaseHooks
}

// Format returns the format requested at open.
func (m *Microphone) Format() audio.Format { return m.format }

// Attach installs fn as the block callback.
func (m *Microphone) Attach(fn func([]float32)) (device.Processor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("mock: microphone closed")
	}
	if m.fn != nil {
		return nil, errors.New("mock: processor already attached")
	}
	m.fn = fn
	m.attaches++
	return &processor{m: m}, nil
}

// Emit delivers one block of the configured size filled with value to the
// attached callback. It reports whether a callback was attached.
func (m *Microphone) Emit(value float32) bool {
	m.mu.Lock()
	fn := m.fn
	n := m.block
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	if n <= 0 {
		n = 4096
	}
	block := make([]float32, n)
	for i := range block {
		block[i] = value
	}
	fn(block)
	return true
}

// Attached reports whether a processor is currently attached.
func (m *Microphone) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fn != nil
}

// Closed reports whether Close was called.
func (m *Microphone) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the microphone closed and detaches any processor.
func (m *Microphone) Close() error {
	m.mu.Lock()
	m.closed = true
	m.fn = nil
	m.mu.Unlock()
	m.hooks.released("microphone")
	return m.hooks.err
}

type processor struct {
	m    *Microphone
	once sync.Once
}

func (p *processor) Detach() error {
	p.once.Do(func() {
		p.m.mu.Lock()
		p.m.fn = nil
		p.m.mu.Unlock()
		p.m.hooks.released("detach")
	})
	return nil
}

// ── Camera ────────────────────────────────────────────────────────────────────

// Camera is a mock device.Camera returning a fixed image.
type Camera struct {
	Facing string

	mu     sync.Mutex
	img    image.Image
	frames int
	closed bool
	hooks  releaseHooks
}

// Frame returns the configured image.
func (c *Camera) Frame(context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("mock: camera closed")
	}
	c.frames++
	return c.img, nil
}

// Frames returns how many frames were grabbed.
func (c *Camera) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Closed reports whether Close was called.
func (c *Camera) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close marks the camera closed.
func (c *Camera) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.hooks.released("camera")
	return c.hooks.err
}

// Fill returns a solid-colour RGBA test image.
func Fill(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

// ── Output ────────────────────────────────────────────────────────────────────

// Output is a playback sink backed by a Timeline that records where each
// buffer was scheduled. Its clock only advances when Render is called,
// unless the backend is Realtime.
type Output struct {
	*playback.Timeline

	mu        sync.Mutex
	starts    []time.Duration
	flushes   int
	closed    bool
	stopDrive context.CancelFunc
	hooks     releaseHooks
}

// Schedule records at and forwards to the timeline.
func (o *Output) Schedule(at time.Duration, samples []float32) {
	o.mu.Lock()
	o.starts = append(o.starts, at)
	o.mu.Unlock()
	o.Timeline.Schedule(at, samples)
}

// Flush records the call and forwards to the timeline.
func (o *Output) Flush() {
	o.mu.Lock()
	o.flushes++
	o.mu.Unlock()
	o.hooks.released("flush")
	o.Timeline.Flush()
}

// Close stops the realtime driver, if any, and closes the timeline.
func (o *Output) Close() error {
	o.mu.Lock()
	o.closed = true
	stop := o.stopDrive
	o.mu.Unlock()
	if stop != nil {
		stop()
	}
	o.hooks.released("output")
	return o.Timeline.Close()
}

// Starts returns the recorded schedule positions in call order.
func (o *Output) Starts() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]time.Duration(nil), o.starts...)
}

// Flushes returns how many times Flush was called.
func (o *Output) Flushes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushes
}

// Closed reports whether Close was called.
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
