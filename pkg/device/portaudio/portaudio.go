// Package portaudio implements device.AudioBackend on top of PortAudio.
//
// Microphone blocks are delivered at the requested rate even when the
// hardware only supports its native rate: the stream is then opened at the
// native rate and converted, with a small re-blocking buffer so callbacks
// still see fixed-size blocks. Output streams render a playback.Timeline
// from the PortAudio callback.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/oceanwave/pkg/audio"
	"github.com/MrWong99/oceanwave/pkg/audio/playback"
	"github.com/MrWong99/oceanwave/pkg/device"
)

var _ device.AudioBackend = (*Backend)(nil)

// outputBlockMillis is the size of each output callback buffer.
const outputBlockMillis = 20

// Backend is a PortAudio audio backend. Create it with New and Close it when
// the process exits.
type Backend struct {
	log *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Option is a functional option for Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.log = l }
}

// New initialises PortAudio.
func New(opts ...Option) (*Backend, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	b := &Backend{log: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// Close terminates PortAudio. Streams must be closed first.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := pa.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}
	return nil
}

// mapErr translates PortAudio errors into the device sentinels.
func mapErr(op string, err error) error {
	var paErr pa.Error
	if errors.As(err, &paErr) {
		switch paErr {
		case pa.DeviceUnavailable, pa.InvalidDevice:
			return fmt.Errorf("portaudio: %s: %w: %v", op, device.ErrUnavailable, err)
		}
	}
	return fmt.Errorf("portaudio: %s: %w", op, err)
}

// ── Microphone ────────────────────────────────────────────────────────────────

// OpenMicrophone opens the default input device delivering mono blocks of
// block frames at rate Hz.
func (b *Backend) OpenMicrophone(_ context.Context, rate, block int) (device.Microphone, error) {
	in, err := pa.DefaultInputDevice()
	if err != nil {
		return nil, mapErr("default input", err)
	}
	if in == nil || in.MaxInputChannels < 1 {
		return nil, fmt.Errorf("portaudio: default input: %w", device.ErrUnavailable)
	}

	m := &microphone{
		target: audio.Format{SampleRate: rate, Channels: 1},
		block:  block,
		conv:   &audio.Converter{Target: audio.Format{SampleRate: rate, Channels: 1}},
	}

	// Ask for the target rate first; fall back to the device's native rate.
	m.native = audio.Format{SampleRate: rate, Channels: 1}
	stream, err := pa.OpenDefaultStream(1, 0, float64(rate), block, m.process)
	if err != nil {
		native := int(in.DefaultSampleRate)
		b.log.Info("portaudio: input rate not supported, converting",
			"requested", rate, "native", native, "err", err)
		m.native = audio.Format{SampleRate: native, Channels: 1}
		stream, err = pa.OpenDefaultStream(1, 0, float64(native), block*native/rate, m.process)
		if err != nil {
			return nil, mapErr("open input", err)
		}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, mapErr("start input", err)
	}
	m.stream = stream
	return m, nil
}

type microphone struct {
	stream *pa.Stream
	target audio.Format
	native audio.Format
	block  int
	conv   *audio.Converter

	mu      sync.Mutex
	fn      func([]float32)
	pending []float32
	closed  bool
}

// process is the PortAudio callback.
func (m *microphone) process(in, _ []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fn == nil {
		return
	}
	if m.native == m.target && len(in) == m.block {
		block := make([]float32, len(in))
		copy(block, in)
		m.fn(block)
		return
	}
	m.pending = append(m.pending, m.conv.Convert(in, m.native)...)
	for len(m.pending) >= m.block {
		block := make([]float32, m.block)
		copy(block, m.pending)
		m.pending = m.pending[m.block:]
		m.fn(block)
	}
}

func (m *microphone) Format() audio.Format { return m.target }

func (m *microphone) Attach(fn func([]float32)) (device.Processor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("portaudio: microphone closed")
	}
	if m.fn != nil {
		return nil, fmt.Errorf("portaudio: processor already attached")
	}
	m.fn = fn
	m.pending = m.pending[:0]
	return &processor{m: m}, nil
}

func (m *microphone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.fn = nil
	m.mu.Unlock()

	return errors.Join(m.stream.Stop(), m.stream.Close())
}

type processor struct {
	m    *microphone
	once sync.Once
}

func (p *processor) Detach() error {
	p.once.Do(func() {
		p.m.mu.Lock()
		p.m.fn = nil
		p.m.mu.Unlock()
	})
	return nil
}

// ── Output ────────────────────────────────────────────────────────────────────

// OpenOutput opens the default output device rendering a Timeline at rate Hz.
func (b *Backend) OpenOutput(_ context.Context, rate int) (playback.Sink, error) {
	o := &output{Timeline: playback.NewTimeline(rate), rate: rate, deviceRate: rate}
	frames := rate * outputBlockMillis / 1000

	stream, err := pa.OpenDefaultStream(0, 1, float64(rate), frames, o.render)
	if err != nil {
		dev, derr := pa.DefaultOutputDevice()
		if derr != nil {
			return nil, mapErr("default output", derr)
		}
		o.deviceRate = int(dev.DefaultSampleRate)
		b.log.Info("portaudio: output rate not supported, converting",
			"requested", rate, "native", o.deviceRate, "err", err)
		frames = o.deviceRate * outputBlockMillis / 1000
		stream, err = pa.OpenDefaultStream(0, 1, float64(o.deviceRate), frames, o.render)
		if err != nil {
			return nil, mapErr("open output", err)
		}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, mapErr("start output", err)
	}
	o.stream = stream
	return o, nil
}

type output struct {
	*playback.Timeline
	stream     *pa.Stream
	rate       int
	deviceRate int
	scratch    []float32

	closeOnce sync.Once
	closeErr  error
}

// render is the PortAudio callback.
func (o *output) render(_, out []float32) {
	if o.deviceRate == o.rate {
		o.Timeline.Render(out)
		return
	}
	n := len(out) * o.rate / o.deviceRate
	if cap(o.scratch) < n {
		o.scratch = make([]float32, n)
	}
	o.scratch = o.scratch[:n]
	o.Timeline.Render(o.scratch)
	clear(out)
	copy(out, audio.Resample(o.scratch, o.rate, o.deviceRate))
}

func (o *output) Close() error {
	o.closeOnce.Do(func() {
		o.closeErr = errors.Join(o.stream.Stop(), o.stream.Close(), o.Timeline.Close())
	})
	return o.closeErr
}
