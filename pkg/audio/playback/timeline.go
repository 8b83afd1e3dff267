package playback

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

var _ Sink = (*Timeline)(nil)

// Timeline is a [Sink] whose clock is the number of frames rendered so far.
// Device backends call [Timeline.Render] from their output callback; any
// gap between scheduled buffers is rendered as silence.
//
// Schedule, Flush and Render are safe for concurrent use.
type Timeline struct {
	rate int

	mu       sync.Mutex
	rendered int64
	pending  bufferHeap
	seq      uint64
	idle     chan struct{} // closed while pending is empty
	closed   bool
}

// NewTimeline creates an empty timeline for mono audio at rate Hz.
func NewTimeline(rate int) *Timeline {
	idle := make(chan struct{})
	close(idle)
	return &Timeline{rate: rate, idle: idle}
}

// Rate returns the sample rate in Hz.
func (t *Timeline) Rate() int { return t.rate }

// Now returns the playback position, i.e. the duration rendered so far.
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fromFrames(t.rendered, t.rate)
}

// Schedule queues samples starting at clock position at. A position already
// in the past plays from the next rendered frame with its head cut off.
func (t *Timeline) Schedule(at time.Duration, samples []float32) {
	if len(samples) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if len(t.pending) == 0 {
		t.idle = make(chan struct{})
	}
	t.seq++
	heap.Push(&t.pending, &entry{
		start:   toFrames(at, t.rate),
		samples: samples,
		seq:     t.seq,
	})
}

// Render fills out with the next len(out) frames and advances the clock.
func (t *Timeline) Render(out []float32) {
	clear(out)

	t.mu.Lock()
	defer t.mu.Unlock()

	winStart := t.rendered
	winEnd := winStart + int64(len(out))
	t.rendered = winEnd
	if t.closed {
		return
	}

	var keep []*entry
	for len(t.pending) > 0 && t.pending[0].start < winEnd {
		e := heap.Pop(&t.pending).(*entry)
		if e.end() <= winStart {
			continue // entirely in the past
		}
		from := max(e.start, winStart)
		to := min(e.end(), winEnd)
		for f := from; f < to; f++ {
			out[f-winStart] += e.samples[f-e.start]
		}
		if e.end() > winEnd {
			keep = append(keep, e)
		}
	}
	for _, e := range keep {
		heap.Push(&t.pending, e)
	}
	t.signalIdleLocked()
}

// Pending returns the number of buffers not yet fully rendered.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Flush drops every queued buffer.
func (t *Timeline) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = t.pending[:0]
	t.signalIdleLocked()
}

// Wait blocks until no buffers remain queued or ctx is done.
func (t *Timeline) Wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close discards pending buffers. Render keeps producing silence so a device
// callback racing with Close stays safe. Idempotent.
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.pending = t.pending[:0]
	t.signalIdleLocked()
	return nil
}

// Drive renders the timeline in real time into a discard buffer, for outputs
// with no device behind them. It returns when ctx is done.
func (t *Timeline) Drive(ctx context.Context, block int) {
	if block <= 0 {
		block = t.rate / 50
	}
	buf := make([]float32, block)
	ticker := time.NewTicker(fromFrames(int64(block), t.rate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Render(buf)
		}
	}
}

func (t *Timeline) signalIdleLocked() {
	if len(t.pending) != 0 {
		return
	}
	select {
	case <-t.idle:
	default:
		close(t.idle)
	}
}
