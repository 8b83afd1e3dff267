package playback

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Scheduled describes where a chunk was placed on the output clock.
type Scheduled struct {
	Start    time.Duration
	Duration time.Duration
}

// End returns the clock position just after the chunk finishes.
func (s Scheduled) End() time.Duration { return s.Start + s.Duration }

// Scheduler places chunks on a [Sink] back to back. The cursor is tracked in
// frames of the output rate so that cumulative durations never drift.
// All methods are safe for concurrent use.
type Scheduler struct {
	sink Sink
	rate int

	mu     sync.Mutex
	cursor int64 // frames
}

// NewScheduler creates a scheduler for mono audio at rate Hz played on sink.
// The cursor starts at zero.
func NewScheduler(sink Sink, rate int) (*Scheduler, error) {
	if sink == nil {
		return nil, fmt.Errorf("playback: sink must not be nil")
	}
	if rate <= 0 {
		return nil, fmt.Errorf("playback: sample rate must be positive, got %d", rate)
	}
	return &Scheduler{sink: sink, rate: rate}, nil
}

// Schedule queues samples at max(clock now, cursor) and advances the cursor
// by the chunk's duration. Empty chunks are ignored and leave the cursor
// untouched.
func (s *Scheduler) Schedule(samples []float32) Scheduled {
	if len(samples) == 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return Scheduled{Start: fromFrames(s.cursor, s.rate)}
	}

	s.mu.Lock()
	now := toFrames(s.sink.Now(), s.rate)
	start := max(now, s.cursor)
	s.cursor = start + int64(len(samples))
	s.mu.Unlock()

	at := fromFrames(start, s.rate)
	s.sink.Schedule(at, samples)
	return Scheduled{
		Start:    at,
		Duration: fromFrames(start+int64(len(samples)), s.rate) - at,
	}
}

// Cursor returns the clock position where the next chunk may start.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fromFrames(s.cursor, s.rate)
}

// Ahead returns how much scheduled audio remains in front of the clock.
func (s *Scheduler) Ahead() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := toFrames(s.sink.Now(), s.rate)
	if s.cursor <= now {
		return 0
	}
	return fromFrames(s.cursor-now, s.rate)
}

// Flush drops pending audio on the sink. The cursor is left in place so it
// never moves backward; callers that want to start fresh on the same sink
// create a new Scheduler, whose chunks then begin at the clock.
func (s *Scheduler) Flush() {
	s.sink.Flush()
}

// Wait blocks until all scheduled audio has played or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	return s.sink.Wait(ctx)
}

// Rate returns the output sample rate in Hz.
func (s *Scheduler) Rate() int { return s.rate }
