// Package playback schedules received audio chunks for gapless output.
//
// A [Scheduler] keeps a cursor on the output's audio clock marking where the
// next chunk may begin. Each chunk starts at max(now, cursor) and advances
// the cursor by exactly its own duration, so chunks never overlap, play in
// arrival order, butt up against each other when the network outpaces
// playback, and restart relative to the clock after an underrun.
//
// A [Sink] owns the clock and renders scheduled buffers. [Timeline] is the
// in-process Sink used by device backends: they call [Timeline.Render] from
// their output callback.
package playback

import (
	"context"
	"time"
)

// Clock reports the current position of an audio output. It must be
// monotonic and start at zero when the output is opened.
type Clock interface {
	Now() time.Duration
}

// Sink is an audio output that accepts buffers at absolute clock positions.
type Sink interface {
	Clock

	// Schedule queues mono samples to begin playing at clock position at.
	Schedule(at time.Duration, samples []float32)

	// Flush drops every buffer that has not finished playing.
	Flush()

	// Wait blocks until nothing remains queued or ctx is done.
	Wait(ctx context.Context) error

	// Close releases the output. Pending buffers are discarded.
	Close() error
}

// toFrames converts d to a frame count at rate, rounding up. Durations
// produced by [fromFrames] convert back to the exact frame count.
func toFrames(d time.Duration, rate int) int64 {
	if d <= 0 || rate <= 0 {
		return 0
	}
	num := int64(d) * int64(rate)
	f := num / int64(time.Second)
	if num%int64(time.Second) != 0 {
		f++
	}
	return f
}

// fromFrames converts a frame count at rate to a duration.
func fromFrames(n int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n * int64(time.Second) / int64(rate))
}
