// Package capture turns microphone blocks and camera frames into media
// payloads for a live session.
//
// Producers never block their caller: each payload is offered to a [Sink]
// that accepts or drops it immediately. The microphone callback keeps firing
// while muted; muted blocks are discarded before any conversion so that no
// partial audio is ever sent.
package capture

import (
	"sync/atomic"

	"github.com/MrWong99/oceanwave/pkg/provider/live"
)

// Sink accepts payloads without blocking. Offer reports whether the payload
// was queued.
type Sink interface {
	Offer(m live.Media) bool
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(m live.Media) bool

// Offer calls f(m).
func (f SinkFunc) Offer(m live.Media) bool { return f(m) }

// Stats counts producer activity. All fields are safe for concurrent use.
type Stats struct {
	Seen    atomic.Int64 // callbacks or ticks observed
	Muted   atomic.Int64 // audio blocks skipped while muted
	Offered atomic.Int64 // payloads accepted by the sink
	Dropped atomic.Int64 // payloads the sink refused
	Failed  atomic.Int64 // frames that could not be grabbed or encoded
}

// Snapshot is a point-in-time copy of [Stats].
type Snapshot struct {
	Seen, Muted, Offered, Dropped, Failed int64
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Seen:    s.Seen.Load(),
		Muted:   s.Muted.Load(),
		Offered: s.Offered.Load(),
		Dropped: s.Dropped.Load(),
		Failed:  s.Failed.Load(),
	}
}

func (s *Stats) record(ok bool) {
	if ok {
		s.Offered.Add(1)
	} else {
		s.Dropped.Add(1)
	}
}
