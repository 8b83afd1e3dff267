package board

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/oceanwave/pkg/audio"
	"github.com/MrWong99/oceanwave/pkg/audio/playback"
	"github.com/MrWong99/oceanwave/pkg/device"
)

// speaker plays one synthesised utterance at a time. The output is opened on
// first use and reopened when the sample rate changes.
type speaker struct {
	devices device.Devices

	mu     sync.Mutex
	sink   playback.Sink
	rate   int
	closed bool
}

// output returns an open sink at rate. Opening a device may block, so sp.mu
// is not held across OpenOutput.
func (sp *speaker) output(ctx context.Context, rate int) (playback.Sink, error) {
	sp.mu.Lock()
	if sp.closed {
		sp.mu.Unlock()
		return nil, errSpeakerClosed
	}
	if sp.sink != nil && sp.rate == rate {
		sink := sp.sink
		sp.mu.Unlock()
		return sink, nil
	}
	sp.mu.Unlock()

	sink, err := sp.devices.OpenOutput(ctx, rate)
	if err != nil {
		return nil, fmt.Errorf("board: open output: %w", err)
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	switch {
	case sp.closed:
		_ = sink.Close()
		return nil, errSpeakerClosed
	case sp.sink != nil && sp.rate == rate:
		// Another utterance opened one first.
		_ = sink.Close()
		return sp.sink, nil
	}
	if sp.sink != nil {
		_ = sp.sink.Close()
	}
	sp.sink, sp.rate = sink, rate
	return sink, nil
}

// play stops anything playing on sink, queues speech from the current clock
// position and returns a channel closed once it has played out or was
// stopped.
func (sp *speaker) play(ctx context.Context, sink playback.Sink, speech []byte, rate int) (<-chan struct{}, error) {
	pcm, err := audio.BytesToPCM16(speech)
	if err != nil {
		return nil, fmt.Errorf("board: decode speech: %w", err)
	}
	samples := audio.PCM16ToFloat(pcm)

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.sink != sink {
		return nil, errors.New("board: output replaced during synthesis")
	}
	sink.Flush()

	// A fresh scheduler starts at the clock, not after the flushed audio.
	sched, err := playback.NewScheduler(sink, rate)
	if err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}
	sched.Schedule(samples)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Wait(context.WithoutCancel(ctx))
	}()
	return done, nil
}

// stop drops queued speech. The output stays open.
func (sp *speaker) stop() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.sink != nil {
		sp.sink.Flush()
	}
}

var errSpeakerClosed = errors.New("board: closed")

func (sp *speaker) close() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.closed = true
	if sp.sink == nil {
		return nil
	}
	err := sp.sink.Close()
	sp.sink = nil
	return err
}
