package capture

import (
	"sync/atomic"

	"github.com/MrWong99/oceanwave/pkg/audio"
	"github.com/MrWong99/oceanwave/pkg/provider/live"
)

// AudioProducer converts microphone blocks to PCM16 payloads.
type AudioProducer struct {
	sink  Sink
	muted *atomic.Bool
	mime  string

	Stats Stats
}

// NewAudioProducer returns a producer offering to sink. muted is shared with
// the owner so the flag survives across sessions; nil means never muted.
func NewAudioProducer(sink Sink, muted *atomic.Bool) *AudioProducer {
	if muted == nil {
		muted = new(atomic.Bool)
	}
	return &AudioProducer{sink: sink, muted: muted, mime: live.MIMEAudioPCM16k}
}

// WithSampleRate labels payloads as PCM at rate Hz instead of 16 kHz.
func (p *AudioProducer) WithSampleRate(rate int) *AudioProducer {
	if rate > 0 {
		p.mime = live.AudioMIME(rate)
	}
	return p
}

// OnBlock is the microphone callback. It runs on the device thread.
func (p *AudioProducer) OnBlock(block []float32) {
	p.Stats.Seen.Add(1)
	if p.muted.Load() {
		p.Stats.Muted.Add(1)
		return
	}
	pcm := audio.PCM16ToBytes(audio.FloatToPCM16(block))
	p.Stats.record(p.sink.Offer(live.Media{MIMEType: p.mime, Data: pcm}))
}
