package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/MrWong99/oceanwave/pkg/provider/live"
)

// Defaults for [VideoConfig].
const (
	DefaultFrameInterval = 500 * time.Millisecond
	DefaultFrameScale    = 0.5
	DefaultJPEGQuality   = 60
)

// FrameSource yields the current camera image.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
}

// VideoConfig controls frame sampling.
type VideoConfig struct {
	Interval time.Duration
	Scale    float64 // (0, 1]
	Quality  int     // JPEG quality, 1..100
}

func (c VideoConfig) withDefaults() VideoConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultFrameInterval
	}
	if c.Scale <= 0 || c.Scale > 1 {
		c.Scale = DefaultFrameScale
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = DefaultJPEGQuality
	}
	return c
}

// VideoProducer samples a FrameSource on a fixed interval, downsamples each
// frame and offers it as JPEG. Ticks never wait on a previous send.
type VideoProducer struct {
	src  FrameSource
	sink Sink
	cfg  VideoConfig
	log  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	Stats Stats
}

// NewVideoProducer creates a stopped producer. Zero config fields take the
// package defaults.
func NewVideoProducer(src FrameSource, sink Sink, cfg VideoConfig, log *slog.Logger) *VideoProducer {
	if log == nil {
		log = slog.Default()
	}
	return &VideoProducer{src: src, sink: sink, cfg: cfg.withDefaults(), log: log}
}

// Start launches the ticker. Calling Start on a running producer is a no-op.
func (p *VideoProducer) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop cancels the ticker and waits for the goroutine to exit. Idempotent.
func (p *VideoProducer) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *VideoProducer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick captures, encodes and offers one frame.
func (p *VideoProducer) Tick(ctx context.Context) {
	p.Stats.Seen.Add(1)
	img, err := p.src.Frame(ctx)
	if err != nil {
		p.Stats.Failed.Add(1)
		p.log.Debug("capture: frame grab failed", "err", err)
		return
	}
	data, err := EncodeJPEG(Downsample(img, p.cfg.Scale), p.cfg.Quality)
	if err != nil {
		p.Stats.Failed.Add(1)
		p.log.Debug("capture: frame encode failed", "err", err)
		return
	}
	p.Stats.record(p.sink.Offer(live.Media{MIMEType: live.MIMEJPEG, Data: data}))
}

// Downsample scales img by factor using bilinear filtering. Each output
// dimension is at least one pixel.
func Downsample(img image.Image, factor float64) *image.RGBA {
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())*factor))
	h := max(1, int(float64(b.Dy())*factor))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("capture: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
