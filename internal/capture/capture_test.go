package capture_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/oceanwave/internal/capture"
	"github.com/MrWong99/oceanwave/pkg/audio"
	"github.com/MrWong99/oceanwave/pkg/device/mock"
	"github.com/MrWong99/oceanwave/pkg/provider/live"
)

// recordingSink stores every offered payload unless refuse is set.
type recordingSink struct {
	mu     sync.Mutex
	media  []live.Media
	refuse bool
}

func (s *recordingSink) Offer(m live.Media) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse {
		return false
	}
	s.media = append(s.media, m)
	return true
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.media)
}

func (s *recordingSink) last() live.Media {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media[len(s.media)-1]
}

func block(n int, v float32) []float32 {
	b := make([]float32, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestAudioProducer_Payload(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	p := capture.NewAudioProducer(sink, nil)

	p.OnBlock([]float32{0, 1, -1, 1.5})
	if sink.count() != 1 {
		t.Fatalf("offers = %d, want 1", sink.count())
	}
	m := sink.last()
	if m.MIMEType != live.MIMEAudioPCM16k {
		t.Errorf("mime = %q", m.MIMEType)
	}
	pcm, err := audio.BytesToPCM16(m.Data)
	if err != nil {
		t.Fatalf("BytesToPCM16: %v", err)
	}
	want := []int16{0, 32767, -32768, 32767}
	for i := range want {
		if pcm[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, pcm[i], want[i])
		}
	}
}

func TestAudioProducer_MuteSuppressesAndResumes(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	var muted atomic.Bool
	p := capture.NewAudioProducer(sink, &muted)

	muted.Store(true)
	for range 10 {
		p.OnBlock(block(4096, 0.2))
	}
	if sink.count() != 0 {
		t.Fatalf("muted producer sent %d payloads", sink.count())
	}

	muted.Store(false)
	p.OnBlock(block(4096, 0.2))
	if sink.count() != 1 {
		t.Fatalf("after unmute offers = %d, want 1", sink.count())
	}
	if len(sink.last().Data) != 4096*2 {
		t.Errorf("payload bytes = %d, want %d", len(sink.last().Data), 4096*2)
	}

	s := p.Stats.Snapshot()
	if s.Seen != 11 || s.Muted != 10 || s.Offered != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestAudioProducer_CountsDrops(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{refuse: true}
	p := capture.NewAudioProducer(sink, nil)
	p.OnBlock(block(8, 0))
	if got := p.Stats.Snapshot().Dropped; got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}

func TestDownsample_HalvesDimensions(t *testing.T) {
	t.Parallel()
	src := mock.Fill(640, 480, color.RGBA{R: 200, G: 10, B: 10, A: 255})
	dst := capture.Downsample(src, 0.5)
	if dst.Bounds().Dx() != 320 || dst.Bounds().Dy() != 240 {
		t.Fatalf("size = %v, want 320x240", dst.Bounds())
	}
	r, _, _, _ := dst.At(100, 100).RGBA()
	if r>>8 < 190 {
		t.Errorf("colour not preserved: r=%d", r>>8)
	}
}

func TestDownsample_NeverEmpty(t *testing.T) {
	t.Parallel()
	dst := capture.Downsample(image.NewGray(image.Rect(0, 0, 1, 1)), 0.5)
	if dst.Bounds().Dx() != 1 || dst.Bounds().Dy() != 1 {
		t.Errorf("size = %v, want 1x1", dst.Bounds())
	}
}

type failingSource struct{}

func (failingSource) Frame(context.Context) (image.Image, error) {
	return nil, errors.New("no frame")
}

func TestVideoProducer_Tick(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	b := &mock.Backend{Image: mock.Fill(64, 48, color.White)}
	cam, _ := b.OpenCamera(context.Background(), "")

	p := capture.NewVideoProducer(cam, sink, capture.VideoConfig{}, nil)
	p.Tick(context.Background())
	if sink.count() != 1 {
		t.Fatalf("offers = %d, want 1", sink.count())
	}
	m := sink.last()
	if m.MIMEType != live.MIMEJPEG {
		t.Errorf("mime = %q", m.MIMEType)
	}
	img, err := jpeg.Decode(bytes.NewReader(m.Data))
	if err != nil {
		t.Fatalf("payload is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 24 {
		t.Errorf("encoded size = %v, want 32x24", img.Bounds())
	}
}

func TestVideoProducer_GrabFailureSkipped(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	p := capture.NewVideoProducer(failingSource{}, sink, capture.VideoConfig{}, nil)
	p.Tick(context.Background())
	if sink.count() != 0 {
		t.Error("failed grab should not offer anything")
	}
	if p.Stats.Snapshot().Failed != 1 {
		t.Errorf("failed = %d, want 1", p.Stats.Snapshot().Failed)
	}
}

func TestVideoProducer_StartStop(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	b := &mock.Backend{}
	cam, _ := b.OpenCamera(context.Background(), "")

	p := capture.NewVideoProducer(cam, sink, capture.VideoConfig{Interval: 5 * time.Millisecond}, nil)
	p.Start(context.Background())
	p.Start(context.Background()) // no-op

	deadline := time.After(3 * time.Second)
	for sink.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d frames offered", sink.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	p.Stop()
	p.Stop()

	n := sink.count()
	time.Sleep(30 * time.Millisecond)
	if sink.count() != n {
		t.Error("frames offered after Stop")
	}
}

func TestEncodeJPEG_Quality(t *testing.T) {
	t.Parallel()
	img := capture.Downsample(mock.Fill(64, 64, color.RGBA{R: 1, G: 2, B: 3, A: 255}), 1)
	lo, err := capture.EncodeJPEG(img, 10)
	if err != nil {
		t.Fatal(err)
	}
	hi, err := capture.EncodeJPEG(img, 95)
	if err != nil {
		t.Fatal(err)
	}
	if len(lo) == 0 || len(hi) == 0 {
		t.Fatal("empty encoding")
	}
}
