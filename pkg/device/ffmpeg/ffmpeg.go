// Package ffmpeg implements device.CameraBackend by running an ffmpeg
// subprocess that reads the camera and writes an MJPEG stream to stdout.
// The most recent frame is kept in memory; Frame decodes it on demand.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/oceanwave/pkg/device"
)

var _ device.CameraBackend = (*Backend)(nil)

const (
	defaultBinary      = "ffmpeg"
	defaultInputFormat = "v4l2"
	defaultDevice      = "/dev/video0"
	defaultFPS         = 4

	// firstFrameTimeout bounds how long OpenCamera waits for the device to
	// produce anything before giving up.
	firstFrameTimeout = 5 * time.Second

	maxFrameBytes = 8 << 20
)

var (
	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for Backend.
type Option func(*Backend)

// WithBinary overrides the ffmpeg executable path.
func WithBinary(path string) Option { return func(b *Backend) { b.binary = path } }

// WithDevice sets the default camera device (e.g. /dev/video0, or "0" for
// avfoundation).
func WithDevice(dev string) Option { return func(b *Backend) { b.device = dev } }

// WithRearDevice sets the camera preferred for the environment facing mode.
func WithRearDevice(dev string) Option { return func(b *Backend) { b.rearDevice = dev } }

// WithInputFormat sets the ffmpeg input format (v4l2, avfoundation, dshow).
func WithInputFormat(f string) Option { return func(b *Backend) { b.inputFormat = f } }

// WithVideoSize requests a capture resolution such as "1280x720".
func WithVideoSize(size string) Option { return func(b *Backend) { b.videoSize = size } }

// WithFPS sets how many frames per second ffmpeg emits.
func WithFPS(fps int) Option { return func(b *Backend) { b.fps = fps } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(b *Backend) { b.log = l } }

// ── Backend ────────────────────────────────────────────────────────────────────

// Backend starts one ffmpeg process per opened camera.
type Backend struct {
	binary      string
	device      string
	rearDevice  string
	inputFormat string
	videoSize   string
	fps         int
	log         *slog.Logger
}

// New creates a Backend with the given options.
func New(opts ...Option) *Backend {
	b := &Backend{
		binary:      defaultBinary,
		device:      defaultDevice,
		inputFormat: defaultInputFormat,
		fps:         defaultFPS,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// OpenCamera starts capturing. For the environment facing mode the rear
// device is tried first, falling back to the default device. It returns
// once the first frame has arrived.
func (b *Backend) OpenCamera(ctx context.Context, facing string) (device.Camera, error) {
	devices := []string{b.device}
	if facing == device.FacingEnvironment && b.rearDevice != "" && b.rearDevice != b.device {
		devices = []string{b.rearDevice, b.device}
	}

	var errs []error
	for _, dev := range devices {
		cam, err := b.start(ctx, dev)
		if err == nil {
			return cam, nil
		}
		b.log.Debug("ffmpeg: camera unavailable", "device", dev, "err", err)
		errs = append(errs, err)
		if errors.Is(err, device.ErrPermissionDenied) || ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// Args returns the ffmpeg arguments used to capture from dev.
func (b *Backend) Args(dev string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", b.inputFormat}
	if b.videoSize != "" {
		args = append(args, "-video_size", b.videoSize)
	}
	return append(args,
		"-i", dev,
		"-an",
		"-r", strconv.Itoa(b.fps),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

func (b *Backend) start(ctx context.Context, dev string) (*camera, error) {
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(procCtx, b.binary, b.Args(dev)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg: stdout: %w", err)
	}
	var stderr lockedBuffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg: start: %w", err)
	}

	c := &camera{
		device: dev,
		cmd:    cmd,
		cancel: cancel,
		first:  make(chan struct{}),
		exited: make(chan struct{}),
		log:    b.log,
	}
	go c.readLoop(stdout)
	go func() {
		c.waitErr = cmd.Wait()
		close(c.exited)
	}()

	timer := time.NewTimer(firstFrameTimeout)
	defer timer.Stop()
	select {
	case <-c.first:
		return c, nil
	case <-c.exited:
		cancel()
		return nil, classify(dev, stderr.String(), c.waitErr)
	case <-timer.C:
		_ = c.Close()
		return nil, fmt.Errorf("ffmpeg: %s: no frame within %s: %w", dev, firstFrameTimeout, device.ErrUnavailable)
	case <-ctx.Done():
		_ = c.Close()
		return nil, ctx.Err()
	}
}

// classify maps ffmpeg's stderr output to the device sentinels.
func classify(dev, stderr string, waitErr error) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "not authorized"):
		return fmt.Errorf("ffmpeg: %s: %w: %s", dev, device.ErrPermissionDenied, msg)
	case strings.Contains(lower, "no such file"), strings.Contains(lower, "no such device"),
		strings.Contains(lower, "device or resource busy"):
		return fmt.Errorf("ffmpeg: %s: %w: %s", dev, device.ErrUnavailable, msg)
	}
	if msg == "" && waitErr != nil {
		msg = waitErr.Error()
	}
	return fmt.Errorf("ffmpeg: %s: exited: %s", dev, msg)
}

// ── camera ─────────────────────────────────────────────────────────────────────

type camera struct {
	device string
	cmd    *exec.Cmd
	cancel context.CancelFunc
	log    *slog.Logger

	first     chan struct{}
	firstOnce sync.Once
	exited    chan struct{}
	waitErr   error

	mu     sync.Mutex
	latest []byte
	closed bool
}

func (c *camera) readLoop(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 256<<10), maxFrameBytes)
	sc.Split(SplitJPEG)
	for sc.Scan() {
		frame := bytes.Clone(sc.Bytes())
		c.mu.Lock()
		c.latest = frame
		c.mu.Unlock()
		c.firstOnce.Do(func() { close(c.first) })
	}
	if err := sc.Err(); err != nil {
		c.log.Warn("ffmpeg: camera stream ended", "device", c.device, "err", err)
	}
}

// Frame decodes the latest captured JPEG.
func (c *camera) Frame(_ context.Context) (image.Image, error) {
	c.mu.Lock()
	data := c.latest
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("ffmpeg: camera closed")
	}
	if data == nil {
		return nil, fmt.Errorf("ffmpeg: no frame captured yet")
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: decode frame: %w", err)
	}
	return img, nil
}

// Close kills the ffmpeg process and waits for it to exit. Idempotent.
func (c *camera) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	<-c.exited
	return nil
}

// SplitJPEG is a bufio.SplitFunc that yields complete JPEG images from an
// MJPEG byte stream. Bytes before a start-of-image marker are skipped.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, soi)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF in case it begins a marker.
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}
	end := bytes.Index(data[start+2:], eoi)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

// lockedBuffer is a bytes.Buffer safe for the concurrent writes exec does
// while the caller reads.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() > 4096 {
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
