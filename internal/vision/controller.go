// Package vision runs the live "Vision Pal" session: microphone audio and
// camera frames stream to a live model, and the model's speech is played
// back without gaps.
//
// A [Controller] owns at most one session at a time and moves it through
// IDLE → CONNECTING → OPEN → CLOSED. Every state change happens on the
// goroutine running [Controller.Run]; public methods post work to it and
// wait for the answer. Device callbacks, the frame ticker, the dial and the
// provider's receive loop only talk to the loop through channels.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/oceanwave/internal/capture"
	"github.com/MrWong99/oceanwave/internal/observe"
	"github.com/MrWong99/oceanwave/pkg/audio"
	"github.com/MrWong99/oceanwave/pkg/audio/playback"
	"github.com/MrWong99/oceanwave/pkg/device"
	"github.com/MrWong99/oceanwave/pkg/provider/live"
)

// maxCaption bounds the caption kept in [State], in runes.
const maxCaption = 280

// Option configures a [Controller].
type Option func(*Controller)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics sets the metric instruments. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithSettings sets the initial session settings.
func WithSettings(s Settings) Option {
	return func(c *Controller) { c.settings = s.withDefaults() }
}

// Controller owns the live session and the devices it streams from.
// All exported methods are safe for concurrent use.
type Controller struct {
	provider live.Provider
	devices  device.Devices
	log      *slog.Logger
	metrics  *observe.Metrics

	// muted is shared with every AudioProducer so it survives sessions.
	muted   atomic.Bool
	started atomic.Bool

	cmds   chan func()
	events chan func()
	done   chan struct{}

	mu       sync.Mutex
	settings Settings
	state    State
	subs     map[uint64]chan State
	nextSub  uint64

	// Owned by the event loop.
	media  device.Media
	acq    *acquisition
	stream *stream
}

// New creates a controller. Methods that talk to the session block until
// [Controller.Run] is running.
func New(provider live.Provider, devices device.Devices, opts ...Option) (*Controller, error) {
	if provider == nil {
		return nil, errors.New("vision: provider must not be nil")
	}
	if devices == nil {
		return nil, errors.New("vision: devices must not be nil")
	}
	c := &Controller{
		provider: provider,
		devices:  devices,
		log:      slog.Default(),
		settings: DefaultSettings(),
		cmds:     make(chan func()),
		events:   make(chan func()),
		done:     make(chan struct{}),
		subs:     make(map[uint64]chan State),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// ── Public API ────────────────────────────────────────────────────────────────

// Run executes the event loop until ctx is cancelled. On return any session
// has been torn down and previewed devices released.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("vision: Run called more than once")
	}
	defer close(c.done)

	for {
		var (
			audioCh <-chan []byte
			textCh  <-chan live.Transcript
		)
		if s := c.stream; s != nil && s.stage == stageOpen {
			audioCh, textCh = s.audio, s.transcripts
		}

		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case fn := <-c.cmds:
			fn()
		case fn := <-c.events:
			fn()
		case data, ok := <-audioCh:
			c.handleAudio(data, ok)
		case t, ok := <-textCh:
			c.handleTranscript(t, ok)
		}
	}
}

// Preview acquires the camera and microphone without connecting. A failure
// is recorded in the state but leaves the phase unchanged.
func (c *Controller) Preview(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.exec(ctx, func() {
		if c.media != nil {
			reply <- nil
			return
		}
		a := c.acquire()
		a.waiters = append(a.waiters, reply)
	}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		if err != nil {
			return fmt.Errorf("vision: preview: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrNotRunning
	}
}

// Start begins a new session and waits until it is open or has failed.
// Failures are returned as *SessionError and also recorded in the state.
func (c *Controller) Start(ctx context.Context) (State, error) {
	reply := make(chan startResult, 1)
	if err := c.exec(ctx, func() { c.start(reply) }); err != nil {
		return c.State(), err
	}
	select {
	case r := <-reply:
		return r.state, r.err
	case <-ctx.Done():
		return c.State(), ctx.Err()
	case <-c.done:
		select {
		case r := <-reply:
			return r.state, r.err
		default:
			return c.State(), ErrNotRunning
		}
	}
}

// Stop ends the current session and releases the devices. Without a session
// it only releases previewed devices. Stopping twice is not an error.
func (c *Controller) Stop(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	if err := c.exec(ctx, func() {
		if s := c.stream; s != nil {
			c.finish(s, ErrStopped)
		} else if err := c.release(); err != nil {
			c.log.Warn("vision: release devices", "err", err)
		}
		reply <- c.State()
	}); err != nil {
		return c.State(), err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// SetMuted flips the microphone mute. It takes effect on the next block and
// persists across sessions.
func (c *Controller) SetMuted(muted bool) State {
	c.muted.Store(muted)
	return c.update(func(*State) {})
}

// Muted reports the mute flag.
func (c *Controller) Muted() bool { return c.muted.Load() }

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.Muted = c.muted.Load()
	return st
}

// Subscribe returns a channel that receives the current state and every
// later transition. A slow reader misses intermediate states but always
// sees the latest one. The returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	st := c.state
	st.Muted = c.muted.Load()
	ch <- st
	c.mu.Unlock()

	return ch, sync.OnceFunc(func() {
		c.mu.Lock()
		delete(c.subs, id)
		close(ch)
		c.mu.Unlock()
	})
}

// UpdateSettings replaces the settings used by the next session.
func (c *Controller) UpdateSettings(s Settings) {
	c.mu.Lock()
	c.settings = s.withDefaults()
	c.mu.Unlock()
}

// Settings returns the settings the next session will use.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// ── Event loop plumbing ───────────────────────────────────────────────────────

// exec runs fn on the event loop. It waits for Run to start.
func (c *Controller) exec(ctx context.Context, fn func()) error {
	select {
	case c.cmds <- fn:
		return nil
	case <-c.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an event from a background goroutine. It reports false if
// the loop has exited; the caller then owns any resources in fn.
func (c *Controller) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

// update mutates the state and publishes the result.
func (c *Controller) update(fn func(*State)) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
	st := c.state
	st.Muted = c.muted.Load()
	for _, ch := range c.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
	return st
}

func (c *Controller) currentSettings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// ── Acquisition ───────────────────────────────────────────────────────────────

type acquisition struct {
	cancel  context.CancelFunc
	waiters []chan error
}

// acquire starts acquiring devices unless an acquisition is in flight.
func (c *Controller) acquire() *acquisition {
	if c.acq != nil {
		return c.acq
	}
	set := c.currentSettings()
	ctx, cancel := context.WithCancel(context.Background())
	a := &acquisition{cancel: cancel}
	c.acq = a

	cons := device.Constraints{
		Video:      true,
		Audio:      true,
		Facing:     set.Facing,
		SampleRate: set.InputSampleRate,
		BlockSize:  set.BlockSize,
	}
	go func() {
		defer cancel()
		media, err := c.devices.Acquire(ctx, cons)
		if !c.post(func() { c.acquired(a, media, err) }) && media != nil {
			_ = media.Stop()
		}
	}()
	return a
}

func (c *Controller) acquired(a *acquisition, media device.Media, err error) {
	if c.acq != a {
		// Cancelled by Stop.
		if media != nil {
			if err := media.Stop(); err != nil {
				c.log.Warn("vision: release abandoned media", "err", err)
			}
		}
		return
	}
	c.acq = nil
	// Waiters read the state next, so publish it first.
	defer func() {
		for _, w := range a.waiters {
			w <- err
		}
	}()

	s := c.stream
	waiting := s != nil && s.stage == stageAcquiring
	if err != nil {
		if waiting {
			c.fail(s, KindAcquisition, fmt.Errorf("acquire devices: %w", err))
			return
		}
		c.log.Warn("vision: preview failed", "err", err)
		c.update(func(st *State) {
			st.Error = KindAcquisition
			st.Message = message(KindAcquisition, err)
		})
		return
	}

	c.media = media
	c.update(func(st *State) {
		st.Previewing = true
		if st.Error == KindAcquisition {
			st.Error, st.Message = "", ""
		}
	})
	if waiting {
		c.connect(s)
	}
}

// cancelAcquisition abandons an in-flight acquisition.
func (c *Controller) cancelAcquisition() {
	a := c.acq
	if a == nil {
		return
	}
	c.acq = nil
	a.cancel()
	for _, w := range a.waiters {
		w <- context.Canceled
	}
}

// release drops previewed devices and any acquisition in flight.
func (c *Controller) release() error {
	c.cancelAcquisition()
	if c.media == nil {
		return nil
	}
	err := c.media.Stop()
	c.media = nil
	c.update(func(st *State) { st.Previewing = false })
	if err != nil {
		return fmt.Errorf("stop tracks: %w", err)
	}
	return nil
}

func (c *Controller) shutdown() {
	if s := c.stream; s != nil {
		c.finish(s, ErrStopped)
	}
	if err := c.release(); err != nil {
		c.log.Warn("vision: shutdown", "err", err)
	}
}

// ── Session lifecycle ─────────────────────────────────────────────────────────

type stage int

const (
	stageAcquiring stage = iota
	stageConnecting
	stageOpen
)

type startResult struct {
	state State
	err   error
}

// stream is one Streaming Session: everything created between Start and
// teardown. Only the event loop touches it.
type stream struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	log     *slog.Logger
	stage   stage
	waiters []chan startResult

	session     live.Session
	audio       <-chan []byte
	transcripts <-chan live.Transcript
	output      playback.Sink
	sched       *playback.Scheduler
	outbox      *Outbox
	mic         device.Processor
	video       *capture.VideoProducer
	caption     string
}

func (s *stream) reply(r startResult) {
	for _, w := range s.waiters {
		w <- r
	}
	s.waiters = nil
}

func (c *Controller) start(reply chan startResult) {
	if c.stream != nil {
		reply <- startResult{state: c.State(), err: ErrSessionActive}
		return
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(observe.WithSessionID(context.Background(), id))
	s := &stream{
		id:      id,
		ctx:     ctx,
		cancel:  cancel,
		log:     c.log.With("session_id", id),
		waiters: []chan startResult{reply},
	}
	c.stream = s
	c.update(func(st *State) {
		st.SessionID = id
		st.Error, st.Message, st.Caption = "", "", ""
	})

	if c.media != nil {
		c.connect(s)
		return
	}
	s.stage = stageAcquiring
	c.acquire()
}

func (c *Controller) connect(s *stream) {
	s.stage = stageConnecting
	c.update(func(st *State) { st.Phase = PhaseConnecting })

	set := c.currentSettings()
	cfg := live.SessionConfig{
		Instructions:        set.Instructions,
		Voice:               set.Voice,
		OutputTranscription: set.Captions,
	}
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, set.ConnectTimeout)
		defer cancel()
		ctx, span := observe.StartSpan(ctx, "vision.connect")
		start := time.Now()
		sess, err := c.provider.Connect(ctx, cfg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		elapsed := time.Since(start)
		if !c.post(func() { c.connected(s, sess, err, elapsed) }) && sess != nil {
			_ = sess.Close()
		}
	}()
}

func (c *Controller) connected(s *stream, sess live.Session, err error, elapsed time.Duration) {
	if c.stream != s {
		// Stopped while dialling.
		if sess != nil {
			if err := sess.Close(); err != nil {
				s.log.Debug("vision: close abandoned session", "err", err)
			}
		}
		return
	}
	if err != nil {
		c.fail(s, KindConnection, fmt.Errorf("connect: %w", err))
		return
	}
	c.metrics.ConnectDuration.Record(s.ctx, elapsed.Seconds())

	s.session = sess
	if err := c.open(s); err != nil {
		c.fail(s, KindConnection, err)
		return
	}

	s.stage = stageOpen
	c.metrics.ActiveSessions.Add(s.ctx, 1)
	st := c.update(func(st *State) { st.Phase = PhaseOpen })
	s.log.Info("vision session open", "connect_ms", elapsed.Milliseconds())
	s.reply(startResult{state: st})
}

// open wires devices, playback and the outbox to an established session.
func (c *Controller) open(s *stream) error {
	set := c.currentSettings()

	out, err := c.devices.OpenOutput(s.ctx, set.OutputSampleRate)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	s.output = out
	if s.sched, err = playback.NewScheduler(out, set.OutputSampleRate); err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	s.outbox = NewOutbox(set.OutboxSize, s.session.Send, OutboxHooks{
		Sent: func(m live.Media) {
			c.metrics.RecordMediaSent(s.ctx, mediaKind(m))
		},
		Dropped: func(m live.Media, reason string, err error) {
			c.metrics.RecordMediaDropped(s.ctx, mediaKind(m), reason)
			if err != nil {
				s.log.Debug("vision: send failed", "mime", m.MIMEType, "err", err)
			}
		},
	})
	s.outbox.Start()

	s.session.OnError(func(err error) {
		// The provider may call this from its receive loop; never block it.
		go c.post(func() { c.remoteError(s, err) })
	})
	s.audio = s.session.Audio()
	s.transcripts = s.session.Transcripts()

	if c.media == nil {
		return errors.New("devices released while connecting")
	}
	if mic := c.media.Microphone(); mic != nil {
		prod := capture.NewAudioProducer(s.outbox, &c.muted).WithSampleRate(set.InputSampleRate)
		if s.mic, err = mic.Attach(prod.OnBlock); err != nil {
			return fmt.Errorf("attach microphone: %w", err)
		}
	}
	if cam := c.media.Camera(); cam != nil {
		s.video = capture.NewVideoProducer(cam, s.outbox, set.Video, s.log)
		s.video.Start(s.ctx)
	}
	return nil
}

func mediaKind(m live.Media) string {
	if live.IsAudio(m.MIMEType) {
		return "audio"
	}
	return "image"
}

func (c *Controller) remoteError(s *stream, err error) {
	if c.stream != s {
		return
	}
	c.fail(s, KindTransport, err)
}

// fail ends s with an error.
func (c *Controller) fail(s *stream, kind Kind, err error) {
	s.log.Warn("vision session failed", "kind", string(kind), "err", err)
	c.teardown(s)
	c.metrics.RecordSessionOutcome(s.ctx, string(kind))
	st := c.update(func(st *State) {
		st.Phase = PhaseClosed
		st.Error = kind
		st.Message = message(kind, err)
	})
	s.reply(startResult{state: st, err: &SessionError{Kind: kind, Err: err}})
}

// finish ends s without an error. Pending Start calls receive reason.
func (c *Controller) finish(s *stream, reason error) {
	c.teardown(s)
	c.metrics.RecordSessionOutcome(s.ctx, "closed")
	st := c.update(func(st *State) { st.Phase = PhaseClosed })
	s.log.Info("vision session closed")
	s.reply(startResult{state: st, err: reason})
}

// teardown releases everything s holds. Every step runs even if an earlier
// one failed; failures are joined and logged.
func (c *Controller) teardown(s *stream) error {
	var errs []error
	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if s.video != nil {
		s.video.Stop()
	}
	if s.mic != nil {
		step("detach microphone", s.mic.Detach)
	}
	if s.outbox != nil {
		s.outbox.Close()
	}
	if s.session != nil {
		step("close session", s.session.Close)
	}
	if s.outbox != nil {
		s.outbox.Wait()
	}
	// Cancels a dial or acquisition still in flight.
	s.cancel()
	step("release devices", c.release)
	if s.output != nil {
		if s.sched != nil {
			s.sched.Flush()
		}
		step("close output", s.output.Close)
	}

	if s.stage == stageOpen {
		c.metrics.ActiveSessions.Add(s.ctx, -1)
	}
	s.audio, s.transcripts = nil, nil
	c.stream = nil

	err := errors.Join(errs...)
	if err != nil {
		s.log.Warn("vision: teardown", "err", err)
	}
	return err
}

// ── Inbound media ─────────────────────────────────────────────────────────────

func (c *Controller) handleAudio(data []byte, ok bool) {
	s := c.stream
	if !ok {
		if err := s.session.Err(); err != nil {
			c.fail(s, KindTransport, err)
			return
		}
		c.finish(s, nil)
		return
	}

	pcm, err := audio.BytesToPCM16(data)
	if err != nil {
		s.log.Warn("vision: dropping undecodable audio", "bytes", len(data), "err", err)
		c.metrics.DecodeFailures.Add(s.ctx, 1)
		return
	}
	ahead := s.sched.Ahead()
	s.sched.Schedule(audio.PCM16ToFloat(pcm))
	c.metrics.PlaybackChunks.Add(s.ctx, 1)
	c.metrics.PlaybackAhead.Record(s.ctx, ahead.Seconds(),
		metric.WithAttributes(observe.Attr("session", "vision")))
}

func (c *Controller) handleTranscript(t live.Transcript, ok bool) {
	s := c.stream
	if !ok {
		s.transcripts = nil
		return
	}
	if t.Role != live.RoleModel || t.Text == "" {
		return
	}
	s.caption = tail(s.caption+t.Text, maxCaption)
	caption := s.caption
	c.update(func(st *State) { st.Caption = caption })
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	extra := utf8.RuneCountInString(s) - n
	if extra <= 0 {
		return s
	}
	for i := range s {
		if extra == 0 {
			return s[i:]
		}
		extra--
	}
	return ""
}
