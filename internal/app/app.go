// Package app wires the Ocean Wave subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New builds the vision controller,
// the communication board and the HTTP API from the configured providers,
// Run serves until the context is cancelled, and Shutdown releases what is
// left in order.
//
// For testing, inject mock providers through [Providers] and override
// instruments with functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/oceanwave/internal/api"
	"github.com/MrWong99/oceanwave/internal/board"
	"github.com/MrWong99/oceanwave/internal/capture"
	"github.com/MrWong99/oceanwave/internal/config"
	"github.com/MrWong99/oceanwave/internal/health"
	"github.com/MrWong99/oceanwave/internal/observe"
	"github.com/MrWong99/oceanwave/internal/resilience"
	"github.com/MrWong99/oceanwave/internal/vision"
	"github.com/MrWong99/oceanwave/pkg/device"
	"github.com/MrWong99/oceanwave/pkg/provider/assist"
	"github.com/MrWong99/oceanwave/pkg/provider/live"
)

// DefaultListenAddr is used when server.listen_addr is empty.
const DefaultListenAddr = "127.0.0.1:8080"

// NamedAssist is one assist backend together with its registry name.
type NamedAssist struct {
	Name     string
	Provider assist.Provider
}

// Providers holds the constructed backends. Nil Live and an empty Assist
// mean the provider is not configured; the matching features then fail
// gracefully. Populated by main.go via the config registry.
type Providers struct {
	Live    live.Provider
	Assist  []NamedAssist
	Devices device.Devices

	// Closers release device backends; Shutdown calls them last.
	Closers []io.Closer
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	level     *slog.LevelVar
	metrics   *observe.Metrics

	assist  assist.Provider
	healthy func() bool
	vision  *vision.Controller
	board   *board.Board
	server  *http.Server
	watcher *config.Watcher

	// metricsHandler serves /metrics; nil leaves the route unmounted.
	metricsHandler http.Handler

	running atomic.Bool

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets configuration reloads change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics sets the metric instruments. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and the constructed providers. Nothing runs
// until [App.Run].
func New(_ context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.providers.Devices == nil {
		a.providers.Devices = device.Compose(nil, nil)
	}

	// ── 1. Assist failover chain ─────────────────────────────────────────
	a.initAssist()

	// ── 2. Vision Pal ────────────────────────────────────────────────────
	lp := a.providers.Live
	if lp == nil {
		lp = unconfiguredLive{}
	}
	ctrl, err := vision.New(lp, a.providers.Devices,
		vision.WithLogger(a.log),
		vision.WithMetrics(a.metrics),
		vision.WithSettings(VisionSettings(cfg.Vision)),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init vision: %w", err)
	}
	a.vision = ctrl

	// ── 3. Board ─────────────────────────────────────────────────────────
	if err := a.initBoard(); err != nil {
		return nil, fmt.Errorf("app: init board: %w", err)
	}

	// ── 4. HTTP API ──────────────────────────────────────────────────────
	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	a.closeProviders()
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initAssist() {
	backends := a.providers.Assist
	if len(backends) == 0 {
		a.assist = unconfiguredAssist{}
		a.healthy = func() bool { return false }
		return
	}
	fb := resilience.NewAssistFallback(backends[0].Provider, backends[0].Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
		},
		Logger: a.log,
	}, a.metrics)
	for _, b := range backends[1:] {
		fb.AddFallback(b.Name, b.Provider)
	}
	a.log.Info("assist backends ready", "order", fb.Backends())
	a.assist = fb
	a.healthy = fb.Healthy
}

func (a *App) initBoard() error {
	opts := []board.Option{
		board.WithLogger(a.log),
		board.WithMetrics(a.metrics),
		board.WithDebounce(a.cfg.Board.PredictionDebounce),
	}
	if t := a.cfg.Board.DefaultTone; t != "" {
		tone, err := assist.ParseTone(t)
		if err != nil {
			return err
		}
		opts = append(opts, board.WithTone(tone))
	}
	b, err := board.New(a.assist, a.providers.Devices, opts...)
	if err != nil {
		return err
	}
	a.board = b
	a.closers = append(a.closers, b.Close)
	return nil
}

func (a *App) initServer() error {
	checks := health.New(
		health.Condition("vision", a.running.Load, "event loop not running"),
		health.Condition("assist", a.healthy, "no assist backend available"),
	)
	opts := []api.Option{
		api.WithLogger(a.log),
		api.WithMetrics(a.metrics),
		api.WithHealth(checks),
	}
	if a.metricsHandler != nil {
		opts = append(opts, api.WithMetricsHandler(a.metricsHandler))
	}
	s, err := api.New(a.vision, a.board, opts...)
	if err != nil {
		return err
	}

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = DefaultListenAddr
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// closeProviders registers closers for providers that hold resources.
func (a *App) closeProviders() {
	add := func(v any) {
		if c, ok := v.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}
	add(a.providers.Live)
	for _, b := range a.providers.Assist {
		add(b.Provider)
	}
	for _, c := range a.providers.Closers {
		add(c)
	}
}

// Handler returns the HTTP handler. Useful for tests.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Vision returns the vision controller.
func (a *App) Vision() *vision.Controller { return a.vision }

// Board returns the communication board.
func (a *App) Board() *board.Board { return a.board }

// Watch makes Run poll w and apply every reloaded config.
func (a *App) Watch(w *config.Watcher) { a.watcher = w }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the API and runs the vision event loop until ctx is cancelled
// or a component fails. It returns nil on cancellation.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	// Websocket handlers outlive Shutdown; tie them to the group context.
	a.server.BaseContext = func(net.Listener) context.Context { return gctx }

	g.Go(func() error {
		a.running.Store(true)
		defer a.running.Store(false)
		return a.vision.Run(gctx)
	})

	g.Go(func() error {
		a.log.Info("api listening", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	a.log.Info("app running")
	return g.Wait()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable part of a new configuration. It is the
// [config.Watcher] callback.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(Level(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VisionChanged {
		a.vision.UpdateSettings(VisionSettings(new.Vision))
		a.log.Info("vision settings updated; applies to the next session")
	}
	if d.ToneChanged && new.Board.DefaultTone != "" {
		if _, err := a.board.SetTone(assist.Tone(new.Board.DefaultTone)); err != nil {
			a.log.Warn("reload: board tone", "err", err)
		}
	}
	if d.DebounceChanged {
		a.board.SetDebounce(new.Board.PredictionDebounce)
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart to take effect", "fields", d.RestartRequired)
	}
	a.cfg = new
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases the board and providers. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		var errs []error
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, ctx.Err())
				shutdownErr = errors.Join(errs...)
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
				errs = append(errs, err)
			}
		}
		shutdownErr = errors.Join(errs...)
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// VisionSettings converts the vision config block into session settings.
func VisionSettings(v config.VisionConfig) vision.Settings {
	return vision.Settings{
		Instructions: v.Instructions,
		Voice:        v.Voice,
		Captions:     v.CaptionsEnabled(),
		Facing:       v.Facing,
		Video: capture.VideoConfig{
			Interval: v.FrameInterval,
			Scale:    v.FrameScale,
			Quality:  v.JPEGQuality,
		},
		BlockSize:        v.CaptureBlockSize,
		InputSampleRate:  v.InputSampleRate,
		OutputSampleRate: v.OutputSampleRate,
		OutboxSize:       v.OutboxSize,
		ConnectTimeout:   v.ConnectTimeout,
	}
}

// Level maps a config log level to slog.
func Level(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
