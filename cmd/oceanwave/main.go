// Command oceanwave runs the Ocean Wave daemon: the Vision Pal live session
// and the communication board behind a local HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MrWong99/oceanwave/internal/app"
	"github.com/MrWong99/oceanwave/internal/config"
	"github.com/MrWong99/oceanwave/internal/observe"
	"github.com/MrWong99/oceanwave/pkg/device"
	"github.com/MrWong99/oceanwave/pkg/device/ffmpeg"
	devmock "github.com/MrWong99/oceanwave/pkg/device/mock"
	"github.com/MrWong99/oceanwave/pkg/device/portaudio"
	"github.com/MrWong99/oceanwave/pkg/provider/assist"
	geminiassist "github.com/MrWong99/oceanwave/pkg/provider/assist/gemini"
	assistmock "github.com/MrWong99/oceanwave/pkg/provider/assist/mock"
	oaassist "github.com/MrWong99/oceanwave/pkg/provider/assist/openai"
	"github.com/MrWong99/oceanwave/pkg/provider/live"
	geminilive "github.com/MrWong99/oceanwave/pkg/provider/live/gemini"
	livemock "github.com/MrWong99/oceanwave/pkg/provider/live/mock"
)

// version is set at build time with -ldflags "-X main.version=…".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the configuration file when it changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "oceanwave: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "oceanwave: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.Level(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("oceanwave starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "oceanwave",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(telemetry.MeterProvider)
	if err != nil {
		slog.Error("failed to create metric instruments", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithLogger(logger),
		app.WithLevelVar(level),
		app.WithMetrics(metrics),
		app.WithMetricsHandler(telemetry.Handler),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *watch {
		w, err := config.NewWatcher(*configPath, application.Reload, config.WithWatcherLogger(logger))
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			application.Watch(w)
		}
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation package.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Live ──────────────────────────────────────────────────────────────────

	reg.RegisterLive("gemini-live", func(_ context.Context, e config.ProviderEntry) (live.Provider, error) {
		opts := []geminilive.Option{geminilive.WithLogger(slog.Default())}
		if e.Model != "" {
			opts = append(opts, geminilive.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(e.BaseURL))
		}
		return geminilive.New(e.APIKey, opts...)
	})

	reg.RegisterLive("mock", func(context.Context, config.ProviderEntry) (live.Provider, error) {
		return &livemock.Provider{}, nil
	})

	// ── Assist ────────────────────────────────────────────────────────────────

	reg.RegisterAssist("gemini", func(ctx context.Context, e config.ProviderEntry) (assist.Provider, error) {
		var opts []geminiassist.Option
		if e.Model != "" {
			opts = append(opts, geminiassist.WithModel(e.Model))
		}
		if m := e.Option("tts_model"); m != "" {
			opts = append(opts, geminiassist.WithTTSModel(m))
		}
		if e.BaseURL != "" {
			opts = append(opts, geminiassist.WithBaseURL(e.BaseURL))
		}
		if d := optDuration(e, "timeout"); d > 0 {
			opts = append(opts, geminiassist.WithTimeout(d))
		}
		for _, tone := range assist.Tones {
			if v := e.Option("voice_" + string(tone)); v != "" {
				opts = append(opts, geminiassist.WithVoice(tone, v))
			}
		}
		return geminiassist.New(ctx, e.APIKey, opts...)
	})

	reg.RegisterAssist("openai", func(_ context.Context, e config.ProviderEntry) (assist.Provider, error) {
		var opts []oaassist.Option
		if e.Model != "" {
			opts = append(opts, oaassist.WithModel(e.Model))
		}
		if m := e.Option("tts_model"); m != "" {
			opts = append(opts, oaassist.WithTTSModel(m))
		}
		if e.BaseURL != "" {
			opts = append(opts, oaassist.WithBaseURL(e.BaseURL))
		}
		if org := e.Option("organization"); org != "" {
			opts = append(opts, oaassist.WithOrganization(org))
		}
		if d := optDuration(e, "timeout"); d > 0 {
			opts = append(opts, oaassist.WithTimeout(d))
		}
		for _, tone := range assist.Tones {
			if v := e.Option("voice_" + string(tone)); v != "" {
				opts = append(opts, oaassist.WithVoice(tone, v))
			}
		}
		return oaassist.New(e.APIKey, opts...)
	})

	reg.RegisterAssist("mock", func(context.Context, config.ProviderEntry) (assist.Provider, error) {
		return &assistmock.Provider{PredictResult: []string{"please", "now", "thank you"}}, nil
	})

	// ── Devices ───────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(context.Context, config.ProviderEntry) (device.AudioBackend, error) {
		return portaudio.New(portaudio.WithLogger(slog.Default()))
	})

	reg.RegisterCamera("ffmpeg", func(_ context.Context, e config.ProviderEntry) (device.CameraBackend, error) {
		opts := []ffmpeg.Option{ffmpeg.WithLogger(slog.Default())}
		if v := e.Option("binary"); v != "" {
			opts = append(opts, ffmpeg.WithBinary(v))
		}
		if v := e.Option("device"); v != "" {
			opts = append(opts, ffmpeg.WithDevice(v))
		}
		if v := e.Option("rear_device"); v != "" {
			opts = append(opts, ffmpeg.WithRearDevice(v))
		}
		if v := e.Option("input_format"); v != "" {
			opts = append(opts, ffmpeg.WithInputFormat(v))
		}
		if v := e.Option("video_size"); v != "" {
			opts = append(opts, ffmpeg.WithVideoSize(v))
		}
		if v := e.Option("fps"); v != "" {
			fps, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("ffmpeg: fps %q: %w", v, err)
			}
			opts = append(opts, ffmpeg.WithFPS(fps))
		}
		return ffmpeg.New(opts...), nil
	})

	// The mock backend renders audio in real time so headless runs behave
	// like a speaker is attached.
	mock := &devmock.Backend{Realtime: true}
	reg.RegisterAudio("mock", func(context.Context, config.ProviderEntry) (device.AudioBackend, error) {
		return mock, nil
	})
	reg.RegisterCamera("mock", func(context.Context, config.ProviderEntry) (device.CameraBackend, error) {
		return mock, nil
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them for the application to consume.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Live.Name; name != "" {
		p, err := reg.CreateLive(ctx, cfg.Providers.Live)
		if err != nil {
			return nil, fmt.Errorf("create live provider %q: %w", name, err)
		}
		ps.Live = p
		slog.Info("provider created", "kind", "live", "name", name)
	}

	for _, e := range cfg.Providers.Assist {
		p, err := reg.CreateAssist(ctx, e)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown assist provider; skipping", "name", e.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create assist provider %q: %w", e.Name, err)
		}
		ps.Assist = append(ps.Assist, app.NamedAssist{Name: e.Name, Provider: p})
		slog.Info("provider created", "kind", "assist", "name", e.Name)
	}

	var (
		audio  device.AudioBackend
		camera device.CameraBackend
	)
	if name := cfg.Devices.Audio.Name; name != "" {
		a, err := reg.CreateAudio(ctx, cfg.Devices.Audio)
		if err != nil {
			return nil, fmt.Errorf("create audio backend %q: %w", name, err)
		}
		audio = a
		if c, ok := a.(io.Closer); ok {
			ps.Closers = append(ps.Closers, c)
		}
		slog.Info("device backend created", "kind", "audio", "name", name)
	} else {
		slog.Warn("devices.audio is not configured; microphone and speech are unavailable")
	}
	if name := cfg.Devices.Camera.Name; name != "" {
		c, err := reg.CreateCamera(ctx, cfg.Devices.Camera)
		if err != nil {
			return nil, fmt.Errorf("create camera backend %q: %w", name, err)
		}
		camera = c
		slog.Info("device backend created", "kind", "camera", "name", name)
	} else {
		slog.Warn("devices.camera is not configured; Vision Pal cannot start")
	}
	ps.Devices = device.Compose(audio, camera)

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       Ocean Wave — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Live", cfg.Providers.Live.Name, cfg.Providers.Live.Model)
	for i, e := range cfg.Providers.Assist {
		printProvider(fmt.Sprintf("Assist #%d", i+1), e.Name, e.Model)
	}
	if len(cfg.Providers.Assist) == 0 {
		printProvider("Assist", "", "")
	}
	printProvider("Audio", cfg.Devices.Audio.Name, "")
	printProvider("Camera", cfg.Devices.Camera.Name, "")
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = app.DefaultListenAddr
	}
	fmt.Printf("║  Listen addr     : %-19s ║\n", addr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optDuration parses a duration option such as "20s". Invalid values are
// logged and ignored.
func optDuration(e config.ProviderEntry, key string) time.Duration {
	raw := e.Option(key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration option", "provider", e.Name, "key", key, "value", raw, "err", err)
		return 0
	}
	return d
}
