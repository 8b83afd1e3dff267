package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"live":   {"gemini-live", "mock"},
	"assist": {"gemini", "openai", "mock"},
	"audio":  {"portaudio", "mock"},
	"camera": {"ffmpeg", "mock"},
}

var validTones = []string{"casual", "professional", "empathetic"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadBytes is LoadFromReader over an in-memory file.
func loadBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	validateProviderName("live", cfg.Providers.Live.Name)
	if cfg.Providers.Live.Name == "" {
		slog.Warn("providers.live is not configured; Vision Pal will not be able to connect")
	}
	seen := make(map[string]int, len(cfg.Providers.Assist))
	for i, e := range cfg.Providers.Assist {
		prefix := fmt.Sprintf("providers.assist[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[e.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers.assist[%d]", prefix, e.Name, prev))
		}
		seen[e.Name] = i
		validateProviderName("assist", e.Name)
	}
	if len(cfg.Providers.Assist) == 0 {
		slog.Warn("providers.assist is empty; refine, predictions, context emojis and speech are disabled")
	}

	// Devices
	validateProviderName("audio", cfg.Devices.Audio.Name)
	validateProviderName("camera", cfg.Devices.Camera.Name)

	// Vision
	v := cfg.Vision
	if v.Facing != "" && v.Facing != "environment" && v.Facing != "user" {
		errs = append(errs, fmt.Errorf("vision.facing %q is invalid; valid values: environment, user", v.Facing))
	}
	if v.FrameInterval < 0 {
		errs = append(errs, fmt.Errorf("vision.frame_interval %s must not be negative", v.FrameInterval))
	}
	if v.FrameScale < 0 || v.FrameScale > 1 {
		errs = append(errs, fmt.Errorf("vision.frame_scale %.2f is out of range (0, 1]", v.FrameScale))
	}
	if v.JPEGQuality < 0 || v.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("vision.jpeg_quality %d is out of range [1, 100]", v.JPEGQuality))
	}
	for _, f := range []struct {
		name string
		val  int
	}{
		{"capture_block_size", v.CaptureBlockSize},
		{"input_sample_rate", v.InputSampleRate},
		{"output_sample_rate", v.OutputSampleRate},
		{"outbox_size", v.OutboxSize},
	} {
		if f.val < 0 {
			errs = append(errs, fmt.Errorf("vision.%s %d must not be negative", f.name, f.val))
		}
	}
	if v.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("vision.connect_timeout %s must not be negative", v.ConnectTimeout))
	}
	if v.InputSampleRate != 0 && v.InputSampleRate != 16000 {
		slog.Warn("vision.input_sample_rate differs from the 16 kHz the live model expects", "rate", v.InputSampleRate)
	}

	// Board
	if t := cfg.Board.DefaultTone; t != "" && !slices.Contains(validTones, strings.ToLower(t)) {
		errs = append(errs, fmt.Errorf("board.default_tone %q is invalid; valid values: %s", t, strings.Join(validTones, ", ")))
	}
	if cfg.Board.PredictionDebounce < 0 {
		errs = append(errs, fmt.Errorf("board.prediction_debounce %s must not be negative", cfg.Board.PredictionDebounce))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
