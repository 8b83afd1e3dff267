// Package config provides the configuration schema, loader, file watcher and
// provider registry for the Ocean Wave daemon.
package config

import (
	"fmt"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Devices   DevicesConfig   `yaml:"devices"`
	Vision    VisionConfig    `yaml:"vision"`
	Board     BoardConfig     `yaml:"board"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the local API (e.g., "127.0.0.1:8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig selects the remote services. Each entry names a provider
// registered in the [Registry].
type ProvidersConfig struct {
	// Live is the streaming multimodal model behind Vision Pal.
	Live ProviderEntry `yaml:"live"`

	// Assist lists the board's assist backends in failover order. The first
	// entry is the primary.
	Assist []ProviderEntry `yaml:"assist"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// Option returns Options[key] as a string, or "" when unset.
func (e ProviderEntry) Option(key string) string {
	v, ok := e.Options[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// DevicesConfig selects the capture and playback backends.
type DevicesConfig struct {
	// Audio provides the microphone and the speaker.
	Audio ProviderEntry `yaml:"audio"`

	// Camera provides video frames.
	Camera ProviderEntry `yaml:"camera"`
}

// VisionConfig configures Vision Pal sessions. Zero values fall back to the
// session defaults. All fields apply to the next session on reload.
type VisionConfig struct {
	// Instructions replaces the default system instruction.
	Instructions string `yaml:"instructions"`

	// Voice is a prebuilt voice of the live model.
	Voice string `yaml:"voice"`

	// Captions enables transcripts of the model's speech. Defaults to true.
	Captions *bool `yaml:"captions"`

	// Facing is the preferred camera: "environment" or "user".
	Facing string `yaml:"facing"`

	// FrameInterval is the time between camera snapshots (e.g., "500ms").
	FrameInterval time.Duration `yaml:"frame_interval"`

	// FrameScale downsamples snapshots, in (0, 1].
	FrameScale float64 `yaml:"frame_scale"`

	// JPEGQuality is the snapshot quality, 1..100.
	JPEGQuality int `yaml:"jpeg_quality"`

	// CaptureBlockSize is the number of microphone frames per payload.
	CaptureBlockSize int `yaml:"capture_block_size"`

	// InputSampleRate is the microphone rate in Hz.
	InputSampleRate int `yaml:"input_sample_rate"`

	// OutputSampleRate is the playback rate in Hz.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// OutboxSize bounds the payloads waiting to be sent.
	OutboxSize int `yaml:"outbox_size"`

	// ConnectTimeout bounds dialling the live model.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// BoardConfig configures the communication board.
type BoardConfig struct {
	// DefaultTone is the tone selected at start-up.
	DefaultTone string `yaml:"default_tone"`

	// PredictionDebounce is the typing pause before predictions are fetched.
	PredictionDebounce time.Duration `yaml:"prediction_debounce"`
}
