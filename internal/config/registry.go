package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/oceanwave/pkg/device"
	"github.com/MrWong99/oceanwave/pkg/provider/assist"
	"github.com/MrWong99/oceanwave/pkg/provider/live"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its config entry.
type Factory[T any] func(ctx context.Context, e ProviderEntry) (T, error)

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	live   map[string]Factory[live.Provider]
	assist map[string]Factory[assist.Provider]
	audio  map[string]Factory[device.AudioBackend]
	camera map[string]Factory[device.CameraBackend]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live:   make(map[string]Factory[live.Provider]),
		assist: make(map[string]Factory[assist.Provider]),
		audio:  make(map[string]Factory[device.AudioBackend]),
		camera: make(map[string]Factory[device.CameraBackend]),
	}
}

// RegisterLive registers a live provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLive(name string, f Factory[live.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = f
}

// RegisterAssist registers an assist provider factory under name.
func (r *Registry) RegisterAssist(name string, f Factory[assist.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assist[name] = f
}

// RegisterAudio registers a microphone and speaker backend factory under name.
func (r *Registry) RegisterAudio(name string, f Factory[device.AudioBackend]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = f
}

// RegisterCamera registers a camera backend factory under name.
func (r *Registry) RegisterCamera(name string, f Factory[device.CameraBackend]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.camera[name] = f
}

// CreateLive instantiates a live provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLive(ctx context.Context, entry ProviderEntry) (live.Provider, error) {
	return create(ctx, r, r.live, "live", entry)
}

// CreateAssist instantiates an assist provider using the factory registered under entry.Name.
func (r *Registry) CreateAssist(ctx context.Context, entry ProviderEntry) (assist.Provider, error) {
	return create(ctx, r, r.assist, "assist", entry)
}

// CreateAudio instantiates an audio backend using the factory registered under entry.Name.
func (r *Registry) CreateAudio(ctx context.Context, entry ProviderEntry) (device.AudioBackend, error) {
	return create(ctx, r, r.audio, "audio", entry)
}

// CreateCamera instantiates a camera backend using the factory registered under entry.Name.
func (r *Registry) CreateCamera(ctx context.Context, entry ProviderEntry) (device.CameraBackend, error) {
	return create(ctx, r, r.camera, "camera", entry)
}

func create[T any](ctx context.Context, r *Registry, m map[string]Factory[T], kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	f, ok := m[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return f(ctx, entry)
}
