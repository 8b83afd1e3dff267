package config

import "fmt"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (listen address, providers, devices) needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VisionChanged is true when any vision setting changed. The new
	// settings apply to the next session.
	VisionChanged bool

	ToneChanged     bool
	DebounceChanged bool

	// RestartRequired lists top-level sections that changed but cannot be
	// applied without a restart.
	RestartRequired []string
}

// Changed reports whether anything hot-reloadable changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VisionChanged || d.ToneChanged || d.DebounceChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !visionEqual(old.Vision, new.Vision) {
		d.VisionChanged = true
	}
	if old.Board.DefaultTone != new.Board.DefaultTone {
		d.ToneChanged = true
	}
	if old.Board.PredictionDebounce != new.Board.PredictionDebounce {
		d.DebounceChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !entryEqual(old.Providers.Live, new.Providers.Live) {
		d.RestartRequired = append(d.RestartRequired, "providers.live")
	}
	if len(old.Providers.Assist) != len(new.Providers.Assist) {
		d.RestartRequired = append(d.RestartRequired, "providers.assist")
	} else {
		for i := range old.Providers.Assist {
			if !entryEqual(old.Providers.Assist[i], new.Providers.Assist[i]) {
				d.RestartRequired = append(d.RestartRequired, "providers.assist")
				break
			}
		}
	}
	if !entryEqual(old.Devices.Audio, new.Devices.Audio) || !entryEqual(old.Devices.Camera, new.Devices.Camera) {
		d.RestartRequired = append(d.RestartRequired, "devices")
	}
	return d
}

// CaptionsEnabled resolves the optional captions flag.
func (v VisionConfig) CaptionsEnabled() bool {
	return v.Captions == nil || *v.Captions
}

func visionEqual(a, b VisionConfig) bool {
	if a.CaptionsEnabled() != b.CaptionsEnabled() {
		return false
	}
	a.Captions, b.Captions = nil, nil
	return a == b
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		// fmt prints maps in key order, so nested options compare stably.
		if !ok || fmt.Sprint(v) != fmt.Sprint(w) {
			return false
		}
	}
	return true
}
