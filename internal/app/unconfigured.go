package app

import (
	"context"
	"errors"

	"github.com/MrWong99/oceanwave/pkg/provider/assist"
	"github.com/MrWong99/oceanwave/pkg/provider/live"
)

// ErrNotConfigured is returned by the placeholders used when a provider kind
// is missing from the config.
var ErrNotConfigured = errors.New("app: provider not configured")

var (
	_ live.Provider   = unconfiguredLive{}
	_ assist.Provider = unconfiguredAssist{}
)

// unconfiguredLive makes every Vision Pal session fail with a connection
// error.
type unconfiguredLive struct{}

func (unconfiguredLive) Connect(context.Context, live.SessionConfig) (live.Session, error) {
	return nil, ErrNotConfigured
}

func (unconfiguredLive) Capabilities() live.Capabilities { return live.Capabilities{} }

// unconfiguredAssist fails every call; the board then keeps the text as
// typed, offers no predictions and falls back to placeholder emojis.
type unconfiguredAssist struct{}

func (unconfiguredAssist) Refine(context.Context, string, assist.Tone) (string, error) {
	return "", ErrNotConfigured
}

func (unconfiguredAssist) Predict(context.Context, string) ([]string, error) {
	return nil, ErrNotConfigured
}

func (unconfiguredAssist) ContextEmojis(context.Context, []byte) ([]string, error) {
	return nil, ErrNotConfigured
}

func (unconfiguredAssist) Speak(context.Context, string, assist.Tone) (assist.Speech, error) {
	return assist.Speech{}, ErrNotConfigured
}
