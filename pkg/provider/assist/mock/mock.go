// Package mock provides a test double for the assist.Provider interface.
//
// Zero values for response fields cause methods to return zero values and
// nil errors. Set the Err fields to inject failures. Responses may be
// replaced between calls; every call is recorded.
//
// Example:
//
//	p := &mock.Provider{RefineResult: "I would like water."}
//	out, err := p.Refine(ctx, "want water", assist.ToneCasual)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/oceanwave/pkg/provider/assist"
)

// Call records one invocation. Fields that do not apply are zero.
type Call struct {
	Method string
	Text   string
	Tone   assist.Tone
	Image  []byte
}

// Provider is a mock implementation of assist.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	RefineResult  string
	RefineErr     error
	PredictResult []string
	PredictErr    error
	EmojiResult   []string
	EmojiErr      error
	SpeakResult   assist.Speech
	SpeakErr      error

	// Block, if non-nil, makes every call wait until it is closed or the
	// context is done.
	Block chan struct{}

	// --- Call records (read after test) ---

	Calls []Call
}

var _ assist.Provider = (*Provider)(nil)

func (p *Provider) record(ctx context.Context, c Call) error {
	p.mu.Lock()
	p.Calls = append(p.Calls, c)
	block := p.Block
	p.mu.Unlock()
	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refine records the call and returns RefineResult, RefineErr.
func (p *Provider) Refine(ctx context.Context, text string, tone assist.Tone) (string, error) {
	if err := p.record(ctx, Call{Method: "Refine", Text: text, Tone: tone}); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.RefineResult, p.RefineErr
}

// Predict records the call and returns PredictResult, PredictErr.
func (p *Provider) Predict(ctx context.Context, text string) ([]string, error) {
	if err := p.record(ctx, Call{Method: "Predict", Text: text}); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.PredictResult...), p.PredictErr
}

// ContextEmojis records the call and returns EmojiResult, EmojiErr.
func (p *Provider) ContextEmojis(ctx context.Context, jpeg []byte) ([]string, error) {
	if err := p.record(ctx, Call{Method: "ContextEmojis", Image: jpeg}); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.EmojiResult...), p.EmojiErr
}

// Speak records the call and returns SpeakResult, SpeakErr.
func (p *Provider) Speak(ctx context.Context, text string, tone assist.Tone) (assist.Speech, error) {
	if err := p.record(ctx, Call{Method: "Speak", Text: text, Tone: tone}); err != nil {
		return assist.Speech{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.SpeakResult, p.SpeakErr
}

// CallsTo returns the recorded calls to method.
func (p *Provider) CallsTo(method string) []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Call
	for _, c := range p.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Set runs fn with the provider locked, for changing responses while calls
// may be in flight.
func (p *Provider) Set(fn func(p *Provider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}
