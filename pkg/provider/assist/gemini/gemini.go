// Package gemini provides an assist provider backed by the Gemini API
// through the official google.golang.org/genai client.
//
// Text requests ask for JSON with a response schema; speech uses a TTS model
// with a prebuilt voice chosen by tone and returns 24 kHz PCM16.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/MrWong99/oceanwave/pkg/provider/assist"
)

const (
	defaultModel    = "gemini-3-flash-preview"
	defaultTTSModel = "gemini-2.5-flash-preview-tts"
)

// Voices per tone. Empathetic and casual share the softer voice.
const (
	VoiceProfessional = "Kore"
	VoiceDefault      = "Zephyr"
)

// Provider implements assist.Provider using Gemini.
type Provider struct {
	client   *genai.Client
	model    string
	ttsModel string
	voices   map[assist.Tone]string
}

var _ assist.Provider = (*Provider)(nil)

type config struct {
	model    string
	ttsModel string
	baseURL  string
	timeout  time.Duration
	voices   map[assist.Tone]string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides the text model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTTSModel overrides the speech model.
func WithTTSModel(model string) Option {
	return func(c *config) { c.ttsModel = model }
}

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithVoice overrides the prebuilt voice used for tone.
func WithVoice(tone assist.Tone, voice string) Option {
	return func(c *config) { c.voices[tone] = voice }
}

// New constructs a Gemini assist provider.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: apiKey must not be empty")
	}
	cfg := &config{
		model:    defaultModel,
		ttsModel: defaultTTSModel,
		voices: map[assist.Tone]string{
			assist.ToneCasual:       VoiceDefault,
			assist.ToneProfessional: VoiceProfessional,
			assist.ToneEmpathetic:   VoiceDefault,
		},
	}
	for _, o := range opts {
		o(cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}
	if cfg.timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.timeout}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Provider{
		client:   client,
		model:    cfg.model,
		ttsModel: cfg.ttsModel,
		voices:   cfg.voices,
	}, nil
}

// Voice returns the prebuilt voice used for tone.
func (p *Provider) Voice(tone assist.Tone) string {
	if v, ok := p.voices[tone]; ok && v != "" {
		return v
	}
	return VoiceDefault
}

// Refine implements assist.Provider.
func (p *Provider) Refine(ctx context.Context, text string, tone assist.Tone) (string, error) {
	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"refined": {Type: genai.TypeString},
		},
	}
	raw, err := p.generateJSON(ctx, genai.Text(assist.RefinePrompt(text, tone)), schema)
	if err != nil {
		return "", fmt.Errorf("gemini: refine: %w", err)
	}
	return assist.DecodeRefined(raw)
}

// Predict implements assist.Provider.
func (p *Provider) Predict(ctx context.Context, text string) ([]string, error) {
	raw, err := p.generateJSON(ctx, genai.Text(assist.PredictPrompt(text)), stringArray())
	if err != nil {
		return nil, fmt.Errorf("gemini: predict: %w", err)
	}
	return assist.DecodeList(raw, assist.PredictionCount)
}

// ContextEmojis implements assist.Provider.
func (p *Provider) ContextEmojis(ctx context.Context, jpeg []byte) ([]string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(assist.EmojiPrompt),
			genai.NewPartFromBytes(jpeg, "image/jpeg"),
		}, genai.RoleUser),
	}
	raw, err := p.generateJSON(ctx, contents, stringArray())
	if err != nil {
		return nil, fmt.Errorf("gemini: context emojis: %w", err)
	}
	return assist.DecodeList(raw, assist.EmojiCount)
}

// Speak implements assist.Provider.
func (p *Provider) Speak(ctx context.Context, text string, tone assist.Tone) (assist.Speech, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.ttsModel, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: p.Voice(tone)},
			},
		},
	})
	if err != nil {
		return assist.Speech{}, fmt.Errorf("gemini: speak: %w", err)
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return assist.Speech{PCM: part.InlineData.Data, SampleRate: assist.SpeechSampleRate}, nil
			}
		}
	}
	return assist.Speech{}, errors.New("gemini: speak: response carried no audio")
}

func (p *Provider) generateJSON(ctx context.Context, contents []*genai.Content, schema *genai.Schema) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}

func stringArray() *genai.Schema {
	return &genai.Schema{
		Type:  genai.TypeArray,
		Items: &genai.Schema{Type: genai.TypeString},
	}
}
