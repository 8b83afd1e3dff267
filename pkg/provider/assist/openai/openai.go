// Package openai provides an assist provider backed by the OpenAI API.
//
// Text requests use chat completions in JSON-object mode; pictures are sent
// as data URLs. Speech uses the audio speech endpoint with the raw "pcm"
// format, which is 24 kHz mono PCM16.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/oceanwave/pkg/provider/assist"
)

const (
	defaultModel    = "gpt-4o-mini"
	defaultTTSModel = "gpt-4o-mini-tts"
)

// jsonSystemPrompt forces an object response; JSON mode requires the word.
const jsonSystemPrompt = "You are the language assistant of an AAC communication board. Always answer with a single JSON object."

// Provider implements assist.Provider using OpenAI.
type Provider struct {
	client   oai.Client
	model    string
	ttsModel string
	voices   map[assist.Tone]string
}

var _ assist.Provider = (*Provider)(nil)

type config struct {
	baseURL      string
	organization string
	model        string
	ttsModel     string
	timeout      time.Duration
	voices       map[assist.Tone]string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) { c.organization = org }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTTSModel overrides the speech model.
func WithTTSModel(model string) Option {
	return func(c *config) { c.ttsModel = model }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithVoice overrides the voice used for tone.
func WithVoice(tone assist.Tone, voice string) Option {
	return func(c *config) { c.voices[tone] = voice }
}

// New constructs an OpenAI assist provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{
		model:    defaultModel,
		ttsModel: defaultTTSModel,
		voices: map[assist.Tone]string{
			assist.ToneCasual:       "coral",
			assist.ToneProfessional: "sage",
			assist.ToneEmpathetic:   "shimmer",
		},
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    cfg.model,
		ttsModel: cfg.ttsModel,
		voices:   cfg.voices,
	}, nil
}

// Refine implements assist.Provider.
func (p *Provider) Refine(ctx context.Context, text string, tone assist.Tone) (string, error) {
	raw, err := p.complete(ctx, oai.UserMessage(assist.RefinePrompt(text, tone)))
	if err != nil {
		return "", fmt.Errorf("openai: refine: %w", err)
	}
	return assist.DecodeRefined(raw)
}

// Predict implements assist.Provider.
func (p *Provider) Predict(ctx context.Context, text string) ([]string, error) {
	prompt := assist.PredictPrompt(text) + "\nWrap the array in an object under the key \"words\"."
	raw, err := p.complete(ctx, oai.UserMessage(prompt))
	if err != nil {
		return nil, fmt.Errorf("openai: predict: %w", err)
	}
	return assist.DecodeList(raw, assist.PredictionCount)
}

// ContextEmojis implements assist.Provider.
func (p *Provider) ContextEmojis(ctx context.Context, jpeg []byte) ([]string, error) {
	url := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
	msg := oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
		oai.TextContentPart(assist.EmojiPrompt + "\nWrap the array in an object under the key \"emojis\"."),
		oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{URL: url}),
	})
	raw, err := p.complete(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("openai: context emojis: %w", err)
	}
	return assist.DecodeList(raw, assist.EmojiCount)
}

// Speak implements assist.Provider.
func (p *Provider) Speak(ctx context.Context, text string, tone assist.Tone) (assist.Speech, error) {
	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.ttsModel),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(p.voice(tone)),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return assist.Speech{}, fmt.Errorf("openai: speak: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return assist.Speech{}, fmt.Errorf("openai: speak: read body: %w", err)
	}
	if len(pcm) == 0 {
		return assist.Speech{}, errors.New("openai: speak: empty audio")
	}
	return assist.Speech{PCM: pcm, SampleRate: assist.SpeechSampleRate}, nil
}

func (p *Provider) voice(tone assist.Tone) string {
	if v, ok := p.voices[tone]; ok && v != "" {
		return v
	}
	return "coral"
}

func (p *Provider) complete(ctx context.Context, msg oai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(jsonSystemPrompt),
			msg,
		},
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
