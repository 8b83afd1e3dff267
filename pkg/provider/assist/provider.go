// Package assist defines the Provider interface for the request/response
// helpers behind the communication board: sentence refinement, next-word
// prediction, picture-to-emoji suggestions and speech synthesis.
//
// Implementations return errors; callers decide what the user sees when a
// request fails. The prompts and the JSON shapes every backend asks the model
// for live here so that backends only differ in transport.
//
// All implementations must be safe for concurrent use.
package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Tone selects the register of refined sentences and the synthesised voice.
type Tone string

const (
	ToneCasual       Tone = "casual"
	ToneProfessional Tone = "professional"
	ToneEmpathetic   Tone = "empathetic"
)

// Tones lists every valid tone in display order.
var Tones = []Tone{ToneCasual, ToneProfessional, ToneEmpathetic}

// ParseTone validates s. Matching is case-insensitive.
func ParseTone(s string) (Tone, error) {
	t := Tone(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Tones {
		if t == v {
			return t, nil
		}
	}
	return "", fmt.Errorf("assist: unknown tone %q", s)
}

// PredictionCount is how many next words are requested.
const PredictionCount = 3

// EmojiCount is how many context emojis are requested.
const EmojiCount = 5

// SpeechSampleRate is the rate of PCM returned by Speak.
const SpeechSampleRate = 24000

// FallbackEmojis is shown when a picture could not be analysed.
var FallbackEmojis = []string{"❓", "🖼️", "⚠️", "🔄", "❌"}

// Speech is synthesised audio: mono little-endian PCM16.
type Speech struct {
	PCM        []byte
	SampleRate int
}

// Provider is the abstraction over assist backends.
type Provider interface {
	// Refine rewrites fragmentary input as a natural sentence in tone.
	Refine(ctx context.Context, text string, tone Tone) (string, error)

	// Predict returns up to PredictionCount words likely to follow text.
	Predict(ctx context.Context, text string) ([]string, error)

	// ContextEmojis returns EmojiCount emojis describing a JPEG picture.
	ContextEmojis(ctx context.Context, jpeg []byte) ([]string, error)

	// Speak synthesises text with the voice for tone.
	Speak(ctx context.Context, text string, tone Tone) (Speech, error)
}

// ── Prompts ───────────────────────────────────────────────────────────────────

// RefinePrompt asks for {"refined": "..."}.
func RefinePrompt(text string, tone Tone) string {
	return fmt.Sprintf(`Refine the following broken speech or AAC input into a natural, grammatically correct English sentence.

Input: %q
Tone: %s

Return ONLY the refined sentence as a JSON string under the key "refined".`, text, tone)
}

// PredictPrompt asks for a JSON array of words.
func PredictPrompt(text string) string {
	return fmt.Sprintf(`Predict the next %d most likely words to follow this text input: %q.
Context: AAC device for communication assistant.
Output: JSON array of %d strings. Example: ["word1", "word2", "word3"]`, PredictionCount, text, PredictionCount)
}

// EmojiPrompt accompanies the picture in ContextEmojis.
var EmojiPrompt = fmt.Sprintf(`Analyze this image and identify the main object, action, or context.
Provide exactly %d distinct emojis that best represent this context for an AAC (Augmentative and Alternative Communication) user.
Return only a JSON array of %d emoji strings. Example: ["🍎", "🍽️", "🤤", "🥤", "🧺"]`, EmojiCount, EmojiCount)

// ── Response decoding ─────────────────────────────────────────────────────────

// DecodeRefined extracts the "refined" field. An empty field is an error.
func DecodeRefined(raw string) (string, error) {
	var v struct {
		Refined string `json:"refined"`
	}
	if err := json.Unmarshal([]byte(stripFence(raw)), &v); err != nil {
		return "", fmt.Errorf("assist: decode refined: %w", err)
	}
	if strings.TrimSpace(v.Refined) == "" {
		return "", fmt.Errorf("assist: decode refined: empty result")
	}
	return strings.TrimSpace(v.Refined), nil
}

// DecodeList parses a JSON array of strings, or an object whose first array
// field holds them, keeping at most limit non-empty entries.
func DecodeList(raw string, limit int) ([]string, error) {
	raw = stripFence(raw)
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		// JSON-object modes cannot return a bare array.
		var obj map[string]json.RawMessage
		if objErr := json.Unmarshal([]byte(raw), &obj); objErr != nil {
			return nil, fmt.Errorf("assist: decode list: %w", err)
		}
		for _, v := range obj {
			if json.Unmarshal(v, &list) == nil {
				break
			}
		}
	}
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
