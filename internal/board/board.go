// Package board implements the communication board: the message being
// composed from tiles and the keyboard, category navigation, next-word
// predictions, sentence refinement, context emojis and speaking the message
// aloud.
//
// Assist failures never reach the user. Refine keeps the original text,
// predictions come back empty, context emojis fall back to
// [assist.FallbackEmojis] and speech that cannot be synthesised is skipped.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/oceanwave/internal/observe"
	"github.com/MrWong99/oceanwave/pkg/provider/assist"
	"github.com/MrWong99/oceanwave/pkg/audio/playback"
	"github.com/MrWong99/oceanwave/pkg/device"
)

// DefaultDebounce is how long typing must pause before predictions are
// requested.
const DefaultDebounce = 600 * time.Millisecond

// defaultAssistTimeout bounds background prediction requests.
const defaultAssistTimeout = 15 * time.Second

var (
	// ErrUnknownItem is returned for an id that is not in the vocabulary.
	ErrUnknownItem = errors.New("board: unknown item")

	// ErrNoPrediction is returned when a prediction index is out of range.
	ErrNoPrediction = errors.New("board: no such prediction")
)

// State is a snapshot of the board.
type State struct {
	Message     string      `json:"message"`
	Category    Category    `json:"category"`
	History     []Category  `json:"history"`
	Items       []Item      `json:"items"`
	Tone        assist.Tone `json:"tone"`
	Keyboard    bool        `json:"keyboard"`
	Predictions []string    `json:"predictions"`
	Speaking    bool        `json:"speaking"`
	Refining    bool        `json:"refining"`
}

// Option configures a [Board].
type Option func(*Board)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Board) { b.log = l }
}

// WithMetrics sets the metric instruments. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Board) { b.metrics = m }
}

// WithVocabulary replaces [DefaultVocabulary].
func WithVocabulary(v Vocabulary) Option {
	return func(b *Board) { b.vocab = v }
}

// WithDebounce sets the prediction debounce. Default: [DefaultDebounce].
func WithDebounce(d time.Duration) Option {
	return func(b *Board) { b.debounce = d }
}

// WithTone sets the initial tone. Default: casual.
func WithTone(t assist.Tone) Option {
	return func(b *Board) { b.tone = t }
}

// Board holds the composer state. All methods are safe for concurrent use.
type Board struct {
	assist  assist.Provider
	speaker *speaker
	vocab   Vocabulary
	symbols *SymbolIndex
	log     *slog.Logger
	metrics *observe.Metrics

	mu          sync.Mutex
	debounce    time.Duration
	message     string
	history     []Category
	tone        assist.Tone
	keyboard    bool
	predictions []string
	speaking    bool
	refining    bool

	// rev increments on every message or keyboard change so stale
	// prediction results are discarded.
	rev     uint64
	timer   *time.Timer
	predict context.CancelFunc
	// utterance identifies the speech whose end clears speaking.
	utterance uint64
	closed    bool
}

// New creates a board that uses provider for assist calls and devices for
// speech output.
func New(provider assist.Provider, devices device.Devices, opts ...Option) (*Board, error) {
	if provider == nil {
		return nil, errors.New("board: assist provider must not be nil")
	}
	if devices == nil {
		return nil, errors.New("board: devices must not be nil")
	}
	b := &Board{
		assist:   provider,
		speaker:  &speaker{devices: devices},
		log:      slog.Default(),
		debounce: DefaultDebounce,
		tone:     assist.ToneCasual,
		history:  []Category{CategoryRoot},
	}
	for _, o := range opts {
		o(b)
	}
	if b.vocab == nil {
		b.vocab = DefaultVocabulary()
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	if _, err := assist.ParseTone(string(b.tone)); err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}
	b.symbols = NewSymbolIndex(b.vocab)
	return b, nil
}

// State returns a snapshot.
func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Board) snapshotLocked() State {
	cur := b.history[len(b.history)-1]
	return State{
		Message:     b.message,
		Category:    cur,
		History:     append([]Category(nil), b.history...),
		Items:       append([]Item(nil), b.vocab[cur]...),
		Tone:        b.tone,
		Keyboard:    b.keyboard,
		Predictions: append([]string(nil), b.predictions...),
		Speaking:    b.speaking,
		Refining:    b.refining,
	}
}

// ── Navigation ────────────────────────────────────────────────────────────────

// Select taps a tile. A folder opens its category; any other tile appends
// its label to the message, separated by a space.
func (b *Board) Select(id string) (State, error) {
	it, ok := b.vocab.Find(id)
	if !ok {
		return b.State(), fmt.Errorf("%w: %q", ErrUnknownItem, id)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if it.Folder && it.Target != "" {
		b.history = append(b.history, it.Target)
		return b.snapshotLocked(), nil
	}
	if b.message == "" {
		b.setMessageLocked(it.Label)
	} else {
		b.setMessageLocked(b.message + " " + it.Label)
	}
	return b.snapshotLocked(), nil
}

// Back returns to the previous category. At the root it does nothing.
func (b *Board) Back() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.history) > 1 {
		b.history = b.history[:len(b.history)-1]
	}
	return b.snapshotLocked()
}

// Home returns to the root category.
func (b *Board) Home() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = []Category{CategoryRoot}
	return b.snapshotLocked()
}

// ── Message ───────────────────────────────────────────────────────────────────

// Clear empties the message and stops speech.
func (b *Board) Clear() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setMessageLocked("")
	b.stopSpeechLocked()
	return b.snapshotLocked()
}

// SetText replaces the message, as typed on the keyboard.
func (b *Board) SetText(text string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setMessageLocked(text)
	return b.snapshotLocked()
}

// SetTone selects the register used by Refine and Speak.
func (b *Board) SetTone(t assist.Tone) (State, error) {
	if _, err := assist.ParseTone(string(t)); err != nil {
		return b.State(), fmt.Errorf("board: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tone = t
	return b.snapshotLocked(), nil
}

// SetKeyboard shows or hides the keyboard. Predictions are only offered
// while it is shown.
func (b *Board) SetKeyboard(on bool) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.keyboard != on {
		b.keyboard = on
		b.changedLocked()
	}
	return b.snapshotLocked()
}

// UsePrediction appends prediction i and a trailing space, then clears the
// predictions.
func (b *Board) UsePrediction(i int) (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.predictions) {
		return b.snapshotLocked(), fmt.Errorf("%w: %d", ErrNoPrediction, i)
	}
	word := b.predictions[i]
	msg := b.message
	if !strings.HasSuffix(msg, " ") {
		msg += " "
	}
	b.setMessageLocked(msg + word + " ")
	b.predictions = nil
	return b.snapshotLocked(), nil
}

// AppendEmojis appends emojis, space-separated, to the message.
func (b *Board) AppendEmojis(emojis []string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(emojis) == 0 {
		return b.snapshotLocked()
	}
	s := strings.Join(emojis, " ")
	if b.message != "" {
		s = b.message + " " + s
	}
	b.setMessageLocked(s)
	return b.snapshotLocked()
}

// setMessageLocked stores msg, stops speech when the message becomes blank
// and re-arms the prediction debounce.
func (b *Board) setMessageLocked(msg string) {
	if msg == b.message {
		return
	}
	b.message = msg
	if strings.TrimSpace(msg) == "" {
		b.stopSpeechLocked()
	}
	b.changedLocked()
}

// ── Predictions ───────────────────────────────────────────────────────────────

// changedLocked restarts the debounce timer. When it fires, predictions are
// fetched for the message if the keyboard is shown, and cleared otherwise.
func (b *Board) changedLocked() {
	b.rev++
	if b.timer != nil {
		b.timer.Stop()
	}
	if b.predict != nil {
		b.predict()
		b.predict = nil
	}
	if b.closed {
		return
	}
	rev := b.rev
	b.timer = time.AfterFunc(b.debounce, func() { b.fire(rev) })
}

func (b *Board) fire(rev uint64) {
	b.mu.Lock()
	if rev != b.rev || b.closed {
		b.mu.Unlock()
		return
	}
	text := b.message
	if !b.keyboard || strings.TrimSpace(text) == "" {
		b.predictions = nil
		b.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultAssistTimeout)
	b.predict = cancel
	b.mu.Unlock()

	defer cancel()
	words, err := b.assist.Predict(ctx, text)
	if err != nil {
		if ctx.Err() == nil {
			b.log.Warn("board: predict failed", "err", err)
		}
		words = nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if rev == b.rev {
		b.predictions = words
		b.predict = nil
	}
}

// ── Assist ────────────────────────────────────────────────────────────────────

// Refine rewrites the message in the current tone. On failure the message is
// left as it was. An empty message is a no-op.
func (b *Board) Refine(ctx context.Context) State {
	b.mu.Lock()
	text, tone := b.message, b.tone
	if text == "" || b.refining {
		defer b.mu.Unlock()
		return b.snapshotLocked()
	}
	b.refining = true
	b.mu.Unlock()

	refined, err := b.assist.Refine(ctx, text, tone)
	if err != nil {
		b.log.Warn("board: refine failed", "err", err)
		refined = text
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refining = false
	// Typing during the request wins over the refined text.
	if b.message == text && refined != "" {
		b.setMessageLocked(refined)
	}
	return b.snapshotLocked()
}

// ContextEmojis suggests emojis for a JPEG picture of the surroundings.
// It always returns a non-empty list.
func (b *Board) ContextEmojis(ctx context.Context, jpeg []byte) []string {
	emojis, err := b.assist.ContextEmojis(ctx, jpeg)
	if err != nil || len(emojis) == 0 {
		if err != nil {
			b.log.Warn("board: context emojis failed", "err", err)
		}
		return append([]string(nil), assist.FallbackEmojis...)
	}
	return emojis
}

// Symbols looks up tiles whose label sounds like query.
func (b *Board) Symbols(query string, limit int) []Match {
	return b.symbols.Search(query, limit)
}

// ── Speech ────────────────────────────────────────────────────────────────────

// Speak synthesises the message in the current tone and plays it, stopping
// anything already playing. It returns once playback has started; Speaking
// stays true until the audio has played out or is stopped. Synthesis
// failures are logged and leave Speaking false.
func (b *Board) Speak(ctx context.Context) State {
	b.mu.Lock()
	text, tone := b.message, b.tone
	if text == "" {
		defer b.mu.Unlock()
		return b.snapshotLocked()
	}
	b.stopSpeechLocked()
	b.utterance++
	id := b.utterance
	b.speaking = true
	b.mu.Unlock()

	b.metrics.RecordUtterance(ctx, string(tone))

	var done <-chan struct{}
	speech, err := b.assist.Speak(ctx, text, tone)
	if err == nil && len(speech.PCM) == 0 {
		err = errors.New("no audio returned")
	}
	if err == nil {
		rate := speech.SampleRate
		if rate <= 0 {
			rate = assist.SpeechSampleRate
		}
		var sink playback.Sink
		if sink, err = b.speaker.output(ctx, rate); err == nil {
			b.mu.Lock()
			if id == b.utterance {
				done, err = b.speaker.play(ctx, sink, speech.PCM, rate)
			}
			// Otherwise stopped or superseded while synthesising.
			b.mu.Unlock()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil && !errors.Is(err, errSpeakerClosed) {
		b.log.Warn("board: speak failed", "err", err)
	}
	if done == nil {
		if id == b.utterance {
			b.speaking = false
		}
		return b.snapshotLocked()
	}
	go func() {
		<-done
		b.mu.Lock()
		defer b.mu.Unlock()
		if id == b.utterance {
			b.speaking = false
		}
	}()
	return b.snapshotLocked()
}

// StopSpeech stops playback.
func (b *Board) StopSpeech() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopSpeechLocked()
	return b.snapshotLocked()
}

func (b *Board) stopSpeechLocked() {
	b.utterance++
	b.speaking = false
	b.speaker.stop()
}

// ── Settings ──────────────────────────────────────────────────────────────────

// SetDebounce changes the prediction debounce for future edits.
func (b *Board) SetDebounce(d time.Duration) {
	if d <= 0 {
		d = DefaultDebounce
	}
	b.mu.Lock()
	b.debounce = d
	b.mu.Unlock()
}

// Close stops pending predictions and speech and releases the output.
func (b *Board) Close() error {
	b.mu.Lock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
	}
	if b.predict != nil {
		b.predict()
		b.predict = nil
	}
	b.utterance++
	b.speaking = false
	b.mu.Unlock()
	return b.speaker.close()
}
