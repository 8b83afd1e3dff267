package board_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/oceanwave/internal/board"
	"github.com/MrWong99/oceanwave/pkg/audio"
	"github.com/MrWong99/oceanwave/pkg/device"
	devmock "github.com/MrWong99/oceanwave/pkg/device/mock"
	"github.com/MrWong99/oceanwave/pkg/provider/assist"
	assistmock "github.com/MrWong99/oceanwave/pkg/provider/assist/mock"
)

type harness struct {
	board   *board.Board
	assist  *assistmock.Provider
	backend *devmock.Backend
}

func newHarness(t *testing.T, realtime bool, opts ...board.Option) *harness {
	t.Helper()
	h := &harness{
		assist:  &assistmock.Provider{},
		backend: &devmock.Backend{Realtime: realtime},
	}
	opts = append([]board.Option{
		board.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		board.WithDebounce(30 * time.Millisecond),
	}, opts...)
	b, err := board.New(h.assist, device.Compose(h.backend, h.backend), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	h.board = b
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// speech returns d of silence-ish PCM16 at 24 kHz.
func speech(d time.Duration) assist.Speech {
	n := int(d.Seconds() * assist.SpeechSampleRate)
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = 1000
	}
	return assist.Speech{PCM: audio.PCM16ToBytes(pcm), SampleRate: assist.SpeechSampleRate}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	b := &devmock.Backend{}
	if _, err := board.New(nil, device.Compose(b, b)); err == nil {
		t.Error("nil provider accepted")
	}
	if _, err := board.New(&assistmock.Provider{}, nil); err == nil {
		t.Error("nil devices accepted")
	}
	if _, err := board.New(&assistmock.Provider{}, device.Compose(b, b), board.WithTone("angry")); err == nil {
		t.Error("invalid tone accepted")
	}
}

func TestBoard_InitialState(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	st := h.board.State()
	if st.Category != board.CategoryRoot || len(st.History) != 1 {
		t.Errorf("category = %v history = %v", st.Category, st.History)
	}
	if st.Tone != assist.ToneCasual {
		t.Errorf("tone = %q", st.Tone)
	}
	if len(st.Items) == 0 {
		t.Error("root has no tiles")
	}
}

func TestSelect_NavigationAndMessage(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	b := h.board

	mustSelect := func(id string) board.State {
		t.Helper()
		st, err := b.Select(id)
		if err != nil {
			t.Fatalf("Select(%q): %v", id, err)
		}
		return st
	}

	mustSelect("i")
	st := mustSelect("want")
	if st.Message != "I want" {
		t.Errorf("message = %q, want %q", st.Message, "I want")
	}

	st = mustSelect("f-eat")
	if st.Category != board.CategoryEat {
		t.Fatalf("category = %v, want EAT", st.Category)
	}
	if st.Message != "I want" {
		t.Errorf("opening a folder changed the message to %q", st.Message)
	}
	for _, it := range st.Items {
		if it.Category != board.CategoryEat {
			t.Errorf("item %q from %v shown in EAT", it.ID, it.Category)
		}
	}

	st = mustSelect("eat-water")
	if st.Message != "I want water" {
		t.Errorf("message = %q", st.Message)
	}

	st = b.Back()
	if st.Category != board.CategoryRoot {
		t.Errorf("after Back category = %v", st.Category)
	}
	st = b.Back()
	if st.Category != board.CategoryRoot || len(st.History) != 1 {
		t.Errorf("Back at root: category = %v history = %v", st.Category, st.History)
	}

	mustSelect("f-go")
	mustSelect("f-tell")
	if st := b.State(); len(st.History) != 3 {
		t.Fatalf("history = %v", st.History)
	}
	st = b.Home()
	if !slices.Equal(st.History, []board.Category{board.CategoryRoot}) {
		t.Errorf("after Home history = %v", st.History)
	}
}

func TestSelect_Unknown(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	if _, err := h.board.Select("nope"); !errors.Is(err, board.ErrUnknownItem) {
		t.Errorf("err = %v, want ErrUnknownItem", err)
	}
}

func TestPredictions_Debounced(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false, board.WithDebounce(80*time.Millisecond))
	h.assist.PredictResult = []string{"water", "food", "help"}

	h.board.SetKeyboard(true)
	for _, s := range []string{"I", "I ", "I w", "I wa", "I want"} {
		h.board.SetText(s)
	}
	waitFor(t, "predictions", func() bool { return len(h.board.State().Predictions) == 3 })

	calls := h.assist.CallsTo("Predict")
	if len(calls) != 1 {
		t.Fatalf("predict calls = %d, want 1", len(calls))
	}
	if calls[0].Text != "I want" {
		t.Errorf("predicted for %q", calls[0].Text)
	}
}

func TestPredictions_OnlyWithKeyboard(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	h.assist.PredictResult = []string{"a", "b", "c"}

	h.board.SetText("hello")
	time.Sleep(150 * time.Millisecond)
	if n := len(h.assist.CallsTo("Predict")); n != 0 {
		t.Fatalf("predict called %d times with the keyboard hidden", n)
	}

	h.board.SetKeyboard(true)
	waitFor(t, "predictions", func() bool { return len(h.board.State().Predictions) == 3 })

	h.board.SetKeyboard(false)
	waitFor(t, "predictions cleared", func() bool { return len(h.board.State().Predictions) == 0 })
}

func TestPredictions_BlankTextClears(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	h.assist.PredictResult = []string{"a", "b", "c"}
	h.board.SetKeyboard(true)
	h.board.SetText("hi")
	waitFor(t, "predictions", func() bool { return len(h.board.State().Predictions) == 3 })

	h.board.SetText("   ")
	waitFor(t, "predictions cleared", func() bool { return len(h.board.State().Predictions) == 0 })
	if n := len(h.assist.CallsTo("Predict")); n != 1 {
		t.Errorf("predict calls = %d, want 1", n)
	}
}

func TestPredictions_FailureYieldsNone(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	h.assist.PredictErr = errors.New("quota")
	h.board.SetKeyboard(true)
	h.board.SetText("hi")
	waitFor(t, "predict call", func() bool { return len(h.assist.CallsTo("Predict")) == 1 })
	time.Sleep(20 * time.Millisecond)
	if p := h.board.State().Predictions; len(p) != 0 {
		t.Errorf("predictions = %v", p)
	}
}

func TestUsePrediction(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text string
		want string
	}{
		{"I want", "I want water "},
		{"I want ", "I want water "},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, false)
			h.assist.PredictResult = []string{"food", "water"}
			h.board.SetKeyboard(true)
			h.board.SetText(tt.text)
			waitFor(t, "predictions", func() bool { return len(h.board.State().Predictions) == 2 })

			st, err := h.board.UsePrediction(1)
			if err != nil {
				t.Fatal(err)
			}
			if st.Message != tt.want {
				t.Errorf("message = %q, want %q", st.Message, tt.want)
			}
			if len(st.Predictions) != 0 {
				t.Errorf("predictions not cleared: %v", st.Predictions)
			}
		})
	}
}

func TestUsePrediction_OutOfRange(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	if _, err := h.board.UsePrediction(0); !errors.Is(err, board.ErrNoPrediction) {
		t.Errorf("err = %v, want ErrNoPrediction", err)
	}
}

func TestRefine(t *testing.T) {
	t.Parallel()

	t.Run("replaces message", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		h.assist.RefineResult = "I would like some water, please."
		h.board.SetText("want water")
		_, _ = h.board.SetTone(assist.ToneProfessional)

		st := h.board.Refine(context.Background())
		if st.Message != "I would like some water, please." {
			t.Errorf("message = %q", st.Message)
		}
		if st.Refining {
			t.Error("still refining")
		}
		c := h.assist.CallsTo("Refine")
		if len(c) != 1 || c[0].Text != "want water" || c[0].Tone != assist.ToneProfessional {
			t.Errorf("calls = %+v", c)
		}
	})

	t.Run("failure keeps text", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		h.assist.RefineErr = errors.New("offline")
		h.board.SetText("want water")
		if st := h.board.Refine(context.Background()); st.Message != "want water" {
			t.Errorf("message = %q", st.Message)
		}
	})

	t.Run("empty is a no-op", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		h.board.Refine(context.Background())
		if n := len(h.assist.Calls); n != 0 {
			t.Errorf("assist called %d times", n)
		}
	})
}

func TestContextEmojis(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	h.assist.EmojiResult = []string{"🌳", "☀️"}
	if got := h.board.ContextEmojis(context.Background(), []byte{0xff, 0xd8}); !slices.Equal(got, []string{"🌳", "☀️"}) {
		t.Errorf("emojis = %v", got)
	}

	h.assist.Set(func(p *assistmock.Provider) { p.EmojiErr = errors.New("bad image") })
	if got := h.board.ContextEmojis(context.Background(), nil); !slices.Equal(got, assist.FallbackEmojis) {
		t.Errorf("fallback = %v", got)
	}

	h.assist.Set(func(p *assistmock.Provider) { p.EmojiErr, p.EmojiResult = nil, nil })
	if got := h.board.ContextEmojis(context.Background(), nil); !slices.Equal(got, assist.FallbackEmojis) {
		t.Errorf("empty result = %v, want fallback", got)
	}
}

func TestAppendEmojis(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	if st := h.board.AppendEmojis([]string{"🍎", "🍞"}); st.Message != "🍎 🍞" {
		t.Errorf("message = %q", st.Message)
	}
	if st := h.board.AppendEmojis([]string{"☕"}); st.Message != "🍎 🍞 ☕" {
		t.Errorf("message = %q", st.Message)
	}
	if st := h.board.AppendEmojis(nil); st.Message != "🍎 🍞 ☕" {
		t.Errorf("empty selection changed message to %q", st.Message)
	}
}

func TestSetTone_Invalid(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	if _, err := h.board.SetTone("sarcastic"); err == nil {
		t.Error("invalid tone accepted")
	}
	if st := h.board.State(); st.Tone != assist.ToneCasual {
		t.Errorf("tone = %q", st.Tone)
	}
}

func TestSpeak_PlaysAndClearsSpeaking(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	h.assist.SpeakResult = speech(100 * time.Millisecond)
	h.board.SetText("hello")
	_, _ = h.board.SetTone(assist.ToneEmpathetic)

	st := h.board.Speak(context.Background())
	if !st.Speaking {
		t.Fatal("not speaking after Speak")
	}
	c := h.assist.CallsTo("Speak")
	if len(c) != 1 || c[0].Text != "hello" || c[0].Tone != assist.ToneEmpathetic {
		t.Errorf("speak calls = %+v", c)
	}
	if out := h.backend.LastOutput(); out == nil || len(out.Starts()) != 1 {
		t.Fatal("speech was not scheduled")
	}
	waitFor(t, "speech to finish", func() bool { return !h.board.State().Speaking })
}

func TestSpeak_SlowOutputOpenLeavesBoardResponsive(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	h.backend.Block = make(chan struct{})
	h.assist.SpeakResult = speech(time.Second)
	h.board.SetText("hello")

	spoke := make(chan board.State, 1)
	go func() { spoke <- h.board.Speak(context.Background()) }()
	waitFor(t, "output open to start", func() bool { return h.backend.Waiting() == 1 })

	stopped := make(chan board.State, 1)
	go func() { stopped <- h.board.StopSpeech() }()
	select {
	case st := <-stopped:
		if st.Speaking {
			t.Error("still speaking after StopSpeech")
		}
	case <-time.After(time.Second):
		t.Fatal("StopSpeech blocked behind the output open")
	}

	close(h.backend.Block)
	select {
	case st := <-spoke:
		if st.Speaking {
			t.Error("stopped utterance reported speaking")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Speak never returned")
	}
	if out := h.backend.LastOutput(); out == nil || len(out.Starts()) != 0 {
		t.Error("stopped utterance was scheduled")
	}
}

func TestSpeak_FailureIsSilent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	h.assist.SpeakErr = errors.New("tts down")
	h.board.SetText("hello")
	if st := h.board.Speak(context.Background()); st.Speaking {
		t.Error("speaking after failed synthesis")
	}
	if h.backend.LastOutput() != nil {
		t.Error("output opened for failed synthesis")
	}
}

func TestSpeak_EmptyMessage(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	h.board.Speak(context.Background())
	if n := len(h.assist.Calls); n != 0 {
		t.Errorf("assist called %d times", n)
	}
}

func TestClear_StopsSpeech(t *testing.T) {
	t.Parallel()
	// Without a realtime clock the speech never plays out on its own.
	h := newHarness(t, false)
	h.assist.SpeakResult = speech(time.Second)
	h.board.SetText("hello")
	if st := h.board.Speak(context.Background()); !st.Speaking {
		t.Fatal("not speaking")
	}

	st := h.board.Clear()
	if st.Speaking || st.Message != "" {
		t.Errorf("after Clear: %+v", st)
	}
	out := h.backend.LastOutput()
	if out.Pending() != 0 {
		t.Errorf("pending buffers = %d after Clear", out.Pending())
	}
}

func TestSpeak_RestartsPreviousSpeech(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	h.assist.SpeakResult = speech(time.Second)
	h.board.SetText("one")
	h.board.Speak(context.Background())
	h.board.SetText("two")
	h.board.Speak(context.Background())

	out := h.backend.LastOutput()
	if n := len(h.backend.Outputs); n != 1 {
		t.Errorf("outputs opened = %d, want 1", n)
	}
	if out.Pending() != 1 {
		t.Errorf("pending = %d, want only the latest utterance", out.Pending())
	}
	if h.board.StopSpeech().Speaking {
		t.Error("StopSpeech left speaking set")
	}
}
