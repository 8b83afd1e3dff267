package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/oceanwave/internal/observe"
	"github.com/MrWong99/oceanwave/pkg/provider/assist"
	"github.com/MrWong99/oceanwave/pkg/provider/assist/mock"
)

func newAssistFallback(t *testing.T, primary, secondary *mock.Provider) (*AssistFallback, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatal(err)
	}
	f := NewAssistFallback(primary, "gemini", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	}, m)
	if secondary != nil {
		f.AddFallback("openai", secondary)
	}
	return f, reader
}

func requestCount(t *testing.T, reader *sdkmetric.ManualReader, provider, status string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "oceanwave.provider.requests" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				p, _ := dp.Attributes.Value("provider")
				s, _ := dp.Attributes.Value("status")
				if p.AsString() == provider && s.AsString() == status {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestAssistFallback_PrimarySuccess(t *testing.T) {
	t.Parallel()
	primary := &mock.Provider{RefineResult: "I am hungry."}
	secondary := &mock.Provider{RefineResult: "unused"}
	f, reader := newAssistFallback(t, primary, secondary)

	got, err := f.Refine(context.Background(), "hungry", assist.ToneCasual)
	if err != nil {
		t.Fatal(err)
	}
	if got != "I am hungry." {
		t.Errorf("got %q", got)
	}
	if len(secondary.Calls) != 0 {
		t.Error("secondary called although primary succeeded")
	}
	if n := requestCount(t, reader, "gemini", "ok"); n != 1 {
		t.Errorf("ok requests = %d, want 1", n)
	}
}

func TestAssistFallback_Failover(t *testing.T) {
	t.Parallel()
	primary := &mock.Provider{PredictErr: errors.New("quota")}
	secondary := &mock.Provider{PredictResult: []string{"a", "b", "c"}}
	f, reader := newAssistFallback(t, primary, secondary)

	got, err := f.Predict(context.Background(), "I want")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("got %q", got)
	}
	if n := requestCount(t, reader, "gemini", "error"); n != 1 {
		t.Errorf("primary errors = %d, want 1", n)
	}

	// MaxFailures is 1, so the primary is now skipped entirely.
	if _, err := f.Predict(context.Background(), "again"); err != nil {
		t.Fatal(err)
	}
	if n := len(primary.CallsTo("Predict")); n != 1 {
		t.Errorf("primary predict calls = %d, want 1", n)
	}
	if !f.Healthy() {
		t.Error("group with a closed secondary reported unhealthy")
	}
}

func TestAssistFallback_AllFail(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	f, _ := newAssistFallback(t, &mock.Provider{SpeakErr: boom}, &mock.Provider{SpeakErr: boom})

	if _, err := f.Speak(context.Background(), "hi", assist.ToneCasual); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if f.Healthy() {
		t.Error("all breakers open but Healthy reported true")
	}
}

func TestAssistFallback_PassesArguments(t *testing.T) {
	t.Parallel()
	primary := &mock.Provider{EmojiResult: []string{"🍎"}, SpeakResult: assist.Speech{PCM: []byte{0, 0}, SampleRate: 24000}}
	f, _ := newAssistFallback(t, primary, nil)

	if _, err := f.ContextEmojis(context.Background(), []byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Speak(context.Background(), "hello", assist.ToneProfessional); err != nil {
		t.Fatal(err)
	}
	if c := primary.CallsTo("ContextEmojis"); len(c) != 1 || !slices.Equal(c[0].Image, []byte{1, 2}) {
		t.Errorf("emoji calls = %+v", c)
	}
	if c := primary.CallsTo("Speak"); len(c) != 1 || c[0].Tone != assist.ToneProfessional {
		t.Errorf("speak calls = %+v", c)
	}
	if got := f.Backends(); !slices.Equal(got, []string{"gemini"}) {
		t.Errorf("Backends = %v", got)
	}
}
