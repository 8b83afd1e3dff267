package resilience

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/oceanwave/internal/observe"
	"github.com/MrWong99/oceanwave/pkg/provider/assist"
)

// AssistFallback implements [assist.Provider] with failover across several
// assist backends. Each backend has its own circuit breaker; when the primary
// fails or its breaker is open, the next healthy backend is tried. Every
// attempt is traced and counted.
type AssistFallback struct {
	group   *FallbackGroup[assist.Provider]
	metrics *observe.Metrics
}

var _ assist.Provider = (*AssistFallback)(nil)

// NewAssistFallback creates an [AssistFallback] with primary as the preferred
// backend. A nil metrics uses observe.DefaultMetrics().
func NewAssistFallback(primary assist.Provider, primaryName string, cfg FallbackConfig, metrics *observe.Metrics) *AssistFallback {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &AssistFallback{
		group:   NewFallbackGroup(primary, primaryName, cfg),
		metrics: metrics,
	}
}

// AddFallback registers an additional backend.
func (f *AssistFallback) AddFallback(name string, p assist.Provider) {
	f.group.AddFallback(name, p)
}

// Backends lists the registered backends in try order.
func (f *AssistFallback) Backends() []string { return f.group.Names() }

// Healthy reports whether at least one backend's breaker admits calls.
func (f *AssistFallback) Healthy() bool {
	for _, s := range f.group.States() {
		if s != StateOpen {
			return true
		}
	}
	return false
}

// Refine implements assist.Provider.
func (f *AssistFallback) Refine(ctx context.Context, text string, tone assist.Tone) (string, error) {
	return run(ctx, f, "refine", func(ctx context.Context, p assist.Provider) (string, error) {
		return p.Refine(ctx, text, tone)
	})
}

// Predict implements assist.Provider.
func (f *AssistFallback) Predict(ctx context.Context, text string) ([]string, error) {
	return run(ctx, f, "predict", func(ctx context.Context, p assist.Provider) ([]string, error) {
		return p.Predict(ctx, text)
	})
}

// ContextEmojis implements assist.Provider.
func (f *AssistFallback) ContextEmojis(ctx context.Context, jpeg []byte) ([]string, error) {
	return run(ctx, f, "context_emojis", func(ctx context.Context, p assist.Provider) ([]string, error) {
		return p.ContextEmojis(ctx, jpeg)
	})
}

// Speak implements assist.Provider.
func (f *AssistFallback) Speak(ctx context.Context, text string, tone assist.Tone) (assist.Speech, error) {
	return run(ctx, f, "speak", func(ctx context.Context, p assist.Provider) (assist.Speech, error) {
		return p.Speak(ctx, text, tone)
	})
}

func run[R any](ctx context.Context, f *AssistFallback, op string, call func(context.Context, assist.Provider) (R, error)) (R, error) {
	return ExecuteWithResult(ctx, f.group, func(name string, p assist.Provider) (R, error) {
		ctx, span := observe.StartSpan(ctx, "assist."+op,
			trace.WithAttributes(attribute.String("provider", name)))
		defer span.End()

		start := time.Now()
		res, err := call(ctx, p)
		f.metrics.AssistDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("provider", name), observe.Attr("op", op)))

		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			f.metrics.RecordProviderError(ctx, name, op)
		}
		f.metrics.RecordProviderRequest(ctx, name, op, status)
		return res, err
	})
}
