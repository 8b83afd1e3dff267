package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// apiRouter mirrors the shape of the daemon's router: a chi mux with the
// middleware installed and a few parameterised routes.
func apiRouter(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := useTracer(t)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	r := chi.NewRouter()
	r.Use(Middleware(m))
	r.Route("/api/v1/board", func(r chi.Router) {
		r.Post("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "id") == "missing" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
	})
	r.Get("/api/v1/vision/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Trace", CorrelationID(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
	return r, reader, exp
}

// durationPaths returns the path attribute of every request-duration series.
func durationPaths(t *testing.T, reader *sdkmetric.ManualReader) map[string]uint64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "oceanwave.http.request.duration")
	if met == nil {
		t.Fatal("request duration metric not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data is %T, want histogram", met.Data)
	}
	paths := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		if v, ok := dp.Attributes.Value("path"); ok {
			paths[v.AsString()] += dp.Count
		}
	}
	return paths
}

func TestMiddleware_TileRoutesShareOneSeries(t *testing.T) {
	h, reader, _ := apiRouter(t)

	for _, id := range []string{"eat-apple", "go-park", "feel-happy"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/board/items/"+id, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("select %s = %d", id, rec.Code)
		}
	}

	paths := durationPaths(t, reader)
	if len(paths) != 1 || paths["/api/v1/board/items/{id}"] != 3 {
		t.Errorf("duration series = %v, want 3 requests on the route pattern", paths)
	}
}

func TestMiddleware_SpanNamedAfterRoute(t *testing.T) {
	h, _, exp := apiRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/board/items/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "POST /api/v1/board/items/{id}" {
		t.Errorf("span name = %q", s.Name)
	}
	attrs := make(map[string]string)
	for _, kv := range s.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["http.route"] != "/api/v1/board/items/{id}" {
		t.Errorf("http.route = %q", attrs["http.route"])
	}
	if attrs["url.path"] != "/api/v1/board/items/missing" {
		t.Errorf("url.path = %q", attrs["url.path"])
	}
	if attrs["http.response.status_code"] != "404" {
		t.Errorf("status attribute = %q, want 404", attrs["http.response.status_code"])
	}
}

func TestMiddleware_CorrelationHeader(t *testing.T) {
	h, _, _ := apiRouter(t)

	t.Run("new trace", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/vision/state", nil))
		cid := rec.Header().Get("X-Correlation-ID")
		if len(cid) != 32 {
			t.Fatalf("X-Correlation-ID = %q, want a 32-char trace id", cid)
		}
		if seen := rec.Header().Get("X-Seen-Trace"); seen != cid {
			t.Errorf("handler saw trace %q, header says %q", seen, cid)
		}
	})

	t.Run("continues client trace", func(t *testing.T) {
		const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
		req := httptest.NewRequest(http.MethodGet, "/api/v1/vision/state", nil)
		req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
			t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
		}
		if tp := rec.Header().Get("traceparent"); !strings.Contains(tp, traceID) {
			t.Errorf("traceparent = %q, want it to carry %s", tp, traceID)
		}
	})
}

func TestMiddleware_UnroutedPathFallsBack(t *testing.T) {
	h, reader, _ := apiRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if paths := durationPaths(t, reader); paths["/favicon.ico"] != 1 {
		t.Errorf("duration series = %v, want the raw path for unrouted requests", paths)
	}
}

func TestStatusRecorder_HijackUnsupported(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	if _, _, err := rec.Hijack(); err == nil {
		t.Error("expected error when the wrapped writer cannot hijack")
	}
	if rec.Unwrap() == nil {
		t.Error("Unwrap returned nil")
	}
}
