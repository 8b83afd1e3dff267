// Package api exposes the vision session and the communication board over
// HTTP. Requests and responses are JSON; vision state changes are pushed to
// clients over a websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/oceanwave/internal/board"
	"github.com/MrWong99/oceanwave/internal/health"
	"github.com/MrWong99/oceanwave/internal/observe"
	"github.com/MrWong99/oceanwave/internal/vision"
	"github.com/MrWong99/oceanwave/pkg/provider/assist"
)

// maxImageBytes bounds uploaded JPEG snapshots.
const maxImageBytes = 8 << 20

// Vision is the part of [vision.Controller] the API drives.
type Vision interface {
	Preview(ctx context.Context) error
	Start(ctx context.Context) (vision.State, error)
	Stop(ctx context.Context) (vision.State, error)
	SetMuted(muted bool) vision.State
	State() vision.State
	Subscribe() (<-chan vision.State, func())
}

// Board is the part of [board.Board] the API drives.
type Board interface {
	State() board.State
	Select(id string) (board.State, error)
	Back() board.State
	Home() board.State
	Clear() board.State
	SetText(text string) board.State
	SetTone(t assist.Tone) (board.State, error)
	SetKeyboard(on bool) board.State
	UsePrediction(i int) (board.State, error)
	AppendEmojis(emojis []string) board.State
	Refine(ctx context.Context) board.State
	ContextEmojis(ctx context.Context, jpeg []byte) []string
	Symbols(query string, limit int) []board.Match
	Speak(ctx context.Context) board.State
	StopSpeech() board.State
}

var (
	_ Vision = (*vision.Controller)(nil)
	_ Board  = (*board.Board)(nil)
)

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics sets the metric instruments used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// Server routes HTTP requests to the vision controller and the board.
type Server struct {
	vision         Vision
	board          Board
	log            *slog.Logger
	metrics        *observe.Metrics
	health         *health.Handler
	metricsHandler http.Handler
}

// New creates a server. Both v and b are required.
func New(v Vision, b Board, opts ...Option) (*Server, error) {
	if v == nil {
		return nil, errors.New("api: vision must not be nil")
	}
	if b == nil {
		return nil, errors.New("api: board must not be nil")
	}
	s := &Server{vision: v, board: b, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Router returns the HTTP handler for all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(observe.Middleware(s.metrics))

	if s.health != nil {
		s.health.Register(r)
	}
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Route("/api/v1/vision", func(r chi.Router) {
		r.Post("/preview", s.handlePreview)
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Put("/mute", s.handleMute)
		r.Get("/state", s.handleVisionState)
		r.Get("/events", s.handleVisionEvents)
	})

	r.Route("/api/v1/board", func(r chi.Router) {
		r.Get("/", s.handleBoardState)
		r.Post("/items/{id}", s.handleSelect)
		r.Post("/back", s.handleBack)
		r.Post("/home", s.handleHome)
		r.Post("/clear", s.handleClear)
		r.Put("/text", s.handleText)
		r.Put("/tone", s.handleTone)
		r.Put("/keyboard", s.handleKeyboard)
		r.Post("/predictions/{index}", s.handleUsePrediction)
		r.Post("/refine", s.handleRefine)
		r.Post("/speak", s.handleSpeak)
		r.Post("/speak/stop", s.handleStopSpeech)
		r.Post("/context", s.handleContext)
		r.Post("/emojis", s.handleEmojis)
		r.Get("/symbols", s.handleSymbols)
	})

	return r
}

// ── Helpers ───────────────────────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// requestTimeout bounds calls that wait on a model.
const requestTimeout = 30 * time.Second

func withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}
