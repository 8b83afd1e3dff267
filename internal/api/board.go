package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/oceanwave/internal/board"
	"github.com/MrWong99/oceanwave/pkg/provider/assist"
)

type textRequest struct {
	Text string `json:"text"`
}

type toneRequest struct {
	Tone string `json:"tone"`
}

type keyboardRequest struct {
	Enabled bool `json:"enabled"`
}

type emojisRequest struct {
	Emojis []string `json:"emojis"`
}

type emojisResponse struct {
	Emojis []string `json:"emojis"`
}

type symbolsResponse struct {
	Matches []board.Match `json:"matches"`
}

func (s *Server) handleBoardState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.board.State())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	st, err := s.board.Select(id)
	if errors.Is(err, board.ErrUnknownItem) {
		respondError(w, http.StatusNotFound, "unknown_item", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleBack(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.board.Back())
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.board.Home())
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.board.Clear())
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.board.SetText(req.Text))
}

func (s *Server) handleTone(w http.ResponseWriter, r *http.Request) {
	var req toneRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	tone, err := assist.ParseTone(req.Tone)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_tone", err.Error())
		return
	}
	st, err := s.board.SetTone(tone)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_tone", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleKeyboard(w http.ResponseWriter, r *http.Request) {
	var req keyboardRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.board.SetKeyboard(req.Enabled))
}

func (s *Server) handleUsePrediction(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_index", "prediction index must be an integer")
		return
	}
	st, err := s.board.UsePrediction(i)
	if errors.Is(err, board.ErrNoPrediction) {
		respondError(w, http.StatusNotFound, "no_prediction", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	respondJSON(w, http.StatusOK, s.board.Refine(ctx))
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	respondJSON(w, http.StatusOK, s.board.Speak(ctx))
}

func (s *Server) handleStopSpeech(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.board.StopSpeech())
}

// handleContext takes a raw JPEG body and answers with suggested emojis.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/jpeg") {
		respondError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "body must be image/jpeg")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(body) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "empty image")
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	respondJSON(w, http.StatusOK, emojisResponse{Emojis: s.board.ContextEmojis(ctx, body)})
}

func (s *Server) handleEmojis(w http.ResponseWriter, r *http.Request) {
	var req emojisRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.board.AppendEmojis(req.Emojis))
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	matches := s.board.Symbols(q.Get("q"), limit)
	if matches == nil {
		matches = []board.Match{}
	}
	respondJSON(w, http.StatusOK, symbolsResponse{Matches: matches})
}
