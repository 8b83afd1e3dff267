package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/oceanwave/internal/vision"
)

// writeTimeout bounds one websocket write.
const writeTimeout = 10 * time.Second

// visionFailure is returned when a session or device acquisition fails. It
// carries the state so clients can render the message without another call.
type visionFailure struct {
	Error string       `json:"error"`
	Code  string       `json:"code"`
	State vision.State `json:"state"`
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if err := s.vision.Preview(r.Context()); err != nil {
		s.respondVisionError(w, err, s.vision.State())
		return
	}
	respondJSON(w, http.StatusOK, s.vision.State())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	st, err := s.vision.Start(r.Context())
	if err != nil {
		s.respondVisionError(w, err, st)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	st, err := s.vision.Stop(r.Context())
	if err != nil {
		s.respondVisionError(w, err, st)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var req muteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.vision.SetMuted(req.Muted))
}

func (s *Server) handleVisionState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.vision.State())
}

// handleVisionEvents streams every state change as a JSON text message until
// the client goes away.
func (s *Server) handleVisionEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the response.
		s.log.Debug("api: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// The client never sends anything; CloseRead handles control frames and
	// cancels ctx once the peer closes.
	ctx := conn.CloseRead(r.Context())

	states, unsubscribe := s.vision.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			data, err := json.Marshal(st)
			if err != nil {
				s.log.Error("api: encode vision state", "err", err)
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.log.Debug("api: vision events client gone", "err", err)
				return
			}
		}
	}
}

func (s *Server) respondVisionError(w http.ResponseWriter, err error, st vision.State) {
	var se *vision.SessionError
	switch {
	case errors.As(err, &se):
		respondJSON(w, http.StatusBadGateway, visionFailure{Error: st.Message, Code: string(se.Kind), State: st})
	case errors.Is(err, vision.ErrSessionActive):
		respondJSON(w, http.StatusConflict, visionFailure{Error: err.Error(), Code: "session_active", State: st})
	case errors.Is(err, vision.ErrStopped):
		respondJSON(w, http.StatusConflict, visionFailure{Error: err.Error(), Code: "stopped", State: st})
	case errors.Is(err, vision.ErrNotRunning):
		respondError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	case errors.Is(err, context.Canceled):
		// A concurrent Stop abandoned the acquisition.
		respondJSON(w, http.StatusConflict, visionFailure{Error: err.Error(), Code: "stopped", State: st})
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	default:
		// Preview reports device failures as plain errors; the state holds
		// the user-facing message.
		msg := st.Message
		if msg == "" {
			msg = err.Error()
		}
		code := string(st.Error)
		if code == "" {
			code = "internal"
		}
		respondJSON(w, http.StatusBadGateway, visionFailure{Error: msg, Code: code, State: st})
	}
}
