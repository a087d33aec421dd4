package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/astro5star/callshell/internal/call"
)

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePush is the push ingress: the transport-agnostic entry point the
// platform push receiver forwards data payloads to.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var data map[string]string
	if errMsg := readJSON(r, &data); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if err := s.ingress.Handle(r.Context(), data); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// handleBridgeToken mints a connection token for the page host. The
// listener binds loopback, so only local processes can reach this.
func (s *Server) handleBridgeToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.auth.Mint()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not mint token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleCallState reports where a call is in its lifecycle.
func (s *Server) handleCallState(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	writeJSON(w, http.StatusOK, map[string]string{
		"callId": callID,
		"state":  string(s.manager.State(callID)),
	})
}

// handlePrompt opens (or re-opens) the full-screen call surface for a
// ringing call and returns what it should display.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	inv, ok := s.manager.Invite(callID)
	if !ok {
		writeError(w, http.StatusNotFound, "no such call")
		return
	}
	p := s.prompts.Open(r.Context(), inv)
	writeJSON(w, http.StatusOK, map[string]any{
		"callId":     callID,
		"title":      p.Title(),
		"callerName": p.CallerName(),
		"avatar":     p.Avatar(),
		"decided":    p.Decided(),
	})
}

// handleAccept is the callback behind the notification's Accept button and
// the full-screen prompt.
func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if s.manager.State(callID) != call.StateRinging {
		writeError(w, http.StatusConflict, "call is not ringing")
		return
	}
	if p, ok := s.prompts.Get(callID); ok {
		p.Accept(r.Context())
	} else {
		s.manager.Accept(r.Context(), callID)
	}
	s.prompts.Close(callID)
	writeJSON(w, http.StatusOK, map[string]string{"callId": callID, "state": string(s.manager.State(callID))})
}

// handleReject is the callback behind the Reject button.
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if s.manager.State(callID) != call.StateRinging {
		writeError(w, http.StatusConflict, "call is not ringing")
		return
	}
	if p, ok := s.prompts.Get(callID); ok {
		p.Reject(r.Context())
	} else {
		s.manager.Reject(r.Context(), callID)
	}
	s.prompts.Close(callID)
	writeJSON(w, http.StatusOK, map[string]string{"callId": callID, "state": string(s.manager.State(callID))})
}

// handleRecentCalls lists the call log, newest first.
func (s *Server) handleRecentCalls(w http.ResponseWriter, r *http.Request) {
	if s.callLog == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	records, err := s.callLog.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read call log")
		return
	}
	writeJSON(w, http.StatusOK, records)
}
