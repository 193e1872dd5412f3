package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/voiceops/voiceops/internal/telephony"
)

// outboundCallRequest is the JSON request body for placing a call.
type outboundCallRequest struct {
	TrunkID             string `json:"trunk_id"`
	ToNumber            string `json:"to_number"`
	FromNumber          string `json:"from_number"`
	RoomName            string `json:"room_name"`
	ParticipantIdentity string `json:"participant_identity"`
	ParticipantName     string `json:"participant_name"`
}

// handleListCalls returns the caller's call history, newest first. The
// optional limit query parameter is clamped by the service.
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = v
	}

	calls, err := s.calls.List(r.Context(), tenant(r), limit)
	if err != nil {
		writeServiceError(w, "list calls", err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

// handleStartOutboundCall places an outbound call through a scoped trunk.
func (s *Server) handleStartOutboundCall(w http.ResponseWriter, r *http.Request) {
	var req outboundCallRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if msg := validatePhoneNumber("to_number", req.ToNumber); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := validateStringLen("room_name", req.RoomName, maxNameLen); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	call, err := s.calls.StartOutbound(r.Context(), tenant(r), telephony.StartOutboundInput{
		TrunkID:             req.TrunkID,
		ToNumber:            req.ToNumber,
		FromNumber:          req.FromNumber,
		RoomName:            req.RoomName,
		ParticipantIdentity: req.ParticipantIdentity,
		ParticipantName:     req.ParticipantName,
	})
	if err != nil {
		writeServiceError(w, "start outbound call", err)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

// handleGetCall returns a single call by ledger id or gateway call id.
func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	call, err := s.calls.Get(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "get call", err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// handleMarkCallActive transitions a ringing call to active.
func (s *Server) handleMarkCallActive(w http.ResponseWriter, r *http.Request) {
	call, err := s.calls.MarkActive(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "mark call active", err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// handleEndCall terminates a call. Ending an already-ended call returns the
// record unchanged.
func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	call, err := s.calls.End(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "end call", err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}
