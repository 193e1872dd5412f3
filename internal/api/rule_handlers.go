package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/voiceops/voiceops/internal/telephony"
)

// ruleRequest is the JSON request body for creating a dispatch rule.
type ruleRequest struct {
	Name            string   `json:"name"`
	RuleType        string   `json:"rule_type"`
	TrunkIDs        []string `json:"trunk_ids"`
	RoomName        string   `json:"room_name"`
	RoomPrefix      string   `json:"room_prefix"`
	Pin             string   `json:"pin"`
	Randomize       bool     `json:"randomize"`
	HidePhoneNumber bool     `json:"hide_phone_number"`
	AgentID         string   `json:"agent_id"`
	Metadata        string   `json:"metadata"`
}

// ruleUpdateRequest is the JSON request body for a partial rule update.
type ruleUpdateRequest struct {
	Name       *string   `json:"name"`
	RuleType   *string   `json:"rule_type"`
	TrunkIDs   *[]string `json:"trunk_ids"`
	RoomName   *string   `json:"room_name"`
	RoomPrefix *string   `json:"room_prefix"`
	Pin        *string   `json:"pin"`
	Randomize  *bool     `json:"randomize"`
	AgentID    *string   `json:"agent_id"`
	Metadata   *string   `json:"metadata"`
}

func validateRuleRequest(req ruleRequest) string {
	if msg := validateStringLen("name", req.Name, maxNameLen); msg != "" {
		return msg
	}
	if msg := validateStringLen("room_name", req.RoomName, maxNameLen); msg != "" {
		return msg
	}
	if msg := validateStringLen("room_prefix", req.RoomPrefix, maxShortStringLen); msg != "" {
		return msg
	}
	if msg := validatePIN("pin", req.Pin); msg != "" {
		return msg
	}
	if msg := validateNoControlChars("metadata", req.Metadata); msg != "" {
		return msg
	}
	return ""
}

// handleListRules returns the caller's dispatch rules.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.List(r.Context(), tenant(r))
	if err != nil {
		writeServiceError(w, "list rules", err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// handleCreateRule creates a new dispatch rule.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRuleRequest(req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	rule, err := s.rules.Create(r.Context(), tenant(r), telephony.CreateRuleInput{
		Name:            req.Name,
		RuleType:        req.RuleType,
		TrunkIDs:        req.TrunkIDs,
		RoomName:        req.RoomName,
		RoomPrefix:      req.RoomPrefix,
		Pin:             req.Pin,
		Randomize:       req.Randomize,
		HidePhoneNumber: req.HidePhoneNumber,
		AgentID:         req.AgentID,
		ClientMetadata:  req.Metadata,
	})
	if err != nil {
		writeServiceError(w, "create rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// handleGetRule returns a single dispatch rule.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.Get(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "get rule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleUpdateRule applies a partial update to a dispatch rule.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleUpdateRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Pin != nil {
		if msg := validatePIN("pin", *req.Pin); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
	}
	if req.Name != nil {
		if msg := validateStringLen("name", *req.Name, maxNameLen); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
	}

	rule, err := s.rules.Update(r.Context(), tenant(r), chi.URLParam(r, "id"), telephony.UpdateRuleInput{
		Name:           req.Name,
		RuleType:       req.RuleType,
		TrunkIDs:       req.TrunkIDs,
		RoomName:       req.RoomName,
		RoomPrefix:     req.RoomPrefix,
		Pin:            req.Pin,
		Randomize:      req.Randomize,
		AgentID:        req.AgentID,
		ClientMetadata: req.Metadata,
	})
	if err != nil {
		writeServiceError(w, "update rule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleDeleteRule removes a dispatch rule.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.Delete(r.Context(), tenant(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "delete rule", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
