package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/voiceops/voiceops/internal/siptest"
	"github.com/voiceops/voiceops/internal/telephony"
)

// trunkRequest is the JSON request body for creating a trunk. A non-empty
// outbound_address makes the trunk outbound.
type trunkRequest struct {
	Name                string            `json:"name"`
	Numbers             []string          `json:"numbers"`
	InboundAddresses    []string          `json:"inbound_addresses"`
	OutboundAddress     string            `json:"outbound_address"`
	Transport           string            `json:"transport"`
	Username            string            `json:"username"`
	Password            string            `json:"password"`
	DestinationCountry  string            `json:"destination_country"`
	Headers             map[string]string `json:"headers"`
	HeadersToAttributes map[string]string `json:"headers_to_attributes"`
	Metadata            string            `json:"metadata"`
}

// trunkUpdateRequest is the JSON request body for a partial trunk update.
// Absent fields are left untouched.
type trunkUpdateRequest struct {
	Name               *string   `json:"name"`
	Numbers            *[]string `json:"numbers"`
	InboundAddresses   *[]string `json:"inbound_addresses"`
	Username           *string   `json:"username"`
	Password           *string   `json:"password"`
	DestinationCountry *string   `json:"destination_country"`
	Metadata           *string   `json:"metadata"`
}

// validateTrunkRequest checks field shapes before anything reaches the
// gateway. Returns an error message, or empty string if OK.
func validateTrunkRequest(req trunkRequest) string {
	if msg := validateStringLen("name", req.Name, maxNameLen); msg != "" {
		return msg
	}
	if msg := validateHost("outbound_address", req.OutboundAddress); msg != "" {
		return msg
	}
	if msg := validateIPList("inbound_addresses", req.InboundAddresses); msg != "" {
		return msg
	}
	for _, n := range req.Numbers {
		if msg := validatePhoneNumber("numbers", n); msg != "" {
			return msg
		}
	}
	if msg := validateStringLen("username", req.Username, maxShortStringLen); msg != "" {
		return msg
	}
	if msg := validateStringLen("password", req.Password, maxPasswordLen); msg != "" {
		return msg
	}
	if msg := validateNoControlChars("metadata", req.Metadata); msg != "" {
		return msg
	}
	return ""
}

// handleListTrunks returns every trunk in the caller's scope.
func (s *Server) handleListTrunks(w http.ResponseWriter, r *http.Request) {
	trunks, err := s.trunks.List(r.Context(), tenant(r))
	if err != nil {
		writeServiceError(w, "list trunks", err)
		return
	}
	writeJSON(w, http.StatusOK, trunks)
}

// handleCreateTrunk creates a new trunk.
func (s *Server) handleCreateTrunk(w http.ResponseWriter, r *http.Request) {
	var req trunkRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateTrunkRequest(req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	trunk, err := s.trunks.Create(r.Context(), tenant(r), telephony.CreateTrunkInput{
		Name:                req.Name,
		Numbers:             req.Numbers,
		InboundAddresses:    req.InboundAddresses,
		OutboundAddress:     req.OutboundAddress,
		Transport:           req.Transport,
		Username:            req.Username,
		Password:            req.Password,
		DestinationCountry:  req.DestinationCountry,
		Headers:             req.Headers,
		HeadersToAttributes: req.HeadersToAttributes,
		ClientMetadata:      req.Metadata,
	})
	if err != nil {
		writeServiceError(w, "create trunk", err)
		return
	}
	writeJSON(w, http.StatusCreated, trunk)
}

// handleGetTrunk returns a single trunk.
func (s *Server) handleGetTrunk(w http.ResponseWriter, r *http.Request) {
	trunk, err := s.trunks.Get(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "get trunk", err)
		return
	}
	writeJSON(w, http.StatusOK, trunk)
}

// handleUpdateTrunk applies a partial update to a trunk.
func (s *Server) handleUpdateTrunk(w http.ResponseWriter, r *http.Request) {
	var req trunkUpdateRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Name != nil {
		if msg := validateStringLen("name", *req.Name, maxNameLen); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
	}
	if req.InboundAddresses != nil {
		if msg := validateIPList("inbound_addresses", *req.InboundAddresses); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
	}
	if req.Numbers != nil {
		for _, n := range *req.Numbers {
			if msg := validatePhoneNumber("numbers", n); msg != "" {
				writeError(w, http.StatusBadRequest, msg)
				return
			}
		}
	}

	trunk, err := s.trunks.Update(r.Context(), tenant(r), chi.URLParam(r, "id"), telephony.UpdateTrunkInput{
		Name:               req.Name,
		Numbers:            req.Numbers,
		InboundAddresses:   req.InboundAddresses,
		Username:           req.Username,
		Password:           req.Password,
		DestinationCountry: req.DestinationCountry,
		ClientMetadata:     req.Metadata,
	})
	if err != nil {
		writeServiceError(w, "update trunk", err)
		return
	}
	writeJSON(w, http.StatusOK, trunk)
}

// handleDeleteTrunk removes a trunk.
func (s *Server) handleDeleteTrunk(w http.ResponseWriter, r *http.Request) {
	if err := s.trunks.Delete(r.Context(), tenant(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "delete trunk", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// probeRequest optionally supplies credentials for the OPTIONS ping. The
// stored trunk password is never read back out of the gateway, so a caller
// probing an auth-challenging endpoint passes credentials explicitly.
type probeRequest struct {
	Transport string `json:"transport"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// handleProbeTrunk sends a SIP OPTIONS ping to an outbound trunk's address
// and reports reachability. Inbound trunks have no address to probe.
func (s *Server) handleProbeTrunk(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		writeError(w, http.StatusServiceUnavailable, "probing is not available")
		return
	}

	var req probeRequest
	if r.ContentLength > 0 {
		if errMsg := readJSON(r, &req); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
	}

	trunk, err := s.trunks.Get(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "probe trunk", err)
		return
	}
	if trunk.OutboundAddress == "" {
		writeError(w, http.StatusBadRequest, "only outbound trunks can be probed")
		return
	}

	username := req.Username
	if username == "" {
		username = trunk.AuthUsername
	}
	result, err := s.prober.Probe(r.Context(), siptest.Target{
		Address:   trunk.OutboundAddress,
		Transport: req.Transport,
		Username:  username,
		Password:  req.Password,
	})
	if err != nil {
		writeServiceError(w, "probe trunk", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
