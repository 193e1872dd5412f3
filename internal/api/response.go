package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voiceops/voiceops/internal/gateway"
	"github.com/voiceops/voiceops/internal/telephony"
)

// maxBodyBytes caps request bodies at 1 MB.
const maxBodyBytes = 1 << 20

// envelope is the standard API response wrapper.
// All JSON responses use this format: { "data": ..., "error": ... }
type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code and data payload.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: msg}); err != nil {
		slog.Error("failed to encode json error response", "error", err)
	}
}

// readJSON decodes a JSON request body into dst. Returns an error message
// suitable for a 400 response, or empty string on success.
func readJSON(r *http.Request, dst any) string {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return "request body must not be empty"
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return "malformed json"
		case errors.As(err, &typeErr):
			if typeErr.Field != "" {
				return fmt.Sprintf("invalid value for field %q", typeErr.Field)
			}
			return "invalid value in request body"
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return "unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ")
		case errors.As(err, &maxBytesErr):
			return "request body too large"
		default:
			return "invalid request body"
		}
	}
	// A second decode must hit EOF; anything else means trailing content.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return "request body must contain a single json object"
	}
	return ""
}

// partialRulePayload is the distinct body returned when a callee rule was
// created halfway: the rule exists at the gateway in individual form.
type partialRulePayload struct {
	RuleID string                  `json:"rule_id"`
	Rule   *telephony.DispatchRule `json:"rule,omitempty"`
	Cause  string                  `json:"cause"`
}

// writeServiceError maps the telephony error taxonomy to HTTP statuses:
// validation errors are 400, scope misses 404, a half-applied callee rule
// gets a 502 with the created rule id, and any other gateway failure is a
// plain 502. Everything unrecognized is a 500.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	var verr *telephony.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Msg)
		return
	}
	if errors.Is(err, telephony.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var pf *telephony.PartialFailure
	if errors.As(err, &pf) {
		slog.Error(op+": partial failure", "rule_id", pf.RuleID, "error", pf.Err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		payload := envelope{
			Data: partialRulePayload{
				RuleID: pf.RuleID,
				Rule:   pf.Rule,
				Cause:  pf.Err.Error(),
			},
			Error: "rule partially created",
		}
		if encErr := json.NewEncoder(w).Encode(payload); encErr != nil {
			slog.Error("failed to encode partial failure response", "error", encErr)
		}
		return
	}
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		slog.Error(op+": gateway error", "status", apiErr.Status, "error", apiErr)
		writeError(w, http.StatusBadGateway, "upstream gateway error")
		return
	}
	slog.Error(op+": failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
