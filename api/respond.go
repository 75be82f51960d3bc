package api

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in the ErrorResponse envelope.
const (
	errCodeInvalidRequest        = "invalid_request"
	errCodeInvalidUserID         = "invalid_user_id"
	errCodeInvalidMessage        = "invalid_message"
	errCodeInvalidSessionID      = "invalid_session_id"
	errCodeUnauthorized          = "unauthorized"
	errCodeNotFound              = "not_found"
	errCodeGenerationUnavailable = "generation_unavailable"
	errCodeInternal              = "internal_error"
)

var internalSuggestions = []string{
	"Try again in a few moments",
	"Check if all required services are running",
	"Contact support if the problem persists",
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, suggestions ...string) {
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, status, ErrorResponse{
		ErrorCode:   code,
		Message:     message,
		Suggestions: suggestions,
	})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
