// Package httputil centralizes JSON response and domain-error translation so
// every handler emits the same envelope.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "bxhive/pkg/domain-errors"
)

// errorBody is the JSON error envelope. Condition is omitted when the
// failure has no finer-grained domain condition.
type errorBody struct {
	Error     string `json:"error"`
	Condition string `json:"condition,omitempty"`
	Message   string `json:"message,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{
		Error:     string(code),
		Condition: string(dErrors.ConditionOf(err)),
	}
	if code != dErrors.CodeInternal {
		// Internal messages may leak infrastructure detail; everything else
		// is caller-facing by construction.
		body.Message = err.Error()
	}
	WriteJSON(w, StatusOf(code), body)
}

// StatusOf maps domain error codes to HTTP statuses.
func StatusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeInvalidInput, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeInvalidState:
		return http.StatusConflict
	case dErrors.CodeResourceExhausted:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
