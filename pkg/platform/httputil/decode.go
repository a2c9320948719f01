package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "bxhive/pkg/domain-errors"
)

// Validator lets request payloads check themselves after decoding.
type Validator interface {
	Validate() error
}

// Decode parses the JSON request body into T and runs its validation when it
// implements Validator. On failure it writes the error envelope and returns
// ok=false; the handler should return immediately.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed request body"))
		return req, false
	}
	if v, ok := any(req).(Validator); ok {
		if err := v.Validate(); err != nil {
			WriteError(w, err)
			return req, false
		}
	}
	return req, true
}
