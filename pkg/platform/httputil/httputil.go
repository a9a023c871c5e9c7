// Package httputil centralizes JSON envelopes and domain-error translation so
// every handler responds identically.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "fete/pkg/domain-errors"
)

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError translates a domain error into the shared error envelope.
// Internal errors omit the description so store failures never leak details.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.HTTPStatus(code)

	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		if msg := dErrors.Message(err); msg != "" {
			body["error_description"] = msg
		}
	}
	WriteJSON(w, status, body)
}
