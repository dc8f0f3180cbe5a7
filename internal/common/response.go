package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the payload under the "error" key of every failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v as the response body. Money amounts and customer names are
// written without HTML escaping.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// Data writes v under the "data" key.
func Data(w http.ResponseWriter, status int, v any) {
	JSON(w, status, map[string]any{"data": v})
}

// DataWith writes v under the "data" key next to the extra top-level keys.
func DataWith(w http.ResponseWriter, status int, v any, extra map[string]any) {
	body := make(map[string]any, len(extra)+1)
	for k, val := range extra {
		body[k] = val
	}
	body["data"] = v
	JSON(w, status, body)
}

// JSONError writes {"error": {code, message, details}}.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{
		"error": ErrorBody{Code: code, Message: message, Details: details},
	})
}
