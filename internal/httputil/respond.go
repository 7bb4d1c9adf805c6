// Package httputil renders the uniform response envelope at the HTTP
// boundary: {"success": true, "data": ...} or {"success": false,
// "error": "..."}. The core returns typed results and sentinel errors;
// this is the only place they become wire shapes.
package httputil

import (
	"encoding/json"
	"net/http"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Success writes a success envelope around data.
func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, envelope{Success: true, Data: data})
}

// Error writes an error envelope. Credential-related messages passed here
// must already be generic; only field-level validation detail is safe to
// be specific.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, envelope{Success: false, Error: message})
}
