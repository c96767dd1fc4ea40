package api

import (
	"encoding/json"
	"net/http"
)

// result is the JSON envelope used by the form and translate endpoints.
type result struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

const maxJSONBody = 64 << 10

// decodeJSON reads at most maxJSONBody bytes. Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondFailure(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, result{Success: false, Error: message})
}
