package middleware

import (
	"encoding/json"
	"net/http"
)

// WriteEnvelope writes the service's {code, msg, data} body with status.
func WriteEnvelope(w http.ResponseWriter, status, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg, "data": data})
}
