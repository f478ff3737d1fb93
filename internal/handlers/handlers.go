package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/engagemarket/backend/internal/middleware"
	"github.com/engagemarket/backend/internal/services"
)

const maxBodyBytes = 1_048_576

// decodeJSON reads exactly one JSON object into dst and validates it. It
// writes the error response itself and reports whether the handler may go on.
func decodeJSON(w http.ResponseWriter, r *http.Request, vh *services.ValidationHelper, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := vh.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	})
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return userID, true
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
