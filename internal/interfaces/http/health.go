package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"balance/internal/domain/institution"
)

// HandleHealth returns a simple health check response.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// sourceFromPath parses the {source} path value, writing a 404 for unknown exchanges.
func sourceFromPath(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (institution.Source, bool) {
	source, err := institution.ParseSource(r.PathValue("source"))
	if err != nil {
		logger.Debug("unknown exchange requested", zap.String("source", r.PathValue("source")))
		writeError(w, http.StatusNotFound, "Unknown exchange")
		return "", false
	}
	return source, true
}
