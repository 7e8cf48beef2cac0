package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

const (
	// maxLookbackDays caps the analytics window a query may request.
	maxLookbackDays = 90

	// maxLookbackMinutes caps the pipeline metrics window.
	maxLookbackMinutes = 90 * 24 * 60

	// maxBuildListLimit caps build listings.
	maxBuildListLimit = 100
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleRoot returns the service banner.
func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "pipewatch",
		"docs":    "/api/v1",
	})
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

// queryInt parses an integer query parameter, enforcing bounds. The
// boolean result is false when the request has already been answered
// with a 400.
func queryInt(
	w http.ResponseWriter, r *http.Request, name string, def, min, max int,
) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid " + name + " parameter"})

		return 0, false
	}

	return v, true
}

// lookbackDays parses the shared ?days query parameter.
func (s *server) lookbackDays(
	w http.ResponseWriter, r *http.Request,
) (int, bool) {
	return queryInt(w, r, "days", s.cfg.Analytics.LookbackDays, 1, maxLookbackDays)
}
