package api

import (
	"net/http"
)

const defaultMetricsMinutes = 24 * 60

func (s *server) handlePipelineOverview(
	w http.ResponseWriter, r *http.Request,
) {
	out, err := s.analyzer.PipelineOverview(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to build pipeline overview")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch workflow runs"})

		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *server) handlePipelineStatus(
	w http.ResponseWriter, r *http.Request,
) {
	out, err := s.analyzer.PipelineStatus(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to build pipeline status")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch workflow runs"})

		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *server) handlePipelineMetrics(
	w http.ResponseWriter, r *http.Request,
) {
	minutes, ok := queryInt(w, r, "minutes",
		defaultMetricsMinutes, 1, maxLookbackMinutes)
	if !ok {
		return
	}

	out, err := s.analyzer.PipelineMetrics(r.Context(), minutes)
	if err != nil {
		s.log.WithError(err).Error("Failed to compute pipeline metrics")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch workflow runs"})

		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleRecentBuilds(
	w http.ResponseWriter, r *http.Request,
) {
	limit, ok := queryInt(w, r, "limit", 20, 1, maxBuildListLimit)
	if !ok {
		return
	}

	runs, err := s.analyzer.RecentRuns(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list recent builds")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch workflow runs"})

		return
	}

	if len(runs) > limit {
		runs = runs[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"builds": runs,
		"count":  len(runs),
	})
}
