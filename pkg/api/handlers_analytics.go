package api

import (
	"net/http"

	"github.com/devpulse/pipewatch/pkg/pipeline"
)

func (s *server) handleAnalyticsOverview(
	w http.ResponseWriter, r *http.Request,
) {
	days, ok := s.lookbackDays(w, r)
	if !ok {
		return
	}

	out, err := s.analyzer.Overview(r.Context(), days)
	if err != nil {
		s.log.WithError(err).Error("Failed to compute overview")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch workflow runs"})

		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleAnalyticsTrends(
	w http.ResponseWriter, r *http.Request,
) {
	days, ok := s.lookbackDays(w, r)
	if !ok {
		return
	}

	g := pipeline.Daily

	if raw := r.URL.Query().Get("granularity"); raw != "" {
		var err error

		g, err = pipeline.ParseGranularity(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"invalid granularity parameter"})

			return
		}
	}

	out, err := s.analyzer.Trends(r.Context(), days, g)
	if err != nil {
		s.log.WithError(err).Error("Failed to compute trends")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch workflow runs"})

		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleAnalyticsMTTR(
	w http.ResponseWriter, r *http.Request,
) {
	days, ok := s.lookbackDays(w, r)
	if !ok {
		return
	}

	out, err := s.analyzer.MTTR(r.Context(), days)
	if err != nil {
		s.log.WithError(err).Error("Failed to compute mttr")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch workflow runs"})

		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleAnalyticsPerformance(
	w http.ResponseWriter, r *http.Request,
) {
	days, ok := s.lookbackDays(w, r)
	if !ok {
		return
	}

	out, err := s.analyzer.Performance(r.Context(), days)
	if err != nil {
		s.log.WithError(err).Error("Failed to compute performance")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch workflow runs"})

		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleAnalyticsFailures(
	w http.ResponseWriter, r *http.Request,
) {
	days, ok := s.lookbackDays(w, r)
	if !ok {
		return
	}

	out, err := s.analyzer.Failures(r.Context(), days)
	if err != nil {
		s.log.WithError(err).Error("Failed to compute failures")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch workflow runs"})

		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleWorkflowComparison(
	w http.ResponseWriter, r *http.Request,
) {
	days, ok := s.lookbackDays(w, r)
	if !ok {
		return
	}

	out, err := s.analyzer.CompareWorkflows(r.Context(), days)
	if err != nil {
		s.log.WithError(err).Error("Failed to compare workflows")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch workflow runs"})

		return
	}

	writeJSON(w, http.StatusOK, out)
}
