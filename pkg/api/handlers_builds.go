package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/devpulse/pipewatch/pkg/github"
)

func pathID(
	w http.ResponseWriter, r *http.Request, name string,
) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid " + name + " parameter"})

		return 0, false
	}

	return id, true
}

func (s *server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 20, 1, maxBuildListLimit)
	if !ok {
		return
	}

	q := r.URL.Query()
	branch := q.Get("branch")
	status := q.Get("status")
	conclusion := q.Get("conclusion")

	runs, err := s.analyzer.RecentRuns(r.Context(), maxBuildListLimit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list builds")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch workflow runs"})

		return
	}

	if branch != "" || status != "" || conclusion != "" {
		filtered := runs[:0]

		for _, run := range runs {
			if branch != "" && run.HeadBranch != branch {
				continue
			}

			if status != "" && string(run.Status) != status {
				continue
			}

			if conclusion != "" && string(run.Conclusion) != conclusion {
				continue
			}

			filtered = append(filtered, run)
		}

		runs = filtered
	}

	if len(runs) > limit {
		runs = runs[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"builds": runs,
		"count":  len(runs),
	})
}

func (s *server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	detail, err := s.builds.GetWorkflowRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"build not found"})

			return
		}

		s.log.WithError(err).WithField("build", id).
			Error("Failed to fetch build")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch build"})

		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (s *server) handleGetBuildJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	jobs, err := s.builds.GetWorkflowRunJobs(r.Context(), id)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"build not found"})

			return
		}

		s.log.WithError(err).WithField("build", id).
			Error("Failed to fetch build jobs")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch build jobs"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleGetBuildLogs concatenates the logs of every job in the run,
// each section prefixed with the job name.
func (s *server) handleGetBuildLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	jobs, err := s.builds.GetWorkflowRunJobs(r.Context(), id)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"build not found"})

			return
		}

		s.log.WithError(err).WithField("build", id).
			Error("Failed to fetch build jobs")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch build logs"})

		return
	}

	var buf strings.Builder

	for _, job := range jobs {
		logs, err := s.builds.GetJobLogs(r.Context(), job.ID)
		if err != nil {
			s.log.WithError(err).WithField("job", job.ID).
				Warn("Failed to fetch job logs")

			continue
		}

		fmt.Fprintf(&buf, "=== %s ===\n%s\n", job.Name, logs)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"build_id": id,
		"logs":     buf.String(),
	})
}

func (s *server) handleGetJobLogs(w http.ResponseWriter, r *http.Request) {
	if _, ok := pathID(w, r, "id"); !ok {
		return
	}

	jobID, ok := pathID(w, r, "jobID")
	if !ok {
		return
	}

	logs, err := s.builds.GetJobLogs(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"job not found"})

			return
		}

		s.log.WithError(err).WithField("job", jobID).
			Error("Failed to fetch job logs")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"failed to fetch job logs"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"logs":   logs,
	})
}
