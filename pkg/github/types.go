package github

import (
	"errors"
	"time"

	"github.com/devpulse/pipewatch/pkg/pipeline"
)

// ErrNotFound reports that the requested resource does not exist.
var ErrNotFound = errors.New("github: not found")

// RunDetail is a single run with the action URLs the list endpoint
// omits.
type RunDetail struct {
	pipeline.Run

	WorkflowID int64  `json:"workflow_id"`
	CancelURL  string `json:"cancel_url"`
	RerunURL   string `json:"rerun_url"`
}

// Job is one job of a workflow run.
type Job struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Conclusion  string     `json:"conclusion"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	URL         string     `json:"html_url"`
}

// Wire shapes of the Actions REST API. Timestamps arrive as RFC 3339
// strings; absent or malformed ones map to nil rather than the zero
// time so downstream statistics can tell "unknown" from 1970.

type workflowRunsResponse struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []workflowRun `json:"workflow_runs"`
}

type workflowRun struct {
	ID           int64      `json:"id"`
	RunNumber    int        `json:"run_number"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	Conclusion   string     `json:"conclusion"`
	Event        string     `json:"event"`
	HeadBranch   string     `json:"head_branch"`
	HeadSHA      string     `json:"head_sha"`
	RunStartedAt string     `json:"run_started_at"`
	UpdatedAt    string     `json:"updated_at"`
	HTMLURL      string     `json:"html_url"`
	WorkflowID   int64      `json:"workflow_id"`
	CancelURL    string     `json:"cancel_url"`
	RerunURL     string     `json:"rerun_url"`
	HeadCommit   headCommit `json:"head_commit"`
}

type headCommit struct {
	Message string       `json:"message"`
	Author  commitAuthor `json:"author"`
}

type commitAuthor struct {
	Name string `json:"name"`
}

type jobsResponse struct {
	TotalCount int   `json:"total_count"`
	Jobs       []Job `json:"jobs"`
}

func (wr *workflowRun) toRun() pipeline.Run {
	return pipeline.Run{
		ID:            wr.ID,
		RunNumber:     wr.RunNumber,
		Name:          wr.Name,
		Status:        pipeline.Status(wr.Status),
		Conclusion:    pipeline.Conclusion(wr.Conclusion),
		Event:         wr.Event,
		HeadBranch:    wr.HeadBranch,
		HeadSHA:       wr.HeadSHA,
		CommitMessage: wr.HeadCommit.Message,
		AuthorName:    wr.HeadCommit.Author.Name,
		URL:           wr.HTMLURL,
		StartedAt:     parseTime(wr.RunStartedAt),
		UpdatedAt:     parseTime(wr.UpdatedAt),
	}
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}

	return &t
}
