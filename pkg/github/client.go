// Package github fetches workflow-run telemetry from the GitHub
// Actions REST API and maps it onto the pipeline run model.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devpulse/pipewatch/pkg/pipeline"
)

const (
	defaultBaseURL = "https://api.github.com"
	httpTimeout    = 10 * time.Second

	// maxPerPage is the API's page size ceiling.
	maxPerPage = 100

	// maxRunPages bounds pagination when collecting recent runs so a
	// busy repository cannot turn one poll into hundreds of requests.
	maxRunPages = 5
)

// Client talks to the Actions API of a single repository.
type Client struct {
	log     logrus.FieldLogger
	baseURL string
	token   string
	owner   string
	repo    string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root, such as a
// GitHub Enterprise instance or a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates a client for owner/repo. The token may be empty
// for public repositories, at the cost of a much lower rate limit.
func NewClient(
	log logrus.FieldLogger, owner, repo, token string, opts ...Option,
) *Client {
	c := &Client{
		log:     log.WithField("component", "github"),
		baseURL: defaultBaseURL,
		token:   token,
		owner:   owner,
		repo:    repo,
		http:    &http.Client{Timeout: httpTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ListWorkflowRuns fetches one page of workflow runs, newest first.
func (c *Client) ListWorkflowRuns(
	ctx context.Context, page, perPage int,
) ([]pipeline.Run, error) {
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}

	if page <= 0 {
		page = 1
	}

	q := url.Values{
		"per_page": {strconv.Itoa(perPage)},
		"page":     {strconv.Itoa(page)},
	}

	var resp workflowRunsResponse
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/actions/runs?%s",
		c.owner, c.repo, q.Encode()), &resp); err != nil {
		return nil, fmt.Errorf("listing workflow runs: %w", err)
	}

	runs := make([]pipeline.Run, 0, len(resp.WorkflowRuns))
	for _, wr := range resp.WorkflowRuns {
		runs = append(runs, wr.toRun())
	}

	return runs, nil
}

// RecentRuns collects up to limit runs, newest first, paging through
// the API. Pagination stops at a short page or at the page ceiling,
// whichever comes first.
func (c *Client) RecentRuns(
	ctx context.Context, limit int,
) ([]pipeline.Run, error) {
	if limit <= 0 {
		return nil, nil
	}

	out := make([]pipeline.Run, 0, limit)

	for page := 1; page <= maxRunPages && len(out) < limit; page++ {
		perPage := limit - len(out)
		if perPage > maxPerPage {
			perPage = maxPerPage
		}

		runs, err := c.ListWorkflowRuns(ctx, page, perPage)
		if err != nil {
			return nil, err
		}

		out = append(out, runs...)

		// A short page means the repository has no further history.
		if len(runs) < perPage {
			break
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// LatestRuns fetches the first page of runs capped at n. It is the
// cheap call for live status views.
func (c *Client) LatestRuns(ctx context.Context, n int) ([]pipeline.Run, error) {
	return c.ListWorkflowRuns(ctx, 1, n)
}

// GetWorkflowRun fetches full detail for a single run.
func (c *Client) GetWorkflowRun(
	ctx context.Context, id int64,
) (*RunDetail, error) {
	var wr workflowRun
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/actions/runs/%d",
		c.owner, c.repo, id), &wr); err != nil {
		return nil, fmt.Errorf("fetching workflow run %d: %w", id, err)
	}

	detail := &RunDetail{
		Run:        wr.toRun(),
		WorkflowID: wr.WorkflowID,
		CancelURL:  wr.CancelURL,
		RerunURL:   wr.RerunURL,
	}

	return detail, nil
}

// GetWorkflowRunJobs lists the jobs of one run.
func (c *Client) GetWorkflowRunJobs(
	ctx context.Context, runID int64,
) ([]Job, error) {
	var resp jobsResponse
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/actions/runs/%d/jobs",
		c.owner, c.repo, runID), &resp); err != nil {
		return nil, fmt.Errorf("fetching jobs for run %d: %w", runID, err)
	}

	return resp.Jobs, nil
}

// GetJobLogs downloads the plain-text log of one job. GitHub answers
// the logs endpoint with a redirect to short-lived blob storage, which
// the HTTP client follows transparently.
func (c *Client) GetJobLogs(ctx context.Context, jobID int64) (string, error) {
	req, err := c.newRequest(ctx, fmt.Sprintf("/repos/%s/%s/actions/jobs/%d/logs",
		c.owner, c.repo, jobID))
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching job logs: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("github api returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading job logs: %w", err)
	}

	return string(body), nil
}

func (c *Client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+path, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return req, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, path)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		c.log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"path":   path,
		}).Warn("GitHub API request failed")

		return fmt.Errorf("github api returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
