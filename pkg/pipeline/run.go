package pipeline

import (
	"strings"
	"time"
)

// Status is the execution state of a workflow run.
type Status string

// Workflow run statuses as reported by the upstream API.
const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Conclusion is the terminal outcome of a completed run. It is empty
// for runs that have not completed yet.
type Conclusion string

// Workflow run conclusions.
const (
	ConclusionSuccess   Conclusion = "success"
	ConclusionFailure   Conclusion = "failure"
	ConclusionTimedOut  Conclusion = "timed_out"
	ConclusionCancelled Conclusion = "cancelled"
)

// Run is the normalized representation of one workflow execution.
// Timestamps are pointers because the upstream API is allowed to omit
// them; a nil timestamp is "unknown", never zero. Runs are immutable
// once constructed. Derived stages filter and group but never mutate.
type Run struct {
	ID            int64      `json:"id"`
	RunNumber     int        `json:"run_number"`
	Name          string     `json:"name"`
	Status        Status     `json:"status"`
	Conclusion    Conclusion `json:"conclusion,omitempty"`
	Event         string     `json:"event,omitempty"`
	HeadBranch    string     `json:"head_branch"`
	HeadSHA       string     `json:"head_sha"`
	CommitMessage string     `json:"commit_message"`
	AuthorName    string     `json:"author_name"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	URL           string     `json:"url"`
}

// Completed reports whether the run has reached a terminal state.
func (r *Run) Completed() bool {
	return r.Status == StatusCompleted
}

// Succeeded reports whether the run completed successfully.
func (r *Run) Succeeded() bool {
	return r.Status == StatusCompleted && r.Conclusion == ConclusionSuccess
}

// Failed reports whether the run counts as a failure. Timed-out runs
// always count; cancelled runs count only when cancelledAsFailure is
// set.
func (r *Run) Failed(cancelledAsFailure bool) bool {
	if r.Status != StatusCompleted {
		return false
	}

	switch r.Conclusion {
	case ConclusionFailure, ConclusionTimedOut:
		return true
	case ConclusionCancelled:
		return cancelledAsFailure
	default:
		return false
	}
}

// Duration returns the wall-clock time between start and last update.
// The second return value is false when either timestamp is missing or
// the difference is non-positive; such runs carry no usable duration
// and must be excluded from duration statistics rather than counted as
// zero.
func (r *Run) Duration() (time.Duration, bool) {
	if r.StartedAt == nil || r.UpdatedAt == nil {
		return 0, false
	}

	d := r.UpdatedAt.Sub(*r.StartedAt)
	if d <= 0 {
		return 0, false
	}

	return d, true
}

// ShortSHA returns the abbreviated commit identifier.
func (r *Run) ShortSHA() string {
	if len(r.HeadSHA) > 7 {
		return r.HeadSHA[:7]
	}

	return r.HeadSHA
}

// Subject returns the first line of the commit message.
func (r *Run) Subject() string {
	if idx := strings.IndexByte(r.CommitMessage, '\n'); idx >= 0 {
		return r.CommitMessage[:idx]
	}

	return r.CommitMessage
}

// Author returns the commit author name, or a placeholder when the
// upstream record omitted it.
func (r *Run) Author() string {
	if r.AuthorName == "" {
		return "Unknown"
	}

	return r.AuthorName
}

// internalNameMarkers identify workflow runs belonging to the
// monitoring stack itself. Matching is a blunt substring heuristic
// carried over from the upstream deployment.
var internalNameMarkers = []string{"monitor", "analytics"}

// ExcludeInternal drops runs whose workflow name identifies them as
// part of the self-monitoring stack, so the monitor's own workflow
// runs do not pollute pipeline metrics. It is applied before every
// other stage. Input order is preserved.
func ExcludeInternal(runs []Run) []Run {
	out := make([]Run, 0, len(runs))

	for _, r := range runs {
		name := strings.ToLower(r.Name)

		internal := false

		for _, marker := range internalNameMarkers {
			if strings.Contains(name, marker) {
				internal = true

				break
			}
		}

		if !internal {
			out = append(out, r)
		}
	}

	return out
}

// CompletedOnly returns the subset of runs that have reached a
// terminal state, preserving input order.
func CompletedOnly(runs []Run) []Run {
	out := make([]Run, 0, len(runs))

	for _, r := range runs {
		if r.Completed() {
			out = append(out, r)
		}
	}

	return out
}
