package analytics

// Output value objects for the metrics engine. Every shape carries the
// period it was computed over and a generation timestamp in ISO-8601
// UTC; the request layer serializes these verbatim, so field names and
// units (minutes, percent) are part of the contract. Each value is
// constructed fresh per computation and never cached by the engine.

// TimePoint is one entry of a trend series.
type TimePoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Overview is the headline analytics summary over a lookback window.
type Overview struct {
	TotalBuilds            int     `json:"total_builds"`
	SuccessRate            float64 `json:"success_rate"`
	FailureRate            float64 `json:"failure_rate"`
	AverageDurationMinutes float64 `json:"average_duration_minutes"`
	MTTRMinutes            float64 `json:"mttr_minutes"`
	BuildsPerDay           float64 `json:"builds_per_day"`
	MostActiveBranch       string  `json:"most_active_branch"`
	MostActiveAuthor       string  `json:"most_active_author"`
	PeriodDays             int     `json:"period_days"`
	Timestamp              string  `json:"timestamp"`
}

// Trends holds success/failure/duration series at a given granularity.
type Trends struct {
	SuccessTrend  []TimePoint `json:"success_trend"`
	FailureTrend  []TimePoint `json:"failure_trend"`
	DurationTrend []TimePoint `json:"duration_trend"`
	Granularity   string      `json:"granularity"`
	PeriodDays    int         `json:"period_days"`
	Timestamp     string      `json:"timestamp"`
}

// FailureIncident describes one failure and its recovery, if any.
type FailureIncident struct {
	FailureID       int64   `json:"failure_id"`
	FailureTime     string  `json:"failure_time"`
	RecoveryTime    *string `json:"recovery_time"`
	RecoveryMinutes float64 `json:"recovery_minutes"`
	Branch          string  `json:"branch"`
	CommitSHA       string  `json:"commit_sha"`
}

// MTTRAnalysis is the mean-time-to-recovery report.
type MTTRAnalysis struct {
	OverallMTTRMinutes float64           `json:"overall_mttr_minutes"`
	WeeklyMTTR         []TimePoint       `json:"weekly_mttr"`
	FailureIncidents   []FailureIncident `json:"failure_incidents"`
	TotalFailures      int               `json:"total_failures"`
	PeriodDays         int               `json:"period_days"`
	Timestamp          string            `json:"timestamp"`
}

// Bottleneck identifies one of the slowest builds in the window.
type Bottleneck struct {
	BuildID         int64   `json:"build_id"`
	DurationMinutes float64 `json:"duration_minutes"`
	Branch          string  `json:"branch"`
	CommitSHA       string  `json:"commit_sha"`
	CompletedAt     string  `json:"completed_at"`
	URL             string  `json:"url"`
}

// Performance is the duration-statistics report.
type Performance struct {
	AverageDurationMinutes float64      `json:"average_duration_minutes"`
	MedianDurationMinutes  float64      `json:"median_duration_minutes"`
	P95DurationMinutes     float64      `json:"p95_duration_minutes"`
	FastestBuildMinutes    float64      `json:"fastest_build_minutes"`
	SlowestBuildMinutes    float64      `json:"slowest_build_minutes"`
	DurationTrend          []TimePoint  `json:"duration_trend"`
	Bottlenecks            []Bottleneck `json:"bottlenecks"`
	PeriodDays             int          `json:"period_days"`
	Timestamp              string       `json:"timestamp"`
}

// BranchFailures attributes failures to a branch.
type BranchFailures struct {
	Branch      string  `json:"branch"`
	TotalBuilds int     `json:"total_builds"`
	Failures    int     `json:"failures"`
	FailureRate float64 `json:"failure_rate"`
}

// AuthorFailures attributes failures to a commit author.
type AuthorFailures struct {
	Author      string  `json:"author"`
	TotalBuilds int     `json:"total_builds"`
	Failures    int     `json:"failures"`
	FailureRate float64 `json:"failure_rate"`
}

// RecentFailure describes one recently failed build.
type RecentFailure struct {
	BuildID         int64   `json:"build_id"`
	Conclusion      string  `json:"conclusion"`
	Branch          string  `json:"branch"`
	CommitSHA       string  `json:"commit_sha"`
	CommitMessage   string  `json:"commit_message"`
	Author          string  `json:"author"`
	FailedAt        string  `json:"failed_at"`
	DurationMinutes float64 `json:"duration_minutes"`
	URL             string  `json:"url"`
}

// FailureAnalysis is the failure attribution report.
type FailureAnalysis struct {
	TotalFailures   int              `json:"total_failures"`
	FailureRate     float64          `json:"failure_rate"`
	FailureByBranch []BranchFailures `json:"failure_by_branch"`
	FailureByAuthor []AuthorFailures `json:"failure_by_author"`
	RecentFailures  []RecentFailure  `json:"recent_failures"`
	FailureTrend    []TimePoint      `json:"failure_trend"`
	PeriodDays      int              `json:"period_days"`
	Timestamp       string           `json:"timestamp"`
}

// WorkflowStats compares one workflow against its peers.
type WorkflowStats struct {
	WorkflowName           string  `json:"workflow_name"`
	TotalRuns              int     `json:"total_runs"`
	SuccessRate            float64 `json:"success_rate"`
	AverageDurationMinutes float64 `json:"average_duration_minutes"`
	SuccessfulRuns         int     `json:"successful_runs"`
	FailedRuns             int     `json:"failed_runs"`
}

// WorkflowComparison ranks workflows by activity.
type WorkflowComparison struct {
	Workflows  []WorkflowStats `json:"workflows"`
	PeriodDays int             `json:"period_days"`
	Timestamp  string          `json:"timestamp"`
}

// QueueStatus summarizes queued and running work.
type QueueStatus struct {
	QueuedCount       int `json:"queued_count"`
	RunningCount      int `json:"running_count"`
	EstimatedWaitTime int `json:"estimated_wait_time"`
}

// RecentDeployment is a successful main-branch run.
type RecentDeployment struct {
	ID              int64  `json:"id"`
	CommitSHA       string `json:"commit_sha"`
	CommitMessage   string `json:"commit_message"`
	Author          string `json:"author"`
	DeployedAt      string `json:"deployed_at"`
	Status          string `json:"status"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// CurrentBuild describes an in-progress run, when one exists.
type CurrentBuild struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Branch    string `json:"branch"`
	CommitSHA string `json:"commit_sha"`
	StartedAt string `json:"started_at"`
	URL       string `json:"url"`
}

// PipelineOverview is the live pipeline dashboard payload.
type PipelineOverview struct {
	Status            string             `json:"status"`
	SuccessRate       float64            `json:"success_rate"`
	FailureRate       float64            `json:"failure_rate"`
	QueueStatus       QueueStatus        `json:"queue_status"`
	RecentDeployments []RecentDeployment `json:"recent_deployments"`
	CurrentBuild      *CurrentBuild      `json:"current_build"`
	TotalRunsAnalyzed int                `json:"total_runs_analyzed"`
	Timestamp         string             `json:"timestamp"`
}

// LastRunStatus describes the most recent completed run.
type LastRunStatus struct {
	Conclusion      string `json:"conclusion"`
	CompletedAt     string `json:"completed_at"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// PipelineStatus is the detailed live status payload.
type PipelineStatus struct {
	OverallStatus  string         `json:"overall_status"`
	RunningJobs    int            `json:"running_jobs"`
	QueuedJobs     int            `json:"queued_jobs"`
	LastRunStatus  *LastRunStatus `json:"last_run_status"`
	ActiveBranches []string       `json:"active_branches"`
	Timestamp      string         `json:"timestamp"`
}

// PipelineMetrics is the pipeline performance summary.
type PipelineMetrics struct {
	TotalRuns              int     `json:"total_runs"`
	SuccessCount           int     `json:"success_count"`
	FailureCount           int     `json:"failure_count"`
	SuccessRate            float64 `json:"success_rate"`
	AverageDurationMinutes float64 `json:"average_duration_minutes"`
	FastestBuildMinutes    float64 `json:"fastest_build_minutes"`
	SlowestBuildMinutes    float64 `json:"slowest_build_minutes"`
	BuildsPerDay           float64 `json:"builds_per_day"`
	Timestamp              string  `json:"timestamp"`
}

// Digest is the compact analytics snapshot posted by the monitor job.
type Digest struct {
	Window             int     `json:"window"`
	Successes          int     `json:"successes"`
	Failures           int     `json:"failures"`
	AvgDurationMinutes float64 `json:"avg_duration_min"`
	MTTRMinutes        float64 `json:"mttr_min"`
}
