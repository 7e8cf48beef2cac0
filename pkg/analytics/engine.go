package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/devpulse/pipewatch/pkg/pipeline"
)

const (
	// attributionLimit caps the failure attribution tables.
	attributionLimit = 10

	// bottleneckLimit caps the slowest-builds list.
	bottleneckLimit = 5

	// incidentLimit caps the failure incident list.
	incidentLimit = 10

	// weeklyMTTRWeeks is the number of trailing weeks in the MTTR
	// breakdown.
	weeklyMTTRWeeks = 4

	// queuedRunWaitMinutes is the rough per-job wait estimate used for
	// queue status.
	queuedRunWaitMinutes = 5

	// deploymentBranch is the branch whose successful runs count as
	// deployments.
	deploymentBranch = "main"

	// deploymentLimit caps the recent-deployments list.
	deploymentLimit = 5
)

// Options tunes the engine's failure semantics.
type Options struct {
	// CancelledAsFailure counts cancelled runs as failures. The flag
	// applies uniformly to every metric the engine computes.
	CancelledAsFailure bool
}

// Engine computes derived metrics over sets of workflow runs. It holds
// no mutable state: every method is a pure function over its input, so
// a single Engine is safe for concurrent use.
type Engine struct {
	opts Options
	now  func() time.Time
}

// NewEngine creates a metrics engine.
func NewEngine(opts Options) *Engine {
	return &Engine{
		opts: opts,
		now:  time.Now,
	}
}

// Overview computes the headline analytics summary. Empty input yields
// an all-zero overview, never an error.
func (e *Engine) Overview(runs []pipeline.Run, periodDays int) Overview {
	completed := pipeline.CompletedOnly(runs)

	out := Overview{
		PeriodDays: periodDays,
		Timestamp:  e.timestamp(),
	}

	if len(completed) == 0 {
		return out
	}

	rate := e.successRate(completed)

	out.TotalBuilds = len(completed)
	out.SuccessRate = round2(rate)
	// Derived from the rounded success rate so the two always sum to
	// exactly 100.
	out.FailureRate = 100 - out.SuccessRate
	out.AverageDurationMinutes = round2(mean(durationsMinutes(completed)))
	out.MTTRMinutes = round2(e.mttrMinutes(completed))
	out.MostActiveBranch = mostActive(completed, branchKey)
	out.MostActiveAuthor = mostActive(completed, authorKey)

	if periodDays > 0 {
		out.BuildsPerDay = round2(float64(len(completed)) / float64(periodDays))
	}

	return out
}

// Trends computes success, failure and duration series at the given
// granularity. Every period between the start of the lookback window
// and now appears in the series, zero-valued when no runs match.
func (e *Engine) Trends(
	runs []pipeline.Run, lookbackDays int, g pipeline.Granularity,
) Trends {
	now := e.now().UTC()
	keys := trendKeys(now, g, periodsFor(g, lookbackDays))
	buckets := pipeline.Bucket(runs, g)

	out := Trends{
		SuccessTrend:  make([]TimePoint, 0, len(keys)),
		FailureTrend:  make([]TimePoint, 0, len(keys)),
		DurationTrend: make([]TimePoint, 0, len(keys)),
		Granularity:   string(g),
		PeriodDays:    lookbackDays,
		Timestamp:     e.timestamp(),
	}

	for _, key := range keys {
		completed := pipeline.CompletedOnly(buckets[key])

		var successes, failures int

		for _, r := range completed {
			if r.Succeeded() {
				successes++
			}

			if e.failed(&r) {
				failures++
			}
		}

		out.SuccessTrend = append(out.SuccessTrend,
			TimePoint{Timestamp: key, Value: float64(successes)})
		out.FailureTrend = append(out.FailureTrend,
			TimePoint{Timestamp: key, Value: float64(failures)})
		out.DurationTrend = append(out.DurationTrend,
			TimePoint{Timestamp: key, Value: round2(mean(durationsMinutes(completed)))})
	}

	return out
}

// MTTR computes the mean-time-to-recovery report: the overall figure,
// a trailing-weeks breakdown, and the most recent failure incidents
// with their recovery gaps.
func (e *Engine) MTTR(runs []pipeline.Run, lookbackDays int) MTTRAnalysis {
	completed := pipeline.CompletedOnly(runs)
	now := e.now().UTC()

	out := MTTRAnalysis{
		OverallMTTRMinutes: round2(e.mttrMinutes(completed)),
		WeeklyMTTR:         make([]TimePoint, 0, weeklyMTTRWeeks),
		FailureIncidents:   []FailureIncident{},
		PeriodDays:         lookbackDays,
		Timestamp:          e.timestamp(),
	}

	for week := 0; week < weeklyMTTRWeeks; week++ {
		start := now.AddDate(0, 0, -7*(week+1))
		end := now.AddDate(0, 0, -7*week)

		var weekRuns []pipeline.Run

		for _, r := range completed {
			if r.UpdatedAt == nil {
				continue
			}

			if !r.UpdatedAt.Before(start) && !r.UpdatedAt.After(end) {
				weekRuns = append(weekRuns, r)
			}
		}

		out.WeeklyMTTR = append(out.WeeklyMTTR, TimePoint{
			Timestamp: start.Format(time.RFC3339),
			Value:     round2(e.mttrMinutes(weekRuns)),
		})
	}

	chrono := sortedByUpdatedAt(completed, false)
	failures := make([]pipeline.Run, 0, len(chrono))

	for _, r := range chrono {
		if e.failed(&r) {
			failures = append(failures, r)
		}
	}

	out.TotalFailures = len(failures)

	for i, f := range failures {
		if i == incidentLimit {
			break
		}

		if f.UpdatedAt == nil {
			continue
		}

		incident := FailureIncident{
			FailureID:   f.ID,
			FailureTime: f.UpdatedAt.Format(time.RFC3339),
			Branch:      f.HeadBranch,
			CommitSHA:   f.ShortSHA(),
		}

		if recovery := nextSuccessAfter(completed, *f.UpdatedAt); recovery != nil {
			at := recovery.Format(time.RFC3339)
			incident.RecoveryTime = &at
			incident.RecoveryMinutes = round2(recovery.Sub(*f.UpdatedAt).Minutes())
		}

		out.FailureIncidents = append(out.FailureIncidents, incident)
	}

	return out
}

// Performance computes duration statistics, the daily duration trend,
// and the slowest builds in the window.
func (e *Engine) Performance(runs []pipeline.Run, lookbackDays int) Performance {
	completed := pipeline.CompletedOnly(runs)
	durations := durationsMinutes(completed)

	out := Performance{
		DurationTrend: []TimePoint{},
		Bottlenecks:   []Bottleneck{},
		PeriodDays:    lookbackDays,
		Timestamp:     e.timestamp(),
	}

	if len(durations) == 0 {
		return out
	}

	sort.Float64s(durations)

	out.AverageDurationMinutes = round2(mean(durations))
	out.MedianDurationMinutes = round2(median(durations))
	out.P95DurationMinutes = round2(p95(durations))
	out.FastestBuildMinutes = round2(durations[0])
	out.SlowestBuildMinutes = round2(durations[len(durations)-1])
	out.DurationTrend = e.dailyDurationTrend(completed, lookbackDays)

	slowest := make([]pipeline.Run, len(completed))
	copy(slowest, completed)

	sort.SliceStable(slowest, func(i, j int) bool {
		return durationOrZero(&slowest[i]) > durationOrZero(&slowest[j])
	})

	for i, r := range slowest {
		if i == bottleneckLimit {
			break
		}

		b := Bottleneck{
			BuildID:         r.ID,
			DurationMinutes: round2(durationOrZero(&r)),
			Branch:          r.HeadBranch,
			CommitSHA:       r.ShortSHA(),
			URL:             r.URL,
		}

		if r.UpdatedAt != nil {
			b.CompletedAt = r.UpdatedAt.Format(time.RFC3339)
		}

		out.Bottlenecks = append(out.Bottlenecks, b)
	}

	return out
}

// Failures computes failure attribution by branch and author, the most
// recent failures, and the daily failure trend.
func (e *Engine) Failures(runs []pipeline.Run, lookbackDays int) FailureAnalysis {
	completed := pipeline.CompletedOnly(runs)

	out := FailureAnalysis{
		FailureByBranch: []BranchFailures{},
		FailureByAuthor: []AuthorFailures{},
		RecentFailures:  []RecentFailure{},
		FailureTrend:    e.dailyFailureTrend(completed, lookbackDays),
		PeriodDays:      lookbackDays,
		Timestamp:       e.timestamp(),
	}

	failedRuns := make([]pipeline.Run, 0, len(completed))

	for _, r := range completed {
		if e.failed(&r) {
			failedRuns = append(failedRuns, r)
		}
	}

	out.TotalFailures = len(failedRuns)

	if len(completed) > 0 {
		out.FailureRate = round2(float64(len(failedRuns)) / float64(len(completed)) * 100)
	}

	out.FailureByBranch = e.branchAttribution(completed)
	out.FailureByAuthor = e.authorAttribution(completed)

	for i, f := range failedRuns {
		if i == incidentLimit {
			break
		}

		rf := RecentFailure{
			BuildID:         f.ID,
			Conclusion:      string(f.Conclusion),
			Branch:          f.HeadBranch,
			CommitSHA:       f.ShortSHA(),
			CommitMessage:   truncate(f.Subject(), 100),
			Author:          f.Author(),
			DurationMinutes: round2(durationOrZero(&f)),
			URL:             f.URL,
		}

		if f.UpdatedAt != nil {
			rf.FailedAt = f.UpdatedAt.Format(time.RFC3339)
		}

		out.RecentFailures = append(out.RecentFailures, rf)
	}

	return out
}

// CompareWorkflows groups completed runs by workflow name and ranks
// the workflows by activity.
func (e *Engine) CompareWorkflows(
	runs []pipeline.Run, lookbackDays int,
) WorkflowComparison {
	completed := pipeline.CompletedOnly(runs)

	type acc struct {
		stats     WorkflowStats
		durations []float64
	}

	var order []string

	groups := make(map[string]*acc)

	for _, r := range completed {
		name := r.Name
		if name == "" {
			name = "Unknown"
		}

		g, ok := groups[name]
		if !ok {
			g = &acc{stats: WorkflowStats{WorkflowName: name}}
			groups[name] = g
			order = append(order, name)
		}

		g.stats.TotalRuns++

		if r.Succeeded() {
			g.stats.SuccessfulRuns++
		} else if e.failed(&r) {
			g.stats.FailedRuns++
		}

		if d, ok := r.Duration(); ok {
			g.durations = append(g.durations, d.Minutes())
		}
	}

	out := WorkflowComparison{
		Workflows:  make([]WorkflowStats, 0, len(order)),
		PeriodDays: lookbackDays,
		Timestamp:  e.timestamp(),
	}

	for _, name := range order {
		g := groups[name]
		g.stats.SuccessRate = round2(float64(g.stats.SuccessfulRuns) / float64(g.stats.TotalRuns) * 100)
		g.stats.AverageDurationMinutes = round2(mean(g.durations))
		out.Workflows = append(out.Workflows, g.stats)
	}

	sort.SliceStable(out.Workflows, func(i, j int) bool {
		return out.Workflows[i].TotalRuns > out.Workflows[j].TotalRuns
	})

	return out
}

// PipelineState reduces a set of runs to an overall pipeline state:
// running if anything is queued or in progress, otherwise the
// conclusion of the most recently updated completed run, otherwise
// idle.
func (e *Engine) PipelineState(runs []pipeline.Run) string {
	if len(runs) == 0 {
		return "idle"
	}

	for _, r := range runs {
		if r.Status == pipeline.StatusQueued || r.Status == pipeline.StatusInProgress {
			return "running"
		}
	}

	completed := sortedByUpdatedAt(pipeline.CompletedOnly(runs), true)
	if len(completed) == 0 {
		return "idle"
	}

	switch completed[0].Conclusion {
	case pipeline.ConclusionSuccess:
		return "success"
	case pipeline.ConclusionFailure, pipeline.ConclusionTimedOut:
		return "failed"
	case pipeline.ConclusionCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// QueueStatus counts queued and running work with a rough wait
// estimate.
func (e *Engine) QueueStatus(runs []pipeline.Run) QueueStatus {
	var qs QueueStatus

	for _, r := range runs {
		switch r.Status {
		case pipeline.StatusQueued:
			qs.QueuedCount++
		case pipeline.StatusInProgress:
			qs.RunningCount++
		}
	}

	qs.EstimatedWaitTime = qs.QueuedCount * queuedRunWaitMinutes

	return qs
}

// RecentDeployments lists the latest successful main-branch runs.
func (e *Engine) RecentDeployments(runs []pipeline.Run) []RecentDeployment {
	out := make([]RecentDeployment, 0, deploymentLimit)

	for _, r := range runs {
		if len(out) == deploymentLimit {
			break
		}

		if !r.Succeeded() || r.HeadBranch != deploymentBranch {
			continue
		}

		dep := RecentDeployment{
			ID:            r.ID,
			CommitSHA:     r.ShortSHA(),
			CommitMessage: truncate(r.Subject(), 100),
			Author:        r.Author(),
			Status:        string(pipeline.ConclusionSuccess),
		}

		if r.UpdatedAt != nil {
			dep.DeployedAt = r.UpdatedAt.Format(time.RFC3339)
		}

		if d, ok := r.Duration(); ok {
			dep.DurationSeconds = int64(d.Seconds())
		}

		out = append(out, dep)
	}

	return out
}

// CurrentBuild returns the first in-progress run, or nil when the
// pipeline is quiet.
func (e *Engine) CurrentBuild(runs []pipeline.Run) *CurrentBuild {
	for _, r := range runs {
		if r.Status != pipeline.StatusInProgress {
			continue
		}

		cb := &CurrentBuild{
			ID:        r.ID,
			Name:      r.Name,
			Status:    string(r.Status),
			Branch:    r.HeadBranch,
			CommitSHA: r.ShortSHA(),
			URL:       r.URL,
		}

		if r.StartedAt != nil {
			cb.StartedAt = r.StartedAt.Format(time.RFC3339)
		}

		return cb
	}

	return nil
}

// PipelineOverview assembles the live dashboard payload from a
// newest-first run set.
func (e *Engine) PipelineOverview(runs []pipeline.Run) PipelineOverview {
	completed := pipeline.CompletedOnly(runs)
	rate := e.successRate(completed)

	out := PipelineOverview{
		Status:            e.PipelineState(runs),
		QueueStatus:       e.QueueStatus(runs),
		RecentDeployments: e.RecentDeployments(runs),
		CurrentBuild:      e.CurrentBuild(runs),
		TotalRunsAnalyzed: len(runs),
		Timestamp:         e.timestamp(),
	}

	if len(completed) > 0 {
		out.SuccessRate = round2(rate)
		out.FailureRate = 100 - out.SuccessRate
	}

	return out
}

// PipelineStatus assembles the detailed live status payload.
func (e *Engine) PipelineStatus(runs []pipeline.Run) PipelineStatus {
	qs := e.QueueStatus(runs)

	out := PipelineStatus{
		OverallStatus:  e.PipelineState(runs),
		RunningJobs:    qs.RunningCount,
		QueuedJobs:     qs.QueuedCount,
		ActiveBranches: []string{},
		Timestamp:      e.timestamp(),
	}

	seen := make(map[string]bool)

	for _, r := range runs {
		if r.Completed() || r.HeadBranch == "" || seen[r.HeadBranch] {
			continue
		}

		seen[r.HeadBranch] = true
		out.ActiveBranches = append(out.ActiveBranches, r.HeadBranch)
	}

	if latest := sortedByUpdatedAt(pipeline.CompletedOnly(runs), true); len(latest) > 0 {
		last := LastRunStatus{Conclusion: string(latest[0].Conclusion)}

		if latest[0].UpdatedAt != nil {
			last.CompletedAt = latest[0].UpdatedAt.Format(time.RFC3339)
		}

		if d, ok := latest[0].Duration(); ok {
			last.DurationSeconds = int64(d.Seconds())
		}

		out.LastRunStatus = &last
	}

	return out
}

// PipelineMetrics computes the pipeline performance summary over a
// lookback window expressed in minutes.
func (e *Engine) PipelineMetrics(
	runs []pipeline.Run, lookbackMinutes int,
) PipelineMetrics {
	completed := pipeline.CompletedOnly(runs)

	out := PipelineMetrics{Timestamp: e.timestamp()}

	if len(completed) == 0 {
		return out
	}

	var successes, failures int

	for _, r := range completed {
		if r.Succeeded() {
			successes++
		}

		if e.failed(&r) {
			failures++
		}
	}

	durations := durationsMinutes(completed)

	out.TotalRuns = len(completed)
	out.SuccessCount = successes
	out.FailureCount = failures
	out.SuccessRate = round2(e.successRate(completed))
	out.AverageDurationMinutes = round2(mean(durations))

	if len(durations) > 0 {
		sort.Float64s(durations)
		out.FastestBuildMinutes = round2(durations[0])
		out.SlowestBuildMinutes = round2(durations[len(durations)-1])
	}

	if days := float64(lookbackMinutes) / (24 * 60); days > 0 {
		out.BuildsPerDay = round2(float64(len(completed)) / days)
	}

	return out
}

// Digest computes the compact analytics snapshot over the most recent
// `window` runs (the input is assumed newest-first).
func (e *Engine) Digest(runs []pipeline.Run, window int) Digest {
	subset := runs
	if window > 0 && len(subset) > window {
		subset = subset[:window]
	}

	out := Digest{Window: len(subset)}

	for _, r := range subset {
		if r.Succeeded() {
			out.Successes++
		}

		if e.failed(&r) {
			out.Failures++
		}
	}

	out.AvgDurationMinutes = round2(mean(durationsMinutes(subset)))
	out.MTTRMinutes = round2(e.mttrMinutes(subset))

	return out
}

// --- internals ---

func (e *Engine) failed(r *pipeline.Run) bool {
	return r.Failed(e.opts.CancelledAsFailure)
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// successRate returns the full-precision success percentage over
// completed runs. Rounding happens only at the output boundary.
func (e *Engine) successRate(completed []pipeline.Run) float64 {
	if len(completed) == 0 {
		return 0
	}

	var successes int

	for _, r := range completed {
		if r.Succeeded() {
			successes++
		}
	}

	return float64(successes) / float64(len(completed)) * 100
}

// mttrMinutes computes the mean recovery gap: for every failure, the
// minutes until the first later success. A failure with no subsequent
// success contributes no sample. Runs without an update timestamp
// cannot be placed on the timeline and are skipped.
func (e *Engine) mttrMinutes(runs []pipeline.Run) float64 {
	chrono := sortedByUpdatedAt(runs, false)

	var samples []float64

	for i := range chrono {
		if !e.failed(&chrono[i]) || chrono[i].UpdatedAt == nil {
			continue
		}

		for j := i + 1; j < len(chrono); j++ {
			if chrono[j].Succeeded() && chrono[j].UpdatedAt != nil {
				samples = append(samples,
					chrono[j].UpdatedAt.Sub(*chrono[i].UpdatedAt).Minutes())

				break
			}
		}
	}

	return mean(samples)
}

func (e *Engine) branchAttribution(completed []pipeline.Run) []BranchFailures {
	var order []string

	groups := make(map[string]*BranchFailures)

	for _, r := range completed {
		key := branchKey(&r)

		g, ok := groups[key]
		if !ok {
			g = &BranchFailures{Branch: key}
			groups[key] = g
			order = append(order, key)
		}

		g.TotalBuilds++

		if e.failed(&r) {
			g.Failures++
		}
	}

	out := make([]BranchFailures, 0, len(order))

	for _, key := range order {
		g := groups[key]
		g.FailureRate = round2(float64(g.Failures) / float64(g.TotalBuilds) * 100)
		out = append(out, *g)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FailureRate > out[j].FailureRate
	})

	if len(out) > attributionLimit {
		out = out[:attributionLimit]
	}

	return out
}

func (e *Engine) authorAttribution(completed []pipeline.Run) []AuthorFailures {
	var order []string

	groups := make(map[string]*AuthorFailures)

	for _, r := range completed {
		key := authorKey(&r)

		g, ok := groups[key]
		if !ok {
			g = &AuthorFailures{Author: key}
			groups[key] = g
			order = append(order, key)
		}

		g.TotalBuilds++

		if e.failed(&r) {
			g.Failures++
		}
	}

	out := make([]AuthorFailures, 0, len(order))

	for _, key := range order {
		g := groups[key]
		g.FailureRate = round2(float64(g.Failures) / float64(g.TotalBuilds) * 100)
		out = append(out, *g)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FailureRate > out[j].FailureRate
	})

	if len(out) > attributionLimit {
		out = out[:attributionLimit]
	}

	return out
}

func (e *Engine) dailyDurationTrend(
	completed []pipeline.Run, lookbackDays int,
) []TimePoint {
	now := e.now().UTC()
	keys := trendKeys(now, pipeline.Daily, lookbackDays)
	buckets := pipeline.Bucket(completed, pipeline.Daily)

	out := make([]TimePoint, 0, len(keys))

	for _, key := range keys {
		out = append(out, TimePoint{
			Timestamp: key,
			Value:     round2(mean(durationsMinutes(buckets[key]))),
		})
	}

	return out
}

func (e *Engine) dailyFailureTrend(
	completed []pipeline.Run, lookbackDays int,
) []TimePoint {
	now := e.now().UTC()
	keys := trendKeys(now, pipeline.Daily, lookbackDays)
	buckets := pipeline.Bucket(completed, pipeline.Daily)

	out := make([]TimePoint, 0, len(keys))

	for _, key := range keys {
		var failures int

		for _, r := range buckets[key] {
			if e.failed(&r) {
				failures++
			}
		}

		out = append(out, TimePoint{Timestamp: key, Value: float64(failures)})
	}

	return out
}

// nextSuccessAfter returns the update time of the earliest successful
// run strictly after the given instant.
func nextSuccessAfter(runs []pipeline.Run, after time.Time) *time.Time {
	var earliest *time.Time

	for _, r := range runs {
		if !r.Succeeded() || r.UpdatedAt == nil {
			continue
		}

		if !r.UpdatedAt.After(after) {
			continue
		}

		if earliest == nil || r.UpdatedAt.Before(*earliest) {
			t := *r.UpdatedAt
			earliest = &t
		}
	}

	return earliest
}

// sortedByUpdatedAt returns a copy sorted by update time. Runs without
// a timestamp sort first in ascending order and last in descending
// order, so the newest-known run is always at the front when desc.
func sortedByUpdatedAt(runs []pipeline.Run, desc bool) []pipeline.Run {
	out := make([]pipeline.Run, len(runs))
	copy(out, runs)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].UpdatedAt, out[j].UpdatedAt

		switch {
		case a == nil:
			return !desc && b != nil
		case b == nil:
			return desc
		case desc:
			return a.After(*b)
		default:
			return a.Before(*b)
		}
	})

	return out
}

// trendKeys enumerates n period keys ending at the period containing
// now, chronological.
func trendKeys(now time.Time, g pipeline.Granularity, n int) []string {
	if n <= 0 {
		return nil
	}

	var from time.Time

	switch g {
	case pipeline.Hourly:
		from = now.Add(-time.Duration(n-1) * time.Hour)
	case pipeline.Weekly:
		from = now.AddDate(0, 0, -7*(n-1))
	default:
		from = now.AddDate(0, 0, -(n - 1))
	}

	return pipeline.PeriodKeys(from, now, g)
}

// periodsFor converts a lookback in days to a period count for the
// given granularity.
func periodsFor(g pipeline.Granularity, lookbackDays int) int {
	switch g {
	case pipeline.Hourly:
		return lookbackDays * 24
	case pipeline.Weekly:
		return (lookbackDays + 6) / 7
	default:
		return lookbackDays
	}
}

func durationsMinutes(runs []pipeline.Run) []float64 {
	out := make([]float64, 0, len(runs))

	for _, r := range runs {
		if d, ok := r.Duration(); ok {
			out = append(out, d.Minutes())
		}
	}

	return out
}

func durationOrZero(r *pipeline.Run) float64 {
	d, ok := r.Duration()
	if !ok {
		return 0
	}

	return d.Minutes()
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}

	var sum float64

	for _, v := range vals {
		sum += v
	}

	return sum / float64(len(vals))
}

// median picks the middle element of a sorted list; for even counts it
// uses the lower-middle element, without interpolation.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}

	if n%2 == 0 {
		return sorted[n/2-1]
	}

	return sorted[n/2]
}

// p95 picks index floor(n*0.95) of a sorted list, clamped to the last
// element.
func p95(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}

	idx := int(float64(n) * 0.95)
	if idx >= n {
		idx = n - 1
	}

	return sorted[idx]
}

func branchKey(r *pipeline.Run) string {
	if r.HeadBranch == "" {
		return "unknown"
	}

	return r.HeadBranch
}

func authorKey(r *pipeline.Run) string {
	if r.AuthorName == "" {
		return "unknown"
	}

	return r.AuthorName
}

// mostActive returns the key with the highest occurrence count; ties
// break towards the key encountered first in the input.
func mostActive(runs []pipeline.Run, key func(*pipeline.Run) string) string {
	counts := make(map[string]int, len(runs))
	firstSeen := make(map[string]int, len(runs))

	for i, r := range runs {
		k := key(&r)
		if _, ok := counts[k]; !ok {
			firstSeen[k] = i
		}

		counts[k]++
	}

	best := ""

	for k, c := range counts {
		switch {
		case best == "":
			best = k
		case c > counts[best]:
			best = k
		case c == counts[best] && firstSeen[k] < firstSeen[best]:
			best = k
		}
	}

	return best
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:max]
}

// round2 rounds to 2 decimal places. Applied only at the output
// boundary so intermediate figures keep full precision.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
