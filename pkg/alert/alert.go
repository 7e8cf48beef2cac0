// Package alert formats pipeline events as Slack messages and matches
// them against notification rules. Formatting never fails: missing
// fields render as placeholders so a sparse run still produces a
// usable alert.
package alert

import (
	"fmt"
	"time"

	"github.com/devpulse/pipewatch/pkg/analytics"
	"github.com/devpulse/pipewatch/pkg/notify"
	"github.com/devpulse/pipewatch/pkg/pipeline"
	"github.com/devpulse/pipewatch/pkg/slack"
)

// FailureMessage builds the Slack alert for one failed run.
func FailureMessage(run pipeline.Run) slack.Message {
	blocks := append(
		[]slack.Block{slack.Header(":rotating_light: Pipeline Failure")},
		failureBlocks(run)...,
	)

	return slack.Message{
		Text:   FailureSummary(run),
		Blocks: blocks,
	}
}

// FailureBatchMessage builds one Slack message covering every failed
// run detected in a poll pass: a summary line with the count, then the
// per-run failure blocks separated by dividers. repo is the
// "owner/name" slug, may be empty.
func FailureBatchMessage(runs []pipeline.Run, repo string) slack.Message {
	summary := FailureBatchSummary(len(runs), repo)

	blocks := []slack.Block{
		slack.Header(":rotating_light: Pipeline Failures"),
		slack.Section(summary),
	}

	for _, run := range runs {
		blocks = append(blocks, slack.Divider())
		blocks = append(blocks, failureBlocks(run)...)
	}

	return slack.Message{
		Text:   summary,
		Blocks: blocks,
	}
}

// FailureBatchSummary is the count line for a batch of failures.
func FailureBatchSummary(count int, repo string) string {
	if repo == "" {
		return fmt.Sprintf("%d CI/CD failure(s) detected", count)
	}

	return fmt.Sprintf("%d CI/CD failure(s) detected in %s", count, repo)
}

// failureBlocks renders the body of one failure: workflow fields, the
// commit subject and a context line. Shared by the single and batched
// messages.
func failureBlocks(run pipeline.Run) []slack.Block {
	branch := run.HeadBranch
	if branch == "" {
		branch = "unknown"
	}

	sha := run.ShortSHA()
	if sha == "" {
		sha = "unknown"
	}

	workflow := run.Name
	if workflow == "" {
		workflow = "Unknown"
	}

	blocks := []slack.Block{
		slack.FieldSection(
			slack.Mrkdwn(fmt.Sprintf("*Workflow:*\n%s", workflow)),
			slack.Mrkdwn(fmt.Sprintf("*Branch:*\n%s", branch)),
			slack.Mrkdwn(fmt.Sprintf("*Commit:*\n`%s`", sha)),
			slack.Mrkdwn(fmt.Sprintf("*Author:*\n%s", run.Author())),
		),
	}

	if subject := run.Subject(); subject != "" {
		blocks = append(blocks, slack.Section(fmt.Sprintf(">%s", subject)))
	}

	var elements []slack.TextObject

	if run.UpdatedAt != nil {
		elements = append(elements, slack.Mrkdwn(fmt.Sprintf(
			"Failed at %s", run.UpdatedAt.Format(time.RFC3339))))
	}

	if run.URL != "" {
		elements = append(elements, slack.Mrkdwn(fmt.Sprintf(
			"<%s|View run>", run.URL)))
	}

	if len(elements) > 0 {
		blocks = append(blocks, slack.Context(elements...))
	}

	return blocks
}

// FailureSummary is the one-line fallback text for a failure alert.
func FailureSummary(run pipeline.Run) string {
	branch := run.HeadBranch
	if branch == "" {
		branch = "unknown"
	}

	workflow := run.Name
	if workflow == "" {
		workflow = "Unknown"
	}

	return fmt.Sprintf("%s failed on %s (%s)", workflow, branch, run.Author())
}

// DigestMessage builds the periodic analytics digest.
func DigestMessage(d analytics.Digest) slack.Message {
	return slack.Message{
		Text: DigestText(d),
		Blocks: []slack.Block{
			slack.Header(":bar_chart: Pipeline Digest"),
			slack.FieldSection(
				slack.Mrkdwn(fmt.Sprintf("*Runs analyzed:*\n%d", d.Window)),
				slack.Mrkdwn(fmt.Sprintf("*Successes:*\n%d", d.Successes)),
				slack.Mrkdwn(fmt.Sprintf("*Failures:*\n%d", d.Failures)),
				slack.Mrkdwn(fmt.Sprintf("*Avg duration:*\n%.2f min", d.AvgDurationMinutes)),
			),
			slack.Context(slack.Mrkdwn(fmt.Sprintf("MTTR %.2f min", d.MTTRMinutes))),
		},
	}
}

// DigestText is the one-line fallback text for a digest.
func DigestText(d analytics.Digest) string {
	return fmt.Sprintf(
		"Pipeline digest: %d runs, %d successes, %d failures, avg %.2f min, MTTR %.2f min",
		d.Window, d.Successes, d.Failures, d.AvgDurationMinutes, d.MTTRMinutes,
	)
}

// DeploymentMessage builds the Slack notice for a successful
// main-branch run.
func DeploymentMessage(run pipeline.Run) slack.Message {
	text := fmt.Sprintf("Deployed %s to %s (%s)",
		run.ShortSHA(), run.HeadBranch, run.Author())

	blocks := []slack.Block{
		slack.Header(":rocket: Deployment"),
		slack.Section(fmt.Sprintf("`%s` deployed to *%s* by %s",
			run.ShortSHA(), run.HeadBranch, run.Author())),
	}

	if run.URL != "" {
		blocks = append(blocks, slack.Context(
			slack.Mrkdwn(fmt.Sprintf("<%s|View run>", run.URL))))
	}

	return slack.Message{Text: text, Blocks: blocks}
}

// EventType maps a completed run to the notification event it raises,
// or "" when it raises none.
func EventType(run pipeline.Run, cancelledAsFailure bool) string {
	if !run.Completed() {
		return ""
	}

	switch {
	case run.Failed(cancelledAsFailure):
		return notify.EventBuildFailure
	case run.Conclusion == pipeline.ConclusionCancelled:
		return notify.EventBuildCancelled
	case run.Succeeded() && run.HeadBranch == "main":
		return notify.EventDeployment
	case run.Succeeded():
		return notify.EventBuildSuccess
	default:
		return ""
	}
}

// Delivery is one rule/channel pair that matched an event.
type Delivery struct {
	Rule    notify.Rule
	Channel string
}

// Evaluate returns the deliveries an event triggers, preserving rule
// order and, within a rule, channel order.
func Evaluate(rules []notify.Rule, eventType, branch string) []Delivery {
	var out []Delivery

	for _, rule := range rules {
		if !rule.Matches(eventType, branch) {
			continue
		}

		for _, ch := range rule.Channels {
			out = append(out, Delivery{Rule: rule, Channel: ch})
		}
	}

	return out
}
