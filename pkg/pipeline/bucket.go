package pipeline

import (
	"fmt"
	"time"
)

// Granularity is the bucket width used for trend series.
type Granularity string

// Supported bucket granularities.
const (
	Hourly Granularity = "hourly"
	Daily  Granularity = "daily"
	Weekly Granularity = "weekly"
)

// Period key layouts. Weekly keys use the Monday of the ISO week.
const (
	hourlyKeyLayout = "2006-01-02 15:00:00"
	dailyKeyLayout  = "2006-01-02"
)

// ParseGranularity validates a caller-supplied granularity string.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case Hourly, Daily, Weekly:
		return Granularity(s), nil
	default:
		return "", fmt.Errorf("invalid granularity %q (want hourly, daily or weekly)", s)
	}
}

// PeriodKey derives the bucket key for a point in time, in UTC.
func (g Granularity) PeriodKey(t time.Time) string {
	return g.PeriodStart(t).Format(g.keyLayout())
}

// PeriodStart truncates a point in time to the start of its period, in
// UTC: the top of the hour, midnight, or the Monday of the ISO week.
func (g Granularity) PeriodStart(t time.Time) time.Time {
	t = t.UTC()

	switch g {
	case Hourly:
		return t.Truncate(time.Hour)
	case Weekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// Monday of the ISO week; Sunday is 6 days past Monday.
		offset := (int(day.Weekday()) + 6) % 7

		return day.AddDate(0, 0, -offset)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// step returns the distance between consecutive period starts. Weekly
// and daily steps are calendar-safe because period starts are always
// midnight UTC.
func (g Granularity) step(t time.Time) time.Time {
	switch g {
	case Hourly:
		return t.Add(time.Hour)
	case Weekly:
		return t.AddDate(0, 0, 7)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func (g Granularity) keyLayout() string {
	if g == Hourly {
		return hourlyKeyLayout
	}

	return dailyKeyLayout
}

// Bucket groups runs into period buckets. Runs without a parseable
// update timestamp are excluded from every bucket; they are never
// silently assigned to a default period.
func Bucket(runs []Run, g Granularity) map[string][]Run {
	buckets := make(map[string][]Run)

	for _, r := range runs {
		if r.UpdatedAt == nil {
			continue
		}

		key := g.PeriodKey(*r.UpdatedAt)
		buckets[key] = append(buckets[key], r)
	}

	return buckets
}

// PeriodKeys enumerates every period key from the period containing
// `from` through the period containing `to`, inclusive, in
// chronological order. A trend series built over these keys always has
// one entry per period, even for periods with no matching runs.
func PeriodKeys(from, to time.Time, g Granularity) []string {
	start := g.PeriodStart(from)
	end := g.PeriodStart(to)

	var keys []string

	for t := start; !t.After(end); t = g.step(t) {
		keys = append(keys, t.Format(g.keyLayout()))
	}

	return keys
}
