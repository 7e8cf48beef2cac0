package pipeline

import "time"

// SelectSince retains runs whose update timestamp falls at or after
// the cutoff. Runs with a missing timestamp are dropped silently:
// upstream data is allowed to be partial, and a run that cannot be
// placed in time cannot be placed in a window. Input order is
// preserved; no sorting happens here.
func SelectSince(runs []Run, cutoff time.Time) []Run {
	out := make([]Run, 0, len(runs))

	for _, r := range runs {
		if r.UpdatedAt == nil {
			continue
		}

		if !r.UpdatedAt.Before(cutoff) {
			out = append(out, r)
		}
	}

	return out
}
