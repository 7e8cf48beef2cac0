package pipeline

import "sort"

// DedupeByCommit collapses multiple reported runs for the same commit
// down to the most recently updated one. Re-runs and delayed status
// reports both surface as extra records for a commit, and an older
// transient failure must not count as the commit's final state.
//
// The input is sorted newest-updated-first (missing timestamps sort
// last) and the first run seen per head SHA wins, so the result is at
// most one run per commit, newest first. Runs without a head SHA are
// never collapsed into each other. The operation is idempotent.
func DedupeByCommit(runs []Run) []Run {
	sorted := make([]Run, len(runs))
	copy(sorted, runs)

	sort.SliceStable(sorted, func(i, j int) bool {
		return updatedAfter(&sorted[i], &sorted[j])
	})

	seen := make(map[string]struct{}, len(sorted))
	out := make([]Run, 0, len(sorted))

	for _, r := range sorted {
		if r.HeadSHA != "" {
			if _, dup := seen[r.HeadSHA]; dup {
				continue
			}

			seen[r.HeadSHA] = struct{}{}
		}

		out = append(out, r)
	}

	return out
}

// updatedAfter reports whether a was updated more recently than b,
// treating a missing timestamp as the minimal value.
func updatedAfter(a, b *Run) bool {
	switch {
	case a.UpdatedAt == nil:
		return false
	case b.UpdatedAt == nil:
		return true
	default:
		return a.UpdatedAt.After(*b.UpdatedAt)
	}
}
