package store

import (
	"sort"

	"github.com/stuvusIT/entman/internal/entman/types"
)

// Matches reports whether e satisfies every filter set in q. OnlyLatest is
// not a per-entry predicate and is ignored here.
func Matches(q types.HistoryQuery, e types.HistoryEntry) bool {
	if q.TimeMin != nil && e.Time < *q.TimeMin {
		return false
	}
	if q.TimeMax != nil && e.Time > *q.TimeMax {
		return false
	}
	if q.Token != nil && e.Token != *q.Token {
		return false
	}
	if q.Name != nil && (e.Response.Name == "" || e.Response.Name != *q.Name) {
		return false
	}
	if q.Outcome != nil && e.Response.Outcome != *q.Outcome {
		return false
	}
	return true
}

// Apply filters entries (given in insertion order) by q and returns them
// ordered by time, ties by insertion order. With q.OnlyLatest only the most
// recent matching entry per token survives. The input is not modified.
func Apply(q types.HistoryQuery, entries []types.HistoryEntry) []types.HistoryEntry {
	out := make([]types.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if Matches(q, e) {
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	if !q.OnlyLatest {
		return out
	}

	// After the stable sort the last entry seen for a token is its latest.
	latest := make(map[string]int, len(out))
	for i, e := range out {
		latest[e.Token] = i
	}
	kept := make([]types.HistoryEntry, 0, len(latest))
	for i, e := range out {
		if latest[e.Token] == i {
			kept = append(kept, e)
		}
	}
	return kept
}
