package activity

import (
	"sort"

	"github.com/tsiken/backend/internal/models"
)

// Merge concatenates the lists and sorts the result newest first.
func Merge(lists ...[]models.LogEntry) []models.LogEntry {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	out := make([]models.LogEntry, 0, total)
	for _, l := range lists {
		out = append(out, l...)
	}
	SortDescending(out)
	return out
}

// SortDescending orders entries by OccurredAt descending. Equal instants are
// ordered by source collection, then id, so the order is total.
func SortDescending(entries []models.LogEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.After(b.OccurredAt)
		}
		if a.SourceCollection != b.SourceCollection {
			return a.SourceCollection < b.SourceCollection
		}
		return a.ID < b.ID
	})
}

// Recent returns at most n of the newest entries.
func Recent(entries []models.LogEntry, n int) []models.LogEntry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[:n]
}
