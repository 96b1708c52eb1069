package queue

import (
	"cmp"
	"slices"
)

// Compare orders entries by Timestamp, then by ID bytewise.
func Compare(a, b QueuedRequest) int {
	if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Sort orders entries in place for replay.
func Sort(entries []QueuedRequest) {
	slices.SortStableFunc(entries, Compare)
}
