package aggregate

import (
	"errors"
	"sort"

	"morpho-risk-lab/internal/domain"
)

// ErrInvalidOrdering is returned when events are not in deterministic order.
var ErrInvalidOrdering = errors.New("events are not in deterministic order")

// SortEvents orders events by (block_time ASC, block_number ASC, log_index ASC).
// The sort is stable, so rows that tie on all three keys keep the source
// table's native order.
func SortEvents(events []domain.RawEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareEvents(&events[i], &events[j]) < 0
	})
}

// ValidateOrdering checks that events are non-decreasing in
// (block_time, block_number, log_index). Returns ErrInvalidOrdering if not.
func ValidateOrdering(events []domain.RawEvent) error {
	for i := 1; i < len(events); i++ {
		if compareEvents(&events[i-1], &events[i]) > 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (block_time ASC, block_number ASC, log_index ASC)
func compareEvents(a, b *domain.RawEvent) int {
	if a.BlockTime != b.BlockTime {
		if a.BlockTime < b.BlockTime {
			return -1
		}
		return 1
	}
	if a.BlockNumber != b.BlockNumber {
		if a.BlockNumber < b.BlockNumber {
			return -1
		}
		return 1
	}
	if a.LogIndex != b.LogIndex {
		if a.LogIndex < b.LogIndex {
			return -1
		}
		return 1
	}
	return 0
}
