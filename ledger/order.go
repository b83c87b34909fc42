package ledger

import "sort"

// =============================================================================
// CHRONOLOGICAL ORDERER - Total order over line items
// =============================================================================

// Compare orders two line items by (occurred date, recorded time, sequence),
// ascending. The sequence counter only disambiguates items that share both
// dates; it is never evidence of causal order across different days.
func Compare(a, b LineItem) int {
	switch {
	case a.OccurredDate.Before(b.OccurredDate):
		return -1
	case a.OccurredDate.After(b.OccurredDate):
		return 1
	}
	switch {
	case a.RecordedAt.Before(b.RecordedAt):
		return -1
	case a.RecordedAt.After(b.RecordedAt):
		return 1
	}
	switch {
	case a.Sequence < b.Sequence:
		return -1
	case a.Sequence > b.Sequence:
		return 1
	}
	return 0
}

// SortChronological sorts line items in place into replay order.
// The full key makes the sort deterministic for any subset of a card's items.
func SortChronological(items []LineItem) {
	sort.Slice(items, func(i, j int) bool {
		return Compare(items[i], items[j]) < 0
	})
}
