package models

import "strings"

// MergeTransactions merges a batch of newly observed transactions into known,
// which is ordered by descending logical time. Old batches are appended; new
// batches fill a gap and are inserted before the first known transaction whose
// lt is below info.MaxLt. Overlapping batches are not deduplicated.
//
// The returned slice may share its backing array with known.
func MergeTransactions(known, batch []Transaction, info TransactionsBatchInfo) []Transaction {
	if info.BatchType == BatchOld || len(known) == 0 {
		return append(known, batch...)
	}

	i := 0
	for i < len(known) && CompareLt(known[i].ID.Lt, info.MaxLt) >= 0 {
		i++
	}

	merged := make([]Transaction, 0, len(known)+len(batch))
	merged = append(merged, known[:i]...)
	merged = append(merged, batch...)
	merged = append(merged, known[i:]...)
	return merged
}

// CompareLt compares two decimal logical times numerically. Logical times
// exceed 64 bits in theory, so they are compared as digit strings: shorter is
// smaller, equal lengths compare lexicographically.
func CompareLt(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
