package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func txs(lts ...string) []Transaction {
	out := make([]Transaction, len(lts))
	for i, lt := range lts {
		out[i] = Transaction{ID: TransactionID{Lt: lt, Hash: "h" + lt}}
	}
	return out
}

func lts(list []Transaction) []string {
	out := make([]string, len(list))
	for i, tx := range list {
		out[i] = tx.ID.Lt
	}
	return out
}

func TestMergeTransactions_EmptyKnownReturnsBatch(t *testing.T) {
	batch := txs("30", "20")
	for _, bt := range []BatchType{BatchOld, BatchNew} {
		got := MergeTransactions(nil, batch, TransactionsBatchInfo{MinLt: "20", MaxLt: "30", BatchType: bt})
		assert.Equal(t, batch, got)
	}
}

func TestMergeTransactions_OldBatchAppends(t *testing.T) {
	known := txs("100", "90")
	got := MergeTransactions(known, txs("80", "70"), TransactionsBatchInfo{MinLt: "70", MaxLt: "80", BatchType: BatchOld})
	assert.Equal(t, []string{"100", "90", "80", "70"}, lts(got))
}

func TestMergeTransactions_NewBatchFillsGap(t *testing.T) {
	known := txs("100", "99", "98", "97", "90")
	got := MergeTransactions(known, txs("96", "95"), TransactionsBatchInfo{MinLt: "95", MaxLt: "96", BatchType: BatchNew})
	assert.Equal(t, []string{"100", "99", "98", "97", "96", "95", "90"}, lts(got))
	// known is left untouched for new batches
	assert.Equal(t, []string{"100", "99", "98", "97", "90"}, lts(known))
}

func TestMergeTransactions_NewBatchNewerThanEverything(t *testing.T) {
	known := txs("10", "9")
	got := MergeTransactions(known, txs("12", "11"), TransactionsBatchInfo{MinLt: "11", MaxLt: "12", BatchType: BatchNew})
	assert.Equal(t, []string{"12", "11", "10", "9"}, lts(got))
}

func TestMergeTransactions_NumericComparison(t *testing.T) {
	// "9" sorts after "10" as a string but is numerically smaller
	known := txs("100", "9")
	got := MergeTransactions(known, txs("50"), TransactionsBatchInfo{MinLt: "50", MaxLt: "50", BatchType: BatchNew})
	assert.Equal(t, []string{"100", "50", "9"}, lts(got))
}

func TestMergeTransactions_DoesNotDeduplicate(t *testing.T) {
	known := txs("20", "10")
	got := MergeTransactions(known, txs("10"), TransactionsBatchInfo{MinLt: "10", MaxLt: "10", BatchType: BatchOld})
	assert.Equal(t, []string{"20", "10", "10"}, lts(got))
}

func TestCompareLt(t *testing.T) {
	assert.Equal(t, 0, CompareLt("42", "42"))
	assert.Equal(t, -1, CompareLt("9", "10"))
	assert.Equal(t, 1, CompareLt("100", "99"))
	assert.Equal(t, 0, CompareLt("007", "7"))
	assert.Equal(t, -1, CompareLt("18446744073709551615", "18446744073709551616"))
}
