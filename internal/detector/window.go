package detector

import (
	"fraud_detector/internal/domain"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RollingSum computes, for every transaction, the total Amount of all
// transactions that share the same key and whose timestamps lie in the
// trailing window (t-window, t], where t is the transaction's own timestamp.
// Transactions carrying exactly the same timestamp are counted together
// whichever order they appear in. The result is aligned with the input slice.
//
// Each group costs one sort plus a single two-pointer pass, so a batch is
// processed in O(n log n) regardless of window width.
func RollingSum(txs []domain.Transaction, window time.Duration, key func(domain.Transaction) string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(txs))

	for _, idx := range groupByKey(txs, key) {
		sortByTimestamp(txs, idx)

		var sum decimal.Decimal
		lo, hi := 0, 0
		for _, i := range idx {
			t := txs[i].Timestamp
			for hi < len(idx) && !txs[idx[hi]].Timestamp.After(t) {
				sum = sum.Add(txs[idx[hi]].Amount)
				hi++
			}
			cutoff := t.Add(-window)
			for lo < hi && !txs[idx[lo]].Timestamp.After(cutoff) {
				sum = sum.Sub(txs[idx[lo]].Amount)
				lo++
			}
			out[i] = sum
		}
	}

	return out
}

// RollingCount is RollingSum's counting counterpart: for every transaction it
// reports how many same-key transactions fall inside the trailing window
// (t-window, t], the transaction itself included.
func RollingCount(txs []domain.Transaction, window time.Duration, key func(domain.Transaction) string) []int {
	out := make([]int, len(txs))

	for _, idx := range groupByKey(txs, key) {
		sortByTimestamp(txs, idx)

		lo, hi := 0, 0
		for _, i := range idx {
			t := txs[i].Timestamp
			for hi < len(idx) && !txs[idx[hi]].Timestamp.After(t) {
				hi++
			}
			cutoff := t.Add(-window)
			for lo < hi && !txs[idx[lo]].Timestamp.After(cutoff) {
				lo++
			}
			out[i] = hi - lo
		}
	}

	return out
}

func groupByKey(txs []domain.Transaction, key func(domain.Transaction) string) map[string][]int {
	groups := make(map[string][]int)
	for i, tx := range txs {
		k := key(tx)
		groups[k] = append(groups[k], i)
	}
	return groups
}

func sortByTimestamp(txs []domain.Transaction, idx []int) {
	sort.SliceStable(idx, func(a, b int) bool {
		return txs[idx[a]].Timestamp.Before(txs[idx[b]].Timestamp)
	})
}
