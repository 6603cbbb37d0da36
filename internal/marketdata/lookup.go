package marketdata

import (
	"sort"

	"scalping-backtest-lab/internal/domain"
)

// SlowUpTo returns how many slow bars have closed by closeMs, i.e. the
// prefix slow[:n] visible to a decision taken at closeMs. Bars are sorted;
// a slow bar opened at T closes at T + intervalMs.
func SlowUpTo(slow []domain.Bar, closeMs, intervalMs int64) int {
	return sort.Search(len(slow), func(i int) bool {
		return slow[i].TimestampMs+intervalMs > closeMs
	})
}
