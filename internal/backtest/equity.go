package backtest

import "github.com/shopspring/decimal"

// drawdownTracker keeps the running peak equity and flags breaches of the
// drawdown limit. The peak never decreases.
type drawdownTracker struct {
	peak  decimal.Decimal
	limit decimal.Decimal
}

func newDrawdownTracker(initial, limit decimal.Decimal) *drawdownTracker {
	return &drawdownTracker{peak: initial, limit: limit}
}

// observe folds equity into the peak and returns (peak - equity) / peak
// and whether it exceeds the limit.
func (t *drawdownTracker) observe(equity decimal.Decimal) (decimal.Decimal, bool) {
	if equity.GreaterThan(t.peak) {
		t.peak = equity
	}
	if !t.peak.IsPositive() {
		return decimal.Zero, false
	}
	dd := t.peak.Sub(equity).Div(t.peak)
	return dd, dd.GreaterThan(t.limit)
}
