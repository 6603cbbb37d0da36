package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
)

// ValidateTrade checks a setup before entry: stop and target on the
// correct sides of entry, reward/risk at least minRR, and a stop no closer
// than minStopPct of entry. Failures wrap ErrInvalidTradeSetup.
func ValidateTrade(side domain.Side, entry, sl, tp, minRR, minStopPct decimal.Decimal) error {
	if err := checkSides(side, entry, sl, tp); err != nil {
		return err
	}

	risk := entry.Sub(sl).Abs()
	reward := tp.Sub(entry).Abs()
	if !risk.IsPositive() {
		return fmt.Errorf("%w: zero risk", ErrInvalidTradeSetup)
	}
	if rr := reward.Div(risk); rr.LessThan(minRR) {
		return fmt.Errorf("%w: reward/risk %s below %s", ErrInvalidTradeSetup, rr.StringFixed(2), minRR)
	}
	if minDist := entry.Mul(minStopPct); risk.LessThan(minDist) {
		return fmt.Errorf("%w: stop distance %s below %s", ErrInvalidTradeSetup, risk, minDist)
	}
	return nil
}

// checkSides requires sl < entry < tp for a BUY and tp < entry < sl for a SELL.
func checkSides(side domain.Side, entry, sl, tp decimal.Decimal) error {
	switch side {
	case domain.SideBuy:
		if sl.GreaterThanOrEqual(entry) {
			return fmt.Errorf("%w: BUY stop %s at or above entry %s", ErrInvalidTradeSetup, sl, entry)
		}
		if tp.LessThanOrEqual(entry) {
			return fmt.Errorf("%w: BUY target %s at or below entry %s", ErrInvalidTradeSetup, tp, entry)
		}
	case domain.SideSell:
		if sl.LessThanOrEqual(entry) {
			return fmt.Errorf("%w: SELL stop %s at or below entry %s", ErrInvalidTradeSetup, sl, entry)
		}
		if tp.GreaterThanOrEqual(entry) {
			return fmt.Errorf("%w: SELL target %s at or above entry %s", ErrInvalidTradeSetup, tp, entry)
		}
	default:
		return fmt.Errorf("%w: side %q", ErrInvalidTradeSetup, side)
	}
	return nil
}
