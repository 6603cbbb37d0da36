package sizing

import "github.com/shopspring/decimal"

var (
	kellyMax = decimal.RequireFromString("0.25")
	kellyMin = decimal.RequireFromString("0.01")

	volCutSevere = decimal.RequireFromString("0.6")
	volCut       = decimal.RequireFromString("0.8")
	volBoost     = decimal.RequireFromString("1.2")
)

// RoundDown truncates x to a multiple of step. A non-positive step returns x.
func RoundDown(x, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return x
	}
	return x.Div(step).Floor().Mul(step)
}

// RoundToTick rounds price to the nearest multiple of tick.
func RoundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	return price.Div(tick).Round(0).Mul(tick)
}

// KellyInput is the trade history summary Kelly sizing needs.
type KellyInput struct {
	Capital  decimal.Decimal
	WinRate  float64
	AvgWin   decimal.Decimal
	AvgLoss  decimal.Decimal
	Entry    decimal.Decimal
	StopLoss decimal.Decimal
}

// Kelly sizes with the Kelly fraction clamped to [1%, 25%].
// ok is false when the history cannot support a Kelly estimate.
func Kelly(in KellyInput) (qty decimal.Decimal, fraction decimal.Decimal, ok bool) {
	if in.WinRate <= 0 || in.WinRate >= 1 {
		return decimal.Zero, decimal.Zero, false
	}
	avgLoss := in.AvgLoss.Abs()
	dist := in.Entry.Sub(in.StopLoss).Abs()
	if avgLoss.IsZero() || dist.IsZero() || !in.Entry.IsPositive() {
		return decimal.Zero, decimal.Zero, false
	}
	wr := decimal.NewFromFloat(in.WinRate)
	wl := in.AvgWin.Abs().Div(avgLoss)
	if wl.IsZero() {
		return decimal.Zero, decimal.Zero, false
	}

	fraction = wr.Mul(wl).Sub(one.Sub(wr)).Div(wl)
	if fraction.GreaterThan(kellyMax) {
		fraction = kellyMax
	}
	if fraction.LessThan(kellyMin) {
		fraction = kellyMin
	}
	qty = fraction.Mul(in.Capital).Div(in.Entry.Mul(dist))
	return qty, fraction, true
}

// VolatilityAdjusted scales qty down when ATR runs hot relative to its
// average and up when it runs cold.
func VolatilityAdjusted(qty decimal.Decimal, atr, avgATR float64) decimal.Decimal {
	if avgATR == 0 {
		return qty
	}
	ratio := atr / avgATR
	switch {
	case ratio > 2.0:
		return qty.Mul(volCutSevere)
	case ratio > 1.5:
		return qty.Mul(volCut)
	case ratio < 0.5:
		return qty.Mul(volBoost)
	default:
		return qty
	}
}
