package sizing

import (
	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
)

var (
	one = decimal.NewFromInt(1)

	strengthVeryStrong = decimal.RequireFromString("1.5")
	strengthStrong     = decimal.RequireFromString("1.25")
	strengthWeak       = decimal.RequireFromString("0.75")

	volumeVeryHigh = decimal.RequireFromString("1.15")
	volumeHigh     = decimal.RequireFromString("1.1")
	volumeLow      = decimal.RequireFromString("0.8")
	volumeVeryLow  = decimal.RequireFromString("0.6")

	regimeTrend    = decimal.RequireFromString("1.1")
	regimeHighVol  = decimal.RequireFromString("0.8")
	regimeBreakout = decimal.RequireFromString("0.7")
)

// RiskMultiplier is the product of the strength, volume and regime tiers.
func RiskMultiplier(strength, volumeRatio float64, r domain.Regime) decimal.Decimal {
	return StrengthMultiplier(strength).
		Mul(VolumeMultiplier(volumeRatio)).
		Mul(RegimeMultiplier(r))
}

// StrengthMultiplier rewards strong signals.
func StrengthMultiplier(strength float64) decimal.Decimal {
	switch {
	case strength >= 0.8:
		return strengthVeryStrong
	case strength >= 0.6:
		return strengthStrong
	case strength >= 0.4:
		return one
	default:
		return strengthWeak
	}
}

// VolumeMultiplier penalizes illiquid bars instead of rejecting them.
func VolumeMultiplier(ratio float64) decimal.Decimal {
	switch {
	case ratio >= 1.5:
		return volumeVeryHigh
	case ratio >= 1.2:
		return volumeHigh
	case ratio >= 0.8:
		return one
	case ratio >= 0.5:
		return volumeLow
	default:
		return volumeVeryLow
	}
}

// RegimeMultiplier favors trends and cuts risk in uncertain regimes.
func RegimeMultiplier(r domain.Regime) decimal.Decimal {
	switch {
	case r.IsTrending():
		return regimeTrend
	case r == domain.RegimeHighVolatility:
		return regimeHighVol
	case r == domain.RegimeBreakoutForming:
		return regimeBreakout
	default:
		return one
	}
}
