package domain

import "fmt"

// Regime labels the current market state.
type Regime string

// Regime values.
const (
	RegimeTrendingUp      Regime = "TRENDING_UP"
	RegimeTrendingDown    Regime = "TRENDING_DOWN"
	RegimeRanging         Regime = "RANGING"
	RegimeHighVolatility  Regime = "HIGH_VOLATILITY"
	RegimeBreakoutForming Regime = "BREAKOUT_FORMING"
)

// AllRegimes lists every regime in declaration order.
var AllRegimes = []Regime{
	RegimeTrendingUp,
	RegimeTrendingDown,
	RegimeRanging,
	RegimeHighVolatility,
	RegimeBreakoutForming,
}

// IsTradeable reports whether new entries are allowed in this regime.
// HighVolatility and BreakoutForming only suppress entries; open positions
// keep being monitored.
func (r Regime) IsTradeable() bool {
	switch r {
	case RegimeTrendingUp, RegimeTrendingDown, RegimeRanging:
		return true
	default:
		return false
	}
}

// IsTrending reports whether r is one of the directional regimes.
func (r Regime) IsTrending() bool {
	return r == RegimeTrendingUp || r == RegimeTrendingDown
}

// ParseRegime converts a label into a Regime.
func ParseRegime(s string) (Regime, error) {
	for _, r := range AllRegimes {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown regime %q", s)
}
