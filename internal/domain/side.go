package domain

import "github.com/shopspring/decimal"

// Side is the direction of a signal or position.
type Side string

// Side values. SideNone means no actionable signal.
const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other trading side. SideNone maps to itself.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideNone
	}
}

// Sign returns +1 for BUY, -1 for SELL and 0 otherwise.
// PnL of a leg is (exit - entry) * qty * Sign.
func (s Side) Sign() decimal.Decimal {
	switch s {
	case SideBuy:
		return decimal.NewFromInt(1)
	case SideSell:
		return decimal.NewFromInt(-1)
	default:
		return decimal.Zero
	}
}

// IsValid reports whether s is BUY or SELL.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}
