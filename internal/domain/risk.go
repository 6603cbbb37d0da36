package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidRiskParameters is returned by RiskParameters.Validate.
var ErrInvalidRiskParameters = errors.New("invalid risk parameters")

// TakeProfitLevels is the number of take-profit tiers.
const TakeProfitLevels = 3

// RiskParameters is the immutable risk configuration of a run.
type RiskParameters struct {
	BaseRisk         decimal.Decimal // fraction of capital risked per trade
	MinRisk          decimal.Decimal
	MaxRisk          decimal.Decimal
	MaxTotalExposure decimal.Decimal // fraction of capital across open positions
	MaxPositions     int

	// TPDistances are fractions of the full take-profit distance (TP3 = 1.0).
	TPDistances [TakeProfitLevels]decimal.Decimal
	// TPExitRatios are fractions of the entry quantity closed at each tier.
	TPExitRatios [TakeProfitLevels]decimal.Decimal

	MaxDrawdown       decimal.Decimal // kill-switch threshold, fraction of peak equity
	MinSignalStrength float64
	MinPositionValue  decimal.Decimal // quote currency
	MaxPositionValue  decimal.Decimal // quote currency
}

// DefaultRiskParameters returns the stock scalping configuration.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		BaseRisk:         decimal.RequireFromString("0.02"),
		MinRisk:          decimal.RequireFromString("0.015"),
		MaxRisk:          decimal.RequireFromString("0.03"),
		MaxTotalExposure: decimal.RequireFromString("0.10"),
		MaxPositions:     3,
		TPDistances: [TakeProfitLevels]decimal.Decimal{
			decimal.RequireFromString("0.5"),
			decimal.RequireFromString("0.75"),
			decimal.RequireFromString("1.0"),
		},
		TPExitRatios: [TakeProfitLevels]decimal.Decimal{
			decimal.RequireFromString("0.3"),
			decimal.RequireFromString("0.4"),
			decimal.RequireFromString("0.3"),
		},
		MaxDrawdown:       decimal.RequireFromString("0.15"),
		MinSignalStrength: 0.25,
		MinPositionValue:  decimal.NewFromInt(15),
		MaxPositionValue:  decimal.NewFromInt(5000),
	}
}

// Validate checks ordering and sum constraints.
func (p RiskParameters) Validate() error {
	if !p.MinRisk.IsPositive() || p.MinRisk.GreaterThan(p.BaseRisk) || p.BaseRisk.GreaterThan(p.MaxRisk) {
		return fmt.Errorf("%w: require 0 < min_risk <= base_risk <= max_risk", ErrInvalidRiskParameters)
	}
	if p.MaxRisk.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: max_risk must be below 1", ErrInvalidRiskParameters)
	}
	sum := decimal.Zero
	prev := decimal.Zero
	for i := 0; i < TakeProfitLevels; i++ {
		if !p.TPDistances[i].GreaterThan(prev) {
			return fmt.Errorf("%w: tp distances must strictly increase", ErrInvalidRiskParameters)
		}
		prev = p.TPDistances[i]
		if p.TPExitRatios[i].IsNegative() {
			return fmt.Errorf("%w: negative tp exit ratio", ErrInvalidRiskParameters)
		}
		sum = sum.Add(p.TPExitRatios[i])
	}
	if !sum.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: tp exit ratios sum to %s, want 1", ErrInvalidRiskParameters, sum)
	}
	if !p.MaxDrawdown.IsPositive() || p.MaxDrawdown.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: max_drawdown must be in (0,1)", ErrInvalidRiskParameters)
	}
	if p.MaxPositionValue.LessThan(p.MinPositionValue) {
		return fmt.Errorf("%w: max position value below min", ErrInvalidRiskParameters)
	}
	return nil
}

// SymbolFilters are the exchange trading constraints of a symbol.
type SymbolFilters struct {
	TickSize    decimal.Decimal // price increment
	StepSize    decimal.Decimal // quantity increment
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal // quote currency
}

// DefaultSymbolFilters returns filters typical of a USDT spot pair.
func DefaultSymbolFilters() SymbolFilters {
	return SymbolFilters{
		TickSize:    decimal.RequireFromString("0.01"),
		StepSize:    decimal.RequireFromString("0.001"),
		MinQty:      decimal.RequireFromString("0.001"),
		MinNotional: decimal.NewFromInt(5),
	}
}
