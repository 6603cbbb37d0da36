// Package sizing converts capital, stop distance and signal context into an
// exchange-valid order quantity.
package sizing

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
)

// ErrSizeRejected is returned when no valid quantity exists.
var ErrSizeRejected = errors.New("size rejected")

// Rejection reasons.
const (
	ReasonInvalidInput   = "invalid input"
	ReasonBelowMinQty    = "below min qty"
	ReasonBelowNotional  = "below min notional"
	ReasonBelowMinValue  = "below min position value"
	ReasonAboveMaxValue  = "above max position value"
	ReasonNonPositiveQty = "non-positive quantity"
)

// ErrUnknownMethod is returned by ParseMethod.
var ErrUnknownMethod = errors.New("unknown sizing method")

// Method selects how Size derives the raw quantity.
type Method string

const (
	// MethodRisk risks base risk x multipliers of capital on the stop distance.
	MethodRisk Method = "risk"
	// MethodKelly sizes with the Kelly fraction of the run's closed trades
	// and falls back to MethodRisk while the history cannot support it.
	MethodKelly Method = "kelly"
	// MethodVolatility scales the risk quantity by current ATR against its
	// average.
	MethodVolatility Method = "volatility"
)

// ParseMethod maps a config name to a Method. Empty means MethodRisk.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case "":
		return MethodRisk, nil
	case MethodRisk, MethodKelly, MethodVolatility:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// TradeStats summarizes the closed trades a Kelly estimate is drawn from.
type TradeStats struct {
	Trades  int
	WinRate float64
	AvgWin  decimal.Decimal
	AvgLoss decimal.Decimal
}

// Request describes one sizing decision.
type Request struct {
	Capital     decimal.Decimal
	Entry       decimal.Decimal
	StopLoss    decimal.Decimal
	Strength    float64
	VolumeRatio float64
	Regime      domain.Regime

	Method Method
	Stats  TradeStats // MethodKelly
	ATR    float64    // MethodVolatility, latest value
	AvgATR float64    // MethodVolatility, average over the window
}

// Sizer computes risk-based quantities. It holds no mutable state.
type Sizer struct {
	risk    domain.RiskParameters
	filters domain.SymbolFilters
	logger  zerolog.Logger
}

// New creates a Sizer.
func New(risk domain.RiskParameters, filters domain.SymbolFilters, logger zerolog.Logger) *Sizer {
	return &Sizer{
		risk:    risk,
		filters: filters,
		logger:  logger.With().Str("component", "sizing").Logger(),
	}
}

// Filters returns the symbol filters in use.
func (s *Sizer) Filters() domain.SymbolFilters {
	return s.filters
}

// Risk returns base risk x multiplier clamped to [min, max].
func (s *Sizer) Risk(strength, volumeRatio float64, r domain.Regime) decimal.Decimal {
	risk := s.risk.BaseRisk.Mul(RiskMultiplier(strength, volumeRatio, r))
	if risk.GreaterThan(s.risk.MaxRisk) {
		risk = s.risk.MaxRisk
	}
	if risk.LessThan(s.risk.MinRisk) {
		risk = s.risk.MinRisk
	}
	return risk
}

// Size returns the quantity for req, or an error wrapping ErrSizeRejected.
// Every method rounds down to the step size and passes the same exchange
// and position value checks. Positions above the max value are clamped
// rather than rejected.
func (s *Sizer) Size(req Request) (decimal.Decimal, error) {
	if !req.Capital.IsPositive() || !req.Entry.IsPositive() || req.StopLoss.Equal(req.Entry) {
		return decimal.Zero, rejected(ReasonInvalidInput, "capital=%s entry=%s sl=%s", req.Capital, req.Entry, req.StopLoss)
	}

	risk := s.Risk(req.Strength, req.VolumeRatio, req.Regime)
	dist := req.Entry.Sub(req.StopLoss).Abs()
	qty := req.Capital.Mul(risk).Div(dist).Div(req.Entry)
	method := MethodRisk

	switch req.Method {
	case MethodKelly:
		kq, fraction, ok := Kelly(KellyInput{
			Capital:  req.Capital,
			WinRate:  req.Stats.WinRate,
			AvgWin:   req.Stats.AvgWin,
			AvgLoss:  req.Stats.AvgLoss,
			Entry:    req.Entry,
			StopLoss: req.StopLoss,
		})
		if ok {
			qty, risk, method = kq, fraction, MethodKelly
		}
	case MethodVolatility:
		qty = VolatilityAdjusted(qty, req.ATR, req.AvgATR)
		method = MethodVolatility
	}

	qty, err := s.finalize(RoundDown(qty, s.filters.StepSize), req.Entry)
	if err != nil {
		return decimal.Zero, err
	}

	s.logger.Debug().
		Str("qty", qty.String()).
		Str("method", string(method)).
		Str("risk", risk.String()).
		Float64("strength", req.Strength).
		Float64("volume_ratio", req.VolumeRatio).
		Str("regime", string(req.Regime)).
		Msg("position sized")
	return qty, nil
}

// finalize applies the exchange minimums and the position value band to a
// step-rounded quantity.
func (s *Sizer) finalize(qty, entry decimal.Decimal) (decimal.Decimal, error) {
	if qty.LessThan(s.filters.MinQty) || !qty.IsPositive() {
		return decimal.Zero, rejected(ReasonBelowMinQty, "qty=%s min=%s", qty, s.filters.MinQty)
	}
	value := qty.Mul(entry)
	if value.LessThan(s.filters.MinNotional) {
		return decimal.Zero, rejected(ReasonBelowNotional, "notional=%s min=%s", value, s.filters.MinNotional)
	}
	if value.LessThan(s.risk.MinPositionValue) {
		return decimal.Zero, rejected(ReasonBelowMinValue, "value=%s min=%s", value, s.risk.MinPositionValue)
	}
	if value.GreaterThan(s.risk.MaxPositionValue) {
		qty = RoundDown(s.risk.MaxPositionValue.Div(entry), s.filters.StepSize)
		s.logger.Debug().Str("qty", qty.String()).Msg("clamped to max position value")
		if !qty.IsPositive() {
			return decimal.Zero, rejected(ReasonNonPositiveQty, "max value %s below one step", s.risk.MaxPositionValue)
		}
	}
	return qty, nil
}

// ValidateSize re-checks an existing quantity against filters and limits.
// Unlike Size, a value above the max is an error.
func (s *Sizer) ValidateSize(qty, entry decimal.Decimal) error {
	if qty.LessThan(s.filters.MinQty) {
		return rejected(ReasonBelowMinQty, "qty=%s min=%s", qty, s.filters.MinQty)
	}
	value := qty.Mul(entry)
	if value.LessThan(s.filters.MinNotional) {
		return rejected(ReasonBelowNotional, "notional=%s min=%s", value, s.filters.MinNotional)
	}
	if value.LessThan(s.risk.MinPositionValue) {
		return rejected(ReasonBelowMinValue, "value=%s min=%s", value, s.risk.MinPositionValue)
	}
	if value.GreaterThan(s.risk.MaxPositionValue) {
		return rejected(ReasonAboveMaxValue, "value=%s max=%s", value, s.risk.MaxPositionValue)
	}
	return nil
}

func rejected(reason, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrSizeRejected, reason, fmt.Sprintf(format, args...))
}
