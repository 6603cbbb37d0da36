// Package slippage turns reference prices into realistic fill prices.
//
// The rate is hourly_base(hour) x volume_multiplier x regime_multiplier,
// clamped to [MinRate, MaxRate]. Fills always move against the trader.
package slippage

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
)

// Config holds the slippage tables.
type Config struct {
	// HourlyBase is the base spread per UTC hour.
	HourlyBase  [24]decimal.Decimal
	DefaultBase decimal.Decimal // used when the hour is unknown
	MinRate     decimal.Decimal
	MaxRate     decimal.Decimal
	HistorySize int
}

// DefaultConfig returns the stock 24-slot liquidity curve: tight during the
// London/NY overlap, wide in the Asian night.
func DefaultConfig() Config {
	base := [24]string{
		"0.008", "0.008", "0.008", "0.007", "0.007", "0.007",
		"0.006", "0.006", "0.005", "0.004", "0.003", "0.003",
		"0.003", "0.004", "0.003", "0.003", "0.003", "0.004",
		"0.004", "0.005", "0.005", "0.006", "0.007", "0.008",
	}
	cfg := Config{
		DefaultBase: decimal.RequireFromString("0.005"),
		MinRate:     decimal.RequireFromString("0.001"),
		MaxRate:     decimal.RequireFromString("0.05"),
		HistorySize: 1000,
	}
	for h, s := range base {
		cfg.HourlyBase[h] = decimal.RequireFromString(s)
	}
	return cfg
}

// NoTimestamp marks a fill without a known time; the default base applies.
const NoTimestamp int64 = -1

var (
	one = decimal.NewFromInt(1)

	volumeMultipliers = []struct {
		min  float64
		mult decimal.Decimal
	}{
		{2.0, decimal.RequireFromString("0.7")},
		{1.5, decimal.RequireFromString("0.8")},
		{1.2, decimal.RequireFromString("0.9")},
		{0.8, decimal.RequireFromString("1.0")},
		{0.5, decimal.RequireFromString("1.3")},
	}
	volumeIlliquid = decimal.RequireFromString("1.8")

	regimeMultipliers = map[domain.Regime]decimal.Decimal{
		domain.RegimeTrendingUp:      decimal.RequireFromString("1.0"),
		domain.RegimeTrendingDown:    decimal.RequireFromString("1.0"),
		domain.RegimeRanging:         decimal.RequireFromString("0.9"),
		domain.RegimeHighVolatility:  decimal.RequireFromString("1.5"),
		domain.RegimeBreakoutForming: decimal.RequireFromString("1.4"),
	}
)

// Model applies slippage and records every application.
// One Model belongs to one engine and is not safe for concurrent use.
type Model struct {
	cfg     Config
	history *History
	logger  zerolog.Logger
}

// New creates a Model.
func New(cfg Config, logger zerolog.Logger) *Model {
	return &Model{
		cfg:     cfg,
		history: NewHistory(cfg.HistorySize),
		logger:  logger.With().Str("component", "slippage").Logger(),
	}
}

// History returns the recorded fills.
func (m *Model) History() *History {
	return m.history
}

// Rate computes the clamped slippage fraction. Pure.
func (m *Model) Rate(volumeRatio float64, r domain.Regime, timestampMs int64) decimal.Decimal {
	rate := m.HourlyBase(timestampMs).
		Mul(VolumeMultiplier(volumeRatio)).
		Mul(RegimeMultiplier(r))
	if rate.LessThan(m.cfg.MinRate) {
		return m.cfg.MinRate
	}
	if rate.GreaterThan(m.cfg.MaxRate) {
		return m.cfg.MaxRate
	}
	return rate
}

// HourlyBase returns the base spread for the UTC hour of timestampMs.
func (m *Model) HourlyBase(timestampMs int64) decimal.Decimal {
	if timestampMs < 0 {
		return m.cfg.DefaultBase
	}
	h := time.UnixMilli(timestampMs).UTC().Hour()
	return m.cfg.HourlyBase[h]
}

// VolumeMultiplier widens the spread as liquidity dries up.
func VolumeMultiplier(ratio float64) decimal.Decimal {
	for _, tier := range volumeMultipliers {
		if ratio >= tier.min {
			return tier.mult
		}
	}
	return volumeIlliquid
}

// RegimeMultiplier returns the regime spread factor, 1.0 if unknown.
func RegimeMultiplier(r domain.Regime) decimal.Decimal {
	if m, ok := regimeMultipliers[r]; ok {
		return m
	}
	return one
}

// Entry returns the fill price for opening a side position: a buy pays
// more, a sell receives less.
func (m *Model) Entry(price decimal.Decimal, side domain.Side, volumeRatio float64, r domain.Regime, timestampMs int64) decimal.Decimal {
	rate := m.Rate(volumeRatio, r, timestampMs)
	fill := price.Mul(one.Add(rate))
	if side == domain.SideSell {
		fill = price.Mul(one.Sub(rate))
	}
	m.record(timestampMs, side, KindEntry, rate, price, fill)
	return fill
}

// Exit returns the fill price for closing a side position: a long sells
// lower, a short buys back higher.
func (m *Model) Exit(price decimal.Decimal, side domain.Side, volumeRatio float64, r domain.Regime, timestampMs int64) decimal.Decimal {
	rate := m.Rate(volumeRatio, r, timestampMs)
	fill := price.Mul(one.Sub(rate))
	if side == domain.SideSell {
		fill = price.Mul(one.Add(rate))
	}
	m.record(timestampMs, side, KindExit, rate, price, fill)
	return fill
}

func (m *Model) record(ts int64, side domain.Side, kind Kind, rate, price, fill decimal.Decimal) {
	m.history.Add(Event{TimestampMs: ts, Side: side, Kind: kind, Rate: rate})
	m.logger.Debug().
		Str("side", string(side)).
		Str("kind", string(kind)).
		Str("rate", rate.String()).
		Str("price", price.String()).
		Str("fill", fill.String()).
		Msg("slippage applied")
}
