package backtest

import (
	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/sizing"
)

// Config is the immutable engine configuration of a run.
type Config struct {
	FastTimeframe domain.Timeframe `json:"fast_timeframe"`
	SlowTimeframe domain.Timeframe `json:"slow_timeframe"`

	InitialCapital decimal.Decimal `json:"initial_capital"`
	MaxDrawdown    decimal.Decimal `json:"max_drawdown"` // kill-switch, fraction of peak equity

	WarmupBars     int `json:"warmup_bars"`      // first fast index processed
	MinFastBars    int `json:"min_fast_bars"`    // run aborts below this
	MinSlowBars    int `json:"min_slow_bars"`    // run aborts below this
	MinSlowHistory int `json:"min_slow_history"` // bar skipped while fewer slow bars have closed
	HistoryWindow  int `json:"history_window"`   // bars handed to models per timeframe, 0 = all

	MinRewardRisk   decimal.Decimal `json:"min_reward_risk"`
	MinStopDistance decimal.Decimal `json:"min_stop_distance"` // fraction of entry
	VolumePeriod    int             `json:"volume_period"`

	SizingMethod   sizing.Method `json:"sizing_method"`
	KellyMinTrades int           `json:"kelly_min_trades"` // closed trades before Kelly replaces risk sizing
	ATRPeriod      int           `json:"atr_period"`       // volatility sizing

	// MaxConsecutiveLosses suppresses entries for the rest of the run after
	// that many losing trades in a row. 0 disables the breaker.
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`
}

// DefaultConfig returns the stock 5m/15m configuration.
func DefaultConfig() Config {
	return Config{
		FastTimeframe:        domain.Timeframe5m,
		SlowTimeframe:        domain.Timeframe15m,
		InitialCapital:       decimal.NewFromInt(10000),
		MaxDrawdown:          domain.DefaultRiskParameters().MaxDrawdown,
		WarmupBars:           100,
		MinFastBars:          50,
		MinSlowBars:          10,
		MinSlowHistory:       50,
		HistoryWindow:        300,
		MinRewardRisk:        decimal.NewFromInt(1),
		MinStopDistance:      decimal.RequireFromString("0.002"),
		VolumePeriod:         20,
		SizingMethod:         sizing.MethodRisk,
		KellyMinTrades:       20,
		ATRPeriod:            14,
		MaxConsecutiveLosses: 5,
	}
}
