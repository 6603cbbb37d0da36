package domain

import "github.com/shopspring/decimal"

// Result is the output contract consumed by renderers.
// Rates and drawdown are fractions; TotalReturnPct is a percentage.
type Result struct {
	RunID  string `json:"run_id"`
	Symbol string `json:"symbol"`

	TotalTrades    int             `json:"total_trades"`
	WinningTrades  int             `json:"winning_trades"`
	LosingTrades   int             `json:"losing_trades"`
	WinRate        float64         `json:"win_rate"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	AvgWin         decimal.Decimal `json:"avg_win"`
	AvgLoss        decimal.Decimal `json:"avg_loss"`
	ProfitFactor   float64         `json:"profit_factor"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalCapital   decimal.Decimal `json:"final_capital"`
	TotalReturnPct float64         `json:"total_return_pct"`
	SharpeRatio    float64         `json:"sharpe_ratio"`
	MaxDrawdown    float64         `json:"max_drawdown"`

	Trades      []TradeLog     `json:"trades"`
	EquityCurve []EquitySample `json:"equity_curve"`

	Breakdown Breakdown `json:"breakdown"`

	Errors            []ErrorRecord `json:"errors"`
	StoppedByDrawdown bool          `json:"stopped_by_drawdown"`
	BarsProcessed     int           `json:"bars_processed"`
}

// Breakdown holds secondary statistics derived from the trade log.
type Breakdown struct {
	Long                 Bucket            `json:"long"`
	Short                Bucket            `json:"short"`
	ByStrength           map[string]Bucket `json:"by_strength"` // cumulative: strength >= tier floor
	LargestWin           decimal.Decimal   `json:"largest_win"`
	LargestLoss          decimal.Decimal   `json:"largest_loss"`
	AvgDurationMs        int64             `json:"avg_duration_ms"`
	MaxConsecutiveLosses int               `json:"max_consecutive_losses"`
	PnLPctP10            float64           `json:"pnl_pct_p10"`
	PnLPctMedian         float64           `json:"pnl_pct_median"`
	PnLPctP90            float64           `json:"pnl_pct_p90"`
}

// Bucket summarizes a subset of trades.
type Bucket struct {
	Trades  int             `json:"trades"`
	WinRate float64         `json:"win_rate"`
	AvgPnL  decimal.Decimal `json:"avg_pnl"`
}
