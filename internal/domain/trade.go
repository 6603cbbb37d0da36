package domain

import "github.com/shopspring/decimal"

// TradeLog is the immutable record of a fully closed position.
// PnL sums every partial leg and the final leg.
type TradeLog struct {
	TradeID        string          `json:"trade_id"` // deterministic hash
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	EntryTimeMs    int64           `json:"entry_time_ms"`
	EntryPrice     decimal.Decimal `json:"entry_price"`
	EntryQuantity  decimal.Decimal `json:"entry_quantity"`
	StopLoss       decimal.Decimal `json:"stop_loss"` // initial stop
	TakeProfit     decimal.Decimal `json:"take_profit"`
	ExitTimeMs     int64           `json:"exit_time_ms"`
	ExitPrice      decimal.Decimal `json:"exit_price"`    // final leg
	ExitQuantity   decimal.Decimal `json:"exit_quantity"` // final leg
	ExitReason     string          `json:"exit_reason"`
	PnL            decimal.Decimal `json:"pnl"`
	PnLPct         decimal.Decimal `json:"pnl_pct"` // pnl / (entry_price * entry_quantity) * 100
	DurationMs     int64           `json:"duration_ms"`
	SignalStrength float64         `json:"signal_strength"`
	Regime         Regime          `json:"regime"`
	Winning        bool            `json:"winning"`
	Legs           []ExitLeg       `json:"legs"`
}

// EquitySample is appended once per processed bar.
type EquitySample struct {
	TimestampMs int64           `json:"timestamp_ms"`
	Equity      decimal.Decimal `json:"equity"`  // capital + unrealized
	Capital     decimal.Decimal `json:"capital"` // initial + realized
	PeakEquity  decimal.Decimal `json:"peak_equity"`
	Drawdown    decimal.Decimal `json:"drawdown"` // (peak - equity) / peak
	Regime      Regime          `json:"regime"`
}

// Severity of an ErrorRecord.
const (
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
)

// ErrorRecord is a structured bar-level failure attached to a Result.
type ErrorRecord struct {
	TimestampMs int64  `json:"timestamp_ms"`
	Kind        string `json:"type"`
	Message     string `json:"message"`
	Severity    string `json:"severity"`
}
