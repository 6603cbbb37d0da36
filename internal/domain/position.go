package domain

import "github.com/shopspring/decimal"

// Exit reasons. Partial legs carry TP1/TP2, terminal legs close the trade.
const (
	ExitReasonStopLoss      = "Stop Loss"
	ExitReasonTP1           = "TP1"
	ExitReasonTP2           = "TP2"
	ExitReasonTP3           = "TP3"
	ExitReasonEndOfRun      = "End of run"
	ExitReasonDrawdownLimit = "Drawdown limit"
)

// ExitLeg is one fill that reduced a position.
type ExitLeg struct {
	Reason      string          `json:"reason"`
	TimestampMs int64           `json:"timestamp_ms"`
	Price       decimal.Decimal `json:"price"` // after slippage
	Quantity    decimal.Decimal `json:"quantity"`
	PnL         decimal.Decimal `json:"pnl"`
}

// Position is the single live position of an engine.
// Only the position state machine mutates it; callers receive copies.
type Position struct {
	Symbol          string
	Side            Side
	EntryPrice      decimal.Decimal // after slippage
	EntryQuantity   decimal.Decimal
	CurrentQuantity decimal.Decimal // non-increasing, >= 0
	StopLoss        decimal.Decimal // promoted to EntryPrice on TP1
	InitialStopLoss decimal.Decimal
	TakeProfit      decimal.Decimal // equals TP3

	TP1, TP2, TP3          decimal.Decimal
	TP1Hit, TP2Hit, TP3Hit bool

	EntryTimeMs    int64
	SignalStrength float64
	Regime         Regime

	RealizedPnL decimal.Decimal // sum of leg PnL so far
	Legs        []ExitLeg
}

// UnrealizedPnL returns the open PnL of the remaining quantity at price.
func (p Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.EntryPrice).Mul(p.CurrentQuantity).Mul(p.Side.Sign())
}

// ExitedQuantity returns the sum of leg quantities.
func (p Position) ExitedQuantity() decimal.Decimal {
	q := decimal.Zero
	for _, l := range p.Legs {
		q = q.Add(l.Quantity)
	}
	return q
}

// Clone returns a deep copy.
func (p Position) Clone() Position {
	c := p
	c.Legs = append([]ExitLeg(nil), p.Legs...)
	return c
}
