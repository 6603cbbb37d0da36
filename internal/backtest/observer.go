package backtest

import (
	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
)

// EventKind labels an engine event.
type EventKind string

// Event kinds.
const (
	EventEntry          EventKind = "entry"
	EventPartialExit    EventKind = "partial_exit"
	EventRejected       EventKind = "rejected"
	EventSuppressed     EventKind = "suppressed" // signal in a non-tradeable regime
	EventKillSwitch     EventKind = "kill_switch"
	EventCircuitBreaker EventKind = "circuit_breaker"
	EventError          EventKind = "error"
)

// Event is a notable engine step other than a closed trade or an equity sample.
type Event struct {
	RunID       string          `json:"run_id"`
	Symbol      string          `json:"symbol"`
	TimestampMs int64           `json:"timestamp_ms"`
	Kind        EventKind       `json:"kind"`
	Side        domain.Side     `json:"side,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Regime      domain.Regime   `json:"regime,omitempty"`
}

// Observer receives engine output as it is produced. Calls happen on the
// engine goroutine; implementations shared across engines must be safe for
// concurrent use.
type Observer interface {
	OnTrade(runID string, t domain.TradeLog)
	OnEquity(runID, symbol string, s domain.EquitySample)
	OnEvent(e Event)
}

// Observers fans out to every member.
type Observers []Observer

func (o Observers) OnTrade(runID string, t domain.TradeLog) {
	for _, ob := range o {
		ob.OnTrade(runID, t)
	}
}

func (o Observers) OnEquity(runID, symbol string, s domain.EquitySample) {
	for _, ob := range o {
		ob.OnEquity(runID, symbol, s)
	}
}

func (o Observers) OnEvent(e Event) {
	for _, ob := range o {
		ob.OnEvent(e)
	}
}

type nopObserver struct{}

func (nopObserver) OnTrade(string, domain.TradeLog) {}

func (nopObserver) OnEquity(string, string, domain.EquitySample) {}

func (nopObserver) OnEvent(Event) {}
