package slippage

import (
	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
)

// Kind distinguishes entry and exit fills.
type Kind string

const (
	KindEntry Kind = "ENTRY"
	KindExit  Kind = "EXIT"
)

// Event is one applied slippage.
type Event struct {
	TimestampMs int64
	Side        domain.Side
	Kind        Kind
	Rate        decimal.Decimal
}

// Stats summarizes recent events for calibration reports.
type Stats struct {
	Average     decimal.Decimal `json:"average_pct"`
	BuyAverage  decimal.Decimal `json:"buy_avg_pct"`
	SellAverage decimal.Decimal `json:"sell_avg_pct"`
	EntryCount  int             `json:"entry_count"`
	ExitCount   int             `json:"exit_count"`
	TotalCount  int             `json:"total_count"`
}

// History is a bounded log of slippage events, oldest dropped first.
type History struct {
	max    int
	events []Event
}

// NewHistory creates a History keeping at most size events (unbounded if size <= 0).
func NewHistory(size int) *History {
	return &History{max: size}
}

// Add appends e.
func (h *History) Add(e Event) {
	h.events = append(h.events, e)
	if h.max > 0 && len(h.events) > h.max {
		h.events = h.events[len(h.events)-h.max:]
	}
}

// Len returns the number of retained events.
func (h *History) Len() int {
	return len(h.events)
}

// Events returns a copy of the retained events.
func (h *History) Events() []Event {
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

// Stats summarizes the last period events (all if period <= 0).
func (h *History) Stats(period int) Stats {
	recent := h.events
	if period > 0 && len(recent) > period {
		recent = recent[len(recent)-period:]
	}
	var st Stats
	if len(recent) == 0 {
		return st
	}

	sum, buySum, sellSum := decimal.Zero, decimal.Zero, decimal.Zero
	var buys, sells int64
	for _, e := range recent {
		sum = sum.Add(e.Rate)
		switch e.Side {
		case domain.SideBuy:
			buySum = buySum.Add(e.Rate)
			buys++
		case domain.SideSell:
			sellSum = sellSum.Add(e.Rate)
			sells++
		}
		if e.Kind == KindEntry {
			st.EntryCount++
		} else {
			st.ExitCount++
		}
	}
	st.TotalCount = len(recent)
	st.Average = sum.Div(decimal.NewFromInt(int64(len(recent))))
	if buys > 0 {
		st.BuyAverage = buySum.Div(decimal.NewFromInt(buys))
	}
	if sells > 0 {
		st.SellAverage = sellSum.Div(decimal.NewFromInt(sells))
	}
	return st
}

// maxDeviation is the relative error above which an assumption is flagged.
var maxDeviation = decimal.RequireFromString("0.5")

// ValidateAssumption compares an assumed slippage to an observed one.
// It returns the relative deviation and whether it stays within 50%.
func ValidateAssumption(expected, actual decimal.Decimal) (deviation decimal.Decimal, ok bool) {
	if expected.IsZero() {
		return decimal.Zero, actual.IsZero()
	}
	deviation = actual.Sub(expected).Abs().Div(expected.Abs())
	return deviation, !deviation.GreaterThan(maxDeviation)
}
