package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Timeframe identifies the bar interval of a series.
type Timeframe string

// Supported timeframes.
const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
)

// DurationMs returns the bar interval in milliseconds, 0 if unknown.
func (tf Timeframe) DurationMs() int64 {
	switch tf {
	case Timeframe1m:
		return 60_000
	case Timeframe5m:
		return 300_000
	case Timeframe15m:
		return 900_000
	case Timeframe1h:
		return 3_600_000
	default:
		return 0
	}
}

// ErrInvalidBar is returned when a bar violates OHLCV invariants.
var ErrInvalidBar = errors.New("invalid bar")

// Bar is an immutable OHLCV record.
// Bars of one series are unique per timestamp and ordered ascending.
type Bar struct {
	TimestampMs int64           // bar open time (ms)
	Open        decimal.Decimal // first trade price
	High        decimal.Decimal // highest trade price
	Low         decimal.Decimal // lowest trade price
	Close       decimal.Decimal // last trade price
	Volume      decimal.Decimal // base asset volume
}

// Validate checks high >= max(open, close), low <= min(open, close), volume > 0.
func (b Bar) Validate() error {
	if b.High.LessThan(decimal.Max(b.Open, b.Close)) {
		return fmt.Errorf("%w: high %s below body at %d", ErrInvalidBar, b.High, b.TimestampMs)
	}
	if b.Low.GreaterThan(decimal.Min(b.Open, b.Close)) {
		return fmt.Errorf("%w: low %s above body at %d", ErrInvalidBar, b.Low, b.TimestampMs)
	}
	if !b.Volume.IsPositive() {
		return fmt.Errorf("%w: non-positive volume at %d", ErrInvalidBar, b.TimestampMs)
	}
	return nil
}

// Range returns high - low.
func (b Bar) Range() decimal.Decimal {
	return b.High.Sub(b.Low)
}
