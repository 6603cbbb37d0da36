// Package indicators computes technical indicators over bar series.
//
// Indicators work on float64 slices aligned to the input length, with NaN
// during warm-up. They feed signal and regime decisions only; money never
// flows through this package.
package indicators

import (
	"math"

	"scalping-backtest-lab/internal/domain"
)

// Series holds the OHLCV columns of a bar slice.
type Series struct {
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// FromBars extracts float columns from bars.
func FromBars(bars []domain.Bar) Series {
	n := len(bars)
	s := Series{
		Open:   make([]float64, n),
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
	}
	for i, b := range bars {
		s.Open[i] = b.Open.InexactFloat64()
		s.High[i] = b.High.InexactFloat64()
		s.Low[i] = b.Low.InexactFloat64()
		s.Close[i] = b.Close.InexactFloat64()
		s.Volume[i] = b.Volume.InexactFloat64()
	}
	return s
}

// Len returns the number of bars.
func (s Series) Len() int {
	return len(s.Close)
}

// Last returns the final value of x and whether it is usable.
func Last(x []float64) (float64, bool) {
	if len(x) == 0 {
		return 0, false
	}
	v := x[len(x)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// At returns x[len(x)-1-back] and whether it is usable.
func At(x []float64, back int) (float64, bool) {
	i := len(x) - 1 - back
	if i < 0 || i >= len(x) {
		return 0, false
	}
	v := x[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
