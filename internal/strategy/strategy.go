// Package strategy holds the sub-strategies voted on by the signal ensemble.
//
// Each sub-strategy turns one timeframe's history into a (side, strength)
// vote. The ensemble treats votes as opaque.
package strategy

import (
	"errors"
	"fmt"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/indicators"
)

// ErrInsufficientBars is returned when a series is shorter than a
// strategy's warm-up.
var ErrInsufficientBars = errors.New("insufficient bars")

// SubStrategy votes on one timeframe.
type SubStrategy interface {
	// Name returns the registry name, e.g. "ema_vwap".
	Name() string

	// Evaluate returns the vote for the last bar of s.
	// A zero Vote (SideNone) means no opinion.
	Evaluate(s indicators.Series) (domain.Vote, error)
}

// noVote is returned when conditions are not met.
var noVote = domain.Vote{Side: domain.SideNone}

func vote(side domain.Side, strength float64) domain.Vote {
	return domain.Vote{Side: side, Strength: clamp01(strength)}
}

func requireBars(name string, s indicators.Series, n int) error {
	if s.Len() < n {
		return fmt.Errorf("%s: %w (have %d, need %d)", name, ErrInsufficientBars, s.Len(), n)
	}
	return nil
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// window returns the last n values of x (or all of x if shorter).
func window(x []float64, n int) []float64 {
	if len(x) <= n {
		return x
	}
	return x[len(x)-n:]
}

func maxOf(x []float64) float64 {
	m := x[0]
	for _, v := range x[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(x []float64) float64 {
	m := x[0]
	for _, v := range x[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
