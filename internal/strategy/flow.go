package strategy

import (
	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/indicators"
)

// LiquiditySweep votes against a wick that swept the prior range and closed
// back inside it.
type LiquiditySweep struct {
	Lookback  int
	WickRatio float64
}

// NewLiquiditySweep creates a 20-bar sweep detector.
func NewLiquiditySweep() *LiquiditySweep {
	return &LiquiditySweep{Lookback: 20, WickRatio: 0.3}
}

// Name implements SubStrategy.
func (s *LiquiditySweep) Name() string { return NameLiquidity }

// Evaluate implements SubStrategy.
func (s *LiquiditySweep) Evaluate(series indicators.Series) (domain.Vote, error) {
	if err := requireBars(s.Name(), series, s.Lookback+1); err != nil {
		return noVote, err
	}
	n := series.Len() - 1
	open, high, low, close := series.Open[n], series.High[n], series.Low[n], series.Close[n]
	rng := high - low
	if rng == 0 {
		return noVote, nil
	}
	prevLow := minOf(series.Low[n-s.Lookback : n])
	prevHigh := maxOf(series.High[n-s.Lookback : n])
	bodyLow, bodyHigh := open, close
	if bodyLow > bodyHigh {
		bodyLow, bodyHigh = bodyHigh, bodyLow
	}
	lowerWick := (bodyLow - low) / rng
	upperWick := (high - bodyHigh) / rng
	volBoost := indicators.VolumeRatio(series.Volume, s.Lookback) / 4

	if low < prevLow && close > prevLow && lowerWick > s.WickRatio {
		return vote(domain.SideBuy, lowerWick+volBoost), nil
	}
	if high > prevHigh && close < prevHigh && upperWick > s.WickRatio {
		return vote(domain.SideSell, upperWick+volBoost), nil
	}
	return noVote, nil
}

// OrderFlow votes with the recent buy/sell volume imbalance.
type OrderFlow struct {
	Lookback     int
	MinImbalance float64
}

// NewOrderFlow creates a 5-bar imbalance strategy.
func NewOrderFlow() *OrderFlow {
	return &OrderFlow{Lookback: 5, MinImbalance: 0.3}
}

// Name implements SubStrategy.
func (s *OrderFlow) Name() string { return NameOrderFlow }

// Evaluate implements SubStrategy.
func (s *OrderFlow) Evaluate(series indicators.Series) (domain.Vote, error) {
	if err := requireBars(s.Name(), series, s.Lookback); err != nil {
		return noVote, err
	}
	delta := window(indicators.Delta(series), s.Lookback)
	vol := window(series.Volume, s.Lookback)
	var sumDelta, sumVol float64
	for i := range delta {
		sumDelta += delta[i]
		sumVol += vol[i]
	}
	if sumVol == 0 {
		return noVote, nil
	}
	imbalance := sumDelta / sumVol

	switch {
	case imbalance >= s.MinImbalance:
		return vote(domain.SideBuy, imbalance), nil
	case imbalance <= -s.MinImbalance:
		return vote(domain.SideSell, -imbalance), nil
	default:
		return noVote, nil
	}
}
