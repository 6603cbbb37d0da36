package strategy

import (
	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/indicators"
)

// EMACrossover votes with the EMA9/EMA21 spread, boosted on a fresh cross.
type EMACrossover struct {
	FastPeriod int
	SlowPeriod int
	FullSpread float64 // spread (fraction of price) that maps to strength 1
}

// NewEMACrossover creates an EMACrossover with 9/21 periods.
func NewEMACrossover() *EMACrossover {
	return &EMACrossover{FastPeriod: 9, SlowPeriod: 21, FullSpread: 0.003}
}

// Name implements SubStrategy.
func (s *EMACrossover) Name() string { return NameEMACrossover }

// Evaluate implements SubStrategy.
func (s *EMACrossover) Evaluate(series indicators.Series) (domain.Vote, error) {
	if err := requireBars(s.Name(), series, s.SlowPeriod+2); err != nil {
		return noVote, err
	}
	fast := indicators.EMA(series.Close, s.FastPeriod)
	slow := indicators.EMA(series.Close, s.SlowPeriod)
	f, _ := indicators.At(fast, 0)
	sl, _ := indicators.At(slow, 0)
	pf, _ := indicators.At(fast, 1)
	ps, _ := indicators.At(slow, 1)
	if sl == 0 {
		return noVote, nil
	}

	spread := (f - sl) / sl
	strength := abs(spread) / s.FullSpread
	crossedUp := pf <= ps && f > sl
	crossedDown := pf >= ps && f < sl
	if crossedUp || crossedDown {
		strength += 0.3
	}

	switch {
	case spread > 0:
		return vote(domain.SideBuy, strength), nil
	case spread < 0:
		return vote(domain.SideSell, strength), nil
	default:
		return noVote, nil
	}
}

// EMAVWAP votes when price sits on the same side of both EMA20 and VWAP.
type EMAVWAP struct {
	EMAPeriod  int
	VWAPPeriod int
	FullDev    float64
}

// NewEMAVWAP creates an EMAVWAP with EMA20 and a 20-bar VWAP.
func NewEMAVWAP() *EMAVWAP {
	return &EMAVWAP{EMAPeriod: 20, VWAPPeriod: 20, FullDev: 0.005}
}

// Name implements SubStrategy.
func (s *EMAVWAP) Name() string { return NameEMAVWAP }

// Evaluate implements SubStrategy.
func (s *EMAVWAP) Evaluate(series indicators.Series) (domain.Vote, error) {
	if err := requireBars(s.Name(), series, s.EMAPeriod+1); err != nil {
		return noVote, err
	}
	ema, okE := indicators.Last(indicators.EMA(series.Close, s.EMAPeriod))
	vwap, okV := indicators.Last(indicators.VWAP(series.High, series.Low, series.Close, series.Volume, s.VWAPPeriod))
	price, _ := indicators.Last(series.Close)
	if !okE || !okV || vwap == 0 || ema == 0 {
		return noVote, nil
	}

	devVWAP := (price - vwap) / vwap
	devEMA := (price - ema) / ema
	strength := (abs(devVWAP) + abs(devEMA)) / 2 / s.FullDev

	switch {
	case devVWAP > 0 && devEMA > 0:
		return vote(domain.SideBuy, strength), nil
	case devVWAP < 0 && devEMA < 0:
		return vote(domain.SideSell, strength), nil
	default:
		return noVote, nil
	}
}

// PullbackEMA buys bounces off EMA20 inside an EMA20>EMA50 trend, and the
// mirror for shorts.
type PullbackEMA struct {
	FastPeriod int
	SlowPeriod int
	Touch      float64 // max distance of the bar's extreme from EMA20
}

// NewPullbackEMA creates a PullbackEMA with 20/50 periods.
func NewPullbackEMA() *PullbackEMA {
	return &PullbackEMA{FastPeriod: 20, SlowPeriod: 50, Touch: 0.002}
}

// Name implements SubStrategy.
func (s *PullbackEMA) Name() string { return NamePullbackEMA }

// Evaluate implements SubStrategy.
func (s *PullbackEMA) Evaluate(series indicators.Series) (domain.Vote, error) {
	if err := requireBars(s.Name(), series, s.SlowPeriod+1); err != nil {
		return noVote, err
	}
	fast, okF := indicators.Last(indicators.EMA(series.Close, s.FastPeriod))
	slow, okS := indicators.Last(indicators.EMA(series.Close, s.SlowPeriod))
	if !okF || !okS || slow == 0 || fast == 0 {
		return noVote, nil
	}
	n := series.Len() - 1
	open, high, low, close := series.Open[n], series.High[n], series.Low[n], series.Close[n]
	trend := (fast - slow) / slow
	strength := 0.4 + abs(trend)/0.01

	if trend > 0 && low <= fast*(1+s.Touch) && close > fast && close > open {
		return vote(domain.SideBuy, strength), nil
	}
	if trend < 0 && high >= fast*(1-s.Touch) && close < fast && close < open {
		return vote(domain.SideSell, strength), nil
	}
	return noVote, nil
}

// Breakout votes when the close clears the prior N-bar range on expanding volume.
type Breakout struct {
	Lookback       int
	MinVolumeRatio float64
}

// NewBreakout creates a Breakout over 20 bars requiring 1.2x volume.
func NewBreakout() *Breakout {
	return &Breakout{Lookback: 20, MinVolumeRatio: 1.2}
}

// Name implements SubStrategy.
func (s *Breakout) Name() string { return NameBreakout }

// Evaluate implements SubStrategy.
func (s *Breakout) Evaluate(series indicators.Series) (domain.Vote, error) {
	if err := requireBars(s.Name(), series, s.Lookback+1); err != nil {
		return noVote, err
	}
	n := series.Len() - 1
	prevHigh := maxOf(series.High[n-s.Lookback : n])
	prevLow := minOf(series.Low[n-s.Lookback : n])
	ratio := indicators.VolumeRatio(series.Volume, s.Lookback)
	if ratio < s.MinVolumeRatio {
		return noVote, nil
	}
	close := series.Close[n]
	strength := 0.3 + (ratio-s.MinVolumeRatio)/2

	switch {
	case close > prevHigh:
		return vote(domain.SideBuy, strength), nil
	case close < prevLow:
		return vote(domain.SideSell, strength), nil
	default:
		return noVote, nil
	}
}
