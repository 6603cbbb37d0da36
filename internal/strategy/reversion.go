package strategy

import (
	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/indicators"
)

// VWAPReversion fades stretched moves away from the rolling VWAP.
type VWAPReversion struct {
	Period  int
	MinDev  float64
	FullDev float64
}

// NewVWAPReversion creates a VWAPReversion over 20 bars.
func NewVWAPReversion() *VWAPReversion {
	return &VWAPReversion{Period: 20, MinDev: 0.003, FullDev: 0.01}
}

// Name implements SubStrategy.
func (s *VWAPReversion) Name() string { return NameVWAP }

// Evaluate implements SubStrategy.
func (s *VWAPReversion) Evaluate(series indicators.Series) (domain.Vote, error) {
	if err := requireBars(s.Name(), series, s.Period); err != nil {
		return noVote, err
	}
	vwap, ok := indicators.Last(indicators.VWAP(series.High, series.Low, series.Close, series.Volume, s.Period))
	price, _ := indicators.Last(series.Close)
	if !ok || vwap == 0 {
		return noVote, nil
	}
	dev := (price - vwap) / vwap
	strength := abs(dev) / s.FullDev

	switch {
	case dev <= -s.MinDev:
		return vote(domain.SideBuy, strength), nil
	case dev >= s.MinDev:
		return vote(domain.SideSell, strength), nil
	default:
		return noVote, nil
	}
}

// RSIReversion buys oversold and sells overbought RSI.
type RSIReversion struct {
	Period     int
	Oversold   float64
	Overbought float64
}

// NewRSIReversion creates an RSI(14) 30/70 strategy.
func NewRSIReversion() *RSIReversion {
	return &RSIReversion{Period: 14, Oversold: 30, Overbought: 70}
}

// Name implements SubStrategy.
func (s *RSIReversion) Name() string { return NameRSI }

// Evaluate implements SubStrategy.
func (s *RSIReversion) Evaluate(series indicators.Series) (domain.Vote, error) {
	if err := requireBars(s.Name(), series, s.Period+1); err != nil {
		return noVote, err
	}
	rsi, ok := indicators.Last(indicators.RSI(series.Close, s.Period))
	if !ok {
		return noVote, nil
	}
	switch {
	case rsi < s.Oversold:
		return vote(domain.SideBuy, 0.4+(s.Oversold-rsi)/s.Oversold), nil
	case rsi > s.Overbought:
		return vote(domain.SideSell, 0.4+(rsi-s.Overbought)/(100-s.Overbought)), nil
	default:
		return noVote, nil
	}
}

// BollingerReversion fades closes outside the bands.
type BollingerReversion struct {
	Period int
	StdDev float64
}

// NewBollingerReversion creates a 20/2 band strategy.
func NewBollingerReversion() *BollingerReversion {
	return &BollingerReversion{Period: 20, StdDev: 2}
}

// Name implements SubStrategy.
func (s *BollingerReversion) Name() string { return NameBollinger }

// Evaluate implements SubStrategy.
func (s *BollingerReversion) Evaluate(series indicators.Series) (domain.Vote, error) {
	if err := requireBars(s.Name(), series, s.Period); err != nil {
		return noVote, err
	}
	b := indicators.Bollinger(series.Close, s.Period, s.StdDev)
	upper, okU := indicators.Last(b.Upper)
	lower, okL := indicators.Last(b.Lower)
	price, _ := indicators.Last(series.Close)
	if !okU || !okL || upper <= lower {
		return noVote, nil
	}
	width := upper - lower

	switch {
	case price < lower:
		return vote(domain.SideBuy, 0.4+(lower-price)/width*2), nil
	case price > upper:
		return vote(domain.SideSell, 0.4+(price-upper)/width*2), nil
	default:
		return noVote, nil
	}
}

// BollingerRSI requires a band touch confirmed by RSI and a rejection wick.
type BollingerRSI struct {
	Period     int
	StdDev     float64
	RSIPeriod  int
	Oversold   float64
	Overbought float64
	WickRatio  float64
}

// NewBollingerRSI creates the band+RSI confluence strategy.
func NewBollingerRSI() *BollingerRSI {
	return &BollingerRSI{Period: 20, StdDev: 2, RSIPeriod: 14, Oversold: 35, Overbought: 65, WickRatio: 0.25}
}

// Name implements SubStrategy.
func (s *BollingerRSI) Name() string { return NameBollingerRSI }

// Evaluate implements SubStrategy.
func (s *BollingerRSI) Evaluate(series indicators.Series) (domain.Vote, error) {
	if err := requireBars(s.Name(), series, s.Period+1); err != nil {
		return noVote, err
	}
	b := indicators.Bollinger(series.Close, s.Period, s.StdDev)
	upper, okU := indicators.Last(b.Upper)
	lower, okL := indicators.Last(b.Lower)
	rsi, okR := indicators.Last(indicators.RSI(series.Close, s.RSIPeriod))
	if !okU || !okL || !okR {
		return noVote, nil
	}
	n := series.Len() - 1
	open, high, low, close := series.Open[n], series.High[n], series.Low[n], series.Close[n]
	rng := high - low
	if rng == 0 {
		return noVote, nil
	}
	bodyLow, bodyHigh := open, close
	if bodyLow > bodyHigh {
		bodyLow, bodyHigh = bodyHigh, bodyLow
	}
	lowerWick := (bodyLow - low) / rng
	upperWick := (high - bodyHigh) / rng

	if low <= lower && rsi < s.Oversold {
		strength := 0.5 + (s.Oversold-rsi)/100
		if lowerWick > s.WickRatio {
			strength += 0.2
		}
		return vote(domain.SideBuy, strength), nil
	}
	if high >= upper && rsi > s.Overbought {
		strength := 0.5 + (rsi-s.Overbought)/100
		if upperWick > s.WickRatio {
			strength += 0.2
		}
		return vote(domain.SideSell, strength), nil
	}
	return noVote, nil
}
