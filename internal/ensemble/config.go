package ensemble

import (
	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/strategy"
)

// Weights maps sub-strategy names to their weight within a regime.
type Weights map[string]float64

// Config holds the ensemble's tunable constants. None of them has a
// derivation; they are empirical defaults.
type Config struct {
	// RegimeWeights selects the active sub-strategies per regime.
	// Regimes without an entry fall back to the ranging set.
	RegimeWeights map[domain.Regime]Weights

	FastWeight      float64
	SlowWeight      float64
	AgreementBonus  float64 // both timeframes on the same side
	ConflictPenalty float64 // timeframes on opposite sides

	// Agreement tiers: >= HighAgreementCount agreements use HighAgreementThreshold,
	// >= MidAgreementCount use MidAgreementThreshold, else LowAgreementThreshold.
	HighAgreementCount     int
	MidAgreementCount      int
	HighAgreementThreshold float64
	MidAgreementThreshold  float64
	LowAgreementThreshold  float64

	// RegimeFloors is the minimum threshold per regime.
	RegimeFloors map[domain.Regime]float64

	ATRPeriod         int
	StopATRMultiplier float64
	StopFallbackPct   float64 // stop distance as a fraction of price when ATR is unavailable
	RewardRisk        float64 // take-profit distance / stop distance
}

// DefaultConfig returns the stock ensemble configuration.
func DefaultConfig() Config {
	trend := Weights{
		strategy.NameEMAVWAP:      0.30,
		strategy.NamePullbackEMA:  0.30,
		strategy.NameEMACrossover: 0.20,
		strategy.NameVWAP:         0.20,
	}
	return Config{
		RegimeWeights: map[domain.Regime]Weights{
			domain.RegimeTrendingUp:   trend,
			domain.RegimeTrendingDown: trend,
			domain.RegimeRanging: {
				strategy.NameBollingerRSI: 0.35,
				strategy.NameBollinger:    0.25,
				strategy.NameRSI:          0.25,
				strategy.NameVWAP:         0.15,
			},
			domain.RegimeHighVolatility: {
				strategy.NameLiquidity:    0.40,
				strategy.NameBollingerRSI: 0.30,
				strategy.NameOrderFlow:    0.30,
			},
			domain.RegimeBreakoutForming: {
				strategy.NameBreakout:  0.50,
				strategy.NameEMAVWAP:   0.25,
				strategy.NameOrderFlow: 0.25,
			},
		},
		FastWeight:             0.70,
		SlowWeight:             0.30,
		AgreementBonus:         1.15,
		ConflictPenalty:        0.5,
		HighAgreementCount:     3,
		MidAgreementCount:      2,
		HighAgreementThreshold: 0.25,
		MidAgreementThreshold:  0.35,
		LowAgreementThreshold:  0.50,
		RegimeFloors: map[domain.Regime]float64{
			domain.RegimeTrendingUp:      0.25,
			domain.RegimeTrendingDown:    0.25,
			domain.RegimeRanging:         0.35,
			domain.RegimeHighVolatility:  0.30,
			domain.RegimeBreakoutForming: 0.40,
		},
		ATRPeriod:         14,
		StopATRMultiplier: 1.5,
		StopFallbackPct:   0.01,
		RewardRisk:        2.0,
	}
}

// weightsFor returns the active set for r.
func (c Config) weightsFor(r domain.Regime) Weights {
	if w, ok := c.RegimeWeights[r]; ok {
		return w
	}
	return c.RegimeWeights[domain.RegimeRanging]
}

// Threshold returns max(agreement tier, regime floor).
func (c Config) Threshold(r domain.Regime, agreements int) float64 {
	tier := c.LowAgreementThreshold
	switch {
	case agreements >= c.HighAgreementCount:
		tier = c.HighAgreementThreshold
	case agreements >= c.MidAgreementCount:
		tier = c.MidAgreementThreshold
	}
	if floor, ok := c.RegimeFloors[r]; ok && floor > tier {
		return floor
	}
	return tier
}
