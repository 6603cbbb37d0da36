package ensemble

import (
	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/indicators"
)

// Rejection reasons reported by the quality filter.
const (
	RejectNoSide        = "no_side"
	RejectWeakStrength  = "weak_strength"
	RejectLowVolume     = "low_volume"
	RejectVolatilityLow = "volatility_too_low"
	RejectVolatilityHi  = "volatility_too_high"
	RejectTrendMisalign = "trend_misaligned"
	RejectGapAgainst    = "gap_against_signal"
	RejectWickAgainst   = "wick_against_signal"
)

// Confidence tiers.
const (
	ConfidenceExcellent = "excellent"
	ConfidenceGood      = "good"
	ConfidenceOK        = "ok"
	ConfidenceWeak      = "weak"
	ConfidenceReject    = "reject"
)

// FilterConfig configures the signal quality filter.
type FilterConfig struct {
	MinStrength       float64
	MinVolumeRatio    float64
	VolumePeriod      int
	ATRPeriod         int
	MinVolatilityPct  float64 // ATR / price, percent
	MaxVolatilityPct  float64
	TrendFastPeriod   int
	TrendSlowPeriod   int
	MinTrendBars      int // slow bars required before trend alignment applies
	GapFraction       float64
	WickRangeFraction float64
}

// DefaultFilterConfig returns the stock quality filter.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinStrength:       0.25,
		MinVolumeRatio:    0.7,
		VolumePeriod:      20,
		ATRPeriod:         14,
		MinVolatilityPct:  0.2,
		MaxVolatilityPct:  2.0,
		TrendFastPeriod:   20,
		TrendSlowPeriod:   50,
		MinTrendBars:      30,
		GapFraction:       0.002,
		WickRangeFraction: 0.7,
	}
}

// Quality is the verdict of the filter.
type Quality struct {
	Passed     bool
	Reason     string // first failed check, empty when passed
	Confidence string
}

// Filter rejects signals in conditions where they historically fail.
type Filter struct {
	cfg FilterConfig
}

// NewFilter creates a Filter.
func NewFilter(cfg FilterConfig) *Filter {
	return &Filter{cfg: cfg}
}

// Check runs strength, volume, volatility, trend alignment and candle
// pattern checks in that order. Checks lacking history pass.
func (f *Filter) Check(sig domain.Signal, fast, slow []domain.Bar) Quality {
	if !sig.IsActionable() {
		return Quality{Reason: RejectNoSide, Confidence: ConfidenceReject}
	}
	if sig.Strength < f.cfg.MinStrength {
		return reject(RejectWeakStrength)
	}
	fs := indicators.FromBars(fast)

	if fs.Len() >= f.cfg.VolumePeriod && indicators.VolumeRatio(fs.Volume, f.cfg.VolumePeriod) < f.cfg.MinVolumeRatio {
		return reject(RejectLowVolume)
	}

	if fs.Len() >= f.cfg.ATRPeriod {
		atr, okA := indicators.Last(indicators.ATR(fs.High, fs.Low, fs.Close, f.cfg.ATRPeriod))
		price, okP := indicators.Last(fs.Close)
		if okA && okP && price > 0 {
			pct := atr / price * 100
			if pct > f.cfg.MaxVolatilityPct {
				return reject(RejectVolatilityHi)
			}
			if pct < f.cfg.MinVolatilityPct {
				return reject(RejectVolatilityLow)
			}
		}
	}

	if !f.trendAligned(sig.Side, slow) {
		return reject(RejectTrendMisalign)
	}

	if reason := f.badPattern(sig.Side, fs); reason != "" {
		return reject(reason)
	}

	return Quality{Passed: true, Confidence: ConfidenceTier(sig.Strength, sig.Details.Agreements(sig.Side))}
}

func reject(reason string) Quality {
	return Quality{Reason: reason, Confidence: ConfidenceReject}
}

// trendAligned allows buys in an up or neutral slow trend, sells in a down
// or neutral one.
func (f *Filter) trendAligned(side domain.Side, slow []domain.Bar) bool {
	if len(slow) < f.cfg.MinTrendBars {
		return true
	}
	ss := indicators.FromBars(slow)
	ema20, ok1 := indicators.Last(indicators.EMA(ss.Close, f.cfg.TrendFastPeriod))
	ema50, ok2 := indicators.Last(indicators.EMA(ss.Close, f.cfg.TrendSlowPeriod))
	if !ok1 || !ok2 {
		return true
	}
	price, _ := indicators.Last(ss.Close)
	up := ema20 > ema50 && price > ema20
	down := ema20 < ema50 && price < ema20
	if side == domain.SideBuy {
		return !down
	}
	return !up
}

func (f *Filter) badPattern(side domain.Side, s indicators.Series) string {
	n := s.Len()
	if n < 2 {
		return ""
	}
	open, high, low, close := s.Open[n-1], s.High[n-1], s.Low[n-1], s.Close[n-1]
	prevClose := s.Close[n-2]
	rng := high - low

	if side == domain.SideBuy {
		if open < prevClose*(1-f.cfg.GapFraction) {
			return RejectGapAgainst
		}
		if high-max(open, close) > rng*f.cfg.WickRangeFraction {
			return RejectWickAgainst
		}
		return ""
	}
	if open > prevClose*(1+f.cfg.GapFraction) {
		return RejectGapAgainst
	}
	if min(open, close)-low > rng*f.cfg.WickRangeFraction {
		return RejectWickAgainst
	}
	return ""
}

// ConfidenceTier labels a signal by strength and same-side agreements.
func ConfidenceTier(strength float64, agreements int) string {
	switch {
	case agreements >= 4 && strength > 0.7:
		return ConfidenceExcellent
	case agreements >= 3 && strength > 0.5:
		return ConfidenceGood
	case agreements >= 2 && strength > 0.4:
		return ConfidenceOK
	case strength > 0.3:
		return ConfidenceWeak
	default:
		return ConfidenceReject
	}
}
