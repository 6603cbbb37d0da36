// Package regime labels the market state from fast and slow bar histories.
package regime

import (
	"github.com/rs/zerolog"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/indicators"
)

// Config holds indicator periods and classification thresholds.
type Config struct {
	EMAFastPeriod       int
	EMASlowPeriod       int
	ConsistencyLookback int // slow bars checked for ema_fast > ema_slow
	ATRPeriod           int
	ATRTrendLookback    int // volatility is rising when atr[-1] > atr[-1-lookback]
	ADXPeriod           int
	BBPeriod            int
	BBStdDev            float64
	BBWidthMAPeriod     int
	RSIPeriod           int
	VolumeMAPeriod      int
	VolumeLookback      int // recent fast bars checked against the volume MA
	VolumeRisingMin     int // how many of them must exceed the MA

	HighVolatilityPct  float64 // ATR/price in percent
	TrendStrength      float64 // |ema_fast - ema_slow| / ema_slow
	UpConsistency      float64
	DownConsistency    float64
	ADXThreshold       float64
	SqueezeWidthFactor float64 // width < width_ma * factor

	HistorySize int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		EMAFastPeriod:       20,
		EMASlowPeriod:       50,
		ConsistencyLookback: 10,
		ATRPeriod:           14,
		ATRTrendLookback:    4,
		ADXPeriod:           14,
		BBPeriod:            20,
		BBStdDev:            2,
		BBWidthMAPeriod:     20,
		RSIPeriod:           14,
		VolumeMAPeriod:      20,
		VolumeLookback:      5,
		VolumeRisingMin:     3,
		HighVolatilityPct:   1.5,
		TrendStrength:       0.03,
		UpConsistency:       0.7,
		DownConsistency:     0.3,
		ADXThreshold:        25,
		SqueezeWidthFactor:  0.5,
		HistorySize:         10,
	}
}

// Metrics are the inputs of a classification.
type Metrics struct {
	TrendStrength        float64 `json:"trend_strength"`
	TrendConsistency     float64 `json:"trend_consistency"`
	VolatilityPct        float64 `json:"volatility_pct"`
	VolatilityIncreasing bool    `json:"volatility_increasing"`
	ADX                  float64 `json:"adx"`
	BBWidth              float64 `json:"bb_width"`
	BBWidthMA            float64 `json:"bb_width_ma"`
	RSI                  float64 `json:"rsi"`
	VolumeIncreasing     bool    `json:"volume_increasing"`
	// Degraded lists metrics that fell back to their safe default.
	Degraded []string `json:"degraded,omitempty"`
}

// FallbackMetrics are used for any metric that cannot be computed.
func FallbackMetrics() Metrics {
	return Metrics{
		TrendStrength:    0,
		TrendConsistency: 0.5,
		VolatilityPct:    1.0,
		ADX:              25,
		BBWidth:          0.04,
		BBWidthMA:        0.04,
		RSI:              50,
	}
}

// Classifier detects regimes and keeps a short history of them.
// One Classifier belongs to one engine and is not safe for concurrent use.
type Classifier struct {
	cfg     Config
	logger  zerolog.Logger
	history []domain.Regime
	last    Metrics
}

// NewClassifier creates a Classifier.
func NewClassifier(cfg Config, logger zerolog.Logger) *Classifier {
	return &Classifier{
		cfg:    cfg,
		logger: logger.With().Str("component", "regime").Logger(),
	}
}

// Detect computes metrics, classifies them and records the result.
func (c *Classifier) Detect(fast, slow []domain.Bar) domain.Regime {
	m := c.Compute(fast, slow)
	r := c.Classify(m)
	c.last = m
	c.history = append(c.history, r)
	if n := c.cfg.HistorySize; n > 0 && len(c.history) > n {
		c.history = c.history[len(c.history)-n:]
	}
	return r
}

// Classify applies the precedence: high volatility, trend up, trend down,
// breakout squeeze, ranging.
func (c *Classifier) Classify(m Metrics) domain.Regime {
	cfg := c.cfg
	if m.VolatilityPct > cfg.HighVolatilityPct && m.VolatilityIncreasing {
		return domain.RegimeHighVolatility
	}
	if m.TrendStrength > cfg.TrendStrength && m.TrendConsistency > cfg.UpConsistency && m.ADX > cfg.ADXThreshold {
		return domain.RegimeTrendingUp
	}
	if m.TrendStrength < -cfg.TrendStrength && m.TrendConsistency < cfg.DownConsistency && m.ADX > cfg.ADXThreshold {
		return domain.RegimeTrendingDown
	}
	if m.BBWidth < m.BBWidthMA*cfg.SqueezeWidthFactor && m.VolumeIncreasing {
		return domain.RegimeBreakoutForming
	}
	return domain.RegimeRanging
}

// Compute derives classification metrics. Each metric that cannot be
// computed takes its fallback value instead of failing the whole call.
func (c *Classifier) Compute(fast, slow []domain.Bar) Metrics {
	m := FallbackMetrics()
	fs := indicators.FromBars(fast)
	ss := indicators.FromBars(slow)

	degrade := func(name string) {
		m.Degraded = append(m.Degraded, name)
	}

	// Trend on the slow series.
	emaFast := indicators.EMA(ss.Close, c.cfg.EMAFastPeriod)
	emaSlow := indicators.EMA(ss.Close, c.cfg.EMASlowPeriod)
	ef, okF := indicators.Last(emaFast)
	es, okS := indicators.Last(emaSlow)
	if okF && okS && es != 0 {
		m.TrendStrength = (ef - es) / es
		above, valid := 0, 0
		for back := 0; back < c.cfg.ConsistencyLookback; back++ {
			a, okA := indicators.At(emaFast, back)
			b, okB := indicators.At(emaSlow, back)
			if !okA || !okB {
				continue
			}
			valid++
			if a > b {
				above++
			}
		}
		if valid > 0 {
			m.TrendConsistency = float64(above) / float64(valid)
		} else {
			degrade("trend_consistency")
		}
	} else {
		degrade("trend_strength")
	}

	// Volatility on the fast series.
	atr := indicators.ATR(fs.High, fs.Low, fs.Close, c.cfg.ATRPeriod)
	lastATR, okATR := indicators.Last(atr)
	lastClose, okClose := indicators.Last(fs.Close)
	if okATR && okClose && lastClose != 0 {
		m.VolatilityPct = lastATR / lastClose * 100
		if prev, ok := indicators.At(atr, c.cfg.ATRTrendLookback); ok {
			m.VolatilityIncreasing = lastATR > prev
		}
	} else {
		degrade("volatility")
	}

	if adx, ok := indicators.Last(indicators.ADX(ss.High, ss.Low, ss.Close, c.cfg.ADXPeriod)); ok {
		m.ADX = adx
	} else {
		degrade("adx")
	}

	bands := indicators.Bollinger(ss.Close, c.cfg.BBPeriod, c.cfg.BBStdDev)
	width, okW := indicators.Last(bands.Width)
	widthMA, okWMA := indicators.Last(indicators.SMAValid(bands.Width, c.cfg.BBWidthMAPeriod))
	if okW && okWMA {
		m.BBWidth = width
		m.BBWidthMA = widthMA
	} else {
		degrade("bb_width")
	}

	if rsi, ok := indicators.Last(indicators.RSI(fs.Close, c.cfg.RSIPeriod)); ok {
		m.RSI = rsi
	} else {
		degrade("rsi")
	}

	volMA := indicators.SMA(fs.Volume, c.cfg.VolumeMAPeriod)
	if ma, ok := indicators.Last(volMA); ok {
		rising := 0
		for back := 0; back < c.cfg.VolumeLookback; back++ {
			v, okV := indicators.At(fs.Volume, back)
			if okV && v > ma {
				rising++
			}
		}
		m.VolumeIncreasing = rising >= c.cfg.VolumeRisingMin
	} else {
		degrade("volume")
	}

	if len(m.Degraded) > 0 {
		c.logger.Debug().Strs("degraded", m.Degraded).Msg("regime metrics fell back to defaults")
	}
	return m
}

// Info summarizes the current regime and its recent stability.
type Info struct {
	Regime      domain.Regime   `json:"regime"`
	Metrics     Metrics         `json:"metrics"`
	Consistency float64         `json:"consistency"` // share of history equal to Regime
	History     []domain.Regime `json:"history"`
}

// Info reports the latest detection. Regime is empty before the first Detect.
func (c *Classifier) Info() Info {
	info := Info{
		Metrics: c.last,
		History: append([]domain.Regime(nil), c.history...),
	}
	if len(c.history) == 0 {
		return info
	}
	info.Regime = c.history[len(c.history)-1]
	same := 0
	for _, r := range c.history {
		if r == info.Regime {
			same++
		}
	}
	info.Consistency = float64(same) / float64(len(c.history))
	return info
}

// Reset clears the regime history.
func (c *Classifier) Reset() {
	c.history = nil
	c.last = Metrics{}
}
