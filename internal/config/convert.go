package config

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/backtest"
	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/ensemble"
	"scalping-backtest-lab/internal/idhash"
	"scalping-backtest-lab/internal/position"
	"scalping-backtest-lab/internal/regime"
	"scalping-backtest-lab/internal/sizing"
	"scalping-backtest-lab/internal/slippage"
	"scalping-backtest-lab/internal/strategy"
)

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func (c *Config) fastTimeframe() domain.Timeframe { return domain.Timeframe(c.Backtest.FastTimeframe) }
func (c *Config) slowTimeframe() domain.Timeframe { return domain.Timeframe(c.Backtest.SlowTimeframe) }

// RiskParameters converts the risk section. Slices shorter than the tier
// count leave the missing tiers zero, which Validate rejects.
func (c *Config) RiskParameters() domain.RiskParameters {
	r := c.Risk
	p := domain.RiskParameters{
		BaseRisk:          dec(r.BaseRisk),
		MinRisk:           dec(r.MinRisk),
		MaxRisk:           dec(r.MaxRisk),
		MaxTotalExposure:  dec(r.MaxTotalExposure),
		MaxPositions:      r.MaxPositions,
		MaxDrawdown:       dec(r.MaxDrawdown),
		MinSignalStrength: r.MinSignalStrength,
		MinPositionValue:  dec(r.MinPositionValue),
		MaxPositionValue:  dec(r.MaxPositionValue),
	}
	for i := 0; i < domain.TakeProfitLevels; i++ {
		if i < len(r.TPDistances) {
			p.TPDistances[i] = dec(r.TPDistances[i])
		}
		if i < len(r.TPExitRatios) {
			p.TPExitRatios[i] = dec(r.TPExitRatios[i])
		}
	}
	return p
}

func (c *Config) SymbolFilters() domain.SymbolFilters {
	return domain.SymbolFilters{
		TickSize:    dec(c.Filters.TickSize),
		StepSize:    dec(c.Filters.StepSize),
		MinQty:      dec(c.Filters.MinQty),
		MinNotional: dec(c.Filters.MinNotional),
	}
}

func (c *Config) BacktestConfig() backtest.Config {
	b := c.Backtest
	return backtest.Config{
		FastTimeframe:        c.fastTimeframe(),
		SlowTimeframe:        c.slowTimeframe(),
		InitialCapital:       dec(b.InitialCapital),
		MaxDrawdown:          dec(c.Risk.MaxDrawdown),
		WarmupBars:           b.WarmupBars,
		MinFastBars:          b.MinFastBars,
		MinSlowBars:          b.MinSlowBars,
		MinSlowHistory:       b.MinSlowHistory,
		HistoryWindow:        b.HistoryWindow,
		MinRewardRisk:        dec(b.MinRewardRisk),
		MinStopDistance:      dec(b.MinStopDistance),
		VolumePeriod:         b.VolumePeriod,
		MaxConsecutiveLosses: b.MaxConsecutiveLosses,
		SizingMethod:         sizing.Method(b.SizingMethod),
		KellyMinTrades:       b.KellyMinTrades,
		ATRPeriod:            b.ATRPeriod,
	}
}

// EnsembleConfig starts from the stock tiers and floors and overlays the
// configured weights and levels.
func (c *Config) EnsembleConfig() ensemble.Config {
	e := c.Ensemble
	out := ensemble.DefaultConfig()
	out.RegimeWeights = make(map[domain.Regime]ensemble.Weights, len(e.RegimeWeights))
	for name, weights := range e.RegimeWeights {
		r, err := domain.ParseRegime(name)
		if err != nil {
			continue // rejected by Validate
		}
		w := make(ensemble.Weights, len(weights))
		for s, v := range weights {
			w[s] = v
		}
		out.RegimeWeights[r] = w
	}
	out.FastWeight = e.FastWeight
	out.SlowWeight = e.SlowWeight
	out.AgreementBonus = e.AgreementBonus
	out.ConflictPenalty = e.ConflictPenalty
	out.StopATRMultiplier = e.StopATRMultiplier
	out.StopFallbackPct = e.StopFallbackPct
	out.RewardRisk = e.RewardRisk
	return out
}

func (c *Config) FilterConfig() ensemble.FilterConfig {
	q := c.Quality
	out := ensemble.DefaultFilterConfig()
	out.MinStrength = c.Risk.MinSignalStrength
	out.MinVolumeRatio = q.MinVolumeRatio
	out.VolumePeriod = c.Backtest.VolumePeriod
	out.MinVolatilityPct = q.MinVolatilityPct
	out.MaxVolatilityPct = q.MaxVolatilityPct
	out.GapFraction = q.GapFraction
	out.WickRangeFraction = q.WickFraction
	return out
}

func (c *Config) RegimeConfig() regime.Config {
	out := regime.DefaultConfig()
	out.HighVolatilityPct = c.Regime.HighVolatilityPct
	out.TrendStrength = c.Regime.TrendStrength
	out.ADXThreshold = c.Regime.ADXThreshold
	out.HistorySize = c.Regime.HistorySize
	return out
}

func (c *Config) SlippageConfig() slippage.Config {
	s := c.Slippage
	out := slippage.DefaultConfig()
	if len(s.HourlyBase) == len(out.HourlyBase) {
		for h, v := range s.HourlyBase {
			out.HourlyBase[h] = dec(v)
		}
	}
	out.DefaultBase = dec(s.DefaultBase)
	out.MinRate = dec(s.MinRate)
	out.MaxRate = dec(s.MaxRate)
	return out
}

func (c *Config) PositionConfig() position.Config {
	out := position.ConfigFromRisk(c.RiskParameters())
	filters := c.SymbolFilters()
	out.StepSize, out.MinQty = filters.StepSize, filters.MinQty
	out.Trailing = position.TrailingConfig{
		Enabled:    c.Trailing.Enabled,
		Activation: dec(c.Trailing.Activation),
		Distance:   dec(c.Trailing.Distance),
	}
	return out
}

// tradingView is the part of the config that changes results. Storage,
// server and logging settings are left out so they never alter a run id.
type tradingView struct {
	Backtest BacktestConfig `json:"backtest"`
	Risk     RiskConfig     `json:"risk"`
	Filters  FiltersConfig  `json:"filters"`
	Ensemble EnsembleConfig `json:"ensemble"`
	Quality  QualityConfig  `json:"quality"`
	Regime   RegimeConfig   `json:"regime"`
	Slippage SlippageConfig `json:"slippage"`
	Trailing TrailingConfig `json:"trailing"`
}

// Digest hashes every setting that affects a run's output.
func (c *Config) Digest() (string, error) {
	return idhash.ComputeConfigDigest(tradingView{
		Backtest: c.Backtest,
		Risk:     c.Risk,
		Filters:  c.Filters,
		Ensemble: c.Ensemble,
		Quality:  c.Quality,
		Regime:   c.Regime,
		Slippage: c.Slippage,
		Trailing: c.Trailing,
	})
}

// RunID derives the deterministic run id of in under this config.
func (c *Config) RunID(in backtest.Input) (string, error) {
	if len(in.Fast) == 0 {
		return "", fmt.Errorf("run id: %s has no bars", in.Symbol)
	}
	digest, err := c.Digest()
	if err != nil {
		return "", err
	}
	return idhash.ComputeRunID(in.Symbol, c.Backtest.FastTimeframe, c.Backtest.SlowTimeframe,
		in.Fast[0].TimestampMs, in.Fast[len(in.Fast)-1].TimestampMs, digest), nil
}

// NewEngine wires one symbol's engine. Every component that keeps state
// across bars is built fresh, so engines never share mutable state.
func (c *Config) NewEngine(logger zerolog.Logger, obs backtest.Observer) (*backtest.Engine, error) {
	ens, err := ensemble.New(c.EnsembleConfig(), strategy.Registry(), logger)
	if err != nil {
		return nil, fmt.Errorf("build ensemble: %w", err)
	}
	deps := backtest.Deps{
		Regime:   regime.NewClassifier(c.RegimeConfig(), logger),
		Signals:  ens,
		Sizer:    sizing.New(c.RiskParameters(), c.SymbolFilters(), logger),
		Position: c.PositionConfig(),
		Observer: obs,
	}
	if c.Quality.Enabled {
		deps.Filter = ensemble.NewFilter(c.FilterConfig())
	}
	if c.Slippage.Enabled {
		deps.Slippage = slippage.New(c.SlippageConfig(), logger)
	}
	return backtest.New(c.BacktestConfig(), deps, logger)
}

// EngineFactory adapts NewEngine for backtest.RunSymbols. The observer is
// shared by all engines and must be safe for concurrent use.
func (c *Config) EngineFactory(logger zerolog.Logger, obs backtest.Observer) backtest.EngineFactory {
	return func(symbol string) (*backtest.Engine, error) {
		return c.NewEngine(logger.With().Str("symbol", symbol).Logger(), obs)
	}
}

func stockRegimeWeights() map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	for r, w := range ensemble.DefaultConfig().RegimeWeights {
		m := make(map[string]float64, len(w))
		for s, v := range w {
			m[s] = v
		}
		out[string(r)] = m
	}
	return out
}

func checkWeights(regimeName string, weights map[string]float64) error {
	if _, err := domain.ParseRegime(regimeName); err != nil {
		return fmt.Errorf("regime_weights: %w", err)
	}
	if len(weights) == 0 {
		return fmt.Errorf("regime_weights.%s: no strategies", regimeName)
	}
	for name, w := range weights {
		if _, err := strategy.FromName(name); err != nil {
			return fmt.Errorf("regime_weights.%s: %w", regimeName, err)
		}
		if w <= 0 {
			return fmt.Errorf("regime_weights.%s.%s: weight must be positive", regimeName, name)
		}
	}
	return nil
}
