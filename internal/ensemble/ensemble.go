// Package ensemble combines weighted sub-strategy votes over two timeframes
// into one trade signal.
package ensemble

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/indicators"
	"scalping-backtest-lab/internal/strategy"
)

// ErrStrategyFailed is returned when a sub-strategy errors or panics.
// The accompanying signal carries no side.
var ErrStrategyFailed = errors.New("sub-strategy failed")

// Agreement labels for StrategyScore.
const (
	AgreementConfirmed = "confirmed"
	AgreementConflict  = "conflict"
	AgreementSingle    = "single"
	AgreementNone      = "none"
)

// Ensemble is stateless between calls.
type Ensemble struct {
	cfg        Config
	strategies map[string]strategy.SubStrategy
	logger     zerolog.Logger
}

// New creates an Ensemble. Every strategy named in cfg.RegimeWeights must be
// present in strategies.
func New(cfg Config, strategies map[string]strategy.SubStrategy, logger zerolog.Logger) (*Ensemble, error) {
	for r, weights := range cfg.RegimeWeights {
		for name := range weights {
			if _, ok := strategies[name]; !ok {
				return nil, fmt.Errorf("regime %s: %w: %q", r, strategy.ErrUnknownStrategy, name)
			}
		}
	}
	return &Ensemble{
		cfg:        cfg,
		strategies: strategies,
		logger:     logger.With().Str("component", "ensemble").Logger(),
	}, nil
}

// NewDefault creates an Ensemble over the full strategy registry.
func NewDefault(logger zerolog.Logger) *Ensemble {
	e, err := New(DefaultConfig(), strategy.Registry(), logger)
	if err != nil {
		panic(err) // default weights only name registered strategies
	}
	return e
}

// Config returns the ensemble configuration.
func (e *Ensemble) Config() Config {
	return e.cfg
}

// Generate scores the regime's active strategies on fast and slow and
// decides a side. Scores are computed in every regime; gating entries on
// tradeability is the caller's job.
func (e *Ensemble) Generate(fast, slow []domain.Bar, r domain.Regime) (domain.Signal, error) {
	sig := domain.Signal{Side: domain.SideNone, Details: domain.SignalDetails{Regime: r}}
	if len(fast) == 0 {
		return sig, nil
	}
	fs := indicators.FromBars(fast)
	ss := indicators.FromBars(slow)

	weights := e.cfg.weightsFor(r)
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	var failures []error
	d := &sig.Details
	for _, name := range names {
		st := e.strategies[name]
		score := domain.StrategyScore{Name: name, Weight: weights[name]}

		fv, errF := evaluate(st, fs)
		sv, errS := evaluate(st, ss)
		for _, err := range []error{errF, errS} {
			if err == nil {
				continue
			}
			score.Err = err.Error()
			if !errors.Is(err, strategy.ErrInsufficientBars) {
				failures = append(failures, err)
			}
		}
		score.Fast, score.Slow = fv, sv
		e.combine(&score)

		d.BuyScore += score.BuyScore
		d.SellScore += score.SellScore
		countAgreement(d, fv, sv)
		d.Scores = append(d.Scores, score)
	}

	if len(failures) > 0 {
		return sig, fmt.Errorf("%w: %w", ErrStrategyFailed, errors.Join(failures...))
	}

	side, score := domain.SideNone, 0.0
	switch {
	case d.BuyScore > d.SellScore:
		side, score = domain.SideBuy, d.BuyScore
	case d.SellScore > d.BuyScore:
		side, score = domain.SideSell, d.SellScore
	}
	if side == domain.SideNone {
		return sig, nil
	}
	d.Threshold = e.cfg.Threshold(r, d.Agreements(side))
	if score <= d.Threshold {
		return sig, nil
	}

	sig.Side = side
	sig.Strength = clip01(score)
	sig.EntryPrice = fast[len(fast)-1].Close
	sig.StopLoss, sig.TakeProfit = e.Levels(fs, sig.EntryPrice, side)

	e.logger.Debug().
		Str("side", string(side)).
		Float64("strength", sig.Strength).
		Float64("threshold", d.Threshold).
		Int("agreements", d.Agreements(side)).
		Str("regime", string(r)).
		Msg("signal")
	return sig, nil
}

// combine fills the weighted buy/sell contribution of one strategy.
func (e *Ensemble) combine(s *domain.StrategyScore) {
	fast := s.Fast.Strength * e.cfg.FastWeight
	slow := s.Slow.Strength * e.cfg.SlowWeight

	var side domain.Side
	var combined float64
	switch {
	case s.Fast.Side.IsValid() && s.Fast.Side == s.Slow.Side:
		side = s.Fast.Side
		combined = (fast + slow) * e.cfg.AgreementBonus
		s.Agreement = AgreementConfirmed
	case s.Fast.Side.IsValid() && s.Slow.Side.IsValid():
		// Fast dominates; the disagreement costs it.
		side = s.Fast.Side
		combined = fast * e.cfg.ConflictPenalty
		s.Agreement = AgreementConflict
	case s.Fast.Side.IsValid():
		side = s.Fast.Side
		combined = fast
		s.Agreement = AgreementSingle
	case s.Slow.Side.IsValid():
		side = s.Slow.Side
		combined = slow
		s.Agreement = AgreementSingle
	default:
		s.Agreement = AgreementNone
		return
	}

	if side == domain.SideBuy {
		s.BuyScore = combined * s.Weight
	} else {
		s.SellScore = combined * s.Weight
	}
}

func countAgreement(d *domain.SignalDetails, fast, slow domain.Vote) {
	switch fast.Side {
	case domain.SideBuy:
		d.BuyAgreementsFast++
	case domain.SideSell:
		d.SellAgreementsFast++
	}
	switch slow.Side {
	case domain.SideBuy:
		d.BuyAgreementsSlow++
	case domain.SideSell:
		d.SellAgreementsSlow++
	}
}

// evaluate runs st, converting a panic into ErrStrategyFailed.
func evaluate(st strategy.SubStrategy, s indicators.Series) (v domain.Vote, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = domain.Vote{}
			err = fmt.Errorf("%w: %s panicked: %v", ErrStrategyFailed, st.Name(), r)
		}
	}()
	v, err = st.Evaluate(s)
	if err != nil {
		return domain.Vote{}, err
	}
	if !v.Side.IsValid() {
		return domain.Vote{}, nil
	}
	v.Strength = clip01(v.Strength)
	return v, nil
}

// Levels returns the stop-loss and take-profit for an entry at price.
// Stop distance is ATR x multiplier, falling back to a fixed fraction of price.
func (e *Ensemble) Levels(fast indicators.Series, price decimal.Decimal, side domain.Side) (sl, tp decimal.Decimal) {
	dist := price.Mul(decimal.NewFromFloat(e.cfg.StopFallbackPct))
	if atr, ok := indicators.Last(indicators.ATR(fast.High, fast.Low, fast.Close, e.cfg.ATRPeriod)); ok && atr > 0 {
		dist = decimal.NewFromFloat(atr * e.cfg.StopATRMultiplier)
	}
	reward := dist.Mul(decimal.NewFromFloat(e.cfg.RewardRisk))
	if side == domain.SideSell {
		return price.Add(dist), price.Sub(reward)
	}
	return price.Sub(dist), price.Add(reward)
}

func clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
