// Package backtest drives the per-bar simulation loop: regime detection,
// signal generation, trade validation, sizing, slippage and the position
// lifecycle, with equity and drawdown tracking.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/ensemble"
	"scalping-backtest-lab/internal/idhash"
	"scalping-backtest-lab/internal/indicators"
	"scalping-backtest-lab/internal/marketdata"
	"scalping-backtest-lab/internal/metrics"
	"scalping-backtest-lab/internal/position"
	"scalping-backtest-lab/internal/sizing"
)

// ErrMissingDependency is returned by New when a required collaborator is nil.
var ErrMissingDependency = errors.New("missing engine dependency")

// RegimeDetector labels the market state.
type RegimeDetector interface {
	Detect(fast, slow []domain.Bar) domain.Regime
}

// SignalSource decides a side for the latest fast bar.
type SignalSource interface {
	Generate(fast, slow []domain.Bar, r domain.Regime) (domain.Signal, error)
}

// SignalFilter vets an actionable signal before it is traded.
type SignalFilter interface {
	Check(sig domain.Signal, fast, slow []domain.Bar) ensemble.Quality
}

// Filler applies execution friction to entry and exit prices.
type Filler interface {
	Entry(price decimal.Decimal, side domain.Side, volumeRatio float64, r domain.Regime, timestampMs int64) decimal.Decimal
	position.ExitFiller
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Regime   RegimeDetector
	Signals  SignalSource
	Filter   SignalFilter // nil accepts every actionable signal
	Sizer    *sizing.Sizer
	Slippage Filler // nil fills at the reference price
	Position position.Config
	Observer Observer // nil discards
}

// Input is one symbol's bar histories.
type Input struct {
	Symbol string
	Fast   []domain.Bar
	Slow   []domain.Bar
	RunID  string // derived from symbol, bars and config when empty
}

// Engine runs one symbol at a time. Run may be called repeatedly but not
// concurrently; use one Engine per goroutine.
type Engine struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
}

// New validates cfg and deps and creates an Engine.
func New(cfg Config, deps Deps, logger zerolog.Logger) (*Engine, error) {
	switch {
	case deps.Regime == nil:
		return nil, fmt.Errorf("%w: regime detector", ErrMissingDependency)
	case deps.Signals == nil:
		return nil, fmt.Errorf("%w: signal source", ErrMissingDependency)
	case deps.Sizer == nil:
		return nil, fmt.Errorf("%w: sizer", ErrMissingDependency)
	}
	if cfg.FastTimeframe.DurationMs() == 0 || cfg.SlowTimeframe.DurationMs() == 0 {
		return nil, fmt.Errorf("unsupported timeframes %q/%q", cfg.FastTimeframe, cfg.SlowTimeframe)
	}
	if !cfg.InitialCapital.IsPositive() {
		return nil, fmt.Errorf("initial capital must be positive, got %s", cfg.InitialCapital)
	}
	if !cfg.MaxDrawdown.IsPositive() || cfg.MaxDrawdown.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("max drawdown must be in (0,1), got %s", cfg.MaxDrawdown)
	}
	method, err := sizing.ParseMethod(string(cfg.SizingMethod))
	if err != nil {
		return nil, err
	}
	cfg.SizingMethod = method
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Engine{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "backtest").Logger(),
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// runState is everything one Run mutates.
type runState struct {
	runID   string
	symbol  string
	machine *position.Machine
	dd      *drawdownTracker

	closedPnL decimal.Decimal
	trades    []domain.TradeLog
	equity    []domain.EquitySample
	errs      []domain.ErrorRecord

	stopped    bool
	breaker    bool
	lossStreak int

	wins, losses int
	grossWin     decimal.Decimal
	grossLoss    decimal.Decimal

	lastBar    domain.Bar
	lastRegime domain.Regime
	bars       int
}

// capital is initial capital plus every realized leg, open position included.
func (s *runState) capital(initial decimal.Decimal) decimal.Decimal {
	c := initial.Add(s.closedPnL)
	if p, ok := s.machine.Position(); ok {
		c = c.Add(p.RealizedPnL)
	}
	return c
}

// Run simulates in. It returns a *RunError for insufficient or
// unsynchronizable history and the context error on cancellation; every
// other failure is recorded on the Result and the loop continues.
func (e *Engine) Run(ctx context.Context, in Input) (*domain.Result, error) {
	started := time.Now()
	cfg := e.cfg

	aligned, err := marketdata.Align(in.Fast, in.Slow, cfg.FastTimeframe, cfg.SlowTimeframe)
	if err != nil {
		if errors.Is(err, marketdata.ErrEmptySeries) {
			return nil, runError(KindInsufficientHistory, err, "%s: no bars", in.Symbol)
		}
		return nil, runError(KindDataSynchronization, err, "%s: align %s/%s", in.Symbol, cfg.FastTimeframe, cfg.SlowTimeframe)
	}
	fast, slow := aligned.Fast, aligned.Slow
	if len(fast) < cfg.MinFastBars || len(slow) < cfg.MinSlowBars || len(fast) <= cfg.WarmupBars {
		return nil, runError(KindInsufficientHistory, nil,
			"%s: %d fast / %d slow bars, need %d (warm-up %d) / %d",
			in.Symbol, len(fast), len(slow), max(cfg.MinFastBars, cfg.WarmupBars+1), cfg.WarmupBars, cfg.MinSlowBars)
	}

	st := &runState{
		runID:      in.RunID,
		symbol:     in.Symbol,
		dd:         newDrawdownTracker(cfg.InitialCapital, cfg.MaxDrawdown),
		closedPnL:  decimal.Zero,
		grossWin:   decimal.Zero,
		grossLoss:  decimal.Zero,
		lastRegime: domain.RegimeRanging,
	}
	if st.runID == "" {
		digest, err := idhash.ComputeConfigDigest(cfg)
		if err != nil {
			return nil, runError(KindUnexpectedComputation, err, "config digest")
		}
		st.runID = idhash.ComputeRunID(in.Symbol, string(cfg.FastTimeframe), string(cfg.SlowTimeframe),
			fast[0].TimestampMs, fast[len(fast)-1].TimestampMs, digest)
	}
	var exitFiller position.ExitFiller
	if e.deps.Slippage != nil {
		exitFiller = e.deps.Slippage
	}
	st.machine = position.NewMachine(e.deps.Position, exitFiller, e.logger)

	log := e.logger.With().Str("symbol", in.Symbol).Str("run_id", st.runID).Logger()
	log.Info().
		Int("fast_bars", len(fast)).
		Int("slow_bars", len(slow)).
		Int("fast_duplicates", aligned.Report.FastDuplicates).
		Int("fast_gaps", len(aligned.Report.FastGaps)).
		Bool("sparse", aligned.Report.Sparse).
		Str("initial_capital", cfg.InitialCapital.String()).
		Msg("backtest started")

	fastMs, slowMs := cfg.FastTimeframe.DurationMs(), cfg.SlowTimeframe.DurationMs()
	for i := cfg.WarmupBars; i < len(fast); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if st.stopped {
			break
		}

		bar := fast[i]
		nSlow := marketdata.SlowUpTo(slow, bar.TimestampMs+fastMs, slowMs)
		if nSlow < cfg.MinSlowHistory {
			continue
		}
		fastHist := tail(fast[:i+1], cfg.HistoryWindow)
		slowHist := tail(slow[:nSlow], cfg.HistoryWindow)

		st.lastBar = bar
		regime := e.detect(st, bar, fastHist, slowHist)
		st.lastRegime = regime

		if st.machine.IsOpen() {
			e.monitor(st, bar, regime)
		} else {
			e.tryEntry(st, bar, fastHist, slowHist, regime)
		}
		e.recordEquity(st, bar, regime)
		st.bars++
	}

	if st.bars == 0 {
		return nil, runError(KindInsufficientHistory, nil,
			"%s: no bar reached %d closed slow bars", in.Symbol, cfg.MinSlowHistory)
	}

	if st.machine.IsOpen() {
		reason := domain.ExitReasonEndOfRun
		if st.stopped {
			reason = domain.ExitReasonDrawdownLimit
		}
		tick := position.Tick{TimestampMs: st.lastBar.TimestampMs, Price: st.lastBar.Close, Regime: st.lastRegime}
		if t, err := st.machine.ForceClose(tick, reason); err == nil {
			e.closeTrade(st, t)
		}
	}

	res := metrics.Compute(st.trades, st.equity, cfg.InitialCapital)
	res.RunID = st.runID
	res.Symbol = in.Symbol
	res.Errors = st.errs
	res.StoppedByDrawdown = st.stopped
	res.BarsProcessed = st.bars

	log.Info().
		Int("bars", st.bars).
		Int("trades", res.TotalTrades).
		Float64("win_rate", res.WinRate).
		Str("total_pnl", res.TotalPnL.StringFixed(2)).
		Float64("max_drawdown", res.MaxDrawdown).
		Bool("stopped_by_drawdown", st.stopped).
		Int("errors", len(st.errs)).
		Dur("elapsed", time.Since(started)).
		Msg("backtest finished")
	return &res, nil
}

// detect classifies the regime; a panicking detector keeps the previous label.
func (e *Engine) detect(st *runState, bar domain.Bar, fast, slow []domain.Bar) domain.Regime {
	regime := st.lastRegime
	err := guard(func() error {
		regime = e.deps.Regime.Detect(fast, slow)
		return nil
	})
	if err != nil {
		e.recordError(st, bar.TimestampMs, KindUnexpectedComputation, fmt.Errorf("regime: %w", err), domain.SeverityError)
		return st.lastRegime
	}
	return regime
}

// monitor applies at most one position transition for the bar close.
func (e *Engine) monitor(st *runState, bar domain.Bar, regime domain.Regime) {
	tick := position.Tick{TimestampMs: bar.TimestampMs, Price: bar.Close, Regime: regime}
	tr, trade := st.machine.Update(tick)
	if trade != nil {
		e.closeTrade(st, trade)
		return
	}
	if tr == position.TransitionTP1 || tr == position.TransitionTP2 {
		p, _ := st.machine.Position()
		leg := p.Legs[len(p.Legs)-1]
		e.deps.Observer.OnEvent(Event{
			RunID:       st.runID,
			Symbol:      st.symbol,
			TimestampMs: bar.TimestampMs,
			Kind:        EventPartialExit,
			Side:        p.Side,
			Reason:      leg.Reason,
			Price:       leg.Price,
			Quantity:    leg.Quantity,
			Regime:      regime,
		})
	}
}

// tryEntry generates, vets, sizes and opens a position for the bar.
// Every rejection is silent apart from logs and observer events.
func (e *Engine) tryEntry(st *runState, bar domain.Bar, fast, slow []domain.Bar, regime domain.Regime) {
	cfg := e.cfg
	var sig domain.Signal
	err := guard(func() (err error) {
		sig, err = e.deps.Signals.Generate(fast, slow, regime)
		return err
	})
	if err != nil {
		e.recordError(st, bar.TimestampMs, KindUnexpectedComputation, err, domain.SeverityError)
		return
	}
	if !sig.IsActionable() {
		return
	}

	if !regime.IsTradeable() {
		e.event(st, bar, EventSuppressed, sig.Side, "regime "+string(regime), regime)
		return
	}
	if st.breaker {
		e.event(st, bar, EventSuppressed, sig.Side, "circuit breaker", regime)
		return
	}

	if e.deps.Filter != nil {
		if q := e.deps.Filter.Check(sig, fast, slow); !q.Passed {
			e.reject(st, bar, sig.Side, regime, "filter: "+q.Reason)
			return
		}
	}

	price := bar.Close
	tick := e.deps.Sizer.Filters().TickSize
	sl := sizing.RoundToTick(sig.StopLoss, tick)
	tp := sizing.RoundToTick(sig.TakeProfit, tick)
	if err := ValidateTrade(sig.Side, price, sl, tp, cfg.MinRewardRisk, cfg.MinStopDistance); err != nil {
		e.reject(st, bar, sig.Side, regime, err.Error())
		return
	}

	// The fill must still satisfy every setup rule, and it is what the
	// position is sized and valued at.
	volumeRatio := indicators.VolumeRatio(volumes(fast, cfg.VolumePeriod), cfg.VolumePeriod)
	entry := price
	if e.deps.Slippage != nil {
		entry = e.deps.Slippage.Entry(price, sig.Side, volumeRatio, regime, bar.TimestampMs)
	}
	if err := ValidateTrade(sig.Side, entry, sl, tp, cfg.MinRewardRisk, cfg.MinStopDistance); err != nil {
		e.reject(st, bar, sig.Side, regime, "after slippage: "+err.Error())
		return
	}

	req := sizing.Request{
		Capital:     st.capital(cfg.InitialCapital),
		Entry:       entry,
		StopLoss:    sl,
		Strength:    sig.Strength,
		VolumeRatio: volumeRatio,
		Regime:      regime,
		Method:      cfg.SizingMethod,
	}
	switch cfg.SizingMethod {
	case sizing.MethodKelly:
		if st.wins+st.losses < cfg.KellyMinTrades {
			req.Method = sizing.MethodRisk
		}
		req.Stats = st.tradeStats()
	case sizing.MethodVolatility:
		req.ATR, req.AvgATR = atrLevels(fast, cfg.ATRPeriod)
	}
	qty, err := e.deps.Sizer.Size(req)
	if err == nil {
		err = e.deps.Sizer.ValidateSize(qty, entry)
	}
	if err != nil {
		e.reject(st, bar, sig.Side, regime, err.Error())
		return
	}

	p, err := st.machine.Open(position.OpenRequest{
		Symbol:      st.symbol,
		Side:        sig.Side,
		Entry:       entry,
		Quantity:    qty,
		StopLoss:    sl,
		TakeProfit:  tp,
		TimestampMs: bar.TimestampMs,
		Strength:    sig.Strength,
		Regime:      regime,
	})
	if err != nil {
		e.recordError(st, bar.TimestampMs, KindUnexpectedComputation, err, domain.SeverityError)
		return
	}

	e.logger.Debug().
		Str("symbol", st.symbol).
		Str("side", string(p.Side)).
		Str("entry", p.EntryPrice.String()).
		Str("qty", p.EntryQuantity.String()).
		Float64("strength", sig.Strength).
		Str("regime", string(regime)).
		Msg("entry")
	e.deps.Observer.OnEvent(Event{
		RunID:       st.runID,
		Symbol:      st.symbol,
		TimestampMs: bar.TimestampMs,
		Kind:        EventEntry,
		Side:        p.Side,
		Price:       p.EntryPrice,
		Quantity:    p.EntryQuantity,
		Regime:      regime,
	})
}

// closeTrade assigns the trade id, folds PnL into capital and updates the
// losing streak.
func (e *Engine) closeTrade(st *runState, t *domain.TradeLog) {
	t.TradeID = idhash.ComputeTradeID(st.runID, len(st.trades)+1, string(t.Side), t.EntryTimeMs)
	st.closedPnL = st.closedPnL.Add(t.PnL)
	st.trades = append(st.trades, *t)

	e.logger.Debug().
		Str("symbol", st.symbol).
		Str("trade_id", t.TradeID).
		Str("reason", t.ExitReason).
		Str("pnl", t.PnL.StringFixed(4)).
		Msg("trade closed")
	e.deps.Observer.OnTrade(st.runID, *t)

	if t.Winning {
		st.wins++
		st.grossWin = st.grossWin.Add(t.PnL)
		st.lossStreak = 0
		return
	}
	st.losses++
	st.grossLoss = st.grossLoss.Add(t.PnL)
	st.lossStreak++
	if n := e.cfg.MaxConsecutiveLosses; n > 0 && st.lossStreak >= n && !st.breaker {
		st.breaker = true
		e.recordError(st, t.ExitTimeMs, KindCircuitBreaker,
			fmt.Errorf("%w: %d consecutive losses", ErrCircuitBreaker, st.lossStreak), domain.SeverityWarning)
		e.deps.Observer.OnEvent(Event{
			RunID:       st.runID,
			Symbol:      st.symbol,
			TimestampMs: t.ExitTimeMs,
			Kind:        EventCircuitBreaker,
			Reason:      fmt.Sprintf("%d consecutive losses", st.lossStreak),
		})
	}
}

// recordEquity appends the bar's equity sample and arms the kill-switch.
func (e *Engine) recordEquity(st *runState, bar domain.Bar, regime domain.Regime) {
	capital := st.capital(e.cfg.InitialCapital)
	equity := capital.Add(st.machine.Unrealized(bar.Close))
	dd, breached := st.dd.observe(equity)

	s := domain.EquitySample{
		TimestampMs: bar.TimestampMs,
		Equity:      equity,
		Capital:     capital,
		PeakEquity:  st.dd.peak,
		Drawdown:    dd,
		Regime:      regime,
	}
	st.equity = append(st.equity, s)
	e.deps.Observer.OnEquity(st.runID, st.symbol, s)

	if breached && !st.stopped {
		st.stopped = true
		e.logger.Warn().
			Str("symbol", st.symbol).
			Str("drawdown", dd.StringFixed(4)).
			Str("limit", e.cfg.MaxDrawdown.String()).
			Msg("drawdown limit reached, trading stopped")
		e.recordError(st, bar.TimestampMs, KindDrawdownLimitBreached,
			fmt.Errorf("%w: %s > %s", ErrDrawdownLimitBreached, dd.StringFixed(4), e.cfg.MaxDrawdown), domain.SeverityError)
		e.event(st, bar, EventKillSwitch, "", "drawdown "+dd.StringFixed(4), regime)
	}
}

func (e *Engine) reject(st *runState, bar domain.Bar, side domain.Side, regime domain.Regime, reason string) {
	e.logger.Debug().
		Str("symbol", st.symbol).
		Int64("ts", bar.TimestampMs).
		Str("side", string(side)).
		Str("reason", reason).
		Msg("setup rejected")
	e.event(st, bar, EventRejected, side, reason, regime)
}

func (e *Engine) event(st *runState, bar domain.Bar, kind EventKind, side domain.Side, reason string, regime domain.Regime) {
	e.deps.Observer.OnEvent(Event{
		RunID:       st.runID,
		Symbol:      st.symbol,
		TimestampMs: bar.TimestampMs,
		Kind:        kind,
		Side:        side,
		Reason:      reason,
		Price:       bar.Close,
		Quantity:    decimal.Zero,
		Regime:      regime,
	})
}

func (e *Engine) recordError(st *runState, ts int64, kind ErrorKind, err error, severity string) {
	st.errs = append(st.errs, domain.ErrorRecord{
		TimestampMs: ts,
		Kind:        string(kind),
		Message:     err.Error(),
		Severity:    severity,
	})
	if severity == domain.SeverityError {
		e.logger.Error().Err(err).Str("symbol", st.symbol).Int64("ts", ts).Str("kind", string(kind)).Msg("bar error")
	} else {
		e.logger.Warn().Err(err).Str("symbol", st.symbol).Int64("ts", ts).Str("kind", string(kind)).Msg("bar warning")
	}
	if kind == KindUnexpectedComputation {
		e.deps.Observer.OnEvent(Event{
			RunID:       st.runID,
			Symbol:      st.symbol,
			TimestampMs: ts,
			Kind:        EventError,
			Reason:      err.Error(),
		})
	}
}

// guard converts a panic in fn into an ErrUnexpectedComputation error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrUnexpectedComputation, r)
		}
	}()
	return fn()
}

// tradeStats summarizes the closed trades for Kelly sizing.
func (s *runState) tradeStats() sizing.TradeStats {
	ts := sizing.TradeStats{Trades: s.wins + s.losses, AvgWin: decimal.Zero, AvgLoss: decimal.Zero}
	if ts.Trades == 0 {
		return ts
	}
	ts.WinRate = float64(s.wins) / float64(ts.Trades)
	if s.wins > 0 {
		ts.AvgWin = s.grossWin.Div(decimal.NewFromInt(int64(s.wins)))
	}
	if s.losses > 0 {
		ts.AvgLoss = s.grossLoss.Div(decimal.NewFromInt(int64(s.losses)))
	}
	return ts
}

// atrLevels returns the latest ATR of bars and the mean of its defined
// values. Both are zero while the ATR is still warming up.
func atrLevels(bars []domain.Bar, period int) (float64, float64) {
	s := indicators.FromBars(bars)
	atr := indicators.ATR(s.High, s.Low, s.Close, period)
	last, ok := indicators.Last(atr)
	if !ok {
		return 0, 0
	}
	var sum float64
	var n int
	for _, v := range atr {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	return last, sum / float64(n)
}

func tail(bars []domain.Bar, n int) []domain.Bar {
	if n <= 0 || len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

// volumes returns the float volumes of the last n bars.
func volumes(bars []domain.Bar, n int) []float64 {
	bars = tail(bars, n)
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume.InexactFloat64()
	}
	return out
}
