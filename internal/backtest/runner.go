package backtest

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/storage"
)

// Runner loads bar histories from storage and runs engines over them.
type Runner struct {
	bars storage.BarStore
}

// NewRunner creates a Runner reading from bars.
func NewRunner(bars storage.BarStore) *Runner {
	return &Runner{bars: bars}
}

// Load reads fast and slow bars of symbol within [from, to]. A zero range
// loads the full stored fast range; the slow series is widened backwards so
// that the first fast bar has slow history.
func (r *Runner) Load(ctx context.Context, symbol string, cfg Config, from, to int64) (Input, error) {
	if from == 0 && to == 0 {
		first, last, err := r.bars.Bounds(ctx, symbol, cfg.FastTimeframe)
		if err != nil {
			return Input{}, fmt.Errorf("bounds %s %s: %w", symbol, cfg.FastTimeframe, err)
		}
		from, to = first, last
	}

	fast, err := r.bars.GetRange(ctx, symbol, cfg.FastTimeframe, from, to)
	if err != nil {
		return Input{}, fmt.Errorf("load %s %s: %w", symbol, cfg.FastTimeframe, err)
	}
	slowFrom := from - int64(cfg.MinSlowHistory)*cfg.SlowTimeframe.DurationMs()
	slow, err := r.bars.GetRange(ctx, symbol, cfg.SlowTimeframe, slowFrom, to)
	if err != nil {
		return Input{}, fmt.Errorf("load %s %s: %w", symbol, cfg.SlowTimeframe, err)
	}
	return Input{Symbol: symbol, Fast: fast, Slow: slow}, nil
}

// Run loads symbol and runs e over it.
func (r *Runner) Run(ctx context.Context, e *Engine, symbol string, from, to int64) (*domain.Result, error) {
	in, err := r.Load(ctx, symbol, e.Config(), from, to)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, in)
}

// EngineFactory builds a fresh Engine for one symbol. Engines own mutable
// collaborators (position machine, slippage history) and are never shared.
type EngineFactory func(symbol string) (*Engine, error)

// SymbolResult is the outcome of one symbol in a multi-symbol run.
type SymbolResult struct {
	Symbol string
	Result *domain.Result
	Err    error
}

// RunSymbols runs every input on its own engine with at most limit engines
// in flight (limit <= 0 means unbounded). Per-symbol failures are reported
// in the SymbolResult; only context cancellation aborts the batch. Results
// keep the order of inputs.
func RunSymbols(ctx context.Context, inputs []Input, newEngine EngineFactory, limit int) ([]SymbolResult, error) {
	out := make([]SymbolResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, in := range inputs {
		g.Go(func() error {
			res := SymbolResult{Symbol: in.Symbol}
			e, err := newEngine(in.Symbol)
			if err == nil {
				res.Result, err = e.Run(gctx, in)
			}
			res.Err = err
			out[i] = res
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
