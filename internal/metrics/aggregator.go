package metrics

import (
	"context"
	"errors"
	"fmt"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/storage"
)

// ErrIncompleteRun is returned when a stored run has no equity samples.
var ErrIncompleteRun = errors.New("run has no equity samples")

// Aggregator persists run results and recomputes statistics from stored
// trades and equity.
type Aggregator struct {
	runStore    storage.RunStore
	tradeStore  storage.TradeLogStore
	equityStore storage.EquityStore
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(runStore storage.RunStore, tradeStore storage.TradeLogStore, equityStore storage.EquityStore) *Aggregator {
	return &Aggregator{
		runStore:    runStore,
		tradeStore:  tradeStore,
		equityStore: equityStore,
	}
}

// Record persists the run summary, its trades and its equity curve.
// Returns storage.ErrDuplicateKey if the run already exists (append-only).
func (a *Aggregator) Record(ctx context.Context, summary *domain.RunSummary, res *domain.Result) error {
	summary.Stats = *res
	if err := a.runStore.Insert(ctx, summary); err != nil {
		return fmt.Errorf("insert run %s: %w", summary.RunID, err)
	}
	if err := a.tradeStore.InsertBulk(ctx, summary.RunID, res.Trades); err != nil {
		return fmt.Errorf("insert trades of %s: %w", summary.RunID, err)
	}
	if err := a.equityStore.InsertBulk(ctx, summary.RunID, res.EquityCurve); err != nil {
		return fmt.Errorf("insert equity of %s: %w", summary.RunID, err)
	}
	return nil
}

// Load rebuilds the full result of a stored run. Statistics are recomputed
// from the stored trades and equity; run-level fields come from the summary.
// Returns storage.ErrNotFound if the run does not exist.
func (a *Aggregator) Load(ctx context.Context, runID string) (*domain.RunSummary, *domain.Result, error) {
	summary, err := a.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	trades, err := a.tradeStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	equity, err := a.equityStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	if len(equity) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", runID, ErrIncompleteRun)
	}

	res := Compute(trades, equity, summary.Stats.InitialCapital)
	res.RunID = summary.RunID
	res.Symbol = summary.Symbol
	res.Errors = summary.Stats.Errors
	res.StoppedByDrawdown = summary.Stats.StoppedByDrawdown
	res.BarsProcessed = summary.Stats.BarsProcessed
	return summary, &res, nil
}

// Discrepancies compares stored statistics with a recomputation and
// returns one message per differing field, sorted by field order.
func Discrepancies(stored, recomputed domain.Result) []string {
	var out []string
	check := func(field string, equal bool, a, b any) {
		if !equal {
			out = append(out, fmt.Sprintf("%s: stored %v, recomputed %v", field, a, b))
		}
	}
	check("total_trades", stored.TotalTrades == recomputed.TotalTrades, stored.TotalTrades, recomputed.TotalTrades)
	check("winning_trades", stored.WinningTrades == recomputed.WinningTrades, stored.WinningTrades, recomputed.WinningTrades)
	check("total_pnl", stored.TotalPnL.Equal(recomputed.TotalPnL), stored.TotalPnL, recomputed.TotalPnL)
	check("final_capital", stored.FinalCapital.Equal(recomputed.FinalCapital), stored.FinalCapital, recomputed.FinalCapital)
	check("max_drawdown", stored.MaxDrawdown == recomputed.MaxDrawdown, stored.MaxDrawdown, recomputed.MaxDrawdown)
	return out
}
