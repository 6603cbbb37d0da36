package reporting

import (
	"time"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/metrics"
)

// Report covers one or more symbol runs.
type Report struct {
	GeneratedAt time.Time
	Runs        []RunReport // sorted by symbol, then run_id
	Failures    []Failure   // symbols whose run aborted
}

// RunReport is one run with its grade.
type RunReport struct {
	Summary    *domain.RunSummary // nil for runs that were not persisted
	Result     domain.Result
	Evaluation metrics.Evaluation

	// Discrepancies between stored and recomputed statistics, only for
	// runs loaded from storage.
	Discrepancies []string
}

// Failure is a symbol whose run returned an error instead of a result.
type Failure struct {
	Symbol string
	Error  string
}

// Totals sums trade counts and PnL across runs.
type Totals struct {
	Runs          int
	TotalTrades   int
	WinningTrades int
	TotalPnL      float64
}

// Totals aggregates the report's runs.
func (r *Report) Totals() Totals {
	t := Totals{Runs: len(r.Runs)}
	for _, run := range r.Runs {
		t.TotalTrades += run.Result.TotalTrades
		t.WinningTrades += run.Result.WinningTrades
		t.TotalPnL += run.Result.TotalPnL.InexactFloat64()
	}
	return t
}
