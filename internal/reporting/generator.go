package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/metrics"
	"scalping-backtest-lab/internal/storage"
)

// Generator produces reports from fresh results or stored runs.
type Generator struct {
	aggregator *metrics.Aggregator
	runStore   storage.RunStore
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a report generator. Both stores may be nil when only
// FromResults is used.
func NewGenerator(aggregator *metrics.Aggregator, runStore storage.RunStore) *Generator {
	return &Generator{
		aggregator: aggregator,
		runStore:   runStore,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// FromResults builds a report over results produced in this process.
func (g *Generator) FromResults(results []domain.Result, failures []Failure) *Report {
	runs := make([]RunReport, 0, len(results))
	for _, res := range results {
		runs = append(runs, RunReport{Result: res, Evaluation: metrics.Evaluate(res)})
	}
	return g.build(runs, failures)
}

// Generate loads stored runs by id and recomputes their statistics.
func (g *Generator) Generate(ctx context.Context, runIDs ...string) (*Report, error) {
	if g.aggregator == nil {
		return nil, fmt.Errorf("generate report: no storage configured")
	}
	runs := make([]RunReport, 0, len(runIDs))
	for _, id := range runIDs {
		summary, res, err := g.aggregator.Load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load run %s: %w", id, err)
		}
		runs = append(runs, RunReport{
			Summary:       summary,
			Result:        *res,
			Evaluation:    metrics.Evaluate(*res),
			Discrepancies: metrics.Discrepancies(summary.Stats, *res),
		})
	}
	return g.build(runs, nil), nil
}

// Latest reports the newest stored run of each symbol. Symbols without runs
// are listed as failures.
func (g *Generator) Latest(ctx context.Context, symbols ...string) (*Report, error) {
	if g.runStore == nil {
		return nil, fmt.Errorf("generate report: no storage configured")
	}
	var ids []string
	var failures []Failure
	for _, symbol := range symbols {
		runs, err := g.runStore.GetBySymbol(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("list runs of %s: %w", symbol, err)
		}
		if len(runs) == 0 {
			failures = append(failures, Failure{Symbol: symbol, Error: "no stored runs"})
			continue
		}
		ids = append(ids, runs[0].RunID)
	}
	r, err := g.Generate(ctx, ids...)
	if err != nil {
		return nil, err
	}
	r.Failures = failures
	return r, nil
}

func (g *Generator) build(runs []RunReport, failures []Failure) *Report {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].Result.Symbol != runs[j].Result.Symbol {
			return runs[i].Result.Symbol < runs[j].Result.Symbol
		}
		return runs[i].Result.RunID < runs[j].Result.RunID
	})
	sort.SliceStable(failures, func(i, j int) bool { return failures[i].Symbol < failures[j].Symbol })
	return &Report{
		GeneratedAt: g.now(),
		Runs:        runs,
		Failures:    failures,
	}
}
