package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/storage"
	"scalping-backtest-lab/internal/storage/memory"
)

func newTestAggregator() *Aggregator {
	return NewAggregator(memory.NewRunStore(), memory.NewTradeLogStore(), memory.NewEquityStore())
}

func sampleResult() domain.Result {
	trades := []domain.TradeLog{
		{TradeID: "t1", Side: domain.SideBuy, PnL: d("120"), Winning: true, ExitTimeMs: 2000},
		{TradeID: "t2", Side: domain.SideSell, PnL: d("-40"), ExitTimeMs: 4000},
	}
	equity := []domain.EquitySample{
		{TimestampMs: 1000, Equity: d("10000"), Drawdown: d("0")},
		{TimestampMs: 2000, Equity: d("10120"), Drawdown: d("0")},
		{TimestampMs: 3000, Equity: d("10060"), Drawdown: d("0.005")},
		{TimestampMs: 4000, Equity: d("10080"), Drawdown: d("0.004")},
	}
	res := Compute(trades, equity, d("10000"))
	res.RunID = "run-1"
	res.Symbol = "BTCUSDT"
	res.BarsProcessed = 4
	res.Errors = []domain.ErrorRecord{{Kind: "UnexpectedComputationError", Severity: domain.SeverityError}}
	return res
}

func TestAggregator_RecordAndLoad(t *testing.T) {
	ctx := context.Background()
	agg := newTestAggregator()
	res := sampleResult()

	summary := &domain.RunSummary{RunID: "run-1", Symbol: "BTCUSDT", FastTimeframe: domain.Timeframe5m}
	require.NoError(t, agg.Record(ctx, summary, &res))

	gotSummary, got, err := agg.Load(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, domain.Timeframe5m, gotSummary.FastTimeframe)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, 2, got.TotalTrades)
	assert.True(t, got.TotalPnL.Equal(d("80")))
	assert.True(t, got.FinalCapital.Equal(d("10080")))
	assert.Equal(t, 4, got.BarsProcessed)
	assert.Len(t, got.Errors, 1)
	assert.Empty(t, Discrepancies(res, *got))
}

func TestAggregator_RecordDuplicate(t *testing.T) {
	ctx := context.Background()
	agg := newTestAggregator()
	res := sampleResult()

	require.NoError(t, agg.Record(ctx, &domain.RunSummary{RunID: "run-1"}, &res))
	err := agg.Record(ctx, &domain.RunSummary{RunID: "run-1"}, &res)
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey), "got %v", err)
}

func TestAggregator_LoadMissing(t *testing.T) {
	_, _, err := newTestAggregator().Load(context.Background(), "nope")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
}

func TestAggregator_LoadWithoutEquity(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewRunStore()
	require.NoError(t, runs.Insert(ctx, &domain.RunSummary{RunID: "r"}))

	agg := NewAggregator(runs, memory.NewTradeLogStore(), memory.NewEquityStore())
	_, _, err := agg.Load(ctx, "r")
	assert.True(t, errors.Is(err, ErrIncompleteRun), "got %v", err)
}

func TestDiscrepancies(t *testing.T) {
	a := sampleResult()
	b := a
	b.TotalPnL = d("81")
	b.MaxDrawdown = 0.9

	got := Discrepancies(a, b)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "total_pnl")
	assert.Contains(t, got[1], "max_drawdown")
}
