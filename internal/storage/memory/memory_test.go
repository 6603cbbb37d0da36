package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/storage"
)

func bar(ts int64, close int64) domain.Bar {
	c := decimal.NewFromInt(close)
	return domain.Bar{TimestampMs: ts, Open: c, High: c, Low: c, Close: c, Volume: decimal.NewFromInt(1)}
}

func TestBarStore_InsertBulkAndGetRange(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	bars := []domain.Bar{bar(3000, 3), bar(1000, 1), bar(2000, 2)}
	if err := store.InsertBulk(ctx, "BTCUSDT", domain.Timeframe5m, bars); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetRange(ctx, "BTCUSDT", domain.Timeframe5m, 1500, 3000)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(got) != 2 || got[0].TimestampMs != 2000 || got[1].TimestampMs != 3000 {
		t.Errorf("unexpected range: %+v", got)
	}

	// other timeframe is a separate series
	other, _ := store.GetRange(ctx, "BTCUSDT", domain.Timeframe15m, 0, 10_000)
	if len(other) != 0 {
		t.Errorf("expected empty 15m series, got %d", len(other))
	}

	first, last, err := store.Bounds(ctx, "BTCUSDT", domain.Timeframe5m)
	if err != nil || first != 1000 || last != 3000 {
		t.Errorf("Bounds = %d, %d, %v", first, last, err)
	}
}

func TestBarStore_Duplicates(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, "X", domain.Timeframe1m, []domain.Bar{bar(1000, 1)}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.InsertBulk(ctx, "X", domain.Timeframe1m, []domain.Bar{bar(1000, 2)}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	err := store.InsertBulk(ctx, "X", domain.Timeframe1m, []domain.Bar{bar(5000, 1), bar(5000, 2)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}
	got, _ := store.GetRange(ctx, "X", domain.Timeframe1m, 0, 10_000)
	if len(got) != 1 {
		t.Errorf("failed batch must not be partially applied, got %d bars", len(got))
	}
}

func TestBarStore_InvalidInput(t *testing.T) {
	store := NewBarStore()
	if err := store.InsertBulk(context.Background(), "", domain.Timeframe1m, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, _, err := store.Bounds(context.Background(), "X", domain.Timeframe1m); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunStore(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	older := &domain.RunSummary{RunID: "r1", Symbol: "BTCUSDT", CreatedAtMs: 1000}
	newer := &domain.RunSummary{RunID: "r2", Symbol: "BTCUSDT", CreatedAtMs: 2000}
	newer.Stats.Trades = []domain.TradeLog{{TradeID: "t"}}

	for _, r := range []*domain.RunSummary{older, newer} {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := store.Insert(ctx, older); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetByID(ctx, "r2")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Stats.Trades != nil {
		t.Error("run summary must not keep trades")
	}

	runs, _ := store.GetBySymbol(ctx, "BTCUSDT")
	if len(runs) != 2 || runs[0].RunID != "r2" {
		t.Errorf("expected newest first, got %+v", runs)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTradeLogStore(t *testing.T) {
	store := NewTradeLogStore()
	ctx := context.Background()

	trades := []domain.TradeLog{
		{TradeID: "b", ExitTimeMs: 2000, Legs: []domain.ExitLeg{{Reason: "TP1"}}},
		{TradeID: "a", ExitTimeMs: 1000},
	}
	if err := store.InsertBulk(ctx, "run", trades); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRunID(ctx, "run")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(got) != 2 || got[0].TradeID != "a" {
		t.Errorf("unexpected order: %+v", got)
	}

	// returned legs are copies
	got[1].Legs[0].Reason = "changed"
	again, _ := store.GetByRunID(ctx, "run")
	if again[1].Legs[0].Reason != "TP1" {
		t.Error("store state mutated through returned slice")
	}

	if err := store.InsertBulk(ctx, "run2", []domain.TradeLog{{TradeID: "a"}}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if err := store.InsertBulk(ctx, "run2", []domain.TradeLog{{}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEquityStore(t *testing.T) {
	store := NewEquityStore()
	ctx := context.Background()

	samples := []domain.EquitySample{
		{TimestampMs: 2000, Equity: decimal.NewFromInt(101)},
		{TimestampMs: 1000, Equity: decimal.NewFromInt(100)},
	}
	if err := store.InsertBulk(ctx, "run", samples); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	got, _ := store.GetByRunID(ctx, "run")
	if len(got) != 2 || got[0].TimestampMs != 1000 {
		t.Errorf("unexpected samples: %+v", got)
	}

	if err := store.InsertBulk(ctx, "run", samples[:1]); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	// same timestamp under another run is fine
	if err := store.InsertBulk(ctx, "other", samples[:1]); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
