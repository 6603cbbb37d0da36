package storage

import (
	"context"

	"scalping-backtest-lab/internal/domain"
)

// BarStore provides access to OHLCV bar storage.
type BarStore interface {
	// InsertBulk adds bars for one (symbol, timeframe). Fails entire batch on
	// duplicate timestamp, within the batch or against stored bars.
	InsertBulk(ctx context.Context, symbol string, tf domain.Timeframe, bars []domain.Bar) error

	// GetRange retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
	GetRange(ctx context.Context, symbol string, tf domain.Timeframe, start, end int64) ([]domain.Bar, error)

	// Bounds returns the first and last stored timestamps. Returns ErrNotFound if empty.
	Bounds(ctx context.Context, symbol string, tf domain.Timeframe) (first, last int64, err error)
}

// RunStore provides access to run summaries.
type RunStore interface {
	// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.RunSummary) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.RunSummary, error)

	// GetBySymbol retrieves all runs for a symbol, newest first.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.RunSummary, error)
}

// TradeLogStore provides access to closed trades.
type TradeLogStore interface {
	// InsertBulk adds trades of one run atomically. Fails entire batch on any duplicate trade_id.
	InsertBulk(ctx context.Context, runID string, trades []domain.TradeLog) error

	// GetByRunID retrieves trades of a run ordered by exit time ASC, trade_id ASC.
	GetByRunID(ctx context.Context, runID string) ([]domain.TradeLog, error)
}

// EquityStore provides access to per-bar equity samples.
type EquityStore interface {
	// InsertBulk adds samples of one run. Fails entire batch on duplicate (run_id, timestamp_ms).
	InsertBulk(ctx context.Context, runID string, samples []domain.EquitySample) error

	// GetByRunID retrieves samples of a run ordered by timestamp ASC.
	GetByRunID(ctx context.Context, runID string) ([]domain.EquitySample, error)
}
