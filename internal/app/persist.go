package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scalping-backtest-lab/internal/backtest"
	"scalping-backtest-lab/internal/config"
	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/metrics"
	"scalping-backtest-lab/internal/storage"
)

// ErrAlreadyPersisted is returned by Persist for a run id that is stored.
var ErrAlreadyPersisted = errors.New("run already persisted")

// NewRunSummary describes a finished run of in under cfg.
func NewRunSummary(cfg *config.Config, in backtest.Input, res *domain.Result, now time.Time) (*domain.RunSummary, error) {
	if len(in.Fast) == 0 {
		return nil, fmt.Errorf("run summary of %s: no bars", in.Symbol)
	}
	digest, err := cfg.Digest()
	if err != nil {
		return nil, err
	}
	return &domain.RunSummary{
		RunID:         res.RunID,
		Symbol:        res.Symbol,
		FastTimeframe: domain.Timeframe(cfg.Backtest.FastTimeframe),
		SlowTimeframe: domain.Timeframe(cfg.Backtest.SlowTimeframe),
		ConfigDigest:  digest,
		FirstBarMs:    in.Fast[0].TimestampMs,
		LastBarMs:     in.Fast[len(in.Fast)-1].TimestampMs,
		CreatedAtMs:   now.UnixMilli(),
	}, nil
}

// Persist records a run through the aggregator. Runs are append-only, so
// a second persist of the same run id returns ErrAlreadyPersisted.
func Persist(ctx context.Context, agg *metrics.Aggregator, cfg *config.Config, in backtest.Input, res *domain.Result, now time.Time) error {
	summary, err := NewRunSummary(cfg, in, res, now)
	if err != nil {
		return err
	}
	if err := agg.Record(ctx, summary, res); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("%s: %w", res.RunID, ErrAlreadyPersisted)
		}
		return err
	}
	return nil
}
