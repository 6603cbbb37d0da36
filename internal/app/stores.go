// Package app holds the wiring shared by the command binaries: store
// selection, input loading and run persistence.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"scalping-backtest-lab/internal/config"
	"scalping-backtest-lab/internal/metrics"
	"scalping-backtest-lab/internal/storage"
	chstore "scalping-backtest-lab/internal/storage/clickhouse"
	"scalping-backtest-lab/internal/storage/memory"
	"scalping-backtest-lab/internal/storage/migrations"
	pgstore "scalping-backtest-lab/internal/storage/postgres"
)

// Stores groups the four stores a process works with.
type Stores struct {
	Bars   storage.BarStore
	Runs   storage.RunStore
	Trades storage.TradeLogStore
	Equity storage.EquityStore

	// Backend names, "memory", "postgres" or "clickhouse", for logging.
	BarBackend string
	RunBackend string

	closers []func()
}

// MemoryStores returns process-local stores.
func MemoryStores() *Stores {
	return &Stores{
		Bars:       memory.NewBarStore(),
		Runs:       memory.NewRunStore(),
		Trades:     memory.NewTradeLogStore(),
		Equity:     memory.NewEquityStore(),
		BarBackend: "memory",
		RunBackend: "memory",
	}
}

// OpenStores connects to the configured databases and applies migrations.
// ClickHouse backs bars and equity, PostgreSQL backs runs and trades; a
// missing DSN leaves that half in memory.
func OpenStores(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (*Stores, error) {
	s := MemoryStores()

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouse(ctx, cfg.ClickhouseDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("open clickhouse: %w", err)
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		s.Bars = chstore.NewBarStore(conn)
		s.Equity = chstore.NewEquityStore(conn)
		s.BarBackend = "clickhouse"
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := migrations.RunPostgres(ctx, pool, logger); err != nil {
			s.Close()
			return nil, err
		}
		s.Runs = pgstore.NewRunStore(pool)
		s.Trades = pgstore.NewTradeLogStore(pool)
		s.RunBackend = "postgres"
	}

	logger.Info().Str("bars", s.BarBackend).Str("runs", s.RunBackend).Msg("stores ready")
	return s, nil
}

// Aggregator returns a metrics aggregator over the run stores.
func (s *Stores) Aggregator() *metrics.Aggregator {
	return metrics.NewAggregator(s.Runs, s.Trades, s.Equity)
}

// Close releases database connections in reverse order of opening.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
