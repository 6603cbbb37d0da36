package clickhouse

import (
	"context"
	"fmt"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/storage"
)

// EquityStore implements storage.EquityStore using ClickHouse.
type EquityStore struct {
	conn *Conn
}

// NewEquityStore creates a new EquityStore.
func NewEquityStore(conn *Conn) *EquityStore {
	return &EquityStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EquityStore = (*EquityStore)(nil)

// InsertBulk adds samples of one run. Fails entire batch on duplicate (run_id, timestamp_ms).
func (s *EquityStore) InsertBulk(ctx context.Context, runID string, samples []domain.EquitySample) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(samples) == 0 {
		return nil
	}

	seen := make(map[int64]struct{}, len(samples))
	stamps := make([]uint64, 0, len(samples))
	for _, e := range samples {
		if _, exists := seen[e.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.TimestampMs] = struct{}{}
		stamps = append(stamps, uint64(e.TimestampMs))
	}

	var existing uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM equity_samples
		WHERE run_id = ? AND timestamp_ms IN (?)
	`, runID, stamps).Scan(&existing)
	if err != nil {
		return fmt.Errorf("check existing samples: %w", err)
	}
	if existing > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO equity_samples (run_id, timestamp_ms, equity, capital, peak_equity, drawdown, regime)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, e := range samples {
		err = batch.Append(runID, uint64(e.TimestampMs), e.Equity, e.Capital, e.PeakEquity, e.Drawdown, string(e.Regime))
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRunID retrieves samples of a run ordered by timestamp ASC.
func (s *EquityStore) GetByRunID(ctx context.Context, runID string) ([]domain.EquitySample, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT timestamp_ms, equity, capital, peak_equity, drawdown, regime
		FROM equity_samples
		WHERE run_id = ?
		ORDER BY timestamp_ms ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query equity by run id: %w", err)
	}
	defer rows.Close()

	return scanEquity(rows)
}

func scanEquity(rows chRows) ([]domain.EquitySample, error) {
	var samples []domain.EquitySample

	for rows.Next() {
		var e domain.EquitySample
		var ts uint64
		var regime string
		if err := rows.Scan(&ts, &e.Equity, &e.Capital, &e.PeakEquity, &e.Drawdown, &regime); err != nil {
			return nil, fmt.Errorf("scan equity row: %w", err)
		}
		e.TimestampMs = int64(ts)
		e.Regime = domain.Regime(regime)
		samples = append(samples, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equity rows: %w", err)
	}
	return samples, nil
}
