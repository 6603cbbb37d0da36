package clickhouse

import (
	"context"
	"fmt"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertBulk adds bars for one (symbol, timeframe). Fails entire batch on
// duplicate timestamp. MergeTree does not enforce keys, so duplicates are
// checked before the batch is sent.
func (s *BarStore) InsertBulk(ctx context.Context, symbol string, tf domain.Timeframe, bars []domain.Bar) error {
	if symbol == "" || tf.DurationMs() == 0 {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}

	seen := make(map[int64]struct{}, len(bars))
	stamps := make([]uint64, 0, len(bars))
	for _, b := range bars {
		if _, exists := seen[b.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
		seen[b.TimestampMs] = struct{}{}
		stamps = append(stamps, uint64(b.TimestampMs))
	}

	var existing uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM bars
		WHERE symbol = ? AND timeframe = ? AND timestamp_ms IN (?)
	`, symbol, string(tf), stamps).Scan(&existing)
	if err != nil {
		return fmt.Errorf("check existing bars: %w", err)
	}
	if existing > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bars (symbol, timeframe, timestamp_ms, open, high, low, close, volume)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, b := range bars {
		err = batch.Append(symbol, string(tf), uint64(b.TimestampMs), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetRange retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
func (s *BarStore) GetRange(ctx context.Context, symbol string, tf domain.Timeframe, start, end int64) ([]domain.Bar, error) {
	if start < 0 {
		start = 0
	}
	if end < start {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT timestamp_ms, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`, symbol, string(tf), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query bar range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// Bounds returns the first and last stored timestamps. Returns ErrNotFound if empty.
func (s *BarStore) Bounds(ctx context.Context, symbol string, tf domain.Timeframe) (int64, int64, error) {
	var first, last, n uint64
	err := s.conn.QueryRow(ctx, `
		SELECT min(timestamp_ms), max(timestamp_ms), count()
		FROM bars
		WHERE symbol = ? AND timeframe = ?
	`, symbol, string(tf)).Scan(&first, &last, &n)
	if err != nil {
		return 0, 0, fmt.Errorf("query bar bounds: %w", err)
	}
	if n == 0 {
		return 0, 0, storage.ErrNotFound
	}
	return int64(first), int64(last), nil
}

func scanBars(rows chRows) ([]domain.Bar, error) {
	var bars []domain.Bar

	for rows.Next() {
		var b domain.Bar
		var ts uint64
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		b.TimestampMs = int64(ts)
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}
	return bars, nil
}
