package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu     sync.RWMutex
	series map[string]map[int64]domain.Bar // keyed by symbol|timeframe, then timestamp_ms
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		series: make(map[string]map[int64]domain.Bar),
	}
}

func seriesKey(symbol string, tf domain.Timeframe) string {
	return fmt.Sprintf("%s|%s", symbol, tf)
}

// InsertBulk adds bars. Fails entire batch on duplicate.
func (s *BarStore) InsertBulk(_ context.Context, symbol string, tf domain.Timeframe, bars []domain.Bar) error {
	if symbol == "" || tf.DurationMs() == 0 {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey(symbol, tf)
	existing := s.series[key]

	batch := make(map[int64]struct{}, len(bars))
	for _, b := range bars {
		if _, ok := existing[b.TimestampMs]; ok {
			return storage.ErrDuplicateKey
		}
		if _, ok := batch[b.TimestampMs]; ok {
			return storage.ErrDuplicateKey
		}
		batch[b.TimestampMs] = struct{}{}
	}

	if existing == nil {
		existing = make(map[int64]domain.Bar, len(bars))
		s.series[key] = existing
	}
	for _, b := range bars {
		existing[b.TimestampMs] = b
	}
	return nil
}

// GetRange retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
func (s *BarStore) GetRange(_ context.Context, symbol string, tf domain.Timeframe, start, end int64) ([]domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Bar
	for ts, b := range s.series[seriesKey(symbol, tf)] {
		if ts >= start && ts <= end {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})
	return result, nil
}

// Bounds returns the first and last stored timestamps.
func (s *BarStore) Bounds(_ context.Context, symbol string, tf domain.Timeframe) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bars := s.series[seriesKey(symbol, tf)]
	if len(bars) == 0 {
		return 0, 0, storage.ErrNotFound
	}
	first, last := int64(0), int64(0)
	started := false
	for ts := range bars {
		if !started || ts < first {
			first = ts
		}
		if !started || ts > last {
			last = ts
		}
		started = true
	}
	return first, last, nil
}

var _ storage.BarStore = (*BarStore)(nil)
