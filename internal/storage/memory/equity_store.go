package memory

import (
	"context"
	"sort"
	"sync"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/storage"
)

// EquityStore is an in-memory implementation of storage.EquityStore.
type EquityStore struct {
	mu    sync.RWMutex
	byRun map[string]map[int64]domain.EquitySample // keyed by run_id, then timestamp_ms
}

// NewEquityStore creates a new in-memory equity store.
func NewEquityStore() *EquityStore {
	return &EquityStore{
		byRun: make(map[string]map[int64]domain.EquitySample),
	}
}

// InsertBulk adds samples. Fails entire batch on duplicate (run_id, timestamp_ms).
func (s *EquityStore) InsertBulk(_ context.Context, runID string, samples []domain.EquitySample) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.byRun[runID]
	batch := make(map[int64]struct{}, len(samples))
	for _, e := range samples {
		if _, ok := existing[e.TimestampMs]; ok {
			return storage.ErrDuplicateKey
		}
		if _, ok := batch[e.TimestampMs]; ok {
			return storage.ErrDuplicateKey
		}
		batch[e.TimestampMs] = struct{}{}
	}

	if existing == nil {
		existing = make(map[int64]domain.EquitySample, len(samples))
		s.byRun[runID] = existing
	}
	for _, e := range samples {
		existing[e.TimestampMs] = e
	}
	return nil
}

// GetByRunID retrieves samples of a run ordered by timestamp ASC.
func (s *EquityStore) GetByRunID(_ context.Context, runID string) ([]domain.EquitySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.EquitySample, 0, len(s.byRun[runID]))
	for _, e := range s.byRun[runID] {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})
	return result, nil
}

var _ storage.EquityStore = (*EquityStore)(nil)
