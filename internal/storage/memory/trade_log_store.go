package memory

import (
	"context"
	"sort"
	"sync"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/storage"
)

// TradeLogStore is an in-memory implementation of storage.TradeLogStore.
type TradeLogStore struct {
	mu    sync.RWMutex
	byRun map[string][]domain.TradeLog
	ids   map[string]struct{} // every stored trade_id
}

// NewTradeLogStore creates a new in-memory trade log store.
func NewTradeLogStore() *TradeLogStore {
	return &TradeLogStore{
		byRun: make(map[string][]domain.TradeLog),
		ids:   make(map[string]struct{}),
	}
}

// InsertBulk adds trades atomically. Fails entire batch on any duplicate.
func (s *TradeLogStore) InsertBulk(_ context.Context, runID string, trades []domain.TradeLog) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		if t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.ids[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[t.TradeID] = struct{}{}
	}

	for _, t := range trades {
		c := t
		c.Legs = append([]domain.ExitLeg(nil), t.Legs...)
		s.byRun[runID] = append(s.byRun[runID], c)
		s.ids[t.TradeID] = struct{}{}
	}
	return nil
}

// GetByRunID retrieves trades of a run ordered by exit time ASC, trade_id ASC.
func (s *TradeLogStore) GetByRunID(_ context.Context, runID string) ([]domain.TradeLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.byRun[runID]
	result := make([]domain.TradeLog, len(stored))
	for i, t := range stored {
		result[i] = t
		result[i].Legs = append([]domain.ExitLeg(nil), t.Legs...)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].ExitTimeMs != result[j].ExitTimeMs {
			return result[i].ExitTimeMs < result[j].ExitTimeMs
		}
		return result[i].TradeID < result[j].TradeID
	})
	return result, nil
}

var _ storage.TradeLogStore = (*TradeLogStore)(nil)
