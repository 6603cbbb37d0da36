package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/storage"
)

// TradeLogStore implements storage.TradeLogStore using PostgreSQL.
type TradeLogStore struct {
	pool *Pool
}

// NewTradeLogStore creates a new TradeLogStore.
func NewTradeLogStore(pool *Pool) *TradeLogStore {
	return &TradeLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeLogStore = (*TradeLogStore)(nil)

const tradeLogColumns = `
	trade_id, run_id, symbol, side,
	entry_time_ms, entry_price, entry_quantity, stop_loss, take_profit,
	exit_time_ms, exit_price, exit_quantity, exit_reason,
	pnl, pnl_pct, duration_ms, signal_strength, regime, winning, legs
`

// InsertBulk adds trades of one run atomically. Fails entire batch on any duplicate.
func (s *TradeLogStore) InsertBulk(ctx context.Context, runID string, trades []domain.TradeLog) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO trade_logs (` + tradeLogColumns + `) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8, $9,
		$10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19, $20
	)`

	for _, t := range trades {
		if t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		legs := t.Legs
		if legs == nil {
			legs = []domain.ExitLeg{}
		}
		legsJSON, err := json.Marshal(legs)
		if err != nil {
			return fmt.Errorf("marshal legs of %s: %w", t.TradeID, err)
		}

		_, err = tx.Exec(ctx, query,
			t.TradeID, runID, t.Symbol, string(t.Side),
			t.EntryTimeMs, t.EntryPrice, t.EntryQuantity, t.StopLoss, t.TakeProfit,
			t.ExitTimeMs, t.ExitPrice, t.ExitQuantity, t.ExitReason,
			t.PnL, t.PnLPct, t.DurationMs, t.SignalStrength, string(t.Regime), t.Winning, legsJSON,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade log in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves trades of a run ordered by exit time ASC, trade_id ASC.
func (s *TradeLogStore) GetByRunID(ctx context.Context, runID string) ([]domain.TradeLog, error) {
	query := `SELECT ` + tradeLogColumns + `
		FROM trade_logs
		WHERE run_id = $1
		ORDER BY exit_time_ms ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get trade logs by run id: %w", err)
	}
	defer rows.Close()

	return scanTradeLogs(rows)
}

// scanTradeLogs scans multiple rows into a slice of TradeLog.
func scanTradeLogs(rows pgx.Rows) ([]domain.TradeLog, error) {
	var trades []domain.TradeLog

	for rows.Next() {
		var (
			t            domain.TradeLog
			runID        string
			side, regime string
			legsJSON     []byte
		)
		err := rows.Scan(
			&t.TradeID, &runID, &t.Symbol, &side,
			&t.EntryTimeMs, &t.EntryPrice, &t.EntryQuantity, &t.StopLoss, &t.TakeProfit,
			&t.ExitTimeMs, &t.ExitPrice, &t.ExitQuantity, &t.ExitReason,
			&t.PnL, &t.PnLPct, &t.DurationMs, &t.SignalStrength, &regime, &t.Winning, &legsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade log row: %w", err)
		}
		t.Side = domain.Side(side)
		t.Regime = domain.Regime(regime)
		if err := json.Unmarshal(legsJSON, &t.Legs); err != nil {
			return nil, fmt.Errorf("unmarshal legs of %s: %w", t.TradeID, err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade log rows: %w", err)
	}
	return trades, nil
}
