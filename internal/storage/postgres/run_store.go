package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `
	run_id, symbol, fast_timeframe, slow_timeframe, config_digest,
	first_bar_ms, last_bar_ms, created_at_ms,
	total_trades, winning_trades, losing_trades, win_rate,
	total_pnl, avg_win, avg_loss, profit_factor,
	initial_capital, final_capital, total_return_pct, sharpe_ratio, max_drawdown,
	stopped_by_drawdown, bars_processed, breakdown, errors
`

// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
// Trades and the equity curve are not part of the row.
func (s *RunStore) Insert(ctx context.Context, r *domain.RunSummary) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	breakdown, err := json.Marshal(r.Stats.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	errs := r.Stats.Errors
	if errs == nil {
		errs = []domain.ErrorRecord{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	st := r.Stats
	query := `INSERT INTO runs (` + runColumns + `) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8,
		$9, $10, $11, $12,
		$13, $14, $15, $16,
		$17, $18, $19, $20, $21,
		$22, $23, $24, $25
	)`

	_, err = s.pool.Exec(ctx, query,
		r.RunID, r.Symbol, string(r.FastTimeframe), string(r.SlowTimeframe), r.ConfigDigest,
		r.FirstBarMs, r.LastBarMs, r.CreatedAtMs,
		st.TotalTrades, st.WinningTrades, st.LosingTrades, st.WinRate,
		st.TotalPnL, st.AvgWin, st.AvgLoss, st.ProfitFactor,
		st.InitialCapital, st.FinalCapital, st.TotalReturnPct, st.SharpeRatio, st.MaxDrawdown,
		st.StoppedByDrawdown, st.BarsProcessed, breakdown, errorsJSON,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (*domain.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE run_id = $1`

	r, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return r, nil
}

// GetBySymbol retrieves all runs for a symbol, newest first.
func (s *RunStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.RunSummary, error) {
	query := `SELECT ` + runColumns + `
		FROM runs
		WHERE symbol = $1
		ORDER BY created_at_ms DESC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("get runs by symbol: %w", err)
	}
	defer rows.Close()

	var runs []*domain.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// scanRun scans one row; pgx.Rows satisfies pgx.Row.
func scanRun(row pgx.Row) (*domain.RunSummary, error) {
	var (
		r                  domain.RunSummary
		fastTF, slowTF     string
		breakdown, errsRaw []byte
	)
	st := &r.Stats

	err := row.Scan(
		&r.RunID, &r.Symbol, &fastTF, &slowTF, &r.ConfigDigest,
		&r.FirstBarMs, &r.LastBarMs, &r.CreatedAtMs,
		&st.TotalTrades, &st.WinningTrades, &st.LosingTrades, &st.WinRate,
		&st.TotalPnL, &st.AvgWin, &st.AvgLoss, &st.ProfitFactor,
		&st.InitialCapital, &st.FinalCapital, &st.TotalReturnPct, &st.SharpeRatio, &st.MaxDrawdown,
		&st.StoppedByDrawdown, &st.BarsProcessed, &breakdown, &errsRaw,
	)
	if err != nil {
		return nil, err
	}

	r.FastTimeframe = domain.Timeframe(fastTF)
	r.SlowTimeframe = domain.Timeframe(slowTF)
	st.RunID = r.RunID
	st.Symbol = r.Symbol
	if err := json.Unmarshal(breakdown, &st.Breakdown); err != nil {
		return nil, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	if err := json.Unmarshal(errsRaw, &st.Errors); err != nil {
		return nil, fmt.Errorf("unmarshal errors: %w", err)
	}
	return &r, nil
}
