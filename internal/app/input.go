package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"scalping-backtest-lab/internal/backtest"
	"scalping-backtest-lab/internal/config"
	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/marketdata"
	"scalping-backtest-lab/internal/storage"
)

// CSVPath is the file holding one symbol's bars of one timeframe.
func CSVPath(dir, symbol string, tf domain.Timeframe) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.csv", symbol, tf))
}

// ReadCSVFile parses an OHLCV file.
func ReadCSVFile(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bars, err := marketdata.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// LoadCSVInput reads SYMBOL_<fast>.csv from dir. The slow series comes from
// SYMBOL_<slow>.csv when present and is resampled from the fast bars otherwise.
func LoadCSVInput(dir, symbol string, cfg backtest.Config) (backtest.Input, error) {
	fast, err := ReadCSVFile(CSVPath(dir, symbol, cfg.FastTimeframe))
	if err != nil {
		return backtest.Input{}, fmt.Errorf("fast bars of %s: %w", symbol, err)
	}
	slow, err := ReadCSVFile(CSVPath(dir, symbol, cfg.SlowTimeframe))
	switch {
	case errors.Is(err, os.ErrNotExist):
		sorted, _ := marketdata.Dedupe(fast)
		slow = marketdata.Resample(sorted, cfg.SlowTimeframe)
	case err != nil:
		return backtest.Input{}, fmt.Errorf("slow bars of %s: %w", symbol, err)
	}
	return backtest.Input{Symbol: symbol, Fast: fast, Slow: slow}, nil
}

// Ingest writes bars into the store, skipping timestamps that are already
// stored. Duplicates inside bars keep the last row. Returns the number of
// bars written.
func Ingest(ctx context.Context, store storage.BarStore, symbol string, tf domain.Timeframe, bars []domain.Bar, logger zerolog.Logger) (int, error) {
	if tf.DurationMs() == 0 {
		return 0, fmt.Errorf("ingest %s: %w: timeframe %q", symbol, storage.ErrInvalidInput, tf)
	}
	bars, dups := marketdata.Dedupe(bars)
	if len(bars) == 0 {
		return 0, nil
	}
	if err := marketdata.ValidateOHLC(bars); err != nil {
		return 0, fmt.Errorf("ingest %s %s: %w", symbol, tf, err)
	}

	existing, err := store.GetRange(ctx, symbol, tf, bars[0].TimestampMs, bars[len(bars)-1].TimestampMs)
	if err != nil {
		return 0, fmt.Errorf("read stored %s %s: %w", symbol, tf, err)
	}
	stored := make(map[int64]struct{}, len(existing))
	for _, b := range existing {
		stored[b.TimestampMs] = struct{}{}
	}
	fresh := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if _, ok := stored[b.TimestampMs]; !ok {
			fresh = append(fresh, b)
		}
	}

	if gaps := marketdata.CheckGaps(bars, tf.DurationMs()); len(gaps) > 0 {
		logger.Warn().Str("symbol", symbol).Str("timeframe", string(tf)).Int("gaps", len(gaps)).Msg("bar series has gaps")
	}
	if err := store.InsertBulk(ctx, symbol, tf, fresh); err != nil {
		return 0, fmt.Errorf("insert %s %s: %w", symbol, tf, err)
	}
	logger.Info().
		Str("symbol", symbol).
		Str("timeframe", string(tf)).
		Int("written", len(fresh)).
		Int("skipped", len(bars)-len(fresh)).
		Int("duplicates", dups).
		Msg("bars ingested")
	return len(fresh), nil
}

// Bar sources accepted by LoadInputs.
const (
	SourceCSV        = "csv"
	SourceClickhouse = "clickhouse"
)

// LoadInputs reads every configured symbol from source and stamps its run
// id. from and to bound the fast series in unix milliseconds; zero means
// unbounded.
func LoadInputs(ctx context.Context, cfg *config.Config, bars storage.BarStore, source, dataDir string, from, to int64) ([]backtest.Input, error) {
	btCfg := cfg.BacktestConfig()
	runner := backtest.NewRunner(bars)

	inputs := make([]backtest.Input, 0, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		var (
			in  backtest.Input
			err error
		)
		switch source {
		case SourceCSV:
			in, err = LoadCSVInput(dataDir, symbol, btCfg)
			if err == nil && (from != 0 || to != 0) {
				in = clip(in, btCfg, from, to)
			}
		case SourceClickhouse:
			in, err = runner.Load(ctx, symbol, btCfg, from, to)
		default:
			return nil, fmt.Errorf("unknown source %q", source)
		}
		if err != nil {
			return nil, err
		}
		if len(in.Fast) > 0 {
			if in.RunID, err = cfg.RunID(in); err != nil {
				return nil, err
			}
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// clip keeps the fast bars in [from, to] and the slow bars from
// MinSlowHistory intervals before from, the same window Runner.Load reads
// from a store.
func clip(in backtest.Input, cfg backtest.Config, from, to int64) backtest.Input {
	if to == 0 {
		to = math.MaxInt64
	}
	fast, _ := marketdata.Dedupe(in.Fast)
	slow, _ := marketdata.Dedupe(in.Slow)
	in.Fast = marketdata.FilterRange(fast, from, to)
	in.Slow = marketdata.FilterRange(slow, from-int64(cfg.MinSlowHistory)*cfg.SlowTimeframe.DurationMs(), to)
	return in
}
