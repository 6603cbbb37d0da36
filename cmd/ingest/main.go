package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"scalping-backtest-lab/internal/app"
	"scalping-backtest-lab/internal/config"
	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/logger"
	"scalping-backtest-lab/internal/marketdata"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "configs/config.yaml", "Path to YAML configuration")
	symbol := flag.String("symbol", "", "Symbol of the file, e.g. BTCUSDT (required)")
	file := flag.String("file", "", "OHLCV CSV file (required)")
	timeframe := flag.String("timeframe", "", "Timeframe of the file (defaults to the configured fast timeframe)")
	resample := flag.Bool("resample", true, "Also store the configured slow timeframe resampled from the file")
	flag.Parse()

	if err := run(*configPath, *symbol, *file, *timeframe, *resample); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, symbol, file, timeframe string, resample bool) error {
	if symbol == "" || file == "" {
		return errors.New("--symbol and --file are required")
	}

	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.ClickhouseDSN == "" {
		return errors.New("storage.clickhouse_dsn (or CLICKHOUSE_DSN) is required")
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	log = log.With().Str("cmd", "ingest").Logger()

	tf := domain.Timeframe(cfg.Backtest.FastTimeframe)
	if timeframe != "" {
		tf = domain.Timeframe(timeframe)
	}
	if tf.DurationMs() == 0 {
		return fmt.Errorf("unsupported timeframe %q", tf)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Only the bar half is needed.
	stores, err := app.OpenStores(ctx, config.StorageConfig{ClickhouseDSN: cfg.Storage.ClickhouseDSN}, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	bars, err := app.ReadCSVFile(file)
	if err != nil {
		return err
	}
	if _, err := app.Ingest(ctx, stores.Bars, symbol, tf, bars, log); err != nil {
		return err
	}

	slowTF := domain.Timeframe(cfg.Backtest.SlowTimeframe)
	if resample && slowTF.DurationMs() > tf.DurationMs() {
		sorted, _ := marketdata.Dedupe(bars)
		if _, err := app.Ingest(ctx, stores.Bars, symbol, slowTF, marketdata.Resample(sorted, slowTF), log); err != nil {
			return err
		}
	}
	return nil
}
