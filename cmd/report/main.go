package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"scalping-backtest-lab/internal/app"
	"scalping-backtest-lab/internal/config"
	"scalping-backtest-lab/internal/logger"
	"scalping-backtest-lab/internal/reporting"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "configs/config.yaml", "Path to YAML configuration")
	runIDs := flag.String("run-ids", "", "Comma-separated run ids (default: latest run of each configured symbol)")
	outputDir := flag.String("output-dir", "reports", "Output directory for generated files")
	flag.Parse()

	if err := run(*configPath, *runIDs, *outputDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, runIDs, outputDir string) error {
	ctx := context.Background()

	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.PostgresDSN == "" || cfg.Storage.ClickhouseDSN == "" {
		return errors.New("both storage DSNs are required to load stored runs")
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	log = log.With().Str("cmd", "report").Logger()

	stores, err := app.OpenStores(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	gen := reporting.NewGenerator(stores.Aggregator(), stores.Runs)
	var report *reporting.Report
	if runIDs != "" {
		report, err = gen.Generate(ctx, strings.Split(runIDs, ",")...)
	} else {
		report, err = gen.Latest(ctx, cfg.Symbols...)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	files := map[string]string{
		"REPORT.md":   reporting.RenderMarkdown(report),
		"SUMMARY.csv": reporting.RenderSummaryCSV(report),
	}
	for _, r := range report.Runs {
		prefix := r.Result.Symbol + "_" + shortID(r.Result.RunID)
		files[prefix+"_trades.csv"] = reporting.RenderTradesCSV(r.Result.Trades)
		files[prefix+"_equity.csv"] = reporting.RenderEquityCSV(r.Result.EquityCurve)
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(outputDir, name)
		if err := os.WriteFile(path, []byte(files[name]), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("  - %s\n", path)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
