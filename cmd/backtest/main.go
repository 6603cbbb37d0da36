package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"scalping-backtest-lab/internal/app"
	"scalping-backtest-lab/internal/backtest"
	"scalping-backtest-lab/internal/config"
	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/logger"
	"scalping-backtest-lab/internal/reporting"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "configs/config.yaml", "Path to YAML configuration")
	symbols := flag.String("symbols", "", "Comma-separated symbols (overrides config)")
	source := flag.String("source", "csv", "Bar source: csv or clickhouse")
	dataDir := flag.String("data-dir", "data", "Directory with SYMBOL_<timeframe>.csv files (csv source)")
	fromTime := flag.String("from", "", "Start time (RFC3339)")
	toTime := flag.String("to", "", "End time (RFC3339)")
	format := flag.String("format", "json", "Output format: json, markdown or csv")
	persist := flag.Bool("persist", false, "Persist runs, trades and equity")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fail(err)
	}
	if *symbols != "" {
		cfg.Symbols = strings.Split(*symbols, ",")
	}
	if len(cfg.Symbols) == 0 {
		fail(errors.New("no symbols configured"))
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fail(err)
	}
	log = log.With().Str("cmd", "backtest").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores := app.MemoryStores()
	if !*useMemory && (*persist || *source == app.SourceClickhouse) {
		stores, err = app.OpenStores(ctx, cfg.Storage, log)
		if err != nil {
			fail(err)
		}
	}
	defer stores.Close()

	fromMs, toMs, err := parseRange(*fromTime, *toTime)
	if err != nil {
		fail(err)
	}
	inputs, err := app.LoadInputs(ctx, cfg, stores.Bars, *source, *dataDir, fromMs, toMs)
	if err != nil {
		fail(err)
	}

	results, err := backtest.RunSymbols(ctx, inputs, cfg.EngineFactory(log, nil), cfg.Concurrency)
	if err != nil {
		fail(err)
	}

	var (
		done     []domain.Result
		failures []reporting.Failure
	)
	for i, r := range results {
		if r.Err != nil {
			log.Error().Err(r.Err).Str("symbol", r.Symbol).Msg("run failed")
			failures = append(failures, reporting.Failure{Symbol: r.Symbol, Error: r.Err.Error()})
			continue
		}
		done = append(done, *r.Result)
		if *persist {
			err := app.Persist(ctx, stores.Aggregator(), cfg, inputs[i], r.Result, time.Now())
			switch {
			case errors.Is(err, app.ErrAlreadyPersisted):
				log.Info().Str("run_id", r.Result.RunID).Msg("run already stored")
			case err != nil:
				fail(fmt.Errorf("persist %s: %w", r.Symbol, err))
			default:
				log.Info().Str("run_id", r.Result.RunID).Str("symbol", r.Symbol).Msg("run persisted")
			}
		}
	}

	if err := render(os.Stdout, *format, done, failures); err != nil {
		fail(err)
	}
	if len(done) == 0 {
		os.Exit(1)
	}
}

func parseRange(from, to string) (int64, int64, error) {
	if from == "" && to == "" {
		return 0, 0, nil
	}
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return 0, 0, fmt.Errorf("parse --from: %w", err)
	}
	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return 0, 0, fmt.Errorf("parse --to: %w", err)
	}
	if !end.After(start) {
		return 0, 0, errors.New("--to must be after --from")
	}
	return start.UnixMilli(), end.UnixMilli(), nil
}

// symbolError is one failed symbol of a multi-symbol JSON document.
type symbolError struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

func render(w io.Writer, format string, results []domain.Result, failures []reporting.Failure) error {
	switch format {
	case "json":
		// A single symbol renders as its result or as {"error": ...}.
		if len(results)+len(failures) == 1 {
			if len(failures) == 1 {
				_, err := fmt.Fprintln(w, string(reporting.RenderErrorJSON(errors.New(failures[0].Error))))
				return err
			}
			b, err := reporting.RenderJSON(results[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, string(b))
			return err
		}
		doc := struct {
			Results []json.RawMessage `json:"results"`
			Errors  []symbolError     `json:"errors"`
		}{Results: []json.RawMessage{}, Errors: []symbolError{}}
		for _, r := range results {
			b, err := reporting.RenderJSON(r)
			if err != nil {
				return err
			}
			doc.Results = append(doc.Results, b)
		}
		for _, f := range failures {
			doc.Errors = append(doc.Errors, symbolError{Symbol: f.Symbol, Error: f.Error})
		}
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "markdown":
		r := reporting.NewGenerator(nil, nil).FromResults(results, failures)
		_, err := fmt.Fprint(w, reporting.RenderMarkdown(r))
		return err
	case "csv":
		r := reporting.NewGenerator(nil, nil).FromResults(results, failures)
		_, err := fmt.Fprint(w, reporting.RenderSummaryCSV(r))
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// fail prints {"error": ...} on stdout and exits non-zero.
func fail(err error) {
	fmt.Fprintln(os.Stdout, string(reporting.RenderErrorJSON(err)))
	os.Exit(1)
}
