// Package main runs the backtest service: Prometheus metrics on /metrics,
// a live WebSocket stream of trades, equity and engine events on /ws, and
// backtest runs over the configured symbols triggered by POST /runs or on
// a fixed interval.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"scalping-backtest-lab/internal/app"
	"scalping-backtest-lab/internal/backtest"
	"scalping-backtest-lab/internal/config"
	"scalping-backtest-lab/internal/logger"
	"scalping-backtest-lab/internal/observability"
	"scalping-backtest-lab/internal/reporting"
	"scalping-backtest-lab/internal/stream"
)

// Server holds all components of the service.
type Server struct {
	// Configuration
	cfg      *config.Config
	source   string
	dataDir  string
	persist  bool
	interval time.Duration

	// Components
	stores  *app.Stores
	metrics *observability.Metrics
	hub     *stream.Hub
	logger  zerolog.Logger

	// State
	ctx      context.Context
	mu       sync.Mutex
	started  time.Time
	running  bool
	lastRun  time.Time
	runs     int
	symbols  map[string]SymbolStatus
	runsDone sync.WaitGroup
}

// SymbolStatus is the outcome of a symbol's latest run.
type SymbolStatus struct {
	RunID        string    `json:"run_id,omitempty"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	Trades       int       `json:"trades"`
	FinalCapital string    `json:"final_capital,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to YAML configuration")
	source := flag.String("source", app.SourceCSV, "Bar source: csv or clickhouse")
	dataDir := flag.String("data-dir", "data", "Directory with SYMBOL_<timeframe>.csv files (csv source)")
	persist := flag.Bool("persist", false, "Persist runs, trades and equity")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")
	runOnStart := flag.Bool("run-on-start", false, "Run the configured symbols once at startup")
	interval := flag.Duration("interval", 0, "Run the configured symbols on this interval (0 disables)")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log = log.With().Str("cmd", "server").Logger()

	if *source != app.SourceCSV && *source != app.SourceClickhouse {
		log.Fatal().Str("source", *source).Msg("unknown source")
	}
	if len(cfg.Symbols) == 0 {
		log.Fatal().Msg("no symbols configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores := app.MemoryStores()
	if !*useMemory && (*persist || *source == app.SourceClickhouse) {
		stores, err = app.OpenStores(ctx, cfg.Storage, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open stores")
		}
	}
	defer stores.Close()

	s := &Server{
		cfg:      cfg,
		source:   *source,
		dataDir:  *dataDir,
		persist:  *persist,
		interval: *interval,
		stores:   stores,
		metrics:  observability.NewMetrics("", nil),
		hub:      stream.NewHub(1024, log),
		logger:   log,
		ctx:      ctx,
		started:  time.Now(),
		symbols:  make(map[string]SymbolStatus),
	}

	go s.hub.Run(ctx)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: s.routes()}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
			stop()
		}
	}()

	if *runOnStart {
		s.trigger(ctx)
	}
	if s.interval > 0 {
		go s.schedule(ctx)
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown error")
	}
	s.runsDone.Wait()
	log.Info().Msg("server stopped")
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle(s.cfg.Server.MetricsPath, observability.Handler())
	mux.Handle(s.cfg.Server.StreamPath, s.hub)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/runs", s.handleRuns)

	return mux
}

// schedule triggers a batch every interval until ctx is done.
func (s *Server) schedule(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.trigger(ctx) {
				s.logger.Warn().Msg("previous batch still running, skipping tick")
			}
		}
	}
}

// trigger starts a batch in the background unless one is already running.
func (s *Server) trigger(ctx context.Context) bool {
	s.mu.Lock()
	if s.running || ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.runsDone.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.runsDone.Done()
		s.runBatch(ctx)

		s.mu.Lock()
		s.running = false
		s.lastRun = time.Now()
		s.runs++
		s.mu.Unlock()
	}()
	return true
}

// runBatch runs every configured symbol, streaming events to the hub and
// recording metrics.
func (s *Server) runBatch(ctx context.Context) {
	start := time.Now()
	s.logger.Info().Strs("symbols", s.cfg.Symbols).Msg("starting batch")

	inputs, err := app.LoadInputs(ctx, s.cfg, s.stores.Bars, s.source, s.dataDir, 0, 0)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load bars")
		for _, symbol := range s.cfg.Symbols {
			s.metrics.RecordRun(symbol, observability.StatusError, 0, 0)
			s.setStatus(symbol, SymbolStatus{Status: observability.StatusError, Error: err.Error(), FinishedAt: time.Now()})
		}
		return
	}

	obs := backtest.Observers{s.metrics, s.hub}
	results, err := backtest.RunSymbols(ctx, inputs, s.cfg.EngineFactory(s.logger, obs), s.cfg.Concurrency)
	if err != nil {
		s.logger.Warn().Err(err).Msg("batch interrupted")
	}

	for i, r := range results {
		now := time.Now()
		elapsed := now.Sub(start).Seconds()
		if r.Err != nil || r.Result == nil {
			msg := "interrupted"
			if r.Err != nil {
				msg = r.Err.Error()
			}
			s.logger.Error().Str("symbol", r.Symbol).Str("error", msg).Msg("run failed")
			s.metrics.RecordRun(r.Symbol, observability.StatusError, elapsed, now.Unix())
			s.setStatus(r.Symbol, SymbolStatus{Status: observability.StatusError, Error: msg, FinishedAt: now})
			continue
		}
		if s.persist {
			s.store(ctx, inputs[i], r)
		}
		s.metrics.RecordRun(r.Symbol, observability.StatusSuccess, elapsed, now.Unix())
		s.setStatus(r.Symbol, SymbolStatus{
			RunID:        r.Result.RunID,
			Status:       observability.StatusSuccess,
			Trades:       r.Result.TotalTrades,
			FinalCapital: r.Result.FinalCapital.StringFixed(2),
			FinishedAt:   now,
		})
	}

	s.logger.Info().Dur("duration", time.Since(start)).Msg("batch complete")
}

func (s *Server) store(ctx context.Context, in backtest.Input, r backtest.SymbolResult) {
	start := time.Now()
	err := app.Persist(ctx, s.stores.Aggregator(), s.cfg, in, r.Result, start)
	if errors.Is(err, app.ErrAlreadyPersisted) {
		s.logger.Info().Str("run_id", r.Result.RunID).Msg("run already stored")
		err = nil
	}
	s.metrics.RecordDBQuery("postgres", "persist_run", time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", r.Symbol).Msg("failed to persist run")
	}
}

func (s *Server) setStatus(symbol string, st SymbolStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols[symbol] = st
}

// handleRuns starts a batch on POST. A batch already in flight yields 409.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	// Runs outlive the request and stop with the server.
	if !s.trigger(s.ctx) {
		s.writeError(w, r, http.StatusConflict, errors.New("a batch is already running"))
		return
	}
	s.writeJSON(w, r, http.StatusAccepted, map[string]any{"status": "started", "symbols": s.cfg.Symbols})
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status    string                  `json:"status"`
	Uptime    string                  `json:"uptime"`
	Running   bool                    `json:"running"`
	LastRun   time.Time               `json:"last_run,omitempty"`
	Runs      int                     `json:"runs"`
	Clients   int                     `json:"stream_clients"`
	Dropped   int64                   `json:"stream_dropped"`
	ConfigID  string                  `json:"config_digest"`
	Symbols   map[string]SymbolStatus `json:"symbols"`
	StartedAt time.Time               `json:"started_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	digest, err := s.cfg.Digest()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	s.mu.Lock()
	resp := StatusResponse{
		Status:    "running",
		Uptime:    time.Since(s.started).String(),
		Running:   s.running,
		LastRun:   s.lastRun,
		Runs:      s.runs,
		Clients:   s.hub.Clients(),
		Dropped:   s.hub.Dropped(),
		ConfigID:  digest,
		Symbols:   make(map[string]SymbolStatus, len(s.symbols)),
		StartedAt: s.started,
	}
	for k, v := range s.symbols {
		resp.Symbols[k] = v
	}
	s.mu.Unlock()

	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		s.logWriteError(r, err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logWriteError(r, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.writeJSON(w, r, status, reporting.ErrorBody{Error: err.Error()})
}

// logWriteError records a response the client never received. The status
// line is already sent, so there is nothing left to tell the client.
func (s *Server) logWriteError(r *http.Request, err error) {
	s.logger.Warn().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("failed to write response")
}
