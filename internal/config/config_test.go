package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/ensemble"
	"scalping-backtest-lab/internal/sizing"
	"scalping-backtest-lab/internal/strategy"
)

func TestDefaultMatchesStockValues(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	risk := c.RiskParameters()
	stock := domain.DefaultRiskParameters()
	assert.True(t, risk.BaseRisk.Equal(stock.BaseRisk))
	assert.True(t, risk.MinRisk.Equal(stock.MinRisk))
	assert.True(t, risk.MaxRisk.Equal(stock.MaxRisk))
	assert.True(t, risk.MaxDrawdown.Equal(stock.MaxDrawdown))
	for i := 0; i < domain.TakeProfitLevels; i++ {
		assert.True(t, risk.TPDistances[i].Equal(stock.TPDistances[i]), "distance %d", i)
		assert.True(t, risk.TPExitRatios[i].Equal(stock.TPExitRatios[i]), "ratio %d", i)
	}
	assert.Equal(t, stock.MaxPositions, risk.MaxPositions)

	filters := c.SymbolFilters()
	assert.True(t, filters.TickSize.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, filters.MinNotional.Equal(decimal.NewFromInt(5)))

	bt := c.BacktestConfig()
	assert.Equal(t, domain.Timeframe5m, bt.FastTimeframe)
	assert.Equal(t, domain.Timeframe15m, bt.SlowTimeframe)
	assert.True(t, bt.InitialCapital.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, 100, bt.WarmupBars)
	assert.Equal(t, 5, bt.MaxConsecutiveLosses)
	assert.Equal(t, sizing.MethodRisk, bt.SizingMethod)
	assert.Equal(t, 20, bt.KellyMinTrades)
	assert.Equal(t, 14, bt.ATRPeriod)

	ens := c.EnsembleConfig()
	assert.Equal(t, ensemble.DefaultConfig().RegimeWeights, ens.RegimeWeights)
	assert.InDelta(t, 1.15, ens.AgreementBonus, 1e-12)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, 10*time.Second, c.Server.ShutdownTimeout)
	assert.Equal(t, "info", c.Log.Level)
	assert.True(t, c.Quality.Enabled)
	assert.True(t, c.Slippage.Enabled)
}

func TestParse_OverridesAndKeepsDefaults(t *testing.T) {
	c, err := Parse([]byte(`
symbols: [BTCUSDT]
backtest:
  initial_capital: 2500
  max_consecutive_losses: 0
  sizing_method: kelly
risk:
  base_risk: 0.025
slippage:
  enabled: false
ensemble:
  regime_weights:
    RANGING: {rsi: 1.0}
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT"}, c.Symbols)
	assert.Equal(t, 0, c.Backtest.MaxConsecutiveLosses, "explicit zero must survive")
	assert.False(t, c.Slippage.Enabled)
	assert.Equal(t, "5m", c.Backtest.FastTimeframe)
	assert.True(t, c.RiskParameters().BaseRisk.Equal(decimal.RequireFromString("0.025")))
	assert.True(t, c.BacktestConfig().InitialCapital.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, sizing.MethodKelly, c.BacktestConfig().SizingMethod)

	// A configured table replaces the stock one.
	ens := c.EnsembleConfig()
	require.Len(t, ens.RegimeWeights, 1)
	assert.Equal(t, ensemble.Weights{strategy.NameRSI: 1.0}, ens.RegimeWeights[domain.RegimeRanging])
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"risk order", "risk: {min_risk: 0.03, base_risk: 0.02, max_risk: 0.04}", "min_risk <= base_risk"},
		{"ratios sum", "risk: {tp_exit_ratios: [0.3, 0.3, 0.3]}", "sum to"},
		{"distances increase", "risk: {tp_distances: [0.5, 0.5, 1.0]}", "strictly increase"},
		{"tier count", "risk: {tp_distances: [0.5, 1.0]}", "tp_distances must have 3 entries"},
		{"timeframe", "backtest: {fast_timeframe: 2m}", "fast_timeframe must be one of"},
		{"timeframe order", "backtest: {fast_timeframe: 15m, slow_timeframe: 5m}", "must be shorter"},
		{"drawdown", "risk: {max_drawdown: 1.5}", "max_drawdown"},
		{"unknown regime", "ensemble: {regime_weights: {SIDEWAYS: {rsi: 1}}}", "unknown regime"},
		{"unknown strategy", "ensemble: {regime_weights: {RANGING: {magic: 1}}}", "unknown sub-strategy"},
		{"log level", "log: {level: loud}", "level must be one of"},
		{"sizing method", "backtest: {sizing_method: martingale}", "sizing_method must be one of"},
		{"position values", "risk: {min_position_value: 100, max_position_value: 50}", "max_position_value must be greater"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("risk: [unclosed"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_ExampleFile(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, c.Symbols)
	assert.Equal(t, ensemble.DefaultConfig().RegimeWeights, c.EnsembleConfig().RegimeWeights)
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: {postgres_dsn: postgres://file}\n"), 0o600))

	t.Setenv("POSTGRES_DSN", "postgres://env")
	t.Setenv("CLICKHOUSE_DSN", "clickhouse://env:9000/lab")
	t.Setenv("SYMBOLS", "BTCUSDT,SOLUSDT")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", c.Storage.PostgresDSN)
	assert.Equal(t, "clickhouse://env:9000/lab", c.Storage.ClickhouseDSN)
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, c.Symbols)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDigest(t *testing.T) {
	a, b := Default(), Default()
	da, err := a.Digest()
	require.NoError(t, err)

	b.Storage.PostgresDSN = "postgres://elsewhere"
	b.Server.Addr = ":9999"
	db, err := b.Digest()
	require.NoError(t, err)
	assert.Equal(t, da, db, "infrastructure settings must not change the digest")

	b.Risk.BaseRisk = 0.021
	dc, err := b.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, da, dc)
}

func TestNewEngine(t *testing.T) {
	c := Default()
	e, err := c.NewEngine(zerolog.Nop(), nil)
	require.NoError(t, err)
	assert.Equal(t, c.BacktestConfig(), e.Config())

	factory := c.EngineFactory(zerolog.Nop(), nil)
	e2, err := factory("ETHUSDT")
	require.NoError(t, err)
	assert.NotSame(t, e, e2)
}

func TestPositionConfig_CarriesLotFilters(t *testing.T) {
	c := Default()
	pc := c.PositionConfig()
	f := c.SymbolFilters()
	assert.True(t, pc.StepSize.Equal(f.StepSize))
	assert.True(t, pc.MinQty.Equal(f.MinQty))
	assert.True(t, pc.StepSize.IsPositive())
	assert.Equal(t, c.Trailing.Enabled, pc.Trailing.Enabled)
}
