// Package config loads the YAML run configuration and converts it into the
// immutable values the engine components take.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"scalping-backtest-lab/internal/logger"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the root of the YAML file.
type Config struct {
	Log      logger.Config  `yaml:"log"`
	Backtest BacktestConfig `yaml:"backtest"`
	Risk     RiskConfig     `yaml:"risk"`
	Filters  FiltersConfig  `yaml:"filters"`
	Ensemble EnsembleConfig `yaml:"ensemble"`
	Quality  QualityConfig  `yaml:"quality"`
	Regime   RegimeConfig   `yaml:"regime"`
	Slippage SlippageConfig `yaml:"slippage"`
	Trailing TrailingConfig `yaml:"trailing"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`

	Symbols     []string `yaml:"symbols" validate:"dive,required,uppercase"`
	Concurrency int      `yaml:"concurrency" default:"4" validate:"gte=1,lte=64"`
}

type BacktestConfig struct {
	FastTimeframe        string  `yaml:"fast_timeframe" default:"5m" validate:"oneof=1m 5m 15m 1h"`
	SlowTimeframe        string  `yaml:"slow_timeframe" default:"15m" validate:"oneof=1m 5m 15m 1h"`
	InitialCapital       float64 `yaml:"initial_capital" default:"10000" validate:"gt=0"`
	WarmupBars           int     `yaml:"warmup_bars" default:"100" validate:"gte=0"`
	MinFastBars          int     `yaml:"min_fast_bars" default:"50" validate:"gte=1"`
	MinSlowBars          int     `yaml:"min_slow_bars" default:"10" validate:"gte=1"`
	MinSlowHistory       int     `yaml:"min_slow_history" default:"50" validate:"gte=0"`
	HistoryWindow        int     `yaml:"history_window" default:"300" validate:"gte=0"`
	MinRewardRisk        float64 `yaml:"min_reward_risk" default:"1" validate:"gt=0"`
	MinStopDistance      float64 `yaml:"min_stop_distance" default:"0.002" validate:"gte=0,lt=1"`
	VolumePeriod         int     `yaml:"volume_period" default:"20" validate:"gte=1"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses" default:"5" validate:"gte=0"`
	SizingMethod         string  `yaml:"sizing_method" default:"risk" validate:"oneof=risk kelly volatility"`
	KellyMinTrades       int     `yaml:"kelly_min_trades" default:"20" validate:"gte=1"`
	ATRPeriod            int     `yaml:"atr_period" default:"14" validate:"gte=1"`
}

type RiskConfig struct {
	BaseRisk          float64   `yaml:"base_risk" default:"0.02" validate:"gt=0,lt=1"`
	MinRisk           float64   `yaml:"min_risk" default:"0.015" validate:"gt=0,lt=1"`
	MaxRisk           float64   `yaml:"max_risk" default:"0.03" validate:"gt=0,lt=1"`
	MaxTotalExposure  float64   `yaml:"max_total_exposure" default:"0.10" validate:"gt=0,lte=1"`
	MaxPositions      int       `yaml:"max_positions" default:"3" validate:"gte=1"`
	TPDistances       []float64 `yaml:"tp_distances" default:"[0.5,0.75,1.0]" validate:"len=3,dive,gt=0"`
	TPExitRatios      []float64 `yaml:"tp_exit_ratios" default:"[0.3,0.4,0.3]" validate:"len=3,dive,gte=0,lte=1"`
	MaxDrawdown       float64   `yaml:"max_drawdown" default:"0.15" validate:"gt=0,lt=1"`
	MinSignalStrength float64   `yaml:"min_signal_strength" default:"0.25" validate:"gte=0,lte=1"`
	MinPositionValue  float64   `yaml:"min_position_value" default:"15" validate:"gte=0"`
	MaxPositionValue  float64   `yaml:"max_position_value" default:"5000" validate:"gtfield=MinPositionValue"`
}

// FiltersConfig holds the exchange filters applied to every symbol.
type FiltersConfig struct {
	TickSize    float64 `yaml:"tick_size" default:"0.01" validate:"gt=0"`
	StepSize    float64 `yaml:"step_size" default:"0.001" validate:"gt=0"`
	MinQty      float64 `yaml:"min_qty" default:"0.001" validate:"gte=0"`
	MinNotional float64 `yaml:"min_notional" default:"5" validate:"gte=0"`
}

type EnsembleConfig struct {
	// RegimeWeights maps regime name to strategy weights. SetDefaults fills
	// the stock table when the section is absent.
	RegimeWeights map[string]map[string]float64 `yaml:"regime_weights"`

	FastWeight        float64 `yaml:"fast_weight" default:"0.7" validate:"gte=0,lte=1"`
	SlowWeight        float64 `yaml:"slow_weight" default:"0.3" validate:"gte=0,lte=1"`
	AgreementBonus    float64 `yaml:"agreement_bonus" default:"1.15" validate:"gte=1"`
	ConflictPenalty   float64 `yaml:"conflict_penalty" default:"0.5" validate:"gte=0,lte=1"`
	StopATRMultiplier float64 `yaml:"stop_atr_multiplier" default:"1.5" validate:"gt=0"`
	StopFallbackPct   float64 `yaml:"stop_fallback_pct" default:"0.01" validate:"gt=0,lt=1"`
	RewardRisk        float64 `yaml:"reward_risk" default:"2" validate:"gt=0"`
}

// QualityConfig controls the entry quality filter.
type QualityConfig struct {
	Enabled          bool    `yaml:"enabled" default:"true"`
	MinVolumeRatio   float64 `yaml:"min_volume_ratio" default:"0.7" validate:"gte=0"`
	MinVolatilityPct float64 `yaml:"min_volatility_pct" default:"0.2" validate:"gte=0"`
	MaxVolatilityPct float64 `yaml:"max_volatility_pct" default:"2" validate:"gtfield=MinVolatilityPct"`
	GapFraction      float64 `yaml:"gap_fraction" default:"0.002" validate:"gt=0"`
	WickFraction     float64 `yaml:"wick_fraction" default:"0.7" validate:"gt=0,lte=1"`
}

type RegimeConfig struct {
	HighVolatilityPct float64 `yaml:"high_volatility_pct" default:"1.5" validate:"gt=0"`
	TrendStrength     float64 `yaml:"trend_strength" default:"0.03" validate:"gt=0"`
	ADXThreshold      float64 `yaml:"adx_threshold" default:"25" validate:"gt=0,lte=100"`
	HistorySize       int     `yaml:"history_size" default:"10" validate:"gte=1"`
}

type SlippageConfig struct {
	Enabled     bool      `yaml:"enabled" default:"true"`
	HourlyBase  []float64 `yaml:"hourly_base" validate:"omitempty,len=24,dive,gte=0"` // empty keeps the stock curve
	DefaultBase float64   `yaml:"default_base" default:"0.005" validate:"gte=0"`
	MinRate     float64   `yaml:"min_rate" default:"0.001" validate:"gte=0"`
	MaxRate     float64   `yaml:"max_rate" default:"0.05" validate:"gtfield=MinRate"`
}

type TrailingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Activation float64 `yaml:"activation" default:"0.005" validate:"gt=0,lt=1"`
	Distance   float64 `yaml:"distance" default:"0.003" validate:"gt=0,lt=1"`
}

type StorageConfig struct {
	PostgresDSN      string `yaml:"postgres_dsn"`
	PostgresMaxConns int32  `yaml:"postgres_max_conns" default:"10" validate:"gte=1"`
	ClickhouseDSN    string `yaml:"clickhouse_dsn"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" default:":8080" validate:"required"`
	MetricsPath     string        `yaml:"metrics_path" default:"/metrics" validate:"startswith=/"`
	StreamPath      string        `yaml:"stream_path" default:"/ws" validate:"startswith=/"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads, defaults and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load over an in-memory document.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	// yaml merges into an existing map, so a configured table must replace
	// the stock one rather than extend it.
	c.Ensemble.RegimeWeights = nil
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.Ensemble.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides it with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := getenv("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickhouseDSN = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Symbols = strings.Split(v, ",")
	}
}

// SetDefaults fills the stock regime weight table.
func (e *EnsembleConfig) SetDefaults() {
	if defaults.CanUpdate(e.RegimeWeights) {
		e.RegimeWeights = stockRegimeWeights()
	}
}

var validate = newValidator()

// newValidator reports fields by their yaml names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate runs the struct tags and then the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	fast, slow := c.fastTimeframe(), c.slowTimeframe()
	if fast.DurationMs() >= slow.DurationMs() {
		return fmt.Errorf("%w: fast_timeframe %s must be shorter than slow_timeframe %s", ErrInvalidConfig, fast, slow)
	}
	if slow.DurationMs()%fast.DurationMs() != 0 {
		return fmt.Errorf("%w: slow_timeframe must be a multiple of fast_timeframe", ErrInvalidConfig)
	}
	if err := c.RiskParameters().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for regime, weights := range c.Ensemble.RegimeWeights {
		if err := checkWeights(regime, weights); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Namespace()
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
	case "len":
		return fmt.Sprintf("%s must have %s entries", name, fe.Param())
	case "gtfield":
		return fmt.Sprintf("%s must be greater than %s", name, fe.Param())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s", name, fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s failed %s", name, fe.Tag())
	}
}
