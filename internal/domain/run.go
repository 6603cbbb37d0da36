package domain

// RunSummary identifies a persisted run and carries its statistics.
// Stats.Trades and Stats.EquityCurve are stored separately and left empty here.
type RunSummary struct {
	RunID         string    `json:"run_id"` // deterministic hash
	Symbol        string    `json:"symbol"`
	FastTimeframe Timeframe `json:"fast_timeframe"`
	SlowTimeframe Timeframe `json:"slow_timeframe"`
	ConfigDigest  string    `json:"config_digest"`
	FirstBarMs    int64     `json:"first_bar_ms"`
	LastBarMs     int64     `json:"last_bar_ms"`
	CreatedAtMs   int64     `json:"created_at_ms"`
	Stats         Result    `json:"stats"`
}
