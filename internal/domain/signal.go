package domain

import "github.com/shopspring/decimal"

// Vote is the opaque (side, strength) output of one sub-strategy on one timeframe.
type Vote struct {
	Side     Side    `json:"side"`
	Strength float64 `json:"strength"` // [0,1]
}

// StrategyScore is the per-strategy breakdown of an ensemble decision.
type StrategyScore struct {
	Name      string  `json:"name"`
	Weight    float64 `json:"weight"`
	Fast      Vote    `json:"fast"`
	Slow      Vote    `json:"slow"`
	BuyScore  float64 `json:"buy_score"`
	SellScore float64 `json:"sell_score"`
	Agreement string  `json:"agreement"` // "confirmed", "conflict", "single"
	Err       string  `json:"error,omitempty"`
}

// SignalDetails records how the ensemble reached its decision.
type SignalDetails struct {
	Regime    Regime          `json:"regime"`
	Scores    []StrategyScore `json:"scores"`
	BuyScore  float64         `json:"buy_score"`
	SellScore float64         `json:"sell_score"`
	Threshold float64         `json:"threshold"`

	// Agreement counts: active strategies voting each side, per timeframe.
	BuyAgreementsFast  int `json:"buy_agreements_fast"`
	BuyAgreementsSlow  int `json:"buy_agreements_slow"`
	SellAgreementsFast int `json:"sell_agreements_fast"`
	SellAgreementsSlow int `json:"sell_agreements_slow"`
}

// Agreements returns the fast+slow agreement count for side.
func (d SignalDetails) Agreements(side Side) int {
	switch side {
	case SideBuy:
		return d.BuyAgreementsFast + d.BuyAgreementsSlow
	case SideSell:
		return d.SellAgreementsFast + d.SellAgreementsSlow
	default:
		return 0
	}
}

// Signal is the ensemble decision for one bar. It is never persisted.
type Signal struct {
	Side       Side
	Strength   float64         // clipped to [0,1]
	EntryPrice decimal.Decimal // reference price (bar close)
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Details    SignalDetails
}

// IsActionable reports whether the signal carries a direction.
func (s Signal) IsActionable() bool {
	return s.Side.IsValid()
}
