// Package position owns the lifecycle of the single open position:
// entry, partial exits at TP1/TP2, full exit at TP3 or stop, and breakeven
// stop promotion.
package position

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/sizing"
)

var (
	// ErrPositionOpen is returned by Open when a position already exists.
	ErrPositionOpen = errors.New("position already open")
	// ErrNoPosition is returned when closing without an open position.
	ErrNoPosition = errors.New("no open position")
	// ErrInvalidOpen is returned for malformed open requests.
	ErrInvalidOpen = errors.New("invalid open request")
)

// Transition is the single state change applied on one bar.
type Transition string

const (
	TransitionNone     Transition = ""
	TransitionStopLoss Transition = "STOP_LOSS"
	TransitionTP1      Transition = "TP1"
	TransitionTP2      Transition = "TP2"
	TransitionTP3      Transition = "TP3"
)

// ExitFiller converts a trigger price into an exit fill.
// slippage.Model implements it.
type ExitFiller interface {
	Exit(price decimal.Decimal, side domain.Side, volumeRatio float64, r domain.Regime, timestampMs int64) decimal.Decimal
}

// Config controls take-profit tiers and the optional trailing stop.
type Config struct {
	TPDistances  [domain.TakeProfitLevels]decimal.Decimal
	TPExitRatios [domain.TakeProfitLevels]decimal.Decimal

	// ExitVolumeRatio is the liquidity assumed for exit fills.
	ExitVolumeRatio float64

	// StepSize and MinQty are the symbol's lot filters. Zero disables them.
	StepSize decimal.Decimal
	MinQty   decimal.Decimal

	Trailing TrailingConfig
}

// TrailingConfig enables a stop that follows the close once TP1 is hit.
type TrailingConfig struct {
	Enabled    bool
	Activation decimal.Decimal // favorable move from entry, fraction
	Distance   decimal.Decimal // distance behind the close, fraction
}

// ConfigFromRisk builds a Config from the run's risk parameters.
func ConfigFromRisk(risk domain.RiskParameters) Config {
	return Config{
		TPDistances:     risk.TPDistances,
		TPExitRatios:    risk.TPExitRatios,
		ExitVolumeRatio: 1.0,
		Trailing: TrailingConfig{
			Activation: decimal.RequireFromString("0.005"),
			Distance:   decimal.RequireFromString("0.003"),
		},
	}
}

// OpenRequest describes a validated, sized entry.
type OpenRequest struct {
	Symbol      string
	Side        domain.Side
	Entry       decimal.Decimal // fill price after slippage
	Quantity    decimal.Decimal
	StopLoss    decimal.Decimal
	TakeProfit  decimal.Decimal
	TimestampMs int64
	Strength    float64
	Regime      domain.Regime
}

// Tick is the bar information the machine reacts to.
type Tick struct {
	TimestampMs int64
	Price       decimal.Decimal // trigger price, the bar close
	Regime      domain.Regime
}

// Machine is Flat or holds one position. Not safe for concurrent use.
type Machine struct {
	cfg    Config
	filler ExitFiller
	pos    *domain.Position
	logger zerolog.Logger
}

// NewMachine creates a flat Machine.
func NewMachine(cfg Config, filler ExitFiller, logger zerolog.Logger) *Machine {
	return &Machine{
		cfg:    cfg,
		filler: filler,
		logger: logger.With().Str("component", "position").Logger(),
	}
}

// IsOpen reports whether a position is live.
func (m *Machine) IsOpen() bool {
	return m.pos != nil
}

// Position returns a copy of the live position.
func (m *Machine) Position() (domain.Position, bool) {
	if m.pos == nil {
		return domain.Position{}, false
	}
	return m.pos.Clone(), true
}

// Unrealized returns the open PnL at price, zero when flat.
func (m *Machine) Unrealized(price decimal.Decimal) decimal.Decimal {
	if m.pos == nil {
		return decimal.Zero
	}
	return m.pos.UnrealizedPnL(price)
}

// Open instantiates a position and derives its TP ladder:
// TPi = entry + (take_profit - entry) x distance_i.
func (m *Machine) Open(req OpenRequest) (domain.Position, error) {
	if m.pos != nil {
		return domain.Position{}, ErrPositionOpen
	}
	if !req.Side.IsValid() || !req.Quantity.IsPositive() || !req.Entry.IsPositive() {
		return domain.Position{}, fmt.Errorf("%w: side=%q qty=%s entry=%s", ErrInvalidOpen, req.Side, req.Quantity, req.Entry)
	}

	span := req.TakeProfit.Sub(req.Entry)
	var tps [domain.TakeProfitLevels]decimal.Decimal
	for i := range tps {
		tps[i] = req.Entry.Add(span.Mul(m.cfg.TPDistances[i]))
	}

	m.pos = &domain.Position{
		Symbol:          req.Symbol,
		Side:            req.Side,
		EntryPrice:      req.Entry,
		EntryQuantity:   req.Quantity,
		CurrentQuantity: req.Quantity,
		StopLoss:        req.StopLoss,
		InitialStopLoss: req.StopLoss,
		TakeProfit:      req.TakeProfit,
		TP1:             tps[0],
		TP2:             tps[1],
		TP3:             tps[2],
		EntryTimeMs:     req.TimestampMs,
		SignalStrength:  req.Strength,
		Regime:          req.Regime,
		RealizedPnL:     decimal.Zero,
	}

	m.logger.Debug().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("entry", req.Entry.String()).
		Str("qty", req.Quantity.String()).
		Str("sl", req.StopLoss.String()).
		Str("tp", req.TakeProfit.String()).
		Msg("position opened")
	return m.pos.Clone(), nil
}

// Update applies at most one transition for tick, in priority order:
// stop, TP1, TP2, TP3. A TradeLog is returned only when the position
// fully closes.
func (m *Machine) Update(tick Tick) (Transition, *domain.TradeLog) {
	p := m.pos
	if p == nil {
		return TransitionNone, nil
	}

	switch {
	case m.stopHit(tick.Price):
		return TransitionStopLoss, m.close(tick, domain.ExitReasonStopLoss)
	case !p.TP1Hit && m.reached(tick.Price, p.TP1):
		m.partial(tick, 0, domain.ExitReasonTP1)
		p.TP1Hit = true
		p.StopLoss = p.EntryPrice
		if p.CurrentQuantity.IsZero() {
			return TransitionTP1, m.finish(tick, domain.ExitReasonTP1)
		}
		return TransitionTP1, nil
	case p.TP1Hit && !p.TP2Hit && m.reached(tick.Price, p.TP2):
		m.partial(tick, 1, domain.ExitReasonTP2)
		p.TP2Hit = true
		if p.CurrentQuantity.IsZero() {
			return TransitionTP2, m.finish(tick, domain.ExitReasonTP2)
		}
		return TransitionTP2, nil
	case p.TP2Hit && !p.TP3Hit && m.reached(tick.Price, p.TP3):
		p.TP3Hit = true
		return TransitionTP3, m.close(tick, domain.ExitReasonTP3)
	}

	m.trail(tick.Price)
	return TransitionNone, nil
}

// ForceClose exits the remaining quantity at the tick price with reason.
func (m *Machine) ForceClose(tick Tick, reason string) (*domain.TradeLog, error) {
	if m.pos == nil {
		return nil, ErrNoPosition
	}
	return m.close(tick, reason), nil
}

// stopHit reports whether price crossed the stop against the position.
func (m *Machine) stopHit(price decimal.Decimal) bool {
	if m.pos.Side == domain.SideBuy {
		return price.LessThanOrEqual(m.pos.StopLoss)
	}
	return price.GreaterThanOrEqual(m.pos.StopLoss)
}

// reached reports whether price crossed a target in the position's favor.
func (m *Machine) reached(price, target decimal.Decimal) bool {
	if m.pos.Side == domain.SideBuy {
		return price.GreaterThanOrEqual(target)
	}
	return price.LessThanOrEqual(target)
}

// partial exits entry_qty x ratio rounded down to the lot step. A leg or
// remainder that would fall below the minimum lot is not split off: the
// remainder goes with this leg, a leg too small to fill is skipped.
func (m *Machine) partial(tick Tick, tier int, reason string) {
	p := m.pos
	qty := sizing.RoundDown(p.EntryQuantity.Mul(m.cfg.TPExitRatios[tier]), m.cfg.StepSize)
	switch rest := p.CurrentQuantity.Sub(qty); {
	case !rest.IsPositive() || rest.LessThan(m.cfg.MinQty):
		qty = p.CurrentQuantity
	case !qty.IsPositive() || qty.LessThan(m.cfg.MinQty):
		qty = decimal.Zero
	}
	if qty.IsPositive() {
		m.leg(tick, qty, reason)
	}
	m.logger.Debug().
		Str("symbol", p.Symbol).
		Str("reason", reason).
		Str("remaining", p.CurrentQuantity.String()).
		Str("stop", p.StopLoss.String()).
		Msg("partial exit")
}

// close exits everything left, then finishes the trade.
func (m *Machine) close(tick Tick, reason string) *domain.TradeLog {
	if m.pos.CurrentQuantity.IsPositive() {
		m.leg(tick, m.pos.CurrentQuantity, reason)
	}
	m.logger.Debug().
		Str("symbol", m.pos.Symbol).
		Str("reason", reason).
		Str("trigger", tick.Price.String()).
		Msg("position closed")
	return m.finish(tick, reason)
}

// leg fills qty at the slipped tick price and folds its PnL into the position.
func (m *Machine) leg(tick Tick, qty decimal.Decimal, reason string) {
	p := m.pos
	fill := tick.Price
	if m.filler != nil {
		fill = m.filler.Exit(tick.Price, p.Side, m.cfg.ExitVolumeRatio, tick.Regime, tick.TimestampMs)
	}
	pnl := fill.Sub(p.EntryPrice).Mul(qty).Mul(p.Side.Sign())
	p.Legs = append(p.Legs, domain.ExitLeg{
		Reason:      reason,
		TimestampMs: tick.TimestampMs,
		Price:       fill,
		Quantity:    qty,
		PnL:         pnl,
	})
	p.CurrentQuantity = p.CurrentQuantity.Sub(qty)
	p.RealizedPnL = p.RealizedPnL.Add(pnl)
}

// finish converts the closed position into a TradeLog and goes flat.
func (m *Machine) finish(tick Tick, reason string) *domain.TradeLog {
	p := m.pos
	m.pos = nil

	last := p.Legs[len(p.Legs)-1]
	pnlPct := decimal.Zero
	if cost := p.EntryPrice.Mul(p.EntryQuantity); cost.IsPositive() {
		pnlPct = p.RealizedPnL.Div(cost).Mul(decimal.NewFromInt(100))
	}
	return &domain.TradeLog{
		Symbol:         p.Symbol,
		Side:           p.Side,
		EntryTimeMs:    p.EntryTimeMs,
		EntryPrice:     p.EntryPrice,
		EntryQuantity:  p.EntryQuantity,
		StopLoss:       p.InitialStopLoss,
		TakeProfit:     p.TakeProfit,
		ExitTimeMs:     tick.TimestampMs,
		ExitPrice:      last.Price,
		ExitQuantity:   last.Quantity,
		ExitReason:     reason,
		PnL:            p.RealizedPnL,
		PnLPct:         pnlPct,
		DurationMs:     tick.TimestampMs - p.EntryTimeMs,
		SignalStrength: p.SignalStrength,
		Regime:         p.Regime,
		Winning:        p.RealizedPnL.IsPositive(),
		Legs:           p.Legs,
	}
}
