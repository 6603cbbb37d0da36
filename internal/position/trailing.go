package position

import "github.com/shopspring/decimal"

var one = decimal.NewFromInt(1)

// trail tightens the stop behind price once TP1 is hit and the move from
// entry exceeds the activation fraction. It never loosens the stop.
func (m *Machine) trail(price decimal.Decimal) {
	t := m.cfg.Trailing
	p := m.pos
	if !t.Enabled || p == nil || !p.TP1Hit {
		return
	}
	move := price.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(p.Side.Sign())
	if move.LessThan(t.Activation) {
		return
	}

	if p.Side.Sign().IsPositive() {
		candidate := price.Mul(one.Sub(t.Distance))
		if candidate.GreaterThan(p.StopLoss) {
			p.StopLoss = candidate
		}
		return
	}
	candidate := price.Mul(one.Add(t.Distance))
	if candidate.LessThan(p.StopLoss) {
		p.StopLoss = candidate
	}
}
