package position

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestMachine(filler ExitFiller) *Machine {
	return NewMachine(ConfigFromRisk(domain.DefaultRiskParameters()), filler, zerolog.Nop())
}

func openBuy(t *testing.T, m *Machine) domain.Position {
	t.Helper()
	p, err := m.Open(OpenRequest{
		Symbol:      "BTCUSDT",
		Side:        domain.SideBuy,
		Entry:       d("40000"),
		Quantity:    d("1.0"),
		StopLoss:    d("39500"),
		TakeProfit:  d("41000"),
		TimestampMs: 1000,
		Strength:    0.6,
		Regime:      domain.RegimeTrendingUp,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return p
}

func tick(ts int64, price string) Tick {
	return Tick{TimestampMs: ts, Price: d(price), Regime: domain.RegimeTrendingUp}
}

// checkQuantities verifies entry = current + sum(legs).
func checkQuantities(t *testing.T, p domain.Position) {
	t.Helper()
	if !p.EntryQuantity.Equal(p.CurrentQuantity.Add(p.ExitedQuantity())) {
		t.Errorf("quantity invariant broken: entry=%s current=%s exited=%s",
			p.EntryQuantity, p.CurrentQuantity, p.ExitedQuantity())
	}
}

func TestOpen_DerivesLadder(t *testing.T) {
	p := openBuy(t, newTestMachine(nil))
	if !p.TP1.Equal(d("40500")) || !p.TP2.Equal(d("40750")) || !p.TP3.Equal(d("41000")) {
		t.Errorf("ladder = %s/%s/%s", p.TP1, p.TP2, p.TP3)
	}
}

func TestUpdate_TP1PartialPromotesStop(t *testing.T) {
	m := newTestMachine(nil)
	openBuy(t, m)

	tr, trade := m.Update(tick(2000, "40500"))
	if tr != TransitionTP1 {
		t.Fatalf("expected TP1, got %q", tr)
	}
	if trade != nil {
		t.Fatal("partial exit must not produce a trade log")
	}
	p, ok := m.Position()
	if !ok {
		t.Fatal("position should remain open")
	}
	if !p.CurrentQuantity.Equal(d("0.7")) {
		t.Errorf("expected current 0.7, got %s", p.CurrentQuantity)
	}
	if !p.StopLoss.Equal(d("40000")) {
		t.Errorf("expected stop promoted to 40000, got %s", p.StopLoss)
	}
	checkQuantities(t, p)
}

func TestUpdate_FullLadder(t *testing.T) {
	m := newTestMachine(nil)
	openBuy(t, m)

	steps := []struct {
		price string
		want  Transition
	}{
		{"40200", TransitionNone},
		{"40500", TransitionTP1},
		{"40750", TransitionTP2},
	}
	for i, s := range steps {
		tr, trade := m.Update(tick(int64(2000+i), s.price))
		if tr != s.want || trade != nil {
			t.Fatalf("step %d: got %q trade=%v, want %q", i, tr, trade != nil, s.want)
		}
	}

	tr, trade := m.Update(tick(5000, "41000"))
	if tr != TransitionTP3 || trade == nil {
		t.Fatalf("expected TP3 close, got %q", tr)
	}
	if m.IsOpen() {
		t.Error("machine should be flat")
	}
	// 0.3*500 + 0.4*750 + 0.3*1000
	if !trade.PnL.Equal(d("750")) {
		t.Errorf("expected pnl 750, got %s", trade.PnL)
	}
	if !trade.PnLPct.Equal(d("1.875")) {
		t.Errorf("expected pnl_pct 1.875, got %s", trade.PnLPct)
	}
	if trade.ExitReason != domain.ExitReasonTP3 || !trade.Winning {
		t.Errorf("unexpected trade: %+v", trade)
	}
	if len(trade.Legs) != 3 {
		t.Fatalf("expected 3 legs, got %d", len(trade.Legs))
	}
	sumQty, sumPnL := decimal.Zero, decimal.Zero
	for _, l := range trade.Legs {
		sumQty = sumQty.Add(l.Quantity)
		sumPnL = sumPnL.Add(l.PnL)
	}
	if !sumQty.Equal(trade.EntryQuantity) || !sumPnL.Equal(trade.PnL) {
		t.Errorf("legs do not add up: qty=%s pnl=%s", sumQty, sumPnL)
	}
	if trade.DurationMs != 4000 {
		t.Errorf("expected duration 4000, got %d", trade.DurationMs)
	}
}

func TestUpdate_StopLoss(t *testing.T) {
	m := newTestMachine(nil)
	openBuy(t, m)

	tr, trade := m.Update(tick(2000, "39400"))
	if tr != TransitionStopLoss || trade == nil {
		t.Fatalf("expected stop close, got %q", tr)
	}
	if !trade.PnL.Equal(d("-600")) || trade.Winning {
		t.Errorf("expected losing -600, got %s", trade.PnL)
	}
	if trade.ExitReason != domain.ExitReasonStopLoss {
		t.Errorf("expected Stop Loss reason, got %s", trade.ExitReason)
	}
	if !trade.StopLoss.Equal(d("39500")) {
		t.Errorf("trade log should carry the initial stop, got %s", trade.StopLoss)
	}
}

func TestUpdate_BreakevenStopAfterTP1(t *testing.T) {
	m := newTestMachine(nil)
	openBuy(t, m)

	m.Update(tick(2000, "40500"))
	tr, trade := m.Update(tick(3000, "40000"))
	if tr != TransitionStopLoss || trade == nil {
		t.Fatalf("expected breakeven stop, got %q", tr)
	}
	if !trade.PnL.Equal(d("150")) {
		t.Errorf("expected pnl 150 from TP1 leg only, got %s", trade.PnL)
	}
}

func TestUpdate_OneTransitionPerBar(t *testing.T) {
	m := newTestMachine(nil)
	openBuy(t, m)

	// Price gaps past TP3; only TP1 fires on this bar.
	tr, trade := m.Update(tick(2000, "42000"))
	if tr != TransitionTP1 || trade != nil {
		t.Fatalf("expected TP1 only, got %q", tr)
	}
	tr, _ = m.Update(tick(3000, "42000"))
	if tr != TransitionTP2 {
		t.Fatalf("expected TP2 on next bar, got %q", tr)
	}
	tr, trade = m.Update(tick(4000, "42000"))
	if tr != TransitionTP3 || trade == nil {
		t.Fatalf("expected TP3 on third bar, got %q", tr)
	}
}

func TestUpdate_SellSide(t *testing.T) {
	m := newTestMachine(nil)
	_, err := m.Open(OpenRequest{
		Symbol: "ETHUSDT", Side: domain.SideSell,
		Entry: d("100"), Quantity: d("10"), StopLoss: d("102"), TakeProfit: d("96"),
		TimestampMs: 0, Regime: domain.RegimeTrendingDown,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	p, _ := m.Position()
	if !p.TP1.Equal(d("98")) || !p.TP3.Equal(d("96")) {
		t.Fatalf("sell ladder = %s/%s/%s", p.TP1, p.TP2, p.TP3)
	}

	if tr, _ := m.Update(tick(1, "98")); tr != TransitionTP1 {
		t.Fatalf("expected TP1, got %q", tr)
	}
	tr, trade := m.Update(tick(2, "100.5"))
	if tr != TransitionStopLoss || trade == nil {
		t.Fatalf("expected breakeven stop above entry, got %q", tr)
	}
	// TP1 leg 3 * 2 = 6, remaining 7 * -0.5 = -3.5
	if !trade.PnL.Equal(d("2.5")) {
		t.Errorf("expected pnl 2.5, got %s", trade.PnL)
	}
}

type minusOne struct{ calls int }

func (f *minusOne) Exit(price decimal.Decimal, side domain.Side, _ float64, _ domain.Regime, _ int64) decimal.Decimal {
	f.calls++
	return price.Sub(decimal.NewFromInt(1))
}

func TestUpdate_ExitFillsUseFiller(t *testing.T) {
	f := &minusOne{}
	m := newTestMachine(f)
	openBuy(t, m)

	_, trade := m.Update(tick(2000, "39400"))
	if f.calls != 1 {
		t.Errorf("expected one fill, got %d", f.calls)
	}
	if !trade.ExitPrice.Equal(d("39399")) || !trade.PnL.Equal(d("-601")) {
		t.Errorf("fill not applied: exit=%s pnl=%s", trade.ExitPrice, trade.PnL)
	}
}

func lotMachine(step, minQty string, ratios ...string) *Machine {
	cfg := ConfigFromRisk(domain.DefaultRiskParameters())
	cfg.StepSize, cfg.MinQty = d(step), d(minQty)
	for i, r := range ratios {
		cfg.TPExitRatios[i] = d(r)
	}
	return NewMachine(cfg, nil, zerolog.Nop())
}

func openQty(t *testing.T, m *Machine, qty string) {
	t.Helper()
	_, err := m.Open(OpenRequest{
		Symbol:      "BTCUSDT",
		Side:        domain.SideBuy,
		Entry:       d("40000"),
		Quantity:    d(qty),
		StopLoss:    d("39500"),
		TakeProfit:  d("41000"),
		TimestampMs: 1000,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
}

func legQuantities(legs []domain.ExitLeg) []string {
	out := make([]string, len(legs))
	for i, l := range legs {
		out[i] = l.Quantity.String()
	}
	return out
}

func TestPartialExits_LotFilters(t *testing.T) {
	tests := []struct {
		name     string
		m        *Machine
		qty      string
		prices   []string
		want     []Transition
		legs     []string
		exitedAt string
	}{
		{
			name:     "legs round down to step",
			m:        lotMachine("0.001", "0.001"),
			qty:      "0.007",
			prices:   []string{"40500", "40750", "41000"},
			want:     []Transition{TransitionTP1, TransitionTP2, TransitionTP3},
			legs:     []string{"0.002", "0.002", "0.003"},
			exitedAt: domain.ExitReasonTP3,
		},
		{
			name:     "leg below step is skipped",
			m:        lotMachine("0.001", "0.001"),
			qty:      "0.003",
			prices:   []string{"40500", "40750", "41000"},
			want:     []Transition{TransitionTP1, TransitionTP2, TransitionTP3},
			legs:     []string{"0.001", "0.002"},
			exitedAt: domain.ExitReasonTP3,
		},
		{
			name:     "remainder below min lot goes with the leg",
			m:        lotMachine("0.001", "0.002", "0.3", "0.6", "0.1"),
			qty:      "0.010",
			prices:   []string{"40500", "40750"},
			want:     []Transition{TransitionTP1, TransitionTP2},
			legs:     []string{"0.003", "0.007"},
			exitedAt: domain.ExitReasonTP2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			openQty(t, tt.m, tt.qty)
			var trade *domain.TradeLog
			for i, price := range tt.prices {
				var tr Transition
				tr, trade = tt.m.Update(tick(int64(2000+i), price))
				if tr != tt.want[i] {
					t.Fatalf("bar %d: got %q, want %q", i, tr, tt.want[i])
				}
				if p, ok := tt.m.Position(); ok {
					checkQuantities(t, p)
					if p.TP1Hit && !p.StopLoss.Equal(p.EntryPrice) {
						t.Errorf("stop not promoted after TP1: %s", p.StopLoss)
					}
				}
			}
			if trade == nil || tt.m.IsOpen() {
				t.Fatal("expected the position to close")
			}
			if trade.ExitReason != tt.exitedAt {
				t.Errorf("exit reason %q, want %q", trade.ExitReason, tt.exitedAt)
			}
			got := legQuantities(trade.Legs)
			if len(got) != len(tt.legs) {
				t.Fatalf("legs %v, want %v", got, tt.legs)
			}
			sum := decimal.Zero
			for i, l := range trade.Legs {
				if !l.Quantity.Equal(d(tt.legs[i])) {
					t.Errorf("leg %d: qty %s, want %s", i, l.Quantity, tt.legs[i])
				}
				sum = sum.Add(l.Quantity)
			}
			if !sum.Equal(trade.EntryQuantity) {
				t.Errorf("legs sum %s != entry %s", sum, trade.EntryQuantity)
			}
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	m := newTestMachine(nil)
	openBuy(t, m)
	if _, err := m.Open(OpenRequest{Side: domain.SideBuy, Entry: d("1"), Quantity: d("1")}); !errors.Is(err, ErrPositionOpen) {
		t.Errorf("expected ErrPositionOpen, got %v", err)
	}

	flat := newTestMachine(nil)
	if _, err := flat.Open(OpenRequest{Side: domain.SideNone, Entry: d("1"), Quantity: d("1")}); !errors.Is(err, ErrInvalidOpen) {
		t.Errorf("expected ErrInvalidOpen, got %v", err)
	}
	if _, err := flat.ForceClose(tick(0, "1"), domain.ExitReasonEndOfRun); !errors.Is(err, ErrNoPosition) {
		t.Errorf("expected ErrNoPosition, got %v", err)
	}
}

func TestForceClose(t *testing.T) {
	m := newTestMachine(nil)
	openBuy(t, m)
	m.Update(tick(2000, "40500"))

	trade, err := m.ForceClose(tick(3000, "40100"), domain.ExitReasonEndOfRun)
	if err != nil {
		t.Fatalf("ForceClose failed: %v", err)
	}
	// 0.3*500 + 0.7*100
	if !trade.PnL.Equal(d("220")) || trade.ExitReason != domain.ExitReasonEndOfRun {
		t.Errorf("unexpected trade: pnl=%s reason=%s", trade.PnL, trade.ExitReason)
	}
	if !trade.ExitQuantity.Equal(d("0.7")) {
		t.Errorf("expected final leg 0.7, got %s", trade.ExitQuantity)
	}
}

func TestTrailingStop(t *testing.T) {
	cfg := ConfigFromRisk(domain.DefaultRiskParameters())
	cfg.Trailing.Enabled = true
	m := NewMachine(cfg, nil, zerolog.Nop())
	_, err := m.Open(OpenRequest{
		Symbol: "SOLUSDT", Side: domain.SideBuy,
		Entry: d("100"), Quantity: d("10"), StopLoss: d("99"), TakeProfit: d("110"),
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	m.Update(tick(1, "105")) // TP1, stop -> 100
	m.Update(tick(2, "106")) // trails to 105.682
	p, _ := m.Position()
	if !p.StopLoss.Equal(d("105.682")) {
		t.Fatalf("expected trailed stop 105.682, got %s", p.StopLoss)
	}

	m.Update(tick(3, "105.8")) // never loosens
	p, _ = m.Position()
	if !p.StopLoss.Equal(d("105.682")) {
		t.Errorf("stop loosened to %s", p.StopLoss)
	}

	tr, trade := m.Update(tick(4, "105.5"))
	if tr != TransitionStopLoss || trade == nil {
		t.Fatalf("expected trailed stop exit, got %q", tr)
	}
}

func TestTrailingStop_DisabledByDefault(t *testing.T) {
	m := newTestMachine(nil)
	openBuy(t, m)
	m.Update(tick(1, "40500"))
	m.Update(tick(2, "40700"))
	p, _ := m.Position()
	if !p.StopLoss.Equal(d("40000")) {
		t.Errorf("stop moved without trailing: %s", p.StopLoss)
	}
}
