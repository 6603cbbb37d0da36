package metrics

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func trade(side domain.Side, pnl string, strength float64, durationMs int64) domain.TradeLog {
	p := d(pnl)
	return domain.TradeLog{
		Side:           side,
		PnL:            p,
		PnLPct:         p.Div(d("100")),
		SignalStrength: strength,
		DurationMs:     durationMs,
		Winning:        p.IsPositive(),
	}
}

func sample(equity, drawdown string) domain.EquitySample {
	return domain.EquitySample{Equity: d(equity), Drawdown: d(drawdown)}
}

func TestCompute_Empty(t *testing.T) {
	res := Compute(nil, nil, d("10000"))

	if res.TotalTrades != 0 || res.WinRate != 0 || res.ProfitFactor != 0 || res.SharpeRatio != 0 {
		t.Errorf("expected zero stats, got %+v", res)
	}
	if !res.FinalCapital.Equal(d("10000")) || res.TotalReturnPct != 0 {
		t.Errorf("expected capital unchanged, got %s / %f", res.FinalCapital, res.TotalReturnPct)
	}
	if len(res.Breakdown.ByStrength) != 0 {
		t.Errorf("expected empty breakdown, got %+v", res.Breakdown.ByStrength)
	}
}

func TestCompute_Stats(t *testing.T) {
	trades := []domain.TradeLog{
		trade(domain.SideBuy, "300", 0.9, 60_000),
		trade(domain.SideSell, "-100", 0.5, 120_000),
		trade(domain.SideBuy, "100", 0.65, 180_000),
		trade(domain.SideBuy, "-200", 0.3, 240_000),
	}
	res := Compute(trades, nil, d("10000"))

	if res.TotalTrades != 4 || res.WinningTrades != 2 || res.LosingTrades != 2 {
		t.Fatalf("unexpected counts: %d/%d/%d", res.TotalTrades, res.WinningTrades, res.LosingTrades)
	}
	if res.WinRate != 0.5 {
		t.Errorf("expected win rate 0.5, got %f", res.WinRate)
	}
	if !res.TotalPnL.Equal(d("100")) {
		t.Errorf("expected total pnl 100, got %s", res.TotalPnL)
	}
	if !res.AvgWin.Equal(d("200")) || !res.AvgLoss.Equal(d("-150")) {
		t.Errorf("expected avg win/loss 200/-150, got %s/%s", res.AvgWin, res.AvgLoss)
	}
	// |200*2 / (-150*2)| = 1.333...
	if math.Abs(res.ProfitFactor-4.0/3.0) > 1e-9 {
		t.Errorf("expected profit factor 1.333, got %f", res.ProfitFactor)
	}
	if !res.FinalCapital.Equal(d("10100")) {
		t.Errorf("expected final capital 10100, got %s", res.FinalCapital)
	}
	if math.Abs(res.TotalReturnPct-1.0) > 1e-9 {
		t.Errorf("expected return 1%%, got %f", res.TotalReturnPct)
	}
}

func TestCompute_NoLossesGivesZeroProfitFactor(t *testing.T) {
	res := Compute([]domain.TradeLog{trade(domain.SideBuy, "50", 0.5, 0)}, nil, d("1000"))
	if res.ProfitFactor != 0 {
		t.Errorf("expected 0 profit factor without losses, got %f", res.ProfitFactor)
	}
}

func TestCompute_Breakdown(t *testing.T) {
	trades := []domain.TradeLog{
		trade(domain.SideBuy, "300", 0.9, 60_000),
		trade(domain.SideSell, "-100", 0.5, 120_000),
		trade(domain.SideSell, "-50", 0.65, 180_000),
		trade(domain.SideBuy, "-200", 0.3, 240_000),
	}
	b := Compute(trades, nil, d("10000")).Breakdown

	if b.Long.Trades != 2 || b.Long.WinRate != 0.5 || !b.Long.AvgPnL.Equal(d("50")) {
		t.Errorf("unexpected long bucket: %+v", b.Long)
	}
	if b.Short.Trades != 2 || b.Short.WinRate != 0 || !b.Short.AvgPnL.Equal(d("-75")) {
		t.Errorf("unexpected short bucket: %+v", b.Short)
	}
	want := map[string]int{"very_strong": 1, "strong": 2, "medium": 3, "all": 4}
	for name, n := range want {
		if got := b.ByStrength[name].Trades; got != n {
			t.Errorf("tier %s: expected %d trades, got %d", name, n, got)
		}
	}
	if !b.LargestWin.Equal(d("300")) || !b.LargestLoss.Equal(d("-200")) {
		t.Errorf("unexpected extremes: %s/%s", b.LargestWin, b.LargestLoss)
	}
	if b.AvgDurationMs != 150_000 {
		t.Errorf("expected avg duration 150000, got %d", b.AvgDurationMs)
	}
	if b.MaxConsecutiveLosses != 3 {
		t.Errorf("expected 3 consecutive losses, got %d", b.MaxConsecutiveLosses)
	}
	// pnl_pct: 3, -1, -0.5, -2 -> sorted -2 -1 -0.5 3, median between -1 and -0.5
	if math.Abs(b.PnLPctMedian-(-0.75)) > 1e-9 {
		t.Errorf("expected median -0.75, got %f", b.PnLPctMedian)
	}
}

func TestCompute_SharpeAndDrawdown(t *testing.T) {
	equity := []domain.EquitySample{
		sample("10000", "0"),
		sample("10100", "0"),
		sample("10000", "0.0099"),
		sample("10200", "0"),
	}
	res := Compute(nil, equity, d("10000"))

	r := []float64{0.01, 10000.0/10100.0 - 1, 0.02}
	mean := (r[0] + r[1] + r[2]) / 3
	var ss float64
	for _, x := range r {
		ss += (x - mean) * (x - mean)
	}
	want := mean / math.Sqrt(ss/2) * math.Sqrt(252)
	if math.Abs(res.SharpeRatio-want) > 1e-6 {
		t.Errorf("expected sharpe %f, got %f", want, res.SharpeRatio)
	}
	if math.Abs(res.MaxDrawdown-0.0099) > 1e-12 {
		t.Errorf("expected max drawdown 0.0099, got %f", res.MaxDrawdown)
	}
}

func TestCompute_FlatEquitySharpeZero(t *testing.T) {
	equity := []domain.EquitySample{sample("100", "0"), sample("100", "0"), sample("100", "0")}
	if got := Compute(nil, equity, d("100")).SharpeRatio; got != 0 {
		t.Errorf("expected 0 sharpe on flat equity, got %f", got)
	}
}

func TestComputePercentile(t *testing.T) {
	tests := []struct {
		xs   []float64
		p    float64
		want float64
	}{
		{nil, 0.5, 0},
		{[]float64{7}, 0.9, 7},
		{[]float64{4, 1, 3, 2}, 0.5, 2.5},
		{[]float64{1, 2, 3, 4, 5}, 0.10, 1.4},
		{[]float64{1, 2, 3}, 1.0, 3},
	}
	for _, tt := range tests {
		if got := computePercentile(tt.xs, tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("computePercentile(%v, %v) = %v, want %v", tt.xs, tt.p, got, tt.want)
		}
	}
}

func TestComputeStddev(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mean := computeMean(xs)
	if mean != 5 {
		t.Fatalf("expected mean 5, got %f", mean)
	}
	// sample variance = 32/7
	if got := computeStddev(xs, mean); math.Abs(got-math.Sqrt(32.0/7.0)) > 1e-9 {
		t.Errorf("unexpected stddev %f", got)
	}
	if computeStddev([]float64{1}, 1) != 0 {
		t.Error("expected 0 for single sample")
	}
}

func TestEvaluate(t *testing.T) {
	excellent := domain.Result{WinRate: 0.6, ProfitFactor: 2.5, SharpeRatio: 2, MaxDrawdown: 0.05, TotalReturnPct: 8}
	if ev := Evaluate(excellent); ev.Grade != GradeExcellent || ev.Score != 5 || ev.Percentage != 100 {
		t.Errorf("unexpected evaluation: %+v", ev)
	}

	// 0.75 on four metrics, nothing for a negative return
	mixed := domain.Result{WinRate: 0.5, ProfitFactor: 1.5, SharpeRatio: 1.0, MaxDrawdown: 0.15, TotalReturnPct: -1}
	if ev := Evaluate(mixed); ev.Grade != GradeAcceptable || ev.Score != 3 {
		t.Errorf("unexpected evaluation: %+v", ev)
	}

	if ev := Evaluate(domain.Result{MaxDrawdown: 0.5, TotalReturnPct: -20}); ev.Grade != GradeVeryPoor || ev.Score != 0 {
		t.Errorf("unexpected evaluation: %+v", ev)
	}
}
