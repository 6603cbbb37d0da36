package ensemble

import (
	"testing"

	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
)

func bar(ts int64, o, h, l, c, v float64) domain.Bar {
	return domain.Bar{
		TimestampMs: ts,
		Open:        decimal.NewFromFloat(o),
		High:        decimal.NewFromFloat(h),
		Low:         decimal.NewFromFloat(l),
		Close:       decimal.NewFromFloat(c),
		Volume:      decimal.NewFromFloat(v),
	}
}

// calmBars have a 1% range around 100 and constant volume.
func calmBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = bar(int64(i)*60_000, 100, 100.5, 99.5, 100, 100)
	}
	return bars
}

func buySignal(strength float64) domain.Signal {
	return domain.Signal{Side: domain.SideBuy, Strength: strength}
}

func TestFilter_Passes(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	q := f.Check(buySignal(0.9), calmBars(30), calmBars(10))
	if !q.Passed {
		t.Fatalf("expected pass, got reason %q", q.Reason)
	}
	if q.Confidence != ConfidenceWeak {
		t.Errorf("expected weak confidence without agreements, got %s", q.Confidence)
	}
}

func TestFilter_Rejections(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())

	lowVolume := calmBars(30)
	lowVolume[29] = bar(29*60_000, 100, 100.5, 99.5, 100, 10)

	upperWick := calmBars(30)
	upperWick[29] = bar(29*60_000, 100, 103, 99.9, 100.1, 100)

	gapDown := calmBars(30)
	gapDown[29] = bar(29*60_000, 99.5, 100, 99, 99.8, 100)

	falling := make([]domain.Bar, 60)
	for i := range falling {
		p := 160 - float64(i)
		falling[i] = bar(int64(i)*900_000, p, p+0.5, p-0.5, p, 100)
	}

	quiet := make([]domain.Bar, 30)
	for i := range quiet {
		quiet[i] = bar(int64(i)*60_000, 100, 100.05, 99.95, 100, 100)
	}

	tests := []struct {
		name string
		sig  domain.Signal
		fast []domain.Bar
		slow []domain.Bar
		want string
	}{
		{"no side", domain.Signal{}, calmBars(30), nil, RejectNoSide},
		{"weak", buySignal(0.1), calmBars(30), nil, RejectWeakStrength},
		{"low volume", buySignal(0.9), lowVolume, nil, RejectLowVolume},
		{"too quiet", buySignal(0.9), quiet, nil, RejectVolatilityLow},
		{"against slow trend", buySignal(0.9), calmBars(30), falling, RejectTrendMisalign},
		{"upper wick", buySignal(0.9), upperWick, nil, RejectWickAgainst},
		{"gap down", buySignal(0.9), gapDown, nil, RejectGapAgainst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := f.Check(tt.sig, tt.fast, tt.slow)
			if q.Passed {
				t.Fatal("expected rejection")
			}
			if q.Reason != tt.want {
				t.Errorf("reason = %q, want %q", q.Reason, tt.want)
			}
		})
	}
}

func TestFilter_SellAllowedInDownTrend(t *testing.T) {
	falling := make([]domain.Bar, 60)
	for i := range falling {
		p := 160 - float64(i)
		falling[i] = bar(int64(i)*900_000, p, p+0.5, p-0.5, p, 100)
	}
	sig := domain.Signal{Side: domain.SideSell, Strength: 0.9}
	q := NewFilter(DefaultFilterConfig()).Check(sig, calmBars(30), falling)
	if !q.Passed {
		t.Fatalf("expected pass, got %q", q.Reason)
	}
}

func TestConfidenceTier(t *testing.T) {
	tests := []struct {
		strength   float64
		agreements int
		want       string
	}{
		{0.8, 4, ConfidenceExcellent},
		{0.6, 3, ConfidenceGood},
		{0.45, 2, ConfidenceOK},
		{0.35, 0, ConfidenceWeak},
		{0.2, 5, ConfidenceReject},
	}
	for _, tt := range tests {
		if got := ConfidenceTier(tt.strength, tt.agreements); got != tt.want {
			t.Errorf("ConfidenceTier(%v, %d) = %s, want %s", tt.strength, tt.agreements, got, tt.want)
		}
	}
}
