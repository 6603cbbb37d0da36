package backtest

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestValidateTrade(t *testing.T) {
	minRR, minStop := d("1"), d("0.002")

	tests := []struct {
		name    string
		side    domain.Side
		entry   string
		sl      string
		tp      string
		wantErr bool
	}{
		{"buy two to one", domain.SideBuy, "40000", "39500", "41000", false},
		{"buy stop above entry", domain.SideBuy, "40000", "40500", "41000", true},
		{"buy target below entry", domain.SideBuy, "40000", "39500", "39900", true},
		{"sell valid", domain.SideSell, "40000", "40500", "39000", false},
		{"sell stop below entry", domain.SideSell, "40000", "39500", "39000", true},
		{"reward below risk", domain.SideBuy, "40000", "39500", "40400", true},
		{"reward equals risk", domain.SideBuy, "40000", "39500", "40500", false},
		{"stop too tight", domain.SideBuy, "40000", "39950", "40200", true},
		{"no side", domain.SideNone, "40000", "39500", "41000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTrade(tt.side, d(tt.entry), d(tt.sl), d(tt.tp), minRR, minStop)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTradeSetup) {
					t.Errorf("expected ErrInvalidTradeSetup, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRunError_Is(t *testing.T) {
	cause := errors.New("boom")
	err := runError(KindDataSynchronization, cause, "align %s", "BTCUSDT")

	if !errors.Is(err, ErrDataSynchronization) {
		t.Error("expected kind sentinel to match")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to match")
	}
	if errors.Is(err, ErrInsufficientHistory) {
		t.Error("unexpected match on other kind")
	}

	var re *RunError
	if !errors.As(err, &re) || re.Kind != KindDataSynchronization {
		t.Errorf("expected RunError of kind %s, got %v", KindDataSynchronization, err)
	}
}

func TestDrawdownTracker(t *testing.T) {
	tr := newDrawdownTracker(d("10000"), d("0.15"))

	if dd, breached := tr.observe(d("10500")); !dd.IsZero() || breached {
		t.Fatalf("new peak: dd=%s breached=%v", dd, breached)
	}
	if dd, breached := tr.observe(d("9000")); breached || dd.StringFixed(4) != "0.1429" {
		t.Fatalf("9000: dd=%s breached=%v", dd, breached)
	}
	dd, breached := tr.observe(d("8900"))
	if !breached {
		t.Fatalf("8900 should breach 15%%, dd=%s", dd)
	}
	if got := dd.StringFixed(3); got != "0.152" {
		t.Errorf("dd = %s, want 0.152", got)
	}
	if !tr.peak.Equal(d("10500")) {
		t.Errorf("peak = %s, want 10500", tr.peak)
	}
}
