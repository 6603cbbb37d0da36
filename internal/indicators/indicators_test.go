package indicators

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMA(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Fatalf("expected NaN warm-up, got %v", out[:2])
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if !approx(out[i+2], w) {
			t.Errorf("SMA[%d] = %f, want %f", i+2, out[i+2], w)
		}
	}
}

func TestEMA_SeedAndConstant(t *testing.T) {
	x := []float64{10, 10, 10, 10, 10, 10}
	out := EMA(x, 3)
	for i := 2; i < len(out); i++ {
		if !approx(out[i], 10) {
			t.Errorf("EMA[%d] = %f, want 10", i, out[i])
		}
	}
	short := EMA([]float64{1, 2}, 5)
	for _, v := range short {
		if !math.IsNaN(v) {
			t.Errorf("expected NaN for short input, got %f", v)
		}
	}
}

func TestRSI_Extremes(t *testing.T) {
	up := make([]float64, 30)
	down := make([]float64, 30)
	for i := range up {
		up[i] = float64(100 + i)
		down[i] = float64(100 - i)
	}
	if v, ok := Last(RSI(up, 14)); !ok || !approx(v, 100) {
		t.Errorf("RSI of rising series = %f (ok=%v), want 100", v, ok)
	}
	if v, ok := Last(RSI(down, 14)); !ok || !approx(v, 0) {
		t.Errorf("RSI of falling series = %f (ok=%v), want 0", v, ok)
	}
}

func TestATR_ConstantRange(t *testing.T) {
	n := 30
	h := make([]float64, n)
	l := make([]float64, n)
	c := make([]float64, n)
	for i := 0; i < n; i++ {
		h[i], l[i], c[i] = 101, 99, 100
	}
	v, ok := Last(ATR(h, l, c, 14))
	if !ok || !approx(v, 2) {
		t.Errorf("ATR = %f (ok=%v), want 2", v, ok)
	}
}

func TestADX_StrongTrend(t *testing.T) {
	n := 60
	h := make([]float64, n)
	l := make([]float64, n)
	c := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)
		h[i], l[i], c[i] = base+1, base-1, base+0.5
	}
	v, ok := Last(ADX(h, l, c, 14))
	if !ok || v < 90 {
		t.Errorf("ADX of linear uptrend = %f (ok=%v), want > 90", v, ok)
	}
}

func TestBollinger_FlatSeries(t *testing.T) {
	x := make([]float64, 25)
	for i := range x {
		x[i] = 50
	}
	b := Bollinger(x, 20, 2)
	w, ok := Last(b.Width)
	if !ok || !approx(w, 0) {
		t.Errorf("width = %f, want 0", w)
	}
	if m, _ := Last(b.Middle); !approx(m, 50) {
		t.Errorf("middle = %f, want 50", m)
	}
}

func TestVWAPAndVolumeRatio(t *testing.T) {
	h := []float64{11, 11, 11}
	l := []float64{9, 9, 9}
	c := []float64{10, 10, 10}
	v := []float64{1, 2, 3}
	out := VWAP(h, l, c, v, 2)
	if got, ok := Last(out); !ok || !approx(got, 10) {
		t.Errorf("VWAP = %f, want 10", got)
	}

	vol := []float64{10, 10, 10, 10, 20}
	if r := VolumeRatio(vol, 5); !approx(r, 20.0/12.0) {
		t.Errorf("VolumeRatio = %f", r)
	}
	if r := VolumeRatio([]float64{1}, 5); r != 1 {
		t.Errorf("VolumeRatio without history = %f, want 1", r)
	}
}

func TestSMAValid_SkipsNaN(t *testing.T) {
	x := []float64{math.NaN(), 1, 2, math.NaN(), 3}
	out := SMAValid(x, 2)
	if !approx(out[2], 1.5) || !approx(out[4], 2.5) {
		t.Errorf("SMAValid = %v", out)
	}
}
