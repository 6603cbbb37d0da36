package indicators

import "math"

// RSI computes Wilder's relative strength index over p periods.
func RSI(close []float64, p int) []float64 {
	n := len(close)
	if p <= 0 || n <= p {
		return nans(n)
	}
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		ch := close[i] - close[i-1]
		if ch > 0 {
			gains[i] = ch
		} else {
			losses[i] = -ch
		}
	}
	avgGain := wilder(gains, p, 1)
	avgLoss := wilder(losses, p, 1)

	out := nans(n)
	for i := p; i < n; i++ {
		g, l := avgGain[i], avgLoss[i]
		if math.IsNaN(g) || math.IsNaN(l) {
			continue
		}
		switch {
		case l == 0 && g == 0:
			out[i] = 50
		case l == 0:
			out[i] = 100
		default:
			rs := g / l
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// TrueRange returns the per-bar true range. The first bar uses high - low.
func TrueRange(high, low, close []float64) []float64 {
	n := len(close)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := high[i] - low[i]
		if i == 0 {
			out[i] = hl
			continue
		}
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR is the Wilder-smoothed average true range.
func ATR(high, low, close []float64, p int) []float64 {
	return wilder(TrueRange(high, low, close), p, 0)
}

// ADX computes the average directional index over p periods.
func ADX(high, low, close []float64, p int) []float64 {
	n := len(close)
	out := nans(n)
	if p <= 0 || n < 2*p+1 {
		return out
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	tr := TrueRange(high, low, close)
	atr := wilder(tr, p, 1)
	pdm := wilder(plusDM, p, 1)
	mdm := wilder(minusDM, p, 1)

	dx := nans(n)
	for i := p; i < n; i++ {
		if math.IsNaN(atr[i]) || atr[i] == 0 {
			continue
		}
		pdi := 100 * pdm[i] / atr[i]
		mdi := 100 * mdm[i] / atr[i]
		sum := pdi + mdi
		if sum == 0 {
			dx[i] = 0
			continue
		}
		dx[i] = 100 * math.Abs(pdi-mdi) / sum
	}
	return wilder(dx, p, p)
}
