package indicators

import "math"

// Bands holds Bollinger band series.
type Bands struct {
	Middle []float64
	Upper  []float64
	Lower  []float64
	Width  []float64 // (upper - lower) / middle
}

// Bollinger computes bands of k standard deviations around SMA(p).
func Bollinger(close []float64, p int, k float64) Bands {
	mean, std := MeanStd(close, p)
	n := len(close)
	b := Bands{
		Middle: mean,
		Upper:  make([]float64, n),
		Lower:  make([]float64, n),
		Width:  make([]float64, n),
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(mean[i]) {
			b.Upper[i], b.Lower[i], b.Width[i] = math.NaN(), math.NaN(), math.NaN()
			continue
		}
		b.Upper[i] = mean[i] + k*std[i]
		b.Lower[i] = mean[i] - k*std[i]
		if mean[i] == 0 {
			b.Width[i] = math.NaN()
			continue
		}
		b.Width[i] = (b.Upper[i] - b.Lower[i]) / mean[i]
	}
	return b
}

// SMAValid is SMA that skips NaN inputs; a window is defined once it holds
// p valid values.
func SMAValid(x []float64, p int) []float64 {
	out := nans(len(x))
	if p <= 0 {
		return out
	}
	var window []float64
	var sum float64
	for i, v := range x {
		if math.IsNaN(v) {
			continue
		}
		window = append(window, v)
		sum += v
		if len(window) > p {
			sum -= window[0]
			window = window[1:]
		}
		if len(window) == p {
			out[i] = sum / float64(p)
		}
	}
	return out
}

// VWAP is a rolling volume-weighted average of typical price over p bars.
func VWAP(high, low, close, volume []float64, p int) []float64 {
	n := len(close)
	if p <= 0 || len(high) != n || len(low) != n || len(volume) != n {
		return nans(n)
	}
	out := make([]float64, n)
	var sumPV, sumV float64
	for i := 0; i < n; i++ {
		tp := (high[i] + low[i] + close[i]) / 3.0
		sumPV += tp * volume[i]
		sumV += volume[i]
		if i >= p {
			tpOld := (high[i-p] + low[i-p] + close[i-p]) / 3.0
			sumPV -= tpOld * volume[i-p]
			sumV -= volume[i-p]
		}
		if i < p-1 || sumV == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sumPV / sumV
	}
	return out
}

// VolumeRatio returns the last volume divided by the SMA(p) of volume.
// Returns 1 when the average is not available.
func VolumeRatio(volume []float64, p int) float64 {
	ma, ok := Last(SMA(volume, p))
	last, okLast := Last(volume)
	if !ok || !okLast || ma == 0 {
		return 1
	}
	return last / ma
}

// Delta approximates signed order flow per bar: volume weighted by where
// the close sits inside the bar range, in [-volume, +volume].
func Delta(s Series) []float64 {
	out := make([]float64, s.Len())
	for i := range out {
		rng := s.High[i] - s.Low[i]
		if rng == 0 {
			continue
		}
		pos := ((s.Close[i] - s.Low[i]) - (s.High[i] - s.Close[i])) / rng
		out[i] = pos * s.Volume[i]
	}
	return out
}
