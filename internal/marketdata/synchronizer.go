// Package marketdata prepares bar histories for a run: deduplication,
// ordering, timeframe alignment, gap and OHLC checks, resampling, and
// look-ahead-free slow-bar lookup.
package marketdata

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
)

// Errors returned by the synchronizer.
var (
	ErrEmptySeries = errors.New("empty bar series")
	ErrInvalidOHLC = errors.New("invalid OHLC data")
)

// Gap is a hole between consecutive bars.
type Gap struct {
	FromMs  int64 `json:"from_ms"`
	ToMs    int64 `json:"to_ms"`
	Missing int   `json:"missing"` // whole intervals absent
}

// Report describes what Align changed and found.
type Report struct {
	FastDuplicates int   `json:"fast_duplicates"`
	SlowDuplicates int   `json:"slow_duplicates"`
	FastTruncated  int   `json:"fast_truncated"` // fast bars after the last slow bar
	FastGaps       []Gap `json:"fast_gaps"`
	SlowGaps       []Gap `json:"slow_gaps"`
	ExpectedFast   int   `json:"expected_fast"`
	Sparse         bool  `json:"sparse"` // fewer than 80% of expected fast bars
}

// Aligned is a synchronized pair of histories.
type Aligned struct {
	Fast   []domain.Bar
	Slow   []domain.Bar
	Report Report
}

// Align deduplicates (keeping the last occurrence), sorts, drops fast bars
// that open after the last slow bar, validates OHLC and reports gaps.
func Align(fast, slow []domain.Bar, fastTF, slowTF domain.Timeframe) (*Aligned, error) {
	if len(fast) == 0 || len(slow) == 0 {
		return nil, ErrEmptySeries
	}

	var rep Report
	fast, rep.FastDuplicates = Dedupe(fast)
	slow, rep.SlowDuplicates = Dedupe(slow)

	if err := ValidateOHLC(fast); err != nil {
		return nil, fmt.Errorf("fast %s: %w", fastTF, err)
	}
	if err := ValidateOHLC(slow); err != nil {
		return nil, fmt.Errorf("slow %s: %w", slowTF, err)
	}

	lastSlow := slow[len(slow)-1].TimestampMs
	cut := sort.Search(len(fast), func(i int) bool { return fast[i].TimestampMs > lastSlow })
	rep.FastTruncated = len(fast) - cut
	fast = fast[:cut]
	if len(fast) == 0 {
		return nil, fmt.Errorf("%w: no fast bars at or before last slow bar", ErrEmptySeries)
	}

	if fms, sms := fastTF.DurationMs(), slowTF.DurationMs(); fms > 0 && sms > 0 {
		rep.ExpectedFast = len(slow) * int(sms/fms)
		rep.Sparse = float64(len(fast)) < float64(rep.ExpectedFast)*0.8
		rep.FastGaps = CheckGaps(fast, fms)
		rep.SlowGaps = CheckGaps(slow, sms)
	}

	return &Aligned{Fast: fast, Slow: slow, Report: rep}, nil
}

// Dedupe sorts a copy of bars by timestamp, keeping the last bar seen for
// each timestamp. It returns the removed count.
func Dedupe(bars []domain.Bar) ([]domain.Bar, int) {
	byTS := make(map[int64]int, len(bars))
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if i, ok := byTS[b.TimestampMs]; ok {
			out[i] = b
			continue
		}
		byTS[b.TimestampMs] = len(out)
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimestampMs < out[j].TimestampMs })
	return out, len(bars) - len(out)
}

// CheckGaps returns every step larger than 1.5x the interval. Bars must be sorted.
func CheckGaps(bars []domain.Bar, intervalMs int64) []Gap {
	if intervalMs <= 0 {
		return nil
	}
	var gaps []Gap
	limit := intervalMs + intervalMs/2
	for i := 1; i < len(bars); i++ {
		diff := bars[i].TimestampMs - bars[i-1].TimestampMs
		if diff > limit {
			gaps = append(gaps, Gap{
				FromMs:  bars[i-1].TimestampMs,
				ToMs:    bars[i].TimestampMs,
				Missing: int(diff/intervalMs) - 1,
			})
		}
	}
	return gaps
}

// ValidateOHLC checks every bar and joins the violations.
func ValidateOHLC(bars []domain.Bar) error {
	var errs []error
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d bad bars: %w", ErrInvalidOHLC, len(errs), errors.Join(errs...))
}

// Resample aggregates sorted bars into buckets aligned to the epoch:
// first open, max high, min low, last close, summed volume.
func Resample(bars []domain.Bar, tf domain.Timeframe) []domain.Bar {
	ms := tf.DurationMs()
	if ms <= 0 || len(bars) == 0 {
		return nil
	}
	var out []domain.Bar
	for _, b := range bars {
		bucket := b.TimestampMs / ms * ms
		if n := len(out); n > 0 && out[n-1].TimestampMs == bucket {
			agg := &out[n-1]
			agg.High = decimal.Max(agg.High, b.High)
			agg.Low = decimal.Min(agg.Low, b.Low)
			agg.Close = b.Close
			agg.Volume = agg.Volume.Add(b.Volume)
			continue
		}
		nb := b
		nb.TimestampMs = bucket
		out = append(out, nb)
	}
	return out
}

// FilterRange returns bars with timestamps in [startMs, endMs].
func FilterRange(bars []domain.Bar, startMs, endMs int64) []domain.Bar {
	lo := sort.Search(len(bars), func(i int) bool { return bars[i].TimestampMs >= startMs })
	hi := sort.Search(len(bars), func(i int) bool { return bars[i].TimestampMs > endMs })
	if lo >= hi {
		return nil
	}
	return bars[lo:hi]
}
