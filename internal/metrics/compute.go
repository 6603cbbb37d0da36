package metrics

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"scalping-backtest-lab/internal/domain"
)

// AnnualizationFactor is the number of periods per year used for Sharpe.
const AnnualizationFactor = 252

// Strength tiers of the breakdown. Buckets are cumulative.
var strengthTiers = []struct {
	name  string
	floor float64
}{
	{"very_strong", 0.8},
	{"strong", 0.6},
	{"medium", 0.4},
	{"all", 0.0},
}

// StrengthTierNames lists the breakdown tiers from strongest to weakest.
func StrengthTierNames() []string {
	names := make([]string, len(strengthTiers))
	for i, t := range strengthTiers {
		names[i] = t.name
	}
	return names
}

// Compute derives summary statistics from the closed-trade log and the
// per-bar equity series. Trades and samples are used in the given order.
// The returned Result carries the inputs but no run identity or errors.
func Compute(trades []domain.TradeLog, equity []domain.EquitySample, initialCapital decimal.Decimal) domain.Result {
	res := domain.Result{
		TotalTrades:    len(trades),
		InitialCapital: initialCapital,
		FinalCapital:   initialCapital,
		TotalPnL:       decimal.Zero,
		AvgWin:         decimal.Zero,
		AvgLoss:        decimal.Zero,
		Trades:         trades,
		EquityCurve:    equity,
	}

	sumWin, sumLoss := decimal.Zero, decimal.Zero
	for _, t := range trades {
		res.TotalPnL = res.TotalPnL.Add(t.PnL)
		if t.Winning {
			res.WinningTrades++
			sumWin = sumWin.Add(t.PnL)
		} else {
			sumLoss = sumLoss.Add(t.PnL)
		}
	}
	res.LosingTrades = res.TotalTrades - res.WinningTrades
	res.WinRate = computeWinRate(res.WinningTrades, res.TotalTrades)

	if res.WinningTrades > 0 {
		res.AvgWin = sumWin.Div(decimal.NewFromInt(int64(res.WinningTrades)))
	}
	if res.LosingTrades > 0 {
		res.AvgLoss = sumLoss.Div(decimal.NewFromInt(int64(res.LosingTrades)))
	}
	// |avg_win * wins / (avg_loss * losses)| reduces to gross win over gross loss.
	if res.LosingTrades > 0 && !sumLoss.IsZero() {
		res.ProfitFactor = sumWin.Div(sumLoss).Abs().InexactFloat64()
	}

	res.FinalCapital = initialCapital.Add(res.TotalPnL)
	if initialCapital.IsPositive() {
		res.TotalReturnPct = res.FinalCapital.Sub(initialCapital).
			Div(initialCapital).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	res.SharpeRatio = computeSharpe(equity)
	res.MaxDrawdown = computeMaxDrawdown(equity)
	res.Breakdown = computeBreakdown(trades)
	return res
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// computeSharpe annualizes mean/stddev of bar-over-bar equity returns.
// Returns 0 when fewer than two returns exist or the stddev is 0.
func computeSharpe(equity []domain.EquitySample) float64 {
	if len(equity) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev.IsZero() {
			continue
		}
		returns = append(returns, equity[i].Equity.Div(prev).Sub(decimal.NewFromInt(1)).InexactFloat64())
	}
	mean := computeMean(returns)
	stddev := computeStddev(returns, mean)
	if stddev == 0 {
		return 0
	}
	return mean / stddev * math.Sqrt(AnnualizationFactor)
}

// computeMean calculates arithmetic mean.
func computeMean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(xs []float64, mean float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		diff := x - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computeMaxDrawdown returns the deepest recorded drawdown fraction.
func computeMaxDrawdown(equity []domain.EquitySample) float64 {
	maxDD := decimal.Zero
	for _, s := range equity {
		if s.Drawdown.GreaterThan(maxDD) {
			maxDD = s.Drawdown
		}
	}
	return maxDD.InexactFloat64()
}

// computeMaxConsecutiveLosses finds longest streak of pnl <= 0.
// Trades must be in chronological order.
func computeMaxConsecutiveLosses(trades []domain.TradeLog) int {
	maxStreak := 0
	currentStreak := 0

	for _, t := range trades {
		if !t.PnL.IsPositive() {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}

func computeBreakdown(trades []domain.TradeLog) domain.Breakdown {
	b := domain.Breakdown{
		ByStrength:  make(map[string]domain.Bucket),
		LargestWin:  decimal.Zero,
		LargestLoss: decimal.Zero,
	}
	if len(trades) == 0 {
		return b
	}

	var long, short []domain.TradeLog
	var durationSum int64
	for _, t := range trades {
		switch t.Side {
		case domain.SideBuy:
			long = append(long, t)
		case domain.SideSell:
			short = append(short, t)
		}
		if t.PnL.GreaterThan(b.LargestWin) {
			b.LargestWin = t.PnL
		}
		if t.PnL.LessThan(b.LargestLoss) {
			b.LargestLoss = t.PnL
		}
		durationSum += t.DurationMs
	}
	b.Long = bucket(long)
	b.Short = bucket(short)
	b.AvgDurationMs = durationSum / int64(len(trades))
	b.MaxConsecutiveLosses = computeMaxConsecutiveLosses(trades)

	pcts := make([]float64, len(trades))
	for i, t := range trades {
		pcts[i] = t.PnLPct.InexactFloat64()
	}
	b.PnLPctP10 = computePercentile(pcts, 0.10)
	b.PnLPctMedian = computePercentile(pcts, 0.50)
	b.PnLPctP90 = computePercentile(pcts, 0.90)

	for _, tier := range strengthTiers {
		var subset []domain.TradeLog
		for _, t := range trades {
			if t.SignalStrength >= tier.floor {
				subset = append(subset, t)
			}
		}
		if len(subset) > 0 {
			b.ByStrength[tier.name] = bucket(subset)
		}
	}
	return b
}

func bucket(trades []domain.TradeLog) domain.Bucket {
	if len(trades) == 0 {
		return domain.Bucket{AvgPnL: decimal.Zero}
	}
	wins := 0
	sum := decimal.Zero
	for _, t := range trades {
		if t.PnL.IsPositive() {
			wins++
		}
		sum = sum.Add(t.PnL)
	}
	return domain.Bucket{
		Trades:  len(trades),
		WinRate: computeWinRate(wins, len(trades)),
		AvgPnL:  sum.Div(decimal.NewFromInt(int64(len(trades)))),
	}
}

// computePercentile uses linear interpolation over a sorted copy of xs.
// p is percentile (0.10 = 10th percentile).
func computePercentile(xs []float64, p float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
