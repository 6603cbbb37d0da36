package metrics

import "scalping-backtest-lab/internal/domain"

// Grade labels the overall quality of a run.
type Grade string

// Grades from best to worst.
const (
	GradeExcellent  Grade = "EXCELLENT"
	GradeGood       Grade = "GOOD"
	GradeAcceptable Grade = "ACCEPTABLE"
	GradePoor       Grade = "POOR"
	GradeVeryPoor   Grade = "VERY_POOR"
)

// Thresholds is one quality band. MaxDrawdown is an upper bound; the rest are floors.
type Thresholds struct {
	WinRate      float64
	ProfitFactor float64
	SharpeRatio  float64
	MaxDrawdown  float64
	TotalReturn  float64 // fraction, not percent
}

// Quality bands used by Evaluate.
var (
	ExcellentBand  = Thresholds{WinRate: 0.55, ProfitFactor: 2.0, SharpeRatio: 1.5, MaxDrawdown: 0.10, TotalReturn: 0.05}
	GoodBand       = Thresholds{WinRate: 0.50, ProfitFactor: 1.5, SharpeRatio: 1.0, MaxDrawdown: 0.15, TotalReturn: 0.02}
	AcceptableBand = Thresholds{WinRate: 0.45, ProfitFactor: 1.2, SharpeRatio: 0.7, MaxDrawdown: 0.20, TotalReturn: 0.00}
)

// MaxScore is the best achievable Evaluation score.
const MaxScore = 5.0

// Evaluation scores a run on five metrics: 1 point for the excellent band,
// 0.75 for good, 0.5 for acceptable, 0 otherwise.
type Evaluation struct {
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"max_score"`
	Percentage float64 `json:"percentage"`
	Grade      Grade   `json:"grade"`
}

// Evaluate grades a result.
func Evaluate(r domain.Result) Evaluation {
	ret := r.TotalReturnPct / 100
	score := tier(r.WinRate, ExcellentBand.WinRate, GoodBand.WinRate, AcceptableBand.WinRate) +
		tier(r.ProfitFactor, ExcellentBand.ProfitFactor, GoodBand.ProfitFactor, AcceptableBand.ProfitFactor) +
		tier(r.SharpeRatio, ExcellentBand.SharpeRatio, GoodBand.SharpeRatio, AcceptableBand.SharpeRatio) +
		tier(-r.MaxDrawdown, -ExcellentBand.MaxDrawdown, -GoodBand.MaxDrawdown, -AcceptableBand.MaxDrawdown) +
		tier(ret, ExcellentBand.TotalReturn, GoodBand.TotalReturn, AcceptableBand.TotalReturn)

	var g Grade
	switch {
	case score >= 4.5:
		g = GradeExcellent
	case score >= 3.5:
		g = GradeGood
	case score >= 2.5:
		g = GradeAcceptable
	case score >= 1.5:
		g = GradePoor
	default:
		g = GradeVeryPoor
	}
	return Evaluation{
		Score:      score,
		MaxScore:   MaxScore,
		Percentage: score / MaxScore * 100,
		Grade:      g,
	}
}

func tier(v, excellent, good, acceptable float64) float64 {
	switch {
	case v >= excellent:
		return 1
	case v >= good:
		return 0.75
	case v >= acceptable:
		return 0.5
	default:
		return 0
	}
}
