package reporting

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"scalping-backtest-lab/internal/domain"
	"scalping-backtest-lab/internal/metrics"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	p := message.NewPrinter(language.English)
	var sb strings.Builder

	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	t := r.Totals()
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Symbol | Trades | Win Rate | Total PnL | Return % | Max DD | Sharpe | Grade |\n")
	sb.WriteString("|--------|--------|----------|-----------|----------|--------|--------|-------|\n")
	for _, run := range r.Runs {
		m := run.Result
		sb.WriteString(p.Sprintf("| %s | %d | %.2f%% | %.2f | %.2f | %.2f%% | %.2f | %s |\n",
			m.Symbol, m.TotalTrades, m.WinRate*100, m.TotalPnL.InexactFloat64(),
			m.TotalReturnPct, m.MaxDrawdown*100, m.SharpeRatio, run.Evaluation.Grade))
	}
	sb.WriteString(p.Sprintf("\nRuns: %d | Trades: %d | Winning: %d | Combined PnL: %.2f\n\n",
		t.Runs, t.TotalTrades, t.WinningTrades, t.TotalPnL))

	if len(r.Failures) > 0 {
		sb.WriteString("## Failed Runs\n\n")
		for _, f := range r.Failures {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", f.Symbol, f.Error))
		}
		sb.WriteString("\n")
	}

	for _, run := range r.Runs {
		writeRun(&sb, p, run)
	}

	return sb.String()
}

func writeRun(sb *strings.Builder, p *message.Printer, run RunReport) {
	m := run.Result
	sb.WriteString(fmt.Sprintf("## %s\n\n", m.Symbol))
	sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", m.RunID))
	if s := run.Summary; s != nil {
		sb.WriteString(fmt.Sprintf("Timeframes: %s / %s | Bars: %d .. %d\n\n",
			s.FastTimeframe, s.SlowTimeframe, s.FirstBarMs, s.LastBarMs))
	}
	if m.StoppedByDrawdown {
		sb.WriteString("**Stopped by the drawdown kill switch.**\n\n")
	}

	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Bars Processed | %d |\n", m.BarsProcessed))
	sb.WriteString(fmt.Sprintf("| Trades | %d (%d won / %d lost) |\n", m.TotalTrades, m.WinningTrades, m.LosingTrades))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.2f%% |\n", m.WinRate*100))
	sb.WriteString(p.Sprintf("| Initial Capital | %.2f |\n", m.InitialCapital.InexactFloat64()))
	sb.WriteString(p.Sprintf("| Final Capital | %.2f |\n", m.FinalCapital.InexactFloat64()))
	sb.WriteString(p.Sprintf("| Total PnL | %.2f |\n", m.TotalPnL.InexactFloat64()))
	sb.WriteString(fmt.Sprintf("| Total Return | %.2f%% |\n", m.TotalReturnPct))
	sb.WriteString(fmt.Sprintf("| Avg Win / Avg Loss | %s / %s |\n", m.AvgWin.StringFixed(2), m.AvgLoss.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("| Profit Factor | %.2f |\n", m.ProfitFactor))
	sb.WriteString(fmt.Sprintf("| Sharpe Ratio | %.2f |\n", m.SharpeRatio))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %.2f%% |\n", m.MaxDrawdown*100))
	sb.WriteString(fmt.Sprintf("| Grade | %s (%.2f / %.0f) |\n", run.Evaluation.Grade, run.Evaluation.Score, run.Evaluation.MaxScore))
	sb.WriteString("\n")

	b := m.Breakdown
	sb.WriteString("### Breakdown\n\n")
	sb.WriteString("| Bucket | Trades | Win Rate | Avg PnL |\n")
	sb.WriteString("|--------|--------|----------|---------|\n")
	writeBucket(sb, "long", b.Long)
	writeBucket(sb, "short", b.Short)
	for _, tier := range metrics.StrengthTierNames() {
		if bucket, ok := b.ByStrength[tier]; ok {
			writeBucket(sb, "strength "+tier, bucket)
		}
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Largest win %s, largest loss %s, avg duration %s, max consecutive losses %d.\n\n",
		b.LargestWin.StringFixed(2), b.LargestLoss.StringFixed(2),
		time.Duration(b.AvgDurationMs)*time.Millisecond, b.MaxConsecutiveLosses))

	if len(m.Errors) > 0 {
		sb.WriteString("### Errors\n\n")
		for _, e := range m.Errors {
			sb.WriteString(fmt.Sprintf("- %d %s %s: %s\n", e.TimestampMs, e.Severity, e.Kind, e.Message))
		}
		sb.WriteString("\n")
	}

	if len(run.Discrepancies) > 0 {
		sb.WriteString("### Stored vs Recomputed\n\n")
		for _, d := range run.Discrepancies {
			sb.WriteString(fmt.Sprintf("- %s\n", d))
		}
		sb.WriteString("\n")
	}
}

func writeBucket(sb *strings.Builder, name string, b domain.Bucket) {
	sb.WriteString(fmt.Sprintf("| %s | %d | %.2f%% | %s |\n", name, b.Trades, b.WinRate*100, b.AvgPnL.StringFixed(2)))
}
