package reporting

import (
	"fmt"
	"strings"

	"scalping-backtest-lab/internal/domain"
)

// RenderTradesCSV renders closed trades, one row per trade.
func RenderTradesCSV(trades []domain.TradeLog) string {
	var sb strings.Builder

	sb.WriteString("trade_id,symbol,side,entry_time_ms,entry_price,entry_quantity,stop_loss,take_profit,")
	sb.WriteString("exit_time_ms,exit_price,exit_quantity,exit_reason,pnl,pnl_pct,duration_ms,")
	sb.WriteString("signal_strength,regime,winning,legs\n")

	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%d,%s,%s,%s,%s,%d,%s,%s,%s,%s,%s,%d,%.4f,%s,%t,%d\n",
			t.TradeID,
			t.Symbol,
			t.Side,
			t.EntryTimeMs,
			t.EntryPrice,
			t.EntryQuantity,
			t.StopLoss,
			t.TakeProfit,
			t.ExitTimeMs,
			t.ExitPrice,
			t.ExitQuantity,
			t.ExitReason, // fixed labels, none contains a comma
			t.PnL,
			t.PnLPct.StringFixed(4),
			t.DurationMs,
			t.SignalStrength,
			t.Regime,
			t.Winning,
			len(t.Legs),
		))
	}

	return sb.String()
}

// RenderEquityCSV renders the equity curve.
func RenderEquityCSV(curve []domain.EquitySample) string {
	var sb strings.Builder

	sb.WriteString("timestamp_ms,equity,capital,peak_equity,drawdown,regime\n")
	for _, s := range curve {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%s,%s\n",
			s.TimestampMs,
			s.Equity.StringFixed(8),
			s.Capital.StringFixed(8),
			s.PeakEquity.StringFixed(8),
			s.Drawdown.StringFixed(6),
			s.Regime,
		))
	}

	return sb.String()
}

// RenderSummaryCSV renders one row per run of the report.
func RenderSummaryCSV(r *Report) string {
	var sb strings.Builder

	sb.WriteString("run_id,symbol,total_trades,winning_trades,losing_trades,win_rate,total_pnl,profit_factor,")
	sb.WriteString("initial_capital,final_capital,total_return_pct,sharpe_ratio,max_drawdown,stopped_by_drawdown,grade\n")

	for _, run := range r.Runs {
		m := run.Result
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%d,%.6f,%s,%.6f,%s,%s,%.6f,%.6f,%.6f,%t,%s\n",
			m.RunID,
			m.Symbol,
			m.TotalTrades,
			m.WinningTrades,
			m.LosingTrades,
			m.WinRate,
			m.TotalPnL,
			m.ProfitFactor,
			m.InitialCapital,
			m.FinalCapital,
			m.TotalReturnPct,
			m.SharpeRatio,
			m.MaxDrawdown,
			m.StoppedByDrawdown,
			run.Evaluation.Grade,
		))
	}

	return sb.String()
}
