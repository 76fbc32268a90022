package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Backtest Sweep Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Ranked by: `%s`\n\n", r.RankBy))

	// Summary
	s := r.Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Strategies | %d |\n", s.Strategies))
	sb.WriteString(fmt.Sprintf("| Profitable Strategies | %d |\n", s.Profitable))
	sb.WriteString(fmt.Sprintf("| Calls per Strategy | %d |\n", s.TotalCalls))
	sb.WriteString(fmt.Sprintf("| Simulated Trades | %d |\n", s.Simulated))
	sb.WriteString(fmt.Sprintf("| Filter Rejected | %d |\n", s.FilterRejected))
	sb.WriteString(fmt.Sprintf("| Entry Failed | %d |\n", s.EntryFailed))
	sb.WriteString(fmt.Sprintf("| Insufficient Data | %d |\n", s.Insufficient))
	sb.WriteString(fmt.Sprintf("| Invalid Input | %d |\n", s.Invalid))
	if s.Strategies > 0 {
		sb.WriteString(fmt.Sprintf("| Best Growth | %.4fx |\n", s.BestGrowth))
		sb.WriteString(fmt.Sprintf("| Worst Growth | %.4fx |\n", s.WorstGrowth))
	}
	sb.WriteString("\n")

	// Ranking
	sb.WriteString("## Ranking\n\n")
	if len(r.Results) == 0 {
		sb.WriteString("No strategy results available.\n\n")
		return sb.String()
	}

	sb.WriteString("| # | Strategy | Sim | WinRate | PF | Mean | Median | P10 | P90 | Sharpe | Growth | MaxDD | Score |\n")
	sb.WriteString("|---|----------|-----|---------|----|------|--------|-----|-----|--------|--------|-------|-------|\n")
	for i, m := range r.Results {
		sb.WriteString(fmt.Sprintf("| %d | %s | %d | %.4f | %s | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f |\n",
			i+1, m.StrategyName, m.Simulated, m.WinRate, formatProfitFactor(m.ProfitFactor),
			m.OutcomeMean, m.OutcomeMedian, m.OutcomeP10, m.OutcomeP90,
			m.Sharpe, m.CompoundGrowth, m.MaxDrawdown, m.RiskAdjustedScore))
	}
	sb.WriteString("\n")

	// Parameters of the leaders, so a row can be reproduced
	sb.WriteString("## Parameters\n\n")
	for i, m := range r.Results {
		sb.WriteString(fmt.Sprintf("%d. `%s` (%s)\n\n   ```json\n   %s\n   ```\n\n", i+1, m.StrategyName, m.StrategyID, m.ParamsJSON))
	}

	return sb.String()
}
