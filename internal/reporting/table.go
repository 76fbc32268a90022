package reporting

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/metrics"
)

// RenderTable writes results as a ranked console table, in the given order.
func RenderTable(w io.Writer, results []*domain.StrategyResult) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Strategy", "Calls", "Sim", "Win%", "PF", "Mean", "Median", "Sharpe", "Growth", "MaxDD", "Score")

	for i, r := range results {
		err := table.Append(
			fmt.Sprintf("%d", i+1),
			r.StrategyName,
			fmt.Sprintf("%d", r.TotalCalls),
			fmt.Sprintf("%d", r.Simulated),
			fmt.Sprintf("%.1f", r.WinRate*100),
			formatProfitFactor(r.ProfitFactor),
			fmt.Sprintf("%+.4f", r.OutcomeMean),
			fmt.Sprintf("%+.4f", r.OutcomeMedian),
			fmt.Sprintf("%.3f", r.Sharpe),
			fmt.Sprintf("%.4fx", r.CompoundGrowth),
			fmt.Sprintf("%.2f%%", r.MaxDrawdown*100),
			fmt.Sprintf("%.4f", r.RiskAdjustedScore),
		)
		if err != nil {
			return fmt.Errorf("append row %d: %w", i+1, err)
		}
	}

	return table.Render()
}

func formatProfitFactor(pf float64) string {
	if pf >= metrics.ProfitFactorNoLosses {
		return "INF"
	}
	return fmt.Sprintf("%.2f", pf)
}
