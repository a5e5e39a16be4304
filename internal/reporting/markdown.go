package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the run summary as a Markdown string.
func RenderMarkdown(summary *RunSummary) string {
	var sb strings.Builder

	sb.WriteString("# Run Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", summary.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Range: %d .. %d ms | Frequency: %ds | Ticks: %d\n\n",
		summary.StartMs, summary.EndMs, summary.Frequency, summary.TicksProcessed))

	sb.WriteString("## Series Statistics\n\n")
	if len(summary.Rows) > 0 {
		sb.WriteString("| Symbol | Metric | Count | Sentinels | Min | Max | Mean | Stddev | Median | P10 | P90 |\n")
		sb.WriteString("|--------|--------|-------|-----------|-----|-----|------|--------|--------|-----|-----|\n")
		for _, row := range summary.Rows {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f |\n",
				row.Sym, row.Metric,
				row.Count, row.Sentinels,
				row.Min, row.Max, row.Mean, row.Stddev, row.Median, row.P10, row.P90))
		}
	} else {
		sb.WriteString("No series statistics available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
