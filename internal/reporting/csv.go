package reporting

import (
	"fmt"
	"strings"

	"market-metrics-lab/internal/domain"
)

// RenderCSV renders the per-series statistics as a CSV string.
func RenderCSV(summary *RunSummary) string {
	var sb strings.Builder

	sb.WriteString("product_type,symbol,frequency_seconds,metric,count,sentinels,")
	sb.WriteString("min,max,mean,stddev,median,p10,p90\n")

	for _, row := range summary.Rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%s,%d,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f\n",
			row.Sym.ProductType,
			row.Sym.Symbol,
			row.Sym.Frequency,
			row.Metric,
			row.Count,
			row.Sentinels,
			row.Min,
			row.Max,
			row.Mean,
			row.Stddev,
			row.Median,
			row.P10,
			row.P90,
		))
	}

	return sb.String()
}

// RenderPointsCSV renders raw metric points as a CSV string. Sentinel
// values render as empty cells, mirroring the bar file convention.
func RenderPointsCSV(points []*domain.MetricPoint) string {
	var sb strings.Builder

	sb.WriteString("product_type,symbol,frequency_seconds,metric,timestamp_ms,value\n")

	for _, p := range points {
		value := ""
		if domain.HasValue(p.Value) {
			value = fmt.Sprintf("%.10g", p.Value)
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%s,%d,%s\n",
			p.Sym.ProductType,
			p.Sym.Symbol,
			p.Sym.Frequency,
			p.Metric,
			p.TimestampMs,
			value,
		))
	}

	return sb.String()
}
