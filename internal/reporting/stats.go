package reporting

import (
	"math"
	"sort"

	"market-metrics-lab/internal/domain"
)

// SeriesStats summarizes one value series. Sentinels are counted and
// excluded from every statistic; with no non-sentinel samples every
// statistic is zero.
type SeriesStats struct {
	Count     int // non-sentinel samples
	Sentinels int

	Min    float64
	Max    float64
	Mean   float64
	Stddev float64 // sample stddev, n-1 denominator
	Median float64
	P10    float64
	P90    float64
}

// ComputeStats calculates the statistics of a value series.
func ComputeStats(values []float64) SeriesStats {
	clean := make([]float64, 0, len(values))
	sentinels := 0
	for _, v := range values {
		if domain.HasValue(v) {
			clean = append(clean, v)
		} else {
			sentinels++
		}
	}
	if len(clean) == 0 {
		return SeriesStats{Sentinels: sentinels}
	}

	sorted := make([]float64, len(clean))
	copy(sorted, clean)
	sort.Float64s(sorted)

	mean := computeMean(clean)
	return SeriesStats{
		Count:     len(clean),
		Sentinels: sentinels,
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Mean:      mean,
		Stddev:    computeStddev(clean, mean),
		Median:    computePercentile(sorted, 0.50),
		P10:       computePercentile(sorted, 0.10),
		P90:       computePercentile(sorted, 0.90),
	}
}

// computeMean calculates the arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC. p is the percentile (0.10 = 10th).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
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
