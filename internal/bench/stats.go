package bench

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Stats summarizes per-iteration latencies in milliseconds.
type Stats struct {
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
	Mean   float64 `json:"mean_ms"`
	StdDev float64 `json:"stddev_ms"`
	P50    float64 `json:"p50_ms"`
	P90    float64 `json:"p90_ms"`
	P99    float64 `json:"p99_ms"`
}

// Summarize computes Stats over samples. An empty input yields NaN everywhere.
func Summarize(samples []float64) Stats {
	if len(samples) == 0 {
		nan := math.NaN()
		return Stats{Min: nan, Max: nan, Mean: nan, StdDev: nan, P50: nan, P90: nan, P99: nan}
	}

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	s := Stats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: stat.Mean(sorted, nil),
		P50:  stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P90:  stat.Quantile(0.90, stat.Empirical, sorted, nil),
		P99:  stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}
