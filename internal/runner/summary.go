package runner

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Summary aggregates the durations and failures of a run
type Summary struct {
	Scripts int           `json:"scripts"`
	Failed  int           `json:"failed"`
	Total   time.Duration `json:"total_ns"`
	Mean    time.Duration `json:"mean_ns"`
	StdDev  time.Duration `json:"stddev_ns"`
	P50     time.Duration `json:"p50_ns"`
	P95     time.Duration `json:"p95_ns"`
	Max     time.Duration `json:"max_ns"`
}

// Summarize computes duration statistics over results. Nil results are
// skipped.
func Summarize(results []*Result) Summary {
	var (
		s         Summary
		durations []float64
	)
	for _, r := range results {
		if r == nil {
			continue
		}
		s.Scripts++
		if r.Error != "" {
			s.Failed++
		}
		s.Total += r.Duration
		durations = append(durations, float64(r.Duration))
	}
	if len(durations) == 0 {
		return s
	}

	sort.Float64s(durations)
	s.Mean = time.Duration(stat.Mean(durations, nil))
	if len(durations) > 1 {
		s.StdDev = time.Duration(stat.StdDev(durations, nil))
	}
	s.P50 = time.Duration(stat.Quantile(0.5, stat.Empirical, durations, nil))
	s.P95 = time.Duration(stat.Quantile(0.95, stat.Empirical, durations, nil))
	s.Max = time.Duration(durations[len(durations)-1])
	return s
}
