// internal/metrics/types.go
package metrics

import "time"

// RunMetrics is the top-level document for a single run name's aggregated data.
type RunMetrics struct {
	RunName            string                 `json:"run_name"`
	LastUpdatedUTC     time.Time              `json:"last_updated_utc"`
	LastExitCode       int                    `json:"last_exit_code"`
	LastArgs           []string               `json:"last_args"`
	OverallStats       RunningAggregatedStats `json:"overall_stats"`
	PerformanceBuckets []PerformanceBucket    `json:"performance_buckets"`
}

// PerformanceBucket holds aggregated stats for a specific dimension, like the backbone.
type PerformanceBucket struct {
	Dimension string                 `json:"dimension"`
	Bucket    string                 `json:"bucket"`
	Stats     RunningAggregatedStats `json:"stats"`
}

// RunningAggregatedStats stores the running statistical values for a set of runs.
// It uses Welford's online algorithm for calculating mean and standard deviation.
type RunningAggregatedStats struct {
	TotalRuns int64 `json:"total_runs"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`

	DurationSeconds RunningStat `json:"duration_seconds"`
	BatchSize       RunningStat `json:"batch_size"`
}

// RunningStat holds the necessary values for online calculation of mean, variance, and stddev.
type RunningStat struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"` // Sum of squares of differences from the current mean
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}
