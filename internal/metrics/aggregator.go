// internal/metrics/aggregator.go
// Package metrics keeps running statistics about launched runs in a JSON file
// so repeated runs of the same preset can be compared over time.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/mwiater/detrun/internal/launcher"
	"github.com/mwiater/detrun/internal/logging"
	"github.com/mwiater/detrun/internal/runconfig"
	"github.com/mwiater/detrun/internal/util"
)

// DefaultFilePath is where run statistics are kept when no path is configured.
const DefaultFilePath = "reports/data/run_metrics.json"

// Aggregator collects and persists statistics per run name.
type Aggregator struct {
	mutex    sync.Mutex
	metrics  map[string]*RunMetrics
	filePath string
	now      func() time.Time
}

// NewAggregator creates an Aggregator backed by filePath and loads any
// statistics already stored there.
func NewAggregator(filePath string) *Aggregator {
	if filePath == "" {
		filePath = DefaultFilePath
	}
	agg := &Aggregator{
		metrics:  make(map[string]*RunMetrics),
		filePath: filePath,
		now:      time.Now,
	}
	agg.load()
	return agg
}

// load reads metrics from the JSON file into memory. A missing or unreadable
// file starts an empty history.
func (a *Aggregator) load() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	data, err := os.ReadFile(a.filePath)
	if err != nil {
		return
	}

	var metricsSlice []*RunMetrics
	if err := json.Unmarshal(data, &metricsSlice); err != nil {
		logging.LogEvent("[METRICS] ignoring unreadable %s: %v", a.filePath, err)
		return
	}

	for _, m := range metricsSlice {
		a.metrics[m.RunName] = m
	}
}

// save writes the current metrics to the JSON file. Callers hold the mutex.
func (a *Aggregator) save() error {
	logging.LogEvent("[METRICS] Saving metrics to %s", a.filePath)

	data, err := json.MarshalIndent(a.sorted(), "", "  ")
	if err != nil {
		return err
	}
	return util.WriteFile(a.filePath, data)
}

func (a *Aggregator) sorted() []*RunMetrics {
	out := make([]*RunMetrics, 0, len(a.metrics))
	for _, m := range a.metrics {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunName < out[j].RunName })
	return out
}

// Record folds one finished run into the statistics for its name and saves
// the file.
func (a *Aggregator) Record(rc runconfig.RunConfig, res launcher.Result, runErr error) error {
	logging.LogEvent("[METRICS] Record called for run %s", res.Name)
	a.mutex.Lock()
	defer a.mutex.Unlock()

	runMetrics, exists := a.metrics[res.Name]
	if !exists {
		runMetrics = &RunMetrics{RunName: res.Name}
		a.metrics[res.Name] = runMetrics
	}

	runMetrics.LastUpdatedUTC = a.now().UTC()
	runMetrics.LastExitCode = res.ExitCode
	runMetrics.LastArgs = rc.Args()

	updateStats(&runMetrics.OverallStats, rc, res, runErr)

	bucket := getBucket(rc)
	found := false
	for i := range runMetrics.PerformanceBuckets {
		if runMetrics.PerformanceBuckets[i].Dimension == "backbone" && runMetrics.PerformanceBuckets[i].Bucket == bucket {
			updateStats(&runMetrics.PerformanceBuckets[i].Stats, rc, res, runErr)
			found = true
			break
		}
	}
	if !found {
		newBucket := PerformanceBucket{
			Dimension: "backbone",
			Bucket:    bucket,
		}
		updateStats(&newBucket.Stats, rc, res, runErr)
		runMetrics.PerformanceBuckets = append(runMetrics.PerformanceBuckets, newBucket)
	}

	return a.save()
}

// Snapshot returns a copy of the statistics sorted by run name.
func (a *Aggregator) Snapshot() []RunMetrics {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	out := make([]RunMetrics, 0, len(a.metrics))
	for _, m := range a.sorted() {
		c := *m
		c.LastArgs = append([]string(nil), m.LastArgs...)
		c.PerformanceBuckets = append([]PerformanceBucket(nil), m.PerformanceBuckets...)
		out = append(out, c)
	}
	return out
}

// updateStats updates the running statistics with one run.
func updateStats(stats *RunningAggregatedStats, rc runconfig.RunConfig, res launcher.Result, runErr error) {
	stats.TotalRuns++
	switch {
	case runErr == nil:
		stats.Succeeded++
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		stats.Cancelled++
	default:
		stats.Failed++
	}

	updateRunningStat(&stats.DurationSeconds, res.Duration.Seconds())
	if rc.BatchSize != nil {
		updateRunningStat(&stats.BatchSize, float64(*rc.BatchSize))
	}
}

// updateRunningStat updates a single running statistic using Welford's online algorithm.
func updateRunningStat(rs *RunningStat, value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min = value
		rs.Max = value
	} else {
		if value < rs.Min {
			rs.Min = value
		}
		if value > rs.Max {
			rs.Max = value
		}
	}

	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	delta2 := value - rs.Mean
	rs.M2 += delta * delta2
}

// StdDev is the sample standard deviation, 0 with fewer than two values.
func (rs RunningStat) StdDev() float64 {
	if rs.Count < 2 {
		return 0
	}
	return math.Sqrt(rs.M2 / float64(rs.Count-1))
}

// getBucket names the backbone bucket a run falls into.
func getBucket(rc runconfig.RunConfig) string {
	if rc.Backbone == nil || *rc.Backbone == "" {
		return "default"
	}
	if b, ok := runconfig.LookupBackbone(*rc.Backbone); ok {
		return b.ID
	}
	return *rc.Backbone
}
