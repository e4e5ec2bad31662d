package metrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mwiater/detrun/internal/launcher"
	"github.com/mwiater/detrun/internal/runconfig"
)

func TestUpdateRunningStat(t *testing.T) {
	var rs RunningStat
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		updateRunningStat(&rs, v)
	}
	if rs.Count != 8 || rs.Min != 2 || rs.Max != 9 {
		t.Fatalf("unexpected stat %+v", rs)
	}
	if math.Abs(rs.Mean-5) > 1e-9 {
		t.Fatalf("mean = %v, want 5", rs.Mean)
	}
	if want := math.Sqrt(32.0 / 7.0); math.Abs(rs.StdDev()-want) > 1e-9 {
		t.Fatalf("stddev = %v, want %v", rs.StdDev(), want)
	}
	if (RunningStat{Count: 1}).StdDev() != 0 {
		t.Fatalf("expected zero stddev for a single value")
	}
}

func TestGetBucket(t *testing.T) {
	tests := []struct {
		backbone *string
		want     string
	}{
		{nil, "default"},
		{runconfig.String("dinov2-base"), "facebook/dinov2-base"},
		{runconfig.String("./ckpt/my-dinov2"), "./ckpt/my-dinov2"},
	}
	for _, tt := range tests {
		if got := getBucket(runconfig.RunConfig{Backbone: tt.backbone}); got != tt.want {
			t.Fatalf("getBucket(%v) = %q, want %q", tt.backbone, got, tt.want)
		}
	}
}

func TestRecordPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "run_metrics.json")
	agg := NewAggregator(path)
	agg.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	rc := runconfig.DefaultTrainConfig()
	ok := launcher.Result{Name: "train", ExitCode: 0, Duration: 10 * time.Second}
	failed := launcher.Result{Name: "train", ExitCode: 2, Duration: 30 * time.Second}
	cancelled := launcher.Result{Name: "train", ExitCode: -1, Duration: 5 * time.Second}

	if err := agg.Record(rc, ok, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := agg.Record(rc, failed, &launcher.ExitError{Name: "train", Code: 2}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := agg.Record(rc, cancelled, fmt.Errorf("run train cancelled: %w", context.Canceled)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	reloaded := NewAggregator(path).Snapshot()
	if len(reloaded) != 1 {
		t.Fatalf("expected one run, got %d", len(reloaded))
	}
	m := reloaded[0]
	s := m.OverallStats
	if s.TotalRuns != 3 || s.Succeeded != 1 || s.Failed != 1 || s.Cancelled != 1 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.DurationSeconds.Min != 5 || s.DurationSeconds.Max != 30 || math.Abs(s.DurationSeconds.Mean-15) > 1e-9 {
		t.Fatalf("unexpected duration stats %+v", s.DurationSeconds)
	}
	if m.LastExitCode != -1 || !m.LastUpdatedUTC.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected last fields %+v", m)
	}
	if len(m.PerformanceBuckets) != 1 || m.PerformanceBuckets[0].Bucket != "facebook/dinov2-base" {
		t.Fatalf("unexpected buckets %+v", m.PerformanceBuckets)
	}
	if m.PerformanceBuckets[0].Stats.BatchSize.Mean != 2 {
		t.Fatalf("expected batch size 2, got %+v", m.PerformanceBuckets[0].Stats.BatchSize)
	}
}

func TestLoadIgnoresBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_metrics.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	agg := NewAggregator(path)
	if got := agg.Snapshot(); len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", got)
	}
	if err := agg.Record(runconfig.RunConfig{}, launcher.Result{Name: "eval"}, errors.New("boom")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got := NewAggregator(path).Snapshot()
	if len(got) != 1 || got[0].OverallStats.Failed != 1 || got[0].PerformanceBuckets[0].Bucket != "default" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}
