package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderObserveFetch(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)
	rec.ObserveFetch("address", 20*time.Millisecond, nil)
	rec.ObserveFetch("address", 30*time.Millisecond, nil)
	rec.ObserveFetch("service", 10*time.Millisecond, errors.New("timeout"))

	if got := testutil.ToFloat64(rec.fetches.WithLabelValues("address", "success")); got != 2 {
		t.Fatalf("expected 2 successful address fetches, got %f", got)
	}
	if got := testutil.ToFloat64(rec.fetches.WithLabelValues("service", "failure")); got != 1 {
		t.Fatalf("expected 1 failed service fetch, got %f", got)
	}
	if count := testutil.CollectAndCount(rec.fetchDuration); count != 1 {
		t.Fatalf("expected histogram to be collected, got %d", count)
	}
}

func TestRecorderFindingsAndSteps(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)
	rec.SetFindings("address-group", 7, 2)
	rec.ObserveStep("create", "address", true)
	rec.ObserveStep("delete", "address", false)
	rec.ObserveRun("completed")

	if got := testutil.ToFloat64(rec.duplicates.WithLabelValues("address-group")); got != 7 {
		t.Fatalf("expected duplicates gauge 7, got %f", got)
	}
	if got := testutil.ToFloat64(rec.nearDuplicates.WithLabelValues("address-group")); got != 2 {
		t.Fatalf("expected near duplicates gauge 2, got %f", got)
	}
	if got := testutil.ToFloat64(rec.steps.WithLabelValues("delete", "address", "failure")); got != 1 {
		t.Fatalf("expected 1 failed delete, got %f", got)
	}
	if got := testutil.ToFloat64(rec.runs.WithLabelValues("completed")); got != 1 {
		t.Fatalf("expected 1 completed run, got %f", got)
	}
}

func TestRecorderReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewRecorder(reg)
	second := NewRecorder(reg)
	second.ObserveRun("failed")
	if got := testutil.ToFloat64(first.runs.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected shared collector, got %f", got)
	}
}

func TestNilRecorder(t *testing.T) {
	var rec *Recorder
	rec.ObserveRun("completed")
	rec.ObserveFetch("address", time.Second, nil)
	rec.SetFindings("address", 1, 0)
	rec.ObserveStep("create", "address", true)
}
