package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder exposes helpers for recording Prometheus metrics about deduper runs.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	runs           *prometheus.CounterVec
	fetches        *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	duplicates     *prometheus.GaugeVec
	nearDuplicates *prometheus.GaugeVec
	steps          *prometheus.CounterVec
}

// NewRecorder constructs a Recorder and registers the metrics with the provided registerer.
// If reg is nil the default Prometheus registerer is used.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pandeduper_runs_total",
			Help: "Total number of deduper runs by final status.",
		}, []string{"status"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pandeduper_fetches_total",
			Help: "Object fetches against the source, by kind and result.",
		}, []string{"kind", "result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pandeduper_fetch_seconds",
			Help:    "Duration of single object fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		duplicates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pandeduper_duplicates_gauge",
			Help: "Duplicate object names found in the last run, by kind.",
		}, []string{"kind"}),
		nearDuplicates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pandeduper_near_duplicates_gauge",
			Help: "Same-name objects with differing payloads found in the last deep run.",
		}, []string{"kind"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pandeduper_steps_total",
			Help: "Consolidation steps executed, by operation, kind and result.",
		}, []string{"op", "kind", "result"}),
	}
	r.runs = register(reg, r.runs)
	r.fetches = register(reg, r.fetches)
	r.fetchDuration = register(reg, r.fetchDuration)
	r.duplicates = register(reg, r.duplicates)
	r.nearDuplicates = register(reg, r.nearDuplicates)
	r.steps = register(reg, r.steps)
	return r
}

// ObserveRun counts a finished run.
func (r *Recorder) ObserveRun(status string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(status).Inc()
}

// ObserveFetch records a single fetch and its duration.
func (r *Recorder) ObserveFetch(kind string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(kind, result(err == nil)).Inc()
	r.fetchDuration.Observe(duration.Seconds())
}

// SetFindings publishes duplicate and near-duplicate counts for a kind.
func (r *Recorder) SetFindings(kind string, duplicates, near int) {
	if r == nil {
		return
	}
	r.duplicates.WithLabelValues(kind).Set(float64(duplicates))
	r.nearDuplicates.WithLabelValues(kind).Set(float64(near))
}

// ObserveStep counts an executed create or delete.
func (r *Recorder) ObserveStep(op, kind string, ok bool) {
	if r == nil {
		return
	}
	r.steps.WithLabelValues(op, kind, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
