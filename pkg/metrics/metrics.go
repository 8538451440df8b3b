// Package metrics provides Prometheus metrics for live config sources and collections.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Collection metrics
	updatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveconfig_updates_total",
			Help: "Total number of config updates dispatched to listeners",
		},
		[]string{"collection", "type"},
	)

	parseFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveconfig_parse_failures_total",
			Help: "Total number of config files that failed to parse",
		},
		[]string{"collection"},
	)

	configsLoaded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liveconfig_configs",
			Help: "Number of configs currently live",
		},
		[]string{"collection"},
	)

	// Source metrics
	sourceEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveconfig_source_events_total",
			Help: "Total number of raw events emitted by config sources",
		},
		[]string{"source", "event"},
	)

	initialLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liveconfig_initial_load_duration_seconds",
			Help:    "Time taken by a config source to deliver its initial configs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)
)

// Recorder records metrics for one collection or source. A nil *Recorder records nothing.
type Recorder struct {
	name string
}

// NewRecorder creates a recorder labelled with name (collection or source name).
func NewRecorder(name string) *Recorder {
	return &Recorder{name: name}
}

// Name returns the label value used by the recorder.
func (r *Recorder) Name() string {
	if r == nil {
		return ""
	}
	return r.name
}

// RecordUpdate records a dispatched config update of the given type.
func (r *Recorder) RecordUpdate(updateType string) {
	if r == nil {
		return
	}
	updatesTotal.WithLabelValues(r.name, updateType).Inc()
}

// RecordParseFailure records a config file that failed to parse.
func (r *Recorder) RecordParseFailure() {
	if r == nil {
		return
	}
	parseFailuresTotal.WithLabelValues(r.name).Inc()
}

// SetConfigCount sets the number of live configs.
func (r *Recorder) SetConfigCount(count int) {
	if r == nil {
		return
	}
	configsLoaded.WithLabelValues(r.name).Set(float64(count))
}

// RecordSourceEvent records a raw create/modify/delete event from a source.
func (r *Recorder) RecordSourceEvent(event string) {
	if r == nil {
		return
	}
	sourceEventsTotal.WithLabelValues(r.name, event).Inc()
}

// RecordInitialLoad records how long a source took to deliver its initial configs.
func (r *Recorder) RecordInitialLoad(duration time.Duration) {
	if r == nil {
		return
	}
	initialLoadDuration.WithLabelValues(r.name).Observe(duration.Seconds())
}
