package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels runs that produced a result set.
	OutcomeSuccess = "success"
	// OutcomeError labels runs aborted by input or stage failures.
	OutcomeError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetwatch",
			Name:      "runs_total",
			Help:      "Total number of analysis runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fleetwatch",
			Name:      "run_seconds",
			Help:      "Analysis run latency in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetwatch",
			Name:      "events_total",
			Help:      "Detected events, partitioned by event kind.",
		},
		[]string{"kind"},
	)

	measurementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fleetwatch",
			Name:      "measurements_total",
			Help:      "Normalized single-channel measurements evaluated.",
		},
	)

	stageFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetwatch",
			Name:      "stage_fallbacks_total",
			Help:      "Detector stages that fell back from streaming to in-memory evaluation.",
		},
		[]string{"stage"},
	)
)

// Register attaches fleetwatch collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		eventsTotal,
		measurementsTotal,
		stageFallbacksTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a run duration and outcome label.
func ObserveRun(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	runsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
}

// AddEvents counts n detected events of the given kind slug.
func AddEvents(kind string, n int) {
	if n <= 0 {
		return
	}
	eventsTotal.WithLabelValues(kind).Add(float64(n))
}

// AddMeasurements counts evaluated measurements.
func AddMeasurements(n int) {
	if n <= 0 {
		return
	}
	measurementsTotal.Add(float64(n))
}

// RecordFallback counts a streaming-to-memory fallback for stage.
func RecordFallback(stage string) {
	stageFallbacksTotal.WithLabelValues(stage).Inc()
}

// WriteTextfile gathers reg and writes it in the node-exporter textfile format.
func WriteTextfile(path string, reg prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, reg)
}
