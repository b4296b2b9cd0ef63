package prediction

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records rollback activity for operators: counters for
// rollbacks executed and rollbacks refused for overrunning the replay
// window, plus histograms of replay length and replay duration.
type Metrics struct {
	rollbacks   prometheus.Counter
	overruns    prometheus.Counter
	replayTicks prometheus.Histogram
	duration    prometheus.Histogram
}

// NewMetrics builds and, if reg is non-nil, registers the rollback
// collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcode",
			Subsystem: "prediction",
			Name:      "rollbacks_total",
			Help:      "Total number of rollback replays executed.",
		}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcode",
			Subsystem: "prediction",
			Name:      "rollback_overruns_total",
			Help:      "Total number of rollbacks refused for exceeding max_rollback_ticks.",
		}),
		replayTicks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "netcode",
			Subsystem: "prediction",
			Name:      "rollback_replay_ticks",
			Help:      "Distribution of replayed tick counts per rollback.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "netcode",
			Subsystem: "prediction",
			Name:      "rollback_duration_seconds",
			Help:      "Wall-clock duration of rollback replays.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.rollbacks, m.overruns, m.replayTicks, m.duration)
	}
	return m
}

func (m *Metrics) recordRollback(d time.Duration, replaySteps int32) {
	m.rollbacks.Inc()
	m.replayTicks.Observe(float64(replaySteps))
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) recordOverrun() {
	m.overruns.Inc()
}
