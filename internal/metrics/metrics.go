// Package metrics wires together the prometheus collectors this server
// exposes: rollback counters/histograms (owned by pkg/prediction and
// registered here), replay-window rejection counters, and bandwidth
// gauges surfaced by the priority scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tickwire/netcode/pkg/prediction"
)

// Registry bundles every collector this module exposes plus a handle on
// the underlying prometheus.Registerer so callers can serve /metrics.
type Registry struct {
	Registerer prometheus.Registerer
	Rollback   *prediction.Metrics

	replayRejected   prometheus.Counter
	bandwidthUsed    prometheus.Gauge
	bandwidthHeld    prometheus.Gauge
	connectedPeers   prometheus.Gauge
	sessionsTimedOut prometheus.Counter
}

// New builds and registers every collector against reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests) or
// prometheus.DefaultRegisterer for the global one.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Registerer: reg,
		Rollback:   prediction.NewMetrics(reg),
		replayRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcode",
			Subsystem: "session",
			Name:      "replay_rejected_total",
			Help:      "Total packets rejected by the per-session replay window.",
		}),
		bandwidthUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netcode",
			Subsystem: "priority",
			Name:      "bandwidth_used_bytes",
			Help:      "Bytes admitted by the priority scheduler in the most recent send.",
		}),
		bandwidthHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netcode",
			Subsystem: "priority",
			Name:      "bandwidth_held_candidates",
			Help:      "Candidates held back by the priority scheduler in the most recent send.",
		}),
		connectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netcode",
			Subsystem: "session",
			Name:      "connected_peers",
			Help:      "Currently connected client sessions.",
		}),
		sessionsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netcode",
			Subsystem: "session",
			Name:      "timeouts_total",
			Help:      "Total sessions disconnected for exceeding client_timeout.",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.replayRejected, r.bandwidthUsed, r.bandwidthHeld, r.connectedPeers, r.sessionsTimedOut)
	}
	return r
}

// ReplayRejected increments the replay-window rejection counter.
func (r *Registry) ReplayRejected() { r.replayRejected.Inc() }

// SessionTimedOut increments the session-timeout counter.
func (r *Registry) SessionTimedOut() { r.sessionsTimedOut.Inc() }

// ObserveBandwidth records the most recent priority-scheduler send outcome.
func (r *Registry) ObserveBandwidth(usedBytes int, heldCandidates int) {
	r.bandwidthUsed.Set(float64(usedBytes))
	r.bandwidthHeld.Set(float64(heldCandidates))
}

// SetConnectedPeers reports the current connected-session count.
func (r *Registry) SetConnectedPeers(n int) {
	r.connectedPeers.Set(float64(n))
}
