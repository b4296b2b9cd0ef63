package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestReplayRejectedIncrements(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.ReplayRejected()
	r.ReplayRejected()
	require.Equal(t, 2.0, counterValue(t, r.replayRejected))
}

func TestObserveBandwidthSetsGauges(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.ObserveBandwidth(1200, 3)
	require.Equal(t, 1200.0, gaugeValue(t, r.bandwidthUsed))
	require.Equal(t, 3.0, gaugeValue(t, r.bandwidthHeld))
}

func TestSetConnectedPeersSetsGauge(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.SetConnectedPeers(7)
	require.Equal(t, 7.0, gaugeValue(t, r.connectedPeers))
}

func TestSessionTimedOutIncrements(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.SessionTimedOut()
	require.Equal(t, 1.0, counterValue(t, r.sessionsTimedOut))
}
