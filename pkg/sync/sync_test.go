package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tickwire/netcode/pkg/tick"
)

func TestAcceptPongUpdatesRTTAndJitter(t *testing.T) {
	m := NewManager(DefaultConfig(), 50*time.Millisecond)
	base := time.Now()

	for _, rtt := range []time.Duration{40 * time.Millisecond, 60 * time.Millisecond, 50 * time.Millisecond} {
		send := base
		recv := base.Add(rtt / 2)
		sent := recv
		pongRecv := send.Add(rtt)
		m.AcceptPong(Pong{PingSendTime: send, PingReceived: recv, PongSent: sent, PongReceived: pongRecv})
	}

	require.InDelta(t, 50*time.Millisecond, m.RTT(), float64(2*time.Millisecond))
	require.Greater(t, m.Jitter(), time.Duration(0))
}

func TestOldSamplesPrunedFromWindow(t *testing.T) {
	m := NewManager(DefaultConfig(), 50*time.Millisecond)
	base := time.Now()

	m.AcceptPong(Pong{PingSendTime: base, PingReceived: base, PongSent: base, PongReceived: base.Add(10 * time.Millisecond)})
	require.Len(t, m.samples, 1)

	later := base.Add(3 * time.Second)
	m.AcceptPong(Pong{PingSendTime: later, PingReceived: later, PongSent: later, PongReceived: later.Add(10 * time.Millisecond)})
	require.Len(t, m.samples, 1) // the 3s-old sample fell outside the 2s window
}

func TestAdjustSlowsDownWhenTooFarAhead(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ErrorMargin = time.Microsecond
	m := NewManager(cfg, 20*time.Millisecond)

	now := time.Now()
	predictedServerReceive := now.Add(-100 * time.Millisecond) // client way ahead
	speed := m.Adjust(now, predictedServerReceive, nil)

	require.Less(t, speed, 1.0)
}

func TestAdjustSpeedsUpWhenBehind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ErrorMargin = time.Microsecond
	m := NewManager(cfg, 20*time.Millisecond)

	now := time.Now()
	predictedServerReceive := now.Add(100 * time.Millisecond) // client behind target
	speed := m.Adjust(now, predictedServerReceive, nil)

	require.Greater(t, speed, 1.0)
}

func TestHandshakeSnapsAfterEnoughPongs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HandshakePings = 2
	m := NewManager(cfg, 20*time.Millisecond)
	tm := tick.NewManager(20 * time.Millisecond)

	now := time.Now()
	m.AcceptPong(Pong{PingSendTime: now, PingReceived: now, PongSent: now, PongReceived: now.Add(10 * time.Millisecond)})
	require.False(t, m.Synced())

	m.AcceptPong(Pong{PingSendTime: now, PingReceived: now, PongSent: now, PongReceived: now.Add(10 * time.Millisecond)})
	m.Adjust(now, now.Add(10*time.Millisecond), tm)
	require.True(t, m.Synced())
}
