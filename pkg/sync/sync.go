// Package sync implements the NTP-style RTT/jitter estimator and the
// target-client-tick/speedup controller that keeps a client's simulation
// a jitter-derived margin ahead of the server. Grounded on a
// keep-alive-interval cadence model, generalized from a fixed keep-alive
// cadence to an adaptive ping/pong sync loop. The RTT/jitter math itself
// is plain stdlib math/time, documented in DESIGN.md as a justified
// stdlib concern.
package sync

import (
	"math"
	"time"

	"github.com/tickwire/netcode/pkg/tick"
)

// windowDuration bounds how long a sample stays in the rolling RTT/jitter
// window.
const windowDuration = 2 * time.Second

// Config tunes the controller's target lead and reaction thresholds.
type Config struct {
	JitterMultipleMargin float64       // multiplies one-way jitter into the minimum lead
	TickMargin           float64       // additional whole ticks folded into the minimum lead
	ErrorMargin          time.Duration // dead zone before speed correction kicks in
	SpeedupFactor        float64       // relative_speed multiplier/divisor when correcting
	HandshakePings       int           // accepted pongs required before snapping synced
}

// DefaultConfig mirrors commonly used lightweight-sync defaults: a small
// jitter multiple, one tick of margin, a millisecond dead zone.
func DefaultConfig() Config {
	return Config{
		JitterMultipleMargin: 2.0,
		TickMargin:           1.0,
		ErrorMargin:          time.Millisecond,
		SpeedupFactor:        1.01,
		HandshakePings:       10,
	}
}

type sample struct {
	at  time.Time
	rtt time.Duration
}

// Manager maintains the rolling RTT/jitter window and drives a tick
// manager's relative speed toward keeping the client a safe margin ahead
// of the server.
type Manager struct {
	cfg          Config
	tickDuration time.Duration

	samples       []sample
	acceptedPongs int
	synced        bool

	lastRTT    time.Duration
	lastJitter time.Duration
}

// NewManager builds a sync manager ticking against tickDuration.
func NewManager(cfg Config, tickDuration time.Duration) *Manager {
	return &Manager{cfg: cfg, tickDuration: tickDuration}
}

// Ping is what the client records before sending a ping.
type Ping struct {
	SendTime time.Time
}

// Pong is what the server stamps and the client receives back.
type Pong struct {
	PingSendTime    time.Time
	PingReceived    time.Time
	PongSent        time.Time
	PongReceived    time.Time // stamped by the client on arrival
}

// AcceptPong folds one NTP-style round trip into the rolling window. RTT is
// the full client-observed round trip minus the server's internal
// processing delay.
func (m *Manager) AcceptPong(p Pong) {
	serverDelay := p.PongSent.Sub(p.PingReceived)
	rtt := p.PongReceived.Sub(p.PingSendTime) - serverDelay
	if rtt < 0 {
		rtt = 0
	}

	m.samples = append(m.samples, sample{at: p.PongReceived, rtt: rtt})
	m.pruneWindow(p.PongReceived)
	m.recompute()

	m.acceptedPongs++
}

func (m *Manager) pruneWindow(now time.Time) {
	cut := now.Add(-windowDuration)
	i := 0
	for ; i < len(m.samples); i++ {
		if m.samples[i].at.After(cut) {
			break
		}
	}
	m.samples = m.samples[i:]
}

func (m *Manager) recompute() {
	n := len(m.samples)
	if n == 0 {
		m.lastRTT, m.lastJitter = 0, 0
		return
	}
	var sum time.Duration
	for _, s := range m.samples {
		sum += s.rtt
	}
	mean := sum / time.Duration(n)

	var variance float64
	for _, s := range m.samples {
		d := float64(s.rtt - mean)
		variance += d * d
	}
	variance /= float64(n)
	stddev := time.Duration(math.Sqrt(variance))

	m.lastRTT = mean
	m.lastJitter = stddev / 2 // one-way jitter
}

// RTT returns the current mean RTT estimate.
func (m *Manager) RTT() time.Duration { return m.lastRTT }

// Jitter returns the current one-way jitter estimate.
func (m *Manager) Jitter() time.Duration { return m.lastJitter }

// Synced reports whether the handshake snap has occurred.
func (m *Manager) Synced() bool { return m.synced }

// clientAheadMinimum is the minimum lead the client must maintain over the
// server's predicted receive time.
func (m *Manager) clientAheadMinimum() time.Duration {
	return time.Duration(m.cfg.JitterMultipleMargin*float64(m.lastJitter)) +
		time.Duration(m.cfg.TickMargin*float64(m.tickDuration))
}

// Adjust computes the relative speed the time manager should apply given
// now and the predicted moment the server will receive a packet sent now,
// and applies the handshake snap once enough pongs have accepted.
// predictedServerReceive is typically now + rtt/2.
func (m *Manager) Adjust(now time.Time, predictedServerReceive time.Time, tm *tick.Manager) float64 {
	clientAheadDelta := now.Sub(predictedServerReceive)
	clientAheadMinimum := m.clientAheadMinimum()
	errDelta := clientAheadDelta - clientAheadMinimum

	var speed float64
	switch {
	case errDelta > m.cfg.ErrorMargin:
		speed = 1.0 / m.cfg.SpeedupFactor
	case errDelta < -m.cfg.ErrorMargin:
		speed = m.cfg.SpeedupFactor
	default:
		speed = 1.0
	}

	if tm != nil {
		tm.SetRelativeSpeed(speed)
	}

	if !m.synced && m.acceptedPongs >= m.cfg.HandshakePings {
		m.snap(now, predictedServerReceive, tm)
	}

	return speed
}

// snap computes the ideal client TickInstant from the current lead target
// and directly sets the tick manager to it, then marks the connection
// synced.
func (m *Manager) snap(now time.Time, predictedServerReceive time.Time, tm *tick.Manager) {
	if tm == nil {
		m.synced = true
		return
	}
	idealLead := m.clientAheadMinimum()
	idealInstant := tick.FromDuration(now.Sub(predictedServerReceive)+idealLead, m.tickDuration)
	tm.SetTickAndOverstep(idealInstant)
	m.synced = true
}
