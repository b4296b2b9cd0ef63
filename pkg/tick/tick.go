// Package tick implements the fixed-rate tick counter, the quantized
// sub-tick overstep, and the wrapping wall-clock timestamp that the rest of
// this module builds on.
package tick

import "time"

// Tick is a monotonically wrapping 16-bit simulation step counter.
type Tick uint16

// Diff returns b - a interpreted modulo 2^16 with the signed-shortest-path
// rule: the result lies in [-2^15, 2^15).
func (a Tick) Diff(b Tick) int32 {
	return int32(int16(b - a))
}

// Add returns a advanced by delta ticks (delta may be negative).
func (a Tick) Add(delta int32) Tick {
	return Tick(int32(a) + delta)
}

// overstepQuantum is the granularity overstep is rounded to: one part in
// 256, i.e. a full byte of fractional precision (round-trip error < 0.4%).
const overstepQuantum = 1.0 / 256.0

// TickInstant is a tick plus a quantized fractional overstep toward the
// next tick. overstep is stored pre-quantized as a byte so the type
// round-trips exactly through the wire.
type TickInstant struct {
	Tick     Tick
	Overstep uint8
}

// NewTickInstant quantizes a float overstep in [0, 1) to overstepQuantum
// granularity.
func NewTickInstant(t Tick, overstep float64) TickInstant {
	if overstep < 0 {
		overstep = 0
	}
	if overstep >= 1 {
		overstep = 0.999999
	}
	return TickInstant{Tick: t, Overstep: uint8(overstep * 256.0)}
}

// OverstepFraction returns the overstep as a float64 in [0, 1).
func (ti TickInstant) OverstepFraction() float64 {
	return float64(ti.Overstep) * overstepQuantum
}

// FromDuration derives a TickInstant from an elapsed duration since epoch
// at a given tick duration. Satisfies law L1 within quantization error:
// FromDuration(AsDuration(x, d), d) == x.
func FromDuration(elapsed time.Duration, tickDuration time.Duration) TickInstant {
	if tickDuration <= 0 {
		return TickInstant{}
	}
	whole := elapsed / tickDuration
	rem := elapsed - whole*tickDuration
	frac := float64(rem) / float64(tickDuration)
	return NewTickInstant(Tick(uint16(whole)), frac)
}

// AsDuration returns the elapsed duration since epoch this instant
// represents, given a tick duration. Ticks are treated as unwrapped here
// (the caller is responsible for tracking wraps over long session spans).
func (ti TickInstant) AsDuration(tickDuration time.Duration) time.Duration {
	whole := time.Duration(ti.Tick) * tickDuration
	frac := time.Duration(ti.OverstepFraction() * float64(tickDuration))
	return whole + frac
}

// Sub computes the signed difference (ti - other) as a TickDelta. Both
// sides are reduced to a single signed count of overstep quanta (256 per
// tick) so the carry/borrow normalization only has to happen once.
func (ti TickInstant) Sub(other TickInstant) TickDelta {
	tickDiff := int64(other.Tick.Diff(ti.Tick))
	quanta := tickDiff*256 + int64(ti.Overstep) - int64(other.Overstep)

	neg := quanta < 0
	if neg {
		quanta = -quanta
	}

	return TickDelta{
		TickDiff: uint16(quanta / 256),
		Overstep: uint8(quanta % 256),
		Neg:      neg,
	}
}

// Add applies a TickDelta to this instant, returning a new TickInstant with
// overstep carries normalized into whole ticks.
func (ti TickInstant) Add(d TickDelta) TickInstant {
	sign := int32(1)
	if d.Neg {
		sign = -1
	}
	tickDiff := sign * int32(d.TickDiff)
	over := int32(ti.Overstep) + sign*int32(d.Overstep)

	for over >= 256 {
		over -= 256
		tickDiff++
	}
	for over < 0 {
		over += 256
		tickDiff--
	}

	return TickInstant{
		Tick:     ti.Tick.Add(tickDiff),
		Overstep: uint8(over),
	}
}

// TickDelta is the signed difference between two TickInstants.
type TickDelta struct {
	TickDiff uint16
	Overstep uint8
	Neg      bool
}

// Manager owns wall-clock time, the current tick, the accumulated
// overstep, and the relative-speed scaling factor applied to incoming
// deltas. tickDuration · (Tick + overstep) equals the integral of
// effective delta since connection start, modulo wrap.
type Manager struct {
	tickDuration  time.Duration
	current       Tick
	overstep      time.Duration // accumulated sub-tick time, always in [0, tickDuration)
	relativeSpeed float64
	lastDelta     time.Duration
}

// NewManager builds a tick manager ticking at 1/tickDuration Hz, starting
// relative speed at 1.0 (real time).
func NewManager(tickDuration time.Duration) *Manager {
	return &Manager{
		tickDuration:  tickDuration,
		relativeSpeed: 1.0,
	}
}

// TickDuration returns the fixed duration of one tick.
func (m *Manager) TickDuration() time.Duration { return m.tickDuration }

// Current returns the current tick counter.
func (m *Manager) Current() Tick { return m.current }

// Instant returns the current (tick, overstep) as a quantized TickInstant.
func (m *Manager) Instant() TickInstant {
	frac := float64(m.overstep) / float64(m.tickDuration)
	return NewTickInstant(m.current, frac)
}

// SetRelativeSpeed sets the multiplier applied to wall-clock deltas before
// they accumulate into overstep. Must be > 0; a sync manager typically
// drives this via a speedup/slowdown factor.
func (m *Manager) SetRelativeSpeed(speed float64) {
	if speed <= 0 {
		speed = 1.0
	}
	m.relativeSpeed = speed
}

// RelativeSpeed returns the currently applied speed multiplier.
func (m *Manager) RelativeSpeed() float64 { return m.relativeSpeed }

// Advance accumulates a real wall-clock delta (scaled by relative speed)
// into overstep, advances the current tick by every whole tick that has
// elapsed, and returns that count so the caller can run fixed-update that
// many times.
func (m *Manager) Advance(realDelta time.Duration) int {
	scaled := time.Duration(float64(realDelta) * m.relativeSpeed)
	m.lastDelta = scaled
	m.overstep += scaled

	steps := 0
	for m.overstep >= m.tickDuration {
		m.overstep -= m.tickDuration
		m.current++
		steps++
	}
	return steps
}

// LastDelta returns the most recently applied (speed-scaled) delta.
func (m *Manager) LastDelta() time.Duration { return m.lastDelta }

// SetTickAndOverstep snaps the manager directly to a TickInstant. Used by
// the sync manager's handshake snap and by the rollback engine to rewind.
func (m *Manager) SetTickAndOverstep(ti TickInstant) {
	m.current = ti.Tick
	m.overstep = time.Duration(ti.OverstepFraction() * float64(m.tickDuration))
}

// StepOneTick advances exactly one whole tick with delta == tickDuration,
// regardless of real elapsed time. The rollback engine does not call it:
// Engine.Rollback snaps the manager with SetTickAndOverstep instead.
func (m *Manager) StepOneTick() {
	m.current++
	m.lastDelta = m.tickDuration
}

// WrappedTime is a microsecond-resolution timestamp wrapping at 2^32 µs
// (about 71 minutes), used for NTP-style ping/pong round trips where we
// never need more than session-local relative time.
type WrappedTime uint32

// NowWrapped returns the wrapped microsecond timestamp for t.
func NowWrapped(t time.Time) WrappedTime {
	return WrappedTime(uint32(t.UnixMicro()))
}

// Sub returns the signed shortest distance (a - b) in microseconds,
// correctly handling wraparound.
func (a WrappedTime) Sub(b WrappedTime) time.Duration {
	diff := int32(a - b)
	return time.Duration(diff) * time.Microsecond
}

// Add returns a advanced by d (d may be negative).
func (a WrappedTime) Add(d time.Duration) WrappedTime {
	return WrappedTime(uint32(a) + uint32(int32(d/time.Microsecond)))
}
