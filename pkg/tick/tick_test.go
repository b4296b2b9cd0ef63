package tick

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTickDiffWrap(t *testing.T) {
	var a Tick = 65530
	var b Tick = 5
	require.EqualValues(t, 11, a.Diff(b))
	require.EqualValues(t, -11, b.Diff(a))
}

func TestTickInstantFromDurationRoundTrip(t *testing.T) {
	d := 33 * time.Millisecond
	elapsed := 123*d + 17*time.Millisecond
	ti := FromDuration(elapsed, d)

	back := ti.AsDuration(d)
	again := FromDuration(back, d)
	require.Equal(t, ti.Tick, again.Tick)
	// Overstep may differ by at most one quantum due to rounding.
	delta := int(ti.Overstep) - int(again.Overstep)
	if delta < 0 {
		delta = -delta
	}
	require.LessOrEqual(t, delta, 1)
}

func TestTickDeltaAddSubRoundTrip(t *testing.T) {
	d := time.Duration(33) * time.Millisecond
	a := NewTickInstant(100, 0.4)
	b := NewTickInstant(107, 0.9)

	delta := b.Sub(a)
	result := a.Add(delta)
	require.Equal(t, b.Tick, result.Tick)
	require.InDelta(t, float64(b.Overstep), float64(result.Overstep), 1.0)
	_ = d
}

func TestTickDeltaNegative(t *testing.T) {
	a := NewTickInstant(50, 0.8)
	b := NewTickInstant(48, 0.1)

	delta := b.Sub(a)
	require.True(t, delta.Neg)

	result := a.Add(delta)
	require.Equal(t, b.Tick, result.Tick)
}

func TestManagerAdvanceSteps(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	steps := m.Advance(55 * time.Millisecond)
	require.Equal(t, 2, steps)
	require.EqualValues(t, 2, m.Current())
}

func TestManagerRelativeSpeedScalesDelta(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	m.SetRelativeSpeed(2.0)
	steps := m.Advance(10 * time.Millisecond)
	require.Equal(t, 2, steps)
}

func TestManagerSetTickAndOverstep(t *testing.T) {
	m := NewManager(16 * time.Millisecond)
	ti := NewTickInstant(500, 0.25)
	m.SetTickAndOverstep(ti)
	require.Equal(t, Tick(500), m.Current())
	require.InDelta(t, 0.25, m.Instant().OverstepFraction(), 0.01)
}

func TestWrappedTimeSubWraparound(t *testing.T) {
	var a WrappedTime = 10
	var b WrappedTime = 0xFFFFFFF0
	// a is 26µs "ahead" of b across the wrap (16µs up to 2^32, then 10µs).
	require.Equal(t, 26*time.Microsecond, a.Sub(b))
}
