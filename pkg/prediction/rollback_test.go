package prediction

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tickwire/netcode/pkg/tick"
	"github.com/tickwire/netcode/pkg/world"
)

var _ world.World = (*stubWorld)(nil)

// stubWorld satisfies world.World; it runs a single component's "+1 per
// tick" system, a worked rollback example. Only RunFixedUpdate does
// anything real — the rest are no-ops the engine calls but this test
// does not otherwise exercise.
type stubWorld struct {
	value    float64
	relSpeed float32
}

func (s *stubWorld) AdvanceTick()                          {}
func (s *stubWorld) RunFixedUpdate(isRollback bool)         { s.value += 1 }
func (s *stubWorld) SetTickAndOverstep(ti tick.TickInstant) {}
func (s *stubWorld) SetTimeRelativeSpeed(speed float32)     { s.relSpeed = speed }

func (s *stubWorld) Serialize(world.EntityID, world.ComponentID, io.Writer) error   { return nil }
func (s *stubWorld) Deserialize(world.EntityID, world.ComponentID, io.Reader) error { return nil }
func (s *stubWorld) Insert(world.EntityID, world.ComponentID, any) error            { return nil }
func (s *stubWorld) Remove(world.EntityID, world.ComponentID) error                 { return nil }
func (s *stubWorld) Get(world.EntityID, world.ComponentID) (any, bool)              { return nil, false }
func (s *stubWorld) MapEntities(world.EntityID, world.ComponentID, func(world.EntityID) world.EntityID) error {
	return nil
}
func (s *stubWorld) AddPredicted(world.EntityID)     {}
func (s *stubWorld) RemovePredicted(world.EntityID)  {}
func (s *stubWorld) AddConfirmed(world.EntityID)     {}
func (s *stubWorld) RemoveConfirmed(world.EntityID)  {}
func (s *stubWorld) IsPredicted(world.EntityID) bool { return true }
func (s *stubWorld) IsConfirmed(world.EntityID) bool { return false }

func TestRollbackReplaysToMatchWorkedExample(t *testing.T) {
	h := NewHistory[float64](64)
	// Authoritative snapshot at tick 5 says C=-10.0, the value restore must
	// pick up before replay begins.
	h.Append(tick.Tick(5), StateUpdated, -10.0)

	w := &stubWorld{}
	w.value = 1.0 // the live world currently shows the predicted C=1.0

	get := func() (float64, bool) { return w.value, true }
	restore := func(v float64, removed bool) {
		if removed {
			return
		}
		w.value = v
	}
	binding := NewBinding[float64](1, TriggerStateCheck, h, get, restore, func(a, b float64) bool { return a == b })

	tm := tick.NewManager(20 * time.Millisecond)
	tm.SetTickAndOverstep(tick.NewTickInstant(10, 0))

	metrics := NewMetrics(nil)
	engine := NewEngine(RollbackConfig{MaxRollbackTicks: 64, CorrectionTicksFactor: 1.0}, metrics)

	err := engine.Rollback(tick.Tick(5), tick.Tick(10), tm, w, []Binding{binding})
	require.NoError(t, err)
	require.Equal(t, -5.0, w.value) // -10 + 5 replayed ticks (6..10) of +1 each
	require.Equal(t, tick.Tick(10), tm.Current())
}

func TestRollbackRefusesOverrunAndForceSnaps(t *testing.T) {
	h := NewHistory[float64](5)
	h.Append(tick.Tick(0), StateUpdated, 1.0)
	h.Append(tick.Tick(20), StateUpdated, 42.0)

	w := &stubWorld{}
	get := func() (float64, bool) { return w.value, true }
	restore := func(v float64, removed bool) {
		if !removed {
			w.value = v
		}
	}
	binding := NewBinding[float64](1, TriggerStateAlways, h, get, restore, func(a, b float64) bool { return a == b })

	tm := tick.NewManager(20 * time.Millisecond)
	tm.SetTickAndOverstep(tick.NewTickInstant(20, 0))

	engine := NewEngine(RollbackConfig{MaxRollbackTicks: 4}, NewMetrics(nil))
	err := engine.Rollback(tick.Tick(0), tick.Tick(20), tm, w, []Binding{binding})
	require.ErrorIs(t, err, ErrRollbackOverrun)
	require.Equal(t, 42.0, w.value) // force-snapped to the most recent confirmed value
}

func TestDecidePicksEarliestTriggeredTick(t *testing.T) {
	current := tick.Tick(100)
	target, ok := Decide(current, []tick.Tick{95, 98, 90})
	require.True(t, ok)
	require.Equal(t, tick.Tick(90), target)
}

func TestDecideReportsNoneWhenNoCandidates(t *testing.T) {
	_, ok := Decide(tick.Tick(5), nil)
	require.False(t, ok)
}

func TestCorrectionBlendsToDoneOverConfiguredTicks(t *testing.T) {
	c := NewCorrection(1.0, 6, 1.0)
	lerp := func(from, to any, w float64) any {
		return from.(float64) + (to.(float64)-from.(float64))*w
	}

	var last any
	for i := 0; i < 6; i++ {
		last = c.Blend(10.0, lerp)
	}
	require.True(t, c.Done())
	require.InDelta(t, 10.0, last.(float64), 0.0001)
}
