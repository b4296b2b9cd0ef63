package prediction

import (
	"time"

	"github.com/pkg/errors"

	"github.com/tickwire/netcode/pkg/tick"
	"github.com/tickwire/netcode/pkg/world"
)

// TriggerMode selects how a predicted component decides it needs a
// rollback.
type TriggerMode int

const (
	TriggerDisabled TriggerMode = iota
	TriggerStateCheck
	TriggerStateAlways
	TriggerInputCheck
	TriggerInputAlways
)

// ErrRollbackOverrun is returned when the required replay window exceeds
// RollbackConfig.MaxRollbackTicks; Rollback has then force-snapped every
// binding to its latest history value instead of replaying.
var ErrRollbackOverrun = errors.New("prediction: rollback window exceeds max_rollback_ticks")

// RollbackConfig tunes the engine's replay window and correction blend.
type RollbackConfig struct {
	MaxRollbackTicks      int32
	CorrectionTicksFactor float64
}

// Binding is the type-erased capability set the rollback engine needs for
// one predicted entity's one component. Build one with NewBinding from a concrete
// History[C].
type Binding struct {
	ID   world.ComponentID
	Mode TriggerMode

	AtOrBefore    func(t tick.Tick) (value any, state State, ok bool)
	TruncateAfter func(t tick.Tick)
	Restore       func(value any, state State)
	Capture       func(t tick.Tick)
	Equal         func(a, b any) bool
}

// NewBinding adapts a concrete History[C] and the entity's live-component
// accessors into a type-erased Binding. get reads the component's current
// world value (ok=false if absent); restore writes a historical value (or
// removes the component) back into the world.
func NewBinding[C any](
	id world.ComponentID,
	mode TriggerMode,
	h *History[C],
	get func() (C, bool),
	restore func(value C, removed bool),
	equal func(a, b C) bool,
) Binding {
	return Binding{
		ID:   id,
		Mode: mode,
		AtOrBefore: func(t tick.Tick) (any, State, bool) {
			e, ok := h.AtOrBefore(t)
			return e.Value, e.State, ok
		},
		TruncateAfter: h.TruncateAfter,
		Restore: func(value any, state State) {
			switch state {
			case StateUpdated:
				restore(value.(C), false)
			case StateRemoved, StateAbsent:
				var zero C
				restore(zero, true)
			}
		},
		Capture: func(t tick.Tick) {
			if v, ok := get(); ok {
				h.Append(t, StateUpdated, v)
			} else {
				h.AppendRemoved(t)
			}
		},
		Equal: func(a, b any) bool {
			return equal(a.(C), b.(C))
		},
	}
}

// Decide applies "earliest triggered tick wins" across every
// dimension that fired this frame: the candidate furthest in the past
// relative to current becomes the rollback target.
func Decide(current tick.Tick, candidates []tick.Tick) (tick.Tick, bool) {
	var best tick.Tick
	var bestDiff int32
	found := false
	for _, c := range candidates {
		d := current.Diff(c) // c - current; negative means c is before current
		if !found || d < bestDiff {
			best = c
			bestDiff = d
			found = true
		}
	}
	return best, found
}

// Engine drives the rewind/restore/replay/correction sequence. It owns
// no entity state itself; callers supply the set of Bindings
// participating in a given rollback.
type Engine struct {
	cfg     RollbackConfig
	metrics *Metrics
}

// NewEngine builds a rollback engine. metrics may be nil to disable
// recording.
func NewEngine(cfg RollbackConfig, metrics *Metrics) *Engine {
	return &Engine{cfg: cfg, metrics: metrics}
}

// Rollback rewinds tm/w to target, restores every binding's historical
// value at target, replays fixed-update ticks from target+1 through
// current with is_rollback=true, re-captures each binding after every
// replayed tick, and then restores the original tick/overstep with
// is_rollback=false. Deterministic-predicted entity carve-outs and
// correction blending (see Correction) are the caller's responsibility
// since both depend on entity-specific context this engine deliberately
// does not hold.
//
// Bindings whose AtOrBefore has no entry at target are left untouched —
// the entity did not yet exist at that tick and will be created
// naturally during replay.
func (e *Engine) Rollback(target, current tick.Tick, tm *tick.Manager, w world.World, bindings []Binding) error {
	replaySteps := -current.Diff(target)
	if replaySteps < 0 {
		return errors.New("prediction: rollback target is not before current tick")
	}
	if replaySteps > e.cfg.MaxRollbackTicks {
		e.recordOverrun()
		for _, b := range bindings {
			if v, s, ok := b.AtOrBefore(current); ok {
				b.Restore(v, s)
			}
		}
		return ErrRollbackOverrun
	}

	start := time.Now()
	savedOverstep := tm.Instant().OverstepFraction()

	rewound := tick.NewTickInstant(target, 0)
	tm.SetTickAndOverstep(rewound)
	w.SetTickAndOverstep(rewound)

	for _, b := range bindings {
		b.TruncateAfter(target)
		if v, s, ok := b.AtOrBefore(target); ok {
			b.Restore(v, s)
		}
	}

	for t := target.Add(1); ; t = t.Add(1) {
		w.RunFixedUpdate(true)
		for _, b := range bindings {
			b.Capture(t)
		}
		if t == current {
			break
		}
	}

	restored := tick.NewTickInstant(current, savedOverstep)
	tm.SetTickAndOverstep(restored)
	w.SetTickAndOverstep(restored)

	e.recordRollback(time.Since(start), replaySteps)
	return nil
}

// CorrectionTicks returns how many ticks a post-rollback visual
// correction should blend over.
func (e *Engine) CorrectionTicks(replaySteps int32) int32 {
	ticks := int32(e.cfg.CorrectionTicksFactor * float64(replaySteps))
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}

func (e *Engine) recordRollback(d time.Duration, replaySteps int32) {
	if e.metrics != nil {
		e.metrics.recordRollback(d, replaySteps)
	}
}

func (e *Engine) recordOverrun() {
	if e.metrics != nil {
		e.metrics.recordOverrun()
	}
}
