// Package prediction implements the per-entity component history ring
// buffer and the rollback/re-simulation engine built on top of it.
// Grounded on a fixed-tick game loop shape, generalized from a single
// authoritative loop to a client-side predict/rollback loop.
package prediction

import "github.com/tickwire/netcode/pkg/tick"

// State tags what an entity's component looked like at a given tick.
type State int

const (
	StateUpdated State = iota
	StateRemoved
	StateAbsent
)

// Entry is one history record for a predicted component of type C.
type Entry[C any] struct {
	Tick  tick.Tick
	State State
	Value C
}

// History is a bounded, time-ordered buffer of a predicted entity's
// values for one component type. Entries are always appended in
// non-decreasing tick order.
type History[C any] struct {
	entries  []Entry[C]
	maxTicks int32
}

// NewHistory builds a history retaining at least maxRollbackTicks worth of
// entries.
func NewHistory[C any](maxRollbackTicks int32) *History[C] {
	return &History[C]{maxTicks: maxRollbackTicks}
}

// Append records value at t, pruning anything older than the retention
// bound relative to t.
func (h *History[C]) Append(t tick.Tick, state State, value C) {
	h.entries = append(h.entries, Entry[C]{Tick: t, State: state, Value: value})
	h.PruneOlderThan(t.Add(-h.maxTicks))
}

// AppendRemoved records that the component was removed at t.
func (h *History[C]) AppendRemoved(t tick.Tick) {
	var zero C
	h.Append(t, StateRemoved, zero)
}

// AtOrBefore returns the most recent entry whose tick is <= t.
func (h *History[C]) AtOrBefore(t tick.Tick) (Entry[C], bool) {
	var best Entry[C]
	found := false
	for _, e := range h.entries {
		if e.Tick.Diff(t) < 0 {
			continue // e.Tick > t
		}
		if !found || best.Tick.Diff(e.Tick) > 0 {
			best = e
			found = true
		}
	}
	return best, found
}

// PruneOlderThan discards entries strictly older than cutoff.
func (h *History[C]) PruneOlderThan(cutoff tick.Tick) {
	i := 0
	for ; i < len(h.entries); i++ {
		if cutoff.Diff(h.entries[i].Tick) >= 0 {
			break
		}
	}
	h.entries = h.entries[i:]
}

// TruncateAfter drops every entry newer than t — used by the rollback
// engine to discard speculative writes from the replayed range before
// re-appending post-sim values.
func (h *History[C]) TruncateAfter(t tick.Tick) {
	i := len(h.entries)
	for i > 0 && t.Diff(h.entries[i-1].Tick) > 0 {
		i--
	}
	h.entries = h.entries[:i]
}

// Len returns the number of retained entries, mostly useful for tests and
// metrics.
func (h *History[C]) Len() int { return len(h.entries) }
