// Package priority implements a global token bucket gating how many
// serialized bytes may leave per tick, with channel messages admitted
// priority-first. Grounded on a per-player send-rate limiter (a fixed
// tick budget per client) generalized to a continuous token bucket
// using golang.org/x/time/rate.
package priority

import (
	"sort"
	"time"

	"golang.org/x/time/rate"
)

// Candidate is one message queued on some channel, competing for space in
// the next outgoing packet.
type Candidate struct {
	ChannelIndex int // caller-defined index back into its own channel table
	MessageIndex int // index within that channel's pending list
	Priority     float32
	EstimatedLen int // upper-bound serialized byte estimate
}

// Manager gates outbound bytes with a token bucket and
// selects which queued candidates fit this tick, highest priority first.
type Manager struct {
	limiter *rate.Limiter
}

// NewManager builds a manager with the given sustained rate and burst
// depth, both in bytes.
func NewManager(bytesPerSecond float64, burst int) *Manager {
	return &Manager{limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst)}
}

// Selection is the outcome of one admission pass: which candidates were
// admitted (in priority order) and which were held back for lack of
// budget.
type Selection struct {
	Admitted []Candidate
	Held     []Candidate
}

// Select sorts candidates by descending priority and admits as many as fit
// the bucket's currently available tokens, using EstimatedLen as an
// upper-bound reservation. It does not consume tokens — call Reconcile
// with the actual encoded size once the packet is built.
func (m *Manager) Select(candidates []Candidate) Selection {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	available := int(m.limiter.TokensAt(time.Now()))

	var sel Selection
	budget := available
	for _, c := range sorted {
		if c.EstimatedLen <= budget {
			sel.Admitted = append(sel.Admitted, c)
			budget -= c.EstimatedLen
		} else {
			sel.Held = append(sel.Held, c)
		}
	}
	return sel
}

// Reconcile deducts the actual encoded byte count from the bucket. This
// may drive the bucket's token count negative when estimates under-shot;
// later Selects then admit nothing until refill has paid the debt back. A
// count larger than the burst depth is refused by the limiter and deducts
// nothing.
func (m *Manager) Reconcile(actualBytes int, now time.Time) {
	_ = m.limiter.ReserveN(now, actualBytes)
}

// SetRate adjusts the sustained byte rate, e.g. in response to measured
// congestion.
func (m *Manager) SetRate(bytesPerSecond float64) {
	m.limiter.SetLimit(rate.Limit(bytesPerSecond))
}

// ReplicationID identifies one replication-update message that bandwidth
// pressure held back this tick.
type ReplicationID uint64

// DroppedReplication fans out ids filtered out by Select so upstream
// interest-management code can learn which updates actually went out.
// Sends never block a tick: when the channel is full the new
// notification is dropped rather than stalling the message manager.
type DroppedReplication struct {
	ch chan []ReplicationID
}

// NewDroppedReplication builds a notifier with the given channel depth.
func NewDroppedReplication(depth int) *DroppedReplication {
	return &DroppedReplication{ch: make(chan []ReplicationID, depth)}
}

// Notify publishes one tick's worth of held-back ids, non-blocking.
func (d *DroppedReplication) Notify(ids []ReplicationID) {
	if len(ids) == 0 {
		return
	}
	select {
	case d.ch <- ids:
	default:
	}
}

// Chan returns the receive side for upstream consumers.
func (d *DroppedReplication) Chan() <-chan []ReplicationID {
	return d.ch
}
