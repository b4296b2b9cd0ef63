// Package prespawn implements the deterministic archetype-hash index
// that matches a client's speculatively-spawned entities against the
// server's later-replicated authoritative versions. The hash index
// itself follows a session-table shape (map[sessionID]*Session)
// generalized from a single key to a hash-bucketed multi-candidate
// index.
package prespawn

import (
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/tickwire/netcode/pkg/tick"
	"github.com/tickwire/netcode/pkg/world"
)

// Hash identifies one prespawn archetype: a deterministic digest of the
// spawn tick, the sorted set of registered component net ids present on
// the entity, and an optional user salt.
type Hash uint64

// ComputeHash derives a deterministic hash from spawnTick, the entity's
// registered component ids (any order; sorted internally), and an optional
// salt. xxhash is a fixed, non-cryptographic, non-randomized hasher, which
// satisfies the requirement that the implementation "must not depend on
// process-randomized hashers."
func ComputeHash(spawnTick tick.Tick, componentIDs []world.ComponentID, salt uint64) Hash {
	sorted := make([]world.ComponentID, len(componentIDs))
	copy(sorted, componentIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	h := xxhash.New()
	var buf [8]byte
	putUint16(buf[:2], uint16(spawnTick))
	h.Write(buf[:2])
	for _, id := range sorted {
		putUint16(buf[:2], uint16(id))
		h.Write(buf[:2])
	}
	if salt != 0 {
		putUint64(buf[:8], salt)
		h.Write(buf[:8])
	}
	return Hash(h.Sum64())
}

func putUint16(b []byte, v uint16) { b[0], b[1] = byte(v), byte(v>>8) }
func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// candidate is one locally-spawned entity awaiting a confirmed match.
type candidate struct {
	entity    world.EntityID
	spawnTick tick.Tick
}

// Registry indexes locally-prespawned entities by archetype hash so an
// incoming replicated entity carrying the same hash can be matched to one
// of them.
type Registry struct {
	candidates map[Hash][]candidate
}

// NewRegistry builds an empty prespawn registry.
func NewRegistry() *Registry {
	return &Registry{candidates: make(map[Hash][]candidate)}
}

// Register indexes a locally-spawned entity under h at spawnTick.
func (r *Registry) Register(h Hash, entity world.EntityID, spawnTick tick.Tick) {
	r.candidates[h] = append(r.candidates[h], candidate{entity: entity, spawnTick: spawnTick})
}

// Match pops one locally-spawned candidate entity for h, if any, removing
// it from the index; pairing it with the incoming replicated entity is
// left to the caller, as Match changes no entity state. Returns ok=false when no candidate is indexed, in which case the
// caller falls back to spawning a fresh predicted entity.
func (r *Registry) Match(h Hash) (entity world.EntityID, ok bool) {
	list := r.candidates[h]
	if len(list) == 0 {
		return 0, false
	}
	entity = list[0].entity
	list = list[1:]
	if len(list) == 0 {
		delete(r.candidates, h)
	} else {
		r.candidates[h] = list
	}
	return entity, true
}

// Cleanup despawns every unmatched candidate whose spawn tick is older
// than currentTick-maxAge. maxAge should be at least rtt_in_ticks plus a
// safety margin. despawn is called once per expired candidate.
func (r *Registry) Cleanup(currentTick tick.Tick, maxAge int32, despawn func(world.EntityID)) {
	cutoff := currentTick.Add(-maxAge)
	for h, list := range r.candidates {
		kept := list[:0]
		for _, c := range list {
			if cutoff.Diff(c.spawnTick) >= 0 {
				kept = append(kept, c)
				continue
			}
			despawn(c.entity)
		}
		if len(kept) == 0 {
			delete(r.candidates, h)
		} else {
			r.candidates[h] = kept
		}
	}
}

// Pending returns how many unmatched candidates remain indexed under h,
// mostly useful for tests and metrics.
func (r *Registry) Pending(h Hash) int {
	return len(r.candidates[h])
}
