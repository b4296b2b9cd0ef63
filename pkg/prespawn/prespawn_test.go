package prespawn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tickwire/netcode/pkg/tick"
	"github.com/tickwire/netcode/pkg/world"
)

func TestComputeHashIsDeterministicAndOrderIndependent(t *testing.T) {
	a := ComputeHash(tick.Tick(100), []world.ComponentID{3, 1, 2}, 0)
	b := ComputeHash(tick.Tick(100), []world.ComponentID{1, 2, 3}, 0)
	require.Equal(t, a, b)

	c := ComputeHash(tick.Tick(101), []world.ComponentID{1, 2, 3}, 0)
	require.NotEqual(t, a, c)
}

func TestComputeHashIncorporatesSalt(t *testing.T) {
	a := ComputeHash(tick.Tick(100), []world.ComponentID{1}, 0)
	b := ComputeHash(tick.Tick(100), []world.ComponentID{1}, 42)
	require.NotEqual(t, a, b)
}

func TestMatchPopsOneCandidateAtMostOncePerHash(t *testing.T) {
	r := NewRegistry()
	h := ComputeHash(tick.Tick(100), []world.ComponentID{1, 2}, 0)
	r.Register(h, world.EntityID(7), tick.Tick(100))

	entity, ok := r.Match(h)
	require.True(t, ok)
	require.Equal(t, world.EntityID(7), entity)

	_, ok = r.Match(h)
	require.False(t, ok)
}

func TestMatchFallsBackWhenNoCandidateIndexed(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Match(Hash(12345))
	require.False(t, ok)
}

func TestCleanupDespawnsOnlyExpiredUnmatchedCandidates(t *testing.T) {
	r := NewRegistry()
	h1 := ComputeHash(tick.Tick(100), []world.ComponentID{1}, 0)
	h2 := ComputeHash(tick.Tick(195), []world.ComponentID{2}, 0)
	r.Register(h1, world.EntityID(1), tick.Tick(100))
	r.Register(h2, world.EntityID(2), tick.Tick(195))

	var despawned []world.EntityID
	r.Cleanup(tick.Tick(200), 50, func(e world.EntityID) {
		despawned = append(despawned, e)
	})

	require.Equal(t, []world.EntityID{world.EntityID(1)}, despawned)
	require.Equal(t, 0, r.Pending(h1))
	require.Equal(t, 1, r.Pending(h2))
}
