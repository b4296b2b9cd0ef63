package prediction

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tickwire/netcode/pkg/tick"
)

func TestAppendAndAtOrBefore(t *testing.T) {
	h := NewHistory[int](64)
	h.Append(tick.Tick(10), StateUpdated, 100)
	h.Append(tick.Tick(11), StateUpdated, 110)
	h.Append(tick.Tick(15), StateUpdated, 150)

	e, ok := h.AtOrBefore(tick.Tick(13))
	require.True(t, ok)
	require.Equal(t, 110, e.Value)
	require.Equal(t, tick.Tick(11), e.Tick)

	e, ok = h.AtOrBefore(tick.Tick(9))
	require.False(t, ok)

	e, ok = h.AtOrBefore(tick.Tick(100))
	require.True(t, ok)
	require.Equal(t, 150, e.Value)
}

func TestAppendRemovedRecordsTombstone(t *testing.T) {
	h := NewHistory[int](64)
	h.Append(tick.Tick(1), StateUpdated, 5)
	h.AppendRemoved(tick.Tick(2))

	e, ok := h.AtOrBefore(tick.Tick(5))
	require.True(t, ok)
	require.Equal(t, StateRemoved, e.State)
}

func TestPruneOlderThanDropsExpiredEntries(t *testing.T) {
	h := NewHistory[int](5)
	for i := 0; i < 10; i++ {
		h.Append(tick.Tick(i), StateUpdated, i)
	}
	// Retention is relative to the latest append (tick 9 - 5 = 4).
	_, ok := h.AtOrBefore(tick.Tick(3))
	require.False(t, ok)
	e, ok := h.AtOrBefore(tick.Tick(4))
	require.True(t, ok)
	require.Equal(t, 4, e.Value)
}

func TestTruncateAfterDropsSpeculativeTail(t *testing.T) {
	h := NewHistory[int](64)
	h.Append(tick.Tick(1), StateUpdated, 1)
	h.Append(tick.Tick(2), StateUpdated, 2)
	h.Append(tick.Tick(3), StateUpdated, 3)

	h.TruncateAfter(tick.Tick(1))
	require.Equal(t, 1, h.Len())

	e, ok := h.AtOrBefore(tick.Tick(100))
	require.True(t, ok)
	require.Equal(t, 1, e.Value)
}
