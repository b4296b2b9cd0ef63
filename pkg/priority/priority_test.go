package priority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSelectAdmitsHighestPriorityFirst(t *testing.T) {
	m := NewManager(1000, 500)

	sel := m.Select([]Candidate{
		{ChannelIndex: 0, MessageIndex: 0, Priority: 1.0, EstimatedLen: 300},
		{ChannelIndex: 1, MessageIndex: 0, Priority: 5.0, EstimatedLen: 300},
		{ChannelIndex: 2, MessageIndex: 0, Priority: 3.0, EstimatedLen: 300},
	})

	require.Len(t, sel.Admitted, 1)
	require.Equal(t, 1, sel.Admitted[0].ChannelIndex) // priority 5.0 wins the only slot
	require.Len(t, sel.Held, 2)
}

func TestReconcileDrainsBucketForNextSelect(t *testing.T) {
	m := NewManager(1, 400) // 1 byte/s: refill is negligible, isolates the burst-depth budget

	first := m.Select([]Candidate{{Priority: 1, EstimatedLen: 100}})
	require.Len(t, first.Admitted, 1)
	m.Reconcile(100, time.Now())

	second := m.Select([]Candidate{{Priority: 1, EstimatedLen: 350}})
	require.Empty(t, second.Admitted)
	require.Len(t, second.Held, 1)
}

func TestDroppedReplicationNonBlockingNotify(t *testing.T) {
	d := NewDroppedReplication(1)
	d.Notify([]ReplicationID{1, 2, 3})
	d.Notify([]ReplicationID{4}) // channel full: dropped, must not block

	select {
	case got := <-d.Chan():
		require.Equal(t, []ReplicationID{1, 2, 3}, got)
	default:
		t.Fatal("expected a pending notification")
	}
}

func TestDroppedReplicationIgnoresEmpty(t *testing.T) {
	d := NewDroppedReplication(1)
	d.Notify(nil)

	select {
	case <-d.Chan():
		t.Fatal("empty notify must not publish")
	default:
	}
}
