package message

import (
	"github.com/tickwire/netcode/pkg/channel"
	"github.com/tickwire/netcode/pkg/codec"
)

// ackTracker records the PacketIDs we have received from a peer, producing
// the (last_ack_id, ack_bitfield) pair stamped into our own outgoing
// headers. Mirrors the shape of a netcode
// ReplayWindow but is keyed on PacketID rather than a netcode sequence and
// never rejects a duplicate — it only needs to remember, not gate.
type ackTracker struct {
	mostRecent codec.PacketID
	bitfield   uint32
	started    bool
}

// Record notes that packet id arrived.
func (a *ackTracker) Record(id codec.PacketID) {
	if !a.started {
		a.mostRecent = id
		a.bitfield = 0
		a.started = true
		return
	}

	diff := int32(int16(id - a.mostRecent))
	switch {
	case diff > 0:
		if diff >= 32 {
			a.bitfield = 0
		} else {
			a.bitfield <<= uint(diff)
			a.bitfield |= 1 << uint(diff-1)
		}
		a.mostRecent = id
	case diff < 0:
		back := -diff
		if back <= 32 {
			a.bitfield |= 1 << uint(back-1)
		}
	}
}

// Header returns the (last_ack_id, ack_bitfield) pair to stamp on the next
// outgoing datagram.
func (a *ackTracker) Header() (codec.PacketID, uint32) {
	return a.mostRecent, a.bitfield
}

// ackEntry associates one MessageAck with the channel it belongs to, so a
// delivered packet can notify the right channel's sender.
type ackEntry struct {
	channel codec.ChannelID
	ack     channel.MessageAck
}
