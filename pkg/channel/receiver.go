package channel

import "github.com/tickwire/netcode/pkg/tick"

// Receiver is the capability set the message manager drives to turn
// arriving packets into ordered application messages.
type Receiver interface {
	BufferRecv(msg ReceivedMessage) (ack *MessageAck)
	ReadMessages() [][]byte
	Update(currentTick tick.Tick)
}

// ReceivedMessage is one message or fragment lifted off the wire by the
// message manager and handed to a channel's receiver.
type ReceivedMessage struct {
	ID         *uint16
	Tick       *tick.Tick
	Bytes      []byte
	IsFragment bool
	FragmentID uint8
	NumFrags   uint8
	FragMsgID  uint16
}

type channelReceiver struct {
	mode Mode
	frag *fragmentAssembler

	// SequencedUnreliable: drop anything at or behind this index.
	lastDelivered int32
	haveDelivered bool

	// OrderedReliable: out-of-order buffer, released in order.
	nextExpected uint16
	pendingOrdered map[uint16][]byte

	// UnorderedReliable: dedup set of message IDs already delivered.
	seen map[uint16]struct{}

	// TickBuffered: buffered by tick, released once currentTick reaches it.
	pendingTick map[tick.Tick][]byte

	ready [][]byte
}

// NewReceiver constructs a receiver for the given settings.
func NewReceiver(s Settings) Receiver {
	return &channelReceiver{
		mode:           s.Mode,
		frag:           newFragmentAssembler(),
		lastDelivered:  -1,
		pendingOrdered: make(map[uint16][]byte),
		seen:           make(map[uint16]struct{}),
		pendingTick:    make(map[tick.Tick][]byte),
	}
}

// BufferRecv feeds one arrived message (or fragment) into the receiver. It
// returns the MessageAck the sender side should be told to record as
// delivered once this receiver has durably buffered it, or nil for
// unreliable modes which ack nothing.
func (r *channelReceiver) BufferRecv(msg ReceivedMessage) *MessageAck {
	bytes := msg.Bytes
	var msgID uint16
	if msg.IsFragment {
		complete, ok := r.frag.Add(toCodecFragment(msg))
		if !ok {
			if r.mode == OrderedReliable || r.mode == UnorderedReliable {
				return &MessageAck{MessageID: codecMessageID(msg.FragMsgID), FragmentID: fragPtr(msg.FragmentID)}
			}
			return nil
		}
		bytes = complete
		msgID = msg.FragMsgID
	} else if msg.ID != nil {
		msgID = *msg.ID
	}

	switch r.mode {
	case UnorderedUnreliable:
		r.ready = append(r.ready, bytes)
		return nil

	case SequencedUnreliable:
		idx := int32(msgID)
		if r.haveDelivered && idx <= r.lastDelivered {
			return nil
		}
		r.haveDelivered = true
		r.lastDelivered = idx
		r.ready = append(r.ready, bytes)
		return nil

	case OrderedReliable:
		if msgID < r.nextExpected {
			return ackFor(msg, msgID)
		}
		r.pendingOrdered[msgID] = bytes
		for {
			b, ok := r.pendingOrdered[r.nextExpected]
			if !ok {
				break
			}
			r.ready = append(r.ready, b)
			delete(r.pendingOrdered, r.nextExpected)
			r.nextExpected++
		}
		return ackFor(msg, msgID)

	case UnorderedReliable:
		if _, dup := r.seen[msgID]; !dup {
			r.seen[msgID] = struct{}{}
			r.ready = append(r.ready, bytes)
		}
		return ackFor(msg, msgID)

	case TickBuffered:
		if msg.Tick != nil {
			r.pendingTick[*msg.Tick] = bytes
		}
		return nil
	}
	return nil
}

func ackFor(msg ReceivedMessage, msgID uint16) *MessageAck {
	if msg.IsFragment {
		return &MessageAck{MessageID: codecMessageID(msg.FragMsgID), FragmentID: fragPtr(msg.FragmentID)}
	}
	return &MessageAck{MessageID: codecMessageID(msgID)}
}

// Update releases every buffered TickBuffered message whose tick is at or
// before currentTick. Messages for later ticks stay buffered; none are
// discarded.
func (r *channelReceiver) Update(currentTick tick.Tick) {
	if r.mode != TickBuffered {
		return
	}
	for t, b := range r.pendingTick {
		if t.Diff(currentTick) >= 0 {
			r.ready = append(r.ready, b)
			delete(r.pendingTick, t)
		}
	}
}

// ReadMessages drains and returns every message ready for application
// consumption since the last call.
func (r *channelReceiver) ReadMessages() [][]byte {
	out := r.ready
	r.ready = nil
	return out
}
