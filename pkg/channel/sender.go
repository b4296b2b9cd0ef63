package channel

import (
	"sort"
	"time"

	"github.com/tickwire/netcode/pkg/codec"
	"github.com/tickwire/netcode/pkg/tick"
)

// Sender is the capability set the message manager drives to compose
// outgoing packets.
type Sender interface {
	BufferSend(bytes []byte, priority float32) *codec.MessageID
	BufferSendAtTick(t tick.Tick, bytes []byte, priority float32)
	CollectMessagesToSend(now time.Time, rtt time.Duration) []OutboundItem
	HasMessagesToSend() bool
	NotifyMessageDelivered(ack MessageAck)
	NotifyMessageLost(ack MessageAck)
}

// OutboundItem is one entry a sender hands to the message manager for
// inclusion in the next outgoing packet: either a whole message or a
// single fragment of one, never both.
type OutboundItem struct {
	Message  *codec.Message
	Fragment *codec.Fragment
}

// channelSender implements all five delivery modes; the behavior
// differences are small enough that one struct with a mode switch is
// clearer than five near-duplicate types, the same way a single
// encapsulated-packet type can carry a reliability byte rather than
// needing five packet structs.
type channelSender struct {
	mode            Mode
	resendRTTFactor float64

	nextID codec.MessageID

	// UnorderedUnreliable / SequencedUnreliable: simple FIFO, sent once.
	queue []outgoing

	// OrderedReliable / UnorderedReliable: tracked until acked.
	outstanding map[codec.MessageID]*outgoing
	fragOutstanding map[codec.MessageID][]*outgoing // per-fragment tracking

	// TickBuffered: one pending message per tick, replacing same-tick
	// resends.
	tickBuffered map[tick.Tick]*outgoing
}

// NewSender constructs a sender for the given settings.
func NewSender(s Settings) Sender {
	return &channelSender{
		mode:            s.Mode,
		resendRTTFactor: s.ResendRTTFactor,
		outstanding:     make(map[codec.MessageID]*outgoing),
		fragOutstanding: make(map[codec.MessageID][]*outgoing),
		tickBuffered:    make(map[tick.Tick]*outgoing),
	}
}

func (s *channelSender) allocID() codec.MessageID {
	id := s.nextID
	s.nextID++
	return id
}

// BufferSend enqueues bytes for later dispatch, fragmenting if the payload
// exceeds codec.FragmentThreshold. It returns the assigned MessageID for
// modes that stamp one (nil for UnorderedUnreliable).
func (s *channelSender) BufferSend(bytes []byte, priority float32) *codec.MessageID {
	switch s.mode {
	case UnorderedUnreliable:
		s.enqueueMaybeFragmented(nil, bytes, priority, false)
		return nil

	case SequencedUnreliable:
		id := s.allocID()
		s.enqueueMaybeFragmented(&id, bytes, priority, false)
		return &id

	case OrderedReliable, UnorderedReliable:
		id := s.allocID()
		s.enqueueMaybeFragmented(&id, bytes, priority, true)
		return &id

	case TickBuffered:
		id := s.allocID()
		return &id // caller supplies the tick via BufferSendAtTick
	}
	return nil
}

// BufferSendAtTick is the TickBuffered-mode entry point: re-buffering the
// same tick replaces the previous pending message for it.
func (s *channelSender) BufferSendAtTick(t tick.Tick, bytes []byte, priority float32) {
	if s.mode != TickBuffered {
		return
	}
	id := s.allocID()
	s.tickBuffered[t] = &outgoing{id: &id, tick: &t, bytes: bytes, priority: priority}
}

func (s *channelSender) enqueueMaybeFragmented(id *codec.MessageID, bytes []byte, priority float32, reliable bool) {
	if len(bytes) <= codec.FragmentThreshold {
		o := outgoing{id: id, bytes: bytes, priority: priority}
		if reliable && id != nil {
			s.outstanding[*id] = &o
		} else {
			s.queue = append(s.queue, o)
		}
		return
	}

	msgID := codec.MessageID(0)
	if id != nil {
		msgID = *id
	}
	frags := codec.SplitMessage(msgID, nil, bytes, priority)
	var tracked []*outgoing
	for i := range frags {
		f := frags[i]
		o := &outgoing{fragment: &f, bytes: f.Bytes, priority: priority}
		if reliable {
			tracked = append(tracked, o)
		} else {
			s.queue = append(s.queue, *o)
		}
	}
	if reliable {
		s.fragOutstanding[msgID] = tracked
	}
}

// CollectMessagesToSend returns everything ready to go out this tick:
// queued unreliable/sequenced entries (drained), due TickBuffered entries,
// and any reliable entries whose resend timer has elapsed (whole messages
// in ascending MessageID order).
func (s *channelSender) CollectMessagesToSend(now time.Time, rtt time.Duration) []OutboundItem {
	var out []OutboundItem

	for _, o := range s.queue {
		out = append(out, toOutboundItem(o))
	}
	s.queue = s.queue[:0]

	if s.mode == TickBuffered {
		for t, o := range s.tickBuffered {
			out = append(out, toOutboundItem(*o))
			_ = t
		}
	}

	if s.mode == OrderedReliable || s.mode == UnorderedReliable {
		threshold := time.Duration(s.resendRTTFactor * float64(rtt))
		ids := make([]codec.MessageID, 0, len(s.outstanding))
		for id := range s.outstanding {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			o := s.outstanding[id]
			if o.acked {
				continue
			}
			if o.lastSent.IsZero() || now.Sub(o.lastSent) >= threshold {
				o.lastSent = now
				out = append(out, toOutboundItem(*o))
			}
		}
		for _, frags := range s.fragOutstanding {
			for _, o := range frags {
				if o.acked {
					continue
				}
				if o.lastSent.IsZero() || now.Sub(o.lastSent) >= threshold {
					o.lastSent = now
					out = append(out, toOutboundItem(*o))
				}
			}
		}
	}

	return out
}

func toOutboundItem(o outgoing) OutboundItem {
	if o.fragment != nil {
		f := *o.fragment
		return OutboundItem{Fragment: &f}
	}
	m := codec.Message{ID: o.id, Tick: o.tick, Bytes: o.bytes, Priority: o.priority}
	return OutboundItem{Message: &m}
}

func (s *channelSender) HasMessagesToSend() bool {
	if len(s.queue) > 0 {
		return true
	}
	if len(s.tickBuffered) > 0 {
		return true
	}
	for _, o := range s.outstanding {
		if !o.acked {
			return true
		}
	}
	for _, frags := range s.fragOutstanding {
		for _, o := range frags {
			if !o.acked {
				return true
			}
		}
	}
	return false
}

func (s *channelSender) NotifyMessageDelivered(ack MessageAck) {
	if ack.FragmentID != nil {
		if frags, ok := s.fragOutstanding[ack.MessageID]; ok {
			for _, o := range frags {
				if o.fragment.FragmentID == *ack.FragmentID {
					o.acked = true
				}
			}
			if allAcked(frags) {
				delete(s.fragOutstanding, ack.MessageID)
			}
		}
		return
	}
	if o, ok := s.outstanding[ack.MessageID]; ok {
		o.acked = true
		delete(s.outstanding, ack.MessageID)
	}
	if s.mode == TickBuffered {
		for t, o := range s.tickBuffered {
			if o.id != nil && *o.id == ack.MessageID {
				delete(s.tickBuffered, t)
			}
		}
	}
}

func allAcked(frags []*outgoing) bool {
	for _, o := range frags {
		if !o.acked {
			return false
		}
	}
	return true
}

// NotifyMessageLost is a no-op: reliable modes recover
// losses via the resend timer in CollectMessagesToSend rather than an
// explicit retransmit-on-NACK path.
func (s *channelSender) NotifyMessageLost(ack MessageAck) {}
