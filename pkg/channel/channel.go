// Package channel implements per-channel senders and receivers with
// mode-specific ordering, reliability and fragmentation. Grounded on
// RakNet-style reliability-type constants and per-packet
// message-index/order-index bookkeeping, generalized from RakNet's
// five fixed reliability bytes to five named channel modes.
package channel

import (
	"time"

	"github.com/tickwire/netcode/pkg/codec"
	"github.com/tickwire/netcode/pkg/tick"
)

// Mode is one of the five channel delivery modes.
type Mode int

const (
	UnorderedUnreliable Mode = iota
	SequencedUnreliable
	OrderedReliable
	UnorderedReliable
	TickBuffered
)

// Direction restricts which role may send on a channel.
type Direction int

const (
	Bidirectional Direction = iota
	ClientToServer
	ServerToClient
)

// Settings configures one channel.
type Settings struct {
	Mode            Mode
	ResendRTTFactor float64 // OrderedReliable/UnorderedReliable only
	Direction       Direction
}

// MessageAck identifies one sent (and possibly fragmented) message whose
// delivery a channel wants to be notified about.
type MessageAck struct {
	MessageID  codec.MessageID
	FragmentID *uint8
}

// outgoing is one message (or fragment) queued to leave on this channel.
type outgoing struct {
	id       *codec.MessageID
	tick     *tick.Tick
	fragment *codec.Fragment // set if this entry is a single fragment
	bytes    []byte
	priority float32

	lastSent time.Time
	acked    bool
}

func (o *outgoing) ack() MessageAck {
	a := MessageAck{}
	if o.id != nil {
		a.MessageID = *o.id
	}
	if o.fragment != nil {
		f := o.fragment.FragmentID
		a.FragmentID = &f
	}
	return a
}
