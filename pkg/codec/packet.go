// Package codec implements the byte-level framing of
// the datagram header, single-message packets, and fragmented packets:
// bit-level read/write primitives generalized from a fixed RakNet
// reliability byte to a varint-addressed channel scheme.
package codec

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/tickwire/netcode/pkg/tick"
)

// MTUPayload is the maximum encoded packet size before encryption overhead:
// 1200 - 11 (netcode header/prefix) - 1 (safety byte).
const MTUPayload = 1200 - 11 - 1

// fragmentFramingOverhead is everything that rides alongside a full
// FragmentThreshold-sized chunk in a non-terminal DataFragment packet: the
// codec Header, the fragment channel varint (1 byte for the handful of
// registered channels), the fragment header (MessageID + FragmentID +
// NumFragments + flags), and the trailing continuation byte.
const fragmentFramingOverhead = headerSize + 1 + 5 + 1

// FragmentThreshold is the serialized-message size above which a message
// must be split into fragments, sized so a full non-terminal fragment
// packet still fits within MTUPayload.
const FragmentThreshold = MTUPayload - fragmentFramingOverhead

// ChannelID identifies a channel; assigned deterministically by the shared
// protocol registry and written on the wire as a varint.
type ChannelID uint16

// MessageID is a wrapping 16-bit per-channel sequence number.
type MessageID uint16

// PacketID is a wrapping 16-bit per-connection sequence number for
// outbound datagrams, independent of MessageID.
type PacketID uint16

// PacketType distinguishes a single-message packet from a fragmented one.
type PacketType uint8

const (
	PacketTypeData PacketType = iota
	PacketTypeDataFragment
)

// Header is the fixed-layout prefix of every datagram.
type Header struct {
	Type        PacketType
	PacketID    PacketID
	LastAckID   PacketID
	AckBitfield uint32
	Tick        tick.Tick
}

const headerSize = 1 + 2 + 2 + 4 + 2

func (h Header) encode(buf []byte) []byte {
	buf = append(buf, byte(h.Type))
	buf = appendUint16(buf, uint16(h.PacketID))
	buf = appendUint16(buf, uint16(h.LastAckID))
	buf = appendUint32(buf, h.AckBitfield)
	buf = appendUint16(buf, uint16(h.Tick))
	return buf
}

func decodeHeader(data []byte) (Header, int, error) {
	if len(data) < headerSize {
		return Header{}, 0, ErrShortBuffer
	}
	h := Header{
		Type:        PacketType(data[0]),
		PacketID:    PacketID(binary.BigEndian.Uint16(data[1:3])),
		LastAckID:   PacketID(binary.BigEndian.Uint16(data[3:5])),
		AckBitfield: binary.BigEndian.Uint32(data[5:9]),
		Tick:        tick.Tick(binary.BigEndian.Uint16(data[9:11])),
	}
	return h, headerSize, nil
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// Message is a single logical message carried inside a channel's message
// list. ID and Tick are optional.
type Message struct {
	ID       *MessageID
	Tick     *tick.Tick
	Bytes    []byte
	Priority float32
}

// ChannelMessages groups the messages queued for one channel within a
// single packet.
type ChannelMessages struct {
	Channel  ChannelID
	Messages []Message
}

// Fragment is one piece of a message split across FragmentThreshold-sized
// chunks.
type Fragment struct {
	MessageID     MessageID
	Tick          *tick.Tick
	FragmentID    uint8
	NumFragments  uint8
	Bytes         []byte
	Priority      float32
}

// Packet is either a SinglePacket (a list of per-channel message groups)
// or a FragmentedPacket (one fragment plus an optional trailing
// SinglePacket of small messages riding along in the same datagram).
type Packet struct {
	Header   Header
	Channels []ChannelMessages // set when Header.Type == PacketTypeData

	// Set when Header.Type == PacketTypeDataFragment.
	FragChannel ChannelID
	Frag        Fragment
	Tail        []ChannelMessages // optional, non-empty only if present
}

var errUnknownPacketType = errors.New("codec: unknown packet type")
