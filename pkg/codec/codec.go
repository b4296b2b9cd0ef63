package codec

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/tickwire/netcode/pkg/tick"
)

const (
	flagHasID   = 1 << 0
	flagHasTick = 1 << 1

	contMore = 0x01
	contDone = 0x00
)

// Encode serializes a Packet. The contract: for any
// well-formed Packet, Decode(Encode(p)) == p, except for the Priority
// fields of messages and fragments, which are not written to the wire and
// decode as 0.
func Encode(p Packet) ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = p.Header.encode(buf)

	switch p.Header.Type {
	case PacketTypeData:
		var err error
		buf, err = encodeChannelList(buf, p.Channels)
		if err != nil {
			return nil, err
		}
	case PacketTypeDataFragment:
		buf = putVarint(buf, uint64(p.FragChannel))
		buf = encodeFragment(buf, p.Frag)
		if len(p.Tail) > 0 {
			buf = append(buf, contMore)
			var err error
			buf, err = encodeChannelList(buf, p.Tail)
			if err != nil {
				return nil, err
			}
		} else {
			buf = append(buf, contDone)
		}
	default:
		return nil, errUnknownPacketType
	}

	if len(buf) > MTUPayload {
		return nil, errors.Errorf("codec: encoded packet %d bytes exceeds MTU payload %d", len(buf), MTUPayload)
	}
	return buf, nil
}

// Decode parses a Packet previously produced by Encode.
func Decode(data []byte) (Packet, error) {
	h, off, err := decodeHeader(data)
	if err != nil {
		return Packet{}, errors.Wrap(err, "codec: header")
	}
	p := Packet{Header: h}

	switch h.Type {
	case PacketTypeData:
		channels, _, err := decodeChannelList(data, off)
		if err != nil {
			return Packet{}, errors.Wrap(err, "codec: channel list")
		}
		p.Channels = channels
	case PacketTypeDataFragment:
		chID, off2, err := readVarint(data, off)
		if err != nil {
			return Packet{}, errors.Wrap(err, "codec: fragment channel")
		}
		p.FragChannel = ChannelID(chID)

		frag, off3, err := decodeFragment(data, off2)
		if err != nil {
			return Packet{}, errors.Wrap(err, "codec: fragment")
		}
		p.Frag = frag

		if off3 >= len(data) {
			return Packet{}, ErrShortBuffer
		}
		hasTail := data[off3]
		off3++
		if hasTail == contMore {
			tail, _, err := decodeChannelList(data, off3)
			if err != nil {
				return Packet{}, errors.Wrap(err, "codec: fragment tail")
			}
			p.Tail = tail
		}
	default:
		return Packet{}, errUnknownPacketType
	}

	return p, nil
}

// encodeChannelList and decodeChannelList use a leading continuation byte
// before each entry: 1 = "an entry follows", 0 = "list ends here". This
// lets the decoder terminate a repeat-list without a length prefix, at
// the cost of one byte per entry instead of a packed bit count (a
// deliberate simplicity/bandwidth tradeoff documented in DESIGN.md).
func encodeChannelList(buf []byte, channels []ChannelMessages) ([]byte, error) {
	for _, cm := range channels {
		buf = append(buf, contMore)
		buf = putVarint(buf, uint64(cm.Channel))

		for _, msg := range cm.Messages {
			buf = append(buf, contMore)
			var err error
			buf, err = encodeMessage(buf, msg)
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, contDone)
	}
	buf = append(buf, contDone)
	return buf, nil
}

func decodeChannelList(data []byte, off int) ([]ChannelMessages, int, error) {
	var channels []ChannelMessages
	for {
		if off >= len(data) {
			return nil, off, ErrShortBuffer
		}
		more := data[off]
		off++
		if more != contMore {
			break
		}

		chID, off2, err := readVarint(data, off)
		if err != nil {
			return nil, off, err
		}
		off = off2

		var msgs []Message
		for {
			if off >= len(data) {
				return nil, off, ErrShortBuffer
			}
			mmore := data[off]
			off++
			if mmore != contMore {
				break
			}
			msg, off3, err := decodeMessage(data, off)
			if err != nil {
				return nil, off, err
			}
			off = off3
			msgs = append(msgs, msg)
		}

		channels = append(channels, ChannelMessages{Channel: ChannelID(chID), Messages: msgs})
	}

	return channels, off, nil
}

func encodeMessage(buf []byte, m Message) ([]byte, error) {
	flags := byte(0)
	if m.ID != nil {
		flags |= flagHasID
	}
	if m.Tick != nil {
		flags |= flagHasTick
	}
	buf = append(buf, flags)
	if m.ID != nil {
		buf = appendUint16(buf, uint16(*m.ID))
	}
	if m.Tick != nil {
		buf = appendUint16(buf, uint16(*m.Tick))
	}
	buf = putVarint(buf, uint64(len(m.Bytes)))
	buf = append(buf, m.Bytes...)
	return buf, nil
}

func decodeMessage(data []byte, off int) (Message, int, error) {
	if off >= len(data) {
		return Message{}, off, ErrShortBuffer
	}
	flags := data[off]
	off++

	var m Message
	if flags&flagHasID != 0 {
		if off+2 > len(data) {
			return Message{}, off, ErrShortBuffer
		}
		id := MessageID(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		m.ID = &id
	}
	if flags&flagHasTick != 0 {
		if off+2 > len(data) {
			return Message{}, off, ErrShortBuffer
		}
		t := tick.Tick(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		m.Tick = &t
	}

	n, off2, err := readVarint(data, off)
	if err != nil {
		return Message{}, off, err
	}
	off = off2
	if off+int(n) > len(data) {
		return Message{}, off, ErrShortBuffer
	}
	m.Bytes = append([]byte(nil), data[off:off+int(n)]...)
	off += int(n)

	return m, off, nil
}

func encodeFragment(buf []byte, f Fragment) []byte {
	buf = appendUint16(buf, uint16(f.MessageID))
	buf = append(buf, f.FragmentID, f.NumFragments)

	flags := byte(0)
	if f.Tick != nil {
		flags |= flagHasTick
	}
	buf = append(buf, flags)
	if f.Tick != nil {
		buf = appendUint16(buf, uint16(*f.Tick))
	}

	isLast := f.FragmentID == f.NumFragments-1
	if isLast {
		buf = appendUint16(buf, uint16(len(f.Bytes)))
	}
	buf = append(buf, f.Bytes...)
	return buf
}

func decodeFragment(data []byte, off int) (Fragment, int, error) {
	if off+4 > len(data) {
		return Fragment{}, off, ErrShortBuffer
	}
	f := Fragment{
		MessageID:    MessageID(binary.BigEndian.Uint16(data[off : off+2])),
		FragmentID:   data[off+2],
		NumFragments: data[off+3],
	}
	off += 4

	if off >= len(data) {
		return Fragment{}, off, ErrShortBuffer
	}
	flags := data[off]
	off++
	if flags&flagHasTick != 0 {
		if off+2 > len(data) {
			return Fragment{}, off, ErrShortBuffer
		}
		t := tick.Tick(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		f.Tick = &t
	}

	isLast := f.FragmentID == f.NumFragments-1
	if isLast {
		if off+2 > len(data) {
			return Fragment{}, off, ErrShortBuffer
		}
		n := int(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		if off+n > len(data) {
			return Fragment{}, off, ErrShortBuffer
		}
		f.Bytes = append([]byte(nil), data[off:off+n]...)
		off += n
	} else {
		// Non-terminal fragments always fill FragmentThreshold bytes.
		if off+FragmentThreshold > len(data) {
			return Fragment{}, off, ErrShortBuffer
		}
		f.Bytes = append([]byte(nil), data[off:off+FragmentThreshold]...)
		off += FragmentThreshold
	}

	return f, off, nil
}

// SplitMessage breaks a serialized message into NumFragments-many Fragment
// values sharing one MessageID) fragments.
func SplitMessage(id MessageID, t *tick.Tick, bytes []byte, priority float32) []Fragment {
	n := (len(bytes) + FragmentThreshold - 1) / FragmentThreshold
	if n == 0 {
		n = 1
	}
	frags := make([]Fragment, 0, n)
	for i := 0; i < n; i++ {
		start := i * FragmentThreshold
		end := start + FragmentThreshold
		if end > len(bytes) {
			end = len(bytes)
		}
		frags = append(frags, Fragment{
			MessageID:    id,
			Tick:         t,
			FragmentID:   uint8(i),
			NumFragments: uint8(n),
			Bytes:        bytes[start:end],
			Priority:     priority,
		})
	}
	return frags
}

// ReassembleFragments concatenates a complete, id-ordered set of fragments
// back into the original message bytes. Caller guarantees all fragments
// for the id have arrived (FragmentID 0..NumFragments-1, each present).
func ReassembleFragments(frags []Fragment) []byte {
	out := make([]byte, 0, len(frags)*FragmentThreshold)
	for _, f := range frags {
		out = append(out, f.Bytes...)
	}
	return out
}
