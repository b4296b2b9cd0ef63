package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tickwire/netcode/pkg/tick"
)

func mkID(v MessageID) *MessageID { return &v }
func mkTick(v tick.Tick) *tick.Tick { return &v }

func TestEncodeDecodeRoundTripSingle(t *testing.T) {
	p := Packet{
		Header: Header{
			Type:        PacketTypeData,
			PacketID:    42,
			LastAckID:   41,
			AckBitfield: 0xF0F0F0F0,
			Tick:        1000,
		},
		Channels: []ChannelMessages{
			{
				Channel: 1,
				Messages: []Message{
					{ID: mkID(5), Tick: mkTick(1000), Bytes: []byte("hello"), Priority: 1.0},
					{Bytes: []byte("world")},
				},
			},
			{Channel: 2, Messages: nil},
		},
	}

	raw, err := Encode(p)
	require.NoError(t, err)
	require.LessOrEqual(t, len(raw), MTUPayload)

	got, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, p.Header, got.Header)
	require.Len(t, got.Channels, 2)
	require.Equal(t, ChannelID(1), got.Channels[0].Channel)
	require.Len(t, got.Channels[0].Messages, 2)
	require.Equal(t, []byte("hello"), got.Channels[0].Messages[0].Bytes)
	require.Equal(t, MessageID(5), *got.Channels[0].Messages[0].ID)
	require.Equal(t, tick.Tick(1000), *got.Channels[0].Messages[0].Tick)
	require.Nil(t, got.Channels[0].Messages[1].ID)
	require.Empty(t, got.Channels[1].Messages)
}

func TestEncodeDecodeEmptyPacket(t *testing.T) {
	p := Packet{Header: Header{Type: PacketTypeData, Tick: 7}}
	raw, err := Encode(p)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	require.Empty(t, got.Channels)
}

func TestFragmentationAndReassembly(t *testing.T) {
	payload := make([]byte, 1800)
	for i := range payload {
		payload[i] = byte(i)
	}
	frags := SplitMessage(9, nil, payload, 1.0)
	require.Len(t, frags, 2)
	require.Equal(t, uint8(0), frags[0].FragmentID)
	require.Equal(t, uint8(1), frags[1].FragmentID)
	require.Equal(t, uint8(2), frags[0].NumFragments)

	got := ReassembleFragments(frags)
	require.Equal(t, payload, got)
}

func TestEncodeDecodeFragmentedPacketRoundTrip(t *testing.T) {
	payload := make([]byte, 200)
	for i := range payload {
		payload[i] = byte(i)
	}
	frag := Fragment{MessageID: 3, FragmentID: 0, NumFragments: 1, Bytes: payload}

	p := Packet{
		Header:      Header{Type: PacketTypeDataFragment, PacketID: 1, Tick: 2},
		FragChannel: 4,
		Frag:        frag,
		Tail: []ChannelMessages{
			{Channel: 0, Messages: []Message{{Bytes: []byte("tail")}}},
		},
	}

	raw, err := Encode(p)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, ChannelID(4), got.FragChannel)
	require.Equal(t, payload, got.Frag.Bytes)
	require.Len(t, got.Tail, 1)
	require.Equal(t, []byte("tail"), got.Tail[0].Messages[0].Bytes)
}

func TestEncodeRejectsOverMTU(t *testing.T) {
	p := Packet{
		Header: Header{Type: PacketTypeData},
		Channels: []ChannelMessages{
			{Channel: 0, Messages: []Message{{Bytes: make([]byte, MTUPayload+100)}}},
		},
	}
	_, err := Encode(p)
	require.Error(t, err)
}

func TestDecodeShortBufferErrors(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01})
	require.Error(t, err)
}
