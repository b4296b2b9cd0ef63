package channel

import "github.com/tickwire/netcode/pkg/codec"

func codecMessageID(id uint16) codec.MessageID { return codec.MessageID(id) }

func fragPtr(id uint8) *uint8 {
	v := id
	return &v
}

func toCodecFragment(msg ReceivedMessage) codec.Fragment {
	return codec.Fragment{
		MessageID:    codec.MessageID(msg.FragMsgID),
		Tick:         msg.Tick,
		FragmentID:   msg.FragmentID,
		NumFragments: msg.NumFrags,
		Bytes:        msg.Bytes,
	}
}
