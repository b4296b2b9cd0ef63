package netcode

import (
	"math/bits"

	"github.com/pkg/errors"
)

// PacketKind is the 4-bit wire discriminator for netcode packets.
type PacketKind uint8

const (
	KindRequest PacketKind = iota
	KindDenied
	KindChallenge
	KindResponse
	KindKeepAlive
	KindPayload
	KindDisconnect
)

// DisconnectReason explains why a connection ended.
type DisconnectReason int

const (
	DisconnectUnknown DisconnectReason = iota
	DisconnectTimeout
	DisconnectGraceful
	DisconnectTokenInvalid
	DisconnectServerFull
)

// sequenceLen returns the minimal number of bytes (1..8) needed to encode
// seq, matching the prefix byte's 4-bit length field.
func sequenceLen(seq uint64) int {
	n := (bits.Len64(seq) + 7) / 8
	if n == 0 {
		n = 1
	}
	return n
}

// encodeNonRequest frames a non-Request netcode packet: prefix byte ‖
// sequence (little-endian, minimal length) ‖ AEAD(plaintext).
func encodeNonRequest(kind PacketKind, sequence uint64, key [keySize]byte, plaintext []byte, version string, protocolID uint64) ([]byte, error) {
	n := sequenceLen(sequence)
	prefix := byte(n<<4) | byte(kind)

	ct, err := sealPacket(key, sequence, prefix, plaintext, version, protocolID)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 1+n+len(ct))
	buf = append(buf, prefix)
	for i := 0; i < n; i++ {
		buf = append(buf, byte(sequence>>(8*uint(i))))
	}
	buf = append(buf, ct...)
	return buf, nil
}

// decodeNonRequest reverses encodeNonRequest.
func decodeNonRequest(data []byte, key [keySize]byte, version string, protocolID uint64) (PacketKind, uint64, []byte, error) {
	if len(data) < 1 {
		return 0, 0, nil, errors.New("netcode: empty packet")
	}
	prefix := data[0]
	kind := PacketKind(prefix & 0x0F)
	n := int(prefix >> 4)
	if n < 1 || n > 8 {
		return 0, 0, nil, errors.New("netcode: invalid sequence length")
	}
	if len(data) < 1+n {
		return 0, 0, nil, errors.New("netcode: truncated sequence")
	}

	var seq uint64
	for i := 0; i < n; i++ {
		seq |= uint64(data[1+i]) << (8 * uint(i))
	}

	pt, err := openPacket(key, seq, prefix, data[1+n:], version, protocolID)
	if err != nil {
		return 0, 0, nil, err
	}
	return kind, seq, pt, nil
}
