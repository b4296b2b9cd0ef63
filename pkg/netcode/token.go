// Package netcode implements the UDP-level connect handshake,
// per-packet encryption, replay protection and keep-alive that sit
// beneath the channel/message layer. Grounded on a RakNet-style
// session/state-constant shape, generalized from an open-connection
// handshake to an encrypted connect-token scheme.
package netcode

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Version is the fixed 13-byte protocol version string written at the
// start of every connect token.
const Version = "NETCODE 1.02\x00"

const (
	versionSize      = 13
	privateSectionSz = 1024
	tokenSize        = 2048
	addrListMax      = 32
	userDataSize     = 256
	keySize          = 32
	tokenNonceSize   = 24 // XChaCha20-Poly1305
	macSize          = 16
)

// ServerAddress is one entry of a connect token's server address list.
type ServerAddress struct {
	IP   net.IP
	Port uint16
}

// ConnectTokenPrivate is the plaintext of a connect token's encrypted
// private section.
type ConnectTokenPrivate struct {
	ClientID        uint64
	TimeoutSeconds  int32
	ServerAddresses []ServerAddress
	ClientToServerKey [keySize]byte
	ServerToClientKey [keySize]byte
	UserData        [userDataSize]byte
}

// ConnectToken is the full 2048-byte blob a client presents to connect.
type ConnectToken struct {
	Version          string
	ProtocolID       uint64
	CreateTimestamp  int64
	ExpireTimestamp  int64
	Nonce            [tokenNonceSize]byte
	EncryptedPrivate []byte // privateSectionSz bytes (plaintext + 16-byte MAC = 1024)
	TimeoutSeconds   int32
	ServerAddresses  []ServerAddress
	ClientToServerKey [keySize]byte
	ServerToClientKey [keySize]byte
}

// privateAD returns the additional data bound to the private section's
// AEAD seal.
func privateAD(version string, protocolID uint64, expire int64) []byte {
	ad := make([]byte, 0, versionSize+8+8)
	ad = append(ad, []byte(version)...)
	ad = appendU64(ad, protocolID)
	ad = appendU64(ad, uint64(expire))
	return ad
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func encodeAddressList(addrs []ServerAddress) ([]byte, error) {
	if len(addrs) == 0 || len(addrs) > addrListMax {
		return nil, errors.Errorf("netcode: address list must have 1..%d entries, got %d", addrListMax, len(addrs))
	}
	buf := make([]byte, 0, 4+len(addrs)*19)
	var cnt [4]byte
	binary.LittleEndian.PutUint32(cnt[:], uint32(len(addrs)))
	buf = append(buf, cnt[:]...)
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			buf = append(buf, 1)
			buf = append(buf, v4...)
		} else {
			buf = append(buf, 2)
			buf = append(buf, a.IP.To16()...)
		}
		var port [2]byte
		binary.LittleEndian.PutUint16(port[:], a.Port)
		buf = append(buf, port[:]...)
	}
	return buf, nil
}

func decodeAddressList(data []byte) ([]ServerAddress, int, error) {
	if len(data) < 4 {
		return nil, 0, errors.New("netcode: address list truncated")
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	if count == 0 || count > addrListMax {
		return nil, 0, errors.Errorf("netcode: invalid address count %d", count)
	}
	off := 4
	addrs := make([]ServerAddress, 0, count)
	for i := uint32(0); i < count; i++ {
		if off >= len(data) {
			return nil, 0, errors.New("netcode: address list truncated")
		}
		family := data[off]
		off++
		var ip net.IP
		switch family {
		case 1:
			if off+4 > len(data) {
				return nil, 0, errors.New("netcode: address list truncated")
			}
			ip = net.IP(append([]byte(nil), data[off:off+4]...))
			off += 4
		case 2:
			if off+16 > len(data) {
				return nil, 0, errors.New("netcode: address list truncated")
			}
			ip = net.IP(append([]byte(nil), data[off:off+16]...))
			off += 16
		default:
			return nil, 0, errors.Errorf("netcode: unknown address family %d", family)
		}
		if off+2 > len(data) {
			return nil, 0, errors.New("netcode: address list truncated")
		}
		port := binary.LittleEndian.Uint16(data[off : off+2])
		off += 2
		addrs = append(addrs, ServerAddress{IP: ip, Port: port})
	}
	return addrs, off, nil
}

// encodePrivate serializes the private-section plaintext: client_id,
// timeout_seconds, server_addresses, c2s_key, s2c_key, user_data.
func encodePrivate(p ConnectTokenPrivate) ([]byte, error) {
	buf := make([]byte, 0, privateSectionSz-macSize)
	buf = appendU64(buf, p.ClientID)
	var to [4]byte
	binary.LittleEndian.PutUint32(to[:], uint32(p.TimeoutSeconds))
	buf = append(buf, to[:]...)

	addrBytes, err := encodeAddressList(p.ServerAddresses)
	if err != nil {
		return nil, err
	}
	buf = append(buf, addrBytes...)
	buf = append(buf, p.ClientToServerKey[:]...)
	buf = append(buf, p.ServerToClientKey[:]...)
	buf = append(buf, p.UserData[:]...)

	if len(buf) > privateSectionSz-macSize {
		return nil, errors.New("netcode: private section plaintext too large")
	}
	padded := make([]byte, privateSectionSz-macSize)
	copy(padded, buf)
	return padded, nil
}

func decodePrivate(data []byte) (ConnectTokenPrivate, error) {
	var p ConnectTokenPrivate
	if len(data) < 8+4 {
		return p, errors.New("netcode: private section truncated")
	}
	p.ClientID = binary.LittleEndian.Uint64(data[0:8])
	p.TimeoutSeconds = int32(binary.LittleEndian.Uint32(data[8:12]))

	addrs, n, err := decodeAddressList(data[12:])
	if err != nil {
		return p, err
	}
	p.ServerAddresses = addrs
	off := 12 + n

	if off+keySize*2+userDataSize > len(data) {
		return p, errors.New("netcode: private section truncated")
	}
	copy(p.ClientToServerKey[:], data[off:off+keySize])
	off += keySize
	copy(p.ServerToClientKey[:], data[off:off+keySize])
	off += keySize
	copy(p.UserData[:], data[off:off+userDataSize])

	return p, nil
}

// Now returns the current time; a package var so tests can stub it.
var Now = time.Now
