package netcode

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// field offsets.
const (
	offVersion    = 0
	offProtocolID = 13
	offCreate     = 21
	offExpire     = 29
	offNonce      = 37
	offPrivate    = 61
	offTimeout    = 1085
	offAddrList   = 1089
)

// EncodeConnectToken serializes a ConnectToken to its fixed 2048-byte wire
// form. EncryptedPrivate must already be sealed (SealPrivate).
func EncodeConnectToken(t ConnectToken) ([]byte, error) {
	if len(t.EncryptedPrivate) != privateSectionSz {
		return nil, errors.Errorf("netcode: encrypted private section must be %d bytes, got %d", privateSectionSz, len(t.EncryptedPrivate))
	}
	buf := make([]byte, tokenSize)
	copy(buf[offVersion:], []byte(Version))
	binary.LittleEndian.PutUint64(buf[offProtocolID:], t.ProtocolID)
	binary.LittleEndian.PutUint64(buf[offCreate:], uint64(t.CreateTimestamp))
	binary.LittleEndian.PutUint64(buf[offExpire:], uint64(t.ExpireTimestamp))
	copy(buf[offNonce:], t.Nonce[:])
	copy(buf[offPrivate:], t.EncryptedPrivate)
	binary.LittleEndian.PutUint32(buf[offTimeout:], uint32(t.TimeoutSeconds))

	addrBytes, err := encodeAddressList(t.ServerAddresses)
	if err != nil {
		return nil, err
	}
	off := offAddrList
	copy(buf[off:], addrBytes)
	off += len(addrBytes)
	copy(buf[off:], t.ClientToServerKey[:])
	off += keySize
	copy(buf[off:], t.ServerToClientKey[:])

	return buf, nil
}

// DecodeConnectToken parses the fixed-layout 2048-byte blob. It does not
// decrypt the private section; call OpenPrivate separately once the
// version/protocol id/expiry have been validated.
func DecodeConnectToken(data []byte) (ConnectToken, error) {
	if len(data) != tokenSize {
		return ConnectToken{}, errors.Errorf("netcode: connect token must be %d bytes, got %d", tokenSize, len(data))
	}
	var t ConnectToken
	t.Version = string(data[offVersion : offVersion+versionSize])
	t.ProtocolID = binary.LittleEndian.Uint64(data[offProtocolID:])
	t.CreateTimestamp = int64(binary.LittleEndian.Uint64(data[offCreate:]))
	t.ExpireTimestamp = int64(binary.LittleEndian.Uint64(data[offExpire:]))
	copy(t.Nonce[:], data[offNonce:offNonce+tokenNonceSize])
	t.EncryptedPrivate = append([]byte(nil), data[offPrivate:offPrivate+privateSectionSz]...)
	t.TimeoutSeconds = int32(binary.LittleEndian.Uint32(data[offTimeout:]))

	addrs, n, err := decodeAddressList(data[offAddrList:])
	if err != nil {
		return ConnectToken{}, err
	}
	t.ServerAddresses = addrs
	off := offAddrList + n
	if off+keySize*2 > len(data) {
		return ConnectToken{}, errors.New("netcode: token truncated at key section")
	}
	copy(t.ClientToServerKey[:], data[off:off+keySize])
	off += keySize
	copy(t.ServerToClientKey[:], data[off:off+keySize])

	return t, nil
}

// GenerateConnectToken mints a fresh connect token for clientID, valid for
// validFor, signed with serverKey. The two per-connection keys are drawn
// fresh from the CSPRNG.
func GenerateConnectToken(clientID uint64, protocolID uint64, serverAddrs []ServerAddress, validFor, timeoutSeconds int64, serverKey [keySize]byte) (ConnectToken, error) {
	c2s, err := randomKey()
	if err != nil {
		return ConnectToken{}, err
	}
	s2c, err := randomKey()
	if err != nil {
		return ConnectToken{}, err
	}
	nonce, err := randomNonce()
	if err != nil {
		return ConnectToken{}, err
	}

	now := Now().Unix()
	expire := now + validFor

	private := ConnectTokenPrivate{
		ClientID:          clientID,
		TimeoutSeconds:    int32(timeoutSeconds),
		ServerAddresses:   serverAddrs,
		ClientToServerKey: c2s,
		ServerToClientKey: s2c,
	}
	plaintext, err := encodePrivate(private)
	if err != nil {
		return ConnectToken{}, err
	}
	sealed, err := SealPrivate(serverKey, nonce, plaintext, Version, protocolID, expire)
	if err != nil {
		return ConnectToken{}, err
	}

	return ConnectToken{
		Version:           Version,
		ProtocolID:        protocolID,
		CreateTimestamp:   now,
		ExpireTimestamp:   expire,
		Nonce:             nonce,
		EncryptedPrivate:  sealed,
		TimeoutSeconds:    int32(timeoutSeconds),
		ServerAddresses:   serverAddrs,
		ClientToServerKey: c2s,
		ServerToClientKey: s2c,
	}, nil
}
