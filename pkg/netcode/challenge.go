package netcode

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ChallengeToken is the opaque payload a server seals into a Challenge
// packet and the client echoes back verbatim inside Response. It carries no server secret state beyond what the per-server
// challenge key protects.
type ChallengeToken struct {
	ClientID uint64
	UserData [userDataSize]byte
}

const challengeTokenPlainSize = 8 + userDataSize

func encodeChallengeToken(c ChallengeToken) []byte {
	buf := make([]byte, challengeTokenPlainSize)
	binary.LittleEndian.PutUint64(buf[0:8], c.ClientID)
	copy(buf[8:], c.UserData[:])
	return buf
}

func decodeChallengeToken(data []byte) (ChallengeToken, error) {
	if len(data) != challengeTokenPlainSize {
		return ChallengeToken{}, errors.New("netcode: malformed challenge token")
	}
	var c ChallengeToken
	c.ClientID = binary.LittleEndian.Uint64(data[0:8])
	copy(c.UserData[:], data[8:])
	return c, nil
}
