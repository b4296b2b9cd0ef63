package netcode

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// ServerState is the server-side per-client handshake state: PendingResponse → Connected → Disconnected.
type ServerState int

const (
	ServerPendingResponse ServerState = iota
	ServerConnected
	ServerDisconnected
)

// ServerConfig holds the shared secrets and identity a server validates
// incoming connect tokens against.
type ServerConfig struct {
	ProtocolID        uint64
	PrivateKey        [keySize]byte // decrypts a token's private section
	ChallengeKey      [keySize]byte // seals/opens ChallengeToken payloads
	Addresses         []ServerAddress
	ClientTimeout     time.Duration // <0 disables
	KeepAliveInterval time.Duration
}

// ServerSession is one connected (or connecting) client as seen by the
// server.
type ServerSession struct {
	Addr     string
	ClientID uint64
	State    ServerState

	c2sKey [keySize]byte
	s2cKey [keySize]byte

	sendSeq uint64
	replay  ReplayWindow

	challengeSeq     uint64
	sentChallenge    []byte
	lastReceived     time.Time
	lastSent         time.Time
	disconnectReason DisconnectReason
}

// Server validates connect tokens and drives the per-client state machines.
type Server struct {
	cfg ServerConfig
}

// NewServer builds a server using cfg.
func NewServer(cfg ServerConfig) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) servesAddress(remote ServerAddress, addrs []ServerAddress) bool {
	for _, a := range addrs {
		if a.Port == remote.Port && a.IP.Equal(remote.IP) {
			return true
		}
	}
	return false
}

// HandleRequest validates an incoming Request packet (the first byte must
// be KindRequest followed by the 2048-byte token) and returns either a
// fresh ServerSession in PendingResponse plus a Challenge reply, or, for
// an invalid token, no session, no reply and ErrTokenInvalid.
// HandleRequest builds no Denied packet itself; DeniedPacket encodes one.
func (s *Server) HandleRequest(data []byte, fromAddr ServerAddress, now time.Time) (*ServerSession, []byte, error) {
	if len(data) != 1+tokenSize || PacketKind(data[0]) != KindRequest {
		return nil, nil, errors.New("netcode: not a connection request")
	}

	token, err := DecodeConnectToken(data[1:])
	if err != nil {
		return nil, nil, err // malformed: drop, no session
	}

	if token.Version != Version {
		return nil, nil, ErrTokenInvalid
	}
	if token.ProtocolID != s.cfg.ProtocolID {
		return nil, nil, ErrTokenInvalid
	}
	if token.ExpireTimestamp <= now.Unix() {
		return nil, nil, ErrTokenInvalid
	}
	if !s.servesAddress(fromAddr, token.ServerAddresses) {
		return nil, nil, ErrTokenInvalid
	}

	plaintext, err := OpenPrivate(s.cfg.PrivateKey, token.Nonce, token.EncryptedPrivate, token.Version, token.ProtocolID, token.ExpireTimestamp)
	if err != nil {
		return nil, nil, ErrTokenInvalid
	}
	private, err := decodePrivate(plaintext)
	if err != nil {
		return nil, nil, ErrTokenInvalid
	}

	sess := &ServerSession{
		Addr:         fromAddr.IP.String(),
		ClientID:     private.ClientID,
		State:        ServerPendingResponse,
		c2sKey:       private.ClientToServerKey,
		s2cKey:       private.ServerToClientKey,
		lastReceived: now,
	}

	challenge := ChallengeToken{ClientID: private.ClientID}
	sealedChallenge, err := sealChallenge(s.cfg.ChallengeKey, sess.challengeSeq, challenge, token.Version, token.ProtocolID)
	if err != nil {
		return nil, nil, err
	}
	sess.sentChallenge = sealedChallenge
	sess.challengeSeq++

	reply, err := sess.encode(KindChallenge, sealedChallenge, token.Version, token.ProtocolID, now)
	if err != nil {
		return nil, nil, err
	}
	return sess, reply, nil
}

// ErrTokenInvalid marks the invalid-connect-token error class.
var ErrTokenInvalid = errors.New("netcode: invalid connect token")

// DeniedPacket encodes a Denied reply. Unlike other non-Request kinds it
// needs no established session: the caller supplies whatever key the
// token's private section decrypted to (if it got that far) or skips
// replying entirely for malformed tokens.
func DeniedPacket(key [keySize]byte, version string, protocolID uint64, now time.Time) ([]byte, error) {
	return encodeNonRequest(KindDenied, 0, key, nil, version, protocolID)
}

func sealChallenge(challengeKey [keySize]byte, seq uint64, token ChallengeToken, version string, protocolID uint64) ([]byte, error) {
	aead, err := chacha20poly1305.New(challengeKey[:])
	if err != nil {
		return nil, err
	}
	nonce := packetNonce(seq)
	ad := packetAD(byte(KindChallenge), version, protocolID)
	return aead.Seal(nil, nonce[:], encodeChallengeToken(token), ad), nil
}

// HandlePacket processes a non-Request packet from an already-known
// session, returning an optional reply and, for a Payload packet, the
// decrypted application bytes it carried (nil for every other kind).
func (s *Server) HandlePacket(sess *ServerSession, data []byte, now time.Time, version string) (reply []byte, appPayload []byte, err error) {
	kind, seq, payload, err := decodeNonRequest(data, sess.c2sKey, version, s.cfg.ProtocolID)
	if err != nil {
		return nil, nil, nil
	}

	if !sess.replay.Accept(seq) {
		return nil, nil, nil
	}

	switch kind {
	case KindResponse:
		if sess.State != ServerPendingResponse {
			return nil, nil, nil
		}
		if string(payload) != string(sess.sentChallenge) {
			return nil, nil, nil // echo mismatch: ignore, let timeout reclaim it
		}
		sess.State = ServerConnected
		sess.lastReceived = now
		reply, err = sess.encode(KindKeepAlive, nil, version, s.cfg.ProtocolID, now)
		return reply, nil, err

	case KindKeepAlive:
		sess.lastReceived = now
		return nil, nil, nil

	case KindPayload:
		sess.lastReceived = now
		return nil, payload, nil

	case KindDisconnect:
		sess.State = ServerDisconnected
		sess.disconnectReason = DisconnectGraceful
		return nil, nil, nil
	}

	return nil, nil, nil
}

// SendKeepAlive builds a KeepAlive packet to a connected session.
func (s *Server) SendKeepAlive(sess *ServerSession, version string, now time.Time) ([]byte, error) {
	return sess.encode(KindKeepAlive, nil, version, s.cfg.ProtocolID, now)
}

// SendPayload wraps application bytes for a connected session.
func (s *Server) SendPayload(sess *ServerSession, version string, bytes []byte, now time.Time) ([]byte, error) {
	return sess.encode(KindPayload, bytes, version, s.cfg.ProtocolID, now)
}

// CheckTimeouts marks sessions as Disconnected (timeout reason) when they
// have gone silent past cfg.ClientTimeout, returning the affected sessions.
func (s *Server) CheckTimeouts(sessions []*ServerSession, now time.Time) []*ServerSession {
	if s.cfg.ClientTimeout < 0 {
		return nil
	}
	var timedOut []*ServerSession
	for _, sess := range sessions {
		if sess.State == ServerDisconnected {
			continue
		}
		if now.Sub(sess.lastReceived) > s.cfg.ClientTimeout {
			sess.State = ServerDisconnected
			sess.disconnectReason = DisconnectTimeout
			timedOut = append(timedOut, sess)
		}
	}
	return timedOut
}

func (sess *ServerSession) encode(kind PacketKind, payload []byte, version string, protocolID uint64, now time.Time) ([]byte, error) {
	seq := sess.sendSeq
	sess.sendSeq++
	sess.lastSent = now
	return encodeNonRequest(kind, seq, sess.s2cKey, payload, version, protocolID)
}
