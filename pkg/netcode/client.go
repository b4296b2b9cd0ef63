package netcode

import (
	"time"

	"github.com/pkg/errors"
)

// ClientState is the client-side handshake state machine:
// Disconnected → SendingConnectionRequest → SendingChallengeResponse →
// Connected → Disconnected.
type ClientState int

const (
	ClientDisconnected ClientState = iota
	ClientSendingConnectionRequest
	ClientSendingChallengeResponse
	ClientConnected
)

// ClientSession drives one client's handshake and, once connected, its
// keep-alive/payload traffic against a single server.
type ClientSession struct {
	ProtocolID uint64
	Token      ConnectToken

	state ClientState

	sendSeq uint64
	replay  ReplayWindow

	challengeEcho []byte // opaque bytes echoed back in Response

	lastSent     time.Time
	lastReceived time.Time

	clientTimeout time.Duration
	disconnectReason DisconnectReason
}

// NewClientSession begins a handshake attempt against the server named in
// token's address list using the shared protocolID.
func NewClientSession(token ConnectToken, protocolID uint64) *ClientSession {
	return &ClientSession{
		ProtocolID:    protocolID,
		Token:         token,
		state:         ClientDisconnected,
		clientTimeout: time.Duration(token.TimeoutSeconds) * time.Second,
	}
}

// State returns the current handshake/connection state.
func (c *ClientSession) State() ClientState { return c.state }

// DisconnectReason returns why the session last disconnected.
func (c *ClientSession) DisconnectReason() DisconnectReason { return c.disconnectReason }

// BuildConnectionRequest returns the Request packet: the raw 2048-byte
// connect token, prefixed with the Request kind byte.
func (c *ClientSession) BuildConnectionRequest(now time.Time) ([]byte, error) {
	raw, err := EncodeConnectToken(c.Token)
	if err != nil {
		return nil, err
	}
	c.state = ClientSendingConnectionRequest
	c.lastSent = now
	buf := make([]byte, 0, 1+len(raw))
	buf = append(buf, byte(KindRequest))
	buf = append(buf, raw...)
	return buf, nil
}

// HandlePacket processes one packet received from the server and returns
// an optional reply to send back plus, for a Payload packet, the decrypted
// application bytes it carried (nil for every other kind). It never panics
// on malformed input; crypto/framing errors are swallowed, except
// TokenInvalid which aborts connect.
func (c *ClientSession) HandlePacket(data []byte, now time.Time) (reply []byte, appPayload []byte, err error) {
	if len(data) == 0 {
		return nil, nil, nil
	}

	kind, seq, payload, err := decodeNonRequest(data, c.Token.ServerToClientKey, c.Token.Version, c.ProtocolID)
	if err != nil {
		return nil, nil, nil // dropped silently (Crypto/ProtocolFraming)
	}

	if kind != KindChallenge && kind != KindKeepAlive && kind != KindPayload && kind != KindDisconnect && kind != KindDenied {
		return nil, nil, nil
	}

	if kind == KindChallenge || kind == KindKeepAlive || kind == KindPayload || kind == KindDisconnect {
		if !c.replay.Accept(seq) {
			return nil, nil, nil // ReplayRejected
		}
	}

	switch kind {
	case KindDenied:
		c.state = ClientDisconnected
		c.disconnectReason = DisconnectTokenInvalid
		return nil, nil, errors.New("netcode: connection denied by server")

	case KindChallenge:
		if c.state != ClientSendingConnectionRequest {
			return nil, nil, nil
		}
		c.challengeEcho = append([]byte(nil), payload...)
		c.state = ClientSendingChallengeResponse
		reply, err = c.encode(KindResponse, c.challengeEcho, now)
		return reply, nil, err

	case KindKeepAlive:
		if c.state == ClientSendingChallengeResponse {
			c.state = ClientConnected
		}
		c.lastReceived = now
		return nil, nil, nil

	case KindPayload:
		c.lastReceived = now
		return nil, payload, nil

	case KindDisconnect:
		c.state = ClientDisconnected
		c.disconnectReason = DisconnectGraceful
		return nil, nil, nil
	}

	return nil, nil, nil
}

// SendKeepAlive builds a KeepAlive packet.
func (c *ClientSession) SendKeepAlive(now time.Time) ([]byte, error) {
	return c.encode(KindKeepAlive, nil, now)
}

// SendPayload wraps application bytes in a Payload packet.
func (c *ClientSession) SendPayload(bytes []byte, now time.Time) ([]byte, error) {
	return c.encode(KindPayload, bytes, now)
}

// SendDisconnect builds one Disconnect packet; callers send a small burst
// of these for graceful teardown.
func (c *ClientSession) SendDisconnect(now time.Time) ([]byte, error) {
	c.state = ClientDisconnected
	c.disconnectReason = DisconnectGraceful
	return c.encode(KindDisconnect, nil, now)
}

func (c *ClientSession) encode(kind PacketKind, payload []byte, now time.Time) ([]byte, error) {
	seq := c.sendSeq
	c.sendSeq++
	c.lastSent = now
	return encodeNonRequest(kind, seq, c.Token.ClientToServerKey, payload, c.Token.Version, c.ProtocolID)
}

// CheckTimeout reports whether the connection has gone silent longer than
// the configured client timeout (negative timeout disables the check).
func (c *ClientSession) CheckTimeout(now time.Time) bool {
	if c.clientTimeout < 0 {
		return false
	}
	if c.lastReceived.IsZero() {
		return now.Sub(c.lastSent) > c.clientTimeout
	}
	return now.Sub(c.lastReceived) > c.clientTimeout
}
