// Command client is a thin netcode client: it loads a connect token issued
// out of band, performs the request/challenge/response handshake against
// the server named in the token, then holds the connection open with
// periodic keep-alives until interrupted, tearing down with a graceful
// disconnect burst.
package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tickwire/netcode/internal/config"
	"github.com/tickwire/netcode/internal/logging"
	"github.com/tickwire/netcode/pkg/message"
	"github.com/tickwire/netcode/pkg/netcode"
	"github.com/tickwire/netcode/pkg/priority"
	"github.com/tickwire/netcode/pkg/tick"
)

const appVersion = "0.1.0"

var (
	errConnectTimeout = errors.New("client: handshake did not complete before the timeout")
	errServerTimeout  = errors.New("client: server went silent past client_timeout")
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	tokenPath := flag.String("token", "", "path to a connect token file (required)")
	debug := flag.Bool("debug", false, "enable development logging")
	flag.Parse()

	if *tokenPath == "" {
		panic("client: -token is required")
	}

	logging.Banner("tickwire netcode client", appVersion)

	log, err := logging.New(*debug)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	tokenBytes, err := os.ReadFile(*tokenPath)
	if err != nil {
		log.Fatal("failed to read connect token", zap.Error(err))
	}
	token, err := netcode.DecodeConnectToken(tokenBytes)
	if err != nil {
		log.Fatal("failed to decode connect token", zap.Error(err))
	}
	if len(token.ServerAddresses) == 0 {
		log.Fatal("connect token carries no server addresses")
	}

	c, err := newClient(cfg, log, token)
	if err != nil {
		log.Fatal("client init failed", zap.Error(err))
	}
	defer c.Close()

	if err := c.Connect(); err != nil {
		log.Fatal("connect failed", zap.Error(err))
	}
	logging.Success(log, "connected", zap.String("server", token.ServerAddresses[0].IP.String()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	errChan := make(chan error, 1)
	go func() {
		if err := c.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		log.Warn("connection lost", zap.Error(err))
	case sig := <-sigChan:
		log.Info("received signal, disconnecting", zap.String("signal", sig.String()))
		c.Disconnect(cfg.DisconnectPacketCount, cfg.DisconnectPacketGap)
	}
}

// client wires a netcode handshake/session, a fixed-rate tick manager, and
// the channel message manager into one connection to a single server.
type client struct {
	cfg   config.Config
	log   *zap.Logger
	token netcode.ConnectToken

	conn    *net.UDPConn
	session *netcode.ClientSession
	message *message.Manager
	tickMgr *tick.Manager

	running bool
}

func newClient(cfg config.Config, log *zap.Logger, token netcode.ConnectToken) (*client, error) {
	return &client{
		cfg:     cfg,
		log:     log,
		token:   token,
		session: netcode.NewClientSession(token, cfg.ProtocolID),
		message: message.NewManager(message.RoleClient, priority.NewManager(cfg.BandwidthBytesPerSecond, cfg.BandwidthBurstBytes), log),
		tickMgr: tick.NewManager(cfg.TickDuration()),
	}, nil
}

// Connect dials the first address in the token's server list and drives
// the handshake to completion or until the token expires.
func (c *client) Connect() error {
	addr := c.token.ServerAddresses[0]
	udpAddr := &net.UDPAddr{IP: addr.IP, Port: int(addr.Port)}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return err
	}
	c.conn = conn

	req, err := c.session.BuildConnectionRequest(time.Now())
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(req); err != nil {
		return err
	}

	deadline := time.Unix(c.token.ExpireTimestamp, 0)
	buf := make([]byte, 2048)
	c.conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		n, err := c.conn.Read(buf)
		if err != nil {
			continue
		}
		reply, _, err := c.session.HandlePacket(buf[:n], time.Now())
		if err != nil {
			return err
		}
		if reply != nil {
			if _, err := c.conn.Write(reply); err != nil {
				return err
			}
		}
		if c.session.State() == netcode.ClientConnected {
			c.conn.SetReadDeadline(time.Time{})
			c.running = true
			return nil
		}
	}
	return errConnectTimeout
}

// Run holds the connection open: it reads incoming packets, routes channel
// messages, and sends a keep-alive on every KeepAliveInterval, until the
// connection drops or the caller calls Disconnect.
func (c *client) Run() error {
	buf := make([]byte, 2048)
	keepAlive := time.NewTicker(c.cfg.KeepAliveInterval)
	defer keepAlive.Stop()

	go func() {
		for c.running {
			n, err := c.conn.Read(buf)
			if err != nil {
				continue
			}
			data := append([]byte(nil), buf[:n]...)
			reply, payload, err := c.session.HandlePacket(data, time.Now())
			if err != nil {
				c.log.Warn("session rejected packet", zap.Error(err))
				c.running = false
				return
			}
			if reply != nil {
				c.conn.Write(reply)
			}
			if payload != nil {
				if _, err := c.message.RecvPacket(payload); err != nil {
					c.log.Debug("message decode failed", zap.Error(err))
				}
			}
		}
	}()

	for c.running {
		<-keepAlive.C
		if c.session.CheckTimeout(time.Now()) {
			return errServerTimeout
		}
		msg, err := c.session.SendKeepAlive(time.Now())
		if err != nil {
			return err
		}
		if _, err := c.conn.Write(msg); err != nil {
			return err
		}
		c.tickMgr.Advance(c.cfg.TickDuration())
	}
	return nil
}

// Disconnect sends a burst of Disconnect packets (UDP gives no delivery
// guarantee, so one lone packet can easily be lost) spaced by gap, then
// stops the read loop.
func (c *client) Disconnect(count int, gap time.Duration) {
	c.running = false
	for i := 0; i < count; i++ {
		msg, err := c.session.SendDisconnect(time.Now())
		if err != nil {
			return
		}
		c.conn.Write(msg)
		time.Sleep(gap)
	}
}

func (c *client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
