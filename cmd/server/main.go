// Command server wires tick/netcode/message (with the priority gate and
// metrics) into one authoritative game server: banner, config load, signal handling and
// graceful shutdown, with a listen/updateLoop/sessionCleanupLoop
// goroutine layout.
package main

import (
	"crypto/rand"
	"flag"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tickwire/netcode/internal/config"
	"github.com/tickwire/netcode/internal/logging"
	"github.com/tickwire/netcode/internal/metrics"
	"github.com/tickwire/netcode/pkg/message"
	"github.com/tickwire/netcode/pkg/netcode"
	"github.com/tickwire/netcode/pkg/priority"
	"github.com/tickwire/netcode/pkg/tick"
)

const appVersion = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	debug := flag.Bool("debug", false, "enable development logging")
	flag.Parse()

	logging.Banner("tickwire netcode server", appVersion)

	log, err := logging.New(*debug)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}
	logging.Success(log, "configuration loaded",
		zap.String("host", cfg.Host), zap.Int("port", cfg.Port),
		zap.Int("max_players", cfg.MaxPlayers), zap.Int("tick_rate", cfg.TickRate))

	reg := metrics.New(prometheus.DefaultRegisterer)

	srv, err := newServer(cfg, log, reg)
	if err != nil {
		log.Fatal("server init failed", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		log.Fatal("server error", zap.Error(err))
	case sig := <-sigChan:
		log.Warn("received signal", zap.String("signal", sig.String()))
		log.Info("shutting down gracefully")
		srv.Stop()
		time.Sleep(1 * time.Second)
		logging.Success(log, "server stopped")
	}
}

// session bundles the per-client netcode/message state a connected
// client needs: one entry per protocol layer instead of one flat struct.
type session struct {
	netcode *netcode.ServerSession
	message *message.Manager
}

// server owns the UDP socket and every connected session.
type server struct {
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.Registry

	netcodeSrv *netcode.Server
	privateKey [32]byte

	conn    *net.UDPConn
	running bool

	mu       sync.RWMutex
	sessions map[uint64]*session
	byAddr   map[string]*session

	tickMgr *tick.Manager
}

func newServer(cfg config.Config, log *zap.Logger, reg *metrics.Registry) (*server, error) {
	var privateKey, challengeKey [32]byte
	if _, err := rand.Read(privateKey[:]); err != nil {
		return nil, err
	}
	if _, err := rand.Read(challengeKey[:]); err != nil {
		return nil, err
	}

	netcodeSrv := netcode.NewServer(netcode.ServerConfig{
		ProtocolID:        cfg.ProtocolID,
		PrivateKey:        privateKey,
		ChallengeKey:      challengeKey,
		ClientTimeout:     cfg.ClientTimeout,
		KeepAliveInterval: cfg.KeepAliveInterval,
	})

	return &server{
		cfg:        cfg,
		log:        log,
		metrics:    reg,
		netcodeSrv: netcodeSrv,
		privateKey: privateKey,
		sessions:   make(map[uint64]*session),
		byAddr:     make(map[string]*session),
		tickMgr:    tick.NewManager(cfg.TickDuration()),
	}, nil
}

func (s *server) Start() error {
	addr := &net.UDPAddr{IP: net.ParseIP(s.cfg.Host), Port: s.cfg.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	s.conn = conn
	s.running = true

	s.log.Info("listening for packets", zap.String("addr", addr.String()))

	go s.updateLoop()
	go s.sessionCleanupLoop()

	return s.listen()
}

func (s *server) Stop() {
	s.running = false
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *server) listen() error {
	buf := make([]byte, 2048)
	for s.running {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.running {
				s.log.Warn("udp read error", zap.Error(err))
			}
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		remote := netcode.ServerAddress{IP: addr.IP, Port: uint16(addr.Port)}
		go s.handlePacket(data, remote)
	}
	return nil
}

func (s *server) handlePacket(data []byte, remote netcode.ServerAddress) {
	now := time.Now()

	if netcode.PacketKind(data[0]) == netcode.KindRequest {
		s.handleConnectionRequest(data, remote, now)
		return
	}

	s.mu.RLock()
	matched := s.byAddr[remote.IP.String()]
	s.mu.RUnlock()
	if matched == nil {
		return
	}

	reply, payload, err := s.netcodeSrv.HandlePacket(matched.netcode, data, now, netcode.Version)
	if err != nil {
		s.log.Debug("packet rejected", zap.Error(err), zap.String("addr", remote.IP.String()))
		return
	}
	if reply != nil {
		s.send(remote, reply)
	}
	if payload != nil {
		if _, err := matched.message.RecvPacket(payload); err != nil {
			s.log.Debug("message decode failed", zap.Error(err), zap.String("addr", remote.IP.String()))
		}
	}
}

func (s *server) handleConnectionRequest(data []byte, remote netcode.ServerAddress, now time.Time) {
	sess, reply, err := s.netcodeSrv.HandleRequest(data, remote, now)
	if err != nil {
		s.log.Debug("connection request rejected", zap.Error(err))
		return
	}

	s.mu.Lock()
	if len(s.sessions) >= s.cfg.MaxPlayers {
		s.mu.Unlock()
		s.log.Warn("server full, rejecting connection", zap.Uint64("client_id", sess.ClientID))
		return
	}
	entry := &session{
		netcode: sess,
		message: message.NewManager(message.RoleServer, priority.NewManager(s.cfg.BandwidthBytesPerSecond, s.cfg.BandwidthBurstBytes), s.log),
	}
	s.sessions[sess.ClientID] = entry
	s.byAddr[remote.IP.String()] = entry
	s.mu.Unlock()
	s.metrics.SetConnectedPeers(len(s.sessions))

	s.log.Info("client connecting", zap.Uint64("client_id", sess.ClientID), zap.String("addr", remote.IP.String()))
	if reply != nil {
		s.send(remote, reply)
	}
}

func (s *server) send(remote netcode.ServerAddress, data []byte) {
	addr := &net.UDPAddr{IP: remote.IP, Port: int(remote.Port)}
	if _, err := s.conn.WriteToUDP(data, addr); err != nil {
		s.log.Debug("udp write error", zap.Error(err))
	}
}

func (s *server) updateLoop() {
	ticker := time.NewTicker(s.cfg.TickDuration())
	defer ticker.Stop()

	for s.running {
		<-ticker.C
		s.tickMgr.Advance(s.cfg.TickDuration())
	}
}

func (s *server) sessionCleanupLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for s.running {
		<-ticker.C
		s.mu.Lock()
		var all []*netcode.ServerSession
		for _, sess := range s.sessions {
			all = append(all, sess.netcode)
		}
		timedOut := s.netcodeSrv.CheckTimeouts(all, time.Now())
		for _, sess := range timedOut {
			delete(s.sessions, sess.ClientID)
			delete(s.byAddr, sess.Addr)
			s.metrics.SessionTimedOut()
		}
		count := len(s.sessions)
		s.mu.Unlock()
		s.metrics.SetConnectedPeers(count)
	}
}
