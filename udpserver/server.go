package udpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-fri/fri"
	"github.com/arloliu/go-fri/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// ExchangeUnit is the view of one received datagram handed to a Consumer.
//
// Data aliases the server's receive buffer and is only valid during the Exchange call.
type ExchangeUnit struct {
	// Peer is the address the datagram came from, the reply goes back to it.
	Peer netip.AddrPort
	// LocalPort is the port the server is bound to.
	LocalPort int
	// Data holds the received bytes.
	Data []byte
	// N is the number of received bytes.
	N int
}

// Consumer produces the reply for each received datagram.
//
// Exchange is called synchronously from the receive loop, so the next datagram is not read
// before it returns. The returned bytes are sent to the peer even if empty.
type Consumer interface {
	Exchange(unit *ExchangeUnit) []byte
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(unit *ExchangeUnit) []byte

// Exchange calls f(unit).
func (f ConsumerFunc) Exchange(unit *ExchangeUnit) []byte {
	return f(unit)
}

// PeerStats holds the datagram statistics of one peer.
type PeerStats struct {
	Peer     netip.AddrPort
	Count    uint64
	LastSeen time.Time
}

type peerEntry struct {
	count    atomic.Uint64
	lastSeen atomic.Int64
}

// Server receives datagrams from the controller and answers each with one reply.
type Server struct {
	cfg      *ServerConfig
	logger   logger.Logger
	consumer Consumer
	conn     net.PacketConn
	port     int
	buf      []byte
	initErr  error
	taskMgr  *fri.TaskManager
	closed   atomic.Bool
	peers    *xsync.MapOf[netip.AddrPort, *peerEntry]
	metrics  ServerMetrics
}

// New binds a datagram socket to port and starts the receive loop.
//
// A bind failure doesn't return an error: the server is returned non-initialized,
// IsInitialized reports false, InitErr reports why, and no I/O ever happens.
func New(ctx context.Context, port int, consumer Consumer, opts ...ServerOption) *Server {
	s := &Server{
		consumer: consumer,
		port:     port,
		peers:    xsync.NewMapOf[netip.AddrPort, *peerEntry](),
	}

	cfg, err := newServerConfig(opts...)
	s.cfg = cfg
	s.logger = cfg.logger.With("component", "udpserver")
	s.taskMgr = fri.NewTaskManager(ctx, s.logger)
	if err != nil {
		s.initErr = err
		s.logger.Error("invalid server option", "method", "New", "error", err)
		return s
	}

	if consumer == nil {
		s.initErr = errors.New("consumer is nil")
		s.logger.Error("server not initialized", "method", "New", "error", s.initErr)
		return s
	}

	conn, err := cfg.listen(ctx, port)
	if err != nil {
		s.initErr = fmt.Errorf("bind port %d: %w", port, err)
		s.logger.Error("failed to bind datagram socket", "method", "New", "port", port, "error", err)
		return s
	}

	s.conn = conn
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		s.port = addr.Port
	}
	s.buf = make([]byte, cfg.bufferSize)

	if err := s.taskMgr.Start("udpReceiver", func(_ context.Context) bool {
		return s.receiveOnce()
	}, nil); err != nil {
		_ = conn.Close()
		s.conn = nil
		s.initErr = err
		return s
	}

	s.logger.Info("datagram server started", "port", s.port, "buffer_size", cfg.bufferSize)

	return s
}

// IsInitialized reports whether the socket was bound.
func (s *Server) IsInitialized() bool {
	return s.initErr == nil
}

// InitErr returns the reason the server is not initialized, or nil.
func (s *Server) InitErr() error {
	return s.initErr
}

// Addr returns the local address of the socket, nil if the server is not initialized.
func (s *Server) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}

	return s.conn.LocalAddr()
}

// Port returns the bound port. It is the actual port when the server was asked to bind port 0.
func (s *Server) Port() int {
	return s.port
}

// GetMetrics returns the metrics of the server.
func (s *Server) GetMetrics() *ServerMetrics {
	return &s.metrics
}

// Peers returns the statistics of every peer seen so far.
func (s *Server) Peers() []PeerStats {
	stats := make([]PeerStats, 0, s.peers.Size())
	s.peers.Range(func(peer netip.AddrPort, e *peerEntry) bool {
		stats = append(stats, PeerStats{
			Peer:     peer,
			Count:    e.count.Load(),
			LastSeen: time.Unix(0, e.lastSeen.Load()),
		})
		return true
	})

	return stats
}

// Close closes the socket and waits for the receive loop to terminate. Close is idempotent.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.conn == nil {
		return nil
	}

	s.taskMgr.Stop()
	err := s.conn.Close()
	s.taskMgr.Wait()

	s.logger.Info("datagram server closed", "port", s.port)

	return err
}

// receiveOnce runs one receive cycle and reports whether the loop continues.
func (s *Server) receiveOnce() bool {
	if s.cfg.readTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.readTimeout))
	}

	n, addr, err := s.conn.ReadFrom(s.buf)
	if err != nil {
		if s.closed.Load() || errors.Is(err, net.ErrClosed) {
			return false
		}

		s.metrics.incRecvErrCount()
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			s.logger.Warn("no datagram within read timeout", "method", "receiveOnce", "timeout", s.cfg.readTimeout)
		} else {
			s.logger.Error("failed to receive datagram", "method", "receiveOnce", "error", err)
		}

		return true
	}

	s.metrics.incRecvCount()
	peer := toAddrPort(addr)
	s.touchPeer(peer)

	unit := &ExchangeUnit{Peer: peer, LocalPort: s.port, Data: s.buf[:n], N: n}
	reply, ok := s.exchange(unit)
	if !ok {
		return true
	}

	if _, err := s.conn.WriteTo(reply, addr); err != nil {
		if s.closed.Load() {
			return false
		}
		s.metrics.incSendErrCount()
		s.logger.Error("failed to send reply", "method", "receiveOnce", "peer", peer, "error", err)

		return true
	}
	s.metrics.incSendCount()

	if s.logger.Level() == logger.DebugLevel {
		s.logger.Debug("datagram exchanged", "peer", peer, "recv_bytes", n, "sent_bytes", len(reply))
	}

	return true
}

// exchange calls the consumer, a panic is recovered and reported as no reply.
func (s *Server) exchange(unit *ExchangeUnit) (reply []byte, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.incCallbackPanicCount()
			s.logger.Error("panic in consumer, no reply sent", "peer", unit.Peer, "panic", r)
			reply, ok = nil, false
		}
	}()

	return s.consumer.Exchange(unit), true
}

func (s *Server) touchPeer(peer netip.AddrPort) {
	e, _ := s.peers.LoadOrCompute(peer, func() *peerEntry { return &peerEntry{} })
	e.count.Add(1)
	e.lastSeen.Store(time.Now().UnixNano())
}

func toAddrPort(addr net.Addr) netip.AddrPort {
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		ap := udpAddr.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}

	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return netip.AddrPort{}
	}

	return ap
}
