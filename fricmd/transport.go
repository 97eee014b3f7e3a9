package fricmd

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-fri/fri"
	"github.com/arloliu/go-fri/internal/util"
	"github.com/arloliu/go-fri/logger"
)

// Transport is the reliable, ordered byte stream a Channel runs its protocol on.
//
// A Channel exclusively owns its transport: it is closed when the session is released,
// after the link is lost, or when the channel is closed.
type Transport interface {
	// Send writes b to the stream.
	Send(b []byte) error
	// Close closes the stream. It must be idempotent and must not invoke OnConnectionLost.
	Close() error
	// RemoteAddr returns the address of the controller.
	RemoteAddr() net.Addr
}

// TransportHandlers are the callbacks a Transport invokes from its own receive context.
type TransportHandlers struct {
	// OnReceive is called with every received chunk. The slice is owned by the callee.
	OnReceive func(b []byte)
	// OnConnectionLost is called at most once when the stream fails without a local Close.
	OnConnectionLost func(host string, port int)
}

// Dialer opens a Transport to host:port. ctx bounds the opening only, not the
// lifetime of the returned transport.
type Dialer func(ctx context.Context, host string, port int, handlers TransportHandlers) (Transport, error)

const transportCloseWait = 3 * time.Second

// TCPTransport is the default Transport, a TCP connection with a receiver task.
type TCPTransport struct {
	conn     net.Conn
	host     string
	port     int
	handlers TransportHandlers
	logger   logger.Logger
	taskMgr  *fri.TaskManager
	writeMu  sync.Mutex
	closed   atomic.Bool
	lostOnce sync.Once
}

var _ Transport = (*TCPTransport)(nil)

// TCPDialer returns a Dialer opening TCPTransports. Received bytes are delivered in chunks
// of at most recvBufferSize bytes.
func TCPDialer(recvBufferSize int, l logger.Logger) Dialer {
	if l == nil {
		l = logger.GetLogger()
	}

	return func(ctx context.Context, host string, port int, handlers TransportHandlers) (Transport, error) {
		address := net.JoinHostPort(host, strconv.Itoa(port))
		dialer := &net.Dialer{KeepAlive: 30 * time.Second}

		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			l.Debug("failed to dial controller", "address", address, "error", err)
			return nil, err
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			// commands are tiny and latency matters more than throughput
			_ = tcpConn.SetNoDelay(true)
		}

		return newTCPTransport(conn, host, port, recvBufferSize, handlers, l)
	}
}

func newTCPTransport(conn net.Conn, host string, port int, bufSize int, handlers TransportHandlers, l logger.Logger) (*TCPTransport, error) {
	t := &TCPTransport{
		conn:     conn,
		host:     host,
		port:     port,
		handlers: handlers,
		logger:   l.With("remote_addr", conn.RemoteAddr().String()),
		taskMgr:  fri.NewTaskManager(context.Background(), l),
	}

	buf := make([]byte, bufSize)
	err := t.taskMgr.Start("tcpReceiver", func(_ context.Context) bool {
		return t.receiverTask(buf)
	}, nil)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	t.logger.Debug("transport opened", "local_addr", conn.LocalAddr().String())

	return t, nil
}

// Send writes b to the connection.
func (t *TCPTransport) Send(b []byte) error {
	if t.closed.Load() {
		return net.ErrClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_, err := t.conn.Write(b)

	return err
}

// Close closes the connection and waits for the receiver task to terminate.
//
// Close must not be called from the OnReceive or OnConnectionLost callbacks.
func (t *TCPTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.taskMgr.Stop()
	if tcpConn, ok := t.conn.(*net.TCPConn); ok {
		_ = tcpConn.SetLinger(0)
	}
	err := t.conn.Close()
	t.taskMgr.WaitTimeout(transportCloseWait)
	t.logger.Debug("transport closed")

	return err
}

// RemoteAddr returns the address of the controller.
func (t *TCPTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// receiverTask reads one chunk and hands it to OnReceive.
func (t *TCPTransport) receiverTask(buf []byte) bool {
	n, err := t.conn.Read(buf)
	if n > 0 && t.handlers.OnReceive != nil {
		t.handlers.OnReceive(util.CloneSlice(buf[:n], 0))
	}

	if err == nil {
		return true
	}

	if t.closed.Load() {
		return false
	}

	if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		t.logger.Error("failed to read from controller", "method", "receiverTask", "error", err)
	}

	t.lostOnce.Do(func() {
		t.logger.Warn("link to controller lost", "method", "receiverTask", "error", err)
		if t.handlers.OnConnectionLost != nil {
			t.handlers.OnConnectionLost(t.host, t.port)
		}
	})

	return false
}
