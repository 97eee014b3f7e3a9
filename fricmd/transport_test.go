package fricmd

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-fri/fri"
	"github.com/arloliu/go-fri/logger"
	"github.com/stretchr/testify/require"
)

// testController is a TCP controller answering every command with an accepted outcome.
type testController struct {
	ln       net.Listener
	accepted chan net.Conn
}

func newTestController(t *testing.T) *testController {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	tc := &testController{ln: ln, accepted: make(chan net.Conn, 4)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			tc.accepted <- conn
		}
	}()

	return tc
}

func (tc *testController) port() int {
	return tc.ln.Addr().(*net.TCPAddr).Port
}

func (tc *testController) nextConn(t *testing.T) net.Conn {
	t.Helper()

	select {
	case conn := <-tc.accepted:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no connection accepted")
		return nil
	}
}

// serveAcceptAll answers each command read from conn until the connection fails.
func serveAcceptAll(conn net.Conn) {
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		cmd, err := fri.DecodeCommand(buf[:n])
		if err != nil {
			return
		}
		if _, err := conn.Write(fri.NewAccepted(cmd.ID, true).ToBytes()); err != nil {
			return
		}
	}
}

func TestTCPTransport_SendReceive(t *testing.T) {
	require := require.New(t)

	tc := newTestController(t)

	received := make(chan []byte, 4)
	var lost atomic.Int32
	dial := TCPDialer(64, logger.GetLogger())
	tr, err := dial(context.Background(), "127.0.0.1", tc.port(), TransportHandlers{
		OnReceive:        func(b []byte) { received <- b },
		OnConnectionLost: func(string, int) { lost.Add(1) },
	})
	require.NoError(err)
	require.Equal("127.0.0.1:"+strconv.Itoa(tc.port()), tr.RemoteAddr().String())

	conn := tc.nextConn(t)

	require.NoError(tr.Send([]byte{byte(fri.StartStreaming)}))
	buf := make([]byte, 8)
	n, err := conn.Read(buf)
	require.NoError(err)
	require.Equal([]byte{byte(fri.StartStreaming)}, buf[:n])

	_, err = conn.Write([]byte{1, 3, 1})
	require.NoError(err)
	select {
	case b := <-received:
		require.Equal([]byte{1, 3, 1}, b)
	case <-time.After(2 * time.Second):
		require.FailNow("nothing received")
	}

	// a local close never reports link loss
	require.NoError(tr.Close())
	require.NoError(tr.Close())
	require.ErrorIs(tr.Send([]byte{1}), net.ErrClosed)
	require.Never(func() bool { return lost.Load() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestTCPTransport_ConnectionLost(t *testing.T) {
	require := require.New(t)

	tc := newTestController(t)

	lost := make(chan string, 2)
	dial := TCPDialer(64, nil)
	tr, err := dial(context.Background(), "127.0.0.1", tc.port(), TransportHandlers{
		OnReceive:        func([]byte) {},
		OnConnectionLost: func(host string, port int) { lost <- net.JoinHostPort(host, strconv.Itoa(port)) },
	})
	require.NoError(err)
	defer tr.Close()

	conn := tc.nextConn(t)
	require.NoError(conn.Close())

	select {
	case addr := <-lost:
		require.Equal("127.0.0.1:"+strconv.Itoa(tc.port()), addr)
	case <-time.After(2 * time.Second):
		require.FailNow("link loss not reported")
	}
	require.Never(func() bool { return len(lost) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestTCPDialer_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, err = TCPDialer(64, nil)(context.Background(), "127.0.0.1", port, TransportHandlers{})
	require.Error(t, err)
}

func TestChannel_OverTCP(t *testing.T) {
	require := require.New(t)

	tc := newTestController(t)

	cfg, err := NewChannelConfig(WithReplyTimeout(2*time.Second), WithReconnectAttempts(0))
	require.NoError(err)
	ch, err := NewChannel(context.Background(), cfg)
	require.NoError(err)
	defer ch.Close()

	connected := make(chan bool, 1)
	go func() { connected <- ch.Connect("127.0.0.1", tc.port()) }()

	conn := tc.nextConn(t)
	go serveAcceptAll(conn)

	require.True(<-connected)
	require.True(ch.SetLinkConfig(30200, 10, 1))
	require.True(ch.StartStreaming())
	require.Equal(fri.StreamingState, ch.State())

	// controller goes away
	require.NoError(conn.Close())
	require.NoError(ch.WaitState(contextWithTimeout(t, 2*time.Second), fri.DisconnectedState))
	require.False(ch.IsConnected())
	require.Equal(uint64(1), ch.GetMetrics().ConnLostCount.Load())
}

func contextWithTimeout(t *testing.T, d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)

	return ctx
}
