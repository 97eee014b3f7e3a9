// Package simctl simulates the controller side of both FRI links: a command endpoint that
// answers every command, and a streamer that sends state datagrams to the client's datagram
// port while streaming runs.
package simctl

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-fri/fri"
	"github.com/arloliu/go-fri/logger"
)

// Option configures a Controller.
type Option func(*Controller)

// WithRejected makes the controller reject the given commands.
func WithRejected(ids ...fri.CommandID) Option {
	return func(c *Controller) {
		for _, id := range ids {
			c.rejected[id] = true
		}
	}
}

// WithLogger sets the logger of the controller.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// Controller is a simulated robot controller.
type Controller struct {
	ln       net.Listener
	logger   logger.Logger
	taskMgr  *fri.TaskManager
	rejected map[fri.CommandID]bool

	mu         sync.Mutex
	conn       net.Conn
	commands   []fri.Command
	remotePort int
	sendPeriod time.Duration
	stopStream context.CancelFunc

	writeMu sync.Mutex

	datagramsSent   atomic.Uint64
	repliesReceived atomic.Uint64
}

// New starts a controller accepting command connections on addr, one session at a time.
func New(ctx context.Context, addr string, opts ...Option) (*Controller, error) {
	c := &Controller{
		logger:   logger.GetLogger(),
		rejected: make(map[fri.CommandID]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "simctl")

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c.ln = ln
	c.taskMgr = fri.NewTaskManager(ctx, c.logger)

	if err := c.taskMgr.Start("simctlAccept", c.acceptOnce, nil); err != nil {
		_ = ln.Close()
		return nil, err
	}

	c.logger.Info("simulated controller listening", "addr", ln.Addr().String())

	return c, nil
}

// Port returns the command port.
func (c *Controller) Port() int {
	return c.ln.Addr().(*net.TCPAddr).Port
}

// Commands returns the commands received so far.
func (c *Controller) Commands() []fri.Command {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]fri.Command(nil), c.commands...)
}

// DatagramsSent returns the number of state datagrams sent.
func (c *Controller) DatagramsSent() uint64 {
	return c.datagramsSent.Load()
}

// RepliesReceived returns the number of replies received for state datagrams.
func (c *Controller) RepliesReceived() uint64 {
	return c.repliesReceived.Load()
}

// Streaming reports whether state datagrams are being sent.
func (c *Controller) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stopStream != nil
}

// EndStreaming stops streaming and notifies the client with StreamingSessionEnded.
func (c *Controller) EndStreaming() error {
	c.stopStreaming()
	return c.notify(fri.StreamingSessionEnded)
}

// EndControl notifies the client with ControlSessionEnded.
func (c *Controller) EndControl() error {
	return c.notify(fri.ControlSessionEnded)
}

// DropConnection closes the current command connection without any notification.
func (c *Controller) DropConnection() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Close stops the controller and waits for its tasks.
func (c *Controller) Close() error {
	c.taskMgr.Stop()
	err := c.ln.Close()
	c.DropConnection()
	c.stopStreaming()

	if !c.taskMgr.WaitTimeout(3 * time.Second) {
		return errors.New("simulated controller tasks still running")
	}

	return err
}

func (c *Controller) notify(state fri.OutcomeState) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return net.ErrClosed
	}

	return c.write(conn, fri.Outcome{State: state}.ToBytes())
}

func (c *Controller) write(conn net.Conn, b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := conn.Write(b)

	return err
}

func (c *Controller) acceptOnce(ctx context.Context) bool {
	conn, err := c.ln.Accept()
	if err != nil {
		return false
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("client connected", "remote_addr", conn.RemoteAddr().String())
	c.serveConn(ctx, conn)
	c.logger.Info("client disconnected", "remote_addr", conn.RemoteAddr().String())

	return true
}

func (c *Controller) serveConn(ctx context.Context, conn net.Conn) {
	defer func() {
		c.stopStreaming()
		_ = conn.Close()

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}

		var outcome fri.Outcome
		cmd, err := fri.DecodeCommand(buf[:n])
		if err != nil {
			c.logger.Warn("unrecognized command", "error", err)
			outcome = fri.Outcome{State: fri.Unrecognized}
		} else {
			outcome = c.handle(ctx, conn, cmd)
		}

		if err := c.write(conn, outcome.ToBytes()); err != nil {
			return
		}
	}
}

func (c *Controller) handle(ctx context.Context, conn net.Conn, cmd fri.Command) fri.Outcome {
	c.mu.Lock()
	c.commands = append(c.commands, cmd)
	c.mu.Unlock()

	c.logger.Debug("command received", "command", cmd)

	if c.rejected[cmd.ID] {
		return fri.NewRejected(cmd.ID)
	}

	switch cmd.ID {
	case fri.SetConfig:
		port, period, _, err := fri.DecodeConfigPayload(cmd.Payload)
		if err != nil || port <= 0 || period <= 0 {
			return fri.NewAccepted(cmd.ID, false)
		}
		c.mu.Lock()
		c.remotePort = port
		c.sendPeriod = time.Duration(period) * time.Millisecond
		c.mu.Unlock()

	case fri.SetControlMode:
		if len(cmd.Payload) == 0 {
			return fri.NewAccepted(cmd.ID, false)
		}
		if fri.ControlMode(cmd.Payload[0]) == fri.JointImpedanceControlMode {
			if _, _, err := fri.DecodeImpedancePayload(cmd.Payload); err != nil {
				return fri.NewAccepted(cmd.ID, false)
			}
		}

	case fri.StartStreaming:
		host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
		if err != nil {
			return fri.NewAccepted(cmd.ID, false)
		}
		if err := c.startStreaming(ctx, host); err != nil {
			c.logger.Warn("failed to start streaming", "error", err)
			return fri.NewAccepted(cmd.ID, false)
		}

	case fri.StopStreaming, fri.Disconnect:
		c.stopStreaming()
	}

	return fri.NewAccepted(cmd.ID, true)
}

func (c *Controller) startStreaming(ctx context.Context, host string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopStream != nil {
		return nil
	}
	if c.remotePort == 0 {
		return errors.New("link not configured")
	}

	var d net.Dialer
	udpConn, err := d.DialContext(ctx, "udp", net.JoinHostPort(host, strconv.Itoa(c.remotePort)))
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	period := c.sendPeriod

	err = c.taskMgr.Go("simctlStream", func(taskCtx context.Context) {
		defer udpConn.Close()
		c.stream(streamCtx, taskCtx, udpConn, period)
	})
	if err != nil {
		cancel()
		_ = udpConn.Close()
		return err
	}
	c.stopStream = cancel

	return nil
}

// stream sends a sequence-numbered state datagram every period and waits up to one
// period for its reply.
func (c *Controller) stream(streamCtx context.Context, taskCtx context.Context, conn net.Conn, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	state := make([]byte, 8)
	reply := make([]byte, 1024)
	var seq uint64

	for {
		select {
		case <-streamCtx.Done():
			return
		case <-taskCtx.Done():
			return
		case <-ticker.C:
		}

		seq++
		binary.BigEndian.PutUint64(state, seq)
		if _, err := conn.Write(state); err != nil {
			c.logger.Debug("failed to send state datagram", "error", err)
			continue
		}
		c.datagramsSent.Add(1)

		_ = conn.SetReadDeadline(time.Now().Add(period))
		if _, err := conn.Read(reply); err == nil {
			c.repliesReceived.Add(1)
		}
	}
}

func (c *Controller) stopStreaming() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopStream != nil {
		c.stopStream()
		c.stopStream = nil
	}
}
