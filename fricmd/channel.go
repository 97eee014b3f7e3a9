package fricmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-fri/fri"
	"github.com/arloliu/go-fri/internal/pool"
	"github.com/arloliu/go-fri/logger"
)

// result is the single-slot mailbox content handed from the receive context to the
// goroutine awaiting a command outcome.
type result struct {
	outcome fri.Outcome
	err     error
}

// Channel is the command channel to a robot controller.
//
// It runs the synchronous command/response protocol over a Transport: every command blocks
// the calling goroutine until the controller answers, a session-end notification resolves
// the wait, the link is lost or the channel is closed. At most one command may be
// outstanding; concurrent callers must serialize their calls.
type Channel struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	cfg       *ChannelConfig
	logger    logger.Logger

	stateMgr *fri.StateMgr
	taskMgr  *fri.TaskManager

	lifecycleMu sync.Mutex // serializes connect, disconnect and reconnect
	connMutex   sync.Mutex // protects transport, host and port
	transport   Transport
	host        string
	port        int
	linkGen     atomic.Uint64 // bumped for every transport, stale link-loss callbacks are ignored

	pendingMu  sync.Mutex
	pending    chan result
	pendingCmd fri.CommandID

	wantConnected atomic.Bool // a confirmed session exists that should survive link loss
	reconnecting  atomic.Bool
	shutdown      atomic.Bool

	metrics ChannelMetrics
}

// NewChannel creates a command channel with the given context and configuration.
// No transport is opened until Connect is called.
func NewChannel(ctx context.Context, cfg *ChannelConfig) (*Channel, error) {
	if cfg == nil {
		return nil, errors.New("channel config is nil")
	}
	if cfg.dialer == nil {
		cfg.dialer = TCPDialer(cfg.recvBufferSize, cfg.logger)
	}

	c := &Channel{
		cfg:      cfg,
		logger:   cfg.logger,
		stateMgr: fri.NewStateMgr(cfg.logger, cfg.stateHandlers...),
		taskMgr:  fri.NewTaskManager(ctx, cfg.logger),
	}
	c.ctx, c.ctxCancel = context.WithCancel(ctx)

	return c, nil
}

// GetLogger returns the logger of the channel.
func (c *Channel) GetLogger() logger.Logger {
	return c.logger
}

// GetMetrics returns the metrics of the channel.
func (c *Channel) GetMetrics() *ChannelMetrics {
	return &c.metrics
}

// State returns the current channel state.
func (c *Channel) State() fri.ChannelState {
	return c.stateMgr.State()
}

// WaitState blocks until the channel reaches state or ctx is done.
func (c *Channel) WaitState(ctx context.Context, state fri.ChannelState) error {
	return c.stateMgr.WaitState(ctx, state)
}

// IsConnected reports whether a transport is open.
func (c *Channel) IsConnected() bool {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	return c.transport != nil
}

// Connect opens the transport to host:port and submits Connect.
//
// It returns false without sending anything if the transport can't be opened, and true
// only if the controller confirms the Connect command.
func (c *Channel) Connect(host string, port int) bool {
	if err := c.connect(host, port); err != nil {
		c.logger.Warn("connect failed", "method", "Connect", "host", host, "port", port, "error", err)
		return false
	}

	return true
}

// Disconnect submits Disconnect and releases the transport once the controller confirms.
//
// It returns true without any I/O if no transport is open. If the controller doesn't confirm,
// the transport stays open and false is returned.
func (c *Channel) Disconnect() bool {
	if err := c.disconnect(); err != nil {
		c.logger.Warn("disconnect failed", "method", "Disconnect", "error", err)
		return false
	}

	return true
}

// StartStreaming asks the controller to start the real-time datagram exchange.
func (c *Channel) StartStreaming() bool {
	return c.submitAndWait(fri.NewCommand(fri.StartStreaming, nil))
}

// StopStreaming asks the controller to stop the real-time datagram exchange.
func (c *Channel) StopStreaming() bool {
	return c.submitAndWait(fri.NewCommand(fri.StopStreaming, nil))
}

// ActivateControl hands motion control to the driver.
func (c *Channel) ActivateControl() bool {
	return c.submitAndWait(fri.NewCommand(fri.ActivateControl, nil))
}

// DeactivateControl takes motion control back from the driver.
func (c *Channel) DeactivateControl() bool {
	return c.submitAndWait(fri.NewCommand(fri.DeactivateControl, nil))
}

// SetControlMode selects the controller's control mode.
//
// Joint impedance control needs its parameters, use SetImpedanceParameters for it.
func (c *Channel) SetControlMode(mode fri.ControlMode) bool {
	return c.submitAndWait(fri.NewCommand(fri.SetControlMode, fri.ControlModePayload(mode)))
}

// SetPositionControlMode selects position control.
func (c *Channel) SetPositionControlMode() bool {
	return c.SetControlMode(fri.PositionControlMode)
}

// SetCommandMode selects the kind of set-points the client sends while streaming.
func (c *Channel) SetCommandMode(mode fri.CommandMode) bool {
	return c.submitAndWait(fri.NewCommand(fri.SetCommandMode, fri.CommandModePayload(mode)))
}

// SetImpedanceParameters switches to joint impedance control with the given per-joint
// stiffness and damping. Both slices must hold fri.JointCount values.
func (c *Channel) SetImpedanceParameters(stiffness []float64, damping []float64) bool {
	payload, err := fri.ImpedancePayload(stiffness, damping)
	if err != nil {
		c.logger.Error("invalid impedance parameters", "method", "SetImpedanceParameters", "error", err)
		return false
	}

	return c.submitAndWait(fri.NewCommand(fri.SetControlMode, payload))
}

// SetLinkConfig configures the datagram link: the client's datagram port, the controller's
// send period in milliseconds and the receive multiplier.
func (c *Channel) SetLinkConfig(remotePort int, sendPeriodMs int, receiveMultiplier int) bool {
	payload, err := fri.ConfigPayload(remotePort, sendPeriodMs, receiveMultiplier)
	if err != nil {
		c.logger.Error("invalid link config", "method", "SetLinkConfig", "error", err)
		return false
	}

	return c.submitAndWait(fri.NewCommand(fri.SetConfig, payload))
}

// Submit sends cmd and waits for its outcome.
//
// The returned error is not nil when no outcome could be obtained (fri.ErrNotConnected,
// fri.ErrCommandOutstanding, fri.ErrReconnecting, fri.ErrConnectionLost, fri.ErrChannelClosed,
// fri.ErrReplyTimeout, send errors) or when the controller echoed another command
// (fri.ErrOutcomeMismatch, the outcome is returned as received).
func (c *Channel) Submit(cmd fri.Command) (fri.Outcome, error) {
	if c.shutdown.Load() {
		return fri.Outcome{}, fri.ErrChannelClosed
	}

	return c.submit(cmd, c.cfg.replyTimeout)
}

// Close releases the channel.
//
// It tries a graceful Disconnect bounded by the close timeout, resolves an outstanding wait
// with fri.ErrChannelClosed, closes the transport and joins the session-end handler and
// reconnect tasks. Close is idempotent.
func (c *Channel) Close() error {
	if !c.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	c.wantConnected.Store(false)

	if c.IsConnected() {
		outcome, err := c.submit(fri.NewCommand(fri.Disconnect, nil), c.cfg.closeTimeout)
		if err != nil || !outcome.Confirms(fri.Disconnect) {
			c.logger.Debug("graceful disconnect on close failed", "method", "Close", "outcome", outcome, "error", err)
		}
	}

	c.ctxCancel()
	c.taskMgr.Stop()
	c.releaseTransport()

	if !c.taskMgr.WaitTimeout(c.cfg.closeTimeout) {
		c.logger.Error("close timeout, tasks still running", "method", "Close", "timeout", c.cfg.closeTimeout)
	}

	c.logger.Debug("channel closed", "method", "Close")

	return nil
}

func (c *Channel) connect(host string, port int) error {
	if c.shutdown.Load() {
		return fri.ErrChannelClosed
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.IsConnected() {
		return fri.ErrAlreadyConnected
	}

	if err := c.stateMgr.To(fri.ConnectingState); err != nil {
		return err
	}

	gen := c.linkGen.Add(1)
	handlers := TransportHandlers{
		OnReceive: c.onReceive,
		OnConnectionLost: func(lostHost string, lostPort int) {
			c.onConnectionLost(gen, lostHost, lostPort)
		},
	}

	dialCtx, cancel := context.WithTimeout(c.ctx, c.cfg.connectTimeout)
	tr, err := c.cfg.dialer(dialCtx, host, port, handlers)
	cancel()
	if err != nil {
		c.stateMgr.ToDisconnected()
		return fmt.Errorf("open transport: %w", err)
	}

	c.connMutex.Lock()
	c.transport = tr
	c.host, c.port = host, port
	c.connMutex.Unlock()

	c.logger.Debug("transport opened, submit connect", "method", "connect", "host", host, "port", port)

	outcome, err := c.submit(fri.NewCommand(fri.Connect, nil), c.cfg.replyTimeout)
	if err == nil && !outcome.Confirms(fri.Connect) {
		err = fmt.Errorf("%w: %s", fri.ErrCommandFailed, outcome)
	}
	if err != nil {
		c.releaseTransport()
		return err
	}

	if err := c.stateMgr.To(fri.ConnectedState); err != nil {
		// the link was lost between the outcome and here
		return err
	}
	c.wantConnected.Store(!c.shutdown.Load())

	c.logger.Info("connected to controller", "host", host, "port", port)

	return nil
}

func (c *Channel) disconnect() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if !c.IsConnected() {
		return nil
	}

	wanted := c.wantConnected.Swap(false)

	outcome, err := c.Submit(fri.NewCommand(fri.Disconnect, nil))
	if err == nil && !outcome.Confirms(fri.Disconnect) {
		err = fmt.Errorf("%w: %s", fri.ErrCommandFailed, outcome)
	}
	if err != nil {
		if c.IsConnected() {
			c.wantConnected.Store(wanted)
		}
		return err
	}

	c.releaseTransport()
	c.logger.Info("disconnected from controller")

	return nil
}

// submitAndWait submits cmd and reports whether the controller confirmed it. On confirmation
// the channel state follows the command.
func (c *Channel) submitAndWait(cmd fri.Command) bool {
	outcome, err := c.Submit(cmd)
	if err != nil {
		c.logger.Warn("command failed", "method", "submitAndWait", "command", cmd.ID, "outcome", outcome, "error", err)
		return false
	}

	if !outcome.Confirms(cmd.ID) {
		c.logger.Info("command not confirmed", "command", cmd.ID, "outcome", outcome)
		return false
	}

	c.advanceState(cmd.ID)

	return true
}

// advanceState moves the channel state after a confirmed command.
func (c *Channel) advanceState(id fri.CommandID) {
	var err error
	switch id {
	case fri.StartStreaming:
		err = c.stateMgr.To(fri.StreamingState)
	case fri.StopStreaming:
		err = c.stateMgr.To(fri.ConnectedState)
	case fri.ActivateControl, fri.DeactivateControl, fri.SetConfig, fri.SetControlMode, fri.SetCommandMode:
		if c.stateMgr.State() == fri.ConnectedState {
			err = c.stateMgr.To(fri.ConfiguringState)
		}
	}

	if err != nil {
		c.logger.Debug("state not advanced", "method", "advanceState", "command", id, "state", c.stateMgr.State(), "error", err)
	}
}

// submit sends cmd and waits for its outcome at most timeout, zero meaning no timeout.
func (c *Channel) submit(cmd fri.Command, timeout time.Duration) (fri.Outcome, error) {
	if c.reconnecting.Load() && cmd.ID != fri.Connect {
		return fri.Outcome{}, fri.ErrReconnecting
	}

	c.connMutex.Lock()
	tr := c.transport
	c.connMutex.Unlock()
	if tr == nil {
		return fri.Outcome{}, fri.ErrNotConnected
	}

	mailbox := make(chan result, 1)

	c.pendingMu.Lock()
	if c.pending != nil {
		outstanding := c.pendingCmd
		c.pendingMu.Unlock()

		c.metrics.incContractViolationCount()
		c.logger.Error("command submitted while another is outstanding",
			"method", "submit", "command", cmd.ID, "outstanding", outstanding)

		return fri.Outcome{}, fmt.Errorf("%w: %s submitted while %s is outstanding", fri.ErrCommandOutstanding, cmd.ID, outstanding)
	}
	c.pending = mailbox
	c.pendingCmd = cmd.ID
	c.pendingMu.Unlock()

	defer c.clearPending(mailbox)

	if c.logger.Level() == logger.DebugLevel {
		c.logger.Debug("send command", "method", "submit", "command", cmd, "bytes", hex.EncodeToString(cmd.ToBytes()))
	}

	c.metrics.incCommandSendCount()
	if err := tr.Send(cmd.ToBytes()); err != nil {
		c.metrics.incCommandErrCount()
		return fri.Outcome{}, fmt.Errorf("send %s: %w", cmd.ID, err)
	}

	timer := pool.GetTimer(timeout)
	defer pool.PutTimer(timer)

	var r result
	select {
	case r = <-mailbox:
	case <-c.ctx.Done():
		r.err = fri.ErrChannelClosed
	case <-pool.TimerC(timer):
		c.logger.Warn("no outcome within reply timeout", "method", "submit", "command", cmd.ID, "timeout", timeout)
		r.err = fri.ErrReplyTimeout
	}

	if r.err != nil {
		c.metrics.incCommandErrCount()
		return r.outcome, r.err
	}

	if (r.outcome.State == fri.Accepted || r.outcome.State == fri.Rejected) && r.outcome.CommandID != cmd.ID {
		c.metrics.incProtocolErrCount()
		c.logger.Error("outcome echoes another command", "method", "submit", "command", cmd.ID, "outcome", r.outcome)

		return r.outcome, fmt.Errorf("%w: sent %s, got %s", fri.ErrOutcomeMismatch, cmd.ID, r.outcome)
	}

	if c.logger.Level() == logger.DebugLevel {
		c.logger.Debug("outcome received", "method", "submit", "command", cmd.ID, "outcome", r.outcome)
	}

	return r.outcome, nil
}

func (c *Channel) clearPending(mailbox chan result) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	if c.pending == mailbox {
		c.pending = nil
	}
}

// deliver hands r to the outstanding command, if any, and reports whether one was awaiting.
func (c *Channel) deliver(r result) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	if c.pending == nil {
		return false
	}

	select {
	case c.pending <- r:
	default:
		c.logger.Warn("outcome already delivered, dropping", "method", "deliver", "outcome", r.outcome, "error", r.err)
	}
	c.pending = nil

	return true
}

// onReceive handles a chunk received from the controller. It runs in the transport's
// receive context and never blocks on user code.
func (c *Channel) onReceive(data []byte) {
	outcome, err := fri.DecodeOutcome(data)
	if errors.Is(err, fri.ErrEmptyOutcome) {
		c.logger.Debug("empty chunk ignored", "method", "onReceive")
		return
	}
	if err != nil {
		c.metrics.incProtocolErrCount()
		c.logger.Warn("malformed outcome classified as unrecognized",
			"method", "onReceive", "data", hex.EncodeToString(data), "error", err)
	}

	c.metrics.incOutcomeCount(outcome.State)

	if outcome.State == fri.StreamingSessionEnded && c.stateMgr.State() == fri.StreamingState {
		_ = c.stateMgr.To(fri.ConnectedState)
	}

	if c.deliver(result{outcome: outcome}) {
		return
	}

	if outcome.State.IsSessionEnd() {
		c.dispatchSessionEnded(outcome.State)
		return
	}

	c.metrics.incUnsolicitedCount()
	c.logger.Warn("unsolicited outcome dropped", "method", "onReceive", "outcome", outcome)
}

// dispatchSessionEnded runs the handler registered for an unsolicited session-end
// notification on a tracked task.
func (c *Channel) dispatchSessionEnded(state fri.OutcomeState) {
	handler := c.cfg.onControlSessionEnded
	if state == fri.StreamingSessionEnded {
		handler = c.cfg.onStreamingSessionEnded
	}

	c.logger.Warn("session ended by controller", "method", "dispatchSessionEnded", "event", state)

	if handler == nil {
		return
	}

	err := c.taskMgr.Go(state.String()+"Handler", func(ctx context.Context) {
		handler(ctx, c)
	})
	if err != nil {
		c.logger.Error("failed to dispatch session-end handler", "event", state, "error", err)
	}
}

// onConnectionLost handles link loss reported by the transport of generation gen.
// It resolves an outstanding wait and schedules the reconnect without blocking the caller.
func (c *Channel) onConnectionLost(gen uint64, host string, port int) {
	if gen != c.linkGen.Load() {
		c.logger.Debug("stale link loss ignored", "method", "onConnectionLost", "gen", gen)
		return
	}

	c.metrics.incConnLostCount()
	c.logger.Warn("connection to controller lost", "host", host, "port", port)

	c.connMutex.Lock()
	tr := c.transport
	c.transport = nil
	c.connMutex.Unlock()
	c.linkGen.Add(1)

	c.deliver(result{err: fri.ErrConnectionLost})
	c.stateMgr.ToDisconnected()

	reconnect := c.wantConnected.Load() && !c.shutdown.Load() && c.cfg.reconnectAttempts > 0
	if reconnect {
		// commands issued from now on observe ErrReconnecting until the attempts finish
		if !c.reconnecting.CompareAndSwap(false, true) {
			reconnect = false
		}
	}

	err := c.taskMgr.Go("linkRecovery", func(ctx context.Context) {
		if tr != nil {
			_ = tr.Close()
		}
		if reconnect {
			defer c.reconnecting.Store(false)
			c.reconnect(ctx, host, port)
		}
	})
	if err != nil {
		if reconnect {
			c.reconnecting.Store(false)
		}
		if tr != nil {
			// the channel is closing, Close will not see this transport anymore
			go func() { _ = tr.Close() }()
		}
	}
}

// reconnect re-runs the connect path up to the configured number of attempts, with an
// exponential backoff between attempts.
func (c *Channel) reconnect(ctx context.Context, host string, port int) {
	delay := c.cfg.reconnectDelay

	for attempt := 1; attempt <= c.cfg.reconnectAttempts; attempt++ {
		if attempt > 1 {
			timer := pool.GetTimer(delay)
			select {
			case <-ctx.Done():
				pool.PutTimer(timer)
				return
			case <-pool.TimerC(timer):
			}
			pool.PutTimer(timer)

			delay *= 2
			if delay > c.cfg.reconnectMaxDelay {
				delay = c.cfg.reconnectMaxDelay
			}
		}

		if c.shutdown.Load() {
			return
		}

		c.metrics.incReconnectCount()
		c.logger.Info("trying to reconnect", "host", host, "port", port, "attempt", attempt)

		err := c.connect(host, port)
		if err == nil {
			return
		}
		if errors.Is(err, fri.ErrAlreadyConnected) || errors.Is(err, fri.ErrChannelClosed) {
			return
		}

		c.logger.Warn("reconnect attempt failed", "host", host, "port", port, "attempt", attempt, "error", err)
	}
}

// releaseTransport closes the transport, if any, and moves the channel to DisconnectedState.
func (c *Channel) releaseTransport() {
	c.connMutex.Lock()
	tr := c.transport
	c.transport = nil
	c.connMutex.Unlock()
	c.linkGen.Add(1)

	if tr != nil {
		if err := tr.Close(); err != nil {
			c.logger.Debug("failed to close transport", "method", "releaseTransport", "error", err)
		}
	}

	c.stateMgr.ToDisconnected()
}
