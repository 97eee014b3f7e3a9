package fri

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-fri/logger"
)

// ChannelState represents the lifecycle stage of a command channel.
type ChannelState uint32

const (
	// DisconnectedState indicates that no transport is open.
	DisconnectedState ChannelState = iota
	// ConnectingState indicates that the transport is open and the Connect command is in progress,
	// or that an automatic reconnect runs.
	ConnectingState
	// ConnectedState indicates that the controller accepted the session.
	ConnectedState
	// ConfiguringState indicates that the session received at least one mode or link configuration.
	ConfiguringState
	// StreamingState indicates that real-time streaming was started.
	StreamingState
)

// String returns string representation of the state.
func (s ChannelState) String() string {
	switch s {
	case DisconnectedState:
		return "disconnected"
	case ConnectingState:
		return "connecting"
	case ConnectedState:
		return "connected"
	case ConfiguringState:
		return "configuring"
	case StreamingState:
		return "streaming"
	default:
		return "unknown"
	}
}

// IsDisconnected returns if the state is DisconnectedState.
func (s ChannelState) IsDisconnected() bool { return s == DisconnectedState }

// IsConnecting returns if the state is ConnectingState.
func (s ChannelState) IsConnecting() bool { return s == ConnectingState }

// IsSession returns if the controller accepted the session, i.e. Connected, Configuring or Streaming.
func (s ChannelState) IsSession() bool {
	return s == ConnectedState || s == ConfiguringState || s == StreamingState
}

// allowedTransitions lists the reachable states per state. Any state may move to DisconnectedState.
var allowedTransitions = map[ChannelState][]ChannelState{
	DisconnectedState: {ConnectingState},
	ConnectingState:   {ConnectedState},
	ConnectedState:    {ConfiguringState, StreamingState},
	ConfiguringState:  {ConnectedState, StreamingState},
	StreamingState:    {ConnectedState, ConfiguringState},
}

// CanTransition reports whether the state machine allows moving from one state to another.
// Staying in the same state is always allowed.
func CanTransition(from ChannelState, to ChannelState) bool {
	if from == to || to == DisconnectedState {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

// StateChangeHandler is invoked after the channel state changed.
//
// Note: the handler is invoked synchronously by the goroutine performing the transition.
// Take care with long-running implementations.
type StateChangeHandler func(prevState ChannelState, newState ChannelState)

// StateMgr manages the state of a command channel.
//
// Transitions are validated against the channel lifecycle and are safe for concurrent use.
type StateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	logger   logger.Logger
	handlers []StateChangeHandler
}

// NewStateMgr creates a StateMgr in DisconnectedState.
func NewStateMgr(l logger.Logger, handlers ...StateChangeHandler) *StateMgr {
	if l == nil {
		l = logger.GetLogger()
	}

	mgr := &StateMgr{logger: l}
	mgr.cond = sync.NewCond(&mgr.mu)
	mgr.state.Store(uint32(DisconnectedState))
	mgr.AddHandler(handlers...)

	return mgr
}

// State returns the current state.
func (m *StateMgr) State() ChannelState {
	return ChannelState(m.state.Load())
}

// AddHandler adds one or more StateChangeHandler functions to be invoked on state changes.
func (m *StateMgr) AddHandler(handlers ...StateChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			m.handlers = append(m.handlers, h)
		}
	}
}

// To moves the channel to the given state.
//
// It is a no-op if the channel already is in that state and returns ErrInvalidTransition
// if the lifecycle doesn't allow the transition.
func (m *StateMgr) To(newState ChannelState) error {
	m.mu.Lock()

	prevState := m.State()
	if prevState == newState {
		m.mu.Unlock()
		return nil
	}

	if !CanTransition(prevState, newState) {
		m.mu.Unlock()
		m.logger.Debug("rejected state transition", "method", "To", "prevState", prevState, "newState", newState)

		return ErrInvalidTransition
	}

	m.state.Store(uint32(newState))
	m.cond.Broadcast()
	handlers := make([]StateChangeHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	m.logger.Debug("channel state changed", "prevState", prevState, "newState", newState)
	for _, h := range handlers {
		h(prevState, newState)
	}

	return nil
}

// ToDisconnected moves the channel to DisconnectedState, which is allowed from any state.
func (m *StateMgr) ToDisconnected() {
	_ = m.To(DisconnectedState)
}

// WaitState waits until the channel reaches the given state or ctx is done.
// It returns nil if the state is reached, or the context error otherwise.
func (m *StateMgr) WaitState(ctx context.Context, state ChannelState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.cond.Broadcast()
	})
	defer stop()

	for m.State() != state {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.cond.Wait()
	}

	return nil
}
