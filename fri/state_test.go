package fri

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateMgr_Transitions(t *testing.T) {
	require := require.New(t)

	var changes atomic.Int32
	mgr := NewStateMgr(nil, func(_ ChannelState, _ ChannelState) { changes.Add(1) })
	require.Equal(DisconnectedState, mgr.State())

	require.ErrorIs(mgr.To(ConnectedState), ErrInvalidTransition)
	require.ErrorIs(mgr.To(StreamingState), ErrInvalidTransition)
	require.Zero(changes.Load())

	require.NoError(mgr.To(ConnectingState))
	require.NoError(mgr.To(ConnectedState))
	require.NoError(mgr.To(ConfiguringState))
	require.NoError(mgr.To(StreamingState))
	require.NoError(mgr.To(ConnectedState))
	require.Equal(int32(5), changes.Load())

	// same state is a no-op
	require.NoError(mgr.To(ConnectedState))
	require.Equal(int32(5), changes.Load())

	require.ErrorIs(mgr.To(ConnectingState), ErrInvalidTransition)

	mgr.ToDisconnected()
	require.True(mgr.State().IsDisconnected())
	require.Equal(int32(6), changes.Load())
}

func TestStateMgr_HandlerArguments(t *testing.T) {
	require := require.New(t)

	var prev, cur ChannelState
	mgr := NewStateMgr(nil)
	mgr.AddHandler(func(p ChannelState, c ChannelState) { prev, cur = p, c })

	require.NoError(mgr.To(ConnectingState))
	require.Equal(DisconnectedState, prev)
	require.Equal(ConnectingState, cur)
}

func TestStateMgr_HandlerMayReadState(t *testing.T) {
	require := require.New(t)

	mgr := NewStateMgr(nil)
	var seen ChannelState
	mgr.AddHandler(func(_ ChannelState, _ ChannelState) { seen = mgr.State() })

	require.NoError(mgr.To(ConnectingState))
	require.Equal(ConnectingState, seen)
}

func TestStateMgr_WaitState(t *testing.T) {
	require := require.New(t)

	mgr := NewStateMgr(nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = mgr.To(ConnectingState)
		_ = mgr.To(ConnectedState)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(mgr.WaitState(ctx, ConnectedState))

	ctx2, cancel2 := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel2()
	require.ErrorIs(mgr.WaitState(ctx2, StreamingState), context.DeadlineExceeded)
}

func TestChannelState_Helpers(t *testing.T) {
	require := require.New(t)

	require.True(ConnectedState.IsSession())
	require.True(ConfiguringState.IsSession())
	require.True(StreamingState.IsSession())
	require.False(ConnectingState.IsSession())
	require.False(DisconnectedState.IsSession())
	require.Equal("streaming", StreamingState.String())
	require.Equal("unknown", ChannelState(42).String())
}
