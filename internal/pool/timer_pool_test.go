package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetTimer_Fires(t *testing.T) {
	require := require.New(t)

	timer := GetTimer(10 * time.Millisecond)
	require.NotNil(timer)

	select {
	case <-TimerC(timer):
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	PutTimer(timer)
}

func TestGetTimer_ReusedTimerDoesNotFireEarly(t *testing.T) {
	require := require.New(t)

	first := GetTimer(time.Millisecond)
	time.Sleep(5 * time.Millisecond) // let it expire without draining
	PutTimer(first)

	second := GetTimer(200 * time.Millisecond)
	require.NotNil(second)
	defer PutTimer(second)

	select {
	case <-TimerC(second):
		t.Fatal("stale expiry leaked into reused timer")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGetTimer_NoTimeout(t *testing.T) {
	require := require.New(t)

	timer := GetTimer(0)
	require.Nil(timer)
	require.Nil(TimerC(timer))
	PutTimer(timer) // must not panic

	select {
	case <-TimerC(timer):
		t.Fatal("nil channel must never fire")
	case <-time.After(10 * time.Millisecond):
	}
}
