package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer for the given duration d from the pool.
//
// A non-positive d means "no timeout": nil is returned, and TimerC(nil) yields a nil
// channel which never fires in a select.
//
// Return back the timer to the pool with PutTimer.
func GetTimer(d time.Duration) *time.Timer {
	if d <= 0 {
		return nil
	}

	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer) // only *time.Timer is put into the pool
		if t.Reset(d) {
			select {
			case <-t.C:
			default:
			}
		}
		return t
	}

	return time.NewTimer(d)
}

// TimerC returns the channel of t, or nil if t is nil.
func TimerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}

	return t.C
}

// PutTimer returns timer to the pool. A nil timer is ignored.
//
// t cannot be accessed after returning to the pool.
func PutTimer(t *time.Timer) {
	if t == nil {
		return
	}

	if !t.Stop() {
		// drain t.C if it wasn't obtained by the caller yet
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}
