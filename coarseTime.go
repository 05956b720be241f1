package reactor

import (
	"sync/atomic"
	"time"
)

// coarseTimeNow returns a timestamp accurate to within one second,
// used for log lines and reaper bookkeeping where a real time.Now()
// syscall per event would be wasteful.
func coarseTimeNow() time.Time {
	tp := coarseTime.Load().(*time.Time)
	return *tp
}

func init() {
	t := time.Now()
	coarseTime.Store(&t)
	go func() {
		for {
			time.Sleep(time.Second)
			t := time.Now()
			coarseTime.Store(&t)
		}
	}()
}

var coarseTime atomic.Value
