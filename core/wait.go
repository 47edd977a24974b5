package core

import "time"

// Wait describes a suspension: either an amount of scheduled time or a
// condition to poll. The zero Wait resolves on the next tick.
type Wait struct {
	delay time.Duration
	until Condition
}

// After returns a Wait that resolves once d of tick deltas has accumulated.
func After(d time.Duration) Wait {
	return Wait{delay: d}
}

// Until returns a Wait that resolves on the first tick c reports true.
func Until(c Condition) Wait {
	return Wait{until: c}
}

// waiter tracks an active Wait. The tick on which a wait begins is never
// counted: advance is first called on the following tick.
type waiter struct {
	wait   Wait
	waited time.Duration
}

func newWaiter(w Wait) waiter {
	return waiter{wait: w}
}

func (w *waiter) advance(tickDelta time.Duration) bool {
	if w.wait.until != nil {
		return w.wait.until()
	}
	w.waited += tickDelta
	return w.waited >= w.wait.delay
}
