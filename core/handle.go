package core

import "time"

// Handle is the per-run control object passed to handle-aware callbacks.
// One-shot tasks get a fresh handle per invocation; loops share one handle
// across every iteration of a run.
//
// A handle is only valid on the ticking goroutine and must not be retained
// after the callback returns.
type Handle struct {
	active      bool
	deltaTime   float64
	elapsed     time.Duration
	pendingWait *Wait
}

func newHandle() *Handle {
	return &Handle{active: true}
}

// IsActive reports whether the loop will run another iteration.
func (h *Handle) IsActive() bool { return h.active }

// Deactivate stops a loop. It is observed at the next loop boundary, so the
// current invocation always finishes and no further iteration starts.
func (h *Handle) Deactivate() { h.active = false }

// DeltaTime is the per-iteration progress value in seconds.
//
// For unbounded loops it is the tick delta. For bounded loops it is
// tickDelta / (duration - elapsed), measured before elapsed is advanced; it
// grows as the loop nears its end and is not clamped to [0,1].
func (h *Handle) DeltaTime() float64 { return h.deltaTime }

// Elapsed is the scheduled time accumulated by the loop, including the current tick.
func (h *Handle) Elapsed() time.Duration { return h.elapsed }

// RequestWait suspends the task once, right after the current callback returns.
// A later request in the same invocation replaces an earlier one.
func (h *Handle) RequestWait(w Wait) {
	h.pendingWait = &w
}

// WaitFor is RequestWait(After(d)).
func (h *Handle) WaitFor(d time.Duration) { h.RequestWait(After(d)) }

// WaitUntil is RequestWait(Until(c)).
func (h *Handle) WaitUntil(c Condition) { h.RequestWait(Until(c)) }

func (h *Handle) takePendingWait() (Wait, bool) {
	if h.pendingWait == nil {
		return Wait{}, false
	}
	w := *h.pendingWait
	h.pendingWait = nil
	return w, true
}
