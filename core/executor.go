package core

import (
	"context"
	"time"
)

// ExecState is the position of an Executor within its task.
type ExecState int

const (
	StateNotStarted ExecState = iota
	StateWaitingDelay
	StateWaitingCondition
	StateRunning
	StateWaitingPostCallback
	StateDone
)

func (s ExecState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateWaitingDelay:
		return "waiting_delay"
	case StateWaitingCondition:
		return "waiting_condition"
	case StateRunning:
		return "running"
	case StateWaitingPostCallback:
		return "waiting_post_callback"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Executor runs one Descriptor to completion. Each Resume advances the task
// up to its next suspension point:
//
//   - one-shot: delay, condition, invoke, optional post-callback wait
//   - bounded loop: one iteration per tick while active and elapsed < duration
//   - unbounded loop: one iteration per tick while active
//
// Executors are driven by a single goroutine and are not safe for concurrent use.
type Executor struct {
	desc   *Descriptor
	state  ExecState
	wait   waiter
	handle *Handle

	invocations int
	resumes     int
	scheduled   time.Duration
}

// NewExecutor creates an executor for desc in StateNotStarted.
func NewExecutor(desc *Descriptor) *Executor {
	return &Executor{desc: desc}
}

// State returns the current state.
func (e *Executor) State() ExecState { return e.state }

// Descriptor returns the task being executed.
func (e *Executor) Descriptor() *Descriptor { return e.desc }

// Handle returns the handle of the most recent invocation, or nil before the first one.
func (e *Executor) Handle() *Handle { return e.handle }

// Invocations returns how many times the callback has been invoked.
func (e *Executor) Invocations() int { return e.invocations }

// Resumes returns how many times Resume has been called.
func (e *Executor) Resumes() int { return e.resumes }

// Scheduled returns the scheduled time the task has spent since its first resume.
func (e *Executor) Scheduled() time.Duration { return e.scheduled }

// Resume advances the task for one tick and reports whether it is done.
// A panicking callback propagates to the caller and leaves the executor in
// the state it was in when the callback started.
func (e *Executor) Resume(ctx context.Context, tickDelta time.Duration) bool {
	if e.state == StateDone {
		return true
	}
	if e.state != StateNotStarted {
		e.scheduled += tickDelta
	}
	e.resumes++

	switch e.state {
	case StateNotStarted:
		e.state = e.start()

	case StateWaitingDelay:
		if !e.wait.advance(tickDelta) {
			return false
		}
		e.state = e.afterDelay()

	case StateWaitingCondition:
		if !e.wait.advance(tickDelta) {
			return false
		}
		e.wait = waiter{}
		e.state = StateRunning

	case StateWaitingPostCallback:
		if !e.wait.advance(tickDelta) {
			return false
		}
		e.wait = waiter{}
		if e.desc.kind == TaskKindOneShot {
			e.state = StateDone
			return true
		}
		// The loop still owes its one-tick yield.
		e.state = StateRunning
		return false
	}

	if e.state != StateRunning {
		return false
	}

	switch e.desc.kind {
	case TaskKindBoundedLoop:
		return e.runBoundedLoop(ctx, tickDelta)
	case TaskKindUnboundedLoop:
		return e.runUnboundedLoop(ctx, tickDelta)
	default:
		return e.runOneShot(ctx)
	}
}

func (e *Executor) start() ExecState {
	if e.desc.delay > 0 {
		e.wait = newWaiter(After(e.desc.delay))
		return StateWaitingDelay
	}
	return e.afterDelay()
}

func (e *Executor) afterDelay() ExecState {
	if e.desc.condition != nil {
		e.wait = newWaiter(Until(e.desc.condition))
		return StateWaitingCondition
	}
	e.wait = waiter{}
	return StateRunning
}

func (e *Executor) runOneShot(ctx context.Context) bool {
	h := newHandle()
	e.handle = h
	e.invoke(ctx, h)

	if e.suspendForPendingWait(h) {
		return false
	}
	e.state = StateDone
	return true
}

func (e *Executor) runBoundedLoop(ctx context.Context, tickDelta time.Duration) bool {
	duration := e.desc.loopDuration
	if duration <= 0 {
		e.state = StateDone
		return true
	}
	if e.handle == nil {
		e.handle = newHandle()
	}
	h := e.handle

	if !h.active || h.elapsed >= duration {
		e.state = StateDone
		return true
	}

	h.deltaTime = (1 / (duration - h.elapsed).Seconds()) * tickDelta.Seconds()
	h.elapsed += tickDelta
	e.invoke(ctx, h)

	e.suspendForPendingWait(h)
	return false
}

func (e *Executor) runUnboundedLoop(ctx context.Context, tickDelta time.Duration) bool {
	if e.handle == nil {
		e.handle = newHandle()
	}
	h := e.handle

	if !h.active {
		e.state = StateDone
		return true
	}

	h.deltaTime = tickDelta.Seconds()
	h.elapsed += tickDelta
	e.invoke(ctx, h)

	e.suspendForPendingWait(h)
	return false
}

func (e *Executor) invoke(ctx context.Context, h *Handle) {
	e.invocations++
	e.desc.action.invoke(ctx, h)
}

func (e *Executor) suspendForPendingWait(h *Handle) bool {
	w, ok := h.takePendingWait()
	if !ok {
		return false
	}
	e.wait = newWaiter(w)
	e.state = StateWaitingPostCallback
	return true
}
