package core

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// =============================================================================
// Host: the per-tick scheduler the engine is driven by
// =============================================================================

// Routine is a cooperative task the host resumes once per tick.
type Routine interface {
	// Resume advances the routine by one tick and reports whether it finished.
	Resume(ctx context.Context, tickDelta time.Duration) bool
}

// RoutineFunc adapts a function to Routine.
type RoutineFunc func(ctx context.Context, tickDelta time.Duration) bool

func (f RoutineFunc) Resume(ctx context.Context, tickDelta time.Duration) bool {
	return f(ctx, tickDelta)
}

// Labeler is optionally implemented by routines to name themselves in panic reports.
type Labeler interface {
	Label() string
}

// Host registers routines so they take part in per-tick resumption.
type Host interface {
	Spawn(r Routine) *RoutineHandle
}

// RoutineHandle tracks a spawned routine. Done and IsCancelled may be read
// from any goroutine.
type RoutineHandle struct {
	id        uint64
	done      atomic.Bool
	cancelled atomic.Bool
}

// ID returns the host-assigned routine ID.
func (h *RoutineHandle) ID() uint64 { return h.id }

// Done reports whether the routine finished or was cancelled.
// Its method value is a Condition.
func (h *RoutineHandle) Done() bool { return h.done.Load() || h.cancelled.Load() }

// Cancel removes the routine before its next resume. It is never resumed again.
func (h *RoutineHandle) Cancel() { h.cancelled.Store(true) }

// IsCancelled reports whether Cancel was called before the routine finished.
func (h *RoutineHandle) IsCancelled() bool { return h.cancelled.Load() }

// =============================================================================
// TickLoop: in-process Host advanced by explicit Tick calls
// =============================================================================

// TickLoopConfig holds configuration options for TickLoop.
type TickLoopConfig struct {
	// PanicHandler recovers panicking routines. When nil, panics propagate out
	// of Tick; either way the panicking routine is finished and not resumed again.
	PanicHandler PanicHandler

	// Metrics records recovered panics. Defaults to NilMetrics.
	Metrics Metrics
}

type spawnedRoutine struct {
	routine Routine
	handle  *RoutineHandle
}

// TickLoop resumes every live routine once per Tick, in spawn order.
// Routines spawned during a Tick are first resumed on the following Tick.
//
// TickLoop is not safe for concurrent use; Spawn and Tick must be called from
// the same goroutine. Driver wraps a TickLoop for cross-goroutine use.
type TickLoop struct {
	routines []*spawnedRoutine
	nextID   uint64
	ticks    uint64

	panicHandler PanicHandler
	metrics      Metrics
}

// NewTickLoop creates an empty TickLoop.
func NewTickLoop(config *TickLoopConfig) *TickLoop {
	l := &TickLoop{}
	if config != nil {
		l.panicHandler = config.PanicHandler
		l.metrics = config.Metrics
	}
	if l.metrics == nil {
		l.metrics = &NilMetrics{}
	}
	return l
}

// Spawn registers r and returns its handle. A nil routine yields a finished handle.
func (l *TickLoop) Spawn(r Routine) *RoutineHandle {
	l.nextID++
	h := &RoutineHandle{id: l.nextID}
	if r == nil {
		h.done.Store(true)
		return h
	}
	l.routines = append(l.routines, &spawnedRoutine{routine: r, handle: h})
	return h
}

// Tick resumes each routine that was live when the tick began.
func (l *TickLoop) Tick(ctx context.Context, tickDelta time.Duration) {
	l.ticks++

	n := len(l.routines)
	batch := l.routines[:n:n]
	for _, s := range batch {
		if s.handle.Done() {
			continue
		}
		if l.resume(ctx, s, tickDelta) {
			s.handle.done.Store(true)
		}
	}

	live := 0
	for _, s := range l.routines {
		if !s.handle.Done() {
			l.routines[live] = s
			live++
		}
	}
	clear(l.routines[live:])
	l.routines = l.routines[:live]
}

func (l *TickLoop) resume(ctx context.Context, s *spawnedRoutine, tickDelta time.Duration) (finished bool) {
	if l.panicHandler == nil {
		// The panic still unwinds out of Tick, but the routine is never resumed again.
		returned := false
		defer func() {
			if !returned {
				s.handle.done.Store(true)
			}
		}()
		finished = s.routine.Resume(ctx, tickDelta)
		returned = true
		return finished
	}

	defer func() {
		if rec := recover(); rec != nil {
			label := "routine"
			if lb, ok := s.routine.(Labeler); ok {
				label = lb.Label()
			}
			l.metrics.RecordTaskPanic(label, rec)
			l.panicHandler.HandlePanic(ctx, label, s.handle.id, rec, debug.Stack())
			finished = true
		}
	}()
	return s.routine.Resume(ctx, tickDelta)
}

// Live returns the number of routines that have not finished.
func (l *TickLoop) Live() int {
	live := 0
	for _, s := range l.routines {
		if !s.handle.Done() {
			live++
		}
	}
	return live
}

// TickCount returns how many times Tick has been called.
func (l *TickLoop) TickCount() uint64 { return l.ticks }

// Stats returns a snapshot of the loop state.
func (l *TickLoop) Stats() HostStats {
	return HostStats{Ticks: l.ticks, Live: l.Live()}
}
