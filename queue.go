package tickrunner

import (
	"context"
	"time"

	"github.com/Swind/go-tick-runner/core"
)

// DefaultQueueName is used when neither the chain nor the owner's history names a queue.
const DefaultQueueName = "default"

// Scheduler is the registry surface Queue builds on. *core.Registry
// implements it directly; a Driver is adapted by OnDriver.
type Scheduler interface {
	Append(owner core.Owner, name string, desc *core.Descriptor) bool
	RunNow(owner core.Owner, desc *core.Descriptor) *core.RoutineHandle
	RequestLock(owner core.Owner, name string) bool
	LastQueueName(owner core.Owner) string
}

var _ Scheduler = (*core.Registry)(nil)

// Queue is a chainable builder over one owner's queues.
//
// Name selects the queue; when it is never called the owner's last used
// queue is targeted, falling back to DefaultQueueName. Delay, When and Named
// apply to the next task only. Do, DoWith, Loop and Forever append a task and
// return the same Queue so calls can be chained; Accepted reports whether
// the most recent append was admitted.
//
// A Queue is not safe for concurrent use.
type Queue struct {
	s     Scheduler
	owner core.Owner
	name  string

	delay    time.Duration
	cond     core.Condition
	taskName string

	accepted bool
}

// On returns a Queue for owner on s.
func On(s Scheduler, owner core.Owner) *Queue {
	return &Queue{s: s, owner: owner}
}

// FromContext returns a Queue targeting the queue the current callback runs
// on, so the callback can schedule follow-up work without blocking. Bypass
// callbacks get a Queue on the owner's last used queue. ok is false outside
// a callback.
func FromContext(ctx context.Context) (q *Queue, ok bool) {
	r := core.RegistryFromContext(ctx)
	ref, found := core.CurrentQueue(ctx)
	if r == nil || !found {
		return nil, false
	}
	q = On(r, ref.Owner)
	if !ref.Bypass {
		q.name = ref.Name
	}
	return q, true
}

// Name selects the queue for every following task in the chain.
func (q *Queue) Name(name string) *Queue {
	q.name = name
	return q
}

// Delay suspends the next task for d of scheduled time before it starts.
func (q *Queue) Delay(d time.Duration) *Queue {
	q.delay = d
	return q
}

// When holds the next task until c reports true. It is checked after Delay.
func (q *Queue) When(c core.Condition) *Queue {
	q.cond = c
	return q
}

// Named sets the history name of the next task.
func (q *Queue) Named(taskName string) *Queue {
	q.taskName = taskName
	return q
}

// Do appends a one-shot plain callback.
func (q *Queue) Do(fn core.PlainFunc) *Queue {
	return q.append(core.NewTask(core.Plain(fn), q.options()...))
}

// DoWith appends a one-shot callback that receives its Handle.
func (q *Queue) DoWith(fn core.HandleFunc) *Queue {
	return q.append(core.NewTask(core.WithHandle(fn), q.options()...))
}

// Loop appends a loop that runs fn once per tick for d of scheduled time.
// A zero d loops until the handle is deactivated; a negative d never runs fn.
func (q *Queue) Loop(d time.Duration, fn core.HandleFunc) *Queue {
	if d == 0 {
		return q.Forever(fn)
	}
	return q.append(core.NewBoundedLoop(d, core.WithHandle(fn), q.options()...))
}

// Forever appends a loop that runs fn once per tick until the handle is deactivated.
func (q *Queue) Forever(fn core.HandleFunc) *Queue {
	return q.append(core.NewUnboundedLoop(core.WithHandle(fn), q.options()...))
}

// Now runs fn immediately on the bypass path, ignoring queue order and locks.
// Delay, When and Named still apply. The returned handle's Done method can be
// passed to When, and may be polled from any goroutine.
func (q *Queue) Now(fn core.PlainFunc) *core.RoutineHandle {
	desc := core.NewTask(core.Plain(fn), q.options()...)
	q.reset()
	return q.s.RunNow(q.owner, desc)
}

// NowWith is Now for a handle-aware callback.
func (q *Queue) NowWith(fn core.HandleFunc) *core.RoutineHandle {
	desc := core.NewTask(core.WithHandle(fn), q.options()...)
	q.reset()
	return q.s.RunNow(q.owner, desc)
}

// Lock closes the selected queue to new tasks until it drains.
// It reports false when the queue is empty or already locked.
func (q *Queue) Lock() bool {
	return q.s.RequestLock(q.owner, q.target())
}

// Accepted reports whether the most recent Do, DoWith, Loop or Forever was admitted.
func (q *Queue) Accepted() bool { return q.accepted }

// Target returns the queue name the next task would be appended to.
func (q *Queue) Target() string { return q.target() }

func (q *Queue) target() string {
	if q.name != "" {
		return q.name
	}
	if last := q.s.LastQueueName(q.owner); last != "" {
		return last
	}
	return DefaultQueueName
}

func (q *Queue) options() []core.TaskOption {
	opts := make([]core.TaskOption, 0, 3)
	if q.delay > 0 {
		opts = append(opts, core.WithDelay(q.delay))
	}
	if q.cond != nil {
		opts = append(opts, core.WithCondition(q.cond))
	}
	if q.taskName != "" {
		opts = append(opts, core.WithName(q.taskName))
	}
	return opts
}

func (q *Queue) append(desc *core.Descriptor) *Queue {
	q.reset()
	q.accepted = q.s.Append(q.owner, q.target(), desc)
	return q
}

func (q *Queue) reset() {
	q.delay = 0
	q.cond = nil
	q.taskName = ""
}

// =============================================================================
// Driver-backed Scheduler
// =============================================================================

// OnDriver returns a Queue for owner that submits through d. Each call
// blocks until the driver goroutine has applied it, so it must not be used
// from inside a callback; use FromContext there. Calls on a closed driver
// report false.
func OnDriver(d *core.Driver, owner core.Owner) *Queue {
	return On(driverScheduler{d: d}, owner)
}

type driverScheduler struct {
	d *core.Driver
}

func (s driverScheduler) Append(owner core.Owner, name string, desc *core.Descriptor) bool {
	ok, err := s.d.Append(context.Background(), owner, name, desc)
	return err == nil && ok
}

func (s driverScheduler) RunNow(owner core.Owner, desc *core.Descriptor) *core.RoutineHandle {
	h, err := s.d.RunNow(context.Background(), owner, desc)
	if err != nil {
		return nil
	}
	return h
}

func (s driverScheduler) RequestLock(owner core.Owner, name string) bool {
	ok, err := s.d.RequestLock(context.Background(), owner, name)
	return err == nil && ok
}

func (s driverScheduler) LastQueueName(owner core.Owner) string {
	name, err := s.d.LastQueueName(context.Background(), owner)
	if err != nil {
		return ""
	}
	return name
}
