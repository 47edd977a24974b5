package core

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"golang.org/x/time/rate"
)

// Owner identifies the scheduling context that owns a set of named queues.
// Any comparable value works; the registry only uses it as a map key.
type Owner = any

type queueState struct {
	pending   []*Descriptor
	running   bool
	locked    bool
	forgotten bool
	routine   *RoutineHandle
}

type ownerState struct {
	queues        map[string]*queueState
	lastQueueName string
	bypass        map[*RoutineHandle]struct{}
}

func (s *ownerState) queue(name string) *queueState {
	q, ok := s.queues[name]
	if !ok {
		q = &queueState{}
		s.queues[name] = q
	}
	return q
}

// Registry maps owner -> queue name -> pending tasks and drives each queue's
// drain on a Host. State is created lazily on first touch and released only
// by ForgetOwner; an owner that is never forgotten is retained.
//
// Registry is not safe for concurrent use. Call it from the goroutine that
// ticks its Host, or go through a Driver.
type Registry struct {
	host    Host
	owners  map[Owner]*ownerState
	logger  Logger
	metrics Metrics
	history executionHistory
	now     func() time.Time

	rejectLog *rate.Limiter
}

// NewRegistry creates a registry whose routines are spawned on host.
func NewRegistry(host Host, config *RegistryConfig) *Registry {
	if config == nil {
		config = DefaultRegistryConfig()
	}

	r := &Registry{
		host:    host,
		owners:  make(map[Owner]*ownerState),
		logger:  config.Logger,
		metrics: config.Metrics,
		history: newExecutionHistory(config.HistoryCapacity),
		now:     time.Now,
	}

	if r.logger == nil {
		r.logger = NewNoOpLogger()
	}
	if r.metrics == nil {
		r.metrics = &NilMetrics{}
	}
	interval := config.RejectLogInterval
	if interval <= 0 {
		interval = time.Second
	}
	r.rejectLog = rate.NewLimiter(rate.Every(interval), 1)

	return r
}

func (r *Registry) owner(o Owner) *ownerState {
	st, ok := r.owners[o]
	if !ok {
		st = &ownerState{
			queues: make(map[string]*queueState),
			bypass: make(map[*RoutineHandle]struct{}),
		}
		r.owners[o] = st
	}
	return st
}

func (r *Registry) lookup(o Owner, name string) (*queueState, bool) {
	st, ok := r.owners[o]
	if !ok {
		return nil, false
	}
	q, ok := st.queues[name]
	return q, ok
}

// =============================================================================
// Admission Gate
// =============================================================================

// Append enqueues desc on the named queue of owner and starts a drain if none
// is running. It returns false without storing anything when the queue is
// locked; the owner's last queue name is updated either way.
//
// A descriptor that was already appended or run is refused.
func (r *Registry) Append(owner Owner, name string, desc *Descriptor) bool {
	if desc == nil || desc.claimed {
		r.metrics.RecordTaskRejected(name, RejectReasonConsumed)
		return false
	}

	st := r.owner(owner)
	st.lastQueueName = name
	q := st.queue(name)

	if q.locked {
		r.metrics.RecordTaskRejected(name, RejectReasonLocked)
		if r.rejectLog.Allow() {
			r.logger.Debug("append rejected: queue locked",
				F("owner", ownerLabel(owner)),
				F("queue", name),
				F("pending", len(q.pending)),
			)
		}
		return false
	}

	desc.claimed = true
	q.pending = append(q.pending, desc)
	r.metrics.RecordQueueDepth(ownerLabel(owner), name, len(q.pending))

	r.Drain(owner, name)
	return true
}

// RequestLock closes the admission gate of a non-empty, unlocked queue and
// reports whether it did. The lock clears itself once the queue drains empty.
func (r *Registry) RequestLock(owner Owner, name string) bool {
	q := r.owner(owner).queue(name)
	if len(q.pending) == 0 || q.locked {
		return false
	}
	q.locked = true
	return true
}

// LastQueueName returns the queue name most recently passed to Append for owner.
func (r *Registry) LastQueueName(owner Owner) string {
	if st, ok := r.owners[owner]; ok {
		return st.lastQueueName
	}
	return ""
}

// ForgetOwner cancels every routine of owner and releases its state. Tasks
// still pending are dropped. A callback of owner that is executing when
// ForgetOwner is called finishes, but nothing else of that owner runs.
func (r *Registry) ForgetOwner(owner Owner) {
	st, ok := r.owners[owner]
	if !ok {
		return
	}
	for _, q := range st.queues {
		q.forgotten = true
		if q.routine != nil {
			q.routine.Cancel()
		}
	}
	for h := range st.bypass {
		h.Cancel()
	}
	delete(r.owners, owner)
}

// =============================================================================
// Read side
// =============================================================================

// Pending returns the number of descriptors waiting on (owner, name),
// including the one currently executing.
func (r *Registry) Pending(owner Owner, name string) int {
	if q, ok := r.lookup(owner, name); ok {
		return len(q.pending)
	}
	return 0
}

// IsRunning reports whether a drain is in progress on (owner, name).
func (r *Registry) IsRunning(owner Owner, name string) bool {
	q, ok := r.lookup(owner, name)
	return ok && q.running
}

// IsLocked reports whether (owner, name) currently rejects appends.
func (r *Registry) IsLocked(owner Owner, name string) bool {
	q, ok := r.lookup(owner, name)
	return ok && q.locked
}

// Owners returns the number of owners with registry state.
func (r *Registry) Owners() int { return len(r.owners) }

// Stats returns per-queue state sorted by owner label then queue name, and
// the number of live bypass routines.
func (r *Registry) Stats() ([]QueueStats, int) {
	var stats []QueueStats
	bypass := 0
	for o, st := range r.owners {
		label := ownerLabel(o)
		for name, q := range st.queues {
			stats = append(stats, QueueStats{
				Owner:   label,
				Name:    name,
				Pending: len(q.pending),
				Running: q.running,
				Locked:  q.locked,
			})
		}
		bypass += len(st.bypass)
	}
	slices.SortFunc(stats, func(a, b QueueStats) int {
		if c := cmp.Compare(a.Owner, b.Owner); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return stats, bypass
}

// RecentTasks returns up to limit completed tasks, newest first.
func (r *Registry) RecentTasks(limit int) []TaskExecutionRecord {
	return r.history.Recent(limit)
}

// LastTask returns the most recently completed task.
func (r *Registry) LastTask() (TaskExecutionRecord, bool) {
	return r.history.Last()
}

func (r *Registry) complete(owner Owner, queue string, bypass bool, e *Executor) {
	desc := e.Descriptor()
	label := queue
	if bypass {
		label = bypassLabel
	}
	r.metrics.RecordTaskDuration(label, desc.kind, e.Scheduled())
	r.history.Add(TaskExecutionRecord{
		TaskID:      desc.id,
		Name:        resolveTaskName(desc),
		Owner:       ownerLabel(owner),
		Queue:       queue,
		Bypass:      bypass,
		Kind:        desc.kind,
		Invocations: e.Invocations(),
		Resumes:     e.Resumes(),
		Scheduled:   e.Scheduled(),
		FinishedAt:  r.now(),
	})
}

const bypassLabel = "bypass"

func ownerLabel(o Owner) string {
	return fmt.Sprint(o)
}
