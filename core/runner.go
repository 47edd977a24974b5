package core

import (
	"context"
	"time"
)

// Drain starts a sequential pass over the pending tasks of (owner, name).
// It is a no-op when the queue has nothing pending or a drain is already in
// progress, so repeated triggers from repeated appends collapse into one.
func (r *Registry) Drain(owner Owner, name string) {
	q, ok := r.lookup(owner, name)
	if !ok || len(q.pending) == 0 || q.running {
		return
	}

	// Check and set happen without yielding to any callback.
	q.running = true
	d := &drainRoutine{
		reg:   r,
		owner: owner,
		name:  name,
		q:     q,
	}
	d.beginPass()
	q.routine = r.host.Spawn(d)
}

// drainRoutine executes one queue's tasks one at a time. Each pass iterates a
// copy of the pending list so callbacks may append to the same queue; tasks
// appended during a pass run in the next pass, in append order.
type drainRoutine struct {
	reg   *Registry
	owner Owner
	name  string
	q     *queueState

	snapshot []*Descriptor
	next     int
	exec     *Executor
}

func (d *drainRoutine) Label() string { return d.name }

func (d *drainRoutine) beginPass() {
	d.snapshot = append([]*Descriptor(nil), d.q.pending...)
	d.next = 0
	d.exec = nil
}

// Resume runs the current task until it suspends, moving on to the next
// snapshot entry in the same tick whenever a task completes.
func (d *drainRoutine) Resume(ctx context.Context, tickDelta time.Duration) bool {
	ctx = withQueue(ctx, d.reg, QueueRef{Owner: d.owner, Name: d.name})

	for {
		if d.q.forgotten {
			return true
		}

		if d.exec == nil {
			if d.next >= len(d.snapshot) {
				if d.endPass() {
					return true
				}
				continue
			}
			d.exec = NewExecutor(d.snapshot[d.next])
		}

		if !d.exec.Resume(ctx, tickDelta) {
			return false
		}
		if d.q.forgotten {
			return true
		}

		d.remove(d.exec.Descriptor())
		d.reg.complete(d.owner, d.name, false, d.exec)
		d.snapshot[d.next] = nil
		d.next++
		d.exec = nil
	}
}

// remove deletes that exact descriptor instance from the live pending list.
func (d *drainRoutine) remove(desc *Descriptor) {
	for i, p := range d.q.pending {
		if p == desc {
			d.q.pending = append(d.q.pending[:i], d.q.pending[i+1:]...)
			break
		}
	}
	d.reg.metrics.RecordQueueDepth(ownerLabel(d.owner), d.name, len(d.q.pending))
}

// endPass finishes a pass and reports whether the drain is over. Tasks
// appended during the pass start a new pass immediately.
func (d *drainRoutine) endPass() bool {
	d.q.running = false

	if len(d.q.pending) > 0 {
		d.q.running = true
		d.beginPass()
		return false
	}

	d.q.locked = false
	d.q.routine = nil
	return true
}
