package core

import (
	"context"
	"time"
)

// RunNow executes desc immediately, outside every named queue. It ignores
// queue locks and running drains; any number of bypass tasks progress side
// by side. The returned handle's Done method can be used as a Condition.
//
// A descriptor that was already appended or run is refused and nil is returned.
func (r *Registry) RunNow(owner Owner, desc *Descriptor) *RoutineHandle {
	if desc == nil || desc.claimed {
		r.metrics.RecordTaskRejected(bypassLabel, RejectReasonConsumed)
		return nil
	}
	desc.claimed = true

	st := r.owner(owner)
	b := &bypassRoutine{
		reg:   r,
		owner: owner,
		st:    st,
		exec:  NewExecutor(desc),
	}
	b.handle = r.host.Spawn(b)
	if !b.handle.Done() {
		st.bypass[b.handle] = struct{}{}
	}
	return b.handle
}

type bypassRoutine struct {
	reg    *Registry
	owner  Owner
	st     *ownerState
	exec   *Executor
	handle *RoutineHandle
}

func (b *bypassRoutine) Label() string { return bypassLabel }

func (b *bypassRoutine) Resume(ctx context.Context, tickDelta time.Duration) bool {
	ctx = withQueue(ctx, b.reg, QueueRef{Owner: b.owner, Bypass: true})
	if !b.exec.Resume(ctx, tickDelta) {
		return false
	}
	delete(b.st.bypass, b.handle)
	b.reg.complete(b.owner, "", true, b.exec)
	return true
}
