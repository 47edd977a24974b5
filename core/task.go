package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskID uniquely identifies an enqueued descriptor.
type TaskID uuid.UUID

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

// IsZero reports whether the ID was never assigned.
func (id TaskID) IsZero() bool {
	return id == TaskID(uuid.Nil)
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// MarshalText encodes the ID in its canonical string form.
func (id TaskID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// Condition reports whether a suspended task may continue.
// It is polled at most once per tick on the ticking goroutine.
type Condition func() bool

// =============================================================================
// TaskKind: how a descriptor is executed
// =============================================================================

type TaskKind int

const (
	// TaskKindOneShot runs its callback once after the optional delay/condition.
	TaskKindOneShot TaskKind = iota

	// TaskKindBoundedLoop runs its callback once per tick until loopDuration elapses.
	TaskKindBoundedLoop

	// TaskKindUnboundedLoop runs its callback once per tick until deactivated.
	TaskKindUnboundedLoop
)

func (k TaskKind) String() string {
	switch k {
	case TaskKindOneShot:
		return "one_shot"
	case TaskKindBoundedLoop:
		return "bounded_loop"
	case TaskKindUnboundedLoop:
		return "unbounded_loop"
	default:
		return "unknown"
	}
}

// =============================================================================
// Action: tagged variant over the two callback shapes
// =============================================================================

// PlainFunc is a callback that does not receive an execution handle.
type PlainFunc func(ctx context.Context)

// HandleFunc is a callback that controls its own execution through h.
type HandleFunc func(ctx context.Context, h *Handle)

// Action holds exactly one of a PlainFunc or a HandleFunc.
type Action struct {
	plain PlainFunc
	aware HandleFunc
}

// Plain wraps fn as an Action that is invoked without a handle.
func Plain(fn PlainFunc) Action {
	return Action{plain: fn}
}

// WithHandle wraps fn as an Action that receives the execution handle.
func WithHandle(fn HandleFunc) Action {
	return Action{aware: fn}
}

// IsHandleAware reports whether the action takes a *Handle.
func (a Action) IsHandleAware() bool { return a.aware != nil }

// IsZero reports whether the action holds no callback.
func (a Action) IsZero() bool { return a.plain == nil && a.aware == nil }

func (a Action) invoke(ctx context.Context, h *Handle) {
	switch {
	case a.aware != nil:
		a.aware(ctx, h)
	case a.plain != nil:
		a.plain(ctx)
	}
}

// =============================================================================
// Descriptor: one enqueued unit of work
// =============================================================================

// Descriptor is an immutable record of one unit of work. A descriptor can be
// handed to Append or RunNow once; later attempts are refused.
type Descriptor struct {
	id           TaskID
	name         string
	delay        time.Duration
	condition    Condition
	action       Action
	kind         TaskKind
	loopDuration time.Duration

	claimed bool
}

// TaskOption customizes a Descriptor at construction time.
type TaskOption func(*Descriptor)

// WithDelay suspends the task for d of scheduled time before it starts.
func WithDelay(d time.Duration) TaskOption {
	return func(desc *Descriptor) {
		if d > 0 {
			desc.delay = d
		}
	}
}

// WithCondition suspends the task until c reports true. It is checked after the delay.
func WithCondition(c Condition) TaskOption {
	return func(desc *Descriptor) { desc.condition = c }
}

// WithName sets the name used in execution history and logs.
func WithName(name string) TaskOption {
	return func(desc *Descriptor) { desc.name = name }
}

func newDescriptor(kind TaskKind, action Action, loopDuration time.Duration, opts []TaskOption) *Descriptor {
	desc := &Descriptor{
		id:           GenerateTaskID(),
		kind:         kind,
		action:       action,
		loopDuration: loopDuration,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(desc)
		}
	}
	return desc
}

// NewTask creates a one-shot descriptor.
func NewTask(action Action, opts ...TaskOption) *Descriptor {
	return newDescriptor(TaskKindOneShot, action, 0, opts)
}

// NewBoundedLoop creates a loop that runs once per tick while its handle's
// elapsed time is below duration. A non-positive duration never invokes action.
func NewBoundedLoop(duration time.Duration, action Action, opts ...TaskOption) *Descriptor {
	return newDescriptor(TaskKindBoundedLoop, action, duration, opts)
}

// NewUnboundedLoop creates a loop that runs once per tick until its handle is deactivated.
func NewUnboundedLoop(action Action, opts ...TaskOption) *Descriptor {
	return newDescriptor(TaskKindUnboundedLoop, action, 0, opts)
}

func (d *Descriptor) ID() TaskID                  { return d.id }
func (d *Descriptor) Name() string                { return d.name }
func (d *Descriptor) Delay() time.Duration        { return d.delay }
func (d *Descriptor) Condition() Condition        { return d.condition }
func (d *Descriptor) Action() Action              { return d.action }
func (d *Descriptor) Kind() TaskKind              { return d.kind }
func (d *Descriptor) LoopDuration() time.Duration { return d.loopDuration }

// =============================================================================
// Context Helper
// =============================================================================

// QueueRef identifies where the currently executing callback was scheduled.
type QueueRef struct {
	Owner  Owner
	Name   string
	Bypass bool
}

type registryKeyType struct{}
type queueKeyType struct{}

var (
	registryKey registryKeyType
	queueKey    queueKeyType
)

func withQueue(ctx context.Context, r *Registry, ref QueueRef) context.Context {
	ctx = context.WithValue(ctx, registryKey, r)
	return context.WithValue(ctx, queueKey, ref)
}

// RegistryFromContext returns the registry executing the current callback.
func RegistryFromContext(ctx context.Context) *Registry {
	if v := ctx.Value(registryKey); v != nil {
		return v.(*Registry)
	}
	return nil
}

// CurrentQueue returns the queue the current callback was scheduled on.
func CurrentQueue(ctx context.Context) (QueueRef, bool) {
	ref, ok := ctx.Value(queueKey).(QueueRef)
	return ref, ok
}
