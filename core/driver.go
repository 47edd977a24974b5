package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDriverClosed is returned by Driver operations after Shutdown or Stop.
var ErrDriverClosed = errors.New("driver is closed")

// ErrCallPanicked is returned by Call and the blocking wrappers when the work
// panicked on the driver goroutine. The panic goes to the PanicHandler.
var ErrCallPanicked = errors.New("driver call panicked")

const (
	defaultTickInterval  = 16 * time.Millisecond
	defaultWorkQueueSize = 100
)

// DriverConfig holds configuration options for Driver.
// All fields are optional; zero values are replaced by defaults.
type DriverConfig struct {
	// TickInterval is the wall-clock period between ticks. Defaults to 16ms.
	TickInterval time.Duration

	// WorkQueueSize is the buffer of the Post queue. Defaults to 100.
	WorkQueueSize int

	// Logger defaults to NewDefaultLogger().
	Logger Logger

	// Metrics defaults to NilMetrics.
	Metrics Metrics

	// PanicHandler defaults to a DefaultPanicHandler writing to Logger.
	PanicHandler PanicHandler

	// HistoryCapacity and RejectLogInterval are passed to the Registry.
	HistoryCapacity   int
	RejectLogInterval time.Duration
}

// DefaultDriverConfig returns a config with default handlers.
func DefaultDriverConfig() *DriverConfig {
	logger := NewDefaultLogger()
	return &DriverConfig{
		TickInterval:      defaultTickInterval,
		WorkQueueSize:     defaultWorkQueueSize,
		Logger:            logger,
		Metrics:           &NilMetrics{},
		PanicHandler:      &DefaultPanicHandler{Logger: logger},
		HistoryCapacity:   defaultTaskHistoryCapacity,
		RejectLogInterval: time.Second,
	}
}

// WorkFunc runs on the driver goroutine with exclusive access to the registry.
type WorkFunc func(ctx context.Context, r *Registry)

// Driver owns a TickLoop and a Registry on a dedicated goroutine and ticks
// them with a wall-clock ticker. The tick delta is the measured time since
// the previous tick.
//
// Other goroutines reach the registry through Post, Call or the blocking
// wrappers. Callbacks already run on the driver goroutine and must use
// RegistryFromContext instead: a blocking wrapper called from a callback
// waits for itself.
type Driver struct {
	loop     *TickLoop
	registry *Registry
	interval time.Duration
	logger   Logger
	panics   PanicHandler

	workQueue chan WorkFunc

	// Lifecycle control
	ctx    context.Context
	cancel context.CancelFunc

	stopped      chan struct{}
	once         sync.Once
	closed       atomic.Bool
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	snapshot    atomic.Pointer[Snapshot]
	idleWaiters []chan struct{}
}

// NewDriver creates and starts a Driver.
func NewDriver(config *DriverConfig) *Driver {
	if config == nil {
		config = DefaultDriverConfig()
	}

	interval := config.TickInterval
	if interval <= 0 {
		interval = defaultTickInterval
	}
	queueSize := config.WorkQueueSize
	if queueSize <= 0 {
		queueSize = defaultWorkQueueSize
	}
	logger := config.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &NilMetrics{}
	}
	panics := config.PanicHandler
	if panics == nil {
		panics = &DefaultPanicHandler{Logger: logger}
	}

	loop := NewTickLoop(&TickLoopConfig{PanicHandler: panics, Metrics: metrics})
	registry := NewRegistry(loop, &RegistryConfig{
		Logger:            logger,
		Metrics:           metrics,
		HistoryCapacity:   config.HistoryCapacity,
		RejectLogInterval: config.RejectLogInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		loop:         loop,
		registry:     registry,
		interval:     interval,
		logger:       logger,
		panics:       panics,
		workQueue:    make(chan WorkFunc, queueSize),
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
		shutdownChan: make(chan struct{}),
	}
	d.publish(time.Now())

	go d.runLoop()

	return d
}

// Post queues fn to run on the driver goroutine between ticks.
// It returns false when the driver is closed.
func (d *Driver) Post(fn WorkFunc) bool {
	if fn == nil || d.closed.Load() {
		return false
	}

	select {
	case <-d.ctx.Done():
		return false
	case d.workQueue <- fn:
		return true
	}
}

// Call runs fn on the driver goroutine and waits for it to return. It
// returns ErrCallPanicked when fn panicked.
func (d *Driver) Call(ctx context.Context, fn WorkFunc) error {
	_, err := callResult(ctx, d, func(c context.Context, r *Registry) struct{} {
		fn(c, r)
		return struct{}{}
	})
	return err
}

// callResult runs fn on the driver goroutine. When ctx ends first, fn either
// never runs or has already started and its result is returned; a caller that
// sees ctx.Err() knows nothing was applied.
func callResult[T any](ctx context.Context, d *Driver, fn func(ctx context.Context, r *Registry) T) (T, error) {
	const (
		callPending int32 = iota
		callStarted
		callAbandoned
	)

	var (
		zero     T
		result   T
		returned bool
		state    atomic.Int32
	)
	finished := make(chan struct{})
	if !d.Post(func(c context.Context, r *Registry) {
		if !state.CompareAndSwap(callPending, callStarted) {
			return
		}
		defer close(finished)
		result = fn(c, r)
		returned = true
	}) {
		return zero, ErrDriverClosed
	}

	select {
	case <-finished:
	case <-ctx.Done():
		if state.CompareAndSwap(callPending, callAbandoned) {
			return zero, ctx.Err()
		}
		// fn already started; its effect will be applied, so wait for it.
		select {
		case <-finished:
		case <-d.stopped:
			return zero, ErrDriverClosed
		}
	case <-d.stopped:
		return zero, ErrDriverClosed
	}

	if !returned {
		return zero, ErrCallPanicked
	}
	return result, nil
}

// Append is Registry.Append executed on the driver goroutine.
func (d *Driver) Append(ctx context.Context, owner Owner, name string, desc *Descriptor) (bool, error) {
	return callResult(ctx, d, func(_ context.Context, r *Registry) bool {
		return r.Append(owner, name, desc)
	})
}

// RunNow is Registry.RunNow executed on the driver goroutine. The returned
// handle's Done and Cancel are safe to call from any goroutine.
func (d *Driver) RunNow(ctx context.Context, owner Owner, desc *Descriptor) (*RoutineHandle, error) {
	return callResult(ctx, d, func(_ context.Context, r *Registry) *RoutineHandle {
		return r.RunNow(owner, desc)
	})
}

// RequestLock is Registry.RequestLock executed on the driver goroutine.
func (d *Driver) RequestLock(ctx context.Context, owner Owner, name string) (bool, error) {
	return callResult(ctx, d, func(_ context.Context, r *Registry) bool {
		return r.RequestLock(owner, name)
	})
}

// LastQueueName is Registry.LastQueueName executed on the driver goroutine.
func (d *Driver) LastQueueName(ctx context.Context, owner Owner) (string, error) {
	return callResult(ctx, d, func(_ context.Context, r *Registry) string {
		return r.LastQueueName(owner)
	})
}

// ForgetOwner is Registry.ForgetOwner executed on the driver goroutine.
func (d *Driver) ForgetOwner(ctx context.Context, owner Owner) error {
	return d.Call(ctx, func(_ context.Context, r *Registry) {
		r.ForgetOwner(owner)
	})
}

// RecentTasks is Registry.RecentTasks executed on the driver goroutine.
func (d *Driver) RecentTasks(ctx context.Context, limit int) ([]TaskExecutionRecord, error) {
	return callResult(ctx, d, func(_ context.Context, r *Registry) []TaskExecutionRecord {
		return r.RecentTasks(limit)
	})
}

// WaitIdle blocks until a tick boundary at which no routine is live: every
// queue has drained and every bypass task has finished. Work posted after
// WaitIdle was called may or may not be waited for.
func (d *Driver) WaitIdle(ctx context.Context) error {
	if d.IsClosed() {
		return ErrDriverClosed
	}

	idle := make(chan struct{})
	if !d.Post(func(context.Context, *Registry) {
		if d.loop.Live() == 0 {
			close(idle)
			return
		}
		d.idleWaiters = append(d.idleWaiters, idle)
	}) {
		return ErrDriverClosed
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopped:
		return ErrDriverClosed
	}
}

// Stats returns the snapshot published after the most recent tick.
func (d *Driver) Stats() Snapshot {
	if s := d.snapshot.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}

// Interval returns the wall-clock tick period.
func (d *Driver) Interval() time.Duration { return d.interval }

// =============================================================================
// Shutdown and Lifecycle Management
// =============================================================================

// Shutdown marks the driver as closed and signals shutdown waiters.
// It may be called from a callback; the loop goroutine exits at its next
// select. Call Stop from outside to wait for it.
func (d *Driver) Shutdown() {
	d.shutdownOnce.Do(func() {
		d.closed.Store(true)
		d.cancel()
		close(d.shutdownChan)
	})
}

// IsClosed returns true if the driver has been shut down or stopped.
func (d *Driver) IsClosed() bool {
	return d.closed.Load()
}

// Stop shuts the driver down and waits for the loop goroutine to exit.
// It must not be called from a callback.
func (d *Driver) Stop() {
	d.once.Do(func() {
		d.Shutdown()
		<-d.stopped
	})
}

// WaitShutdown blocks until Shutdown is called.
func (d *Driver) WaitShutdown(ctx context.Context) error {
	select {
	case <-d.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop is the core of the driver, it occupies a dedicated goroutine
func (d *Driver) runLoop() {
	defer close(d.stopped)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case fn := <-d.workQueue:
			d.runWork(fn)

		case now := <-ticker.C:
			delta := now.Sub(last)
			last = now
			d.loop.Tick(d.ctx, delta)
			d.publish(now)
			d.releaseIdleWaiters()

		case <-d.ctx.Done():
			d.logger.Debug("driver stopped", F("ticks", d.loop.TickCount()))
			return
		}
	}
}

func (d *Driver) runWork(fn WorkFunc) {
	defer func() {
		if rec := recover(); rec != nil {
			d.panics.HandlePanic(d.ctx, "post", 0, rec, nil)
		}
	}()
	fn(d.ctx, d.registry)
}

func (d *Driver) publish(now time.Time) {
	queues, bypass := d.registry.Stats()
	d.snapshot.Store(&Snapshot{
		Host:    d.loop.Stats(),
		Queues:  queues,
		Bypass:  bypass,
		TakenAt: now,
	})
}

func (d *Driver) releaseIdleWaiters() {
	if len(d.idleWaiters) == 0 || d.loop.Live() > 0 {
		return
	}
	for _, ch := range d.idleWaiters {
		close(ch)
	}
	d.idleWaiters = nil
}
