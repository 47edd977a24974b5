package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling routine panics
// =============================================================================

// PanicHandler is called when a routine panics during a tick.
// The core never recovers callback panics itself; a host that wants to keep
// ticking installs a PanicHandler on its TickLoop.
type PanicHandler interface {
	// HandlePanic is called when a routine panics.
	//
	// Parameters:
	// - ctx: The context passed to the tick
	// - label: The queue name, "bypass", or "routine" for foreign routines
	// - routineID: The host-assigned routine ID
	// - panicInfo: The recovered value
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, label string, routineID uint64, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics through Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, label string, routineID uint64, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("routine panicked",
		F("queue", label),
		F("routine", routineID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Queue labels are queue names; bypass tasks use "bypass".
//
// Methods are called on the ticking goroutine and should be non-blocking.
type Metrics interface {
	// RecordTaskDuration records how much scheduled time a task spent from its
	// first resume to completion.
	RecordTaskDuration(queue string, kind TaskKind, duration time.Duration)

	// RecordTaskPanic records that a routine panicked and was recovered by the host.
	RecordTaskPanic(queue string, panicInfo any)

	// RecordQueueDepth records the pending list length of one owner's queue
	// after it changed. owner is the fmt.Sprint form of the Owner.
	RecordQueueDepth(owner, queue string, depth int)

	// RecordTaskRejected records that an append or bypass was refused.
	RecordTaskRejected(queue string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(queue string, kind TaskKind, duration time.Duration) {}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(queue string, panicInfo any) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(owner, queue string, depth int) {}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(queue string, reason string) {}

// Rejection reasons passed to Metrics.RecordTaskRejected.
const (
	RejectReasonLocked   = "locked"
	RejectReasonConsumed = "consumed"
)

// =============================================================================
// RegistryConfig: Configuration for Registry
// =============================================================================

// RegistryConfig holds configuration options for Registry.
// All fields are optional; zero values are replaced by defaults.
type RegistryConfig struct {
	// Logger receives debug output. Defaults to NoOpLogger.
	Logger Logger

	// Metrics records task metrics. Defaults to NilMetrics.
	Metrics Metrics

	// HistoryCapacity bounds the execution history ring buffer. Defaults to 100.
	HistoryCapacity int

	// RejectLogInterval throttles the debug log line written for rejected
	// appends. Defaults to one second.
	RejectLogInterval time.Duration
}

// DefaultRegistryConfig returns a config with default handlers.
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		Logger:            NewNoOpLogger(),
		Metrics:           &NilMetrics{},
		HistoryCapacity:   defaultTaskHistoryCapacity,
		RejectLogInterval: time.Second,
	}
}
