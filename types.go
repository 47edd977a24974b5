package tickrunner

import "github.com/Swind/go-tick-runner/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the tickrunner package for most use cases.

// Owner scopes a set of named queues
type Owner = core.Owner

// Descriptor is one enqueued unit of work
type Descriptor = core.Descriptor

// Action is a plain or handle-aware callback
type Action = core.Action

// Handle controls a running task from inside its callback
type Handle = core.Handle

// Condition gates a task until it reports true
type Condition = core.Condition

// Wait is a post-callback suspension
type Wait = core.Wait

// TaskOption customizes a Descriptor
type TaskOption = core.TaskOption

// RoutineHandle tracks a spawned drain or bypass routine
type RoutineHandle = core.RoutineHandle

// Registry owns the per-owner queues
type Registry = core.Registry

// TickLoop is the manually ticked host
type TickLoop = core.TickLoop

// Driver ticks a registry on its own goroutine
type Driver = core.Driver

// DriverConfig configures a Driver
type DriverConfig = core.DriverConfig

// Constructors and options
var (
	Plain            = core.Plain
	WithHandle       = core.WithHandle
	NewTask          = core.NewTask
	NewBoundedLoop   = core.NewBoundedLoop
	NewUnboundedLoop = core.NewUnboundedLoop
	WithDelay        = core.WithDelay
	WithCondition    = core.WithCondition
	WithName         = core.WithName
	After            = core.After
	Until            = core.Until
)

// NewTickLoop creates a TickLoop without a panic handler.
func NewTickLoop() *TickLoop {
	return core.NewTickLoop(nil)
}

// NewRegistry creates a registry on loop with default configuration.
func NewRegistry(loop *TickLoop) *Registry {
	return core.NewRegistry(loop, nil)
}

// NewDriver creates and starts a Driver. A nil config uses DefaultDriverConfig.
func NewDriver(config *DriverConfig) *Driver {
	return core.NewDriver(config)
}

// RegistryFromContext retrieves the registry running the current callback
var RegistryFromContext = core.RegistryFromContext

// CurrentQueue retrieves where the current callback was scheduled
var CurrentQueue = core.CurrentQueue
