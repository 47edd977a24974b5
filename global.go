package tickrunner

import (
	"context"
	"sync"

	"github.com/Swind/go-tick-runner/core"
)

var (
	globalDriver *core.Driver
	globalMu     sync.Mutex
)

// InitGlobalDriver creates and starts the global driver. A nil config uses
// core.DefaultDriverConfig. Later calls are ignored until ShutdownGlobalDriver.
func InitGlobalDriver(config *core.DriverConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDriver != nil {
		return // Already initialized
	}

	globalDriver = core.NewDriver(config)
}

// GlobalDriver returns the global driver instance.
// It panics if InitGlobalDriver has not been called.
func GlobalDriver() *core.Driver {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDriver == nil {
		panic("global driver not initialized. Call InitGlobalDriver() first.")
	}
	return globalDriver
}

// ShutdownGlobalDriver stops the global driver and waits for its goroutine to exit.
func ShutdownGlobalDriver() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDriver != nil {
		globalDriver.Stop()
		globalDriver = nil
	}
}

// Sequence returns a Queue for owner on the global driver.
// This is the recommended entry point outside callbacks.
func Sequence(owner core.Owner) *Queue {
	return OnDriver(GlobalDriver(), owner)
}

// Forget releases everything owner scheduled on the global driver.
func Forget(owner core.Owner) {
	d := GlobalDriver()
	d.Post(func(_ context.Context, r *core.Registry) { r.ForgetOwner(owner) })
}
