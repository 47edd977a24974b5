// Package tickrunner provides a cooperative, tick-driven task sequencer for Go.
//
// Callers enqueue delayed, conditional or repeating callbacks onto named queues
// scoped to an owner. Each queue runs its tasks strictly one after another;
// different queues progress independently on the same tick. A queue can be
// locked to refuse new work until it drains, and RunNow bypasses queues
// entirely.
//
// Time only advances through ticks. Delays and loop durations are measured in
// accumulated tick deltas, not wall-clock time, so the same schedule runs
// identically under a fixed-step test loop and a real-time driver.
//
// # Quick Start
//
// Initialize the global driver at application startup:
//
//	tickrunner.InitGlobalDriver(nil) // 16ms ticks
//	defer tickrunner.ShutdownGlobalDriver()
//
// Build tasks with the Queue call surface:
//
//	player := &Player{}
//	tickrunner.Sequence(player).Name("intro").
//		Delay(time.Second).Do(func(ctx context.Context) {
//			fmt.Println("after one second")
//		}).
//		Loop(2*time.Second, func(ctx context.Context, h *tickrunner.Handle) {
//			fade(h.DeltaTime())
//		})
//
// # Key Concepts
//
// Owner: any comparable value that scopes a set of named queues. ForgetOwner
// releases everything an owner scheduled.
//
// Queue: a FIFO list of task descriptors drained by one routine at a time.
// Tasks appended while a queue drains run after the current pass.
//
// Handle: passed to handle-aware callbacks. Loops read DeltaTime and Elapsed
// from it and stop by calling Deactivate; any callback can request one more
// wait with WaitFor or WaitUntil.
//
// # Thread Safety
//
// Registry and TickLoop belong to the goroutine that ticks them. Driver runs
// both on a dedicated goroutine; other goroutines reach it through Post, Call
// or the Driver-backed Queue. Callbacks must use FromContext rather than the
// global driver, since they already run on the driver goroutine.
//
// For lower-level control see package core.
package tickrunner
