package prometheus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Swind/go-tick-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type snapshotStub struct {
	mu   sync.Mutex
	snap core.Snapshot
}

func (s *snapshotStub) Stats() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *snapshotStub) set(snap core.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

func TestSnapshotPoller_CollectsQueueAndHostStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("tickrunner", reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddDriver("main", &snapshotStub{snap: core.Snapshot{
		Host:   core.HostStats{Ticks: 42, Live: 2},
		Bypass: 1,
		Queues: []core.QueueStats{
			{Owner: "scene", Name: "intro", Pending: 3, Running: true, Locked: true},
		},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		pending := testutil.ToFloat64(poller.queuePending.WithLabelValues("main", "scene", "intro"))
		ticks := testutil.ToFloat64(poller.hostTicks.WithLabelValues("main"))
		return pending == 3 && ticks == 42
	})
	poller.Stop()

	if got := testutil.ToFloat64(poller.queueLocked.WithLabelValues("main", "scene", "intro")); got != 1 {
		t.Fatalf("queue locked gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.hostLive.WithLabelValues("main")); got != 2 {
		t.Fatalf("host live gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.bypassLive.WithLabelValues("main")); got != 1 {
		t.Fatalf("bypass gauge = %v, want 1", got)
	}
}

// TestSnapshotPoller_DropsForgottenQueues verifies queue series disappear with their owner
// Given: A provider that reported a queue in the previous collection
// When: The queue is gone from the next snapshot
// Then: No queue series remain
func TestSnapshotPoller_DropsForgottenQueues(t *testing.T) {
	// Arrange
	poller, err := NewSnapshotPoller("tickrunner", prom.NewRegistry(), time.Second)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}
	stub := &snapshotStub{snap: core.Snapshot{
		Queues: []core.QueueStats{{Owner: "scene", Name: "intro", Pending: 1}},
	}}
	poller.AddDriver("main", stub)
	poller.collectOnce()
	if n := testutil.CollectAndCount(poller.queuePending); n != 1 {
		t.Fatalf("series before = %d, want 1", n)
	}

	// Act
	stub.set(core.Snapshot{})
	poller.collectOnce()

	// Assert
	if n := testutil.CollectAndCount(poller.queuePending); n != 0 {
		t.Fatalf("series after = %d, want 0", n)
	}
}

// TestSnapshotPoller_Driver verifies a real driver can be polled
func TestSnapshotPoller_Driver(t *testing.T) {
	poller, err := NewSnapshotPoller("tickrunner", prom.NewRegistry(), time.Second)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}
	d := core.NewDriver(&core.DriverConfig{TickInterval: time.Millisecond, Logger: core.NewNoOpLogger()})
	defer d.Stop()
	poller.AddDriver("", d)

	assertEventually(t, 2*time.Second, func() bool {
		poller.collectOnce()
		return testutil.ToFloat64(poller.hostTicks.WithLabelValues("driver")) > 0
	})
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("", reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
