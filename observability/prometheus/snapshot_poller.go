package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-tick-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SnapshotProvider provides the latest published driver snapshot.
// *core.Driver implements it.
type SnapshotProvider interface {
	Stats() core.Snapshot
}

var _ SnapshotProvider = (*core.Driver)(nil)

// SnapshotPoller periodically exports driver Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	driversMu sync.RWMutex
	drivers   map[string]SnapshotProvider

	queuePending *prom.GaugeVec
	queueRunning *prom.GaugeVec
	queueLocked  *prom.GaugeVec

	hostLive   *prom.GaugeVec
	hostTicks  *prom.GaugeVec
	bypassLive *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "tickrunner"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	queueLabels := []string{"driver", "owner", "queue"}
	queuePending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_pending",
		Help:      "Pending tasks per owner queue, including the executing one.",
	}, queueLabels)
	queueRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_running",
		Help:      "Queue drain state (1=draining, 0=idle).",
	}, queueLabels)
	queueLocked := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_locked",
		Help:      "Queue admission state (1=locked, 0=open).",
	}, queueLabels)

	hostLive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "host_live_routines",
		Help:      "Routines resumed on the next tick.",
	}, []string{"driver"})
	hostTicks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "host_ticks",
		Help:      "Ticks performed since the driver started.",
	}, []string{"driver"})
	bypassLive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "bypass_live",
		Help:      "Bypass tasks that have not finished.",
	}, []string{"driver"})

	var err error
	if queuePending, err = registerCollector(reg, queuePending); err != nil {
		return nil, err
	}
	if queueRunning, err = registerCollector(reg, queueRunning); err != nil {
		return nil, err
	}
	if queueLocked, err = registerCollector(reg, queueLocked); err != nil {
		return nil, err
	}
	if hostLive, err = registerCollector(reg, hostLive); err != nil {
		return nil, err
	}
	if hostTicks, err = registerCollector(reg, hostTicks); err != nil {
		return nil, err
	}
	if bypassLive, err = registerCollector(reg, bypassLive); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:     interval,
		drivers:      make(map[string]SnapshotProvider),
		queuePending: queuePending,
		queueRunning: queueRunning,
		queueLocked:  queueLocked,
		hostLive:     hostLive,
		hostTicks:    hostTicks,
		bypassLive:   bypassLive,
	}, nil
}

// AddDriver adds or replaces a snapshot provider by name.
func (p *SnapshotPoller) AddDriver(name string, provider SnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "driver")
	p.driversMu.Lock()
	p.drivers[name] = provider
	p.driversMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

// collectOnce rebuilds the queue gauges so queues of forgotten owners disappear.
func (p *SnapshotPoller) collectOnce() {
	p.driversMu.RLock()
	defer p.driversMu.RUnlock()

	p.queuePending.Reset()
	p.queueRunning.Reset()
	p.queueLocked.Reset()

	for name, provider := range p.drivers {
		snap := provider.Stats()
		p.hostLive.WithLabelValues(name).Set(float64(snap.Host.Live))
		p.hostTicks.WithLabelValues(name).Set(float64(snap.Host.Ticks))
		p.bypassLive.WithLabelValues(name).Set(float64(snap.Bypass))

		for _, q := range snap.Queues {
			owner := normalizeLabel(q.Owner, "unknown")
			queue := normalizeLabel(q.Name, "unknown")
			p.queuePending.WithLabelValues(name, owner, queue).Set(float64(q.Pending))
			p.queueRunning.WithLabelValues(name, owner, queue).Set(boolGauge(q.Running))
			p.queueLocked.WithLabelValues(name, owner, queue).Set(boolGauge(q.Locked))
		}
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
