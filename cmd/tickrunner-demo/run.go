package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	tickrunner "github.com/Swind/go-tick-runner"
	"github.com/Swind/go-tick-runner/config"
	"github.com/Swind/go-tick-runner/core"
	"github.com/Swind/go-tick-runner/observability/logging"
	promexp "github.com/Swind/go-tick-runner/observability/prometheus"
)

const sceneOwner = "door"

func runCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run the demo scene on a tick driver",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "tick",
				Usage: "Override the tick interval (e.g. 16ms)",
			},
			&cli.DurationFlag{
				Name:  "run-for",
				Usage: "Give up waiting for the scene after this long (0 waits until idle)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (enables metrics)",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Enable = true
		cfg.Metrics.Addr = c.String("metrics-addr")
	}

	logger, closeLog, err := logging.Setup(cfg.Log)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	driverConfig := newDriverConfig(cfg, logger)
	if c.IsSet("tick") {
		driverConfig.TickInterval = c.Duration("tick")
	}

	var reg *prom.Registry
	if cfg.Metrics.Enable {
		reg = prom.NewRegistry()
		exporter, err := promexp.NewMetricsExporter(cfg.Metrics.Namespace, reg, promexp.ExporterOptions{})
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		driverConfig.Metrics = exporter
	}

	driver := core.NewDriver(driverConfig)
	defer driver.Stop()

	if reg != nil {
		shutdown, err := serveMetrics(ctx, cfg.Metrics, reg, driver, logger)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		defer shutdown()
	}

	logger.Info("driver started", core.F("tick", driver.Interval()))
	scheduleScene(tickrunner.OnDriver(driver, sceneOwner), logger)

	waitCtx := ctx
	if runFor := c.Duration("run-for"); runFor > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, runFor)
		defer cancel()
	}
	if err := driver.WaitIdle(waitCtx); err != nil {
		logger.Warn("scene did not finish", core.F("error", err))
	}

	records, err := driver.RecentTasks(context.Background(), 0)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	for _, rec := range records {
		fmt.Fprintf(c.App.Writer, "%-8s %-12s %-12s %-13s invocations=%d scheduled=%s\n",
			rec.Queue, rec.Name, rec.Owner, rec.Kind, rec.Invocations, rec.Scheduled)
	}

	if err := driver.ForgetOwner(context.Background(), sceneOwner); err != nil {
		logger.Warn("forget owner failed", core.F("error", err))
	}
	return nil
}

// newDriverConfig maps the file configuration onto a core.DriverConfig.
func newDriverConfig(cfg *config.Config, logger core.Logger) *core.DriverConfig {
	var panics core.PanicHandler = &core.DefaultPanicHandler{Logger: logger}
	if !cfg.Driver.RecoverPanics {
		panics = &fatalPanicHandler{logger: logger}
	}
	return &core.DriverConfig{
		TickInterval:      cfg.Driver.Tick(),
		WorkQueueSize:     cfg.Driver.WorkQueueSize,
		Logger:            logger,
		PanicHandler:      panics,
		HistoryCapacity:   cfg.Driver.HistoryCapacity,
		RejectLogInterval: cfg.Driver.RejectLog(),
	}
}

// fatalPanicHandler logs a routine panic and re-raises it on the driver goroutine.
type fatalPanicHandler struct {
	logger core.Logger
}

func (h *fatalPanicHandler) HandlePanic(ctx context.Context, label string, routineID uint64, panicInfo any, stackTrace []byte) {
	h.logger.Error("routine panicked, stopping",
		core.F("queue", label),
		core.F("routine", routineID),
		core.F("panic", panicInfo),
		core.F("stack", string(stackTrace)),
	)
	panic(panicInfo)
}

// serveMetrics starts the snapshot poller and the /metrics endpoint.
func serveMetrics(ctx context.Context, c config.MetricsConfig, reg *prom.Registry, driver *core.Driver, logger core.Logger) (func(), error) {
	poller, err := promexp.NewSnapshotPoller(c.Namespace, reg, c.Poll())
	if err != nil {
		return nil, err
	}
	poller.AddDriver("demo", driver)
	poller.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              c.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics endpoint listening", core.F("addr", c.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", core.F("error", err))
		}
	}()

	return func() {
		poller.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}
