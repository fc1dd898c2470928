// Package app wires the monitoring stages together and manages their
// lifecycle.
//
// Cycle path:
//
//	Scheduler → RunCycle → WorkerPool → Executor → [results] →
//	Formatter → Transport, sqlstore, MonitoringReport
//
// Trap path (parallel):
//
//	TrapReceiver → [events] → scheduler.Trigger | identity invalidation
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	jsonformat "github.com/vpbank/snmp_monitor/format/json"
	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/config"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/identify"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/poller"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/scheduler"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/trapreceiver"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/uplink"
	"github.com/vpbank/snmp_monitor/producer/rate"
	"github.com/vpbank/snmp_monitor/store/sqlstore"
	filetransport "github.com/vpbank/snmp_monitor/transport/file"
)

// ErrNoDevices is returned by RunCycle when the filter selects nothing.
var ErrNoDevices = errors.New("app: no devices match the filter")

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config holds the top-level settings of the monitor application.
type Config struct {
	// ConfigPaths locates the YAML trees. Use config.PathsFromEnv().
	ConfigPaths config.Paths

	// Loaded bypasses ConfigPaths when set. Reload still reads ConfigPaths.
	Loaded *config.Config

	// Override adjusts the loaded settings, e.g. from command-line flags.
	// It runs on every load, before validation.
	Override func(*config.Settings)

	// Filter selects the devices of scheduled cycles.
	Filter models.Filter

	// Sessions replaces the SNMP connection pool. Used in tests.
	Sessions poller.SessionSource

	// RecordWriter receives JSON records when settings.output.directory is
	// empty. nil disables the record sink in that case.
	RecordWriter io.Writer

	// OnCycle is called after every scheduled cycle that ran.
	OnCycle func(CycleResult)
}

// ─────────────────────────────────────────────────────────────────────────────
// CycleResult
// ─────────────────────────────────────────────────────────────────────────────

// CycleResult is the outcome of one cycle.
type CycleResult struct {
	Report     models.MonitoringReport
	Identities []models.DeviceIdentity
	Samples    []models.BandwidthSample
	Forwarding []models.ForwardingEntry

	// Selected is the number of devices the filter matched; Polled the
	// number actually dispatched before cancellation.
	Selected int
	Polled   int
}

// ─────────────────────────────────────────────────────────────────────────────
// App
// ─────────────────────────────────────────────────────────────────────────────

// App orchestrates device polling. Create one with New, then either call
// RunCycle directly (one-shot) or Start for continuous monitoring.
type App struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.RWMutex
	loaded     *config.Config
	identifier *identify.Identifier
	executor   *poller.Executor

	engine    *rate.Engine
	sessions  poller.SessionSource
	connPool  *poller.ConnectionPool
	store     *sqlstore.Store
	formatter *jsonformat.JSONFormatter
	transport filetransport.Transport
	closers   []io.Closer

	sched        *scheduler.Scheduler
	trapReceiver *trapreceiver.TrapReceiver
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// New loads and validates the configuration and builds every component. No
// device is contacted; invalid configuration fails here.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	a := &App{cfg: cfg, logger: logger}

	loaded := cfg.Loaded
	if loaded == nil {
		var err error
		if loaded, err = config.Load(cfg.ConfigPaths, logger); err != nil {
			return nil, fmt.Errorf("app: load config: %w", err)
		}
	}
	if err := a.applyOverride(loaded); err != nil {
		return nil, err
	}
	s := loaded.Settings

	if err := a.buildBackends(s); err != nil {
		a.closeAll()
		return nil, err
	}
	a.install(loaded)

	logger.Info("app: ready",
		"devices", len(loaded.Devices),
		"vendors", len(loaded.Table.Names()),
		"workers", s.Workers,
	)
	return a, nil
}

func (a *App) applyOverride(c *config.Config) error {
	if a.cfg.Override != nil {
		a.cfg.Override(&c.Settings)
	}
	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("app: %w: %w", config.ErrInvalid, err)
	}
	return nil
}

// buildBackends creates the components that survive a Reload: counter
// state, sessions, the record sink and the database.
func (a *App) buildBackends(s config.Settings) error {
	var snapshots rate.SnapshotStore = rate.NewMemoryStore()
	if s.Redis.Addr != "" {
		pool := rate.NewRedisPool(s.Redis.Addr, s.Redis.MaxIdle)
		a.closers = append(a.closers, pool)
		snapshots = rate.NewRedisStore(pool, rate.RedisConfig{Prefix: s.Redis.Prefix, TTL: s.Redis.TTL})
		a.logger.Info("app: counter state in redis", "addr", s.Redis.Addr)
	}
	a.engine = rate.NewEngine(snapshots, a.logger)

	a.sessions = a.cfg.Sessions
	if a.sessions == nil {
		a.connPool = poller.NewConnectionPool(poller.PoolOptions{
			MaxIdlePerDevice: s.Pool.MaxIdlePerDevice,
			IdleTimeout:      s.Pool.IdleTimeout,
		}, a.logger)
		a.sessions = a.connPool
	}

	a.formatter = jsonformat.New(jsonformat.Config{PrettyPrint: s.Output.Pretty}, a.logger)
	tr, err := a.buildTransport(s.Output)
	if err != nil {
		return err
	}
	a.transport = tr

	if s.Database.Path != "" {
		st, err := sqlstore.Open(s.Database.Path, a.logger)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.store = st
	}
	return nil
}

func (a *App) buildTransport(o config.OutputSettings) (filetransport.Transport, error) {
	if o.Directory == "" {
		if a.cfg.RecordWriter == nil {
			return nil, nil
		}
		return filetransport.New(filetransport.Config{Writer: a.cfg.RecordWriter}, a.logger), nil
	}

	open := func(name string) (*filetransport.RotatingFile, error) {
		rf, err := filetransport.NewRotatingFile(filetransport.RotateConfig{
			FilePath:   filepath.Join(o.Directory, name),
			MaxBytes:   o.MaxBytes,
			MaxBackups: o.MaxBackups,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("app: output: %w", err)
		}
		return rf, nil
	}

	if !o.Split {
		rf, err := open("records.json")
		if err != nil {
			return nil, err
		}
		return filetransport.New(filetransport.Config{Writer: rf, Owned: true}, a.logger), nil
	}

	writers := make(map[string]io.Writer, len(jsonformat.Kinds))
	for _, kind := range jsonformat.Kinds {
		rf, err := open(kind + ".json")
		if err != nil {
			for _, w := range writers {
				_ = w.(io.Closer).Close()
			}
			return nil, err
		}
		writers[kind] = rf
	}
	return filetransport.NewSplit(filetransport.SplitConfig{
		Writers: writers,
		Default: writers[jsonformat.KindReport],
	}, a.logger), nil
}

// install swaps in the per-configuration components.
func (a *App) install(c *config.Config) {
	s := c.Settings
	var opts []identify.Option
	if s.Ping.Enabled {
		opts = append(opts, identify.WithPinger(identify.ICMPPinger{
			Count:      s.Ping.Count,
			Timeout:    s.Ping.Timeout,
			Privileged: s.Ping.Privileged,
		}))
	}
	id := identify.New(c.Table, identify.Config{
		SpeedThresholdMbps: s.Identify.SpeedThresholdMbps,
		CacheTTL:           s.Identify.CacheTTL,
		UplinkTTL:          s.Identify.UplinkTTL,
	}, a.logger, opts...)

	exec := poller.NewExecutor(a.sessions, id, a.engine,
		uplink.NewMonitor(s.Thresholds, a.logger, nil),
		poller.ExecutorConfig{
			Steps:        s.Steps.Poller(),
			BudgetFactor: s.BudgetFactor,
			MaxRows:      s.MaxRows,
			MaxOids:      s.MaxOids,
		}, a.logger)

	a.mu.Lock()
	a.loaded, a.identifier, a.executor = c, id, exec
	a.mu.Unlock()
}

// Settings returns the settings in effect.
func (a *App) Settings() config.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loaded.Settings
}

// ─────────────────────────────────────────────────────────────────────────────
// Continuous mode
// ─────────────────────────────────────────────────────────────────────────────

// Start runs cycles every settings.interval until ctx is cancelled or Stop is
// called, and starts the trap receiver when enabled. A trap listener that
// cannot bind is logged and skipped.
func (a *App) Start(ctx context.Context) error {
	if a.sched != nil {
		return fmt.Errorf("app: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	s := a.Settings()

	a.sched = scheduler.New(s.Interval, a.cfg.Filter, a.scheduledCycle, a.logger)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sched.Start(runCtx)
	}()

	if s.Trap.Enabled {
		a.trapReceiver = trapreceiver.New(trapreceiver.Config{
			ListenAddr: s.Trap.Listen,
			Community:  s.Trap.Community,
		}, a.logger)
		if err := a.trapReceiver.Start(runCtx); err != nil {
			a.logger.Error("app: trap receiver failed to start, continuing without traps",
				"error", err.Error(),
			)
			a.trapReceiver = nil
		} else {
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				for ev := range a.trapReceiver.Output() {
					a.HandleEvent(runCtx, ev)
				}
			}()
		}
	}

	a.logger.Info("app: monitoring",
		"interval", s.Interval.String(),
		"trap_enabled", a.trapReceiver != nil,
	)
	return nil
}

func (a *App) scheduledCycle(ctx context.Context, f models.Filter) {
	res, err := a.RunCycle(ctx, f)
	if err != nil {
		a.logger.Error("app: cycle failed", "error", err.Error())
		return
	}
	a.logger.Info("app: cycle complete",
		"devices", res.Polled,
		"uplinks", res.Report.Total,
		"critical", res.Report.Critical,
		"warning", res.Report.Warning,
		"execution_time", res.Report.ExecutionTime,
	)
	if a.cfg.OnCycle != nil {
		a.cfg.OnCycle(res)
	}
}

// Stop cancels the scheduler, waits for running cycles and releases every
// resource. It is safe to call on an App that was never started.
func (a *App) Stop() {
	a.logger.Info("app: shutting down")
	if a.cancel != nil {
		a.cancel()
	}
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.trapReceiver != nil {
		a.trapReceiver.Stop()
	}
	a.wg.Wait()
	a.closeAll()
	a.logger.Info("app: shutdown complete")
}

func (a *App) closeAll() {
	if a.transport != nil {
		if err := a.transport.Close(); err != nil {
			a.logger.Error("app: transport close error", "error", err.Error())
		}
		a.transport = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("app: store close error", "error", err.Error())
		}
		a.store = nil
	}
	if a.connPool != nil {
		_ = a.connPool.Close()
		a.connPool = nil
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.closers = nil
}

// Reload re-reads ConfigPaths and swaps the inventory, vendor table,
// thresholds and interval. Counter baselines, sessions, sinks and the
// database are kept. The running configuration is untouched on error.
func (a *App) Reload() error {
	a.logger.Info("app: reloading configuration")
	c, err := config.Load(a.cfg.ConfigPaths, a.logger)
	if err != nil {
		return fmt.Errorf("app: reload config: %w", err)
	}
	if err := a.applyOverride(c); err != nil {
		return err
	}
	a.install(c)
	if a.sched != nil {
		a.sched.SetInterval(c.Settings.Interval)
	}
	a.logger.Info("app: configuration reloaded", "devices", len(c.Devices))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Link events
// ─────────────────────────────────────────────────────────────────────────────

// HandleEvent reacts to a link event: link changes trigger an out-of-band
// poll of the device, restarts drop its cached identity and counter
// baselines. Events from unknown addresses are only recorded.
func (a *App) HandleEvent(ctx context.Context, ev models.LinkEvent) {
	a.emit(ev)

	a.mu.RLock()
	dev, ok := a.loaded.DeviceByIP(ev.Device)
	id := a.identifier
	a.mu.RUnlock()
	if !ok {
		a.logger.Debug("app: event from unknown device", "source", ev.Device, "kind", ev.Kind)
		return
	}

	switch ev.Kind {
	case models.LinkDown, models.LinkUp:
		a.logger.Info("app: link change", "device", dev.Hostname, "kind", ev.Kind, "if_index", ev.IfIndex)
		if a.sched != nil {
			a.sched.Trigger(dev.Hostname)
		}
	case models.ColdStart, models.WarmStart:
		a.logger.Info("app: device restarted", "device", dev.Hostname, "kind", ev.Kind)
		id.Invalidate(dev.Hostname)
		if err := a.engine.Forget(ctx, dev.Hostname); err != nil {
			a.logger.Warn("app: forget counters failed", "device", dev.Hostname, "error", err.Error())
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Cycle
// ─────────────────────────────────────────────────────────────────────────────

// Select returns the configured devices matched by f, in hostname order. The
// vendor criterion uses the cached identity when there is one.
func (a *App) Select(f models.Filter) []models.Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []models.Device
	for _, d := range a.loaded.Devices {
		vendor := ""
		if ident, ok := a.identifier.Cached(d.Hostname); ok {
			vendor = ident.Vendor
		}
		if f.Match(d, vendor) {
			out = append(out, d)
		}
	}
	return out
}

// RunCycle polls the devices selected by f on a bounded worker pool and
// returns the cycle's records and report. Cancelling ctx stops dispatching
// further devices; tasks already running finish or hit their budget.
func (a *App) RunCycle(ctx context.Context, f models.Filter) (CycleResult, error) {
	a.mu.RLock()
	s := a.loaded.Settings
	exec := a.executor
	a.mu.RUnlock()

	if err := s.Validate(); err != nil {
		return CycleResult{}, fmt.Errorf("app: %w: %w", config.ErrInvalid, err)
	}
	devices := a.Select(f)
	if len(devices) == 0 {
		return CycleResult{}, ErrNoDevices
	}

	started := time.Now()
	out := make(chan poller.Result, len(devices))
	pool := poller.NewWorkerPool(min(s.Workers, len(devices)), exec, out, a.logger)
	// Cancellation is checked only before each dispatch: a queued or running
	// device always reports back, since its counter snapshots move with it.
	pool.Start(context.WithoutCancel(ctx))

	polled := 0
	go func() {
		defer close(out)
		defer pool.Stop()
		for _, d := range devices {
			if ctx.Err() != nil {
				a.logger.Warn("app: cycle cancelled, remaining devices skipped",
					"skipped", len(devices)-polled,
				)
				return
			}
			if !pool.Submit(ctx, d) {
				return
			}
			polled++
		}
	}()

	var (
		res      = CycleResult{Selected: len(devices)}
		statuses []models.UplinkStatus
		errs     []models.DeviceError
	)
	for r := range out {
		if r.Identity != nil {
			res.Identities = append(res.Identities, *r.Identity)
		}
		res.Samples = append(res.Samples, r.Samples...)
		res.Forwarding = append(res.Forwarding, r.Forwarding...)
		statuses = append(statuses, r.Uplinks...)
		errs = append(errs, r.Errors...)
	}
	// out is closed after the submitter returned, so polled is final.
	res.Polled = polled

	sort.Slice(res.Identities, func(i, j int) bool { return res.Identities[i].Device < res.Identities[j].Device })
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Device < errs[j].Device })
	res.Report = uplink.BuildReport(statuses, errs, started, time.Now())

	if err := a.publish(context.WithoutCancel(ctx), res, s); err != nil {
		a.logger.Error("app: publish failed", "error", err.Error())
	}
	return res, nil
}

// publish writes the cycle's records to the sink and the database
// concurrently.
func (a *App) publish(ctx context.Context, res CycleResult, s config.Settings) error {
	var g errgroup.Group

	if a.transport != nil {
		g.Go(func() error {
			for _, v := range res.Identities {
				a.emit(v)
			}
			for _, v := range res.Samples {
				a.emit(v)
			}
			for _, v := range res.Forwarding {
				a.emit(v)
			}
			for _, v := range res.Report.Statuses {
				a.emit(v)
			}
			for _, v := range res.Report.DeviceErrors {
				a.emit(v)
			}
			a.emit(res.Report)
			return nil
		})
	}

	if a.store != nil {
		g.Go(func() error {
			for _, id := range res.Identities {
				if err := a.store.SaveIdentity(ctx, id); err != nil {
					return err
				}
			}
			if err := a.store.AppendSamples(ctx, res.Samples); err != nil {
				return err
			}
			if err := a.store.SaveForwarding(ctx, res.Forwarding); err != nil {
				return err
			}
			if err := a.store.SaveUplinks(ctx, res.Report.Statuses); err != nil {
				return err
			}
			if s.Database.Retention > 0 {
				if _, err := a.store.PurgeBefore(ctx, time.Now().Add(-s.Database.Retention)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// emit formats one record and sends it to the sink, logging failures.
func (a *App) emit(v any) {
	if a.transport == nil {
		return
	}
	data, err := a.formatter.Format(v)
	if err != nil {
		a.logger.Warn("app: format error", "error", err.Error())
		return
	}
	if err := a.transport.Send(data); err != nil {
		a.logger.Error("app: transport send error", "error", err.Error(), "bytes", len(data))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
