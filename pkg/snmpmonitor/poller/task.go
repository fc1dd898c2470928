package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/identify"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/uplink"
	"github.com/vpbank/snmp_monitor/producer/rate"
	"github.com/vpbank/snmp_monitor/snmp/bridge"
	"github.com/vpbank/snmp_monitor/snmp/client"
	"github.com/vpbank/snmp_monitor/snmp/iface"
)

// Stage names recorded in models.DeviceError.
const (
	StageConnect    = "connect"
	StageIdentify   = "identify"
	StageBandwidth  = "bandwidth"
	StageUplink     = "uplink"
	StageForwarding = "forwarding"
	StageBudget     = "budget"
)

// ErrBudgetExceeded is reported when a device task outlives its budget.
var ErrBudgetExceeded = errors.New("poller: device budget exceeded")

// SessionSource hands out exclusive sessions. release must be called once;
// healthy=false closes the session instead of recycling it.
type SessionSource interface {
	Acquire(ctx context.Context, dev models.Device) (client.Session, func(healthy bool), error)
}

// Steps selects the metric families a task collects. Identification always
// runs since every other step depends on it.
type Steps struct {
	Bandwidth  bool
	Uplinks    bool
	Forwarding bool
}

// AllSteps enables every step.
var AllSteps = Steps{Bandwidth: true, Uplinks: true, Forwarding: true}

// ExecutorConfig tunes device tasks.
type ExecutorConfig struct {
	Steps Steps

	// BudgetFactor scales the per-request worst case, timeout×(retries+1),
	// into the budget of a whole device task. Default 30.
	BudgetFactor float64

	// MaxRows bounds forwarding-table walks; 0 means unlimited.
	MaxRows int

	// MaxOids bounds the OIDs per Get request.
	MaxOids int
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.BudgetFactor <= 0 {
		c.BudgetFactor = 30
	}
	if c.Steps == (Steps{}) {
		c.Steps = AllSteps
	}
	return c
}

// Result is everything one device task produced.
type Result struct {
	Device     models.Device
	Identity   *models.DeviceIdentity
	Samples    []models.BandwidthSample
	Uplinks    []models.UplinkStatus
	Forwarding []models.ForwardingEntry
	Errors     []models.DeviceError
	StartedAt  time.Time
	Duration   time.Duration
}

// Failed reports whether the device produced nothing usable.
func (r Result) Failed() bool {
	return r.Identity == nil && len(r.Errors) > 0
}

func (r *Result) fail(stage string, err error) {
	r.Errors = append(r.Errors, models.DeviceError{
		Device: r.Device.Hostname,
		IP:     r.Device.IP,
		Stage:  stage,
		Error:  err.Error(),
	})
}

// Executor runs device tasks: identify, then bandwidth, uplink health and
// forwarding table, sequentially over one session.
type Executor struct {
	sessions   SessionSource
	identifier *identify.Identifier
	engine     *rate.Engine
	monitor    *uplink.Monitor
	cfg        ExecutorConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewExecutor wires an Executor.
func NewExecutor(sessions SessionSource, id *identify.Identifier, engine *rate.Engine, mon *uplink.Monitor, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Executor{
		sessions:   sessions,
		identifier: id,
		engine:     engine,
		monitor:    mon,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		now:        time.Now,
	}
}

// Budget returns the wall-clock budget of a task against dev.
func (e *Executor) Budget(dev models.Device) time.Duration {
	timeout := dev.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := max(dev.Retries, 0)
	return time.Duration(float64(timeout) * float64(retries+1) * e.cfg.BudgetFactor)
}

// Execute runs one device task. Cancelling ctx does not interrupt a task
// already running; the task stops at its budget, after which it is
// abandoned and reported with StageBudget. The abandoned work finishes its
// current request and then stops at the next step boundary.
func (e *Executor) Execute(ctx context.Context, dev models.Device) Result {
	started := e.now()
	res := Result{Device: dev, StartedAt: started}

	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.Budget(dev))
	defer cancel()

	sess, release, err := e.sessions.Acquire(taskCtx, dev)
	if err != nil {
		res.fail(StageConnect, err)
		res.Duration = e.now().Sub(started)
		e.logger.Warn("poller: session unavailable", "device", dev.Hostname, "error", err.Error())
		return res
	}

	done := make(chan Result, 1)
	go func() {
		r, healthy := e.run(taskCtx, dev, sess, res)
		release(healthy)
		done <- r
	}()

	select {
	case r := <-done:
		r.Duration = e.now().Sub(started)
		return r
	case <-taskCtx.Done():
		res.fail(StageBudget, fmt.Errorf("%w after %s", ErrBudgetExceeded, e.Budget(dev)))
		res.Duration = e.now().Sub(started)
		e.logger.Warn("poller: device task abandoned",
			"device", dev.Hostname,
			"budget", e.Budget(dev).String(),
		)
		return res
	}
}

// run executes the steps. healthy is false when the session should not be
// reused.
func (e *Executor) run(ctx context.Context, dev models.Device, sess client.Session, res Result) (Result, bool) {
	version, _ := Version(dev.Version)
	r := client.New(sess, client.Options{Device: dev.Hostname, Version: version, MaxOids: e.cfg.MaxOids}, e.logger)

	ident, err := e.identifier.Identify(ctx, dev, r)
	if err != nil {
		res.fail(StageIdentify, err)
		e.logger.Warn("poller: device skipped", "device", dev.Hostname, "stage", StageIdentify, "error", err.Error())
		return res, false
	}
	res.Identity = &ident

	names := make(map[int]string, len(ident.Interfaces))
	for _, in := range ident.Interfaces {
		names[in.Index] = in.DisplayName()
	}

	if e.cfg.Steps.Bandwidth && ctx.Err() == nil {
		if err := e.bandwidth(ctx, r, dev, ident, names, &res); err != nil {
			res.fail(StageBandwidth, err)
		}
	}

	if e.cfg.Steps.Uplinks && ctx.Err() == nil {
		statuses, err := e.monitor.Check(ctx, r, dev, ident)
		if err != nil {
			res.fail(StageUplink, err)
		}
		res.Uplinks = statuses
	}

	if e.cfg.Steps.Forwarding && ctx.Err() == nil {
		w := bridge.NewWalker(r, e.cfg.MaxRows, e.logger)
		entries, err := w.ForwardingEntries(ctx, dev.Hostname, names, e.now())
		switch {
		case errors.Is(err, bridge.ErrNoPortMap):
			e.logger.Debug("poller: device has no bridge", "device", dev.Hostname)
		case err != nil:
			res.fail(StageForwarding, err)
		}
		res.Forwarding = entries
	}

	for _, de := range res.Errors {
		e.logger.Warn("poller: step failed", "device", de.Device, "stage", de.Stage, "error", de.Error)
	}
	return res, true
}

func (e *Executor) bandwidth(ctx context.Context, r client.Reader, dev models.Device, ident models.DeviceIdentity, names map[int]string, res *Result) error {
	snaps, err := iface.PollCounters(ctx, r, dev.Hostname, ident.Interfaces, e.now)
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		sample, ok, err := e.engine.Observe(ctx, snap, names[snap.IfIndex])
		if err != nil {
			return fmt.Errorf("poller: counter store: %w", err)
		}
		if ok {
			res.Samples = append(res.Samples, sample)
		}
	}
	return nil
}
