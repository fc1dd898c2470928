// Command snmpmonitor polls the configured switches for bandwidth, uplink
// optical health and forwarding tables.
//
// By default it runs one cycle, prints the uplink report and exits. With
// -continuous it keeps polling every interval until interrupted (SIGINT /
// SIGTERM), and reloads its configuration on SIGHUP.
//
// Usage:
//
//	snmpmonitor [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	jsonformat "github.com/vpbank/snmp_monitor/format/json"
	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/app"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/config"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/uplink"
	filetransport "github.com/vpbank/snmp_monitor/transport/file"
)

// errCritical makes the process exit with status 2 after a one-shot cycle
// that found critical uplinks.
var errCritical = errors.New("critical uplink issues found")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "snmpmonitor: %v\n", err)
		if errors.Is(err, errCritical) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type options struct {
	logLevel, logFmt string
	configDir        string
	envFile          string

	filter        models.Filter
	workers       int
	criticalOnly  bool
	warnThreshold float64
	critThreshold float64
	outputFormat  string
	outputFile    string
	continuous    bool
	interval      time.Duration
	trap          bool
	database      string
}

func run() error {
	// ── Flags ────────────────────────────────────────────────────────────
	var o options
	flag.StringVar(&o.logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&o.logFmt, "log.fmt", "text", "Log format: json, text")
	flag.StringVar(&o.configDir, "config.dir", "", "Configuration root (default $"+config.EnvConfigDir+" or /etc/snmp_monitor)")
	flag.StringVar(&o.envFile, "env.file", ".env", "Environment file loaded before configuration")

	flag.StringVar(&o.filter.Hostname, "switch-id", "", "Monitor one switch by hostname")
	flag.StringVar(&o.filter.IP, "switch-ip", "", "Monitor one switch by IP address")
	flag.StringVar(&o.filter.Branch, "branch", "", "Monitor the switches of one branch")
	flag.StringVar(&o.filter.Vendor, "vendor", "", "Monitor the switches of one vendor")
	flag.IntVar(&o.workers, "max-workers", 0, "Parallel device workers (default from monitor.yml)")
	flag.BoolVar(&o.criticalOnly, "critical-only", false, "List only critical uplinks")
	flag.Float64Var(&o.warnThreshold, "warning-threshold", 0, "Low optical power warning threshold in dBm (default -20)")
	flag.Float64Var(&o.critThreshold, "critical-threshold", 0, "Low optical power critical threshold in dBm (default -25)")
	flag.StringVar(&o.outputFormat, "output-format", "console", "Report format: console, json, csv")
	flag.StringVar(&o.outputFile, "output-file", "", "Write the report to this file instead of stdout")
	flag.BoolVar(&o.continuous, "continuous", false, "Keep monitoring until interrupted")
	flag.DurationVar(&o.interval, "interval", 0, "Cycle interval in continuous mode (default from monitor.yml)")
	flag.BoolVar(&o.trap, "trap.enabled", false, "Receive link traps in continuous mode")
	flag.StringVar(&o.database, "db", "", "SQLite database path (overrides monitor.yml)")
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	switch o.outputFormat {
	case "console", "json", "csv":
	default:
		return fmt.Errorf("unknown output format %q (expected console|json|csv)", o.outputFormat)
	}

	// ── Logger ───────────────────────────────────────────────────────────
	logger, err := buildLogger(o.logLevel, o.logFmt)
	if err != nil {
		return err
	}

	// ── Configuration ────────────────────────────────────────────────────
	if err := config.LoadEnv(o.envFile); err != nil {
		return err
	}
	paths := config.PathsFromEnv()
	if o.configDir != "" {
		paths = config.PathsIn(o.configDir)
	}

	out, closeOut, err := openOutput(o.outputFile)
	if err != nil {
		return err
	}
	defer closeOut()
	rep := newReporter(o, out, logger)

	application, err := app.New(app.Config{
		ConfigPaths: paths,
		Override:    func(s *config.Settings) { applyFlags(s, o, set) },
		Filter:      o.filter,
		OnCycle:     func(res app.CycleResult) { _ = rep.write(res.Report) },
	}, logger)
	if err != nil {
		return err
	}
	defer application.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── One-shot ─────────────────────────────────────────────────────────
	if !o.continuous {
		res, err := application.RunCycle(ctx, o.filter)
		if err != nil {
			return err
		}
		if err := rep.write(res.Report); err != nil {
			return err
		}
		if res.Report.Critical > 0 {
			return fmt.Errorf("%w: %d", errCritical, res.Report.Critical)
		}
		return nil
	}

	// ── Continuous ───────────────────────────────────────────────────────
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	logger.Info("snmpmonitor: running, press Ctrl-C to stop")

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			logger.Info("snmpmonitor: received shutdown signal")
			return nil
		case <-hup:
			if err := application.Reload(); err != nil {
				logger.Error("snmpmonitor: reload failed, keeping current configuration", "error", err.Error())
			}
		}
	}
}

// applyFlags lays the explicitly set flags over the loaded settings.
func applyFlags(s *config.Settings, o options, set map[string]bool) {
	if set["max-workers"] {
		s.Workers = o.workers
	}
	if set["interval"] {
		s.Interval = o.interval
	}
	if set["warning-threshold"] {
		s.Thresholds.RX.WarningLow = o.warnThreshold
		s.Thresholds.TX.WarningLow = o.warnThreshold
	}
	if set["critical-threshold"] {
		s.Thresholds.RX.CriticalLow = o.critThreshold
		s.Thresholds.TX.CriticalLow = o.critThreshold
	}
	if set["trap.enabled"] {
		s.Trap.Enabled = o.trap
	}
	if set["db"] {
		s.Database.Path = o.database
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Report output
// ─────────────────────────────────────────────────────────────────────────────

// reporter renders reports in the selected format. Scheduled and
// trap-triggered cycles may finish concurrently, so writes are serialised.
type reporter struct {
	mu           sync.Mutex
	format       string
	criticalOnly bool
	w            io.Writer
	json         *filetransport.WriterTransport
	formatter    *jsonformat.JSONFormatter
	logger       *slog.Logger
}

func newReporter(o options, w io.Writer, logger *slog.Logger) *reporter {
	return &reporter{
		format:       o.outputFormat,
		criticalOnly: o.criticalOnly,
		w:            w,
		json:         filetransport.New(filetransport.Config{Writer: w}, logger),
		formatter:    jsonformat.New(jsonformat.Config{PrettyPrint: true}, logger),
		logger:       logger,
	}
}

func (r *reporter) write(rep models.MonitoringReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.criticalOnly {
		rep = uplink.CriticalOnly(rep)
	}

	var err error
	switch r.format {
	case "json":
		var data []byte
		if data, err = r.formatter.Format(rep); err == nil {
			err = r.json.Send(data)
		}
	case "csv":
		err = uplink.WriteCSV(r.w, rep)
	default:
		err = uplink.WriteConsole(r.w, rep)
	}
	if err != nil {
		r.logger.Error("snmpmonitor: report write failed", "error", err.Error())
	}
	return err
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Logger
// ─────────────────────────────────────────────────────────────────────────────

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}
}
