package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/poller"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/uplink"
)

// Settings is the content of monitor.yml. Fields absent from the file keep
// the values of DefaultSettings.
type Settings struct {
	// Interval between cycles in continuous mode.
	Interval time.Duration `yaml:"interval"`

	// Workers is the number of device tasks run concurrently.
	Workers int `yaml:"workers"`

	// BudgetFactor scales timeout×(retries+1) into a device task budget.
	BudgetFactor float64 `yaml:"budget_factor"`

	// MaxRows bounds forwarding-table walks (0 = unlimited).
	MaxRows int `yaml:"max_rows"`

	// MaxOids bounds the OIDs per Get request.
	MaxOids int `yaml:"max_oids"`

	Steps      StepSettings      `yaml:"steps"`
	Identify   IdentifySettings  `yaml:"identify"`
	Thresholds uplink.Thresholds `yaml:"thresholds"`
	Pool       PoolSettings      `yaml:"pool"`
	Ping       PingSettings      `yaml:"ping"`
	Redis      RedisSettings     `yaml:"redis"`
	Database   DatabaseSettings  `yaml:"database"`
	Output     OutputSettings    `yaml:"output"`
	Trap       TrapSettings      `yaml:"trap"`
}

// StepSettings toggles the metric families collected per device.
type StepSettings struct {
	Bandwidth  bool `yaml:"bandwidth"`
	Uplinks    bool `yaml:"uplinks"`
	Forwarding bool `yaml:"forwarding"`
}

// Poller converts the settings for the executor.
func (s StepSettings) Poller() poller.Steps {
	return poller.Steps{Bandwidth: s.Bandwidth, Uplinks: s.Uplinks, Forwarding: s.Forwarding}
}

type IdentifySettings struct {
	SpeedThresholdMbps uint64        `yaml:"speed_threshold_mbps"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	UplinkTTL          time.Duration `yaml:"uplink_ttl"`
}

type PoolSettings struct {
	MaxIdlePerDevice int           `yaml:"max_idle_per_device"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
}

// PingSettings enables the ICMP reachability precheck before a device is
// first identified.
type PingSettings struct {
	Enabled    bool          `yaml:"enabled"`
	Count      int           `yaml:"count"`
	Timeout    time.Duration `yaml:"timeout"`
	Privileged bool          `yaml:"privileged"`
}

// RedisSettings selects the shared counter snapshot store. An empty Addr
// keeps snapshots in process memory.
type RedisSettings struct {
	Addr    string        `yaml:"addr"`
	Prefix  string        `yaml:"prefix"`
	TTL     time.Duration `yaml:"ttl"`
	MaxIdle int           `yaml:"max_idle"`
}

// DatabaseSettings selects the sqlite record store. An empty Path disables it.
type DatabaseSettings struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// OutputSettings configures the JSON file sinks. An empty Directory writes
// every record to standard output.
type OutputSettings struct {
	Directory  string `yaml:"directory"`
	Split      bool   `yaml:"split"`
	Pretty     bool   `yaml:"pretty"`
	MaxBytes   int64  `yaml:"max_bytes"`
	MaxBackups int    `yaml:"max_backups"`
}

// TrapSettings configures the link event listener. An empty Community is
// filled from the inventory when every device shares one community;
// otherwise traps are accepted from any community.
type TrapSettings struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Community string `yaml:"community"`
}

// DefaultSettings returns the settings used when monitor.yml is absent.
func DefaultSettings() Settings {
	return Settings{
		Interval:     5 * time.Minute,
		Workers:      10,
		BudgetFactor: 30,
		MaxOids:      20,
		Steps:        StepSettings{Bandwidth: true, Uplinks: true, Forwarding: true},
		Identify: IdentifySettings{
			SpeedThresholdMbps: 1000,
			CacheTTL:           time.Hour,
			UplinkTTL:          30 * time.Minute,
		},
		Thresholds: uplink.DefaultThresholds(),
		Pool:       PoolSettings{MaxIdlePerDevice: 1, IdleTimeout: 5 * time.Minute},
		Ping:       PingSettings{Count: 2, Timeout: 2 * time.Second},
		Redis:      RedisSettings{MaxIdle: 4, TTL: 24 * time.Hour},
		Database:   DatabaseSettings{Retention: 7 * 24 * time.Hour},
		Output:     OutputSettings{MaxBackups: 5},
		Trap:       TrapSettings{Listen: "0.0.0.0:162"},
	}
}

// Validate returns every problem of s joined into one error.
func (s Settings) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("monitor: "+format, args...))
	}
	if s.Interval <= 0 {
		bad("interval must be positive, got %s", s.Interval)
	}
	if s.Workers < 1 {
		bad("workers must be at least 1, got %d", s.Workers)
	}
	if s.BudgetFactor <= 0 {
		bad("budget_factor must be positive, got %g", s.BudgetFactor)
	}
	if s.MaxRows < 0 {
		bad("max_rows must not be negative, got %d", s.MaxRows)
	}
	if s.MaxOids < 1 {
		bad("max_oids must be at least 1, got %d", s.MaxOids)
	}
	if s.Identify.SpeedThresholdMbps == 0 {
		bad("identify.speed_threshold_mbps must be positive")
	}
	if s.Identify.CacheTTL <= 0 || s.Identify.UplinkTTL <= 0 {
		bad("identify cache TTLs must be positive")
	}
	if err := s.Thresholds.Validate(); err != nil {
		bad("%v", err)
	}
	if s.Ping.Enabled && s.Ping.Timeout <= 0 {
		bad("ping.timeout must be positive, got %s", s.Ping.Timeout)
	}
	if s.Trap.Enabled && s.Trap.Listen == "" {
		bad("trap.listen is required when traps are enabled")
	}
	if s.Output.MaxBytes < 0 || s.Output.MaxBackups < 0 {
		bad("output rotation limits must not be negative")
	}
	return errors.Join(errs...)
}
