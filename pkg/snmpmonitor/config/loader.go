// Package config provides YAML configuration loading for the SNMP Monitor.
//
// The configuration lives in one directory, selected by
// SNMP_MONITOR_CONFIG_DIR:
//
//	devices/      → inventory, one map of hostname → device per file;
//	                defaults.yml merges into every device
//	vendors/      → vendor profiles merged over the built-in table by name
//	monitor.yml   → Settings
//
// A .env file is read first; variables already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/identify"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/uplink"
)

// ErrInvalid wraps every configuration error returned by Load.
var ErrInvalid = errors.New("config: invalid configuration")

// Environment variables read by the loader.
const (
	EnvConfigDir = "SNMP_MONITOR_CONFIG_DIR"
	EnvCommunity = "SNMP_MONITOR_COMMUNITY"
	EnvRedis     = "SNMP_MONITOR_REDIS"
	EnvDB        = "SNMP_MONITOR_DB"
)

// ─────────────────────────────────────────────────────────────────────────────
// Paths
// ─────────────────────────────────────────────────────────────────────────────

// Paths holds the location of every configuration tree.
type Paths struct {
	Devices string
	Vendors string
	Monitor string
}

// PathsIn lays the trees out under dir.
func PathsIn(dir string) Paths {
	return Paths{
		Devices: filepath.Join(dir, "devices"),
		Vendors: filepath.Join(dir, "vendors"),
		Monitor: filepath.Join(dir, "monitor.yml"),
	}
}

// PathsFromEnv reads the directory from SNMP_MONITOR_CONFIG_DIR, falling back
// to /etc/snmp_monitor.
func PathsFromEnv() Paths {
	return PathsIn(envOr(EnvConfigDir, "/etc/snmp_monitor"))
}

// LoadEnv reads the given .env files (".env" when none is given). Missing
// files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the fully parsed and validated configuration.
type Config struct {
	// Devices is the inventory sorted by hostname, defaults merged in.
	Devices []models.Device

	// Vendors are the profiles read from vendors/.
	Vendors []identify.Profile

	// Table is the built-in vendor table with Vendors merged on top.
	Table *identify.Table

	Settings Settings
}

// Device looks a device up by hostname.
func (c *Config) Device(hostname string) (models.Device, bool) {
	i := sort.Search(len(c.Devices), func(i int) bool { return c.Devices[i].Hostname >= hostname })
	if i < len(c.Devices) && c.Devices[i].Hostname == hostname {
		return c.Devices[i], true
	}
	return models.Device{}, false
}

// DeviceByIP looks a device up by management address.
func (c *Config) DeviceByIP(ip string) (models.Device, bool) {
	for _, d := range c.Devices {
		if d.IP == ip {
			return d, true
		}
	}
	return models.Device{}, false
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// Load reads every tree under paths and validates the result. Problems from
// all files are accumulated and returned together, wrapped in ErrInvalid, so
// that operators see all of them at once. A missing directory or monitor.yml
// is not an error.
func Load(paths Paths, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	var errs []error

	settings, err := loadSettings(paths.Monitor, logger)
	if err != nil {
		errs = append(errs, err)
	}
	if addr := os.Getenv(EnvRedis); addr != "" {
		settings.Redis.Addr = addr
	}
	if db := os.Getenv(EnvDB); db != "" {
		settings.Database.Path = db
	}
	if err := settings.Validate(); err != nil {
		errs = append(errs, err)
	}

	devices, devErrs := loadDevices(paths.Devices, os.Getenv(EnvCommunity), logger)
	errs = append(errs, devErrs...)
	if settings.Trap.Community == "" {
		settings.Trap.Community = sharedCommunity(devices)
	}

	profiles, vendErrs := loadVendors(paths.Vendors, logger)
	errs = append(errs, vendErrs...)

	table, err := identify.DefaultTable(profiles)
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("%w: %d error(s):\n  %s", ErrInvalid, len(errs), strings.Join(msgs, "\n  "))
	}

	logger.Debug("config: loaded",
		"devices", len(devices),
		"vendor_profiles", len(profiles),
	)
	return &Config{
		Devices:  devices,
		Vendors:  profiles,
		Table:    table,
		Settings: settings,
	}, nil
}

// sharedCommunity returns the community common to every device, or "" when
// the inventory is empty or mixed.
func sharedCommunity(devices []models.Device) string {
	if len(devices) == 0 {
		return ""
	}
	c := devices[0].Community
	for _, d := range devices[1:] {
		if d.Community != c {
			return ""
		}
	}
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// monitor.yml
// ─────────────────────────────────────────────────────────────────────────────

func loadSettings(path string, logger *slog.Logger) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	if err := decodeFile(path, &s); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("config: no monitor settings, using defaults", "file", path)
			return DefaultSettings(), nil
		}
		return DefaultSettings(), fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("config: loaded monitor settings", "file", path)
	return s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Devices
// ─────────────────────────────────────────────────────────────────────────────

func loadDevices(dir, community string, logger *slog.Logger) ([]models.Device, []error) {
	files, err := yamlFiles(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("list devices dir %q: %w", dir, err)}
	}

	var errs []error
	var defaults rawDevice
	var deviceFiles []string
	for _, path := range files {
		if !isDefaults(path) {
			deviceFiles = append(deviceFiles, path)
			continue
		}
		var raw rawDefaults
		if err := decodeFile(path, &raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		defaults = raw.Default
		logger.Debug("config: loaded device defaults", "file", path)
	}

	seen := make(map[string]string)
	var devices []models.Device
	for _, path := range deviceFiles {
		var raw map[string]rawDevice
		if err := decodeFile(path, &raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		for hostname, entry := range raw {
			if prev, dup := seen[hostname]; dup {
				errs = append(errs, fmt.Errorf("%s: device %q already defined in %s", path, hostname, prev))
				continue
			}
			seen[hostname] = path
			dev := resolveDevice(hostname, entry, defaults, community)
			errs = append(errs, validateDevice(dev, entry.Subnet)...)
			devices = append(devices, dev)
		}
		logger.Debug("config: loaded device file", "file", path, "count", len(raw))
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Hostname < devices[j].Hostname })
	return devices, errs
}

func isDefaults(path string) bool {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) == "defaults"
}

// ─────────────────────────────────────────────────────────────────────────────
// Vendor profiles
// ─────────────────────────────────────────────────────────────────────────────

type rawVendorFile struct {
	Vendors []identify.Profile `yaml:"vendors"`
}

func loadVendors(dir string, logger *slog.Logger) ([]identify.Profile, []error) {
	files, err := yamlFiles(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("list vendors dir %q: %w", dir, err)}
	}

	var errs []error
	var profiles []identify.Profile
	for _, path := range files {
		var raw rawVendorFile
		if err := decodeFile(path, &raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		for _, p := range raw.Vendors {
			errs = append(errs, validateProfile(path, p)...)
		}
		profiles = append(profiles, raw.Vendors...)
		logger.Debug("config: loaded vendor file", "file", path, "count", len(raw.Vendors))
	}
	return profiles, errs
}

// validateProfile checks conversion ids. Regexes are checked when the
// profiles are compiled into the vendor table.
func validateProfile(path string, p identify.Profile) []error {
	var errs []error
	check := func(where string, m models.RegisterMap) {
		if m.Conversion != "" && !uplink.ValidConversion(m.Conversion) {
			errs = append(errs, fmt.Errorf("%s: vendor %q%s: unknown conversion %q", path, p.Name, where, m.Conversion))
		}
	}
	check("", p.Registers)
	for key, m := range p.Models {
		check(" model "+key, m)
	}
	return errs
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// yamlFiles returns all *.yml / *.yaml files under dir, sorted by path.
func yamlFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yml" || ext == ".yaml" {
			paths = append(paths, p)
		}
		return nil
	})
	return paths, err
}

// decodeFile opens path and unmarshals the YAML content into out. An empty
// file leaves out untouched.
func decodeFile(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
