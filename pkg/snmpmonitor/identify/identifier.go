// Package identify derives what a device is: vendor, model, type,
// capabilities, interfaces, uplinks and the optical register map. Results
// are cached per device and invalidated when the system identity registers
// change.
package identify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/snmp/client"
	"github.com/vpbank/snmp_monitor/snmp/iface"
	"github.com/vpbank/snmp_monitor/snmp/mib"
)

// ErrNoDescription is returned when sysDescr cannot be read. Without it no
// other step is meaningful.
var ErrNoDescription = errors.New("identify: no system description")

// ErrUnreachable is returned when the ICMP precheck fails.
var ErrUnreachable = errors.New("identify: device unreachable")

// Step names recorded in DeviceIdentity.FailedSteps.
const (
	StepVendor     = "vendor"
	StepModel      = "model"
	StepInterfaces = "interfaces"
	StepUplinks    = "uplinks"
	StepRegisters  = "registers"
)

// Config tunes identification.
type Config struct {
	// SpeedThresholdMbps marks an interface as uplink by speed alone.
	// Default 1000.
	SpeedThresholdMbps uint64

	// CacheTTL bounds how long an identity is reused. Default 1h.
	CacheTTL time.Duration

	// UplinkTTL bounds how long the interface and uplink lists of a cached
	// identity are reused before the interface table is walked again.
	// Default 30m.
	UplinkTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.SpeedThresholdMbps == 0 {
		c.SpeedThresholdMbps = 1000
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.UplinkTTL <= 0 {
		c.UplinkTTL = 30 * time.Minute
	}
	return c
}

// Identifier identifies devices and caches the results. It is safe for
// concurrent use.
type Identifier struct {
	table  *Table
	cfg    Config
	pinger Pinger
	logger *slog.Logger
	now    func() time.Time
	cache  *cache.Cache
	lists  *cache.Cache
	group  singleflight.Group
}

// Option customises an Identifier.
type Option func(*Identifier)

// WithPinger enables the reachability precheck before a device's first
// identification.
func WithPinger(p Pinger) Option {
	return func(id *Identifier) { id.pinger = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(id *Identifier) { id.now = now }
}

// New creates an Identifier. A nil table uses the built-in profiles.
func New(table *Table, cfg Config, logger *slog.Logger, opts ...Option) *Identifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if table == nil {
		table, _ = DefaultTable(nil)
	}
	cfg = cfg.withDefaults()
	id := &Identifier{
		table:  table,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		cache:  cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		lists:  cache.New(cfg.UplinkTTL, 2*cfg.UplinkTTL),
	}
	for _, o := range opts {
		o(id)
	}
	return id
}

// Table returns the vendor table in use.
func (id *Identifier) Table() *Table { return id.table }

// Cached returns the cached identity of device, if any.
func (id *Identifier) Cached(device string) (models.DeviceIdentity, bool) {
	v, ok := id.cache.Get(device)
	if !ok {
		return models.DeviceIdentity{}, false
	}
	return v.(models.DeviceIdentity), true
}

// Invalidate drops the cached identity of device.
func (id *Identifier) Invalidate(device string) {
	id.cache.Delete(device)
	id.lists.Delete(device)
}

// system holds the identity registers.
type system struct {
	Descr    string
	ObjectID string
	Name     string
}

// Identify returns the identity of dev, read through r. The system
// registers are read on every call; a cached identity is reused while their
// fingerprint is unchanged.
func (id *Identifier) Identify(ctx context.Context, dev models.Device, r client.Reader) (models.DeviceIdentity, error) {
	key := dev.Hostname
	cached, hit := id.Cached(key)

	if !hit && id.pinger != nil && !id.pinger.Reachable(ctx, dev.IP) {
		return models.DeviceIdentity{}, fmt.Errorf("%w: %s", ErrUnreachable, dev.IP)
	}

	vals, err := r.GetMany(ctx, []string{mib.SysDescr, mib.SysObjectID, mib.SysName, mib.SysUpTime, mib.IfNumber})
	sys := system{
		Descr:    vals[mib.SysDescr].String(),
		ObjectID: vals[mib.SysObjectID].String(),
		Name:     vals[mib.SysName].String(),
	}
	if sys.Descr == "" {
		if err != nil {
			return models.DeviceIdentity{}, fmt.Errorf("%w: %s: %w", ErrNoDescription, dev.Hostname, err)
		}
		return models.DeviceIdentity{}, fmt.Errorf("%w: %s", ErrNoDescription, dev.Hostname)
	}
	uptime, _ := vals[mib.SysUpTime].Uint64()
	ifNumber, _ := vals[mib.IfNumber].Int()

	fp, err := hashstructure.Hash(sys, hashstructure.FormatV2, nil)
	if err != nil {
		return models.DeviceIdentity{}, fmt.Errorf("identify: fingerprint %s: %w", dev.Hostname, err)
	}

	if hit && cached.Fingerprint == fp {
		cached.Uptime = uint32(uptime)
		if _, fresh := id.lists.Get(key); !fresh {
			cached = id.refreshInterfaces(ctx, r, cached)
			id.store(key, cached)
		}
		return cached, nil
	}
	if hit {
		id.logger.Info("identify: system identity changed, re-identifying", "device", dev.Hostname)
	}

	v, err, _ := id.group.Do(fmt.Sprintf("%s/%d", key, fp), func() (interface{}, error) {
		ident := id.discover(ctx, dev, r, sys)
		ident.Fingerprint = fp
		ident.Uptime = uint32(uptime)
		ident.IfNumber = ifNumber
		id.store(key, ident)
		return ident, nil
	})
	if err != nil {
		return models.DeviceIdentity{}, err
	}
	return v.(models.DeviceIdentity), nil
}

func (id *Identifier) store(key string, ident models.DeviceIdentity) {
	id.cache.SetDefault(key, ident)
	id.lists.SetDefault(key, struct{}{})
}

// discover runs the identification steps after the system registers.
func (id *Identifier) discover(ctx context.Context, dev models.Device, r client.Reader, sys system) models.DeviceIdentity {
	ident := models.DeviceIdentity{
		Device:        dev.Hostname,
		IP:            dev.IP,
		SysName:       sys.Name,
		SysDescr:      sys.Descr,
		SysObjectID:   sys.ObjectID,
		EnterpriseOID: EnterpriseOID(sys.ObjectID),
		DeviceType:    DeviceType(sys.Descr),
		Capabilities:  Capabilities(sys.Descr),
		IdentifiedAt:  id.now(),
	}

	vendor, ok := id.table.ByEnterprise(sys.ObjectID)
	if !ok {
		vendor, ok = id.table.ByKeyword(sys.Descr)
	}
	if !ok {
		if hint, found := id.table.Lookup(dev.Vendor); found {
			vendor, ok = hint, true
		}
	}
	if !ok {
		vendor = GenericVendor
		if dev.Vendor != "" {
			vendor = dev.Vendor
		}
		ident.FailedSteps = append(ident.FailedSteps, StepVendor)
	}
	ident.Vendor = vendor

	model, ok := id.table.Model(vendor, sys.Descr)
	if !ok {
		model = UnknownModel
		if dev.Model != "" {
			model = dev.Model
		}
		ident.FailedSteps = append(ident.FailedSteps, StepModel)
	}
	ident.Model = model

	ident = id.refreshInterfaces(ctx, r, ident)

	ident.Registers = id.table.Registers(vendor, model, sys.Descr).Merge(dev.Registers)
	if ident.Registers.RxPower == "" && ident.Registers.TxPower == "" {
		ident.FailedSteps = append(ident.FailedSteps, StepRegisters)
	}

	id.logger.Debug("identify: device identified",
		"device", dev.Hostname,
		"vendor", ident.Vendor,
		"model", ident.Model,
		"type", ident.DeviceType,
		"uplinks", len(ident.Uplinks),
		"failed_steps", strings.Join(ident.FailedSteps, ","),
	)
	return ident
}

// refreshInterfaces re-walks the interface table and recomputes uplinks.
// On failure the previous lists are kept and the step is recorded.
func (id *Identifier) refreshInterfaces(ctx context.Context, r client.Reader, ident models.DeviceIdentity) models.DeviceIdentity {
	ident.FailedSteps = without(ident.FailedSteps, StepInterfaces, StepUplinks)
	ifs, err := iface.Collect(ctx, r, id.logger)
	if err != nil {
		id.logger.Warn("identify: interface enumeration failed",
			"device", ident.Device,
			"error", err.Error(),
		)
		ident.FailedSteps = append(ident.FailedSteps, StepInterfaces)
		return ident
	}
	ifs = Uplinks(id.table, ident.Vendor, ifs, id.cfg.SpeedThresholdMbps)
	ident.Interfaces = ifs
	ident.Uplinks = ident.Uplinks[:0:0]
	for _, in := range ifs {
		if in.Uplink {
			ident.Uplinks = append(ident.Uplinks, in)
		}
	}
	if len(ident.Uplinks) == 0 {
		ident.FailedSteps = append(ident.FailedSteps, StepUplinks)
	}
	return ident
}

func without(steps []string, drop ...string) []string {
	out := steps[:0:0]
	for _, s := range steps {
		keep := true
		for _, d := range drop {
			if s == d {
				keep = false
			}
		}
		if keep {
			out = append(out, s)
		}
	}
	return out
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
