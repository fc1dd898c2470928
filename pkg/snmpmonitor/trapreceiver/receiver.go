// Package trapreceiver listens for SNMP notifications and turns link and
// restart traps into models.LinkEvent values.
//
// Pipeline position:
//
//	UDP port 162  →  [TrapReceiver]  →  chan models.LinkEvent  →  app
//
// The receiver uses gosnmp's TrapListener as the UDP engine and delegates
// protocol-level parsing to the snmp/trap package.
package trapreceiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/snmp_monitor/models"
	snmptrap "github.com/vpbank/snmp_monitor/snmp/trap"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the TrapReceiver behaviour.
type Config struct {
	// ListenAddr is the UDP address to bind to (default "0.0.0.0:162").
	ListenAddr string

	// OutputBufferSize is the capacity of the output channel (default 1024).
	OutputBufferSize int

	// Community, when set, drops v1/v2c traps sent with another community.
	Community string

	// CloseTimeout bounds the graceful close of the UDP socket (default 3s).
	CloseTimeout time.Duration

	// ParseFunc replaces snmp/trap.Parse. Used in tests.
	ParseFunc ParseFunc
}

// ParseFunc is the signature of the trap-parsing function.
type ParseFunc func(pkt *gosnmp.SnmpPacket, addr *net.UDPAddr) (models.LinkEvent, error)

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0:162"
	}
	if c.OutputBufferSize <= 0 {
		c.OutputBufferSize = 1024
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = 3 * time.Second
	}
	if c.ParseFunc == nil {
		c.ParseFunc = snmptrap.Parse
	}
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// TrapReceiver
// ─────────────────────────────────────────────────────────────────────────────

// TrapReceiver listens on UDP for SNMP traps and sends the link events it
// recognises on its output channel.
type TrapReceiver struct {
	cfg    Config
	logger *slog.Logger

	output chan models.LinkEvent

	listener *gosnmp.TrapListener

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a TrapReceiver with the given configuration.
func New(cfg Config, logger *slog.Logger) *TrapReceiver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	c := cfg.withDefaults()
	return &TrapReceiver{
		cfg:    c,
		logger: logger,
		output: make(chan models.LinkEvent, c.OutputBufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Output returns the channel that delivers link events. It is closed when the
// receiver stops.
func (r *TrapReceiver) Output() <-chan models.LinkEvent {
	return r.output
}

// ListenAddr returns the address the receiver is (or will be) listening on.
func (r *TrapReceiver) ListenAddr() string {
	return r.cfg.ListenAddr
}

// Start binds the listener and returns once it is ready, or with the bind
// error. Cancelling ctx stops the receiver.
func (r *TrapReceiver) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("trapreceiver: already running")
	}
	r.running = true
	r.mu.Unlock()

	tl := gosnmp.NewTrapListener()
	tl.Params = &gosnmp.GoSNMP{
		Version:   gosnmp.Version2c,
		Community: r.cfg.Community,
		Logger:    gosnmp.NewLogger(slogAdapter{r.logger}),
	}
	tl.CloseTimeout = r.cfg.CloseTimeout
	tl.OnNewTrap = r.handleTrap
	r.listener = tl

	errCh := make(chan error, 1)
	go func() {
		defer close(r.doneCh)
		errCh <- tl.Listen(r.cfg.ListenAddr)
	}()

	select {
	case <-tl.Listening():
		r.logger.Info("trapreceiver: listening", "addr", r.cfg.ListenAddr)
	case err := <-errCh:
		r.setStopped()
		return fmt.Errorf("trapreceiver: listen %s: %w", r.cfg.ListenAddr, err)
	case <-ctx.Done():
		tl.Close()
		r.setStopped()
		return ctx.Err()
	}

	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
		case <-r.stopCh:
		}
	}()
	return nil
}

func (r *TrapReceiver) setStopped() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// Stop shuts the listener down and closes the output channel. It is safe to
// call Stop multiple times.
func (r *TrapReceiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false

	if r.listener != nil {
		r.listener.Close()
	}
	close(r.stopCh)

	// No further sends may happen once output is closed.
	<-r.doneCh
	close(r.output)
	r.logger.Info("trapreceiver: stopped")
}

// handleTrap runs on the gosnmp listener goroutine and must not block.
func (r *TrapReceiver) handleTrap(pkt *gosnmp.SnmpPacket, addr *net.UDPAddr) {
	if r.cfg.Community != "" && pkt.Version != gosnmp.Version3 && pkt.Community != r.cfg.Community {
		r.logger.Warn("trapreceiver: community mismatch, trap dropped", "remote", addr.String())
		return
	}

	ev, err := r.cfg.ParseFunc(pkt, addr)
	switch {
	case errors.Is(err, snmptrap.ErrIgnored):
		r.logger.Debug("trapreceiver: trap ignored", "remote", addr.String(), "reason", err.Error())
		return
	case err != nil:
		r.logger.Warn("trapreceiver: parse error", "remote", addr.String(), "error", err.Error())
		return
	}

	select {
	case r.output <- ev:
	default:
		r.logger.Warn("trapreceiver: output buffer full, event dropped",
			"device", ev.Device,
			"kind", ev.Kind,
		)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }

// slogAdapter bridges slog.Logger to gosnmp's Printf-style Logger.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Print(v ...interface{}) {
	a.l.Debug(fmt.Sprint(v...))
}

func (a slogAdapter) Printf(format string, v ...interface{}) {
	a.l.Debug(fmt.Sprintf(format, v...))
}
