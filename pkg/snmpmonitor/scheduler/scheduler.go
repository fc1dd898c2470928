// Package scheduler re-invokes the monitoring cycle at a fixed interval and
// runs out-of-band polls of single devices on request.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vpbank/snmp_monitor/models"
)

// RunFunc runs one cycle over the devices selected by f. It must return once
// the cycle's results are handled.
type RunFunc func(ctx context.Context, f models.Filter)

// triggerQueue bounds the out-of-band polls waiting to run.
const triggerQueue = 64

// ─────────────────────────────────────────────────────────────────────────────
// Scheduler
// ─────────────────────────────────────────────────────────────────────────────

// Scheduler fires a cycle immediately on Start and then every interval. A
// tick that arrives while the previous cycle is still running is skipped.
type Scheduler struct {
	run    RunFunc
	filter models.Filter
	logger *slog.Logger

	interval atomic.Int64 // time.Duration
	reset    chan struct{}

	mu      sync.Mutex
	pending map[string]bool
	trigger chan string

	running atomic.Bool
	skipped atomic.Int64
	cycles  atomic.Int64

	wg   sync.WaitGroup
	done chan struct{}
}

// New creates a Scheduler. It does NOT start automatically; call Start to
// begin dispatching.
func New(interval time.Duration, filter models.Filter, run RunFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s := &Scheduler{
		run:     run,
		filter:  filter,
		logger:  logger,
		reset:   make(chan struct{}, 1),
		pending: make(map[string]bool),
		trigger: make(chan string, triggerQueue),
		done:    make(chan struct{}),
	}
	s.interval.Store(int64(interval))
	return s
}

// Start runs the scheduling loop. It blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)

	s.fire(ctx)
	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reset:
			ticker.Reset(s.Interval())
			s.logger.Info("scheduler: interval changed", "interval", s.Interval().String())
		case <-ticker.C:
			s.fire(ctx)
		case host := <-s.trigger:
			s.mu.Lock()
			delete(s.pending, host)
			s.mu.Unlock()
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.logger.Debug("scheduler: out-of-band poll", "device", host)
				s.run(ctx, models.Filter{Hostname: host})
			}()
		}
	}
}

// Stop waits for the scheduling loop and every cycle it started to exit. The
// caller must cancel the context passed to Start before calling Stop.
func (s *Scheduler) Stop() {
	<-s.done
	s.wg.Wait()
}

// Trigger requests an out-of-band poll of one device. Requests for a device
// that is already queued are merged; it reports false when the queue is
// full.
func (s *Scheduler) Trigger(hostname string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[hostname] {
		return true
	}
	select {
	case s.trigger <- hostname:
		s.pending[hostname] = true
		return true
	default:
		s.logger.Warn("scheduler: trigger queue full, dropping poll", "device", hostname)
		return false
	}
}

// SetInterval changes the cycle interval from the next tick on.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 || time.Duration(s.interval.Swap(int64(d))) == d {
		return
	}
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

// Interval returns the current cycle interval.
func (s *Scheduler) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// Cycles returns the number of cycles started.
func (s *Scheduler) Cycles() int { return int(s.cycles.Load()) }

// Skipped returns the number of ticks dropped because a cycle was running.
func (s *Scheduler) Skipped() int { return int(s.skipped.Load()) }

// fire starts a cycle unless one is still running.
func (s *Scheduler) fire(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn("scheduler: previous cycle still running, tick skipped")
		return
	}
	s.cycles.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		started := time.Now()
		s.run(ctx, s.filter)
		s.logger.Debug("scheduler: cycle finished", "took", time.Since(started).String())
	}()
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
