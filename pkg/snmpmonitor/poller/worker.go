package poller

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vpbank/snmp_monitor/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// WorkerPool: fan-out dispatcher for device tasks
// ─────────────────────────────────────────────────────────────────────────────

// Runner executes one device task.
type Runner interface {
	Execute(ctx context.Context, dev models.Device) Result
}

// WorkerPool fans device tasks out to N worker goroutines and collects the
// results into a shared output channel.
type WorkerPool struct {
	numWorkers int
	runner     Runner
	output     chan<- Result
	logger     *slog.Logger

	jobs     chan models.Device
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewWorkerPool creates a pool of numWorkers goroutines (default 10).
func NewWorkerPool(numWorkers int, runner Runner, output chan<- Result, logger *slog.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 10
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &WorkerPool{
		numWorkers: numWorkers,
		runner:     runner,
		output:     output,
		logger:     logger,
		jobs:       make(chan models.Device, numWorkers),
	}
}

// Size returns the number of workers.
func (w *WorkerPool) Size() int { return w.numWorkers }

// Start launches the workers. They run until ctx is cancelled or Stop is
// called. A task already running when ctx is cancelled still delivers its
// result if output has room; callers that must not lose results size output
// to the number of submitted devices.
func (w *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.worker(ctx)
	}
}

// Submit enqueues a device. It blocks while the queue is full or until ctx
// is done, and reports whether the device was queued.
func (w *WorkerPool) Submit(ctx context.Context, dev models.Device) bool {
	select {
	case w.jobs <- dev:
		return true
	case <-ctx.Done():
		return false
	}
}

// TrySubmit enqueues a device without blocking.
func (w *WorkerPool) TrySubmit(dev models.Device) bool {
	select {
	case w.jobs <- dev:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for the workers to drain it.
func (w *WorkerPool) Stop() {
	w.stopOnce.Do(func() { close(w.jobs) })
	w.wg.Wait()
}

func (w *WorkerPool) worker(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case dev, ok := <-w.jobs:
			if !ok {
				return
			}
			res := w.runner.Execute(ctx, dev)
			if res.Failed() {
				w.logger.Warn("poller: device failed",
					"device", dev.Hostname,
					"errors", len(res.Errors),
				)
			}
			// Delivered whenever output has room, even after cancellation.
			select {
			case w.output <- res:
				continue
			default:
			}
			select {
			case w.output <- res:
			case <-ctx.Done():
				w.logger.Warn("poller: result dropped, output not drained",
					"device", dev.Hostname,
				)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
