// Package file delivers formatted records to local writers: standard output,
// plain files, or size-rotated files, optionally split per record kind.
//
// Pipeline position:
//
//	format/json  →  transport/file  →  stdout | <dir>/<kind>.json
package file

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Transport is the sink contract. Send delivers one pre-formatted record and
// Close releases whatever the transport owns.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// ─────────────────────────────────────────────────────────────────────────────
// WriterTransport
// ─────────────────────────────────────────────────────────────────────────────

// Config controls WriterTransport behaviour.
type Config struct {
	// Writer is the destination. nil defaults to os.Stdout.
	Writer io.Writer

	// Newline appended after each record. Default "\n".
	Newline string

	// Owned makes Close also close Writer when it is an io.Closer.
	Owned bool
}

// WriterTransport writes one record per line to an io.Writer. It is safe for
// concurrent use.
type WriterTransport struct {
	mu     sync.Mutex
	w      io.Writer
	nl     []byte
	closer io.Closer
	sent   int
	logger *slog.Logger
}

// New constructs a WriterTransport.
func New(cfg Config, logger *slog.Logger) *WriterTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.Newline == "" {
		cfg.Newline = "\n"
	}
	t := &WriterTransport{w: cfg.Writer, nl: []byte(cfg.Newline), logger: logger}
	if c, ok := cfg.Writer.(io.Closer); ok && cfg.Owned && !isStd(cfg.Writer) {
		t.closer = c
	}
	return t
}

// Send writes data followed by the newline as one unit.
func (t *WriterTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := writeLine(t.w, data, t.nl); err != nil {
		t.logger.Error("transport/file: write failed", "error", err.Error(), "bytes", len(data))
		return err
	}
	t.sent++
	return nil
}

// Sent returns the number of records written so far.
func (t *WriterTransport) Sent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

// Close closes the writer when the transport owns it.
func (t *WriterTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closer == nil {
		return nil
	}
	c := t.closer
	t.closer = nil
	return c.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// writeLine concatenates before writing so that a RotatingFile never splits a
// record from its newline across two files.
func writeLine(w io.Writer, data, nl []byte) error {
	buf := make([]byte, 0, len(data)+len(nl))
	buf = append(buf, data...)
	buf = append(buf, nl...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("transport/file: write: %w", err)
	}
	return nil
}

func isStd(w io.Writer) bool {
	return w == os.Stdout || w == os.Stderr
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
