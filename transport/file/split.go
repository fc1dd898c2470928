package file

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// SplitConfig
// ─────────────────────────────────────────────────────────────────────────────

// SplitConfig controls SplitWriterTransport behaviour.
type SplitConfig struct {
	// Writers maps a record kind ("bandwidth_sample", "uplink_status", …) to
	// its destination.
	Writers map[string]io.Writer

	// Default receives records whose kind has no entry in Writers, and
	// records without a kind. nil defaults to os.Stdout.
	Default io.Writer

	// Newline appended after each record. Default "\n".
	Newline string
}

// ─────────────────────────────────────────────────────────────────────────────
// SplitWriterTransport
// ─────────────────────────────────────────────────────────────────────────────

// SplitWriterTransport routes each record to the writer registered for its
// envelope kind. Each destination has its own lock so that a slow file does
// not stall the others.
type SplitWriterTransport struct {
	routes  map[string]*route
	def     *route
	nl      []byte
	closers []io.Closer
	logger  *slog.Logger
}

type route struct {
	mu   sync.Mutex
	w    io.Writer
	kind string
}

// NewSplit constructs a SplitWriterTransport. Writers that are io.Closers
// (other than stdout and stderr) are closed by Close.
func NewSplit(cfg SplitConfig, logger *slog.Logger) *SplitWriterTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.Default == nil {
		cfg.Default = os.Stdout
	}
	if cfg.Newline == "" {
		cfg.Newline = "\n"
	}

	st := &SplitWriterTransport{
		routes: make(map[string]*route, len(cfg.Writers)),
		def:    &route{w: cfg.Default, kind: "default"},
		nl:     []byte(cfg.Newline),
		logger: logger,
	}
	seen := map[io.Writer]bool{}
	track := func(w io.Writer) {
		if c, ok := w.(io.Closer); ok && !isStd(w) && !seen[w] {
			seen[w] = true
			st.closers = append(st.closers, c)
		}
	}
	for kind, w := range cfg.Writers {
		if w == nil {
			continue
		}
		st.routes[kind] = &route{w: w, kind: kind}
		track(w)
	}
	track(cfg.Default)
	return st
}

// Send extracts the envelope kind and writes data to its destination.
func (st *SplitWriterTransport) Send(data []byte) error {
	r := st.def
	if kind := recordKind(data); kind != "" {
		if kr, ok := st.routes[kind]; ok {
			r = kr
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := writeLine(r.w, data, st.nl); err != nil {
		st.logger.Error("transport/file: write failed", "route", r.kind, "error", err.Error())
		return fmt.Errorf("%w (route %s)", err, r.kind)
	}
	st.logger.Debug("transport/file: sent record", "route", r.kind, "bytes", len(data))
	return nil
}

// Close closes every owned writer and returns the first error.
func (st *SplitWriterTransport) Close() error {
	var firstErr error
	for _, c := range st.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	st.closers = nil
	return firstErr
}

var kindKey = []byte(`"kind"`)

// recordKind returns the value of the first "kind" key without decoding the
// whole document. The envelope always emits kind first, so for formatter
// output this is the envelope kind and not a nested field.
func recordKind(data []byte) string {
	i := bytes.Index(data, kindKey)
	if i < 0 {
		return ""
	}
	rest := bytes.TrimLeft(data[i+len(kindKey):], " \t\r\n")
	if len(rest) == 0 || rest[0] != ':' {
		return ""
	}
	rest = bytes.TrimLeft(rest[1:], " \t\r\n")
	if len(rest) == 0 || rest[0] != '"' {
		return ""
	}
	rest = rest[1:]
	end := bytes.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return string(rest[:end])
}
