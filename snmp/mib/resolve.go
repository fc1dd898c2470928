// Package mib resolves register references to numeric OIDs. A reference is
// either symbolic (MODULE::name with an optional instance suffix) or a
// literal numeric path. The symbol table is built once and is read-only
// afterwards, so a Resolver is safe for concurrent use.
package mib

import (
	"log/slog"
	"strings"
	"sync"
)

// Ref is a register reference.
type Ref struct {
	Module   string // "IF-MIB"; empty for bare names and numeric refs
	Name     string // symbolic name or the numeric OID
	Instance string // ".3" style suffix without the leading dot
}

// Numeric builds a literal numeric reference.
func Numeric(oid string) Ref {
	return Ref{Name: strings.TrimPrefix(oid, ".")}
}

// Symbol builds a symbolic reference.
func Symbol(module, name, instance string) Ref {
	return Ref{Module: module, Name: name, Instance: strings.TrimPrefix(instance, ".")}
}

// Parse interprets s as "MODULE::name[.instance]", "name[.instance]" or a
// dotted numeric OID with or without a leading dot.
func Parse(s string) Ref {
	s = strings.TrimSpace(s)
	if isNumeric(s) {
		return Numeric(s)
	}
	var r Ref
	if mod, rest, ok := strings.Cut(s, "::"); ok {
		r.Module = mod
		s = rest
	}
	if name, inst, ok := strings.Cut(s, "."); ok {
		r.Name = name
		r.Instance = inst
	} else {
		r.Name = s
	}
	return r
}

// IsNumeric reports whether the reference is already a literal OID.
func (r Ref) IsNumeric() bool {
	return r.Module == "" && isNumeric(r.Name)
}

func (r Ref) String() string {
	var b strings.Builder
	if r.Module != "" {
		b.WriteString(r.Module)
		b.WriteString("::")
	}
	b.WriteString(r.Name)
	if r.Instance != "" {
		b.WriteByte('.')
		b.WriteString(r.Instance)
	}
	return b.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Resolver
// ─────────────────────────────────────────────────────────────────────────────

// Resolver maps symbols to numeric OIDs.
type Resolver struct {
	symbols map[string]string // "MODULE::name" and bare "name" → numeric OID
	logger  *slog.Logger
}

// NewResolver builds a resolver from the built-in symbols plus extra. Keys of
// extra use the "MODULE::name" form; the bare name is registered too unless
// it is already taken.
func NewResolver(extra map[string]string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	r := &Resolver{symbols: make(map[string]string, len(builtin)*2+len(extra)*2), logger: logger}
	for k, v := range builtin {
		r.add(k, v)
	}
	for k, v := range extra {
		r.add(k, v)
	}
	return r
}

func (r *Resolver) add(key, oid string) {
	oid = strings.TrimPrefix(oid, ".")
	r.symbols[key] = oid
	if _, name, ok := strings.Cut(key, "::"); ok {
		if _, taken := r.symbols[name]; !taken {
			r.symbols[name] = oid
		}
	}
}

var defaultResolver = sync.OnceValue(func() *Resolver {
	return NewResolver(nil, nil)
})

// Default returns the process-wide resolver over the built-in symbols.
func Default() *Resolver { return defaultResolver() }

// Resolve returns the numeric OID, without leading dot, for ref. Numeric
// references are returned normalised, so resolving a result again yields the
// same string. An unknown symbol falls back to its literal text and is left
// for the device to reject.
func (r *Resolver) Resolve(ref Ref) string {
	if ref.IsNumeric() {
		return joinInstance(ref.Name, ref.Instance)
	}
	key := ref.Name
	if ref.Module != "" {
		key = ref.Module + "::" + ref.Name
	}
	oid, ok := r.symbols[key]
	if !ok {
		oid, ok = r.symbols[ref.Name]
	}
	if !ok {
		r.logger.Debug("mib: unresolved symbol, using literal", "ref", ref.String())
		return joinInstance(ref.Name, ref.Instance)
	}
	return joinInstance(oid, ref.Instance)
}

// ResolveString parses and resolves s in one step.
func (r *Resolver) ResolveString(s string) string {
	return r.Resolve(Parse(s))
}

// Lookup returns the OID registered for a symbol.
func (r *Resolver) Lookup(symbol string) (string, bool) {
	oid, ok := r.symbols[symbol]
	return oid, ok
}

func joinInstance(oid, inst string) string {
	oid = strings.TrimPrefix(oid, ".")
	if inst == "" {
		return oid
	}
	return oid + "." + inst
}

func isNumeric(s string) bool {
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return false
	}
	prevDot := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '.':
			if prevDot {
				return false
			}
			prevDot = true
		case c >= '0' && c <= '9':
			prevDot = false
		default:
			return false
		}
	}
	return !prevDot
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
