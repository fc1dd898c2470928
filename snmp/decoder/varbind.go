package decoder

import (
	"fmt"
	"strconv"
	"strings"
)

// NormaliseOID strips a leading dot and any whitespace from an OID string.
// OIDs are stored and compared in the no-leading-dot form.
func NormaliseOID(oid string) string {
	return strings.TrimPrefix(strings.TrimSpace(oid), ".")
}

// Instance returns the suffix of oid below base, e.g. "5" for
// base "1.3.6.1.2.1.2.2.1.2" and oid ".1.3.6.1.2.1.2.2.1.2.5".
func Instance(base, oid string) (string, bool) {
	base = NormaliseOID(base)
	oid = NormaliseOID(oid)
	if !strings.HasPrefix(oid, base+".") {
		return "", false
	}
	return oid[len(base)+1:], true
}

// InSubtree reports whether oid equals base or lies below it on a component
// boundary.
func InSubtree(base, oid string) bool {
	base = NormaliseOID(base)
	oid = NormaliseOID(oid)
	return oid == base || strings.HasPrefix(oid, base+".")
}

// IndexComponents splits an instance suffix into its numeric components.
func IndexComponents(inst string) ([]int, error) {
	if inst == "" {
		return nil, fmt.Errorf("empty index")
	}
	parts := strings.Split(inst, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("index component %q is not a non-negative integer", p)
		}
		out[i] = n
	}
	return out, nil
}

// Column groups walk results of one table column by integer index. Rows
// whose instance is not a single integer are dropped.
func Column(base string, rows map[string]Value) map[int]Value {
	out := make(map[int]Value, len(rows))
	for oid, v := range rows {
		inst, ok := Instance(base, oid)
		if !ok {
			continue
		}
		idx, err := strconv.Atoi(inst)
		if err != nil {
			continue
		}
		out[idx] = v
	}
	return out
}
