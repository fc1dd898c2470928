// Package client is the read path against one device endpoint: single fetch,
// batched fetch and subtree walk. Every failure comes back as "no data" plus
// an error wrapping ErrNoData; nothing here panics or aborts a caller's
// cycle. Callers decide whether to retry, skip or escalate.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gosnmp/gosnmp"
	"github.com/vpbank/snmp_monitor/snmp/decoder"
	"github.com/vpbank/snmp_monitor/snmp/mib"
)

// ErrNoData is wrapped by every error returned from a Client call.
var ErrNoData = errors.New("client: no data")

// errStopWalk ends a walk early once maxRows is reached.
var errStopWalk = errors.New("client: walk row limit reached")

// DefaultMaxOids is the number of OIDs sent in a single Get request.
const DefaultMaxOids = 20

// Session is the subset of *gosnmp.GoSNMP used by the client. The session is
// expected to be connected and exclusively owned for the duration of a call.
type Session interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	BulkWalk(rootOid string, walkFn gosnmp.WalkFunc) error
	Walk(rootOid string, walkFn gosnmp.WalkFunc) error
}

// Reader is the read contract consumed by the upper components. References
// are symbolic ("IF-MIB::ifDescr.3") or numeric OIDs; results are keyed by
// the resolved numeric OID without leading dot.
type Reader interface {
	GetOne(ctx context.Context, ref string) (decoder.Value, error)
	GetMany(ctx context.Context, refs []string) (map[string]decoder.Value, error)
	Walk(ctx context.Context, base string, maxRows int) (map[string]decoder.Value, error)
}

// Options configures a Client.
type Options struct {
	// Device names the endpoint in logs and errors.
	Device string

	// Version selects GetBulk walks for v2c and GetNext walks for v1.
	Version gosnmp.SnmpVersion

	// MaxOids bounds the OIDs per Get request. Default DefaultMaxOids.
	MaxOids int

	// Resolver resolves symbolic references. Default mib.Default().
	Resolver *mib.Resolver
}

// Client implements Reader over a Session.
type Client struct {
	sess   Session
	opts   Options
	logger *slog.Logger
}

var _ Reader = (*Client)(nil)

// New wraps a session.
func New(sess Session, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if opts.MaxOids <= 0 {
		opts.MaxOids = DefaultMaxOids
	}
	if opts.Resolver == nil {
		opts.Resolver = mib.Default()
	}
	return &Client{sess: sess, opts: opts, logger: logger}
}

// GetOne fetches a single register. An absent Value with a nil error means
// the device answered but has no such object.
func (c *Client) GetOne(ctx context.Context, ref string) (decoder.Value, error) {
	oid := c.opts.Resolver.ResolveString(ref)
	vals, err := c.get(ctx, []string{oid})
	if err != nil {
		var se statusError
		if errors.As(err, &se) && se.status == gosnmp.NoSuchName {
			return decoder.Absent(), nil
		}
		return decoder.Absent(), err
	}
	return vals[oid], nil
}

// GetMany fetches refs in as few round trips as MaxOids allows. If any
// request fails the whole result is discarded and an empty map returned.
// Absent registers are left out of the map, including those an SNMPv1 agent
// refuses with noSuchName.
func (c *Client) GetMany(ctx context.Context, refs []string) (map[string]decoder.Value, error) {
	oids := make([]string, len(refs))
	for i, r := range refs {
		oids[i] = c.opts.Resolver.ResolveString(r)
	}

	out := make(map[string]decoder.Value, len(oids))
	for start := 0; start < len(oids); start += c.opts.MaxOids {
		end := min(start+c.opts.MaxOids, len(oids))
		vals, err := c.getPruned(ctx, oids[start:end])
		if err != nil {
			return map[string]decoder.Value{}, err
		}
		for k, v := range vals {
			if v.Present() {
				out[k] = v
			}
		}
	}
	return out, nil
}

// getPruned issues one Get. An SNMPv1 agent refuses the whole request with
// noSuchName when a single register is missing; the request is then repeated
// without the register the error index names.
func (c *Client) getPruned(ctx context.Context, oids []string) (map[string]decoder.Value, error) {
	oids = slices.Clone(oids)
	for {
		vals, err := c.get(ctx, oids)
		var se statusError
		if err == nil || !errors.As(err, &se) || se.status != gosnmp.NoSuchName ||
			se.index < 1 || int(se.index) > len(oids) {
			return vals, err
		}
		i := int(se.index) - 1
		c.logger.Debug("client: register absent, retrying without it",
			"device", c.opts.Device,
			"oid", oids[i],
		)
		oids = slices.Delete(oids, i, i+1)
		if len(oids) == 0 {
			return map[string]decoder.Value{}, nil
		}
	}
}

// Walk enumerates the subtree under base in lexicographic order, stopping
// after maxRows rows (0 means no limit) or when the walk leaves the subtree.
// Rows collected before a transport failure are returned with the error.
func (c *Client) Walk(ctx context.Context, base string, maxRows int) (map[string]decoder.Value, error) {
	root := c.opts.Resolver.ResolveString(base)
	if err := ctx.Err(); err != nil {
		return map[string]decoder.Value{}, fmt.Errorf("%w: walk %s on %s: %w", ErrNoData, root, c.opts.Device, err)
	}

	out := make(map[string]decoder.Value)
	fn := func(pdu gosnmp.SnmpPDU) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		oid := decoder.NormaliseOID(pdu.Name)
		if !decoder.InSubtree(root, oid) {
			return errStopWalk
		}
		v := decoder.FromPDU(pdu)
		if !v.Present() {
			return nil
		}
		out[oid] = v
		if maxRows > 0 && len(out) >= maxRows {
			return errStopWalk
		}
		return nil
	}

	var err error
	if c.opts.Version == gosnmp.Version1 {
		err = c.sess.Walk(root, fn)
	} else {
		err = c.sess.BulkWalk(root, fn)
	}
	if err != nil && !errors.Is(err, errStopWalk) {
		c.logger.Debug("client: walk failed",
			"device", c.opts.Device, "oid", root, "rows", len(out), "error", err.Error(),
		)
		return out, fmt.Errorf("%w: walk %s on %s: %w", ErrNoData, root, c.opts.Device, err)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

type statusError struct {
	status gosnmp.SNMPError
	index  uint8
}

func (e statusError) Error() string {
	return fmt.Sprintf("error status %v at index %d", e.status, e.index)
}

func (c *Client) get(ctx context.Context, oids []string) (map[string]decoder.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: get on %s: %w", ErrNoData, c.opts.Device, err)
	}
	pkt, err := c.sess.Get(oids)
	if err != nil {
		c.logger.Debug("client: get failed",
			"device", c.opts.Device, "oids", len(oids), "error", err.Error(),
		)
		return nil, fmt.Errorf("%w: get on %s: %w", ErrNoData, c.opts.Device, err)
	}
	if pkt == nil {
		return nil, fmt.Errorf("%w: get on %s: empty response", ErrNoData, c.opts.Device)
	}
	if pkt.Error != gosnmp.NoError {
		return nil, fmt.Errorf("%w: get on %s: %w", ErrNoData, c.opts.Device,
			statusError{status: pkt.Error, index: pkt.ErrorIndex})
	}

	out := make(map[string]decoder.Value, len(pkt.Variables))
	for _, pdu := range pkt.Variables {
		out[decoder.NormaliseOID(pdu.Name)] = decoder.FromPDU(pdu)
	}
	return out, nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
