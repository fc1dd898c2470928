// Package clienttest provides an in-memory client.Session serving canned
// register values, for tests of the components built on the client.
package clienttest

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gosnmp/gosnmp"
)

// ErrTimeout is returned for OIDs or subtrees registered with FailOn.
var ErrTimeout = errors.New("request timeout (after 1 retries)")

// Session is a fake agent. The zero value is an empty agent.
type Session struct {
	mu    sync.Mutex
	pdus  map[string]gosnmp.SnmpPDU
	fail  []string
	calls int
	v1    bool
}

// New returns an agent serving the given OID → PDU table.
func New() *Session {
	return &Session{pdus: make(map[string]gosnmp.SnmpPDU)}
}

// Set registers a value at oid.
func (s *Session) Set(oid string, t gosnmp.Asn1BER, v interface{}) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pdus == nil {
		s.pdus = make(map[string]gosnmp.SnmpPDU)
	}
	oid = strings.TrimPrefix(oid, ".")
	s.pdus[oid] = gosnmp.SnmpPDU{Name: "." + oid, Type: t, Value: v}
	return s
}

// SetString registers an OctetString value.
func (s *Session) SetString(oid, v string) *Session {
	return s.Set(oid, gosnmp.OctetString, []byte(v))
}

// SetInt registers an Integer value.
func (s *Session) SetInt(oid string, v int) *Session {
	return s.Set(oid, gosnmp.Integer, v)
}

// FailOn makes every request touching an OID with the given prefix time out.
func (s *Session) FailOn(prefix string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = append(s.fail, strings.TrimPrefix(prefix, "."))
	return s
}

// V1 makes Get answer like an SNMPv1 agent: a request naming a missing OID
// is refused as a whole with noSuchName and the 1-based index of that OID.
func (s *Session) V1() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v1 = true
	return s
}

// Calls returns the number of requests served.
func (s *Session) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Session) failing(oid string) bool {
	for _, p := range s.fail {
		if oid == p || strings.HasPrefix(oid, p+".") || strings.HasPrefix(p, oid+".") {
			return true
		}
	}
	return false
}

// Get implements client.Session.
func (s *Session) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	pkt := &gosnmp.SnmpPacket{Error: gosnmp.NoError}
	for i, oid := range oids {
		oid = strings.TrimPrefix(oid, ".")
		if s.failing(oid) {
			return nil, ErrTimeout
		}
		pdu, ok := s.pdus[oid]
		if !ok && s.v1 {
			return &gosnmp.SnmpPacket{Error: gosnmp.NoSuchName, ErrorIndex: uint8(i + 1)}, nil
		}
		if !ok {
			pdu = gosnmp.SnmpPDU{Name: "." + oid, Type: gosnmp.NoSuchObject}
		}
		pkt.Variables = append(pkt.Variables, pdu)
	}
	return pkt, nil
}

// BulkWalk implements client.Session.
func (s *Session) BulkWalk(root string, fn gosnmp.WalkFunc) error {
	return s.walk(root, fn)
}

// Walk implements client.Session.
func (s *Session) Walk(root string, fn gosnmp.WalkFunc) error {
	return s.walk(root, fn)
}

func (s *Session) walk(root string, fn gosnmp.WalkFunc) error {
	root = strings.TrimPrefix(root, ".")
	s.mu.Lock()
	s.calls++
	if s.failing(root) {
		s.mu.Unlock()
		return ErrTimeout
	}
	var keys []string
	for k := range s.pdus {
		if strings.HasPrefix(k, root+".") {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return oidLess(keys[i], keys[j]) })
	pdus := make([]gosnmp.SnmpPDU, len(keys))
	for i, k := range keys {
		pdus[i] = s.pdus[k]
	}
	s.mu.Unlock()

	for _, pdu := range pdus {
		if err := fn(pdu); err != nil {
			return err
		}
	}
	return nil
}

// oidLess orders OIDs component-wise, as an agent would.
func oidLess(a, b string) bool {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		x, _ := strconv.Atoi(as[i])
		y, _ := strconv.Atoi(bs[i])
		if x != y {
			return x < y
		}
	}
	return len(as) < len(bs)
}
