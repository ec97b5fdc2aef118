// Package dnsresolve implements the TTL-bounded DNS lookup layer (spec
// component C1) used by the SPF, DKIM and DMARC engines. It defines a small
// Backend interface so the lookup transport is pluggable (miekg/dns over the
// network, or a mock for tests) and a Cache that wraps any Backend with a
// (rrtype, domain)-keyed TTL cache and a background sweeper.
package dnsresolve

import (
	"context"
	"errors"
	"net"
	"strings"

	mdns "github.com/miekg/dns"

	"github.com/inboxsentinel/core/internal/dns"
	"github.com/inboxsentinel/core/internal/exterrors"
)

// MXRecord is one answer from an MX lookup.
type MXRecord struct {
	Priority uint16
	Exchange string
}

// Backend is the abstraction every concrete DNS transport (and every test
// mock) implements. Absence of records is a successful call returning an
// empty slice; transient failure (timeout, SERVFAIL, malformed response) is
// returned as an error satisfying exterrors.TemporaryErr.
type Backend interface {
	ResolveTXT(ctx context.Context, domain string) ([]string, error)
	ResolveA(ctx context.Context, domain string) ([]net.IP, error)
	ResolveAAAA(ctx context.Context, domain string) ([]net.IP, error)
	ResolveMX(ctx context.Context, domain string) ([]MXRecord, error)
}

// TempError wraps a transient DNS failure. Its Temporary() method reports
// true, which is what SPF/DKIM callers check to map it to "temperror".
type TempError struct {
	Domain string
	Op     string
	Err    error
}

func (e *TempError) Error() string {
	return "dns: temporary error resolving " + e.Op + " " + e.Domain + ": " + e.Err.Error()
}

func (e *TempError) Unwrap() error   { return e.Err }
func (e *TempError) Temporary() bool { return true }
func (e *TempError) Kind() exterrors.Kind { return exterrors.KindTransientDependency }

var ErrNoAnswer = errors.New("dns: no answer")

func newTemp(op, domain string, err error) error {
	return &TempError{Domain: domain, Op: op, Err: err}
}

// rrKey uniquely identifies a cached lookup.
type rrKey struct {
	rrtype string
	domain string
}

func keyFor(rrtype, domain string) rrKey {
	lower, _ := dns.ForLookup(domain)
	return rrKey{rrtype: rrtype, domain: lower}
}

// normalizeTXT joins TXT string fragments the way a single TXT RDATA is
// presented: RFC 7208/6376 both treat a multi-segment TXT record as the
// concatenation of its character-strings.
func normalizeTXT(segments []string) string {
	return strings.Join(segments, "")
}

func ipOf(rr mdns.RR) (net.IP, bool) {
	switch v := rr.(type) {
	case *mdns.A:
		return v.A, true
	case *mdns.AAAA:
		return v.AAAA, true
	}
	return nil, false
}
