package dnsresolve

import (
	"context"
	"net"

	"github.com/foxcpp/go-mockdns"
)

// MockdnsBackend adapts a *mockdns.Resolver (an in-process authoritative DNS
// stub, drop-in for net.Resolver) to the Backend interface so SPF/DKIM/DMARC
// fixtures can be expressed as zone data instead of a running server. This
// is the same library and zone-map shape the teacher uses in its remote
// delivery tests.
type MockdnsBackend struct {
	Resolver *mockdns.Resolver
}

func NewMockdnsBackend(zones map[string]mockdns.Zone) *MockdnsBackend {
	return &MockdnsBackend{Resolver: &mockdns.Resolver{Zones: zones}}
}

func (m *MockdnsBackend) ResolveTXT(ctx context.Context, domain string) ([]string, error) {
	recs, err := m.Resolver.LookupTXT(ctx, domain)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, newTemp("TXT", domain, err)
	}
	return recs, nil
}

func (m *MockdnsBackend) ResolveA(ctx context.Context, domain string) ([]net.IP, error) {
	return m.resolveAddr(ctx, domain, false)
}

func (m *MockdnsBackend) ResolveAAAA(ctx context.Context, domain string) ([]net.IP, error) {
	return m.resolveAddr(ctx, domain, true)
}

func (m *MockdnsBackend) resolveAddr(ctx context.Context, domain string, v6 bool) ([]net.IP, error) {
	addrs, err := m.Resolver.LookupIPAddr(ctx, domain)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, newTemp("A/AAAA", domain, err)
	}
	out := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		is4 := a.IP.To4() != nil
		if is4 == !v6 {
			out = append(out, a.IP)
		}
	}
	return out, nil
}

func (m *MockdnsBackend) ResolveMX(ctx context.Context, domain string) ([]MXRecord, error) {
	mxs, err := m.Resolver.LookupMX(ctx, domain)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, newTemp("MX", domain, err)
	}
	out := make([]MXRecord, 0, len(mxs))
	for _, mx := range mxs {
		out = append(out, MXRecord{Priority: mx.Pref, Exchange: mx.Host})
	}
	return out, nil
}

func isNotFound(err error) bool {
	dnsErr, ok := err.(*net.DNSError)
	return ok && dnsErr.IsNotFound
}

var _ Backend = (*MockdnsBackend)(nil)
