package dnsresolve

import (
	"context"
	"net"
	"time"

	mdns "github.com/miekg/dns"
)

// MiekgBackend resolves records over the wire using miekg/dns, in the same
// client/exchange shape as the teacher's framework/dns.ExtResolver: build a
// *dns.Msg, exchange it against each configured server in turn, and map a
// non-NOERROR rcode to an error.
type MiekgBackend struct {
	Client  *mdns.Client
	Servers []string
	Port    string
}

// NewMiekgBackend builds a backend that queries the caller-supplied servers
// on port (53 when empty); it does not read /etc/resolv.conf.
func NewMiekgBackend(servers []string, port string, timeout time.Duration) *MiekgBackend {
	if port == "" {
		port = "53"
	}
	return &MiekgBackend{
		Client:  &mdns.Client{Timeout: timeout, Dialer: &net.Dialer{Timeout: timeout}},
		Servers: servers,
		Port:    port,
	}
}

type rcodeError struct {
	name string
	code int
}

func (e rcodeError) Error() string {
	return "dns: rcode " + mdns.RcodeToString[e.code] + " resolving " + e.name
}

func (e rcodeError) Temporary() bool {
	return e.code == mdns.RcodeServerFailure || e.code == mdns.RcodeRefused
}

func (b *MiekgBackend) exchange(ctx context.Context, msg *mdns.Msg) (*mdns.Msg, error) {
	var (
		resp    *mdns.Msg
		lastErr error
	)
	for _, srv := range b.Servers {
		resp, _, lastErr = b.Client.ExchangeContext(ctx, msg, net.JoinHostPort(srv, b.Port))
		if lastErr != nil {
			continue
		}
		if resp.Rcode == mdns.RcodeNameError {
			// NXDOMAIN is a successful lookup with no answer, not a transient
			// failure - distinguished from SERVFAIL/REFUSED below.
			return resp, nil
		}
		if resp.Rcode != mdns.RcodeSuccess {
			lastErr = rcodeError{msg.Question[0].Name, resp.Rcode}
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func (b *MiekgBackend) ResolveTXT(ctx context.Context, domain string) ([]string, error) {
	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(domain), mdns.TypeTXT)
	resp, err := b.exchange(ctx, msg)
	if err != nil {
		return nil, newTemp("TXT", domain, err)
	}
	out := make([]string, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		txt, ok := rr.(*mdns.TXT)
		if !ok {
			continue
		}
		out = append(out, normalizeTXT(txt.Txt))
	}
	return out, nil
}

func (b *MiekgBackend) resolveAddr(ctx context.Context, domain string, qtype uint16) ([]net.IP, error) {
	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(domain), qtype)
	resp, err := b.exchange(ctx, msg)
	if err != nil {
		return nil, newTemp(mdns.TypeToString[qtype], domain, err)
	}
	out := make([]net.IP, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		if ip, ok := ipOf(rr); ok {
			out = append(out, ip)
		}
	}
	return out, nil
}

func (b *MiekgBackend) ResolveA(ctx context.Context, domain string) ([]net.IP, error) {
	return b.resolveAddr(ctx, domain, mdns.TypeA)
}

func (b *MiekgBackend) ResolveAAAA(ctx context.Context, domain string) ([]net.IP, error) {
	return b.resolveAddr(ctx, domain, mdns.TypeAAAA)
}

func (b *MiekgBackend) ResolveMX(ctx context.Context, domain string) ([]MXRecord, error) {
	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(domain), mdns.TypeMX)
	resp, err := b.exchange(ctx, msg)
	if err != nil {
		return nil, newTemp("MX", domain, err)
	}
	out := make([]MXRecord, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		mx, ok := rr.(*mdns.MX)
		if !ok {
			continue
		}
		out = append(out, MXRecord{Priority: mx.Preference, Exchange: mx.Mx})
	}
	return out, nil
}
