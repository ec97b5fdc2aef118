// Package authdmarc implements DMARC policy resolution and alignment
// evaluation (spec component C4): organizational-domain fallback, strict/
// relaxed SPF and DKIM alignment, and applied-policy derivation.
package authdmarc

import (
	"context"
	"strings"

	"github.com/emersion/go-msgauth/dmarc"
	"golang.org/x/net/publicsuffix"
)

// Resolver is the DNS lookup surface authdmarc needs; dnsresolve.Cache and
// dnsresolve.Backend both satisfy it.
type Resolver interface {
	ResolveTXT(ctx context.Context, domain string) ([]string, error)
}

// OrgDomain returns the organizational (registrable) domain of domain,
// falling back to domain itself if the public suffix list can't place it
// (e.g. domain is already a bare TLD).
func OrgDomain(domain string) string {
	org, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(domain))
	if err != nil {
		return strings.ToLower(domain)
	}
	return org
}

// GetRecord resolves the DMARC record relevant to fromDomain: first at
// "_dmarc.<fromDomain>", then at "_dmarc.<organizational domain>" if the
// exact domain has none. The domain the record was actually found at is
// returned alongside it. A record whose "v=" tag isn't exactly "DMARC1", or
// a TXT name with more than one DMARC-shaped record, is a parse error
// (PermError by the caller's convention); no record at all is (nil, "", nil).
func GetRecord(ctx context.Context, r Resolver, fromDomain string) (rec *dmarc.Record, foundAt string, err error) {
	rec, err = lookupOne(ctx, r, fromDomain)
	if err != nil {
		return nil, "", err
	}
	if rec != nil {
		return rec, fromDomain, nil
	}

	org := OrgDomain(fromDomain)
	if org == strings.ToLower(fromDomain) {
		return nil, "", nil
	}
	rec, err = lookupOne(ctx, r, org)
	if err != nil {
		return nil, "", err
	}
	if rec == nil {
		return nil, "", nil
	}
	return rec, org, nil
}

func lookupOne(ctx context.Context, r Resolver, domain string) (*dmarc.Record, error) {
	txts, err := r.ResolveTXT(ctx, "_dmarc."+domain)
	if err != nil {
		return nil, err
	}

	var candidates []string
	for _, txt := range txts {
		if strings.HasPrefix(txt, "v=") {
			candidates = append(candidates, txt)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) > 1 {
		return nil, errMultipleRecords
	}

	rec, err := dmarc.Parse(candidates[0])
	if err != nil {
		return nil, err
	}
	return rec, nil
}

var errMultipleRecords = multiRecordErr("authdmarc: multiple DMARC records")

type multiRecordErr string

func (e multiRecordErr) Error() string { return string(e) }
