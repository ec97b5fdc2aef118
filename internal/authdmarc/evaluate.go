package authdmarc

import (
	"strings"

	"github.com/emersion/go-msgauth/dmarc"

	"github.com/inboxsentinel/core/internal/authspf"
)

// DKIMIdentity is the minimal shape authdmarc needs from a DKIM verification
// result to test alignment; internal/authdkim.VerifyResult satisfies it.
type DKIMIdentity struct {
	Domain string
	Pass   bool
}

// EvalInput is the C4 evaluate() contract's input.
type EvalInput struct {
	HeaderFromDomain string
	MailFromDomain   string
	SPFResult        authspf.Result
	DKIMResults      []DKIMIdentity
}

// EvalResult is the C4 evaluate() contract's output.
type EvalResult struct {
	Result        string // "pass" or "fail"
	SPFAligned    bool
	DKIMAligned   bool
	AppliedPolicy dmarc.Policy
}

// Evaluate computes alignment and the applied policy for a message, given
// the DMARC record found at recordDomain (the organizational domain if the
// header-from domain had none of its own).
func Evaluate(in EvalInput, rec *dmarc.Record, recordDomain string) EvalResult {
	orgDomain := OrgDomain(in.HeaderFromDomain)

	spfAligned := in.SPFResult == authspf.Pass && aligned(orgDomain, in.HeaderFromDomain, in.MailFromDomain, rec.SPFAlignment)

	dkimAligned := false
	for _, d := range in.DKIMResults {
		if d.Pass && aligned(orgDomain, in.HeaderFromDomain, d.Domain, rec.DKIMAlignment) {
			dkimAligned = true
			break
		}
	}

	result := "fail"
	if spfAligned || dkimAligned {
		result = "pass"
	}

	return EvalResult{
		Result:        result,
		SPFAligned:    spfAligned,
		DKIMAligned:   dkimAligned,
		AppliedPolicy: appliedPolicy(in.HeaderFromDomain, orgDomain, rec),
	}
}

// aligned tests alignment between the header-from domain and an
// authenticated identity domain (the SPF envelope-sender domain or the
// DKIM signing domain), under strict or relaxed mode.
func aligned(orgDomain, headerFromDomain, identityDomain string, mode dmarc.AlignmentMode) bool {
	switch mode {
	case dmarc.AlignmentStrict:
		return strings.EqualFold(headerFromDomain, identityDomain)
	default: // relaxed, including the library's zero value
		return OrgDomain(identityDomain) == orgDomain || strings.EqualFold(headerFromDomain, identityDomain) || strings.EqualFold(orgDomain, identityDomain)
	}
}

// appliedPolicy is sp when the header-from domain is a strict subdomain of
// the organizational domain and sp is present in the record, otherwise p.
func appliedPolicy(headerFromDomain, orgDomain string, rec *dmarc.Record) dmarc.Policy {
	isSubdomain := !strings.EqualFold(headerFromDomain, orgDomain) && strings.HasSuffix(strings.ToLower(headerFromDomain), "."+strings.ToLower(orgDomain))
	if isSubdomain && rec.SubdomainPolicy != "" {
		return rec.SubdomainPolicy
	}
	return rec.Policy
}
