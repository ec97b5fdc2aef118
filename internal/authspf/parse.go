package authspf

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRecord parses the body of a v=spf1 TXT record (the "v=spf1 " prefix
// must already be stripped by the caller via IsRecord/Body).
// An unknown mechanism name is a parse error, which the caller maps to
// permerror per RFC 7208 §4.6.
func ParseRecord(body string) (*Record, error) {
	rec := &Record{}
	fields := strings.Fields(body)

	for _, term := range fields {
		if strings.HasPrefix(term, "redirect=") {
			rec.Redirect = strings.TrimPrefix(term, "redirect=")
			continue
		}
		if strings.HasPrefix(term, "exp=") {
			rec.Explanation = strings.TrimPrefix(term, "exp=")
			continue
		}

		mech, err := parseMechanism(term)
		if err != nil {
			return nil, err
		}
		rec.Mechanisms = append(rec.Mechanisms, mech)
	}

	return rec, nil
}

// IsRecord reports whether txt is an SPF policy record (RFC 7208 §4.5:
// case-insensitive "v=spf1" prefix, followed by end-of-string or whitespace).
func IsRecord(txt string) bool {
	const prefix = "v=spf1"
	if len(txt) < len(prefix) || !strings.EqualFold(txt[:len(prefix)], prefix) {
		return false
	}
	rest := txt[len(prefix):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

// Body strips the "v=spf1" prefix and leading whitespace, ready for ParseRecord.
func Body(txt string) string {
	return strings.TrimLeft(txt[len("v=spf1"):], " \t")
}

func parseMechanism(term string) (Mechanism, error) {
	qualifier := QualifyPass
	switch term[0] {
	case '+', '-', '~', '?':
		qualifier = Qualifier(term[0])
		term = term[1:]
	}
	if term == "" {
		return Mechanism{}, fmt.Errorf("authspf: empty term")
	}

	name, rest := splitMechanismName(term)
	mech := Mechanism{Qualifier: qualifier, CIDR: -1}

	switch MechanismType(strings.ToLower(name)) {
	case MechAll:
		mech.Type = MechAll
	case MechIP4:
		value, cidr, err := splitValueCIDR(rest, ':')
		if err != nil {
			return Mechanism{}, err
		}
		mech.Type = MechIP4
		mech.Value = value
		mech.CIDR = cidr
	case MechIP6:
		value, cidr, err := splitValueCIDR(rest, ':')
		if err != nil {
			return Mechanism{}, err
		}
		mech.Type = MechIP6
		mech.Value = value
		mech.CIDR = cidr
	case MechA:
		value, cidr, err := splitValueCIDR(rest, ':')
		if err != nil {
			return Mechanism{}, err
		}
		mech.Type = MechA
		mech.Value = value
		mech.CIDR = cidr
	case MechMX:
		value, cidr, err := splitValueCIDR(rest, ':')
		if err != nil {
			return Mechanism{}, err
		}
		mech.Type = MechMX
		mech.Value = value
		mech.CIDR = cidr
	case MechPTR:
		mech.Type = MechPTR
		mech.Value = strings.TrimPrefix(rest, ":")
	case MechExists:
		if !strings.HasPrefix(rest, ":") {
			return Mechanism{}, fmt.Errorf("authspf: exists requires a domain-spec")
		}
		mech.Type = MechExists
		mech.Value = rest[1:]
	case MechInclude:
		if !strings.HasPrefix(rest, ":") {
			return Mechanism{}, fmt.Errorf("authspf: include requires a domain-spec")
		}
		mech.Type = MechInclude
		mech.Value = rest[1:]
	default:
		return Mechanism{}, fmt.Errorf("authspf: unknown mechanism %q", name)
	}

	return mech, nil
}

// splitMechanismName splits "name:value/cidr" into ("name", ":value/cidr").
func splitMechanismName(term string) (name, rest string) {
	for i, r := range term {
		if r == ':' || r == '=' || r == '/' {
			return term[:i], term[i:]
		}
	}
	return term, ""
}

// splitValueCIDR parses "[:value][/cidr4][//cidr6]" forms used by ip4, ip6,
// a and mx mechanisms. A bare "a" or "mx" with only a CIDR omits the ':value'
// part entirely, e.g. "a/24".
func splitValueCIDR(rest string, sep byte) (value string, cidr int, err error) {
	cidr = -1
	if rest == "" {
		return "", -1, nil
	}
	if rest[0] == sep {
		rest = rest[1:]
	}

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return rest, -1, nil
	}
	value = rest[:slash]
	cidrPart := rest[slash+1:]
	// dual-stack "a/24//64" form: only the ip4 prefix matters for ip4
	// mechanisms and the first component otherwise.
	if idx := strings.Index(cidrPart, "/"); idx >= 0 {
		cidrPart = cidrPart[:idx]
	}
	n, convErr := strconv.Atoi(cidrPart)
	if convErr != nil {
		return "", -1, fmt.Errorf("authspf: bad cidr length %q", cidrPart)
	}
	return value, n, nil
}
