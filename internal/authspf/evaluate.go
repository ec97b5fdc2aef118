package authspf

import (
	"context"
	"net"

	"github.com/inboxsentinel/core/internal/dns"
	"github.com/inboxsentinel/core/internal/dnsresolve"
)

const maxLookups = 10

// maxRecursionDepth guards against include/redirect cycles that the lookup
// budget alone would not catch quickly (each still costs a lookup, but a
// cycle of cheap mechanisms could recurse deeply before the budget trips).
const maxRecursionDepth = 20

// Evaluator evaluates v=spf1 policy against a sender IP, tracking the
// RFC 7208 10-lookup budget across the whole include/redirect chain.
type Evaluator struct {
	Resolver dnsresolve.Backend
}

func NewEvaluator(resolver dnsresolve.Backend) *Evaluator {
	return &Evaluator{Resolver: resolver}
}

// Validate is the C2 contract: validate(senderIP, sender, domain).
// sender (the MAIL FROM address) is accepted for parity with the RFC 7208
// signature; this implementation's mechanisms (ip4/ip6/a/mx/exists/include)
// only depend on domain and senderIP.
func (e *Evaluator) Validate(ctx context.Context, senderIP net.IP, sender, domain string) EvalResult {
	senderIP = normalizeIP(senderIP)
	budget := new(int)
	res, mech := e.evaluateDomain(ctx, senderIP, domain, budget, 0)
	return EvalResult{Result: res, Mechanism: mech, LookupCount: *budget}
}

func normalizeIP(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}

// evaluateDomain fetches and evaluates the SPF record for domain, honoring
// the shared lookup budget. It is called once for the top-level domain and
// recursively for include: and redirect= targets.
func (e *Evaluator) evaluateDomain(ctx context.Context, senderIP net.IP, domain string, budget *int, depth int) (Result, *Mechanism) {
	if depth > maxRecursionDepth {
		return PermError, nil
	}

	txts, err := e.Resolver.ResolveTXT(ctx, domain)
	if err != nil {
		if isTemporary(err) {
			return TempError, nil
		}
		return PermError, nil
	}

	var spfTXT []string
	for _, t := range txts {
		if IsRecord(t) {
			spfTXT = append(spfTXT, t)
		}
	}
	if len(spfTXT) == 0 {
		return None, nil
	}
	if len(spfTXT) > 1 {
		return PermError, nil
	}

	rec, err := ParseRecord(Body(spfTXT[0]))
	if err != nil {
		return PermError, nil
	}

	for i := range rec.Mechanisms {
		mech := &rec.Mechanisms[i]
		matched, result, err := e.evaluateMechanism(ctx, senderIP, domain, mech, budget, depth)
		if err != nil {
			if isTemporary(err) {
				return TempError, nil
			}
			return PermError, nil
		}
		if *budget > maxLookups {
			return PermError, nil
		}
		if matched {
			return result, mech
		}
	}

	if rec.Redirect != "" {
		*budget++
		if *budget > maxLookups {
			return PermError, nil
		}
		res, mech := e.evaluateDomain(ctx, senderIP, rec.Redirect, budget, depth+1)
		if res == None {
			return PermError, nil
		}
		return res, mech
	}

	return Neutral, nil
}

// evaluateMechanism returns (matched, result, error). result is only
// meaningful when matched is true.
func (e *Evaluator) evaluateMechanism(ctx context.Context, senderIP net.IP, currentDomain string, mech *Mechanism, budget *int, depth int) (bool, Result, error) {
	switch mech.Type {
	case MechAll:
		return true, mech.Qualifier.Result(), nil

	case MechIP4:
		ok, err := ipMatch(senderIP, mech.Value, mech.CIDR, 32)
		return ok, mech.Qualifier.Result(), err

	case MechIP6:
		ok, err := ipMatch(senderIP, mech.Value, mech.CIDR, 128)
		return ok, mech.Qualifier.Result(), err

	case MechA:
		*budget++
		target := mech.Value
		if target == "" {
			target = currentDomain
		}
		ok, err := e.matchA(ctx, senderIP, target, mech.CIDR)
		return ok, mech.Qualifier.Result(), err

	case MechMX:
		*budget++
		target := mech.Value
		if target == "" {
			target = currentDomain
		}
		mxs, err := e.Resolver.ResolveMX(ctx, target)
		if err != nil {
			return false, mech.Qualifier.Result(), err
		}
		for _, mx := range mxs {
			*budget++
			if *budget > maxLookups {
				return false, mech.Qualifier.Result(), nil
			}
			ok, err := e.matchA(ctx, senderIP, mx.Exchange, mech.CIDR)
			if err != nil {
				return false, mech.Qualifier.Result(), err
			}
			if ok {
				return true, mech.Qualifier.Result(), nil
			}
		}
		return false, mech.Qualifier.Result(), nil

	case MechPTR:
		// Deprecated by RFC 7208 §5.5; never matches.
		return false, mech.Qualifier.Result(), nil

	case MechExists:
		*budget++
		domain, ok := dns.ForLookup(mech.Value)
		if ok != nil {
			domain = mech.Value
		}
		a, err := e.Resolver.ResolveA(ctx, domain)
		if err != nil {
			return false, mech.Qualifier.Result(), err
		}
		return len(a) > 0, mech.Qualifier.Result(), nil

	case MechInclude:
		*budget++
		if *budget > maxLookups {
			return false, mech.Qualifier.Result(), nil
		}
		res, _ := e.evaluateDomain(ctx, senderIP, mech.Value, budget, depth+1)
		switch res {
		case Pass:
			return true, Pass, nil
		case TempError:
			return false, mech.Qualifier.Result(), &dnsresolve.TempError{Domain: mech.Value, Op: "include", Err: errIncludeTemp}
		case PermError:
			return false, mech.Qualifier.Result(), errIncludePermanent
		default:
			// fail/softfail/neutral/none from an include do not match; the
			// outer evaluation continues to the next mechanism.
			return false, mech.Qualifier.Result(), nil
		}

	default:
		return false, mech.Qualifier.Result(), nil
	}
}

func (e *Evaluator) matchA(ctx context.Context, senderIP net.IP, domain string, cidr int) (bool, error) {
	is6 := senderIP.To4() == nil
	if is6 {
		addrs, err := e.Resolver.ResolveAAAA(ctx, domain)
		if err != nil {
			return false, err
		}
		for _, a := range addrs {
			if ok, _ := cidrMatch(senderIP, a, cidr, 128); ok {
				return true, nil
			}
		}
		return false, nil
	}

	addrs, err := e.Resolver.ResolveA(ctx, domain)
	if err != nil {
		return false, err
	}
	for _, a := range addrs {
		if ok, _ := cidrMatch(senderIP, a, cidr, 32); ok {
			return true, nil
		}
	}
	return false, nil
}

func ipMatch(senderIP net.IP, value string, cidr, defaultBits int) (bool, error) {
	target := net.ParseIP(value)
	if target == nil {
		return false, nil
	}
	return cidrMatch(senderIP, target, cidr, defaultBits)
}

func cidrMatch(senderIP, target net.IP, cidr, defaultBits int) (bool, error) {
	target = normalizeIP(target)
	bits := defaultBits
	if cidr >= 0 {
		bits = cidr
	}

	var mask net.IPMask
	if target.To4() != nil {
		if bits > 32 {
			bits = 32
		}
		mask = net.CIDRMask(bits, 32)
	} else {
		if bits > 128 {
			bits = 128
		}
		mask = net.CIDRMask(bits, 128)
	}

	sender := senderIP
	if sender == nil {
		return false, nil
	}
	// Align address families: compare 4-byte to 4-byte, 16-byte to 16-byte.
	if (target.To4() != nil) != (sender.To4() != nil) {
		return false, nil
	}

	return target.Mask(mask).Equal(sender.Mask(mask)), nil
}

func isTemporary(err error) bool {
	type temporary interface{ Temporary() bool }
	t, ok := err.(temporary)
	return ok && t.Temporary()
}

var errIncludeTemp = tempSentinel("include target returned temperror")
var errIncludePermanent = permSentinel("include target returned permerror")

type tempSentinel string

func (e tempSentinel) Error() string   { return string(e) }
func (e tempSentinel) Temporary() bool { return true }

type permSentinel string

func (e permSentinel) Error() string   { return string(e) }
func (e permSentinel) Temporary() bool { return false }
