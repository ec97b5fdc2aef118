// Package authspf implements RFC 7208 SPF record parsing and evaluation
// (spec component C2): the v=spf1 grammar, the mechanism/qualifier match
// rules and the 10-lookup budget, on top of the internal/dnsresolve Backend
// interface.
package authspf

// Result is one of the RFC 7208 §2.6 result strings.
type Result string

const (
	Pass      Result = "pass"
	Fail      Result = "fail"
	SoftFail  Result = "softfail"
	Neutral   Result = "neutral"
	None      Result = "none"
	TempError Result = "temperror"
	PermError Result = "permerror"
)

// Qualifier prefixes a mechanism and maps to the Result it produces on match.
type Qualifier byte

const (
	QualifyPass     Qualifier = '+'
	QualifyFail     Qualifier = '-'
	QualifySoftFail Qualifier = '~'
	QualifyNeutral  Qualifier = '?'
)

func (q Qualifier) Result() Result {
	switch q {
	case QualifyFail:
		return Fail
	case QualifySoftFail:
		return SoftFail
	case QualifyNeutral:
		return Neutral
	default:
		return Pass
	}
}

// MechanismType enumerates the mechanism kinds of RFC 7208 §5.
type MechanismType string

const (
	MechAll     MechanismType = "all"
	MechIP4     MechanismType = "ip4"
	MechIP6     MechanismType = "ip6"
	MechA       MechanismType = "a"
	MechMX      MechanismType = "mx"
	MechPTR     MechanismType = "ptr"
	MechExists  MechanismType = "exists"
	MechInclude MechanismType = "include"
)

// Mechanism is one parsed term of an SPF record.
type Mechanism struct {
	Type      MechanismType
	Qualifier Qualifier
	Value     string // domain-spec, or empty for a bare "all"
	CIDR      int    // prefix length for ip4/ip6; -1 when not given explicitly
}

// Record is a fully parsed v=spf1 TXT record. Mechanisms keep source order;
// Redirect and Explanation are modifiers applied after mechanism evaluation.
type Record struct {
	Mechanisms  []Mechanism
	Redirect    string
	Explanation string
}

// EvalResult is the return value of Validate.
type EvalResult struct {
	Result      Result
	Mechanism   *Mechanism
	LookupCount int
}
