// Package authdkim implements RFC 6376 DKIM signature verification (spec
// component C3): tag parsing, simple/relaxed canonicalization of header and
// body, bottom-up header selection, and RSA/Ed25519 signature verification
// against DNS-published keys.
package authdkim

// Result is one of the RFC 6376 §4 verification result strings relevant to
// a single signature.
type Result string

const (
	Pass      Result = "pass"
	Fail      Result = "fail"
	Neutral   Result = "neutral"
	TempError Result = "temperror"
	PermError Result = "permerror"
)

// Algorithm identifies the signing algorithm named by a=.
type Algorithm string

const (
	AlgRSASHA1   Algorithm = "rsa-sha1"
	AlgRSASHA256 Algorithm = "rsa-sha256"
	AlgEd25519   Algorithm = "ed25519-sha256"
)

// Canon is a header or body canonicalization method (c=).
type Canon string

const (
	CanonSimple  Canon = "simple"
	CanonRelaxed Canon = "relaxed"
)

// Signature is the tag bag of one DKIM-Signature header.
type Signature struct {
	Version       string    // v=, must be "1"
	Algorithm     Algorithm // a=
	Signature     []byte    // b=, decoded
	BodyHash      []byte    // bh=, decoded
	HeaderCanon   Canon     // c= first component
	BodyCanon     Canon     // c= second component
	Domain        string    // d=
	Headers       []string  // h=, order preserved, lowercased
	Selector      string    // s=
	Timestamp     *int64    // t=
	Expiry        *int64    // x=
	BodyLength    *int64    // l=
	Identity      string    // i=
	RawHeaderName string    // the header field name as it appeared ("DKIM-Signature")
	RawTagList    string    // the tag-list exactly as written, for re-canonicalization with b= blanked
}

// PublicKey is a parsed DNS-published DKIM key (the TXT record at
// <selector>._domainkey.<domain>).
type PublicKey struct {
	KeyType        string // k=, default "rsa"
	PublicKey      []byte // p=, decoded SPKI; nil/empty means revoked
	HashAlgorithms []string
	ServiceTypes   []string
	Flags          []string
	Revoked        bool
}

// VerifyResult is returned for each DKIM-Signature header processed.
type VerifyResult struct {
	Result    Result
	Domain    string
	Selector  string
	Signature *Signature
	Error     error
}
