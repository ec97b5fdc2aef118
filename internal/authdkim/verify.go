package authdkim

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"strings"
	"time"

	"github.com/inboxsentinel/core/internal/exterrors"
)

// Verifier verifies DKIM-Signature headers against DNS-published keys,
// using a KeyCache shared across messages.
type Verifier struct {
	Keys *KeyCache
}

func NewVerifier(keys *KeyCache) *Verifier {
	return &Verifier{Keys: keys}
}

// ParseHeaderFields splits a message's unfolded raw header block (CRLF
// between fields, no continuation lines) into individual fields in the
// order they appear in the message.
func ParseHeaderFields(rawHeaders string) []headerField {
	rawHeaders = strings.TrimSuffix(rawHeaders, "\r\n")
	if rawHeaders == "" {
		return nil
	}
	lines := strings.Split(rawHeaders, "\r\n")
	fields := make([]headerField, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		fields = append(fields, headerField{
			lowerName: strings.ToLower(strings.TrimSpace(line[:colon])),
			raw:       line,
		})
	}
	return fields
}

// VerifyMessage finds every DKIM-Signature header in fields and verifies
// each independently, per the "multiple signatures" rule in RFC 6376 §5.
func (v *Verifier) VerifyMessage(ctx context.Context, fields []headerField, rawBody []byte, now time.Time) []VerifyResult {
	var results []VerifyResult
	for _, f := range fields {
		if f.lowerName != "dkim-signature" {
			continue
		}
		colon := strings.IndexByte(f.raw, ':')
		results = append(results, v.Verify(ctx, fields, rawBody, f.raw[colon+1:], f.raw[:colon], now))
	}
	return results
}

// Verify implements the C3 contract for a single signature header value
// (the part after the header name's colon).
func (v *Verifier) Verify(ctx context.Context, fields []headerField, rawBody []byte, signatureHeaderValue, headerName string, now time.Time) VerifyResult {
	if headerName == "" {
		headerName = "DKIM-Signature"
	}

	sig, err := ParseSignature(headerName, signatureHeaderValue)
	if err != nil {
		return VerifyResult{Result: PermError, Error: err}
	}

	res := VerifyResult{Domain: sig.Domain, Selector: sig.Selector, Signature: sig}

	if sig.Expiry != nil && *sig.Expiry < now.Unix() {
		res.Result = Fail
		return res
	}

	key, err := v.Keys.Lookup(ctx, sig.Selector, sig.Domain)
	if err != nil {
		res.Result = TempError
		res.Error = err
		return res
	}
	if key == nil || key.Revoked || len(key.PublicKey) == 0 {
		res.Result = Fail
		return res
	}

	normalizedBody := normalizeCRLF(rawBody)
	canonicalBody := canonBody(normalizedBody, sig.BodyCanon)
	canonicalBody = truncate(canonicalBody, sig.BodyLength)

	bodyHash := hashBody(sig.Algorithm, canonicalBody)
	if !bytesEqual(bodyHash, sig.BodyHash) {
		res.Result = Fail
		return res
	}

	selected := selectHeaders(fields, sig.Headers)
	var signedData strings.Builder
	for _, f := range selected {
		signedData.WriteString(canonHeaderField(f.raw, sig.HeaderCanon))
		signedData.WriteString("\r\n")
	}
	signedData.WriteString(canonSignatureHeader(sig, sig.HeaderCanon))

	if err := verifySignature(key, sig, []byte(signedData.String())); err != nil {
		if isCryptoTemporary(err) {
			res.Result = TempError
		} else {
			res.Result = Fail
		}
		res.Error = err
		return res
	}

	res.Result = Pass
	return res
}

func normalizeCRLF(body []byte) []byte {
	s := strings.ReplaceAll(string(body), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	return []byte(s)
}

func hashBody(alg Algorithm, body []byte) []byte {
	if alg == AlgRSASHA1 {
		h := sha1.Sum(body)
		return h[:]
	}
	h := sha256.Sum256(body)
	return h[:]
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func verifySignature(key *PublicKey, sig *Signature, signedData []byte) error {
	switch sig.Algorithm {
	case AlgEd25519:
		if len(key.PublicKey) != ed25519.PublicKeySize {
			return exterrors.WithKind(errBadKey, exterrors.KindTransientDependency)
		}
		h := sha256.Sum256(signedData)
		if !ed25519.Verify(ed25519.PublicKey(key.PublicKey), h[:], sig.Signature) {
			return errSignatureMismatch
		}
		return nil

	case AlgRSASHA1, AlgRSASHA256:
		pub, err := x509.ParsePKIXPublicKey(key.PublicKey)
		if err != nil {
			return exterrors.WithKind(errBadKey, exterrors.KindTransientDependency)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return exterrors.WithKind(errBadKey, exterrors.KindTransientDependency)
		}

		var hashed []byte
		var hashFunc crypto.Hash
		if sig.Algorithm == AlgRSASHA1 {
			h := sha1.Sum(signedData)
			hashed = h[:]
			hashFunc = crypto.SHA1
		} else {
			h := sha256.Sum256(signedData)
			hashed = h[:]
			hashFunc = crypto.SHA256
		}

		if err := rsa.VerifyPKCS1v15(rsaPub, hashFunc, hashed, sig.Signature); err != nil {
			return errSignatureMismatch
		}
		return nil

	default:
		return exterrors.WithKind(errUnsupportedAlg, exterrors.KindTransientDependency)
	}
}

func isCryptoTemporary(err error) bool {
	return exterrors.GetKind(err) == exterrors.KindTransientDependency
}

var (
	errBadKey            = simpleErr("authdkim: malformed public key")
	errSignatureMismatch = simpleErr("authdkim: signature does not verify")
	errUnsupportedAlg    = simpleErr("authdkim: unsupported signature algorithm")
)

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
