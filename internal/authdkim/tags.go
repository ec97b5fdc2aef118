package authdkim

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// parseTags splits a DKIM tag-list ("v=1; a=rsa-sha256; ...") into an
// ordered map, tolerating the FWS the RFC allows around ';' and '='.
func parseTags(tagList string) map[string]string {
	tags := make(map[string]string)
	for _, part := range strings.Split(tagList, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		name := strings.TrimSpace(part[:eq])
		value := strings.TrimSpace(part[eq+1:])
		tags[name] = value
	}
	return tags
}

// stripWhitespace removes all FWS from a b= or bh= tag value, as the RFC
// requires before base64 decoding.
func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ParseSignature parses the tag-list of a DKIM-Signature header field value
// (everything after the colon). headerName is preserved for re-canonicalization.
func ParseSignature(headerName, tagList string) (*Signature, error) {
	tags := parseTags(tagList)

	required := []string{"v", "a", "d", "s", "h", "bh", "b"}
	for _, tag := range required {
		if _, ok := tags[tag]; !ok {
			return nil, fmt.Errorf("authdkim: missing required tag %q", tag)
		}
	}

	sig := &Signature{
		Version:       tags["v"],
		Domain:        tags["d"],
		Selector:      tags["s"],
		Identity:      tags["i"],
		RawHeaderName: headerName,
		RawTagList:    tagList,
	}

	switch strings.ToLower(tags["a"]) {
	case string(AlgRSASHA1):
		sig.Algorithm = AlgRSASHA1
	case string(AlgRSASHA256):
		sig.Algorithm = AlgRSASHA256
	case string(AlgEd25519):
		sig.Algorithm = AlgEd25519
	default:
		return nil, fmt.Errorf("authdkim: unsupported algorithm %q", tags["a"])
	}

	b, err := base64.StdEncoding.DecodeString(stripWhitespace(tags["b"]))
	if err != nil {
		return nil, fmt.Errorf("authdkim: bad b= encoding: %w", err)
	}
	sig.Signature = b

	bh, err := base64.StdEncoding.DecodeString(stripWhitespace(tags["bh"]))
	if err != nil {
		return nil, fmt.Errorf("authdkim: bad bh= encoding: %w", err)
	}
	sig.BodyHash = bh

	headerCanon, bodyCanon := CanonSimple, CanonSimple
	if c, ok := tags["c"]; ok {
		parts := strings.SplitN(c, "/", 2)
		headerCanon = Canon(strings.ToLower(parts[0]))
		if len(parts) == 2 {
			bodyCanon = Canon(strings.ToLower(parts[1]))
		}
	}
	sig.HeaderCanon = headerCanon
	sig.BodyCanon = bodyCanon

	for _, h := range strings.Split(tags["h"], ":") {
		sig.Headers = append(sig.Headers, strings.ToLower(strings.TrimSpace(h)))
	}

	if t, ok := tags["t"]; ok {
		if v, err := strconv.ParseInt(t, 10, 64); err == nil {
			sig.Timestamp = &v
		}
	}
	if x, ok := tags["x"]; ok {
		if v, err := strconv.ParseInt(x, 10, 64); err == nil {
			sig.Expiry = &v
		}
	}
	if l, ok := tags["l"]; ok {
		if v, err := strconv.ParseInt(l, 10, 64); err == nil {
			sig.BodyLength = &v
		}
	}

	return sig, nil
}

// ParsePublicKey parses the TXT record published at
// <selector>._domainkey.<domain>.
func ParsePublicKey(tagList string) (*PublicKey, error) {
	tags := parseTags(tagList)

	key := &PublicKey{KeyType: "rsa"}
	if k, ok := tags["k"]; ok {
		key.KeyType = strings.ToLower(k)
	}
	if h, ok := tags["h"]; ok {
		key.HashAlgorithms = splitColonList(h)
	}
	if s, ok := tags["s"]; ok {
		key.ServiceTypes = splitColonList(s)
	}
	if t, ok := tags["t"]; ok {
		key.Flags = splitColonList(t)
	}

	p, ok := tags["p"]
	if !ok {
		return nil, fmt.Errorf("authdkim: key record missing p= tag")
	}
	p = stripWhitespace(p)
	if p == "" {
		key.Revoked = true
		return key, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(p)
	if err != nil {
		return nil, fmt.Errorf("authdkim: bad p= encoding: %w", err)
	}
	key.PublicKey = decoded
	return key, nil
}

func splitColonList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ":") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
