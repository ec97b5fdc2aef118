package authdkim

import "strings"

// canonBody canonicalizes a message body, normalized to CRLF line endings
// beforehand by the caller, per RFC 6376 §3.4.
func canonBody(body []byte, method Canon) []byte {
	lines := splitCRLFLines(body)

	if method == CanonRelaxed {
		for i, line := range lines {
			lines[i] = collapseWSP(strings.TrimRight(line, " \t"))
		}
	}

	// Strip trailing empty lines (both methods), then the simple method
	// restores exactly one trailing CRLF.
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	if len(lines) == 0 {
		if method == CanonSimple {
			return []byte("\r\n")
		}
		return []byte{}
	}

	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

// splitCRLFLines splits on CRLF without producing a trailing empty element
// for a body that already ends in CRLF (that terminator belongs to the
// preceding line, not a new empty one), matching how per-line processing
// expects its input.
func splitCRLFLines(body []byte) []string {
	s := string(body)
	s = strings.TrimSuffix(s, "\r\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\r\n")
}

func collapseWSP(s string) string {
	var b strings.Builder
	inWSP := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !inWSP {
				b.WriteByte(' ')
			}
			inWSP = true
			continue
		}
		inWSP = false
		b.WriteRune(r)
	}
	return b.String()
}

// truncate applies the l= byte-count limit to a canonicalized body.
func truncate(body []byte, l *int64) []byte {
	if l == nil {
		return body
	}
	if *l < 0 || int64(len(body)) <= *l {
		return body
	}
	return body[:*l]
}

// headerField is one unfolded header line as found in the message, with its
// lowercased name for case-insensitive matching.
type headerField struct {
	lowerName string
	raw       string // "Name: value" exactly as it appeared, no trailing CRLF
}

// selectHeaders picks, for each name in h (in h's order), the bottom-most
// unconsumed occurrence of that header in fields - DKIM signs headers from
// the bottom of the message upward, and each header instance is used at
// most once even if named twice in h=.
func selectHeaders(fields []headerField, h []string) []headerField {
	used := make([]bool, len(fields))
	var out []headerField
	for _, name := range h {
		for i := len(fields) - 1; i >= 0; i-- {
			if used[i] {
				continue
			}
			if fields[i].lowerName == name {
				used[i] = true
				out = append(out, fields[i])
				break
			}
		}
		// A name listed in h= with no remaining occurrence contributes
		// nothing to the hash, per RFC 6376 §5.4.2.
	}
	return out
}

// canonHeaderField canonicalizes one "Name: value" header line.
func canonHeaderField(raw string, method Canon) string {
	if method == CanonSimple {
		return raw
	}

	colon := strings.IndexByte(raw, ':')
	if colon < 0 {
		return strings.ToLower(raw)
	}
	name := strings.ToLower(strings.TrimSpace(raw[:colon]))
	value := raw[colon+1:]
	value = collapseWSP(value)
	value = strings.TrimSpace(value)
	return name + ":" + value
}

// canonSignatureHeader re-renders the DKIM-Signature header itself with its
// b= value blanked, for inclusion as the last signed header per RFC 6376
// §3.5/§5.4.
func canonSignatureHeader(sig *Signature, method Canon) string {
	blanked := blankBTag(sig.RawTagList)
	raw := sig.RawHeaderName + ":" + blanked
	return canonHeaderField(raw, method)
}

func blankBTag(tagList string) string {
	parts := strings.Split(tagList, ";")
	for i, part := range parts {
		trimmed := strings.TrimSpace(part)
		if strings.HasPrefix(trimmed, "b=") || strings.HasPrefix(trimmed, "b =") {
			eq := strings.IndexByte(part, '=')
			parts[i] = part[:eq+1]
		}
	}
	return strings.Join(parts, ";")
}
