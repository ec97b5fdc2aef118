/*
Maddy Mail Server - Composable all-in-one email server.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package dns holds domain-name normalization helpers used by the SPF
// evaluator and the DNS resolver layer. The actual lookup + caching layer
// lives in internal/dnsresolve.
package dns

import (
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/norm"
)

// FQDN appends a trailing dot, the form miekg/dns and DNS wire queries want.
func FQDN(domain string) string {
	return dns.Fqdn(domain)
}

// ForLookup converts domain into a canonical form suitable for map lookups
// and cache keys: A-labels decoded to Unicode, NFC-normalized, case-folded,
// trailing dot stripped.
//
// Use this instead of strings.ToLower when comparing or indexing domains.
func ForLookup(domain string) (string, error) {
	uDomain, err := idna.ToUnicode(domain)
	if err != nil {
		return strings.ToLower(domain), err
	}

	uDomain = norm.NFC.String(uDomain)
	uDomain = strings.ToLower(uDomain)
	uDomain = strings.TrimSuffix(uDomain, ".")
	return uDomain, nil
}

// Equal reports whether domain1 and domain2 are equivalent under IDNA2008
// case-folding. Malformed A-labels fall back to byte comparison with
// case-folding applied.
func Equal(domain1, domain2 string) bool {
	if domain1 == domain2 {
		return true
	}
	u1, _ := ForLookup(domain1)
	u2, _ := ForLookup(domain2)
	return u1 == u2
}

// ToASCII converts domain to its A-label (punycode) representation, the form
// required before it is placed in a MAIL FROM or a DNS question.
func ToASCII(domain string) (string, error) {
	return idna.ToASCII(domain)
}
