// Package address validates email syntax and extracts the ASCII-folded
// domain used by every later pipeline stage, using the canonical
// pattern the probing engine requires.
package address

import (
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// Address is a syntactically valid email address split into its parts.
type Address struct {
	Raw       string
	LocalPart string
	Domain    string // lowercased, ASCII-folded
}

// canonicalPattern is the case-insensitive syntax check every address
// must pass before any network activity is attempted.
var canonicalPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)

// ErrInvalidSyntax is returned when an address fails the canonical pattern.
type ErrInvalidSyntax struct{ Raw string }

func (e *ErrInvalidSyntax) Error() string {
	return "address: invalid syntax: " + e.Raw
}

// ErrEmptyDomain is returned when the domain portion is missing or empty
// after folding.
type ErrEmptyDomain struct{ Raw string }

func (e *ErrEmptyDomain) Error() string {
	return "address: empty domain: " + e.Raw
}

// Parse validates syntax and extracts the ASCII-folded domain. It never
// performs network I/O.
func Parse(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)

	if !canonicalPattern.MatchString(trimmed) {
		return Address{}, &ErrInvalidSyntax{Raw: raw}
	}

	at := strings.LastIndex(trimmed, "@")
	localPart := trimmed[:at]
	domain := strings.ToLower(trimmed[at+1:])

	folded, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		// Not every legacy domain round-trips through strict IDNA
		// profile (e.g. underscores in test fixtures); fall back to the
		// lowercased form rather than rejecting an otherwise
		// syntactically valid address.
		folded = domain
	}

	if folded == "" {
		return Address{}, &ErrEmptyDomain{Raw: raw}
	}

	return Address{Raw: trimmed, LocalPart: localPart, Domain: folded}, nil
}
