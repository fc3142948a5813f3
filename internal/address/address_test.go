package address

import "testing"

func TestParseValid(t *testing.T) {
	a, err := Parse("User.Name+tag@Example.COM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Domain != "example.com" {
		t.Fatalf("domain = %q, want example.com", a.Domain)
	}
	if a.LocalPart != "User.Name+tag" {
		t.Fatalf("localPart = %q", a.LocalPart)
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{"", " ", "no-at-sign", "two@@signs.com", "missing-tld@host", "@nolocal.com"}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", c)
		}
	}
}

func TestParseIdempotentDomainFolding(t *testing.T) {
	a1, err := Parse("foo@xn--mller-kva.de")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a2, err := Parse("foo@" + a1.Domain)
	if err != nil {
		t.Fatalf("unexpected error on refold: %v", err)
	}
	if a1.Domain != a2.Domain {
		t.Fatalf("domain folding not idempotent: %q != %q", a1.Domain, a2.Domain)
	}
}
