package mxresolve

import (
	"context"
	"testing"

	"validator-worker/internal/verdict"
)

func TestSortByPreference(t *testing.T) {
	c := []verdict.MxCandidate{
		{Host: "b", Preference: 20},
		{Host: "a", Preference: 10},
		{Host: "bad", Preference: -1},
	}
	sortByPreference(c)
	if c[0].Host != "a" || c[1].Host != "b" || c[2].Host != "bad" {
		t.Fatalf("unexpected order: %+v", c)
	}
}

func TestResolveNoRecords(t *testing.T) {
	r := New(nil)
	_, err := r.Resolve(context.Background(), "this-domain-should-not-exist-at-all.invalid")
	if err == nil {
		t.Fatalf("expected an error for a nonexistent TLD")
	}
}
