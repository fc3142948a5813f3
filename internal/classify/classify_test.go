package classify

import (
	"testing"

	"validator-worker/internal/verdict"
)

func TestClassifyValid(t *testing.T) {
	status, tag := Classify(250, "2.1.5", "2.1.5 OK")
	if status != verdict.StatusValid || tag != "Accepted" {
		t.Fatalf("got %v/%q", status, tag)
	}
}

func TestClassifyUserNotFoundByEnhanced(t *testing.T) {
	status, tag := Classify(550, "5.1.1", "User unknown")
	if status != verdict.StatusUserNotFound || tag != "UserNotFound" {
		t.Fatalf("got %v/%q", status, tag)
	}
}

func TestClassifyBlacklistedBySpamhausText(t *testing.T) {
	status, tag := Classify(550, "5.7.1", "Blocked by Spamhaus")
	if status != verdict.StatusBlacklisted {
		t.Fatalf("status = %v, want Blacklisted", status)
	}
	if tag != "BlockedByBlacklist" {
		t.Fatalf("tag = %q", tag)
	}
}

func TestClassifyUserNotFoundByText(t *testing.T) {
	status, _ := Classify(550, "", "550 No such user here")
	if status != verdict.StatusUserNotFound {
		t.Fatalf("status = %v, want UserNotFound", status)
	}
}

func TestClassifyTemporaryFailure(t *testing.T) {
	status, tag := Classify(451, "", "Greylisted, try again later")
	if status != verdict.StatusTemporaryFailure {
		t.Fatalf("status = %v, want TemporaryFailure", status)
	}
	if tag != "Greylisted" {
		t.Fatalf("tag = %q, want Greylisted", tag)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	s1, t1 := Classify(550, "", "550 5.1.1 no such user")
	s2, t2 := Classify(550, "", "550 5.1.1 no such user")
	if s1 != s2 || t1 != t2 {
		t.Fatalf("classify is not deterministic: (%v,%v) vs (%v,%v)", s1, t1, s2, t2)
	}
}

func TestClassifyRelayDenied(t *testing.T) {
	status, tag := Classify(554, "", "554 relay access denied")
	if status != verdict.StatusUnknownFailure {
		t.Fatalf("status = %v", status)
	}
	if tag != "RelayDenied" {
		t.Fatalf("tag = %q, want RelayDenied", tag)
	}
}
