package domainlist

import "testing"

func TestClassifyPrecedence(t *testing.T) {
	c := Classifier{
		Whitelist:  NewSet([]string{"good.com"}),
		Disposable: NewSet([]string{"good.com", "temp-mail.com"}),
		Blacklist:  NewSet([]string{"good.com", "spammer.com"}),
	}

	if cat, ok := c.Classify("good.com"); !ok || cat != CategoryWhitelisted {
		t.Fatalf("whitelist should win on conflict, got %q ok=%v", cat, ok)
	}
	if cat, ok := c.Classify("temp-mail.com"); !ok || cat != CategoryDisposable {
		t.Fatalf("got %q ok=%v, want Disposable", cat, ok)
	}
	if cat, ok := c.Classify("spammer.com"); !ok || cat != CategoryBlacklisted {
		t.Fatalf("got %q ok=%v, want Blacklisted", cat, ok)
	}
	if _, ok := c.Classify("unlisted.com"); ok {
		t.Fatalf("expected no match for unlisted domain")
	}
}

func TestSetCaseInsensitive(t *testing.T) {
	s := NewSet([]string{"Example.COM"})
	if !s.Has("example.com") {
		t.Fatalf("expected case-insensitive match")
	}
}
