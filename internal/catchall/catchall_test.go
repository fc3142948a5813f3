package catchall

import "testing"

func TestGenerateProbeLocalPartLengthAndCharset(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		lp := GenerateProbeLocalPart()
		if len(lp) != probeLocalPartLength {
			t.Fatalf("length = %d, want %d", len(lp), probeLocalPartLength)
		}
		for _, c := range lp {
			if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
				t.Fatalf("unexpected character %q in probe local part", c)
			}
		}
		seen[lp] = true
	}
	if len(seen) < 15 {
		t.Fatalf("expected mostly-unique probe local parts, got %d unique of 20", len(seen))
	}
}
