package transcript

import (
	"bufio"
	"strings"
	"testing"
)

func TestReadReplySingleLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("250 2.1.5 OK\r\n"))
	reply, lines, err := ReadReply(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Code != 250 {
		t.Fatalf("code = %d, want 250", reply.Code)
	}
	if reply.Enhanced != "2.1.5" {
		t.Fatalf("enhanced = %q, want 2.1.5", reply.Enhanced)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
}

func TestReadReplyMultiLine(t *testing.T) {
	raw := "250-mx.example.com Hello\r\n250-PIPELINING\r\n250 STARTTLS\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	reply, lines, err := ReadReply(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Code != 250 {
		t.Fatalf("code = %d, want 250", reply.Code)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %v", len(lines), lines)
	}
}

func TestReadReplyShortLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("25\r\n"))
	reply, _, err := ReadReply(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Code != -1 {
		t.Fatalf("code = %d, want -1 for unparseable short line", reply.Code)
	}
}
