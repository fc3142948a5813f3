package smtpsession

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"validator-worker/internal/verdict"
)

// fakeServer speaks just enough SMTP to drive the session runner through
// a single RCPT TO and returns the given rcptReply. It never advertises
// STARTTLS.
func fakeServer(t *testing.T, rcptReply string) (addr string, done chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done = make(chan struct{})

	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer ln.Close()

		r := bufio.NewReader(conn)
		conn.Write([]byte("220 fake.mx greeting\r\n"))
		r.ReadString('\n') // EHLO
		conn.Write([]byte("250-fake.mx Hello\r\n250 PIPELINING\r\n"))
		r.ReadString('\n') // MAIL FROM
		conn.Write([]byte("250 2.1.0 OK\r\n"))
		r.ReadString('\n') // RCPT TO
		conn.Write([]byte(rcptReply + "\r\n"))
		r.ReadString('\n') // QUIT
		conn.Write([]byte("221 Bye\r\n"))
	}()

	return ln.Addr().String(), done
}

func TestRunAcceptsValidRecipient(t *testing.T) {
	addr, done := fakeServer(t, "250 2.1.5 OK")
	host, portStr, _ := net.SplitHostPort(addr)
	port := 0
	for _, c := range portStr {
		port = port*10 + int(c-'0')
	}

	r := NewRunner(2*time.Second, "validator.test", "probe@validator.test")
	outcome := r.Run(context.Background(), host, port, "someone@example.com", "test-probe")
	<-done

	if outcome.Status != verdict.StatusValid {
		t.Fatalf("status = %v, want Valid (err=%q)", outcome.Status, outcome.Err)
	}
	if outcome.ReplyCode != 250 {
		t.Fatalf("replyCode = %d", outcome.ReplyCode)
	}
	if len(outcome.Transcript) == 0 {
		t.Fatalf("expected a non-empty transcript")
	}
}

func TestRunRejectsUnknownUser(t *testing.T) {
	addr, done := fakeServer(t, "550 5.1.1 User unknown")
	host, portStr, _ := net.SplitHostPort(addr)
	port := 0
	for _, c := range portStr {
		port = port*10 + int(c-'0')
	}

	r := NewRunner(2*time.Second, "validator.test", "probe@validator.test")
	outcome := r.Run(context.Background(), host, port, "nobody@example.com", "test-probe")
	<-done

	if outcome.Status != verdict.StatusUserNotFound {
		t.Fatalf("status = %v, want UserNotFound", outcome.Status)
	}
	if outcome.ReplyCode != 550 {
		t.Fatalf("replyCode = %d", outcome.ReplyCode)
	}
}

func TestRunConnectFailureIsUnknownFailure(t *testing.T) {
	r := NewRunner(200*time.Millisecond, "validator.test", "probe@validator.test")
	outcome := r.Run(context.Background(), "127.0.0.1", 1, "someone@example.com", "test-probe")

	if outcome.Status != verdict.StatusUnknownFailure {
		t.Fatalf("status = %v, want UnknownFailure", outcome.Status)
	}
	if outcome.Err == "" {
		t.Fatalf("expected an error message")
	}
}
