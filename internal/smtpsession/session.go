// Package smtpsession runs a single SMTP RCPT dialog against one
// host:port and returns a SessionOutcome. It is a hand-rolled
// read/write loop over net.Conn (no net/smtp.Client), handling
// multi-line replies, opportunistic STARTTLS, implicit TLS, and an
// optional SOCKS5 proxy dial.
package smtpsession

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"validator-worker/internal/classify"
	"validator-worker/internal/transcript"
	"validator-worker/internal/verdict"
)

// Dialer abstracts the network dial so the racer can share one dialer
// (direct, or SOCKS5-wrapped) across every port it fans out to.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// directDialer is the default Dialer: a plain net.Dialer.
type directDialer struct {
	d net.Dialer
}

func (d directDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return d.d.DialContext(ctx, network, addr)
}

// NewDirectDialer returns the default direct-connect Dialer.
func NewDirectDialer() Dialer { return directDialer{} }

// socks5Dialer adapts golang.org/x/net/proxy's non-context Dialer to our
// context-aware Dialer interface. A configured proxy that fails to dial
// is a hard error — it is never silently retried with a direct
// connection — a misconfigured or unreachable proxy should fail loudly.
type socks5Dialer struct {
	inner proxy.Dialer
}

// NewSOCKS5Dialer builds a Dialer that always routes through the given
// SOCKS5 proxy address, with optional username/password auth.
func NewSOCKS5Dialer(addr, username, password string) (Dialer, error) {
	var auth *proxy.Auth
	if username != "" {
		auth = &proxy.Auth{User: username, Password: password}
	}
	d, err := proxy.SOCKS5("tcp", addr, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("smtpsession: creating SOCKS5 dialer: %w", err)
	}
	return socks5Dialer{inner: d}, nil
}

func (s socks5Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := s.inner.Dial(network, addr)
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Runner executes a single SMTP RCPT dialog.
type Runner struct {
	Dialer   Dialer
	Timeout  time.Duration
	HeloName string
	MailFrom string
}

// NewRunner builds a Runner with a direct dialer and the given timeout,
// HELO identity, and MAIL FROM address.
func NewRunner(timeout time.Duration, heloName, mailFrom string) *Runner {
	return &Runner{
		Dialer:   NewDirectDialer(),
		Timeout:  timeout,
		HeloName: heloName,
		MailFrom: mailFrom,
	}
}

// implicitTLSPorts are the ports on which a TLS handshake must happen
// before any SMTP command is sent. Port 2465 is included alongside the
// standard 465 — cheap to support, and some deployments use it for
// submission-over-TLS.
var implicitTLSPorts = map[int]bool{465: true, 2465: true}

// Run walks the session protocol: connect, greeting, EHLO, optional
// STARTTLS, MAIL FROM, RCPT TO, classify. It never returns a Go error —
// every failure mode becomes an UnknownFailure or TemporaryFailure
// SessionOutcome with Err set.
func (r *Runner) Run(ctx context.Context, host string, port int, target, probeID string) verdict.SessionOutcome {
	start := time.Now()
	outcome := verdict.SessionOutcome{
		MxHost:    host,
		Port:      port,
		Timestamp: start,
		ProbeID:   probeID,
		ReplyCode: -1, // no reply received yet; only an actual RCPT reply overwrites this
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := r.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		outcome.Status = verdict.StatusUnknownFailure
		outcome.DiagnosticTag = "DNSResolutionFailed"
		outcome.Err = err.Error()
		return outcome
	}
	defer conn.Close()

	// A cancelled ctx (the racer picked a winner, or the caller gave up)
	// must interrupt an in-flight read/write promptly, not just at the
	// next per-command deadline — closing the current socket does that.
	holder := &connHolder{conn: conn}
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			holder.close()
		case <-watchDone:
		}
	}()

	var tr verdict.Transcript
	implicit := implicitTLSPorts[port]

	if implicit {
		tlsConn, err := upgradeTLS(conn, host, r.Timeout)
		if err != nil {
			tr = append(tr, note("implicit TLS handshake failed: "+err.Error()))
			outcome.Status = verdict.StatusTemporaryFailure
			outcome.DiagnosticTag = "TLSHandshakeFailed"
			outcome.Err = err.Error()
			outcome.Transcript = tr
			return outcome
		}
		conn = tlsConn
		holder.set(tlsConn)
		outcome.TLS = true
		tr = append(tr, note("implicit TLS channel established"))
	}

	reader := bufio.NewReader(conn)

	// Greeting.
	if _, _, err := readAndRecord(conn, reader, r.Timeout, &tr); err != nil {
		return timeoutOrIOFailure(outcome, tr, err)
	}

	// EHLO.
	ehloReply, err := sendAndRead(conn, reader, r.Timeout, &tr, "EHLO "+r.HeloName)
	if err != nil {
		return timeoutOrIOFailure(outcome, tr, err)
	}

	if !implicit && strings.Contains(strings.ToUpper(ehloReply.Text), "STARTTLS") {
		if err := sendLine(conn, &tr, "STARTTLS"); err != nil {
			return timeoutOrIOFailure(outcome, tr, err)
		}
		if _, _, err := readAndRecord(conn, reader, r.Timeout, &tr); err != nil {
			return timeoutOrIOFailure(outcome, tr, err)
		}

		tlsConn, err := upgradeTLS(conn, host, r.Timeout)
		if err != nil {
			tr = append(tr, note("STARTTLS handshake failed: "+err.Error()))
			outcome.Status = verdict.StatusTemporaryFailure
			outcome.DiagnosticTag = "TLSHandshakeFailed"
			outcome.Err = err.Error()
			outcome.Transcript = tr
			return outcome
		}
		conn = tlsConn
		holder.set(tlsConn)
		reader = bufio.NewReader(conn)
		outcome.TLS = true
		tr = append(tr, note("STARTTLS handshake succeeded"))

		if _, err := sendAndRead(conn, reader, r.Timeout, &tr, "EHLO "+r.HeloName); err != nil {
			return timeoutOrIOFailure(outcome, tr, err)
		}
	}

	// MAIL FROM.
	if _, err := sendAndRead(conn, reader, r.Timeout, &tr, "MAIL FROM:<"+r.MailFrom+">"); err != nil {
		return timeoutOrIOFailure(outcome, tr, err)
	}

	// RCPT TO — the signal we actually care about.
	rcptReply, err := sendAndRead(conn, reader, r.Timeout, &tr, "RCPT TO:<"+target+">")
	if err != nil {
		return timeoutOrIOFailure(outcome, tr, err)
	}

	outcome.ReplyCode = rcptReply.Code
	outcome.ReplyText = rcptReply.Text
	outcome.Transcript = tr

	status, tag := classify.Classify(rcptReply.Code, rcptReply.Enhanced, rcptReply.Text)
	outcome.Status = status
	outcome.DiagnosticTag = tag

	sendQuit(conn, reader, r.Timeout, &tr)
	outcome.Transcript = tr

	return outcome
}

// connHolder lets the cancellation watcher goroutine close whichever
// connection is current (raw TCP, or the TLS-wrapped replacement after a
// STARTTLS/implicit-TLS upgrade) without racing the handshake itself.
type connHolder struct {
	mu   sync.Mutex
	conn net.Conn
}

func (h *connHolder) set(c net.Conn) {
	h.mu.Lock()
	h.conn = c
	h.mu.Unlock()
}

func (h *connHolder) close() {
	h.mu.Lock()
	c := h.conn
	h.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

func note(msg string) verdict.TranscriptLine {
	return verdict.TranscriptLine{Direction: verdict.DirReceived, Payload: "* " + msg, At: time.Now()}
}

func sendLine(conn net.Conn, tr *verdict.Transcript, cmd string) error {
	*tr = append(*tr, verdict.TranscriptLine{Direction: verdict.DirSent, Payload: cmd, At: time.Now()})
	_, err := conn.Write([]byte(cmd + "\r\n"))
	return err
}

func readAndRecord(conn net.Conn, reader *bufio.Reader, timeout time.Duration, tr *verdict.Transcript) (verdict.SmtpReply, []string, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	reply, lines, err := transcript.ReadReply(reader)
	if err != nil {
		return reply, lines, err
	}
	for _, l := range lines {
		*tr = append(*tr, verdict.TranscriptLine{Direction: verdict.DirReceived, Payload: l, At: time.Now()})
	}
	return reply, lines, nil
}

func sendAndRead(conn net.Conn, reader *bufio.Reader, timeout time.Duration, tr *verdict.Transcript, cmd string) (verdict.SmtpReply, error) {
	conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := sendLine(conn, tr, cmd); err != nil {
		return verdict.SmtpReply{Code: -1}, err
	}
	reply, _, err := readAndRecord(conn, reader, timeout, tr)
	return reply, err
}

// sendQuit issues QUIT best-effort and ignores the reply/error — the
// socket is closed locally regardless of the answer.
func sendQuit(conn net.Conn, reader *bufio.Reader, timeout time.Duration, tr *verdict.Transcript) {
	conn.SetDeadline(time.Now().Add(timeout))
	if err := sendLine(conn, tr, "QUIT"); err != nil {
		return
	}
	readAndRecord(conn, reader, timeout, tr)
}

func upgradeTLS(conn net.Conn, host string, timeout time.Duration) (net.Conn, error) {
	conn.SetDeadline(time.Now().Add(timeout))
	tlsConn := tls.Client(conn, &tls.Config{ServerName: host})
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

func timeoutOrIOFailure(outcome verdict.SessionOutcome, tr verdict.Transcript, err error) verdict.SessionOutcome {
	outcome.Transcript = tr
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		outcome.Status = verdict.StatusTemporaryFailure
		outcome.DiagnosticTag = "Timeout"
	} else {
		outcome.Status = verdict.StatusUnknownFailure
		outcome.DiagnosticTag = "Unclassified"
	}
	outcome.Err = err.Error()
	return outcome
}
