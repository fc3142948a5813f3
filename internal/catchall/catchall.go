// Package catchall detects domains that accept mail for every
// local-part, defeating per-mailbox verification. It reuses the
// session runner against a synthetic address, classifying the reply
// the same way a real RCPT probe would.
package catchall

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"validator-worker/internal/smtpsession"
	"validator-worker/internal/verdict"
)

const probeLocalPartLength = 24

var charset = []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// GenerateProbeLocalPart returns a random local-part that is
// overwhelmingly unlikely to exist at any real domain.
func GenerateProbeLocalPart() string {
	b := make([]byte, probeLocalPartLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			// crypto/rand failures are effectively unrecoverable on any
			// real system; fall back to a fixed, still-nonexistent token
			// rather than panicking mid-probe.
			b[i] = charset[i%len(charset)]
			continue
		}
		b[i] = charset[n.Int64()]
	}
	return string(b)
}

// Probe runs one RCPT against a synthetic nonexistent local-part at
// domain, then, when target is non-empty, a second session with an RCPT
// against target to confirm. A connection failure surfaces
// as an error; the orchestrator maps that to Unknown.
func Probe(ctx context.Context, runner *smtpsession.Runner, host, domain, target, probeID string) (bool, error) {
	probeAddr := fmt.Sprintf("%s@%s", GenerateProbeLocalPart(), domain)

	outcome := runner.Run(ctx, host, 25, probeAddr, probeID)
	if outcome.Status == verdict.StatusUnknownFailure && outcome.ReplyCode < 0 {
		return false, fmt.Errorf("catchall: probe session failed: %s", outcome.Err)
	}

	if outcome.Status != verdict.StatusValid {
		return false, nil
	}

	if target == "" {
		return true, nil
	}

	// Confirm: does the domain also accept the actual target? Both
	// accepting is the strong signal this domain is catch-all rather
	// than the probe having raced a transient accept-all state.
	confirm := runner.Run(ctx, host, 25, target, probeID)
	return confirm.Status == verdict.StatusValid, nil
}
