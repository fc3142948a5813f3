// Package orchestrator implements categorize(address) → Verdict, a
// ten-step pipeline stringing together syntax checks, domain lists, DNS,
// catch-all detection, and an SMTP dial, with every collaborator
// injected instead of held as package-level state, so the pipeline can
// be exercised against fakes in tests.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"validator-worker/internal/address"
	"validator-worker/internal/catchall"
	"validator-worker/internal/domainlist"
	"validator-worker/internal/mxresolve"
	"validator-worker/internal/racer"
	"validator-worker/internal/ratelimit"
	"validator-worker/internal/smtpsession"
	"validator-worker/internal/verdict"
)

// retryBackoffs are the delays allowed between the
// (up to two) retries of a TemporaryFailure race outcome.
var retryBackoffs = []time.Duration{1 * time.Second, 2 * time.Second}

// Orchestrator holds every collaborator categorize needs, all injected
// — no package-level globals.
type Orchestrator struct {
	Domains   domainlist.Classifier
	Resolver  *mxresolve.Resolver
	Runner    *smtpsession.Runner
	RateLimit *ratelimit.Manager
	Ports     []int

	parseAddress func(raw string) (address.Address, error)
	sleep        func(time.Duration)
}

// New builds an Orchestrator wired against the real address parser and
// the given collaborators. ports defaults to racer.DefaultPorts when nil.
func New(domains domainlist.Classifier, resolver *mxresolve.Resolver, runner *smtpsession.Runner, limiter *ratelimit.Manager, ports []int) *Orchestrator {
	if ports == nil {
		ports = racer.DefaultPorts
	}
	return &Orchestrator{
		Domains:      domains,
		Resolver:     resolver,
		Runner:       runner,
		RateLimit:    limiter,
		Ports:        ports,
		parseAddress: address.Parse,
		sleep:        time.Sleep,
	}
}

// Categorize runs the ten-step pipeline below. Each step that
// yields a verdict returns immediately; later steps only run once every
// earlier one has passed through.
func (o *Orchestrator) Categorize(ctx context.Context, raw string) verdict.Verdict {
	probeID := uuid.NewString()

	// Step 1: initialize.
	v := verdict.Verdict{
		Address:   raw,
		Timestamp: time.Now(),
		CatchAll:  false,
		ProbeID:   probeID,
	}

	// Steps 2-3: syntax + domain extraction.
	addr, err := o.parseAddress(raw)
	if err != nil {
		v.Category = verdict.CategoryInvalid
		v.Errors = append(v.Errors, err.Error())
		return v
	}
	// Step 4: domain lists, whitelist > disposable > blacklist.
	if cat, ok := o.Domains.Classify(addr.Domain); ok {
		v.Category = string(cat)
		return v
	}

	// Step 5: resolve MX.
	mxs, err := o.Resolver.Resolve(ctx, addr.Domain)
	if err != nil {
		if err == mxresolve.ErrNoRecords {
			v.Category = verdict.CategoryInvalid
			return v
		}
		v.Category = verdict.CategoryUnknown
		v.Errors = append(v.Errors, err.Error())
		return v
	}
	if len(mxs) == 0 {
		v.Category = verdict.CategoryInvalid
		return v
	}
	mxHost := mxs[0].Host
	v.MailHost = mxHost

	if o.RateLimit != nil {
		if err := o.RateLimit.Wait(ctx, addr.Domain); err != nil {
			v.Category = verdict.CategoryUnknown
			v.Errors = append(v.Errors, fmt.Sprintf("ratelimit: %v", err))
			return v
		}
	}

	// Step 6: catch-all probe against the first MX host.
	isCatchAll, err := catchall.Probe(ctx, o.Runner, mxHost, addr.Domain, raw, probeID)
	if err != nil {
		v.Category = verdict.CategoryUnknown
		v.Errors = append(v.Errors, err.Error())
		return v
	}
	if isCatchAll {
		v.Category = verdict.CategoryCatchAll
		v.CatchAll = true
		v.MailHost = mxHost
		return v
	}

	// Step 7: race SMTP sessions, with up to two retries on
	// TemporaryFailure, backing off between attempts.
	outcome := racer.Race(ctx, o.Runner, mxHost, o.Ports, raw, probeID)
	for attempt := 0; outcome.Status == verdict.StatusTemporaryFailure && attempt < len(retryBackoffs); attempt++ {
		o.sleep(retryBackoffs[attempt])
		outcome = racer.Race(ctx, o.Runner, mxHost, o.Ports, raw, probeID)
	}

	// A racer with no usable outcome at all (no candidate port produced a
	// reply code) maps straight to Unknown, regardless of step 10's
	// tag-based table.
	if outcome.DiagnosticTag == "AllPortsFailed" {
		v.Category = verdict.CategoryUnknown
		v.Status = outcome.Status
		v.Errors = append(v.Errors, outcome.Err)
		return v
	}

	// Step 8: blacklist text override — checked against both the reply
	// text and any session error, since a blacklist signal can surface
	// in either depending on how the remote server worded its rejection.
	lowerText := strings.ToLower(outcome.ReplyText + " " + outcome.Err)
	if strings.Contains(lowerText, "550 5.7.1") || strings.Contains(lowerText, "blocked") || strings.Contains(lowerText, "spamhaus") {
		v.Category = verdict.CategoryBlacklisted
		v.Status = outcome.Status
		v.DiagnosticTag = outcome.DiagnosticTag
		v.Errors = append(v.Errors, outcome.Err)
		return v
	}

	// Step 9: populate from the outcome.
	v.SmtpCode = outcome.ReplyCode
	v.Status = outcome.Status
	v.DiagnosticTag = outcome.DiagnosticTag
	v.Transcript = outcome.Transcript
	v.MailHost = outcome.MxHost
	v.Timestamp = outcome.Timestamp
	v.PortOpened = true
	v.ConnectionSuccessful = outcome.Status != verdict.StatusUnknownFailure
	if outcome.Err != "" {
		v.Errors = append(v.Errors, outcome.Err)
	}

	// Step 10: map diagnosticTag -> outward category.
	v.Category = mapTagToCategory(outcome.DiagnosticTag, outcome.Status)

	return v
}

// mapTagToCategory maps a diagnostic tag (plus status, as a fallback)
// to the outward category.
func mapTagToCategory(tag string, status verdict.RecipientStatus) string {
	switch tag {
	case "Accepted":
		return verdict.CategoryValid
	case "Forwarded":
		return verdict.CategoryForwarded
	case "CannotVerify":
		return verdict.CategoryCannotVerify
	case "MailboxBusy":
		return verdict.CategoryMailboxBusy
	case "LocalError":
		return verdict.CategoryLocalError
	case "InsufficientStorage":
		return verdict.CategoryInsufficientStorage
	case "UserNotFound", "UserNotLocal", "MailboxNameInvalid":
		return verdict.CategoryUserNotFound
	case "RelayDenied":
		return verdict.CategoryRelayDenied
	case "AccessDenied":
		return verdict.CategoryAccessDenied
	case "Greylisted":
		return verdict.CategoryGreylisted
	case "SyntaxError":
		return verdict.CategorySyntaxError
	case "TransactionFailed":
		return verdict.CategoryInvalid
	case "BlockedByBlacklist", "BlockedBySpamhaus":
		return verdict.CategoryBlacklisted
	default:
		if status == verdict.StatusTemporaryFailure {
			return verdict.CategoryUnknown
		}
		return verdict.CategoryInvalid
	}
}

