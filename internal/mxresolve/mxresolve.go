// Package mxresolve resolves a domain's mail exchangers, falling back to
// A records when no MX is published, before any SMTP dial is attempted.
package mxresolve

import (
	"context"
	"errors"
	"math"
	"net"
	"sort"
	"strings"

	"validator-worker/internal/verdict"
)

// ErrNoRecords is returned when a domain has neither MX nor A records.
var ErrNoRecords = errors.New("mxresolve: no MX or A records found")

// Resolver wraps a *net.Resolver so tests can substitute a fake one
// instead of hitting real DNS, rather than calling package-level net
// functions directly.
type Resolver struct {
	net *net.Resolver
}

// New returns a Resolver using the given *net.Resolver, or the default
// resolver if nil.
func New(r *net.Resolver) *Resolver {
	if r == nil {
		r = net.DefaultResolver
	}
	return &Resolver{net: r}
}

// Resolve looks up MX records for domain, falling back to A records,
// and returns candidates sorted ascending by preference. Parse failures
// (host/preference lines the DNS library couldn't produce cleanly) sort
// last via math.MaxInt32.
func (r *Resolver) Resolve(ctx context.Context, domain string) ([]verdict.MxCandidate, error) {
	mxs, err := r.net.LookupMX(ctx, domain)
	if err != nil {
		// A DNS "no such host" is an empty result, not a resolution
		// error; anything else (timeout, servfail, network down) is a
		// genuine ResolveError the orchestrator maps to Unknown.
		if isNoSuchHost(err) {
			return r.fallbackToA(ctx, domain)
		}
		return nil, err
	}

	if len(mxs) == 0 {
		return r.fallbackToA(ctx, domain)
	}

	candidates := make([]verdict.MxCandidate, 0, len(mxs))
	for _, mx := range mxs {
		host := strings.TrimSuffix(strings.ToLower(mx.Host), ".")
		if host == "" {
			continue
		}
		pref := int(mx.Pref)
		candidates = append(candidates, verdict.MxCandidate{Host: host, Preference: pref})
	}

	if len(candidates) == 0 {
		return r.fallbackToA(ctx, domain)
	}

	sortByPreference(candidates)
	return candidates, nil
}

func (r *Resolver) fallbackToA(ctx context.Context, domain string) ([]verdict.MxCandidate, error) {
	ips, err := r.net.LookupHost(ctx, domain)
	if err != nil {
		if isNoSuchHost(err) {
			return nil, ErrNoRecords
		}
		return nil, err
	}
	if len(ips) == 0 {
		return nil, ErrNoRecords
	}

	candidates := make([]verdict.MxCandidate, 0, len(ips))
	for _, ip := range ips {
		candidates = append(candidates, verdict.MxCandidate{Host: ip, Preference: 0})
	}
	return candidates, nil
}

func sortByPreference(c []verdict.MxCandidate) {
	sort.SliceStable(c, func(i, j int) bool {
		pi, pj := c[i].Preference, c[j].Preference
		if pi < 0 {
			pi = math.MaxInt32
		}
		if pj < 0 {
			pj = math.MaxInt32
		}
		return pi < pj
	})
}

func isNoSuchHost(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	return false
}
