package compat

import (
	"context"
	"fmt"
	"net/netip"
	"net/url"
	"time"

	"github.com/miekg/dns"

	"github.com/ipshipyard/sitecheck/cidr"
)

// ResolveCheck looks up the site hostname's A records and fails when none of
// them is a public address. A name that only resolves inside a private
// network is not reachable by Google's crawlers even if it looks public.
type ResolveCheck struct {
	HomeURL *url.URL
	// Resolver is the DNS server to ask, as host:port.
	Resolver string
	Gate     *HostnameGate
	Timeout  time.Duration
}

func (c *ResolveCheck) Name() string { return "resolve" }

func (c *ResolveCheck) Run(ctx context.Context) error {
	host := c.HomeURL.Hostname()
	// IP literals are already covered by the hostname gate.
	if _, err := netip.ParseAddr(host); err == nil {
		return nil
	}

	gate := c.Gate
	if gate == nil {
		gate = defaultHostnameGate()
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := &dns.Client{Timeout: timeout}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	r, _, err := client.ExchangeContext(ctx, m, c.Resolver)
	if err != nil {
		return newError(CodeFetchFailed, fmt.Sprintf("resolving %s", host), err)
	}
	switch r.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return newError(CodeInvalidHostname, fmt.Sprintf("%s does not exist in DNS", host), nil)
	default:
		return newError(CodeFetchFailed, fmt.Sprintf("resolving %s: %s", host, dns.RcodeToString[r.Rcode]), nil)
	}

	var found int
	for _, rr := range r.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(a.A)
		if !ok {
			continue
		}
		ip, ok := cidr.FromAddr(addr)
		if !ok {
			continue
		}
		found++
		if gate.publicAddr(ip) {
			return nil
		}
	}
	if found == 0 {
		return newError(CodeInvalidHostname, fmt.Sprintf("%s has no A records", host), nil)
	}
	return newError(CodeInvalidHostname, fmt.Sprintf("%s resolves only to non-public addresses", host), nil)
}
