package compat

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/ipshipyard/sitecheck/cidr"
	"github.com/ipshipyard/sitecheck/denylist"
)

// ipv4Pattern recognises hostnames written as an IPv4 dotted-quad. Octet
// values are validated afterwards by cidr.ParseIPv4.
var ipv4Pattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

// Reasons a hostname fails the gate, as reported on
// sitecheck_compat_hostname_rejections_total.
const (
	rejectPort          = "port"
	rejectMalformedIP   = "malformed_ip"
	rejectReservedRange = "reserved_range"
	rejectDenylist      = "denylist"
	rejectSingleLabel   = "single_label"
	rejectEmptyLabel    = "empty_label"
	rejectReservedTLD   = "reserved_tld"
)

func reject(reason, msg string, cause error) error {
	observeRejection(reason)
	return newError(CodeInvalidHostname, msg, cause)
}

// HostnameGate decides whether a hostname and port describe a public,
// reachable deployment. It is safe for concurrent use.
type HostnameGate struct {
	reserved *denylist.Reserved
	lists    *denylist.Manager
}

// HostnameOption configures a HostnameGate.
type HostnameOption func(*HostnameGate)

// WithReserved replaces the built-in reserved ranges and suffixes.
func WithReserved(r *denylist.Reserved) HostnameOption {
	return func(g *HostnameGate) {
		if r != nil {
			g.reserved = r
		}
	}
}

// WithLists adds operator allow/deny lists. An allowlisted address passes
// even inside a reserved range; a denylisted address fails even when public.
func WithLists(m *denylist.Manager) HostnameOption {
	return func(g *HostnameGate) {
		g.lists = m
	}
}

// NewHostnameGate returns a gate using denylist.DefaultReserved unless
// overridden.
func NewHostnameGate(opts ...HostnameOption) *HostnameGate {
	initMetrics()
	g := &HostnameGate{reserved: denylist.DefaultReserved()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var defaultHostnameGate = sync.OnceValue(func() *HostnameGate {
	return NewHostnameGate()
})

// CheckHostname runs the default hostname gate. It returns nil or an error
// matching ErrInvalidHostname.
func CheckHostname(hostname, port string) error {
	return defaultHostnameGate().Check(hostname, port)
}

// Check evaluates, in order and stopping at the first failure:
//  1. any explicit port fails;
//  2. a dotted-quad hostname fails when malformed, inside a reserved range
//     or on an operator denylist, unless an operator allowlist admits it;
//  3. any other hostname fails when it is a single label, has an empty
//     label or ends in a reserved top-level label.
//
// Hostnames compare case-insensitively and a single trailing root dot is
// ignored, so "foo." is the single label "foo" and "foo.." has an empty label.
func (g *HostnameGate) Check(hostname, port string) error {
	if port != "" {
		return reject(rejectPort, fmt.Sprintf("explicit port %q", port), nil)
	}

	host := strings.TrimSuffix(strings.ToLower(hostname), ".")

	if ipv4Pattern.MatchString(host) {
		return g.checkIP(host)
	}

	if !strings.Contains(host, ".") {
		return reject(rejectSingleLabel, fmt.Sprintf("%q has no domain separator", hostname), nil)
	}
	if slices.Contains(strings.Split(host, "."), "") {
		return reject(rejectEmptyLabel, fmt.Sprintf("%q has an empty label", hostname), nil)
	}
	if suffix, ok := g.reserved.MatchSuffix(host); ok {
		return reject(rejectReservedTLD, fmt.Sprintf("%q uses reserved top-level domain %q", hostname, suffix), nil)
	}
	return nil
}

func (g *HostnameGate) checkIP(host string) error {
	ip, err := cidr.ParseIPv4(host)
	if err != nil {
		return reject(rejectMalformedIP, "malformed IPv4 address", err)
	}

	denied, res := g.lists.Check(ip.Addr())
	if res.Matched && !denied {
		log.Debugf("hostname %s admitted by allowlist %s", host, res.Name)
		return nil
	}
	if subnet, ok := g.reserved.MatchIP(ip); ok {
		return reject(rejectReservedRange, fmt.Sprintf("%s is in reserved range %s", host, subnet), nil)
	}
	if denied {
		return reject(rejectDenylist, fmt.Sprintf("%s is on denylist %s", host, res.Name), nil)
	}
	return nil
}

// publicAddr reports whether an already-resolved address would pass the
// IP branch of the gate. Only IPv4 is considered.
func (g *HostnameGate) publicAddr(ip cidr.IPv4) bool {
	return g.checkIP(ip.String()) == nil
}

// HostnameCheck runs the hostname gate on the host and port of a site URL.
type HostnameCheck struct {
	Gate    *HostnameGate
	HomeURL *url.URL
}

func (c *HostnameCheck) Name() string { return "hostname" }

func (c *HostnameCheck) Run(_ context.Context) error {
	gate := c.Gate
	if gate == nil {
		gate = defaultHostnameGate()
	}
	return gate.Check(c.HomeURL.Hostname(), c.HomeURL.Port())
}
