// Package denylist holds the address and name lists consulted when deciding
// whether a site hostname is publicly reachable.
//
// Reserved is the fixed list of private/reserved IPv4 ranges and
// non-public top-level domains. Manager combines operator-supplied
// allow/deny lists loaded from files and HTTP feeds on top of it.
package denylist

import (
	"net/netip"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("sitecheck/denylist")

// listType indicates whether a list is an allowlist or denylist.
type listType string

const (
	// listTypeAllow indicates entries that should bypass denylist checks.
	listTypeAllow listType = "allow"
	// listTypeDeny indicates entries that should be blocked (default).
	listTypeDeny listType = "deny"
)

// feedFormat specifies how to parse external feed content.
type feedFormat string

const (
	// formatIP parses one IP or CIDR per line with # or ; comments.
	formatIP feedFormat = "ip"
	// formatURL parses URLs and keeps hosts that are literal IPs.
	formatURL feedFormat = "url"
)

// CheckResult contains the outcome of checking an IP against a list.
type CheckResult struct {
	Matched bool   // whether the IP matched an entry
	Name    string // source name (e.g., "office-allow")
}

// checker checks IP addresses against a list.
type checker interface {
	// Check returns whether the IP matches any entry in this list.
	Check(ip netip.Addr) CheckResult
	// Name returns the name of this checker for metrics/logging.
	Name() string
	// Type returns whether this is an allow or deny list.
	Type() listType
	// Size returns the number of entries in the list.
	Size() int
}
