package denylist

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ipshipyard/sitecheck/cidr"
)

// reservedRanges are the IPv4 special-purpose ranges from RFC 6890 plus
// multicast. Entries do not overlap, so evaluation order never changes the
// outcome, only which entry is reported.
var reservedRanges = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"192.88.99.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4", // includes 255.255.255.255
}

// reservedSuffixes are the RFC 2606 / RFC 6761 top-level domains that never
// resolve on the public internet.
var reservedSuffixes = []string{"example", "invalid", "localhost", "test"}

// Reserved is an immutable ordered list of reserved IPv4 subnets together
// with a set of disallowed top-level domain labels. It is safe for
// concurrent use.
type Reserved struct {
	subnets  []cidr.Subnet
	suffixes []string
}

// DefaultReserved returns the shared built-in Reserved list. It is built on
// first use and never mutated afterwards.
var DefaultReserved = sync.OnceValue(func() *Reserved {
	subnets := make([]cidr.Subnet, 0, len(reservedRanges))
	for _, s := range reservedRanges {
		subnets = append(subnets, cidr.MustParseSubnet(s))
	}
	r, err := NewReserved(subnets, reservedSuffixes)
	if err != nil {
		panic(err)
	}
	return r
})

// NewReserved builds a Reserved list. Both slices are copied. Suffixes are
// single DNS labels; they are lowercased and must not be empty or contain dots.
func NewReserved(subnets []cidr.Subnet, suffixes []string) (*Reserved, error) {
	initMetrics()
	r := &Reserved{
		subnets:  make([]cidr.Subnet, 0, len(subnets)),
		suffixes: make([]string, 0, len(suffixes)),
	}
	for _, s := range subnets {
		if err := cidr.ValidBits(s.Bits); err != nil {
			return nil, fmt.Errorf("subnet %s: %w", s, err)
		}
		r.subnets = append(r.subnets, s)
	}
	for _, suffix := range suffixes {
		suffix = strings.ToLower(strings.TrimSpace(suffix))
		if suffix == "" || strings.Contains(suffix, ".") {
			return nil, fmt.Errorf("%w: suffix %q must be a single label", cidr.ErrInvalidArgument, suffix)
		}
		if !slices.Contains(r.suffixes, suffix) {
			r.suffixes = append(r.suffixes, suffix)
		}
	}
	return r, nil
}

// MatchIP returns the first subnet, in list order, that contains ip.
func (r *Reserved) MatchIP(ip cidr.IPv4) (cidr.Subnet, bool) {
	for _, s := range r.subnets {
		if s.Contains(ip) {
			observeReserved(reasonRange, s.String())
			return s, true
		}
	}
	return cidr.Subnet{}, false
}

// MatchSuffix reports whether the final label of hostname is a disallowed
// suffix. The match is anchored on the right: "site.test" matches "test",
// "site.testing" does not. hostname is expected in lowercase.
func (r *Reserved) MatchSuffix(hostname string) (string, bool) {
	label := hostname
	if i := strings.LastIndexByte(hostname, '.'); i >= 0 {
		label = hostname[i+1:]
	}
	if slices.Contains(r.suffixes, label) {
		observeReserved(reasonSuffix, label)
		return label, true
	}
	return "", false
}

// Subnets returns a copy of the reserved subnets in evaluation order.
func (r *Reserved) Subnets() []cidr.Subnet {
	return slices.Clone(r.subnets)
}

// Suffixes returns a copy of the disallowed top-level labels.
func (r *Reserved) Suffixes() []string {
	return slices.Clone(r.suffixes)
}
