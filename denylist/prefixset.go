package denylist

import (
	"net/netip"
	"sync/atomic"

	"github.com/gaissmai/bart"
)

// prefixSet is a set of IP prefixes backed by a BART trie. Readers load the
// current trie without locking; replace swaps in a freshly built one.
type prefixSet struct {
	trie atomic.Pointer[bart.Lite]
}

func newPrefixSet() *prefixSet {
	ps := &prefixSet{}
	ps.trie.Store(new(bart.Lite))
	return ps
}

// contains reports whether ip is inside any prefix of the set.
// IPv4-mapped IPv6 addresses match IPv4 prefixes.
func (ps *prefixSet) contains(ip netip.Addr) bool {
	t := ps.trie.Load()
	if t == nil || !ip.IsValid() {
		return false
	}
	return t.Contains(ip.Unmap())
}

// replace swaps the whole set for prefixes and returns how many were kept.
// Invalid prefixes are dropped and host bits are masked off.
func (ps *prefixSet) replace(prefixes []netip.Prefix) int {
	t := new(bart.Lite)
	n := 0
	for _, p := range prefixes {
		if !p.IsValid() {
			continue
		}
		t.Insert(p.Masked())
		n++
	}
	ps.trie.Store(t)
	return n
}

func (ps *prefixSet) size() int {
	t := ps.trie.Load()
	if t == nil {
		return 0
	}
	return t.Size()
}
