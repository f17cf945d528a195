package cidr

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Subnet is an IPv4 address paired with the number of leading bits that
// must match for membership. Host bits of Addr are kept as given; they are
// masked off on every comparison.
type Subnet struct {
	Addr IPv4
	Bits int
}

// NewSubnet validates bits and returns the subnet.
func NewSubnet(addr IPv4, bits int) (Subnet, error) {
	if err := ValidBits(bits); err != nil {
		return Subnet{}, err
	}
	return Subnet{Addr: addr, Bits: bits}, nil
}

// ParseSubnet parses "a.b.c.d/n".
func ParseSubnet(s string) (Subnet, error) {
	addr, bits, ok := strings.Cut(s, "/")
	if !ok {
		return Subnet{}, fmt.Errorf("%w: %q is missing a mask length", ErrInvalidArgument, s)
	}
	ip, err := ParseIPv4(addr)
	if err != nil {
		return Subnet{}, err
	}
	n, err := strconv.Atoi(bits)
	if err != nil || bits != strconv.Itoa(n) {
		return Subnet{}, fmt.Errorf("%w: %q has a malformed mask length", ErrInvalidArgument, s)
	}
	return NewSubnet(ip, n)
}

// MustParseSubnet is like ParseSubnet but panics on error.
func MustParseSubnet(s string) Subnet {
	sn, err := ParseSubnet(s)
	if err != nil {
		panic(err)
	}
	return sn
}

// Contains reports whether ip shares the subnet's leading Bits.
func (s Subnet) Contains(ip IPv4) bool {
	mask := Mask(s.Bits)
	return uint32(ip)&mask == uint32(s.Addr)&mask
}

// Overlaps reports whether s and o share at least one address.
func (s Subnet) Overlaps(o Subnet) bool {
	bits := min(s.Bits, o.Bits)
	mask := Mask(bits)
	return uint32(s.Addr)&mask == uint32(o.Addr)&mask
}

// Masked returns the subnet with host bits cleared.
func (s Subnet) Masked() Subnet {
	return Subnet{Addr: IPv4(uint32(s.Addr) & Mask(s.Bits)), Bits: s.Bits}
}

// Prefix converts s to a netip.Prefix, for use with prefix tries.
func (s Subnet) Prefix() netip.Prefix {
	return netip.PrefixFrom(s.Addr.Addr(), s.Bits).Masked()
}

func (s Subnet) String() string {
	return s.Addr.String() + "/" + strconv.Itoa(s.Bits)
}
