// Package cidr implements IPv4 subnet membership on fixed-width unsigned
// 32-bit integers. Inputs are validated eagerly: malformed dotted-quads and
// out-of-range mask lengths are reported as ErrInvalidArgument instead of
// producing a meaningless comparison.
package cidr

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// ErrInvalidArgument is wrapped by every validation failure in this package.
var ErrInvalidArgument = errors.New("invalid argument")

// MaxBits is the mask length of a single IPv4 host.
const MaxBits = 32

// IPv4 is an IPv4 address in host byte order.
type IPv4 uint32

// ParseIPv4 parses a dotted-quad such as "192.168.1.5".
// Exactly four decimal octets are accepted, each 0-255 without leading zeros,
// so that the textual form always round-trips through String.
func ParseIPv4(s string) (IPv4, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("%w: %q is not a dotted-quad IPv4 address", ErrInvalidArgument, s)
	}

	var ip uint32
	for _, part := range parts {
		octet, err := parseOctet(part)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidArgument, s, err)
		}
		ip = ip<<8 | uint32(octet)
	}
	return IPv4(ip), nil
}

func parseOctet(s string) (uint8, error) {
	if len(s) == 0 || len(s) > 3 {
		return 0, fmt.Errorf("octet %q must have 1 to 3 digits", s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("octet %q is not decimal", s)
		}
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("octet %q has a leading zero", s)
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("octet %q is out of range", s)
	}
	return uint8(v), nil
}

// MustParseIPv4 is like ParseIPv4 but panics on error.
// Intended for static tables and tests.
func MustParseIPv4(s string) IPv4 {
	ip, err := ParseIPv4(s)
	if err != nil {
		panic(err)
	}
	return ip
}

// FromAddr converts a netip.Addr to IPv4. IPv4-mapped IPv6 addresses
// (::ffff:a.b.c.d) are unmapped first. Returns false for native IPv6.
func FromAddr(addr netip.Addr) (IPv4, bool) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return 0, false
	}
	b := addr.As4()
	return IPv4(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])), true
}

// Addr returns ip as a netip.Addr.
func (ip IPv4) Addr() netip.Addr {
	return netip.AddrFrom4([4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)})
}

// String returns the canonical dotted-quad form.
func (ip IPv4) String() string {
	var b [15]byte
	out := strconv.AppendUint(b[:0], uint64(byte(ip>>24)), 10)
	out = append(out, '.')
	out = strconv.AppendUint(out, uint64(byte(ip>>16)), 10)
	out = append(out, '.')
	out = strconv.AppendUint(out, uint64(byte(ip>>8)), 10)
	out = append(out, '.')
	out = strconv.AppendUint(out, uint64(byte(ip)), 10)
	return string(out)
}

// Mask returns a network mask with the leading bits set.
// Mask(0) is 0 and Mask(32) is 0xffffffff. The shift is done on uint32 so
// masks with the top bit set never go through a signed intermediate.
// Callers validate bits with ValidBits; values outside [0, 32] are clamped.
func Mask(bits int) uint32 {
	switch {
	case bits <= 0:
		return 0
	case bits >= MaxBits:
		return ^uint32(0)
	}
	return ^uint32(0) << (MaxBits - bits)
}

// ValidBits reports an error unless bits is a valid IPv4 mask length.
func ValidBits(bits int) error {
	if bits < 0 || bits > MaxBits {
		return fmt.Errorf("%w: mask length %d not in [0, %d]", ErrInvalidArgument, bits, MaxBits)
	}
	return nil
}

// InRange reports whether ip is inside the subnet formed by the first
// maskLength bits of subnet. All three arguments are validated first.
func InRange(ip, subnet string, maskLength int) (bool, error) {
	if err := ValidBits(maskLength); err != nil {
		return false, err
	}
	addr, err := ParseIPv4(ip)
	if err != nil {
		return false, err
	}
	network, err := ParseIPv4(subnet)
	if err != nil {
		return false, err
	}
	return Subnet{Addr: network, Bits: maskLength}.Contains(addr), nil
}
