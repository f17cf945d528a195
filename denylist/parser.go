package denylist

import (
	"bufio"
	"io"
	"net/netip"
	"net/url"
	"strings"
)

// addrToPrefix converts a single IP address to a host prefix (/32 or /128).
func addrToPrefix(ip netip.Addr) netip.Prefix {
	ip = ip.Unmap()
	return netip.PrefixFrom(ip, ip.BitLen())
}

// parseIP parses one IP or CIDR per line.
// Lines starting with # or ; are comments, as are trailing "; ..." or
// "# ..." annotations. Unparseable lines are skipped.
func parseIP(r io.Reader) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if idx := strings.IndexAny(line, ";#"); idx != -1 {
			line = strings.TrimSpace(line[:idx])
		}

		if prefix, err := netip.ParsePrefix(line); err == nil {
			prefixes = append(prefixes, prefix)
			continue
		}
		if ip, err := netip.ParseAddr(line); err == nil {
			prefixes = append(prefixes, addrToPrefix(ip))
		}
	}

	return prefixes, scanner.Err()
}

// parseURL parses one URL per line and keeps hosts that are IP literals,
// deduplicated in first-seen order. Named hosts are skipped.
func parseURL(r io.Reader) ([]netip.Prefix, error) {
	seen := make(map[netip.Addr]struct{})
	var order []netip.Addr

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		u, err := url.Parse(line)
		if err != nil {
			continue
		}
		ip, err := netip.ParseAddr(u.Hostname())
		if err != nil {
			continue
		}
		ip = ip.Unmap()
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		order = append(order, ip)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	prefixes := make([]netip.Prefix, 0, len(order))
	for _, ip := range order {
		prefixes = append(prefixes, addrToPrefix(ip))
	}
	return prefixes, nil
}

func parse(format feedFormat, r io.Reader) ([]netip.Prefix, error) {
	switch format {
	case formatURL:
		return parseURL(r)
	default:
		return parseIP(r)
	}
}
