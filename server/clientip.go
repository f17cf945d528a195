package server

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/ipshipyard/sitecheck/denylist"
)

// clientIPs extracts client IPs from request: both X-Forwarded-For and RemoteAddr.
// Returns all valid IPs found (may be 0, 1, or 2 IPs).
func clientIPs(r *http.Request) []netip.Addr {
	var ips []netip.Addr

	// leftmost X-Forwarded-For entry is the original client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if comma := strings.Index(xff, ","); comma != -1 {
			xff = xff[:comma]
		}
		if ip, err := netip.ParseAddr(strings.TrimSpace(xff)); err == nil {
			ips = append(ips, ip.Unmap())
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		ips = append(ips, ip.Unmap())
	}

	return ips
}

// withClientLists rejects requests whose client addresses are denied by
// lists. A nil Manager admits everyone.
func withClientLists(lists *denylist.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if lists == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, ip := range clientIPs(r) {
				if denied, res := lists.Check(ip); denied {
					log.Debugf("rejecting client %s: on list %s", ip, res.Name)
					writeJSON(w, http.StatusForbidden, errorResponse{Error: fmt.Sprintf("client address %s is not allowed", ip)})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
