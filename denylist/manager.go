package denylist

import (
	"errors"
	"io"
	"net/netip"
	"sync"
)

// Manager combines operator allow and deny lists.
// Allowlists are consulted first: an address on any allowlist is never
// denied. Within each category lists are evaluated in insertion order and
// the first match wins.
type Manager struct {
	allowlists []checker
	denylists  []checker
	mu         sync.RWMutex
	closeOnce  sync.Once
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	initMetrics()
	return &Manager{}
}

// ListInfo describes one configured list.
type ListInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int    `json:"size"`
}

func (m *Manager) add(c checker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.Type() == listTypeAllow {
		m.allowlists = append(m.allowlists, c)
	} else {
		m.denylists = append(m.denylists, c)
	}
}

// Check reports whether ip is denied. When an allowlist matches, denied is
// false and result names the allowlist.
func (m *Manager) Check(ip netip.Addr) (denied bool, result CheckResult) {
	if m == nil {
		return false, CheckResult{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.allowlists {
		if r := c.Check(ip); r.Matched {
			observeListMatch(r.Name, listTypeAllow)
			return false, r
		}
	}

	for _, c := range m.denylists {
		if r := c.Check(ip); r.Matched {
			observeListMatch(r.Name, listTypeDeny)
			return true, r
		}
	}

	return false, CheckResult{}
}

// Lists returns the configured lists, allowlists first.
func (m *Manager) Lists() []ListInfo {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ListInfo, 0, len(m.allowlists)+len(m.denylists))
	for _, group := range [][]checker{m.allowlists, m.denylists} {
		for _, c := range group {
			out = append(out, ListInfo{Name: c.Name(), Type: string(c.Type()), Size: c.Size()})
		}
	}
	return out
}

// Close stops file watchers and feed refreshers. Safe to call multiple times.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	var errs []error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		for _, group := range [][]checker{m.allowlists, m.denylists} {
			for _, c := range group {
				if closer, ok := c.(io.Closer); ok {
					if err := closer.Close(); err != nil {
						errs = append(errs, err)
					}
				}
			}
		}
	})
	return errors.Join(errs...)
}
