package denylist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipshipyard/sitecheck/cidr"
)

func TestPrefixSet(t *testing.T) {
	ps := newPrefixSet()
	assert.Equal(t, 0, ps.size())

	n := ps.replace([]netip.Prefix{
		netip.MustParsePrefix("192.168.1.0/24"),
		netip.MustParsePrefix("10.1.2.3/8"), // host bits are masked off
		netip.MustParsePrefix("2001:db8::/32"),
		{}, // invalid, dropped
	})
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, ps.size())

	for ip, want := range map[string]bool{
		"192.168.1.100":   true,
		"10.200.0.1":      true,
		"::ffff:10.0.0.1": true,
		"172.16.0.1":      false,
		"2001:db8::1":     true,
		"2001:db9::1":     false,
	} {
		assert.Equal(t, want, ps.contains(netip.MustParseAddr(ip)), ip)
	}
	assert.False(t, ps.contains(netip.Addr{}))

	// replace drops previous entries
	ps.replace([]netip.Prefix{netip.MustParsePrefix("1.2.3.4/32")})
	assert.Equal(t, 1, ps.size())
	assert.False(t, ps.contains(netip.MustParseAddr("192.168.1.100")))
}

func TestParseIP(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name: "single IPs",
			input: `192.168.1.1
10.0.0.1
2001:db8::1`,
			expected: []string{"192.168.1.1/32", "10.0.0.1/32", "2001:db8::1/128"},
		},
		{
			name:     "windows line endings CRLF",
			input:    "192.168.1.1\r\n10.0.0.1\r\n2001:db8::1\r\n",
			expected: []string{"192.168.1.1/32", "10.0.0.1/32", "2001:db8::1/128"},
		},
		{
			name:     "mixed line endings",
			input:    "192.168.1.1\n10.0.0.1\r\n172.16.0.1\n",
			expected: []string{"192.168.1.1/32", "10.0.0.1/32", "172.16.0.1/32"},
		},
		{
			name: "CIDR ranges",
			input: `192.168.0.0/16
10.0.0.0/8`,
			expected: []string{"192.168.0.0/16", "10.0.0.0/8"},
		},
		{
			name: "with comments",
			input: `# This is a comment
192.168.1.1
; Another comment style
10.0.0.1 ; inline comment
172.16.0.0/12 # inline comment`,
			expected: []string{"192.168.1.1/32", "10.0.0.1/32", "172.16.0.0/12"},
		},
		{
			name: "empty lines",
			input: `192.168.1.1

10.0.0.1

`,
			expected: []string{"192.168.1.1/32", "10.0.0.1/32"},
		},
		{
			name:     "empty input",
			input:    "",
			expected: []string{},
		},
		{
			name: "invalid lines skipped",
			input: `192.168.1.1
not-an-ip
10.0.0.1`,
			expected: []string{"192.168.1.1/32", "10.0.0.1/32"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefixes, err := parseIP(strings.NewReader(tt.input))
			require.NoError(t, err)

			got := make([]string, 0, len(prefixes))
			for _, p := range prefixes {
				got = append(got, p.String())
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCount int
		wantIPs   []string // subset to check
	}{
		{
			name: "URLs with IP hosts",
			input: `http://192.168.1.1/malware.exe
https://10.0.0.1:8080/bad.js`,
			wantCount: 2,
			wantIPs:   []string{"192.168.1.1", "10.0.0.1"},
		},
		{
			name:      "URLs with CRLF line endings",
			input:     "http://192.168.1.1/file\r\nhttp://10.0.0.1/file\r\n",
			wantCount: 2,
			wantIPs:   []string{"192.168.1.1", "10.0.0.1"},
		},
		{
			name:      "IPv6 literal host",
			input:     "http://[2001:db8::1]:8080/x",
			wantCount: 1,
			wantIPs:   []string{"2001:db8::1"},
		},
		{
			name: "named hosts skipped",
			input: `http://malware.example.com/file
http://192.168.1.1/file`,
			wantCount: 1,
		},
		{
			name: "with comments",
			input: `# comment
http://192.168.1.1/file`,
			wantCount: 1,
		},
		{
			name:      "empty input",
			input:     "",
			wantCount: 0,
		},
		{
			name: "deduplicate IPs",
			input: `http://192.168.1.1/file1
http://192.168.1.1/file2`,
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefixes, err := parseURL(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, len(prefixes))

			gotIPs := make([]string, 0, len(prefixes))
			for _, p := range prefixes {
				gotIPs = append(gotIPs, p.Addr().String())
			}
			for _, wantIP := range tt.wantIPs {
				assert.Contains(t, gotIPs, wantIP)
			}
		})
	}
}

func TestFileList(t *testing.T) {
	// Create temp file
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	content := `192.168.1.0/24
10.0.0.0/8`
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)

	fl, err := newFileList(fileConfig{
		Path: path,
		Name: "test-list",
		Type: listTypeDeny,
	})
	require.NoError(t, err)
	defer fl.Close()

	assert.Equal(t, "test-list", fl.Name())
	assert.Equal(t, listTypeDeny, fl.Type())
	assert.Equal(t, 2, fl.Size())

	// Test Check
	result := fl.Check(netip.MustParseAddr("192.168.1.100"))
	assert.True(t, result.Matched)
	assert.Equal(t, "test-list", result.Name)

	result = fl.Check(netip.MustParseAddr("172.16.0.1"))
	assert.False(t, result.Matched)
}

func TestFileListReload(t *testing.T) {
	// Create temp file
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	err := os.WriteFile(path, []byte("192.168.1.0/24\n"), 0644)
	require.NoError(t, err)

	fl, err := newFileList(fileConfig{Path: path})
	require.NoError(t, err)
	defer fl.Close()

	assert.Equal(t, 1, fl.Size())

	// Modify file
	err = os.WriteFile(path, []byte("192.168.1.0/24\n10.0.0.0/8\n"), 0644)
	require.NoError(t, err)

	// Wait for reload (fsnotify + 100ms delay)
	assert.Eventually(t, func() bool {
		return fl.Size() == 2
	}, time.Second, 50*time.Millisecond, "file should reload with 2 entries")
}

func TestFeedList(t *testing.T) {
	// Create test server
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		io.WriteString(w, "192.168.1.0/24\n10.0.0.0/8\n")
	}))
	defer srv.Close()

	fl, err := newFeedList(feedConfig{
		URL:     srv.URL,
		Name:    "test-feed",
		Type:    listTypeDeny,
		Format:  formatIP,
		Refresh: time.Hour,
	})
	require.NoError(t, err)
	defer fl.Close()

	// Wait for async initial fetch
	assert.Eventually(t, func() bool { return fl.Size() == 2 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, "test-feed", fl.Name())
	assert.Equal(t, listTypeDeny, fl.Type())

	// Test Check
	result := fl.Check(netip.MustParseAddr("192.168.1.100"))
	assert.True(t, result.Matched)
}

func TestFeedListNotModified(t *testing.T) {
	var requestCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		if r.Header.Get("If-Modified-Since") != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		io.WriteString(w, "192.168.1.0/24\n")
	}))
	defer srv.Close()

	fl, err := newFeedList(feedConfig{
		URL:     srv.URL,
		Format:  formatIP,
		Refresh: time.Hour,
	})
	require.NoError(t, err)
	defer fl.Close()

	// Wait for async initial fetch
	assert.Eventually(t, func() bool { return requestCount.Load() == 1 }, time.Second, 10*time.Millisecond)

	// Manual update should get 304
	ctx := context.Background()
	count, err := fl.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count) // Same count, no parse
	assert.Equal(t, int32(2), requestCount.Load())
}

func TestParseURLKeepsFirstSeenOrder(t *testing.T) {
	input := `http://198.51.99.7/a
https://45.33.1.1:8443/b
http://198.51.99.7/c
http://[::ffff:198.51.99.7]/d
http://wp-admin.example.org/e
http://[2001:db8::5]/f
http://45.33.1.1/g`

	prefixes, err := parseURL(strings.NewReader(input))
	require.NoError(t, err)

	got := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		got = append(got, p.String())
	}
	assert.Equal(t, []string{"198.51.99.7/32", "45.33.1.1/32", "2001:db8::5/128"}, got)
}

func TestFileListURLFormat(t *testing.T) {
	initMetrics()
	dir := t.TempDir()
	writeFile(t, dir, "hosts.txt", `# reported installs
http://198.51.99.7/wp-login.php
http://198.51.99.7/xmlrpc.php
https://compromised.example.net/wp-admin/
http://[2001:db8::5]:8080/
`)

	fl, err := newFileList(fileConfig{Path: "hosts.txt", BaseDir: dir, Format: formatURL})
	require.NoError(t, err)
	defer fl.Close()

	assert.Equal(t, "hosts.txt", fl.Name())
	assert.Equal(t, listTypeDeny, fl.Type())
	assert.Equal(t, 2, fl.Size(), "named hosts are skipped, repeated addresses kept once")
	assert.False(t, fl.LastUpdate().IsZero())

	assert.True(t, fl.Check(netip.MustParseAddr("198.51.99.7")).Matched)
	assert.True(t, fl.Check(netip.MustParseAddr("2001:db8::5")).Matched)
	assert.False(t, fl.Check(netip.MustParseAddr("198.51.99.8")).Matched, "URL entries are single hosts")

	entries := listEntries.WithLabelValues("hosts.txt", string(listTypeDeny), sourceFile)
	assert.Equal(t, float64(2), testutil.ToFloat64(entries))
}

func TestManagerNil(t *testing.T) {
	var m *Manager

	denied, res := m.Check(netip.MustParseAddr("198.51.99.7"))
	assert.False(t, denied)
	assert.False(t, res.Matched)
	assert.Nil(t, m.Lists())
	assert.NoError(t, m.Close())
}

func TestManagerLists(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "abuse.txt", "198.51.99.0/24\n45.33.0.0/16\n")
	writeFile(t, dir, "reported.txt", "http://198.51.99.7/x\nhttp://185.199.1.2/y\n")
	writeFile(t, dir, "office.txt", "198.51.99.10\n")

	// allowlist declared last on purpose
	m, err := ParseDirectives([]string{
		"file abuse.txt name=abuse",
		"file reported.txt format=url name=reported",
		"file office.txt type=allow",
	}, dir)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, []ListInfo{
		{Name: "office.txt", Type: "allow", Size: 1},
		{Name: "abuse", Type: "deny", Size: 2},
		{Name: "reported", Type: "deny", Size: 2},
	}, m.Lists())

	tests := []struct {
		ip         string
		wantDenied bool
		wantName   string
	}{
		{"198.51.99.10", false, "office.txt"},
		{"198.51.99.7", true, "abuse"}, // on both denylists, first declared wins
		{"185.199.1.2", true, "reported"},
		{"8.8.8.8", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			denied, res := m.Check(netip.MustParseAddr(tt.ip))
			assert.Equal(t, tt.wantDenied, denied)
			assert.Equal(t, tt.wantName, res.Name)
			assert.Equal(t, tt.wantName != "", res.Matched)
		})
	}

	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close(), "second close is a no-op")
}

func TestManagerListMatchMetrics(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "deny.txt", "45.33.0.0/16\n")
	writeFile(t, dir, "allow.txt", "45.33.7.7\n")

	m, err := ParseDirectives([]string{
		"file deny.txt name=metrics-deny",
		"file allow.txt type=allow name=metrics-allow",
	}, dir)
	require.NoError(t, err)
	defer m.Close()

	allowed := listMatches.WithLabelValues("metrics-allow", string(listTypeAllow))
	denied := listMatches.WithLabelValues("metrics-deny", string(listTypeDeny))

	m.Check(netip.MustParseAddr("45.33.7.7"))
	m.Check(netip.MustParseAddr("45.33.7.8"))
	m.Check(netip.MustParseAddr("45.33.7.9"))
	m.Check(netip.MustParseAddr("8.8.4.4"))

	assert.Equal(t, float64(1), testutil.ToFloat64(allowed))
	assert.Equal(t, float64(2), testutil.ToFloat64(denied))
}

func TestManagerListsTrackFeedSize(t *testing.T) {
	initMetrics()
	var content atomic.Value
	content.Store("http://198.51.99.7/a\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, content.Load().(string))
	}))
	defer srv.Close()

	fl, err := newFeedList(feedConfig{
		URL:     srv.URL,
		Name:    "reported-feed",
		Format:  formatURL,
		Refresh: time.Hour,
	})
	require.NoError(t, err)

	m := NewManager()
	m.add(fl)
	defer m.Close()

	assert.Eventually(t, func() bool {
		return m.Lists()[0].Size == 1
	}, time.Second, 10*time.Millisecond)

	content.Store("http://198.51.99.7/a\nhttp://45.33.1.1/b\nhttp://named.example.org/c\n")
	n, err := fl.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []ListInfo{{Name: "reported-feed", Type: "deny", Size: 2}}, m.Lists())
	denied, _ := m.Check(netip.MustParseAddr("45.33.1.1"))
	assert.True(t, denied)

	entries := listEntries.WithLabelValues("reported-feed", string(listTypeDeny), sourceFeed)
	assert.Equal(t, float64(2), testutil.ToFloat64(entries))
}

func TestReservedMatchMetrics(t *testing.T) {
	r := DefaultReserved()

	ranged := reservedMatches.WithLabelValues(reasonRange, "192.168.0.0/16")
	suffix := reservedMatches.WithLabelValues(reasonSuffix, "localhost")
	beforeRange, beforeSuffix := testutil.ToFloat64(ranged), testutil.ToFloat64(suffix)

	_, ok := r.MatchIP(cidr.MustParseIPv4("192.168.1.5"))
	require.True(t, ok)
	_, ok = r.MatchIP(cidr.MustParseIPv4("8.8.8.8"))
	require.False(t, ok)
	_, ok = r.MatchSuffix("wp.localhost")
	require.True(t, ok)

	assert.Equal(t, beforeRange+1, testutil.ToFloat64(ranged))
	assert.Equal(t, beforeSuffix+1, testutil.ToFloat64(suffix))
}

// BenchmarkManagerCheck looks up site addresses against a URL-format
// report list of 20k installs plus a small allowlist, the shape of a
// typical operator deployment.
func BenchmarkManagerCheck(b *testing.B) {
	dir := b.TempDir()

	var reported strings.Builder
	for i := 0; i < 20000; i++ {
		fmt.Fprintf(&reported, "http://%d.%d.%d.%d/wp-login.php\n", 1+(i*7)%222, (i*13)%256, (i*17)%256, 1+(i*23)%254)
	}
	require.NoError(b, os.WriteFile(filepath.Join(dir, "reported.txt"), []byte(reported.String()), 0o644))
	require.NoError(b, os.WriteFile(filepath.Join(dir, "office.txt"), []byte("203.0.113.0/24\n"), 0o644))

	m, err := ParseDirectives([]string{
		"file reported.txt format=url",
		"file office.txt type=allow",
	}, dir)
	require.NoError(b, err)
	defer m.Close()

	hit := netip.AddrFrom4([4]byte{1, 0, 0, 1})
	miss := netip.MustParseAddr("93.184.216.34")

	b.Run("reported", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			m.Check(hit)
		}
	})

	b.Run("public", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			m.Check(miss)
		}
	})
}
