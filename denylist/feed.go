package denylist

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/ipshipyard/sitecheck/version"
)

const feedTimeout = 30 * time.Second

// feedList is an IP list fetched over HTTP and refreshed periodically.
type feedList struct {
	url      string
	name     string
	listType listType
	format   feedFormat
	refresh  time.Duration
	prefixes *prefixSet

	client       *http.Client
	lastModified string // Last-Modified header value
	lastUpdate   time.Time
	mu           sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// feedConfig holds configuration for an HTTP feed-based list.
type feedConfig struct {
	URL     string        // feed URL
	Name    string        // name for metrics (defaults to URL host and last path segment)
	Type    listType      // allow or deny (default: deny)
	Format  feedFormat    // ip or url
	Refresh time.Duration // refresh interval
}

// feedName derives a metrics-friendly name from a feed URL.
func feedName(u *url.URL) string {
	name := strings.TrimPrefix(u.Host, "www.")
	if p := strings.Trim(u.Path, "/"); p != "" {
		parts := strings.Split(p, "/")
		name = name + "-" + parts[len(parts)-1]
	}
	return name
}

// newFeedList starts a feed list. The first fetch happens in the background
// so a slow feed does not block startup; until it completes the list is empty.
func newFeedList(cfg feedConfig) (*feedList, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid feed URL %q: scheme must be http or https", cfg.URL)
	}

	name := cfg.Name
	if name == "" {
		name = feedName(u)
	}

	lt := cfg.Type
	if lt == "" {
		lt = listTypeDeny
	}

	format := cfg.Format
	if format == "" {
		format = formatIP
	}

	refresh := cfg.Refresh
	if refresh <= 0 {
		refresh = defaultFeedRefresh
	}

	client := cleanhttp.DefaultPooledClient()
	client.Timeout = feedTimeout

	ctx, cancel := context.WithCancel(context.Background())

	fl := &feedList{
		url:      cfg.URL,
		name:     name,
		listType: lt,
		format:   format,
		refresh:  refresh,
		prefixes: newPrefixSet(),
		client:   client,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go fl.refreshLoop()

	return fl, nil
}

// Update fetches the feed and replaces the prefix set.
// It returns the number of entries now loaded.
func (fl *feedList) Update(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fl.url, nil)
	if err != nil {
		return 0, err
	}

	fl.mu.RLock()
	lastMod := fl.lastModified
	fl.mu.RUnlock()
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := fl.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return fl.prefixes.size(), nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	prefixes, err := parse(fl.format, resp.Body)
	if err != nil {
		return 0, err
	}
	n := fl.prefixes.replace(prefixes)

	now := time.Now()
	fl.mu.Lock()
	fl.lastUpdate = now
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		fl.lastModified = lm
	}
	fl.mu.Unlock()

	observeLoad(fl.name, fl.listType, sourceFeed, n, now.Unix())

	return n, nil
}

func (fl *feedList) refreshLoop() {
	defer close(fl.done)

	if n, err := fl.Update(fl.ctx); err != nil {
		log.Warnf("list feed %s: initial fetch failed: %v (will retry in %v)", fl.name, err, fl.refresh)
	} else {
		log.Infof("list feed %s: loaded %d entries", fl.name, n)
	}

	ticker := time.NewTicker(fl.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-fl.ctx.Done():
			return
		case <-ticker.C:
			if n, err := fl.Update(fl.ctx); err != nil {
				log.Warnf("list feed %s: refresh failed: %v", fl.name, err)
			} else {
				log.Debugf("list feed %s: refreshed, %d entries", fl.name, n)
			}
		}
	}
}

// Check implements checker.
func (fl *feedList) Check(ip netip.Addr) CheckResult {
	if fl.prefixes.contains(ip) {
		return CheckResult{Matched: true, Name: fl.name}
	}
	return CheckResult{}
}

func (fl *feedList) Name() string   { return fl.name }
func (fl *feedList) Type() listType { return fl.listType }
func (fl *feedList) Size() int      { return fl.prefixes.size() }

// LastUpdate returns the time of the last successful fetch.
func (fl *feedList) LastUpdate() time.Time {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.lastUpdate
}

// Close stops the refresh loop and waits for it to exit.
func (fl *feedList) Close() error {
	fl.cancel()
	<-fl.done
	return nil
}
