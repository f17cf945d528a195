// Package cache stores compatibility reports in a go-datastore so that
// repeated requests for the same site do not re-run network probes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multibase"

	"github.com/ipshipyard/sitecheck/compat"
)

var log = logging.Logger("sitecheck/cache")

// DefaultTTL is used when New is given a non-positive TTL.
const DefaultTTL = 10 * time.Minute

const keyPrefix = "/report/"

type entry struct {
	Report  compat.Report `json:"report"`
	Expires time.Time     `json:"expires"`
}

// Cache maps a site to its latest report until the report expires.
type Cache struct {
	ds  datastore.Datastore
	ttl time.Duration
	now func() time.Time
}

// New returns a Cache backed by ds.
func New(ds datastore.Datastore, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ds: ds, ttl: ttl, now: time.Now}
}

// TTL returns how long stored reports stay valid.
func (c *Cache) TTL() time.Duration { return c.ttl }

// siteKey encodes site as a single key segment. Site URLs contain slashes,
// which datastore keys treat as namespace separators.
func siteKey(site string) (datastore.Key, error) {
	enc, err := multibase.Encode(multibase.Base32, []byte(site))
	if err != nil {
		return datastore.Key{}, err
	}
	return datastore.NewKey(keyPrefix + enc), nil
}

// Get returns the cached report for site. The boolean is false when nothing
// is stored or the stored report has expired.
func (c *Cache) Get(ctx context.Context, site string) (compat.Report, bool, error) {
	key, err := siteKey(site)
	if err != nil {
		return compat.Report{}, false, err
	}
	val, err := c.ds.Get(ctx, key)
	if errors.Is(err, datastore.ErrNotFound) {
		return compat.Report{}, false, nil
	}
	if err != nil {
		return compat.Report{}, false, fmt.Errorf("cache get %s: %w", site, err)
	}

	var e entry
	if err := json.Unmarshal(val, &e); err != nil {
		log.Warnf("dropping undecodable cache entry for %s: %v", site, err)
		_ = c.ds.Delete(ctx, key)
		return compat.Report{}, false, nil
	}
	if !c.now().Before(e.Expires) {
		log.Debugf("cache entry for %s expired at %s", site, e.Expires)
		return compat.Report{}, false, nil
	}
	return e.Report, true, nil
}

// Put stores report for site. Backends that support TTLs also expire the
// key themselves.
func (c *Cache) Put(ctx context.Context, site string, report compat.Report) error {
	key, err := siteKey(site)
	if err != nil {
		return err
	}
	val, err := json.Marshal(entry{Report: report, Expires: c.now().Add(c.ttl)})
	if err != nil {
		return err
	}

	if ttlds, ok := c.ds.(datastore.TTL); ok {
		err = ttlds.PutWithTTL(ctx, key, val, c.ttl)
	} else {
		err = c.ds.Put(ctx, key, val)
	}
	if err != nil {
		return fmt.Errorf("cache put %s: %w", site, err)
	}
	return nil
}

// Close closes the underlying datastore.
func (c *Cache) Close() error {
	return c.ds.Close()
}
