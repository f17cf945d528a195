// Package config loads sitecheck settings from the environment and builds
// the components they describe.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ipshipyard/sitecheck/cache"
	"github.com/ipshipyard/sitecheck/compat"
	"github.com/ipshipyard/sitecheck/denylist"
)

var log = logging.Logger("sitecheck/config")

// Prefix is prepended to every variable name, e.g. SITECHECK_HOME_URL.
const Prefix = "SITECHECK"

type Config struct {
	HomeURL     string `envconfig:"HOME_URL"`
	RESTRoot    string `envconfig:"REST_ROOT"`
	Username    string `envconfig:"USERNAME"`
	AppPassword string `envconfig:"APP_PASSWORD"`
	WPVersion   string `envconfig:"WP_VERSION"`

	AMPEnabled bool   `envconfig:"AMP_ENABLED" default:"false"`
	AMPCDNURL  string `envconfig:"AMP_CDN_URL" default:"https://cdn.ampproject.org/v0.js"`
	SetupTag   bool   `envconfig:"SETUP_TAG" default:"true"`
	Resolver   string `envconfig:"RESOLVER"`

	// Lists holds denylist directives separated by semicolons, e.g.
	// "file allow.txt type=allow; feed https://host/drop.txt format=ip".
	Lists    string `envconfig:"LISTS"`
	ListsDir string `envconfig:"LISTS_DIR" default:"."`
	// ClientLists uses the same syntax as Lists and restricts which client
	// addresses may call the HTTP API.
	ClientLists string `envconfig:"CLIENT_LISTS"`

	Cache    string        `envconfig:"CACHE" default:"memory"`
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"10m"`

	ListenAddr string        `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8080"`
	Timeout    time.Duration `envconfig:"TIMEOUT" default:"15s"`
}

// Load reads optional .env files (default: .env in the working directory)
// and then processes SITECHECK_* variables. Variables already set in the
// environment win over the files.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("ignoring .env file: %v", err)
	}
	return FromEnv()
}

// FromEnv processes SITECHECK_* variables without touching .env files.
func FromEnv() (*Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListDirectives splits Lists into individual directives.
func (c *Config) ListDirectives() []string {
	return splitDirectives(c.Lists)
}

func splitDirectives(s string) []string {
	var out []string
	for _, d := range strings.Split(s, ";") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// OpenLists starts the configured operator lists. It returns nil when none
// are configured; a nil Manager is valid.
func (c *Config) OpenLists() (*denylist.Manager, error) {
	return denylist.ParseDirectives(c.ListDirectives(), c.ListsDir)
}

// OpenClientLists starts the lists guarding the HTTP API.
func (c *Config) OpenClientLists() (*denylist.Manager, error) {
	return denylist.ParseDirectives(splitDirectives(c.ClientLists), c.ListsDir)
}

// OpenCache opens the configured report cache.
func (c *Config) OpenCache() (*cache.Cache, error) {
	return cache.Open(c.Cache, c.CacheTTL)
}

// SiteClient returns a client for HomeURL.
func (c *Config) SiteClient() (*compat.SiteClient, error) {
	if c.HomeURL == "" {
		return nil, fmt.Errorf("%s_HOME_URL is not set", Prefix)
	}
	opts := []compat.SiteClientOption{}
	if c.Timeout > 0 {
		h := cleanhttp.DefaultPooledClient()
		h.Timeout = c.Timeout
		opts = append(opts, compat.WithHTTPClient(h))
	}
	if c.RESTRoot != "" {
		opts = append(opts, compat.WithRESTRoot(c.RESTRoot))
	}
	if c.Username != "" {
		opts = append(opts, compat.WithBasicAuth(c.Username, c.AppPassword))
	}
	return compat.NewSiteClient(c.HomeURL, opts...)
}

// Checks returns the configured checks in evaluation order. The hostname
// gate always runs first.
func (c *Config) Checks(gate *compat.HostnameGate) ([]compat.Check, error) {
	client, err := c.SiteClient()
	if err != nil {
		return nil, err
	}
	home := client.HomeURL()

	checks := []compat.Check{&compat.HostnameCheck{Gate: gate, HomeURL: home}}
	if c.Resolver != "" {
		checks = append(checks, &compat.ResolveCheck{HomeURL: home, Resolver: c.Resolver, Gate: gate, Timeout: c.Timeout})
	}
	if c.SetupTag {
		checks = append(checks, &compat.SetupTagCheck{Client: client})
	}
	checks = append(checks, &compat.HealthCheck{Client: client})
	if c.AMPEnabled {
		checks = append(checks, &compat.AMPCDNCheck{URL: c.AMPCDNURL})
	}
	checks = append(checks, &compat.WPVersionCheck{Version: c.WPVersion, Client: client})
	return checks, nil
}

// Runner builds the full check pipeline for HomeURL.
func (c *Config) Runner(lists *denylist.Manager) (*compat.Runner, error) {
	gate := compat.NewHostnameGate(compat.WithLists(lists))
	checks, err := c.Checks(gate)
	if err != nil {
		return nil, err
	}
	return compat.NewRunner(checks, compat.WithSite(siteLabel(c.HomeURL))), nil
}

func siteLabel(home string) string {
	u, err := url.Parse(home)
	if err != nil {
		return home
	}
	return u.String()
}
