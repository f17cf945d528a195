package compat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/ipshipyard/sitecheck/version"
)

const (
	defaultTimeout = 15 * time.Second
	// maxBodySize bounds how much of any response is read.
	maxBodySize = 4 << 20
	// restRouteParam carries the route on sites without pretty permalinks,
	// e.g. https://example.com/index.php?rest_route=
	restRouteParam = "rest_route"
)

// StatusError is returned by SiteClient when the site answers with a
// non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code: %d", e.URL, e.StatusCode)
}

// SiteClient talks to the site under test: its public home page and the
// plugin's REST routes.
type SiteClient struct {
	home      *url.URL
	restRoot  *url.URL
	http      *http.Client
	username  string
	password  string
	userAgent string
}

// SiteClientOption configures a SiteClient.
type SiteClientOption func(*SiteClient) error

// WithRESTRoot sets the REST API root. Defaults to <home>/wp-json.
func WithRESTRoot(root string) SiteClientOption {
	return func(c *SiteClient) error {
		u, err := url.Parse(root)
		if err != nil {
			return fmt.Errorf("invalid REST root: %w", err)
		}
		c.restRoot = u
		return nil
	}
}

// WithBasicAuth authenticates REST calls, typically with an application password.
func WithBasicAuth(username, password string) SiteClientOption {
	return func(c *SiteClient) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithHTTPClient replaces the default pooled client.
func WithHTTPClient(h *http.Client) SiteClientOption {
	return func(c *SiteClient) error {
		c.http = h
		return nil
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) SiteClientOption {
	return func(c *SiteClient) error {
		c.userAgent = ua
		return nil
	}
}

// NewSiteClient returns a client for the site at homeURL.
func NewSiteClient(homeURL string, opts ...SiteClientOption) (*SiteClient, error) {
	home, err := url.Parse(homeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid home URL: %w", err)
	}
	if (home.Scheme != "http" && home.Scheme != "https") || home.Host == "" {
		return nil, fmt.Errorf("invalid home URL %q: must be an absolute http(s) URL", homeURL)
	}

	c := &SiteClient{home: home}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.restRoot == nil {
		c.restRoot = home.JoinPath("wp-json")
	}
	if c.http == nil {
		c.http = cleanhttp.DefaultPooledClient()
		c.http.Timeout = defaultTimeout
	}
	if c.userAgent == "" {
		c.userAgent = version.UserAgent()
	}
	return c, nil
}

// HomeURL returns a copy of the site home URL.
func (c *SiteClient) HomeURL() *url.URL {
	u := *c.home
	return &u
}

func (c *SiteClient) restURL(route string) string {
	q := c.restRoot.Query()
	if !q.Has(restRouteParam) {
		return c.restRoot.JoinPath(strings.Split(route, "/")...).String()
	}
	u := *c.restRoot
	q.Set(restRouteParam, "/"+route)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *SiteClient) do(req *http.Request, rest bool) ([]byte, error) {
	req.Header.Set("User-Agent", c.userAgent)
	if rest && c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode}
	}
	return body, nil
}

// GetJSON fetches a REST route and decodes the JSON response into v.
func (c *SiteClient) GetJSON(ctx context.Context, route string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restURL(route), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	body, err := c.do(req, true)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// PostJSON sends in as JSON to a REST route and decodes the response into out.
func (c *SiteClient) PostJSON(ctx context.Context, route string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.restURL(route), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	body, err := c.do(req, true)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// FetchHome fetches the public home page with the given extra query parameters.
// No credentials are sent: the page must look the way an anonymous visitor sees it.
func (c *SiteClient) FetchHome(ctx context.Context, query url.Values) ([]byte, error) {
	u := c.HomeURL()
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, false)
}
