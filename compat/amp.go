package compat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/ipshipyard/sitecheck/version"
)

// DefaultAMPCDNURL is the AMP runtime fetched by AMP pages.
const DefaultAMPCDNURL = "https://cdn.ampproject.org/v0.js"

// AMPCDNCheck verifies that the AMP runtime CDN is reachable. It only
// matters for sites serving AMP pages.
type AMPCDNCheck struct {
	URL    string       // defaults to DefaultAMPCDNURL
	Client *http.Client // defaults to a pooled client with a short timeout
}

func (c *AMPCDNCheck) Name() string { return "amp_cdn" }

func (c *AMPCDNCheck) Run(ctx context.Context) error {
	target := c.URL
	if target == "" {
		target = DefaultAMPCDNURL
	}
	client := c.Client
	if client == nil {
		client = cleanhttp.DefaultClient()
		client.Timeout = 10 * time.Second
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return newError(CodeAMPCDNRestricted, "invalid AMP CDN URL", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return newError(CodeAMPCDNRestricted, "AMP CDN unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode != http.StatusOK {
		return newError(CodeAMPCDNRestricted, fmt.Sprintf("AMP CDN answered %d", resp.StatusCode), nil)
	}
	return nil
}
