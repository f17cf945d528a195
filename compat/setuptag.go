package compat

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"time"
)

const (
	setupTagRoute = "google-site-kit/v1/core/site/data/setup-tag"
	// SetupTagMetaName is the meta tag the plugin prints while a setup token is pending.
	SetupTagMetaName = "googlesitekit-setup"
)

type setupTagResponse struct {
	Token string `json:"token"`
}

// SetupTagCheck asks the site for a fresh setup token and verifies that the
// public home page prints it. A mismatch means visitors get a cached or
// proxied copy of the page, which breaks site verification.
type SetupTagCheck struct {
	Client *SiteClient
	// Now is used for the cache-busting query parameter. Defaults to time.Now.
	Now func() time.Time
}

func (c *SetupTagCheck) Name() string { return "setup_tag" }

func (c *SetupTagCheck) Run(ctx context.Context) error {
	var tag setupTagResponse
	if err := c.Client.PostJSON(ctx, setupTagRoute, struct{}{}, &tag); err != nil {
		return newError(CodeFetchFailed, "requesting setup token", err)
	}
	if tag.Token == "" {
		return newError(CodeFetchFailed, "site returned an empty setup token", nil)
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	query := url.Values{
		"tagverify": {"1"},
		"timestamp": {strconv.FormatInt(now().UnixMilli(), 10)},
	}
	page, err := c.Client.FetchHome(ctx, query)
	if err != nil {
		return newError(CodeFetchFailed, "fetching home page", err)
	}
	tokens, err := metaContents(page, SetupTagMetaName)
	if err != nil {
		return newError(CodeFetchFailed, "parsing home page", err)
	}
	if !slices.Contains(tokens, tag.Token) {
		return newError(CodeTokenMismatch, fmt.Sprintf("home page shows %d setup tag(s), none matching", len(tokens)), nil)
	}
	return nil
}
