package compat

import (
	"context"
	"fmt"
	"strings"

	gvers "github.com/hashicorp/go-version"
)

// MinWordPressVersion is the oldest supported WordPress release.
var MinWordPressVersion = gvers.Must(gvers.NewVersion("5.0"))

// WPVersionCheck fails sites running WordPress older than MinWordPressVersion.
// When Version is empty it is read from the home page generator tag. Sites
// that hide the generator tag pass with a warning.
type WPVersionCheck struct {
	Version string
	Client  *SiteClient
}

func (c *WPVersionCheck) Name() string { return "wp_version" }

func (c *WPVersionCheck) Run(ctx context.Context) error {
	raw := c.Version
	if raw == "" && c.Client != nil {
		detected, err := detectWordPressVersion(ctx, c.Client)
		if err != nil {
			return newError(CodeFetchFailed, "reading WordPress version", err)
		}
		raw = detected
	}
	if raw == "" {
		log.Warnf("WordPress version unknown, skipping version floor check")
		return nil
	}

	v, err := gvers.NewVersion(raw)
	if err != nil {
		log.Warnf("unparseable WordPress version %q, skipping version floor check: %v", raw, err)
		return nil
	}
	// Pre-releases of a supported major (5.0-beta1) count as supported.
	if v.Core().LessThan(MinWordPressVersion) {
		return newError(CodeWPPreV5, fmt.Sprintf("WordPress %s is older than %s", raw, MinWordPressVersion.Original()), nil)
	}
	return nil
}

// detectWordPressVersion parses <meta name="generator" content="WordPress 6.4.2">.
func detectWordPressVersion(ctx context.Context, client *SiteClient) (string, error) {
	page, err := client.FetchHome(ctx, nil)
	if err != nil {
		return "", err
	}
	generators, err := metaContents(page, "generator")
	if err != nil {
		return "", err
	}
	for _, g := range generators {
		if v, ok := strings.CutPrefix(g, "WordPress "); ok {
			return strings.TrimSpace(v), nil
		}
	}
	return "", nil
}
