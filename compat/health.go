package compat

import (
	"context"
	"errors"
)

const healthChecksRoute = "google-site-kit/v1/core/site/data/health-checks"

type healthChecksResponse struct {
	Checks struct {
		GoogleAPI struct {
			Pass bool `json:"pass"`
		} `json:"googleAPI"`
		SKService struct {
			Pass bool `json:"pass"`
		} `json:"skService"`
	} `json:"checks"`
}

// HealthCheck asks the site whether it can reach the Google APIs and the
// Site Kit service from the server side.
type HealthCheck struct {
	Client *SiteClient
}

func (c *HealthCheck) Name() string { return "health_checks" }

func (c *HealthCheck) Run(ctx context.Context) error {
	var resp healthChecksResponse
	if err := c.Client.GetJSON(ctx, healthChecksRoute, &resp); err != nil {
		var se *StatusError
		if errors.As(err, &se) || isDecodeError(err) {
			return newError(CodeGoogleAPIConnectionFail, "health check request failed", err)
		}
		return newError(CodeFetchFailed, "health check request failed", err)
	}
	if !resp.Checks.GoogleAPI.Pass {
		return newError(CodeGoogleAPIConnectionFail, "site cannot reach Google APIs", nil)
	}
	if !resp.Checks.SKService.Pass {
		return newError(CodeSKServiceConnectionFail, "site cannot reach the Site Kit service", nil)
	}
	return nil
}
