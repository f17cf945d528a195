// Package compat implements the compatibility gates a site must pass before
// it can be connected to external Google services, and a Runner that
// evaluates them in order.
//
// The hostname gate is a pure function of its inputs and the reserved
// address lists. The other gates probe the site or third-party endpoints
// over the network.
package compat

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("sitecheck/compat")

// Check is a single compatibility gate.
type Check interface {
	// Name identifies the check in reports, logs and metrics.
	Name() string
	// Run returns nil when the site passes, or an error carrying a Code.
	Run(ctx context.Context) error
}
