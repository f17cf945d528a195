package compat

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Result is the outcome of one check.
type Result struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Code     Code          `json:"code,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Report is the outcome of a Runner pass. Results holds every check that
// ran; checks after the first failure are not run.
type Report struct {
	Site      string    `json:"site"`
	CheckedAt time.Time `json:"checked_at"`
	Results   []Result  `json:"results"`
	Code      Code      `json:"code,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Compatible reports whether every check passed.
func (r Report) Compatible() bool { return r.Code == "" }

// Err returns the first failure as an *Error, or nil.
func (r Report) Err() error {
	if r.Code == "" {
		return nil
	}
	return &Error{Code: r.Code, Reason: r.Reason}
}

// Runner evaluates checks in a fixed order and stops at the first failure.
type Runner struct {
	site   string
	checks []Check
	log    *zap.SugaredLogger
	now    func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger replaces the package logger.
func WithLogger(l *zap.SugaredLogger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// WithSite labels reports with the site they describe.
func WithSite(site string) RunnerOption {
	return func(r *Runner) { r.site = site }
}

// withClock is for tests.
func withClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner returns a Runner for checks, evaluated in the given order.
func NewRunner(checks []Check, opts ...RunnerOption) *Runner {
	r := &Runner{
		checks: checks,
		log:    log.Desugar().Sugar().Named("runner"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	initMetrics()
	return r
}

// Site returns the label given with WithSite.
func (r *Runner) Site() string { return r.site }

// Checks returns the names of the configured checks in evaluation order.
func (r *Runner) Checks() []string {
	names := make([]string, 0, len(r.checks))
	for _, c := range r.checks {
		names = append(names, c.Name())
	}
	return names
}

// Run evaluates the checks. Errors that do not carry a Code, including
// context cancellation, are reported as CodeFetchFailed.
func (r *Runner) Run(ctx context.Context) Report {
	report := Report{
		Site:      r.site,
		CheckedAt: r.now(),
		Results:   make([]Result, 0, len(r.checks)),
	}

	for _, c := range r.checks {
		name := c.Name()
		start := r.now()

		var err error
		if err = ctx.Err(); err == nil {
			err = c.Run(ctx)
		}
		res := Result{Name: name, Passed: err == nil, Duration: r.now().Sub(start)}
		observeCheck(name, res.Duration, err)

		if err == nil {
			r.log.Debugw("check passed", "check", name, "duration", res.Duration)
			report.Results = append(report.Results, res)
			continue
		}

		var ce *Error
		if !errors.As(err, &ce) {
			ce = newError(CodeFetchFailed, "", err)
		}
		res.Code = ce.Code
		res.Reason = ce.Error()
		report.Results = append(report.Results, res)
		report.Code = ce.Code
		report.Reason = res.Reason
		r.log.Infow("check failed", "check", name, "code", ce.Code, "error", err)
		return report
	}
	return report
}
