package compat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCheck struct {
	name  string
	err   error
	calls int
}

func (c *stubCheck) Name() string { return c.name }

func (c *stubCheck) Run(ctx context.Context) error {
	c.calls++
	return c.err
}

func fixedClock() func() time.Time {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func TestRunnerAllPass(t *testing.T) {
	a := &stubCheck{name: "a"}
	b := &stubCheck{name: "b"}
	r := NewRunner([]Check{a, b}, WithSite("https://example.com"), withClock(fixedClock()), WithLogger(zap.NewNop().Sugar()))

	assert.Equal(t, []string{"a", "b"}, r.Checks())
	assert.Equal(t, "https://example.com", r.Site())

	report := r.Run(context.Background())
	assert.True(t, report.Compatible())
	assert.NoError(t, report.Err())
	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		assert.True(t, res.Passed)
		assert.Empty(t, res.Code)
		assert.Equal(t, time.Millisecond, res.Duration)
	}
	assert.Equal(t, "https://example.com", report.Site)
}

func TestRunnerStopsAtFirstFailure(t *testing.T) {
	a := &stubCheck{name: "a"}
	b := &stubCheck{name: "b", err: newError(CodeTokenMismatch, "stale page", nil)}
	c := &stubCheck{name: "c", err: newError(CodeWPPreV5, "", nil)}

	report := NewRunner([]Check{a, b, c}).Run(context.Background())

	assert.False(t, report.Compatible())
	assert.Equal(t, CodeTokenMismatch, report.Code)
	assert.Equal(t, "setup_token_mismatch: stale page", report.Reason)
	assert.ErrorIs(t, report.Err(), ErrTokenMismatch)
	require.Len(t, report.Results, 2)
	assert.False(t, report.Results[1].Passed)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Zero(t, c.calls)
}

func TestRunnerUncodedError(t *testing.T) {
	check := &stubCheck{name: "flaky", err: errors.New("connection reset")}
	report := NewRunner([]Check{check}).Run(context.Background())

	assert.Equal(t, CodeFetchFailed, report.Code)
	assert.Contains(t, report.Reason, "connection reset")
}

func TestRunnerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	check := &stubCheck{name: "a"}
	report := NewRunner([]Check{check}).Run(ctx)

	assert.Equal(t, CodeFetchFailed, report.Code)
	assert.Zero(t, check.calls)
}

func TestRunnerHostnameFirst(t *testing.T) {
	u := mustParseURL(t, "http://192.168.1.5/")
	never := &stubCheck{name: "never"}
	report := NewRunner([]Check{&HostnameCheck{HomeURL: u}, never}).Run(context.Background())

	assert.Equal(t, CodeInvalidHostname, report.Code)
	assert.Zero(t, never.calls)
}

func TestRunnerEmpty(t *testing.T) {
	report := NewRunner(nil).Run(context.Background())
	assert.True(t, report.Compatible())
	assert.Empty(t, report.Results)
}
