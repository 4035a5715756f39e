package fetch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/M4YAVI/crawlconsole/internal/clock"
	"github.com/M4YAVI/crawlconsole/internal/crawl"
)

type stubRenderer struct {
	calls  atomic.Int64
	render func(attempt int64) (crawl.Page, error)
}

func (r *stubRenderer) Render(_ context.Context, _ string, _ crawl.RenderOptions) (crawl.Page, error) {
	return r.render(r.calls.Add(1))
}

type allowRobots struct{}

func (allowRobots) IsAllowed(context.Context, string) bool { return true }

type denyRobots struct{}

func (denyRobots) IsAllowed(context.Context, string) bool { return false }

type noWait struct{}

func (noWait) Wait(context.Context, string) (time.Duration, error) { return 0, nil }

func newTestFetcher(t *testing.T, renderer crawl.Renderer, robots RobotsGate) *Fetcher {
	t.Helper()
	retry := crawl.NewExponentialRetryPolicy(3, time.Millisecond, 5*time.Millisecond)
	return New(renderer, nil, robots, noWait{}, retry,
		&clock.Fixed{T: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		Config{RequestTimeout: time.Second, RespectRobots: true},
		zaptest.NewLogger(t))
}

func TestFetchOK(t *testing.T) {
	t.Parallel()

	renderer := &stubRenderer{render: func(int64) (crawl.Page, error) {
		return crawl.Page{StatusCode: 200, HTML: "<html>hi</html>"}, nil
	}}
	f := newTestFetcher(t, renderer, allowRobots{})

	outcome, err := f.Fetch(context.Background(), "https://example.com/a", 1, false)
	require.NoError(t, err)
	require.Equal(t, crawl.OutcomeOK, outcome.Status)
	require.Equal(t, 200, outcome.StatusCode)
	require.Equal(t, "<html>hi</html>", outcome.HTML)
	require.Equal(t, 1, outcome.Depth)
	require.Zero(t, outcome.Retries)
}

func TestFetchHTTPErrorNotRetried(t *testing.T) {
	t.Parallel()

	renderer := &stubRenderer{render: func(int64) (crawl.Page, error) {
		return crawl.Page{StatusCode: 503}, nil
	}}
	f := newTestFetcher(t, renderer, allowRobots{})

	outcome, err := f.Fetch(context.Background(), "https://example.com/a", 0, false)
	require.NoError(t, err)
	require.Equal(t, crawl.OutcomeHTTPError, outcome.Status)
	require.Equal(t, 503, outcome.StatusCode)
	require.Equal(t, "HTTP 503", outcome.Error)
	require.Equal(t, int64(1), renderer.calls.Load())
}

func TestFetchTimeoutRetriedThenFails(t *testing.T) {
	t.Parallel()

	renderer := &stubRenderer{render: func(int64) (crawl.Page, error) {
		return crawl.Page{}, context.DeadlineExceeded
	}}
	f := newTestFetcher(t, renderer, allowRobots{})

	outcome, err := f.Fetch(context.Background(), "https://example.com/slow", 0, false)
	require.NoError(t, err)
	require.Equal(t, crawl.OutcomeTimeout, outcome.Status)
	// initial attempt plus three retries
	require.Equal(t, int64(4), renderer.calls.Load())
	require.Equal(t, 3, outcome.Retries)
}

func TestFetchTimeoutThenRecovers(t *testing.T) {
	t.Parallel()

	renderer := &stubRenderer{render: func(attempt int64) (crawl.Page, error) {
		if attempt < 3 {
			return crawl.Page{}, context.DeadlineExceeded
		}
		return crawl.Page{StatusCode: 200, HTML: "ok"}, nil
	}}
	f := newTestFetcher(t, renderer, allowRobots{})

	outcome, err := f.Fetch(context.Background(), "https://example.com/flaky", 0, false)
	require.NoError(t, err)
	require.Equal(t, crawl.OutcomeOK, outcome.Status)
	require.Equal(t, 2, outcome.Retries)
}

func TestFetchBlockedByRobots(t *testing.T) {
	t.Parallel()

	renderer := &stubRenderer{render: func(int64) (crawl.Page, error) {
		t.Fatal("renderer must not be called for a blocked URL")
		return crawl.Page{}, nil
	}}
	f := newTestFetcher(t, renderer, denyRobots{})

	outcome, err := f.Fetch(context.Background(), "https://example.com/private", 0, false)
	require.NoError(t, err)
	require.Equal(t, crawl.OutcomeBlockedByRobots, outcome.Status)
	require.Zero(t, renderer.calls.Load())
}

func TestFetchRobotsIgnoredWhenDisabled(t *testing.T) {
	t.Parallel()

	renderer := &stubRenderer{render: func(int64) (crawl.Page, error) {
		return crawl.Page{StatusCode: 200, HTML: "ok"}, nil
	}}
	retry := crawl.NewExponentialRetryPolicy(0, time.Millisecond, time.Millisecond)
	f := New(renderer, nil, denyRobots{}, noWait{}, retry,
		clock.NewSystem(),
		Config{RequestTimeout: time.Second, RespectRobots: false},
		zaptest.NewLogger(t))

	outcome, err := f.Fetch(context.Background(), "https://example.com/private", 0, false)
	require.NoError(t, err)
	require.Equal(t, crawl.OutcomeOK, outcome.Status)
}

func TestFetchBrowserUnavailable(t *testing.T) {
	t.Parallel()

	renderer := &stubRenderer{render: func(int64) (crawl.Page, error) {
		return crawl.Page{StatusCode: 200}, nil
	}}
	f := newTestFetcher(t, renderer, allowRobots{})

	_, err := f.Fetch(context.Background(), "https://example.com/a", 0, true)
	require.ErrorIs(t, err, crawl.ErrRendererUnavailable)
}

func TestFetchMalformedURL(t *testing.T) {
	t.Parallel()

	renderer := &stubRenderer{render: func(int64) (crawl.Page, error) {
		return crawl.Page{StatusCode: 200}, nil
	}}
	f := newTestFetcher(t, renderer, allowRobots{})

	outcome, err := f.Fetch(context.Background(), "/no-host", 0, false)
	require.NoError(t, err)
	require.Equal(t, crawl.OutcomeRenderError, outcome.Status)
}
