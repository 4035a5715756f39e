package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T, robotsBody string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if hits != nil {
			hits.Add(1)
		}
		_, _ = w.Write([]byte(robotsBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIsAllowedHonorsDisallow(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, "User-agent: *\nDisallow: /private/\n", nil)
	gate := NewGate(Config{UserAgent: "TestBot/1.0"}, zaptest.NewLogger(t))

	ctx := context.Background()
	require.True(t, gate.IsAllowed(ctx, srv.URL+"/public/page"))
	require.False(t, gate.IsAllowed(ctx, srv.URL+"/private/secret"))
	require.True(t, gate.IsAllowed(ctx, srv.URL))
}

func TestIsAllowedPerAgentGroup(t *testing.T) {
	t.Parallel()

	body := "User-agent: TestBot\nDisallow: /\n\nUser-agent: *\nDisallow:\n"
	srv := newTestServer(t, body, nil)

	blocked := NewGate(Config{UserAgent: "TestBot/1.0"}, zaptest.NewLogger(t))
	require.False(t, blocked.IsAllowed(context.Background(), srv.URL+"/anything"))

	other := NewGate(Config{UserAgent: "OtherBot/1.0"}, zaptest.NewLogger(t))
	require.True(t, other.IsAllowed(context.Background(), srv.URL+"/anything"))
}

func TestIsAllowedFailsOpenOnFetchError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // unreachable origin

	gate := NewGate(Config{UserAgent: "TestBot/1.0", Timeout: time.Second}, zaptest.NewLogger(t))
	require.True(t, gate.IsAllowed(context.Background(), srv.URL+"/page"))
}

func TestIsAllowedMissingRobotsAllows(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	gate := NewGate(Config{UserAgent: "TestBot/1.0"}, zaptest.NewLogger(t))
	require.True(t, gate.IsAllowed(context.Background(), srv.URL+"/page"))
}

func TestIsAllowedRejectsMalformedURL(t *testing.T) {
	t.Parallel()

	gate := NewGate(Config{UserAgent: "TestBot/1.0"}, zaptest.NewLogger(t))
	require.False(t, gate.IsAllowed(context.Background(), "not a url"))
	require.False(t, gate.IsAllowed(context.Background(), "/relative"))
}

func TestFetchOncePerOrigin(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newTestServer(t, "User-agent: *\nDisallow: /private/\n", &hits)
	gate := NewGate(Config{UserAgent: "TestBot/1.0"}, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gate.IsAllowed(context.Background(), srv.URL+"/page")
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), hits.Load())

	// Cached after the burst too.
	gate.IsAllowed(context.Background(), srv.URL+"/other")
	require.Equal(t, int64(1), hits.Load())
}

func TestCacheTTLExpiry(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newTestServer(t, "User-agent: *\nDisallow:\n", &hits)
	gate := NewGate(Config{UserAgent: "TestBot/1.0", TTL: 10 * time.Millisecond}, zaptest.NewLogger(t))

	gate.IsAllowed(context.Background(), srv.URL+"/a")
	require.Equal(t, int64(1), hits.Load())

	time.Sleep(30 * time.Millisecond)
	gate.IsAllowed(context.Background(), srv.URL+"/a")
	require.Equal(t, int64(2), hits.Load())
}

func TestAllowAll(t *testing.T) {
	t.Parallel()

	require.True(t, AllowAll{}.IsAllowed(context.Background(), "anything"))
}
