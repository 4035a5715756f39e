package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.com/path?x=1", "example.com"},
		{"http://sub.example.com:8080/a", "sub.example.com"},
		{"example.com/page", "example.com"},
		{"", "unknown"},
		{"http://", "unknown"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, SanitizeSite(tt.in), "input %q", tt.in)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	t.Parallel()

	ObservePage("https://example.com/a", "ok", 0)
	ObserveJob("scrape", "completed")
	ObserveHTTPRequest("GET", 200)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "crawlconsole_pages_total")
	require.Contains(t, rec.Body.String(), "crawlconsole_jobs_total")
}
