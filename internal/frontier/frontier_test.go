package frontier

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushPopFIFO(t *testing.T) {
	t.Parallel()

	f := New(2, false, nil)
	require.True(t, f.Push("https://example.com/a", 0, ""))
	require.True(t, f.Push("https://example.com/b", 0, ""))
	require.True(t, f.Push("https://example.com/c", 1, "https://example.com/a"))

	first, ok := f.Pop()
	require.True(t, ok)
	require.Equal(t, "https://example.com/a", first.Normalized)
	require.Equal(t, 0, first.Discovered)

	second, ok := f.Pop()
	require.True(t, ok)
	require.Equal(t, "https://example.com/b", second.Normalized)

	third, ok := f.Pop()
	require.True(t, ok)
	require.Equal(t, "https://example.com/c", third.Normalized)
	require.Equal(t, 1, third.Depth)
	require.Equal(t, "https://example.com/a", third.Parent)

	_, ok = f.Pop()
	require.False(t, ok)
}

func TestPushDeduplicatesEquivalentForms(t *testing.T) {
	t.Parallel()

	f := New(1, false, nil)
	require.True(t, f.Push("https://Example.com/docs/", 0, ""))
	require.False(t, f.Push("https://example.com:443/docs", 0, ""))
	require.False(t, f.Push("https://example.com/docs#intro", 1, "https://example.com"))
	require.Equal(t, 1, f.Len())
	require.Equal(t, 1, f.SeenCount())
}

func TestPushDedupSurvivesPop(t *testing.T) {
	t.Parallel()

	f := New(2, false, nil)
	require.True(t, f.Push("https://example.com/a", 0, ""))
	_, ok := f.Pop()
	require.True(t, ok)

	// Already fetched; never re-admitted.
	require.False(t, f.Push("https://example.com/a", 1, "https://example.com/b"))
}

func TestPushRespectsDepthBound(t *testing.T) {
	t.Parallel()

	f := New(1, false, nil)
	require.True(t, f.Push("https://example.com/a", 1, ""))
	require.False(t, f.Push("https://example.com/b", 2, ""))
}

func TestPushSameHostPolicy(t *testing.T) {
	t.Parallel()

	f := New(2, true, []string{"example.com"})
	require.True(t, f.Push("https://example.com/a", 0, ""))
	require.False(t, f.Push("https://other.com/x", 1, "https://example.com/a"))

	open := New(2, false, []string{"example.com"})
	require.True(t, open.Push("https://other.com/x", 1, ""))
}

func TestPushRejectsMalformed(t *testing.T) {
	t.Parallel()

	f := New(2, false, nil)
	require.False(t, f.Push("not a url", 0, ""))
	require.False(t, f.Push("/relative", 0, ""))
}

func TestDrain(t *testing.T) {
	t.Parallel()

	f := New(2, false, nil)
	for i := 0; i < 5; i++ {
		require.True(t, f.Push(fmt.Sprintf("https://example.com/p%d", i), 0, ""))
	}
	f.Drain()
	require.Equal(t, 0, f.Len())
	// seen set survives so drained URLs stay deduplicated
	require.Equal(t, 5, f.SeenCount())
	require.False(t, f.Push("https://example.com/p0", 0, ""))
}
