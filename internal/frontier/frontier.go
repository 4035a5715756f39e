// Package frontier implements the per-job BFS work queue with depth tracking
// and visited-URL deduplication.
package frontier

import (
	"sync"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
)

// Entry is one not-yet-fetched URL with its discovery metadata.
type Entry struct {
	URL        string
	Normalized string
	Depth      int
	Parent     string
	Discovered int
}

// Frontier is a FIFO queue of discovered URLs. Each normalized URL is
// admitted at most once per job; pushes beyond the depth bound or outside the
// seed hosts (when same-domain policy is active) are silently dropped.
// All methods are safe for concurrent use.
type Frontier struct {
	mu        sync.Mutex
	entries   []Entry
	seen      map[string]struct{}
	seedHosts map[string]struct{}
	maxDepth  int
	sameHost  bool
	nextSeq   int
}

// New creates a Frontier. seedHosts is consulted only when sameHost is true.
func New(maxDepth int, sameHost bool, seedHosts []string) *Frontier {
	hosts := make(map[string]struct{}, len(seedHosts))
	for _, h := range seedHosts {
		hosts[h] = struct{}{}
	}
	return &Frontier{
		seen:      make(map[string]struct{}),
		seedHosts: hosts,
		maxDepth:  maxDepth,
		sameHost:  sameHost,
	}
}

// Push enqueues a URL if it is new, within the depth bound, and inside the
// domain policy. Returns true when the entry was admitted.
func (f *Frontier) Push(rawURL string, depth int, parent string) bool {
	if depth > f.maxDepth {
		return false
	}
	normalized, err := crawl.NormalizeURL(rawURL)
	if err != nil {
		return false
	}
	if f.sameHost {
		if _, ok := f.seedHosts[crawl.Host(normalized)]; !ok {
			return false
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[normalized]; dup {
		return false
	}
	f.seen[normalized] = struct{}{}
	f.entries = append(f.entries, Entry{
		URL:        rawURL,
		Normalized: normalized,
		Depth:      depth,
		Parent:     parent,
		Discovered: f.nextSeq,
	})
	f.nextSeq++
	return true
}

// Pop removes and returns the oldest entry. The second return is false when
// the frontier is empty.
func (f *Frontier) Pop() (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return Entry{}, false
	}
	entry := f.entries[0]
	f.entries = f.entries[1:]
	return entry, true
}

// Len returns the number of queued entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// SeenCount returns the number of distinct normalized URLs ever admitted.
func (f *Frontier) SeenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// Drain discards all queued entries, used when a job hits its page ceiling.
func (f *Frontier) Drain() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = nil
}
