package job

import (
	"sync"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
)

// Registry is the in-process index of coordinators, keyed by job ID. Entries
// stay resident after completion so status and results remain queryable until
// explicitly purged.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Coordinator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Coordinator)}
}

// Add registers a coordinator under its job ID.
func (r *Registry) Add(c *Coordinator) {
	r.mu.Lock()
	r.jobs[c.ID()] = c
	r.mu.Unlock()
}

// Get returns the coordinator for a job ID.
func (r *Registry) Get(jobID string) (*Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.jobs[jobID]
	return c, ok
}

// Purge removes a job from the registry. Purging a running job cancels it
// first. Returns false when the job ID is unknown.
func (r *Registry) Purge(jobID string) bool {
	r.mu.Lock()
	c, ok := r.jobs[jobID]
	if ok {
		delete(r.jobs, jobID)
	}
	r.mu.Unlock()
	if ok && !c.Status().Status.Terminal() {
		c.Cancel()
	}
	return ok
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Statuses returns a snapshot of every registered job in unspecified order.
func (r *Registry) Statuses() []crawl.JobResult {
	r.mu.RLock()
	coords := make([]*Coordinator, 0, len(r.jobs))
	for _, c := range r.jobs {
		coords = append(coords, c)
	}
	r.mu.RUnlock()

	out := make([]crawl.JobResult, 0, len(coords))
	for _, c := range coords {
		out = append(out, c.Status())
	}
	return out
}
