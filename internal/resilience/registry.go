package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health is a point-in-time view of a remote dependency.
type Health struct {
	Name          string     `json:"name"`
	State         string     `json:"state"`
	Requests      uint32     `json:"requests"`
	Failures      uint32     `json:"failures"`
	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
}

// Healthy is true while the breaker is closed.
func (h Health) Healthy() bool {
	return h.State == gobreaker.StateClosed.String()
}

// Registry tracks the remote dependencies used by the service.
type Registry struct {
	mu   sync.RWMutex
	deps map[string]*dependency
}

type dependency struct {
	client      *Client
	lastSuccess *time.Time
	lastFailure *time.Time
	lastErr     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{deps: make(map[string]*dependency)}
}

// Register adds or replaces a dependency client.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deps[name] = &dependency{client: client}
}

// RecordSuccess marks a successful call.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deps[name]; ok {
		now := time.Now()
		d.lastSuccess = &now
	}
}

// RecordFailure marks a failed call.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deps[name]; ok {
		now := time.Now()
		d.lastFailure = &now
		if err != nil {
			d.lastErr = err.Error()
		}
	}
}

// Health returns the health of one dependency.
func (r *Registry) Health(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.deps[name]
	if !ok {
		return Health{}, false
	}
	return d.health(name), true
}

// All returns the health of every dependency, sorted by name.
func (r *Registry) All() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Health, 0, len(r.deps))
	for name, d := range r.deps {
		out = append(out, d.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *dependency) health(name string) Health {
	counts := d.client.Counts()
	return Health{
		Name:          name,
		State:         d.client.State().String(),
		Requests:      counts.Requests,
		Failures:      counts.TotalFailures,
		LastSuccessAt: d.lastSuccess,
		LastFailureAt: d.lastFailure,
		LastError:     d.lastErr,
	}
}
