// internal/registry/registry.go
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	RoundRobin        = "round-robin"
	LeastConnections  = "least-connections"
	Weighted          = "weighted"
	Random            = "random"
	DefaultAlgorithm  = RoundRobin
	DefaultThreshold  = 3
	DefaultRecoveryOf = 30 * time.Second
)

// AvailableAlgorithms lists the four known selection strategies, in the
// order reported by GET /algorithm.
var AvailableAlgorithms = []string{RoundRobin, LeastConnections, Weighted, Random}

func isKnownAlgorithm(name string) bool {
	for _, a := range AvailableAlgorithms {
		if a == name {
			return true
		}
	}
	return false
}

// Registry owns the ordered sequence of workers and the structural
// fields that govern selection. Structural mutations (algorithm,
// enabled, weight, health state) take the exclusive lock. The
// forwarding path's counter updates are atomic and take no lock, but
// selection takes the read lock, and each forward outcome that reaches
// SetHealthState (every success, and a failure that trips the circuit)
// takes the exclusive lock.
type Registry struct {
	mu      sync.RWMutex
	workers []*Worker
	algo    string

	roundRobinCursor uint64

	CircuitThreshold int
	CircuitRecovery  time.Duration
}

// New creates an empty Registry with the given circuit settings.
func New(circuitThreshold int, circuitRecovery time.Duration) *Registry {
	if circuitThreshold <= 0 {
		circuitThreshold = DefaultThreshold
	}
	if circuitRecovery <= 0 {
		circuitRecovery = DefaultRecoveryOf
	}
	return &Registry{
		algo:             DefaultAlgorithm,
		CircuitThreshold: circuitThreshold,
		CircuitRecovery:  circuitRecovery,
	}
}

// AddWorker appends a worker to the registry. Startup-only: there is
// no runtime add/remove.
func (r *Registry) AddWorker(name, url, color string, weight, maxLoad int64) *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := &Worker{
		Name:    name,
		URL:     url,
		Color:   color,
		Weight:  weight,
		MaxLoad: maxLoad,
		Enabled: true,
		Healthy: true,
	}
	r.workers = append(r.workers, w)
	return w
}

// Workers returns the live worker slice. Callers that only read
// structural fields should hold no additional lock beyond this call's
// RLock; callers that touch counters use the atomic helpers in
// concurrency.go directly on the returned pointers.
func (r *Registry) Workers() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Worker, len(r.workers))
	copy(out, r.workers)
	return out
}

// Candidate is a consistent, point-in-time view of one worker's
// selection-relevant fields, produced under a single read lock so a
// concurrent UpdateWorker or health transition can never be observed
// half-applied within one selection.
type Candidate struct {
	Worker   *Worker
	Weight   int64
	Eligible bool
}

// Candidates returns every registered worker's selection-relevant
// fields, snapshotted under one RLock, in registration order. This is
// the single consistent view every Selector strategy computes its
// eligible set from.
func (r *Registry) Candidates() []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Candidate, len(r.workers))
	for i, w := range r.workers {
		out[i] = Candidate{Worker: w, Weight: w.Weight, Eligible: w.Eligible()}
	}
	return out
}

// Find returns the worker with the given name, or nil.
func (r *Registry) Find(name string) *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.workers {
		if w.Name == name {
			return w
		}
	}
	return nil
}

// NextRoundRobinCursor atomically advances and returns the round-robin
// cursor.
func (r *Registry) NextRoundRobinCursor() uint64 {
	return atomic.AddUint64(&r.roundRobinCursor, 1)
}

// Algorithm returns the currently active selection strategy.
func (r *Registry) Algorithm() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.algo
}

// SetAlgorithm validates and switches the active strategy. A success
// return guarantees the next Select() call observes the new
// algorithm.
func (r *Registry) SetAlgorithm(name string) error {
	if !isKnownAlgorithm(name) {
		return fmt.Errorf("unknown algorithm %q", name)
	}
	r.mu.Lock()
	r.algo = name
	r.mu.Unlock()
	return nil
}

// UpdateWorker applies an enabled/weight patch. weight updates only
// when strictly positive; a non-positive value is ignored, preserving
// the previous weight. Returns false if no worker has that name.
func (r *Registry) UpdateWorker(name string, enabled *bool, weight *int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.workers {
		if w.Name != name {
			continue
		}
		if enabled != nil {
			w.Enabled = *enabled
		}
		if weight != nil && *weight > 0 {
			w.Weight = *weight
		}
		return true
	}
	return false
}

// SetHealthState sets healthy and circuitOpen together, a structural
// mutation performed by the breaker under the registry's lock, so a
// snapshot never observes a torn pair of (healthy, circuitOpen).
func (r *Registry) SetHealthState(w *Worker, healthy, circuitOpen bool) {
	r.mu.Lock()
	w.Healthy = healthy
	w.CircuitOpen = circuitOpen
	r.mu.Unlock()
}

// Snapshot returns an immutable value copy of the full dispatcher
// state, safe to serialize without further locking.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WorkerSnapshot, len(r.workers))
	for i, w := range r.workers {
		// Failures are counted after the matching total, so reading
		// failures first keeps failedRequests <= totalRequests.
		failed := atomic.LoadInt64(&w.FailedRequests)
		out[i] = WorkerSnapshot{
			Name:           w.Name,
			URL:            w.URL,
			Color:          w.Color,
			Weight:         w.Weight,
			MaxLoad:        w.MaxLoad,
			Healthy:        w.Healthy,
			CurrentLoad:    CurrentLoad(w),
			Enabled:        w.Enabled,
			TotalRequests:  atomic.LoadInt64(&w.TotalRequests),
			FailedRequests: failed,
			CircuitOpen:    w.CircuitOpen,
		}
	}
	return Snapshot{Algorithm: r.algo, Workers: out}
}
