// Package selector implements the four worker-selection strategies
// over a consistent registry.Candidates() snapshot.
package selector

import (
	"errors"
	"math/rand"

	"dispatcher/internal/registry"
)

// ErrNoneAvailable is returned when no worker is eligible for
// selection.
var ErrNoneAvailable = errors.New("no healthy workers available")

// Selector picks one eligible worker according to the registry's
// current algorithm. It is pure with respect to the snapshot it reads
// except for round-robin, which advances the registry's cursor.
type Selector struct {
	reg *registry.Registry
}

// New creates a Selector bound to a registry.
func New(reg *registry.Registry) *Selector {
	return &Selector{reg: reg}
}

// Select returns a worker chosen by the registry's active algorithm,
// or ErrNoneAvailable if none is eligible.
func (s *Selector) Select() (*registry.Worker, error) {
	candidates := s.reg.Candidates()

	switch s.reg.Algorithm() {
	case registry.LeastConnections:
		return leastConnections(candidates)
	case registry.Weighted:
		return weighted(candidates)
	case registry.Random:
		return random(candidates)
	default:
		return roundRobin(candidates, s.reg.NextRoundRobinCursor())
	}
}

func eligibleCount(cs []registry.Candidate) int {
	n := 0
	for _, c := range cs {
		if c.Eligible {
			n++
		}
	}
	return n
}

func roundRobin(cs []registry.Candidate, cursor uint64) (*registry.Worker, error) {
	n := uint64(len(cs))
	if n == 0 {
		return nil, ErrNoneAvailable
	}
	start := cursor % n
	for i := uint64(0); i < n; i++ {
		c := cs[(start+i)%n]
		if c.Eligible {
			return c.Worker, nil
		}
	}
	return nil, ErrNoneAvailable
}

func leastConnections(cs []registry.Candidate) (*registry.Worker, error) {
	var chosen *registry.Worker
	var minLoad int64
	found := false
	for _, c := range cs {
		if !c.Eligible {
			continue
		}
		load := registry.CurrentLoad(c.Worker)
		if !found || load < minLoad {
			minLoad = load
			chosen = c.Worker
			found = true
		}
	}
	if !found {
		return nil, ErrNoneAvailable
	}
	return chosen, nil
}

func weighted(cs []registry.Candidate) (*registry.Worker, error) {
	if eligibleCount(cs) == 0 {
		return nil, ErrNoneAvailable
	}

	var total int64
	for _, c := range cs {
		if c.Eligible && c.Weight > 0 {
			total += c.Weight
		}
	}

	if total == 0 {
		// All eligible workers report zero weight: fall back to the
		// first eligible worker (fixed by spec, not left to chance).
		for _, c := range cs {
			if c.Eligible {
				return c.Worker, nil
			}
		}
		return nil, ErrNoneAvailable
	}

	r := rand.Int63n(total)
	for _, c := range cs {
		if !c.Eligible || c.Weight <= 0 {
			continue
		}
		r -= c.Weight
		if r < 0 {
			return c.Worker, nil
		}
	}
	return nil, ErrNoneAvailable
}

func random(cs []registry.Candidate) (*registry.Worker, error) {
	n := eligibleCount(cs)
	if n == 0 {
		return nil, ErrNoneAvailable
	}
	r := rand.Intn(n)
	i := 0
	for _, c := range cs {
		if !c.Eligible {
			continue
		}
		if i == r {
			return c.Worker, nil
		}
		i++
	}
	return nil, ErrNoneAvailable
}
