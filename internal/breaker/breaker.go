// Package breaker derives each worker's healthy/circuitOpen flags from
// probe and forward outcomes. Probe and forward successes are
// equivalent inputs, as are both failure kinds. Recovery uses a single
// mechanism: a timer clears circuitOpen, and a subsequent success
// restores healthy.
package breaker

import (
	"sync"
	"time"

	"dispatcher/internal/registry"
)

// Tracker manages circuit transitions for every worker in a registry.
type Tracker struct {
	reg *registry.Registry

	mu      sync.Mutex
	timers  map[*registry.Worker]*time.Timer
}

// New creates a Tracker bound to a registry.
func New(reg *registry.Registry) *Tracker {
	return &Tracker{
		reg:    reg,
		timers: make(map[*registry.Worker]*time.Timer),
	}
}

// Success records a success outcome (ProbeOk or ForwardOk). Any state
// plus success transitions to Closed/Healthy: consecFailures resets to
// zero and circuitOpen clears.
func (t *Tracker) Success(w *registry.Worker) {
	registry.ResetConsecFailures(w)
	t.cancelTimer(w)
	t.reg.SetHealthState(w, true, false)
}

// Failure records a failure outcome (ProbeFail or ForwardFail). If
// consecutive failures reach the registry's circuit threshold, the
// worker trips into Open: healthy=false, circuitOpen=true, and (if
// CircuitRecovery > 0) a timer is armed to clear circuitOpen once it
// elapses.
func (t *Tracker) Failure(w *registry.Worker) {
	failures := registry.IncConsecFailures(w)
	if int(failures) < t.reg.CircuitThreshold {
		return
	}
	t.reg.SetHealthState(w, false, true)
	t.armRecoveryTimer(w)
}

// armRecoveryTimer schedules the sticky-open worker's circuit to clear
// after CircuitRecovery elapses. Clearing circuitOpen does not by
// itself mark the worker healthy again — healthy stays false (so the
// worker remains ineligible, per the enabled∧healthy∧¬circuitOpen
// invariant) until the tracker observes an actual success via a
// subsequent probe or forward.
func (t *Tracker) armRecoveryTimer(w *registry.Worker) {
	if t.reg.CircuitRecovery <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.timers[w]; exists {
		return
	}
	t.timers[w] = time.AfterFunc(t.reg.CircuitRecovery, func() {
		registry.ResetConsecFailures(w)
		t.reg.SetHealthState(w, false, false)
		t.mu.Lock()
		delete(t.timers, w)
		t.mu.Unlock()
	})
}

func (t *Tracker) cancelTimer(w *registry.Worker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, exists := t.timers[w]; exists {
		timer.Stop()
		delete(t.timers, w)
	}
}
