package selector

import (
	"testing"

	"dispatcher/internal/registry"
)

func newTestRegistry(weights ...int64) *registry.Registry {
	reg := registry.New(3, 0)
	for i, w := range weights {
		reg.AddWorker(string(rune('A'+i)), "http://example.invalid", "#000", w, 10)
	}
	return reg
}

func allHealthy(reg *registry.Registry) {
	for _, w := range reg.Workers() {
		reg.SetHealthState(w, true, false)
	}
}

func TestRoundRobin_FairOverWindow(t *testing.T) {
	reg := newTestRegistry(1, 1, 1)
	allHealthy(reg)
	sel := New(reg)

	counts := map[string]int{}
	for i := 0; i < 9; i++ {
		w, err := sel.Select()
		if err != nil {
			t.Fatalf("unexpected error on selection %d: %v", i, err)
		}
		counts[w.Name]++
	}

	for _, name := range []string{"A", "B", "C"} {
		if counts[name] != 3 {
			t.Fatalf("expected %s to be picked 3 times in 9 selections, got %d (counts=%v)", name, counts[name], counts)
		}
	}
}

func TestRoundRobin_SkipsIneligible(t *testing.T) {
	reg := newTestRegistry(1, 1, 1)
	allHealthy(reg)
	workers := reg.Workers()
	reg.SetHealthState(workers[1], false, false) // B unhealthy

	sel := New(reg)
	counts := map[string]int{}
	for i := 0; i < 6; i++ {
		w, err := sel.Select()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts[w.Name]++
	}
	if counts["B"] != 0 {
		t.Fatalf("expected B to never be selected while unhealthy, got %d", counts["B"])
	}
}

func TestSelect_NoneAvailable(t *testing.T) {
	reg := registry.New(3, 0)
	sel := New(reg)
	if _, err := sel.Select(); err != ErrNoneAvailable {
		t.Fatalf("expected ErrNoneAvailable, got %v", err)
	}
}

func TestLeastConnections_PicksMinimumLoad(t *testing.T) {
	reg := newTestRegistry(1, 1, 1)
	allHealthy(reg)
	workers := reg.Workers()
	registry.BeginForward(workers[0])
	registry.BeginForward(workers[0])
	registry.BeginForward(workers[1])

	sel := New(reg)
	reg.SetAlgorithm(registry.LeastConnections)
	w, err := sel.Select()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Name != "C" {
		t.Fatalf("expected C (load 0) to be chosen, got %s", w.Name)
	}
}

func TestWeighted_ZeroWeightFallsBackToFirstEligible(t *testing.T) {
	reg := newTestRegistry(0, 0, 0)
	allHealthy(reg)
	sel := New(reg)
	reg.SetAlgorithm(registry.Weighted)

	w, err := sel.Select()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Name != "A" {
		t.Fatalf("expected fallback to first eligible worker A, got %s", w.Name)
	}
}

func TestWeighted_ConvergesToRelativeWeights(t *testing.T) {
	reg := newTestRegistry(1, 3, 6)
	allHealthy(reg)
	sel := New(reg)
	reg.SetAlgorithm(registry.Weighted)

	counts := map[string]int{}
	const trials = 10000
	for i := 0; i < trials; i++ {
		w, err := sel.Select()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts[w.Name]++
	}

	checkWithin := func(name string, want float64) {
		got := float64(counts[name]) / float64(trials)
		if got < want-0.05 || got > want+0.05 {
			t.Fatalf("expected %s frequency near %.2f, got %.3f (counts=%v)", name, want, got, counts)
		}
	}
	checkWithin("A", 0.10)
	checkWithin("B", 0.30)
	checkWithin("C", 0.60)
}

func TestRandom_OnlyPicksEligible(t *testing.T) {
	reg := newTestRegistry(1, 1)
	allHealthy(reg)
	workers := reg.Workers()
	reg.SetHealthState(workers[1], false, false)

	sel := New(reg)
	reg.SetAlgorithm(registry.Random)
	for i := 0; i < 20; i++ {
		w, err := sel.Select()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w.Name != "A" {
			t.Fatalf("expected only A to be selected, got %s", w.Name)
		}
	}
}

func TestAlgorithmSwitch_TakesEffectNextSelection(t *testing.T) {
	reg := newTestRegistry(1, 1)
	allHealthy(reg)
	// B carries load, so least-connections picks A, while round-robin's
	// first pick (cursor 1) would be B.
	registry.BeginForward(reg.Workers()[1])
	sel := New(reg)

	if err := reg.SetAlgorithm(registry.LeastConnections); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Algorithm() != registry.LeastConnections {
		t.Fatalf("expected algorithm to switch immediately")
	}
	w, err := sel.Select()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Name != "A" {
		t.Fatalf("expected least-connections to pick A (load 0), got %s", w.Name)
	}
}
