package balancer

import (
	"errors"
	"testing"

	"github.com/taskwell/taskwell/internal/task"
)

func agents(ids ...string) []Agent {
	out := make([]Agent, len(ids))
	for i, id := range ids {
		out[i] = Agent{ID: id, Weight: 1}
	}
	return out
}

// TestFactory verifies strategy lookup by name.
func TestFactory(t *testing.T) {
	for _, name := range []string{
		StrategyRoundRobin,
		StrategyLeastConnections,
		StrategyWeightedRoundRobin,
		StrategyAffinityHash,
	} {
		if _, err := New(name); err != nil {
			t.Errorf("New(%q) failed: %v", name, err)
		}
		if !Known(name) {
			t.Errorf("Known(%q) = false", name)
		}
	}

	if _, err := New("random"); err == nil {
		t.Error("expected error for unknown strategy")
	}
	if Known("random") {
		t.Error("Known accepted an unknown strategy")
	}
}

// TestEmptyCandidates verifies every strategy fails on an empty set.
func TestEmptyCandidates(t *testing.T) {
	for _, name := range []string{
		StrategyRoundRobin,
		StrategyLeastConnections,
		StrategyWeightedRoundRobin,
		StrategyAffinityHash,
	} {
		s, _ := New(name)
		if _, err := s.Select(&task.Task{}, nil); !errors.Is(err, ErrNoAvailableAgent) {
			t.Errorf("%s: expected ErrNoAvailableAgent, got %v", name, err)
		}
	}
}

// TestRoundRobinCycle verifies deterministic cycling: 7 calls over
// [a, b, c] yield [a, b, c, a, b, c, a].
func TestRoundRobinCycle(t *testing.T) {
	s, _ := New(StrategyRoundRobin)
	cands := agents("a", "b", "c")

	want := []string{"a", "b", "c", "a", "b", "c", "a"}
	for i, expected := range want {
		picked, err := s.Select(nil, cands)
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		if picked.ID != expected {
			t.Errorf("call %d: picked %s, want %s", i, picked.ID, expected)
		}
	}
}

// TestLeastConnections verifies argmin selection with first-seen tie-break.
func TestLeastConnections(t *testing.T) {
	s, _ := New(StrategyLeastConnections)

	tests := []struct {
		name  string
		cands []Agent
		want  string
	}{
		{"clear minimum", []Agent{{ID: "a", Load: 3}, {ID: "b", Load: 1}, {ID: "c", Load: 2}}, "b"},
		{"tie goes to first seen", []Agent{{ID: "a", Load: 2}, {ID: "b", Load: 2}}, "a"},
		{"all idle", []Agent{{ID: "x"}, {ID: "y"}}, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			picked, err := s.Select(nil, tt.cands)
			if err != nil {
				t.Fatal(err)
			}
			if picked.ID != tt.want {
				t.Errorf("picked %s, want %s", picked.ID, tt.want)
			}
		})
	}
}

// TestWeightedRoundRobinProportions verifies selections track weights
// deterministically over full cycles.
func TestWeightedRoundRobinProportions(t *testing.T) {
	s, _ := New(StrategyWeightedRoundRobin)
	cands := []Agent{{ID: "a", Weight: 2}, {ID: "b", Weight: 1}}

	counts := map[string]int{}
	var sequence []string
	for i := 0; i < 6; i++ {
		picked, err := s.Select(nil, cands)
		if err != nil {
			t.Fatal(err)
		}
		counts[picked.ID]++
		sequence = append(sequence, picked.ID)
	}

	if counts["a"] != 4 || counts["b"] != 2 {
		t.Errorf("counts over two cycles = %v, want a:4 b:2", counts)
	}

	// Smooth cycling interleaves rather than bursting: a, b, a repeating.
	want := []string{"a", "b", "a", "a", "b", "a"}
	for i := range want {
		if sequence[i] != want[i] {
			t.Errorf("sequence = %v, want %v", sequence, want)
			break
		}
	}
}

// TestWeightedRoundRobinEqualWeights degrades to plain cycling fairness.
func TestWeightedRoundRobinEqualWeights(t *testing.T) {
	s, _ := New(StrategyWeightedRoundRobin)
	cands := agents("a", "b", "c")

	counts := map[string]int{}
	for i := 0; i < 9; i++ {
		picked, _ := s.Select(nil, cands)
		counts[picked.ID]++
	}
	for _, id := range []string{"a", "b", "c"} {
		if counts[id] != 3 {
			t.Errorf("counts = %v, want 3 each", counts)
			break
		}
	}
}

// TestAffinityHashStability verifies identical keys route identically
// while the candidate set is unchanged.
func TestAffinityHashStability(t *testing.T) {
	s, _ := New(StrategyAffinityHash)
	cands := agents("a", "b", "c")

	first, err := s.Select(&task.Task{AffinityKey: "session-42"}, cands)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, _ := s.Select(&task.Task{AffinityKey: "session-42"}, cands)
		if again.ID != first.ID {
			t.Fatalf("call %d routed %s, first routed %s", i, again.ID, first.ID)
		}
	}
}

// TestAffinityHashFallback verifies keyless tasks go to the first candidate.
func TestAffinityHashFallback(t *testing.T) {
	s, _ := New(StrategyAffinityHash)
	cands := agents("a", "b", "c")

	picked, err := s.Select(&task.Task{}, cands)
	if err != nil {
		t.Fatal(err)
	}
	if picked.ID != "a" {
		t.Errorf("keyless task routed to %s, want a", picked.ID)
	}

	picked, err = s.Select(nil, cands)
	if err != nil || picked.ID != "a" {
		t.Errorf("nil task routed to %s (%v), want a", picked.ID, err)
	}
}
