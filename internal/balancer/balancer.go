// Package balancer selects one agent from a set of candidates using a
// pluggable strategy chosen once at construction.
package balancer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/taskwell/taskwell/internal/task"
)

// ErrNoAvailableAgent is returned by every strategy when the candidate
// set is empty.
var ErrNoAvailableAgent = errors.New("no available agent")

// Strategy name constants, accepted by New.
const (
	StrategyRoundRobin         = "round_robin"
	StrategyLeastConnections   = "least_connections"
	StrategyWeightedRoundRobin = "weighted_round_robin"
	StrategyAffinityHash       = "affinity_hash"
)

// Agent is the balancer's view of a dispatch candidate.
type Agent struct {
	ID     string
	Load   int // current in-flight task count
	Weight int // relative share for weighted strategies, >= 1
}

// Strategy selects one agent for a task from a non-empty candidate list.
type Strategy interface {
	Select(t *task.Task, candidates []Agent) (Agent, error)
}

// New returns the strategy registered under the given name.
func New(name string) (Strategy, error) {
	switch name {
	case StrategyRoundRobin:
		return &roundRobin{}, nil
	case StrategyLeastConnections:
		return leastConnections{}, nil
	case StrategyWeightedRoundRobin:
		return &weightedRoundRobin{current: make(map[string]int)}, nil
	case StrategyAffinityHash:
		return affinityHash{}, nil
	}
	return nil, fmt.Errorf("unknown balancer strategy %q", name)
}

// Known reports whether name is a registered strategy.
func Known(name string) bool {
	_, err := New(name)
	return err == nil
}

// roundRobin cycles a cursor over the candidate list.
type roundRobin struct {
	mu     sync.Mutex
	cursor int
}

func (r *roundRobin) Select(_ *task.Task, candidates []Agent) (Agent, error) {
	if len(candidates) == 0 {
		return Agent{}, ErrNoAvailableAgent
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	picked := candidates[r.cursor%len(candidates)]
	r.cursor++
	return picked, nil
}

// leastConnections picks the agent with the lowest load; ties go to the
// earlier candidate.
type leastConnections struct{}

func (leastConnections) Select(_ *task.Task, candidates []Agent) (Agent, error) {
	if len(candidates) == 0 {
		return Agent{}, ErrNoAvailableAgent
	}

	best := candidates[0]
	for _, a := range candidates[1:] {
		if a.Load < best.Load {
			best = a
		}
	}
	return best, nil
}

// weightedRoundRobin implements smooth weighted cycling: each round every
// candidate gains its weight, the highest accumulated total wins and pays
// back the weight sum. Deterministic, no randomness.
type weightedRoundRobin struct {
	mu      sync.Mutex
	current map[string]int
}

func (w *weightedRoundRobin) Select(_ *task.Task, candidates []Agent) (Agent, error) {
	if len(candidates) == 0 {
		return Agent{}, ErrNoAvailableAgent
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	total := 0
	best := -1
	for i, a := range candidates {
		weight := a.Weight
		if weight < 1 {
			weight = 1
		}
		total += weight
		w.current[a.ID] += weight
		if best == -1 || w.current[a.ID] > w.current[candidates[best].ID] {
			best = i
		}
	}

	picked := candidates[best]
	w.current[picked.ID] -= total
	return picked, nil
}

// affinityHash routes a task to a stable index derived from its affinity
// key, so identical keys land on the same agent while the candidate set
// is unchanged. Tasks without a key fall back to the first candidate.
type affinityHash struct{}

func (affinityHash) Select(t *task.Task, candidates []Agent) (Agent, error) {
	if len(candidates) == 0 {
		return Agent{}, ErrNoAvailableAgent
	}
	if t == nil || t.AffinityKey == "" {
		return candidates[0], nil
	}

	h, err := hashstructure.Hash(t.AffinityKey, hashstructure.FormatV2, nil)
	if err != nil {
		return candidates[0], nil
	}
	return candidates[h%uint64(len(candidates))], nil
}
