// Package autoscaler grows and shrinks the worker pool with hysteresis.
// It only emits decisions; spawning and killing workers belongs to an
// external pool manager.
package autoscaler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Decision is the outcome of one evaluation cycle.
type Decision int

const (
	DecisionHold Decision = iota
	DecisionScaleUp
	DecisionScaleDown
)

// String returns a human-readable decision name.
func (d Decision) String() string {
	switch d {
	case DecisionHold:
		return "hold"
	case DecisionScaleUp:
		return "scale_up"
	case DecisionScaleDown:
		return "scale_down"
	}
	return "unknown"
}

// Config tunes the scaling rules.
type Config struct {
	MinAgents                 int
	MaxAgents                 int
	TasksPerAgentThreshold    float64       // load ratio above which the pool grows
	IdleAgentPercentThreshold float64       // load below this percent of the pool shrinks it; 0 disables
	CooldownPeriod            time.Duration // minimum gap between consecutive actions
}

// DefaultConfig returns the default scaling configuration.
func DefaultConfig() Config {
	return Config{
		MinAgents:              1,
		MaxAgents:              10,
		TasksPerAgentThreshold: 3,
		CooldownPeriod:         60 * time.Second,
	}
}

// Snapshot carries the aggregate counters one evaluation reads. Staleness
// here only delays a decision; it never corrupts task ownership.
type Snapshot struct {
	Pending    int
	InProgress int
	Workers    int
}

// Scaler evaluates scaling rules over periodic snapshots. Hysteresis:
// after any action, further actions are suppressed for the cooldown
// period to prevent oscillation.
type Scaler struct {
	cfg Config

	mu         sync.Mutex
	lastAction time.Time
	now        func() time.Time
}

// New creates a scaler with the given configuration.
func New(cfg Config) *Scaler {
	return &Scaler{cfg: cfg, now: time.Now}
}

// Evaluate applies the decision rules, in order, to one snapshot:
// cooldown, then scale-up, then scale-down, else hold.
func (s *Scaler) Evaluate(snap Snapshot) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.lastAction.IsZero() && now.Sub(s.lastAction) < s.cfg.CooldownPeriod {
		return DecisionHold
	}

	load := snap.Pending + snap.InProgress

	if snap.Workers < s.cfg.MaxAgents && ratio(load, snap.Workers) > s.cfg.TasksPerAgentThreshold {
		s.lastAction = now
		return DecisionScaleUp
	}

	if snap.Workers > s.cfg.MinAgents && s.idle(load, snap.Workers) {
		s.lastAction = now
		return DecisionScaleDown
	}

	return DecisionHold
}

// Run evaluates on a fixed period until ctx is cancelled, calling emit for
// every cycle that resolves to an action.
func (s *Scaler) Run(ctx context.Context, interval time.Duration, source func() Snapshot, emit func(Decision, Snapshot)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap := source()
			decision := s.Evaluate(snap)
			if decision == DecisionHold {
				continue
			}
			log.Printf("autoscaler: %s (pending=%d in_progress=%d workers=%d)",
				decision, snap.Pending, snap.InProgress, snap.Workers)
			if emit != nil {
				emit(decision, snap)
			}
		}
	}
}

func (s *Scaler) idle(load, workers int) bool {
	if load == 0 {
		return true
	}
	if s.cfg.IdleAgentPercentThreshold <= 0 {
		return false
	}
	return float64(load) < s.cfg.IdleAgentPercentThreshold/100*float64(workers)
}

func ratio(load, workers int) float64 {
	if workers < 1 {
		workers = 1
	}
	return float64(load) / float64(workers)
}
