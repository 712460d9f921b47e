// Package dispatch pushes admitted pending tasks onto capable idle
// workers. It complements pull-mode claiming: both paths go through the
// scheduler's claim operation, so exclusivity is never weakened.
package dispatch

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/taskwell/taskwell/internal/admission"
	"github.com/taskwell/taskwell/internal/balancer"
	"github.com/taskwell/taskwell/internal/scheduler"
	"github.com/taskwell/taskwell/internal/task"
)

var (
	errTaskGone      = errors.New("task no longer pending")
	errClaimConflict = errors.New("claim conflict")
)

// RetryConfig configures exponential backoff for contended claims.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns the default claim retry configuration. The
// budget is deliberately small: a task that cannot be placed this cycle
// simply waits for the next one.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     10 * time.Millisecond,
		MaxInterval:         100 * time.Millisecond,
		MaxElapsedTime:      500 * time.Millisecond,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// Config configures the dispatcher.
type Config struct {
	Strategy    balancer.Strategy
	Admission   admission.Controller
	Interval    time.Duration // cycle period for Run
	Concurrency int           // max concurrent placement attempts (default 4)
	Retry       RetryConfig
}

// Dispatcher drives periodic placement cycles.
type Dispatcher struct {
	cfg      Config
	sched    *scheduler.Scheduler
	breakers *breakerRegistry
}

// New creates a dispatcher over the scheduler.
func New(cfg Config, sched *scheduler.Scheduler) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Dispatcher{
		cfg:      cfg,
		sched:    sched,
		breakers: newBreakerRegistry(),
	}
}

// Run executes placement cycles on a fixed period until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Cycle(ctx)
		}
	}
}

// Cycle admits one batch of releasable tasks and tries to place each on a
// worker, with bounded concurrency. Returns the number of tasks placed.
func (d *Dispatcher) Cycle(ctx context.Context) int {
	if _, err := d.sched.ExecutionPlan(); err != nil {
		log.Printf("ERROR: dispatch halted, dependency graph unusable: %v", err)
		return 0
	}

	batch := d.cfg.Admission.Batch(d.sched.ReleasableTasks())
	if len(batch) == 0 {
		return 0
	}

	var placed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)

	for _, t := range batch {
		t := t
		g.Go(func() error {
			if d.place(gctx, t) {
				placed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(placed.Load())
}

// place attempts to claim one task for a selected worker, retrying
// transient contention with exponential backoff. Workers whose claims
// keep failing are parked behind a circuit breaker and skipped while it
// is open.
func (d *Dispatcher) place(ctx context.Context, t *task.Task) bool {
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		cur, ok := d.sched.Task(t.ID)
		if !ok || cur.Status != task.StatusPending {
			// Claimed by a polling worker or cancelled; nothing to do.
			return backoff.Permanent(errTaskGone)
		}

		agents := d.candidates(cur)
		agent, err := d.cfg.Strategy.Select(cur, agents)
		if err != nil {
			return err // retried; a worker may free up within the budget
		}

		cb := d.breakers.get(agent.ID)
		_, err = cb.Execute(func() (interface{}, error) {
			if !d.sched.ClaimTask(agent.ID, t.ID) {
				return nil, errClaimConflict
			}
			return nil, nil
		})
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.cfg.Retry.InitialInterval
	policy.MaxInterval = d.cfg.Retry.MaxInterval
	policy.MaxElapsedTime = d.cfg.Retry.MaxElapsedTime
	policy.Multiplier = d.cfg.Retry.Multiplier
	policy.RandomizationFactor = d.cfg.Retry.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return err == nil
}

// candidates converts capable available workers into the balancer's view,
// skipping workers whose breaker is open.
func (d *Dispatcher) candidates(t *task.Task) []balancer.Agent {
	workers := d.sched.CandidatesFor(t)
	agents := make([]balancer.Agent, 0, len(workers))
	for _, w := range workers {
		if d.breakers.get(w.ID).State() == gobreaker.StateOpen {
			continue
		}
		agents = append(agents, balancer.Agent{ID: w.ID, Load: w.Load(), Weight: w.Weight})
	}
	return agents
}
