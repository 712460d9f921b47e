// Package admission bounds how much pending work is released per
// processing cycle. It is a backpressure policy, not a queue: batches
// below the minimum are held back to avoid thrashing on trivial backlogs,
// and batches above the maximum are capped to bound per-cycle contention.
package admission

import "github.com/taskwell/taskwell/internal/task"

// Controller decides how many tasks may be released for one cycle.
type Controller struct {
	MinBatchSize int
	MaxBatchSize int
}

// Batch returns the tasks released for this cycle. The input must already
// be in dispatch order; the prefix is preserved.
func (c Controller) Batch(pending []*task.Task) []*task.Task {
	if len(pending) < c.MinBatchSize {
		return nil
	}
	if c.MaxBatchSize > 0 && len(pending) > c.MaxBatchSize {
		return pending[:c.MaxBatchSize]
	}
	return pending
}
