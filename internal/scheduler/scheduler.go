// Package scheduler matches claimable tasks to workers and enforces the
// claim invariant: a task moves to in-progress at most once, bound to
// exactly one worker with a matching capability set and a free slot.
package scheduler

import (
	"time"

	"github.com/taskwell/taskwell/internal/events"
	"github.com/taskwell/taskwell/internal/task"
	"github.com/taskwell/taskwell/internal/worker"
)

// SystemStatus aggregates counters for scaling decisions and operators.
// The counters are read without claim-path coordination; they may trail
// concurrent writers but never misreport ownership.
type SystemStatus struct {
	Pending      int
	InProgress   int
	Completed    int
	Failed       int
	Cancelled    int
	TotalWorkers int
}

// Scheduler coordinates the task store and the worker registry. All task
// mutations after submission go through it, so every transition is
// published on the event bus.
type Scheduler struct {
	tasks   *task.Store
	workers *worker.Registry
	bus     *events.Bus
}

// New creates a scheduler over the given stores and bus.
func New(tasks *task.Store, workers *worker.Registry, bus *events.Bus) *Scheduler {
	return &Scheduler{tasks: tasks, workers: workers, bus: bus}
}

// SubmitTask validates and enqueues a new pending task.
func (s *Scheduler) SubmitTask(name, description string, priority task.Priority, capabilities, dependsOn []string) (string, error) {
	return s.Submit(task.Spec{
		Name:         name,
		Description:  description,
		Priority:     priority,
		Capabilities: capabilities,
		DependsOn:    dependsOn,
	})
}

// Submit enqueues a task from a full spec, including optional affinity key
// and per-task retry budget.
func (s *Scheduler) Submit(spec task.Spec) (string, error) {
	id, err := s.tasks.Submit(spec)
	if err != nil {
		return "", err
	}
	s.bus.Publish(events.TopicTask, events.TaskSubmittedEvent{
		ID:        id,
		Name:      spec.Name,
		Priority:  spec.Priority.String(),
		Timestamp: time.Now().UTC(),
	})
	return id, nil
}

// RegisterWorker adds a worker to the pool. Returns false if the id is
// already registered and alive.
func (s *Scheduler) RegisterWorker(id, name string, capabilities []string, maxConcurrent int) bool {
	if !s.workers.Register(id, name, capabilities, maxConcurrent) {
		return false
	}
	s.bus.Publish(events.TopicWorker, events.WorkerRegisteredEvent{
		ID:           id,
		Name:         name,
		Capabilities: capabilities,
		Timestamp:    time.Now().UTC(),
	})
	return true
}

// DeregisterWorker removes a worker and requeues its in-flight tasks.
func (s *Scheduler) DeregisterWorker(id string) bool {
	taskIDs, ok := s.workers.Deregister(id)
	if !ok {
		return false
	}
	requeued := s.requeueAll(id, taskIDs, events.CauseDeregistration)
	s.bus.Publish(events.TopicWorker, events.WorkerDeregisteredEvent{
		ID:        id,
		Requeued:  requeued,
		Timestamp: time.Now().UTC(),
	})
	return true
}

// Heartbeat records a worker liveness signal.
func (s *Scheduler) Heartbeat(workerID string) bool {
	return s.workers.Heartbeat(workerID)
}

// ClaimableTasks returns the tasks workerID could claim right now, in
// dispatch order.
func (s *Scheduler) ClaimableTasks(workerID string) []*task.Task {
	w, ok := s.workers.Get(workerID)
	if !ok || w.Status == worker.StatusOffline {
		return nil
	}
	return s.tasks.Claimable(w.Capabilities)
}

// ClaimTask atomically assigns a pending task to a worker. Exactly one of
// any set of concurrent claims on the same task succeeds. The worker slot
// is reserved first and rolled back if the task transition loses, so no
// partial mutation is ever observable on the task.
func (s *Scheduler) ClaimTask(workerID, taskID string) bool {
	w, ok := s.workers.Get(workerID)
	if !ok || w.Status == worker.StatusOffline {
		return false
	}

	if !s.workers.Reserve(workerID, taskID) {
		return false
	}
	if !s.tasks.Claim(taskID, workerID, w.Capabilities) {
		s.workers.Release(workerID, taskID)
		return false
	}
	return s.confirmClaim(workerID, taskID)
}

// confirmClaim re-checks the slot reservation after the task transition.
// The heartbeat sweep (or a deregistration) can fire between Reserve and
// the task CAS: it empties the worker's slot set, but its requeue is a
// no-op because the task is still pending, and the CAS then binds the
// task to a dead worker no later sweep will touch. Detecting the lost
// reservation here and requeueing closes that window.
func (s *Scheduler) confirmClaim(workerID, taskID string) bool {
	if !s.workers.Holds(workerID, taskID) {
		s.tasks.Requeue(taskID, workerID)
		return false
	}

	s.bus.Publish(events.TopicTask, events.TaskClaimedEvent{
		ID:        taskID,
		WorkerID:  workerID,
		Timestamp: time.Now().UTC(),
	})
	return true
}

// UpdateProgress records task progress. Returns false without raising when
// the caller no longer owns the task; a false return after a cancellation
// is the cooperative stop signal.
func (s *Scheduler) UpdateProgress(workerID, taskID string, percent int, note string) bool {
	ok, cancelAck := s.tasks.UpdateProgress(taskID, workerID, percent, note)
	if cancelAck {
		s.finishCancel(workerID, taskID)
		return false
	}
	if !ok {
		return false
	}
	s.bus.Publish(events.TopicTask, events.TaskProgressEvent{
		ID:        taskID,
		WorkerID:  workerID,
		Percent:   percent,
		Note:      note,
		Timestamp: time.Now().UTC(),
	})
	return true
}

// CompleteTask finishes an in-progress task owned by workerID and frees
// the worker's slot.
func (s *Scheduler) CompleteTask(workerID, taskID, result string) bool {
	ok, cancelAck := s.tasks.Complete(taskID, workerID, result)
	if cancelAck {
		s.finishCancel(workerID, taskID)
		return false
	}
	if !ok {
		return false
	}

	s.workers.Release(workerID, taskID)
	s.bus.Publish(events.TopicTask, events.TaskCompletedEvent{
		ID:        taskID,
		WorkerID:  workerID,
		Result:    result,
		Timestamp: time.Now().UTC(),
	})
	return true
}

// FailTask records a failure. The task is requeued while its retry budget
// lasts, then surfaced as permanently failed.
func (s *Scheduler) FailTask(workerID, taskID, reason string) {
	outcome := s.tasks.Fail(taskID, workerID, reason)
	now := time.Now().UTC()

	switch outcome {
	case task.FailRequeued:
		s.workers.Release(workerID, taskID)
		s.bus.Publish(events.TopicTask, events.TaskRequeuedEvent{
			ID:        taskID,
			WorkerID:  workerID,
			Cause:     events.CauseFailure,
			Timestamp: now,
		})
	case task.FailExhausted:
		s.workers.Release(workerID, taskID)
		retries := 0
		if t, ok := s.tasks.Get(taskID); ok {
			retries = t.RetryCount
		}
		s.bus.Publish(events.TopicTask, events.TaskFailedEvent{
			ID:        taskID,
			WorkerID:  workerID,
			Reason:    reason,
			Retries:   retries,
			Timestamp: now,
		})
	case task.FailCancelAcked:
		s.finishCancel(workerID, taskID)
	}
}

// CancelTask cancels a pending or in-progress task. Cancellation of
// in-flight work is cooperative: the owner keeps its slot until it
// observes the flag through its next call.
func (s *Scheduler) CancelTask(taskID string) bool {
	ok, _ := s.tasks.Cancel(taskID)
	if !ok {
		return false
	}
	s.bus.Publish(events.TopicTask, events.TaskCancelledEvent{
		ID:        taskID,
		Timestamp: time.Now().UTC(),
	})
	return true
}

// SystemStatus returns aggregate counters.
func (s *Scheduler) SystemStatus() SystemStatus {
	c := s.tasks.Counts()
	return SystemStatus{
		Pending:      c.Pending,
		InProgress:   c.InProgress,
		Completed:    c.Completed,
		Failed:       c.Failed,
		Cancelled:    c.Cancelled,
		TotalWorkers: s.workers.Alive(),
	}
}

// FailedTasks lists permanently failed tasks for results consumers.
func (s *Scheduler) FailedTasks() []*task.Task {
	return s.tasks.Failed()
}

// Task returns a snapshot of a single task.
func (s *Scheduler) Task(id string) (*task.Task, bool) {
	return s.tasks.Get(id)
}

// Workers returns snapshots of all registered workers.
func (s *Scheduler) Workers() []*worker.Worker {
	return s.workers.Workers()
}

// ReleasableTasks returns the dependency-satisfied pending queue, the
// input to admission control.
func (s *Scheduler) ReleasableTasks() []*task.Task {
	return s.tasks.Releasable()
}

// CandidatesFor returns available workers whose capabilities cover the
// task's requirement, preserving registry iteration order.
func (s *Scheduler) CandidatesFor(t *task.Task) []*worker.Worker {
	var out []*worker.Worker
	for _, w := range s.workers.Available() {
		if task.HasCapabilities(w.Capabilities, t.Capabilities) {
			out = append(out, w)
		}
	}
	return out
}

// ExecutionPlan returns a topological ordering of unfinished tasks. An
// error means the dependency graph is corrupt and dispatch must halt.
func (s *Scheduler) ExecutionPlan() ([]string, error) {
	return s.tasks.ExecutionOrder()
}

func (s *Scheduler) finishCancel(workerID, taskID string) {
	s.workers.Release(workerID, taskID)
	s.bus.Publish(events.TopicTask, events.TaskCancelledEvent{
		ID:           taskID,
		Acknowledged: true,
		Timestamp:    time.Now().UTC(),
	})
}

func (s *Scheduler) requeueAll(workerID string, taskIDs []string, cause string) []string {
	var requeued []string
	for _, id := range taskIDs {
		if !s.tasks.Requeue(id, workerID) {
			continue
		}
		requeued = append(requeued, id)
		s.bus.Publish(events.TopicTask, events.TaskRequeuedEvent{
			ID:        id,
			WorkerID:  workerID,
			Cause:     cause,
			Timestamp: time.Now().UTC(),
		})
	}
	return requeued
}
