package task

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/toposort"
	"github.com/google/uuid"
)

// ErrValidation is returned by Submit for malformed submissions.
var ErrValidation = errors.New("invalid task submission")

// FailOutcome describes what a Fail call did to the task.
type FailOutcome int

const (
	FailIgnored    FailOutcome = iota // Caller did not own an in-progress task
	FailRequeued                      // Reset to pending for another attempt
	FailExhausted                     // Retries exhausted, permanently failed
	FailCancelAcked                   // Task was cancelled; caller acknowledged
)

// Counts holds aggregate task counts per status. Reads of these counts may
// lag concurrent writers; staleness only delays scaling decisions.
type Counts struct {
	Pending    int
	InProgress int
	Completed  int
	Failed     int
	Cancelled  int
}

// Store owns task entities and their state transitions. All transitions on
// the claim path happen under the store lock, so concurrent claims on the
// same task see exactly one winner.
type Store struct {
	mu         sync.RWMutex
	tasks      map[string]*Task
	nextSeq    uint64
	maxRetries int
}

// NewStore creates an empty task store. maxRetries is the default retry
// budget for submissions that don't set their own.
func NewStore(maxRetries int) *Store {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Store{
		tasks:      make(map[string]*Task),
		maxRetries: maxRetries,
	}
}

// Submit validates and inserts a new pending task, returning its id.
// Fails with ErrValidation if the name is empty, a required capability is
// blank, or a dependency id is unknown.
func (s *Store) Submit(spec Spec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("%w: name is required", ErrValidation)
	}
	for _, c := range spec.Capabilities {
		if strings.TrimSpace(c) == "" {
			return "", fmt.Errorf("%w: blank capability", ErrValidation)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, depID := range spec.DependsOn {
		if _, ok := s.tasks[depID]; !ok {
			return "", fmt.Errorf("%w: unknown dependency %q", ErrValidation, depID)
		}
	}

	maxRetries := spec.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.maxRetries
	}

	t := &Task{
		ID:           uuid.NewString(),
		Name:         spec.Name,
		Description:  spec.Description,
		Priority:     spec.Priority,
		Status:       StatusPending,
		Capabilities: append([]string(nil), spec.Capabilities...),
		DependsOn:    append([]string(nil), spec.DependsOn...),
		AffinityKey:  spec.AffinityKey,
		MaxRetries:   maxRetries,
		CreatedAt:    time.Now().UTC(),
		seq:          s.nextSeq,
	}
	s.nextSeq++
	s.tasks[t.ID] = t
	return t.ID, nil
}

// Get returns a snapshot of a task by id.
func (s *Store) Get(id string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return cloneTask(t), true
}

// Tasks returns snapshots of all tasks.
func (s *Store) Tasks() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, cloneTask(t))
	}
	return out
}

// Claimable returns pending tasks whose dependencies are all completed and
// whose required capabilities are covered by workerCaps, ordered by
// priority descending with submission order as the tie-break.
func (s *Store) Claimable(workerCaps []string) []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Task
	for _, t := range s.tasks {
		if t.Status != StatusPending {
			continue
		}
		if !s.depsCompleted(t) {
			continue
		}
		if !HasCapabilities(workerCaps, t.Capabilities) {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sortQueue(out)
	return out
}

// Releasable returns pending tasks whose dependencies are all completed,
// regardless of capabilities, in queue order. This is the input to the
// admission policy.
func (s *Store) Releasable() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Task
	for _, t := range s.tasks {
		if t.Status != StatusPending || !s.depsCompleted(t) {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sortQueue(out)
	return out
}

// Claim atomically transitions a pending task to in-progress and binds it
// to workerID. Returns false, with no mutation, unless the task is pending,
// every dependency is completed, and workerCaps covers the requirement.
func (s *Store) Claim(taskID, workerID string, workerCaps []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok || t.Status != StatusPending {
		return false
	}
	if !s.depsCompleted(t) {
		return false
	}
	if !HasCapabilities(workerCaps, t.Capabilities) {
		return false
	}

	now := time.Now().UTC()
	t.Status = StatusInProgress
	t.AssignedWorker = workerID
	t.ClaimedAt = &now
	return true
}

// UpdateProgress records progress for an in-progress task owned by
// workerID. Returns ok=false otherwise; progress races are expected and
// never raise errors. cancelAck is true on the first call after the task
// was cancelled out from under this worker, so the caller can release the
// worker's slot.
func (s *Store) UpdateProgress(taskID, workerID string, percent int, note string) (ok, cancelAck bool) {
	if percent < 0 || percent > 100 {
		return false, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, found := s.tasks[taskID]
	if !found {
		return false, false
	}
	if ack := s.ackCancel(t, workerID); ack {
		return false, true
	}
	if t.Status != StatusInProgress || t.AssignedWorker != workerID {
		return false, false
	}

	t.Progress = percent
	t.ProgressNote = note
	return true, false
}

// Complete finishes an in-progress task owned by workerID.
func (s *Store) Complete(taskID, workerID, result string) (ok, cancelAck bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, found := s.tasks[taskID]
	if !found {
		return false, false
	}
	if ack := s.ackCancel(t, workerID); ack {
		return false, true
	}
	if t.Status != StatusInProgress || t.AssignedWorker != workerID {
		return false, false
	}

	now := time.Now().UTC()
	t.Status = StatusCompleted
	t.Result = result
	t.Progress = 100
	t.AssignedWorker = ""
	t.CompletedAt = &now
	return true, false
}

// Fail records a failure of an in-progress task owned by workerID. The
// task is requeued as pending until its retry budget is spent, then marked
// permanently failed.
func (s *Store) Fail(taskID, workerID, reason string) FailOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, found := s.tasks[taskID]
	if !found {
		return FailIgnored
	}
	if ack := s.ackCancel(t, workerID); ack {
		return FailCancelAcked
	}
	if t.Status != StatusInProgress || t.AssignedWorker != workerID {
		return FailIgnored
	}

	t.RetryCount++
	t.FailReason = reason
	t.AssignedWorker = ""
	t.ClaimedAt = nil
	t.Progress = 0
	t.ProgressNote = ""

	if t.RetryCount < t.MaxRetries {
		t.Status = StatusPending
		return FailRequeued
	}

	now := time.Now().UTC()
	t.Status = StatusFailed
	t.CompletedAt = &now
	return FailExhausted
}

// Cancel cancels a pending or in-progress task. For an in-progress task
// the cancellation is cooperative: the owning worker keeps running until
// it observes the flag on its next progress update.
func (s *Store) Cancel(taskID string) (ok, wasInProgress bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, found := s.tasks[taskID]
	if !found {
		return false, false
	}

	switch t.Status {
	case StatusPending:
		t.Status = StatusCancelled
		return true, false
	case StatusInProgress:
		t.Status = StatusCancelled
		t.CancelRequested = true
		t.ackWorker = t.AssignedWorker
		t.AssignedWorker = ""
		t.ClaimedAt = nil
		return true, true
	}
	return false, false
}

// Requeue returns an in-progress task owned by workerID to the pending
// queue without touching its retry count. Used when the owning worker goes
// offline.
func (s *Store) Requeue(taskID, workerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, found := s.tasks[taskID]
	if !found || t.Status != StatusInProgress || t.AssignedWorker != workerID {
		return false
	}

	t.Status = StatusPending
	t.AssignedWorker = ""
	t.ClaimedAt = nil
	t.Progress = 0
	t.ProgressNote = ""
	return true
}

// Counts returns aggregate task counts per status.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Counts
	for _, t := range s.tasks {
		switch t.Status {
		case StatusPending:
			c.Pending++
		case StatusInProgress:
			c.InProgress++
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		case StatusCancelled:
			c.Cancelled++
		}
	}
	return c
}

// Failed returns snapshots of permanently failed tasks in queue order.
func (s *Store) Failed() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Task
	for _, t := range s.tasks {
		if t.Status == StatusFailed {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// ExecutionOrder returns a topological ordering of all unfinished tasks.
// An error means the dependency graph is corrupt (a cycle, which Submit
// should have made impossible) and dispatch must not proceed.
func (s *Store) ExecutionOrder() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var edges []toposort.Edge
	for id, t := range s.tasks {
		if t.Status != StatusPending && t.Status != StatusInProgress {
			continue
		}
		if len(t.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range t.DependsOn {
			dep, ok := s.tasks[depID]
			if ok && dep.Status != StatusPending && dep.Status != StatusInProgress {
				// Finished dependencies impose no ordering.
				edges = append(edges, toposort.Edge{nil, id})
				continue
			}
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}

// ackCancel consumes a pending cooperative-cancellation acknowledgment.
// Caller must hold s.mu.
func (s *Store) ackCancel(t *Task, workerID string) bool {
	if t.Status != StatusCancelled || !t.CancelRequested || t.ackWorker != workerID {
		return false
	}
	t.CancelRequested = false
	t.ackWorker = ""
	return true
}

// depsCompleted reports whether every dependency of t has completed.
// Caller must hold s.mu (read or write).
func (s *Store) depsCompleted(t *Task) bool {
	for _, depID := range t.DependsOn {
		dep, ok := s.tasks[depID]
		if !ok || dep.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// sortQueue orders tasks by priority descending, then submission order.
func sortQueue(tasks []*Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].seq < tasks[j].seq
	})
}
