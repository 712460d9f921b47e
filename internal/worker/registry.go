package worker

import (
	"sync"
	"time"
)

// Timeout records one worker going offline during a sweep, with the tasks
// it still held. Each timeout event is reported exactly once.
type Timeout struct {
	WorkerID string
	TaskIDs  []string
}

// Registry owns worker entities, their capabilities and heartbeats. Writes
// are serialized under one lock; the claim path only touches it for the
// slot reservation, which is a map insert.
type Registry struct {
	mu               sync.RWMutex
	workers          map[string]*Worker
	weights          map[string]int
	heartbeatTimeout time.Duration
}

// NewRegistry creates an empty registry. Workers that miss a heartbeat for
// longer than heartbeatTimeout are swept offline.
func NewRegistry(heartbeatTimeout time.Duration) *Registry {
	return &Registry{
		workers:          make(map[string]*Worker),
		heartbeatTimeout: heartbeatTimeout,
	}
}

// Register adds a worker. Returns false if the id is already registered
// and alive; an offline worker may re-register and starts fresh.
func (r *Registry) Register(id, name string, capabilities []string, maxConcurrent int) bool {
	if id == "" || maxConcurrent <= 0 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.workers[id]; ok && existing.Status != StatusOffline {
		return false
	}

	weight := r.weights[id]
	if weight < 1 {
		weight = 1
	}

	r.workers[id] = &Worker{
		ID:            id,
		Name:          name,
		Capabilities:  append([]string(nil), capabilities...),
		MaxConcurrent: maxConcurrent,
		Weight:        weight,
		Status:        StatusIdle,
		Current:       make(map[string]struct{}),
		LastHeartbeat: time.Now().UTC(),
	}
	return true
}

// Deregister removes a worker and returns the task IDs it still held so
// the caller can requeue them.
func (r *Registry) Deregister(id string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return nil, false
	}
	delete(r.workers, id)
	return w.TaskIDs(), true
}

// Heartbeat records a liveness signal. An offline worker returns to idle
// with an empty slot set (its tasks were requeued when it was swept).
func (r *Registry) Heartbeat(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return false
	}

	w.LastHeartbeat = time.Now().UTC()
	if w.Status == StatusOffline {
		w.Status = StatusIdle
	}
	return true
}

// ConfigureWeights sets the dispatch weights applied to workers as they
// register, keyed by worker id. Ids without an entry get weight 1.
func (r *Registry) ConfigureWeights(weights map[string]int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.weights = make(map[string]int, len(weights))
	for id, w := range weights {
		if w < 1 {
			w = 1
		}
		r.weights[id] = w
	}
}

// SetWeight adjusts a live worker's dispatch weight. Weights below 1 are
// clamped to 1.
func (r *Registry) SetWeight(id string, weight int) bool {
	if weight < 1 {
		weight = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return false
	}
	w.Weight = weight
	return true
}

// Reserve atomically takes one concurrency slot on the worker for taskID.
// Returns false if the worker is unknown, offline, or at capacity. A
// failed task claim must be undone with Release.
func (r *Registry) Reserve(workerID, taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[workerID]
	if !ok || w.Status == StatusOffline {
		return false
	}
	if len(w.Current) >= w.MaxConcurrent {
		return false
	}
	if _, dup := w.Current[taskID]; dup {
		return false
	}

	w.Current[taskID] = struct{}{}
	w.Status = StatusBusy
	return true
}

// Holds reports whether workerID still holds a slot reservation for
// taskID. A sweep or deregistration between a reservation and the task
// transition empties the slot set, so the claim path re-checks this after
// winning the task.
func (r *Registry) Holds(workerID, taskID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workers[workerID]
	if !ok {
		return false
	}
	_, held := w.Current[taskID]
	return held
}

// Release frees the slot held for taskID. The worker returns to idle when
// its last slot frees, unless it has gone offline in the meantime.
func (r *Registry) Release(workerID, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[workerID]
	if !ok {
		return
	}
	delete(w.Current, taskID)
	if len(w.Current) == 0 && w.Status == StatusBusy {
		w.Status = StatusIdle
	}
}

// Sweep marks every worker whose last heartbeat is older than the timeout
// as offline and strips its in-flight tasks, returning one Timeout per
// newly offline worker. The comparison uses the heartbeat value held at
// sweep time, so a worker that heartbeats concurrently is either fully
// spared or fully swept, never requeued twice.
func (r *Registry) Sweep(now time.Time) []Timeout {
	r.mu.Lock()
	defer r.mu.Unlock()

	var timedOut []Timeout
	for _, w := range r.workers {
		if w.Status == StatusOffline {
			continue
		}
		if now.Sub(w.LastHeartbeat) <= r.heartbeatTimeout {
			continue
		}

		timedOut = append(timedOut, Timeout{WorkerID: w.ID, TaskIDs: w.TaskIDs()})
		w.Status = StatusOffline
		w.Current = make(map[string]struct{})
	}
	return timedOut
}

// Get returns a snapshot of a worker by id.
func (r *Registry) Get(id string) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	if !ok {
		return nil, false
	}
	return cloneWorker(w), true
}

// Workers returns snapshots of all registered workers, offline included.
func (r *Registry) Workers() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, cloneWorker(w))
	}
	return out
}

// Alive returns the number of workers that are not offline. This is the
// worker count scaling decisions are based on.
func (r *Registry) Alive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, w := range r.workers {
		if w.Status != StatusOffline {
			n++
		}
	}
	return n
}

// Available returns snapshots of alive workers with at least one free
// concurrency slot.
func (r *Registry) Available() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Worker
	for _, w := range r.workers {
		if w.Status == StatusOffline || len(w.Current) >= w.MaxConcurrent {
			continue
		}
		out = append(out, cloneWorker(w))
	}
	return out
}
