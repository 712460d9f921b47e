package worker

import "time"

// Status represents the current state of a worker.
type Status int

const (
	StatusIdle    Status = iota // Registered, no tasks in flight
	StatusBusy                  // At least one task in flight
	StatusOffline               // Missed its heartbeat window
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusBusy:
		return "busy"
	case StatusOffline:
		return "offline"
	}
	return "unknown"
}

// Worker is an entity capable of claiming and executing tasks, bounded by
// a concurrency limit. len(Current) never exceeds MaxConcurrent.
type Worker struct {
	ID            string
	Name          string
	Capabilities  []string
	MaxConcurrent int
	Weight        int // relative dispatch weight, defaults to 1
	Status        Status
	Current       map[string]struct{} // in-flight task IDs
	LastHeartbeat time.Time
}

// TaskIDs returns the worker's in-flight task IDs.
func (w *Worker) TaskIDs() []string {
	out := make([]string, 0, len(w.Current))
	for id := range w.Current {
		out = append(out, id)
	}
	return out
}

// Load returns the number of in-flight tasks.
func (w *Worker) Load() int { return len(w.Current) }

func cloneWorker(w *Worker) *Worker {
	if w == nil {
		return nil
	}

	cp := *w
	if w.Capabilities != nil {
		cp.Capabilities = append([]string(nil), w.Capabilities...)
	}
	cp.Current = make(map[string]struct{}, len(w.Current))
	for id := range w.Current {
		cp.Current[id] = struct{}{}
	}
	return &cp
}
