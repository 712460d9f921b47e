package admission

import (
	"fmt"
	"testing"

	"github.com/taskwell/taskwell/internal/task"
)

func pendingTasks(n int) []*task.Task {
	out := make([]*task.Task, n)
	for i := range out {
		out[i] = &task.Task{ID: fmt.Sprintf("t%d", i)}
	}
	return out
}

// TestBatch verifies the min-hold and max-cap admission rules.
func TestBatch(t *testing.T) {
	tests := []struct {
		name     string
		pending  int
		min, max int
		want     int
	}{
		{"below minimum holds everything", 3, 5, 20, 0},
		{"at minimum releases all", 5, 5, 20, 5},
		{"above maximum is capped", 25, 5, 20, 20},
		{"between bounds releases all", 12, 5, 20, 12},
		{"zero minimum releases small backlogs", 1, 0, 20, 1},
		{"empty queue", 0, 0, 20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Controller{MinBatchSize: tt.min, MaxBatchSize: tt.max}
			got := c.Batch(pendingTasks(tt.pending))
			if len(got) != tt.want {
				t.Errorf("Batch released %d tasks, want %d", len(got), tt.want)
			}
		})
	}
}

// TestBatchPreservesOrder verifies the released prefix keeps queue order.
func TestBatchPreservesOrder(t *testing.T) {
	c := Controller{MinBatchSize: 1, MaxBatchSize: 3}
	got := c.Batch(pendingTasks(5))
	for i, want := range []string{"t0", "t1", "t2"} {
		if got[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, want)
		}
	}
}
