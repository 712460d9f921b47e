package task

import (
	"errors"
	"sync"
	"testing"
)

func mustSubmit(t *testing.T, s *Store, spec Spec) string {
	t.Helper()
	id, err := s.Submit(spec)
	if err != nil {
		t.Fatalf("Submit(%q) failed: %v", spec.Name, err)
	}
	return id
}

// TestSubmitValidation verifies that malformed submissions are rejected.
func TestSubmitValidation(t *testing.T) {
	s := NewStore(3)
	okID := mustSubmit(t, s, Spec{Name: "seed"})

	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"valid", Spec{Name: "a", Capabilities: []string{"gpu"}}, false},
		{"valid with dependency", Spec{Name: "b", DependsOn: []string{okID}}, false},
		{"empty name", Spec{Name: "  "}, true},
		{"blank capability", Spec{Name: "c", Capabilities: []string{"gpu", " "}}, true},
		{"unknown dependency", Spec{Name: "d", DependsOn: []string{"no-such-task"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Submit(tt.spec)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("expected ErrValidation, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestClaimableOrdering verifies priority-descending, FIFO tie-break order.
func TestClaimableOrdering(t *testing.T) {
	s := NewStore(3)

	low := mustSubmit(t, s, Spec{Name: "low", Priority: PriorityLow})
	high := mustSubmit(t, s, Spec{Name: "high", Priority: PriorityHigh})
	normal := mustSubmit(t, s, Spec{Name: "normal", Priority: PriorityNormal})

	got := s.Claimable(nil)
	want := []string{high, normal, low}
	if len(got) != len(want) {
		t.Fatalf("expected %d claimable tasks, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

// TestClaimableFIFOTieBreak verifies stable ordering within one priority.
func TestClaimableFIFOTieBreak(t *testing.T) {
	s := NewStore(3)

	var want []string
	for i := 0; i < 5; i++ {
		want = append(want, mustSubmit(t, s, Spec{Name: "n", Priority: PriorityNormal}))
	}

	got := s.Claimable(nil)
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

// TestClaimCapabilityGate verifies claims fail without a capability superset.
func TestClaimCapabilityGate(t *testing.T) {
	s := NewStore(3)
	id := mustSubmit(t, s, Spec{Name: "t", Capabilities: []string{"gpu", "ssd"}})

	if s.Claim(id, "w1", []string{"gpu"}) {
		t.Error("claim succeeded with missing capability")
	}
	if len(s.Claimable([]string{"gpu"})) != 0 {
		t.Error("task listed as claimable for incapable worker")
	}
	if !s.Claim(id, "w2", []string{"gpu", "ssd", "extra"}) {
		t.Error("claim failed with capability superset")
	}
}

// TestClaimDependencyGate verifies tasks stay unclaimable until dependencies complete.
func TestClaimDependencyGate(t *testing.T) {
	s := NewStore(3)
	dep := mustSubmit(t, s, Spec{Name: "dep"})
	id := mustSubmit(t, s, Spec{Name: "t", DependsOn: []string{dep}})

	if s.Claim(id, "w1", nil) {
		t.Error("claim succeeded with incomplete dependency")
	}

	if !s.Claim(dep, "w1", nil) {
		t.Fatal("failed to claim dependency")
	}
	if ok, _ := s.Complete(dep, "w1", "done"); !ok {
		t.Fatal("failed to complete dependency")
	}

	if !s.Claim(id, "w1", nil) {
		t.Error("claim failed after dependency completed")
	}
}

// TestClaimExclusivity verifies that N concurrent claims produce exactly one winner.
func TestClaimExclusivity(t *testing.T) {
	s := NewStore(3)
	id := mustSubmit(t, s, Spec{Name: "contested"})

	const claimers = 64
	var wg sync.WaitGroup
	wins := make(chan string, claimers)

	for i := 0; i < claimers; i++ {
		workerID := string(rune('A' + i%26))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Claim(id, workerID, nil) {
				wins <- workerID
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly 1 winner, got %d (%v)", len(winners), winners)
	}

	got, _ := s.Get(id)
	if got.Status != StatusInProgress || got.AssignedWorker != winners[0] {
		t.Errorf("task not bound to winner: status=%v assigned=%q", got.Status, got.AssignedWorker)
	}
	if got.ClaimedAt == nil {
		t.Error("ClaimedAt not stamped on claim")
	}
}

// TestUpdateProgressOwnership verifies progress updates require ownership.
func TestUpdateProgressOwnership(t *testing.T) {
	s := NewStore(3)
	id := mustSubmit(t, s, Spec{Name: "t"})

	if ok, _ := s.UpdateProgress(id, "w1", 10, ""); ok {
		t.Error("progress accepted on pending task")
	}

	s.Claim(id, "w1", nil)

	if ok, _ := s.UpdateProgress(id, "w2", 10, ""); ok {
		t.Error("progress accepted from non-owner")
	}
	if ok, _ := s.UpdateProgress(id, "w1", 150, ""); ok {
		t.Error("progress accepted out of range")
	}
	if ok, _ := s.UpdateProgress(id, "w1", 42, "halfway-ish"); !ok {
		t.Error("progress rejected from owner")
	}

	got, _ := s.Get(id)
	if got.Progress != 42 || got.ProgressNote != "halfway-ish" {
		t.Errorf("progress not recorded: %d %q", got.Progress, got.ProgressNote)
	}
}

// TestCompleteClearsAssignment verifies completion semantics.
func TestCompleteClearsAssignment(t *testing.T) {
	s := NewStore(3)
	id := mustSubmit(t, s, Spec{Name: "t"})
	s.Claim(id, "w1", nil)

	if ok, _ := s.Complete(id, "w2", "nope"); ok {
		t.Error("completion accepted from non-owner")
	}
	if ok, _ := s.Complete(id, "w1", "report"); !ok {
		t.Fatal("completion rejected from owner")
	}

	got, _ := s.Get(id)
	if got.Status != StatusCompleted {
		t.Errorf("expected completed, got %v", got.Status)
	}
	if got.AssignedWorker != "" {
		t.Error("assigned worker not cleared on completion")
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
	if got.Result != "report" {
		t.Errorf("result not stored: %q", got.Result)
	}
}

// TestFailRetriesThenExhausts verifies the retry budget.
func TestFailRetriesThenExhausts(t *testing.T) {
	s := NewStore(3)
	id := mustSubmit(t, s, Spec{Name: "flaky"})

	for attempt := 1; attempt <= 2; attempt++ {
		if !s.Claim(id, "w1", nil) {
			t.Fatalf("attempt %d: claim failed", attempt)
		}
		if out := s.Fail(id, "w1", "boom"); out != FailRequeued {
			t.Fatalf("attempt %d: expected FailRequeued, got %v", attempt, out)
		}
		got, _ := s.Get(id)
		if got.Status != StatusPending || got.RetryCount != attempt {
			t.Fatalf("attempt %d: status=%v retries=%d", attempt, got.Status, got.RetryCount)
		}
	}

	s.Claim(id, "w1", nil)
	if out := s.Fail(id, "w1", "boom"); out != FailExhausted {
		t.Fatalf("expected FailExhausted, got %v", out)
	}

	got, _ := s.Get(id)
	if got.Status != StatusFailed {
		t.Errorf("expected failed, got %v", got.Status)
	}
	failed := s.Failed()
	if len(failed) != 1 || failed[0].ID != id {
		t.Errorf("failed listing wrong: %v", failed)
	}
}

// TestCancelPending verifies cancellation of a queued task.
func TestCancelPending(t *testing.T) {
	s := NewStore(3)
	id := mustSubmit(t, s, Spec{Name: "t"})

	ok, inProgress := s.Cancel(id)
	if !ok || inProgress {
		t.Fatalf("Cancel = (%v, %v), want (true, false)", ok, inProgress)
	}
	if s.Claim(id, "w1", nil) {
		t.Error("claimed a cancelled task")
	}
	if ok, _ := s.Cancel(id); ok {
		t.Error("cancelled a task twice")
	}
}

// TestCancelInProgressIsCooperative verifies the cancellation flag is
// observed exactly once by the owning worker.
func TestCancelInProgressIsCooperative(t *testing.T) {
	s := NewStore(3)
	id := mustSubmit(t, s, Spec{Name: "t"})
	s.Claim(id, "w1", nil)

	ok, inProgress := s.Cancel(id)
	if !ok || !inProgress {
		t.Fatalf("Cancel = (%v, %v), want (true, true)", ok, inProgress)
	}

	got, _ := s.Get(id)
	if got.Status != StatusCancelled || got.AssignedWorker != "" {
		t.Fatalf("cancelled task not detached: status=%v assigned=%q", got.Status, got.AssignedWorker)
	}

	// Another worker's progress call must not consume the acknowledgment.
	if _, ack := s.UpdateProgress(id, "w2", 10, ""); ack {
		t.Error("acknowledgment consumed by non-owner")
	}

	ok, ack := s.UpdateProgress(id, "w1", 50, "")
	if ok || !ack {
		t.Fatalf("owner update = (%v, %v), want (false, true)", ok, ack)
	}

	// Second observation is an ordinary rejected update.
	if _, ack := s.UpdateProgress(id, "w1", 60, ""); ack {
		t.Error("acknowledgment delivered twice")
	}
}

// TestRequeueKeepsRetryCount verifies the offline-requeue transition.
func TestRequeueKeepsRetryCount(t *testing.T) {
	s := NewStore(3)
	id := mustSubmit(t, s, Spec{Name: "t"})
	s.Claim(id, "w1", nil)
	s.Fail(id, "w1", "first try")
	s.Claim(id, "w1", nil)

	if s.Requeue(id, "w2") {
		t.Error("requeue accepted from non-owner")
	}
	if !s.Requeue(id, "w1") {
		t.Fatal("requeue rejected from owner")
	}

	got, _ := s.Get(id)
	if got.Status != StatusPending {
		t.Errorf("expected pending, got %v", got.Status)
	}
	if got.AssignedWorker != "" || got.ClaimedAt != nil {
		t.Error("assignment not cleared on requeue")
	}
	if got.RetryCount != 1 {
		t.Errorf("retry count changed on requeue: %d", got.RetryCount)
	}
}

// TestCounts verifies aggregate counters across statuses.
func TestCounts(t *testing.T) {
	s := NewStore(1)

	a := mustSubmit(t, s, Spec{Name: "a"})
	b := mustSubmit(t, s, Spec{Name: "b"})
	c := mustSubmit(t, s, Spec{Name: "c"})
	d := mustSubmit(t, s, Spec{Name: "d"})
	mustSubmit(t, s, Spec{Name: "e"})

	s.Claim(a, "w1", nil)
	s.Claim(b, "w1", nil)
	s.Complete(b, "w1", "")
	s.Claim(c, "w1", nil)
	s.Fail(c, "w1", "boom") // max_retries=1, exhausted immediately
	s.Cancel(d)

	got := s.Counts()
	want := Counts{Pending: 1, InProgress: 1, Completed: 1, Failed: 1, Cancelled: 1}
	if got != want {
		t.Errorf("Counts = %+v, want %+v", got, want)
	}
}

// TestExecutionOrder verifies topological ordering of unfinished tasks.
func TestExecutionOrder(t *testing.T) {
	s := NewStore(3)
	a := mustSubmit(t, s, Spec{Name: "a"})
	b := mustSubmit(t, s, Spec{Name: "b", DependsOn: []string{a}})
	c := mustSubmit(t, s, Spec{Name: "c", DependsOn: []string{a, b}})

	order, err := s.ExecutionOrder()
	if err != nil {
		t.Fatalf("ExecutionOrder failed: %v", err)
	}

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos[a] > pos[b] || pos[b] > pos[c] {
		t.Errorf("order violates dependencies: %v", order)
	}

	// Finished tasks drop out of the plan.
	s.Claim(a, "w1", nil)
	s.Complete(a, "w1", "")
	order, err = s.ExecutionOrder()
	if err != nil {
		t.Fatalf("ExecutionOrder after completion failed: %v", err)
	}
	for _, id := range order {
		if id == a {
			t.Error("completed task still in execution order")
		}
	}
}
