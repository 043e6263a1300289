package taskrunner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentboard/agentboard/internal/boardmodel"
	"github.com/agentboard/agentboard/internal/bootstrap"
	"github.com/agentboard/agentboard/internal/events"
	"github.com/agentboard/agentboard/internal/metacodec"
	"github.com/agentboard/agentboard/internal/registry"
	"github.com/agentboard/agentboard/internal/store"
)

func newTestRegistry(t *testing.T, agents []boardmodel.Agent) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.json")
	data, err := json.Marshal(agents)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := registry.New(path)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func seedQueueWithTask(t *testing.T, backend *store.MemoryBackend, title, description string, color int) (queueID, wipID, reviewID string) {
	t.Helper()
	ctx := context.Background()
	q, err := backend.CreateColumn(ctx, boardmodel.ColumnQueue)
	if err != nil {
		t.Fatal(err)
	}
	wip, err := backend.CreateColumn(ctx, boardmodel.ColumnAgentWIP)
	if err != nil {
		t.Fatal(err)
	}
	rev, err := backend.CreateColumn(ctx, boardmodel.ColumnReview)
	if err != nil {
		t.Fatal(err)
	}
	_, err = backend.CreateTask(ctx, q.ID, boardmodel.Task{Title: title, Description: description, Color: color})
	if err != nil {
		t.Fatal(err)
	}
	return q.ID, wip.ID, rev.ID
}

func newTestRunner(t *testing.T, backend *store.MemoryBackend, agents []boardmodel.Agent, queueID, wipID, reviewID string) *Runner {
	return New(Config{
		Backend:       backend,
		Registry:      newTestRegistry(t, agents),
		Publisher:     events.NewNopPublisher(),
		FreeMemoryMB:  func() int { return 10000 },
		Interval:      time.Hour,
		WorkspacesDir: t.TempDir(),
		ResultsDir:    t.TempDir(),
		ColumnIDs:     bootstrap.ColumnIDs{Queue: queueID, AgentWIP: wipID, Review: reviewID},
	})
}

func TestRunnerDispatchesQueuedTaskToReview(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()

	queueID, wipID, reviewID := seedQueueWithTask(t, backend, "say hi", "please greet", 0)
	agents := []boardmodel.Agent{{ID: "echo", Cmd: "echo", Args: []string{"hi"}, Enabled: true, Default: true}}

	r := newTestRunner(t, backend, agents, queueID, wipID, reviewID)
	r.tick(context.Background())
	r.wg.Wait()

	board, err := backend.GetBoard(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	review, _ := board.FindColumnByTitle(boardmodel.ColumnReview)
	if len(review.Tasks) != 1 {
		t.Fatalf("expected task moved to Review, got columns %+v", board.Columns)
	}
	meta, ok := metacodec.Parse(review.Tasks[0].Description)
	if !ok {
		t.Fatal("expected meta to be parseable")
	}
	if meta.Status != boardmodel.AgentStatusReview {
		t.Errorf("expected status review, got %s", meta.Status)
	}
	if meta.Attempts != 1 {
		t.Errorf("expected attempts=1, got %d", meta.Attempts)
	}
}

func TestRunnerRequeuesOnFailureUnderAttemptCap(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()

	queueID, wipID, reviewID := seedQueueWithTask(t, backend, "fail task", "will fail", 0)
	agents := []boardmodel.Agent{{ID: "fail", Cmd: "sh", Args: []string{"-c", "exit 1"}, Enabled: true, Default: true}}

	r := newTestRunner(t, backend, agents, queueID, wipID, reviewID)
	r.tick(context.Background())
	r.wg.Wait()

	board, err := backend.GetBoard(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	queue, _ := board.FindColumnByTitle(boardmodel.ColumnQueue)
	if len(queue.Tasks) != 1 {
		t.Fatalf("expected task requeued, got %+v", board.Columns)
	}
	meta, _ := metacodec.Parse(queue.Tasks[0].Description)
	if meta.Status != boardmodel.AgentStatusQueued {
		t.Errorf("expected status queued after retry, got %s", meta.Status)
	}
}

func TestRunnerMarksFailedAfterMaxAttempts(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()

	queueID, wipID, reviewID := seedQueueWithTask(t, backend, "fail task", "will fail", 0)
	agents := []boardmodel.Agent{{ID: "fail", Cmd: "sh", Args: []string{"-c", "exit 1"}, Enabled: true, Default: true}}

	r := newTestRunner(t, backend, agents, queueID, wipID, reviewID)
	for i := 0; i < maxAttempts; i++ {
		r.tick(context.Background())
		r.wg.Wait()
	}

	board, err := backend.GetBoard(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	review, _ := board.FindColumnByTitle(boardmodel.ColumnReview)
	if len(review.Tasks) != 1 {
		t.Fatalf("expected failed task parked in Review, got %+v", board.Columns)
	}
	meta, _ := metacodec.Parse(review.Tasks[0].Description)
	if meta.Status != boardmodel.AgentStatusFailed {
		t.Errorf("expected status failed, got %s", meta.Status)
	}
	if meta.Attempts != maxAttempts {
		t.Errorf("expected attempts=%d, got %d", maxAttempts, meta.Attempts)
	}
}

func TestRunnerSkipsTickAtConcurrencyCap(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()

	queueID, wipID, reviewID := seedQueueWithTask(t, backend, "task", "desc", 0)
	agents := []boardmodel.Agent{{ID: "echo", Cmd: "echo", Args: []string{"hi"}, Enabled: true, Default: true}}

	r := newTestRunner(t, backend, agents, queueID, wipID, reviewID)
	r.markActive("already-running", ActiveAgent{Agent: "echo"})

	r.tick(context.Background())

	board, err := backend.GetBoard(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	queue, _ := board.FindColumnByTitle(boardmodel.ColumnQueue)
	if len(queue.Tasks) != 1 {
		t.Fatalf("expected task untouched at capacity, got %+v", board.Columns)
	}
}

func TestRunnerSkipsTickBelowGlobalFloor(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()

	queueID, wipID, reviewID := seedQueueWithTask(t, backend, "task", "desc", 0)
	agents := []boardmodel.Agent{{ID: "echo", Cmd: "echo", Args: []string{"hi"}, Enabled: true, Default: true}}

	r := newTestRunner(t, backend, agents, queueID, wipID, reviewID)
	r.freeMemoryMB = func() int { return 1 }

	r.tick(context.Background())

	board, err := backend.GetBoard(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	queue, _ := board.FindColumnByTitle(boardmodel.ColumnQueue)
	if len(queue.Tasks) != 1 {
		t.Fatalf("expected task untouched below floor, got %+v", board.Columns)
	}

	_, _, lastPollErr, _ := r.Status()
	if lastPollErr != nil {
		t.Errorf("expected lastPollErr nil when tick is skipped for the global RAM floor, got %v", lastPollErr)
	}
}

func TestRunnerDispatchesUpToConcurrencyCapConcurrently(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()

	ctx := context.Background()
	q, err := backend.CreateColumn(ctx, boardmodel.ColumnQueue)
	if err != nil {
		t.Fatal(err)
	}
	wip, err := backend.CreateColumn(ctx, boardmodel.ColumnAgentWIP)
	if err != nil {
		t.Fatal(err)
	}
	rev, err := backend.CreateColumn(ctx, boardmodel.ColumnReview)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := backend.CreateTask(ctx, q.ID, boardmodel.Task{Title: "one", Description: "d1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := backend.CreateTask(ctx, q.ID, boardmodel.Task{Title: "two", Description: "d2"}); err != nil {
		t.Fatal(err)
	}

	agents := []boardmodel.Agent{{ID: "sleepy", Cmd: "sh", Args: []string{"-c", "sleep 0.3"}, Enabled: true, Default: true}}
	r := New(Config{
		Backend:        backend,
		Registry:       newTestRegistry(t, agents),
		Publisher:      events.NewNopPublisher(),
		FreeMemoryMB:   func() int { return 10000 },
		Interval:       time.Hour,
		ConcurrencyCap: 2,
		WorkspacesDir:  t.TempDir(),
		ResultsDir:     t.TempDir(),
		ColumnIDs:      bootstrap.ColumnIDs{Queue: q.ID, AgentWIP: wip.ID, Review: rev.ID},
	})

	r.tick(ctx)
	defer r.wg.Wait()

	active, _, _, _ := r.Status()
	if len(active) != 2 {
		t.Fatalf("expected both queued tasks dispatched concurrently under a concurrency cap of 2, got %d active", len(active))
	}
}

func TestRunnerBackfillsActivePIDWhileRunning(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()

	queueID, wipID, reviewID := seedQueueWithTask(t, backend, "slow task", "desc", 0)
	agents := []boardmodel.Agent{{ID: "sleepy", Cmd: "sh", Args: []string{"-c", "sleep 0.3"}, Enabled: true, Default: true}}

	r := newTestRunner(t, backend, agents, queueID, wipID, reviewID)
	r.tick(context.Background())
	defer r.wg.Wait()

	deadline := time.After(2 * time.Second)
	for {
		active, _, _, _ := r.Status()
		if len(active) == 1 {
			for _, a := range active {
				if a.PID > 0 {
					return
				}
			}
		}
		select {
		case <-deadline:
			t.Fatal("expected ActiveAgent.PID to be backfilled with a real pid while the agent runs")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunnerRepairsStaleRunningMeta(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()

	queueID, wipID, reviewID := seedQueueWithTask(t, backend, "stale task", "desc", 0)
	board, _ := backend.GetBoard(context.Background())
	queue, _ := board.FindColumnByTitle(boardmodel.ColumnQueue)
	taskID := queue.Tasks[0].ID
	agentName := "echo"
	staleDesc := metacodec.Embed(queue.Tasks[0].Description, boardmodel.AgentMeta{Agent: &agentName, Status: boardmodel.AgentStatusRunning})
	desc := staleDesc
	_, err := backend.UpdateTask(context.Background(), taskID, store.TaskPatch{Description: &desc})
	if err != nil {
		t.Fatal(err)
	}

	agents := []boardmodel.Agent{{ID: "echo", Cmd: "echo", Args: []string{"hi"}, Enabled: true, Default: true}}
	r := newTestRunner(t, backend, agents, queueID, wipID, reviewID)
	r.tick(context.Background())
	r.wg.Wait()

	board2, _ := backend.GetBoard(context.Background())
	queue2, _ := board2.FindColumnByTitle(boardmodel.ColumnQueue)
	review2, _ := board2.FindColumnByTitle(boardmodel.ColumnReview)

	if len(review2.Tasks) != 1 {
		t.Fatalf("expected repaired task dispatched on the same tick and finished in Review, got review=%+v queue=%+v", review2.Tasks, queue2.Tasks)
	}
}
