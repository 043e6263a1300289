package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentboard/agentboard/internal/bootstrap"
	"github.com/agentboard/agentboard/internal/boardmodel"
	"github.com/agentboard/agentboard/internal/events"
	"github.com/agentboard/agentboard/internal/registry"
	"github.com/agentboard/agentboard/internal/store"
	"github.com/agentboard/agentboard/internal/taskrunner"
)

type stubRunner struct {
	active      map[string]taskrunner.ActiveAgent
	completed   int
	lastPollErr error
	columnIDs   bootstrap.ColumnIDs
}

func (s stubRunner) Status() (map[string]taskrunner.ActiveAgent, int, error, bootstrap.ColumnIDs) {
	return s.active, s.completed, s.lastPollErr, s.columnIDs
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents.json")
	data, _ := json.Marshal([]boardmodel.Agent{
		{ID: "claude", Name: "Claude", Cmd: "claude", Args: []string{"{prompt}"}, Enabled: true, Default: true},
	})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := registry.New(path)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestHandleStatusReportsActiveAgentsAndCounts(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()

	startedAt := time.Now().Add(-2 * time.Second)
	runner := stubRunner{
		active:    map[string]taskrunner.ActiveAgent{"task-1": {Agent: "claude", PID: 123, StartedAt: startedAt}},
		completed: 4,
		columnIDs: bootstrap.ColumnIDs{Queue: "q", AgentWIP: "w", Review: "r"},
	}

	srv := New(Config{
		Backend:        backend,
		Runner:         runner,
		ConcurrencyCap: 1,
		FreeMemoryMB:   func() int { return 2048 },
	})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Service != "agentboard" {
		t.Errorf("expected service name, got %q", resp.Service)
	}
	if resp.Completed != 4 {
		t.Errorf("expected completed 4, got %d", resp.Completed)
	}
	if resp.FreeMemoryMB != 2048 {
		t.Errorf("expected freeMemoryMB 2048, got %d", resp.FreeMemoryMB)
	}
	active, ok := resp.Active["task-1"]
	if !ok {
		t.Fatal("expected task-1 in active map")
	}
	if active.Agent != "claude" || active.PID != 123 {
		t.Errorf("unexpected active agent view: %+v", active)
	}
	if active.RuntimeMs < 1000 {
		t.Errorf("expected runtimeMs to reflect elapsed time, got %d", active.RuntimeMs)
	}
}

func TestHandleStatusSurfacesEventHistoryWhenPublisherSupportsIt(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()

	bus := events.NewMemoryPublisher()
	defer bus.Close()
	bus.Publish(events.NewEvent(events.EventTaskRunning, "task-1", nil))
	bus.Publish(events.NewEvent(events.EventTaskReview, "task-1", nil))

	srv := New(Config{
		Backend:   backend,
		Publisher: bus,
	})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.EventCounts[events.EventTaskRunning] != 1 {
		t.Errorf("expected 1 task_running event counted, got %+v", resp.EventCounts)
	}
	if len(resp.RecentEvents) != 2 {
		t.Errorf("expected 2 recent events, got %d", len(resp.RecentEvents))
	}
}

func TestHandleAgentsReturnsRegistry(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()
	reg := newTestRegistry(t)

	srv := New(Config{Backend: backend, Registry: reg})

	req := httptest.NewRequest("GET", "/api/agents", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var agents []boardmodel.Agent
	if err := json.NewDecoder(w.Body).Decode(&agents); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(agents) != 1 || agents[0].ID != "claude" {
		t.Errorf("unexpected agents: %+v", agents)
	}
}

func TestHandleExportWritesBackupFile(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Close()

	tmp := t.TempDir()
	srv := New(Config{
		Backend:    backend,
		ExportsDir: filepath.Join(tmp, "exports"),
		ResultsDir: filepath.Join(tmp, "results"),
	})

	req := httptest.NewRequest("GET", "/export", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
