package store

import (
	"context"
	"testing"

	"github.com/agentboard/agentboard/internal/boardmodel"
)

func TestMemoryBackendTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	col, err := m.CreateColumn(ctx, boardmodel.ColumnQueue)
	if err != nil {
		t.Fatalf("CreateColumn: %v", err)
	}
	target, err := m.CreateColumn(ctx, boardmodel.ColumnAgentWIP)
	if err != nil {
		t.Fatalf("CreateColumn: %v", err)
	}

	created, err := m.CreateTask(ctx, col.ID, boardmodel.Task{Title: "implement login"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if err := m.MoveTask(ctx, created.ID, target.ID); err != nil {
		t.Fatalf("MoveTask: %v", err)
	}

	tasks, err := m.ListTasks(ctx)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("ListTasks: %v, %d tasks", err, len(tasks))
	}
	if tasks[0].MovedAt == nil {
		t.Error("expected MovedAt to be set after MoveTask")
	}

	if err := m.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	tasks, _ = m.ListTasks(ctx)
	if len(tasks) != 0 {
		t.Errorf("expected 0 tasks after delete, got %d", len(tasks))
	}
}

func TestMemoryBackendSaveBoardPreservesBacklog(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	m.SeedBacklog(boardmodel.BacklogProject{ID: "p1", Title: "seeded"})

	err := m.SaveBoard(ctx, &boardmodel.Board{
		Columns: []boardmodel.Column{{ID: "c1", Title: "Queue"}},
		Backlog: []boardmodel.BacklogProject{{ID: "p2", Title: "should not win"}},
	})
	if err != nil {
		t.Fatalf("SaveBoard: %v", err)
	}

	board, err := m.GetBoard(ctx)
	if err != nil {
		t.Fatalf("GetBoard: %v", err)
	}
	if len(board.Backlog) != 1 || board.Backlog[0].ID != "p1" {
		t.Errorf("expected server-owned backlog to survive SaveBoard, got %+v", board.Backlog)
	}
}

func TestMemoryBackendUpdateBacklog(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	m.SeedBacklog(boardmodel.BacklogProject{ID: "p1", SpecStatus: boardmodel.SpecStatusNone})

	ready := boardmodel.SpecStatusReady
	spec := "# generated spec"
	updated, err := m.UpdateBacklog(ctx, "p1", BacklogPatch{SpecStatus: &ready, Spec: &spec})
	if err != nil {
		t.Fatalf("UpdateBacklog: %v", err)
	}
	if updated.SpecStatus != boardmodel.SpecStatusReady || updated.Spec != spec {
		t.Errorf("unexpected backlog project after patch: %+v", updated)
	}
}

func TestMemoryBackendUpdateBacklogNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	_, err := m.UpdateBacklog(ctx, "missing", BacklogPatch{})
	if err == nil {
		t.Fatal("expected error for unknown backlog id")
	}
}
