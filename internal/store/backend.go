// Package store provides the Board Store abstraction: a small CRUD surface
// over the shared board document, satisfied by three concrete backends —
// a remote HTTP key/value client, an embedded single-file SQLite store, and
// an in-memory store for tests and zero-config startup. All implementations
// must be safe for concurrent access; both control loops poll the same
// Backend from independent goroutines.
package store

import (
	"context"

	"github.com/agentboard/agentboard/internal/boardmodel"
)

// Backend is the Board Store Client contract (component A). Network or
// non-2xx outcomes surface as an *errors.Error with CodeStoreUnavailable,
// CodeStoreNotFound, or CodeStoreConflict.
type Backend interface {
	GetBoard(ctx context.Context) (*boardmodel.Board, error)
	// SaveBoard performs a full replace, but the implementation must
	// preserve the server-owned backlog field rather than clobber it with
	// the caller's possibly-stale copy.
	SaveBoard(ctx context.Context, b *boardmodel.Board) error

	ListColumns(ctx context.Context) ([]boardmodel.Column, error)
	CreateColumn(ctx context.Context, title string) (*boardmodel.Column, error)

	ListTasks(ctx context.Context) ([]boardmodel.Task, error)
	CreateTask(ctx context.Context, columnID string, t boardmodel.Task) (*boardmodel.Task, error)
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (*boardmodel.Task, error)
	MoveTask(ctx context.Context, id, targetColumnID string) error
	DeleteTask(ctx context.Context, id string) error

	ListBacklog(ctx context.Context) ([]boardmodel.BacklogProject, error)
	UpdateBacklog(ctx context.Context, id string, patch BacklogPatch) (*boardmodel.BacklogProject, error)

	Close() error
}

// TaskPatch carries a partial update to a Task. Nil fields are left
// unchanged.
type TaskPatch struct {
	Title       *string
	Description *string
	Color       *int
}

// BacklogPatch carries a partial update to a BacklogProject. Nil fields
// are left unchanged.
type BacklogPatch struct {
	Title       *string
	Description *string
	GithubLink  *string
	Documents   *[]boardmodel.Document
	SpecStatus  *boardmodel.SpecStatus
	Spec        *string
	SpecTasks   *[]boardmodel.SpecTask
}

// Mode selects which concrete Backend implementation to construct.
type Mode string

const (
	ModeRemote Mode = "remote"
	ModeLocal  Mode = "local"
	ModeMemory Mode = "memory"
)
