package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentboard/agentboard/internal/boardmodel"
	apierrors "github.com/agentboard/agentboard/internal/errors"
)

// MemoryBackend is an in-process Board Store, used for tests and as the
// zero-configuration default so the service never fails to start for lack
// of a remote board.
type MemoryBackend struct {
	mu      sync.Mutex
	columns []boardmodel.Column
	backlog []boardmodel.BacklogProject
}

// NewMemoryBackend returns an empty in-memory board store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) GetBoard(_ context.Context) (*boardmodel.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &boardmodel.Board{
		Columns: cloneColumns(m.columns),
		Backlog: cloneBacklog(m.backlog),
	}, nil
}

func (m *MemoryBackend) SaveBoard(_ context.Context, b *boardmodel.Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.columns = cloneColumns(b.Columns)
	// backlog is server-owned: the caller's copy is ignored entirely.
	return nil
}

func (m *MemoryBackend) ListColumns(_ context.Context) ([]boardmodel.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneColumns(m.columns), nil
}

func (m *MemoryBackend) CreateColumn(_ context.Context, title string) (*boardmodel.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	col := boardmodel.Column{ID: uuid.NewString(), Title: title}
	m.columns = append(m.columns, col)
	return &col, nil
}

func (m *MemoryBackend) ListTasks(_ context.Context) ([]boardmodel.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []boardmodel.Task
	for _, c := range m.columns {
		out = append(out, c.Tasks...)
	}
	return out, nil
}

func (m *MemoryBackend) CreateTask(_ context.Context, columnID string, t boardmodel.Task) (*boardmodel.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.columns {
		if m.columns[i].ID != columnID {
			continue
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now()
		}
		m.columns[i].Tasks = append(m.columns[i].Tasks, t)
		return &t, nil
	}
	return nil, apierrors.ErrStoreNotFound("column", columnID)
}

func (m *MemoryBackend) UpdateTask(_ context.Context, id string, patch TaskPatch) (*boardmodel.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ci := range m.columns {
		for ti := range m.columns[ci].Tasks {
			t := &m.columns[ci].Tasks[ti]
			if t.ID != id {
				continue
			}
			if patch.Title != nil {
				t.Title = *patch.Title
			}
			if patch.Description != nil {
				t.Description = *patch.Description
			}
			if patch.Color != nil {
				t.Color = *patch.Color
			}
			return t, nil
		}
	}
	return nil, apierrors.ErrStoreNotFound("task", id)
}

func (m *MemoryBackend) MoveTask(_ context.Context, id, targetColumnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var moved *boardmodel.Task
	for ci := range m.columns {
		for ti := range m.columns[ci].Tasks {
			if m.columns[ci].Tasks[ti].ID == id {
				t := m.columns[ci].Tasks[ti]
				moved = &t
				m.columns[ci].Tasks = append(m.columns[ci].Tasks[:ti], m.columns[ci].Tasks[ti+1:]...)
				break
			}
		}
		if moved != nil {
			break
		}
	}
	if moved == nil {
		return apierrors.ErrStoreNotFound("task", id)
	}
	now := time.Now()
	moved.MovedAt = &now
	for ci := range m.columns {
		if m.columns[ci].ID == targetColumnID {
			m.columns[ci].Tasks = append(m.columns[ci].Tasks, *moved)
			return nil
		}
	}
	return apierrors.ErrStoreNotFound("column", targetColumnID)
}

func (m *MemoryBackend) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ci := range m.columns {
		for ti := range m.columns[ci].Tasks {
			if m.columns[ci].Tasks[ti].ID == id {
				m.columns[ci].Tasks = append(m.columns[ci].Tasks[:ti], m.columns[ci].Tasks[ti+1:]...)
				return nil
			}
		}
	}
	return apierrors.ErrStoreNotFound("task", id)
}

func (m *MemoryBackend) ListBacklog(_ context.Context) ([]boardmodel.BacklogProject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneBacklog(m.backlog), nil
}

func (m *MemoryBackend) UpdateBacklog(_ context.Context, id string, patch BacklogPatch) (*boardmodel.BacklogProject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.backlog {
		p := &m.backlog[i]
		if p.ID != id {
			continue
		}
		applyBacklogPatch(p, patch)
		return p, nil
	}
	return nil, apierrors.ErrStoreNotFound("backlog project", id)
}

// SeedBacklog installs backlog entries directly. Only tests call it; the
// serve startup path does not seed the in-memory backlog.
func (m *MemoryBackend) SeedBacklog(projects ...boardmodel.BacklogProject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backlog = append(m.backlog, projects...)
}

func (m *MemoryBackend) Close() error { return nil }

func applyBacklogPatch(p *boardmodel.BacklogProject, patch BacklogPatch) {
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.GithubLink != nil {
		p.GithubLink = *patch.GithubLink
	}
	if patch.Documents != nil {
		p.Documents = *patch.Documents
	}
	if patch.SpecStatus != nil {
		p.SpecStatus = *patch.SpecStatus
	}
	if patch.Spec != nil {
		p.Spec = *patch.Spec
	}
	if patch.SpecTasks != nil {
		p.SpecTasks = *patch.SpecTasks
	}
}

func cloneColumns(cols []boardmodel.Column) []boardmodel.Column {
	out := make([]boardmodel.Column, len(cols))
	for i, c := range cols {
		out[i] = c
		out[i].Tasks = append([]boardmodel.Task(nil), c.Tasks...)
	}
	return out
}

func cloneBacklog(items []boardmodel.BacklogProject) []boardmodel.BacklogProject {
	out := make([]boardmodel.BacklogProject, len(items))
	copy(out, items)
	return out
}
