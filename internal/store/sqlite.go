package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/agentboard/agentboard/internal/boardmodel"
	apierrors "github.com/agentboard/agentboard/internal/errors"
)

// SQLiteBackend persists the board document in a single embedded SQLite
// file. It is the "local file" Board Store mode: no server process, no
// CGo, safe for a single agentboard instance on one host. Columns and
// backlog projects are each stored as one JSON blob row; the document is
// small enough that whole-row round-tripping is simpler and just as
// correct as a normalized schema.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if absent) the board database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apierrors.ErrStoreUnavailable("sqlite", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS columns (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			data TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS backlog (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, apierrors.ErrStoreUnavailable("sqlite", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) GetBoard(ctx context.Context) (*boardmodel.Board, error) {
	cols, err := s.ListColumns(ctx)
	if err != nil {
		return nil, err
	}
	backlog, err := s.ListBacklog(ctx)
	if err != nil {
		return nil, err
	}
	return &boardmodel.Board{Columns: cols, Backlog: backlog}, nil
}

func (s *SQLiteBackend) SaveBoard(ctx context.Context, b *boardmodel.Board) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierrors.ErrStoreUnavailable("sqlite", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM columns`); err != nil {
		return apierrors.ErrStoreUnavailable("sqlite", err)
	}
	for i, c := range b.Columns {
		data, err := json.Marshal(c)
		if err != nil {
			return apierrors.Wrap(err, "marshal column")
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO columns (id, position, data) VALUES (?, ?, ?)`, c.ID, i, string(data)); err != nil {
			return apierrors.ErrStoreUnavailable("sqlite", err)
		}
	}
	// backlog is server-owned; SaveBoard never touches the backlog table.
	if err := tx.Commit(); err != nil {
		return apierrors.ErrStoreUnavailable("sqlite", err)
	}
	return nil
}

func (s *SQLiteBackend) ListColumns(ctx context.Context) ([]boardmodel.Column, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM columns ORDER BY position`)
	if err != nil {
		return nil, apierrors.ErrStoreUnavailable("sqlite", err)
	}
	defer rows.Close()

	var out []boardmodel.Column
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, apierrors.ErrStoreUnavailable("sqlite", err)
		}
		var col boardmodel.Column
		if err := json.Unmarshal([]byte(data), &col); err != nil {
			return nil, apierrors.Wrap(err, "decode column row")
		}
		out = append(out, col)
	}
	return out, nil
}

func (s *SQLiteBackend) CreateColumn(ctx context.Context, title string) (*boardmodel.Column, error) {
	col := boardmodel.Column{ID: uuid.NewString(), Title: title}
	data, err := json.Marshal(col)
	if err != nil {
		return nil, apierrors.Wrap(err, "marshal column")
	}
	var maxPos sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(position) FROM columns`).Scan(&maxPos); err != nil {
		return nil, apierrors.ErrStoreUnavailable("sqlite", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO columns (id, position, data) VALUES (?, ?, ?)`, col.ID, maxPos.Int64+1, string(data)); err != nil {
		return nil, apierrors.ErrStoreUnavailable("sqlite", err)
	}
	return &col, nil
}

func (s *SQLiteBackend) ListTasks(ctx context.Context) ([]boardmodel.Task, error) {
	cols, err := s.ListColumns(ctx)
	if err != nil {
		return nil, err
	}
	var out []boardmodel.Task
	for _, c := range cols {
		out = append(out, c.Tasks...)
	}
	return out, nil
}

func (s *SQLiteBackend) withColumnContaining(ctx context.Context, taskID string, fn func(*boardmodel.Column) error) (*boardmodel.Column, error) {
	cols, err := s.ListColumns(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cols {
		for _, t := range cols[i].Tasks {
			if t.ID == taskID {
				if err := fn(&cols[i]); err != nil {
					return nil, err
				}
				return s.replaceColumn(ctx, cols[i])
			}
		}
	}
	return nil, apierrors.ErrStoreNotFound("task", taskID)
}

func (s *SQLiteBackend) replaceColumn(ctx context.Context, col boardmodel.Column) (*boardmodel.Column, error) {
	data, err := json.Marshal(col)
	if err != nil {
		return nil, apierrors.Wrap(err, "marshal column")
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE columns SET data = ? WHERE id = ?`, string(data), col.ID); err != nil {
		return nil, apierrors.ErrStoreUnavailable("sqlite", err)
	}
	return &col, nil
}

func (s *SQLiteBackend) CreateTask(ctx context.Context, columnID string, t boardmodel.Task) (*boardmodel.Task, error) {
	cols, err := s.ListColumns(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cols {
		if cols[i].ID != columnID {
			continue
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		cols[i].Tasks = append(cols[i].Tasks, t)
		if _, err := s.replaceColumn(ctx, cols[i]); err != nil {
			return nil, err
		}
		return &t, nil
	}
	return nil, apierrors.ErrStoreNotFound("column", columnID)
}

func (s *SQLiteBackend) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*boardmodel.Task, error) {
	var updated boardmodel.Task
	_, err := s.withColumnContaining(ctx, id, func(col *boardmodel.Column) error {
		for i := range col.Tasks {
			if col.Tasks[i].ID != id {
				continue
			}
			if patch.Title != nil {
				col.Tasks[i].Title = *patch.Title
			}
			if patch.Description != nil {
				col.Tasks[i].Description = *patch.Description
			}
			if patch.Color != nil {
				col.Tasks[i].Color = *patch.Color
			}
			updated = col.Tasks[i]
			return nil
		}
		return apierrors.ErrStoreNotFound("task", id)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *SQLiteBackend) MoveTask(ctx context.Context, id, targetColumnID string) error {
	cols, err := s.ListColumns(ctx)
	if err != nil {
		return err
	}
	var moved *boardmodel.Task
	var sourceIdx, taskIdx int = -1, -1
	for i := range cols {
		for j := range cols[i].Tasks {
			if cols[i].Tasks[j].ID == id {
				sourceIdx, taskIdx = i, j
				break
			}
		}
	}
	if sourceIdx == -1 {
		return apierrors.ErrStoreNotFound("task", id)
	}
	t := cols[sourceIdx].Tasks[taskIdx]
	cols[sourceIdx].Tasks = append(cols[sourceIdx].Tasks[:taskIdx], cols[sourceIdx].Tasks[taskIdx+1:]...)
	moved = &t

	found := false
	for i := range cols {
		if cols[i].ID == targetColumnID {
			cols[i].Tasks = append(cols[i].Tasks, *moved)
			found = true
			break
		}
	}
	if !found {
		return apierrors.ErrStoreNotFound("column", targetColumnID)
	}

	if _, err := s.replaceColumn(ctx, cols[sourceIdx]); err != nil {
		return err
	}
	for i := range cols {
		if cols[i].ID == targetColumnID {
			if _, err := s.replaceColumn(ctx, cols[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SQLiteBackend) DeleteTask(ctx context.Context, id string) error {
	_, err := s.withColumnContaining(ctx, id, func(col *boardmodel.Column) error {
		for i, t := range col.Tasks {
			if t.ID == id {
				col.Tasks = append(col.Tasks[:i], col.Tasks[i+1:]...)
				return nil
			}
		}
		return apierrors.ErrStoreNotFound("task", id)
	})
	return err
}

func (s *SQLiteBackend) ListBacklog(ctx context.Context) ([]boardmodel.BacklogProject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM backlog`)
	if err != nil {
		return nil, apierrors.ErrStoreUnavailable("sqlite", err)
	}
	defer rows.Close()

	var out []boardmodel.BacklogProject
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, apierrors.ErrStoreUnavailable("sqlite", err)
		}
		var p boardmodel.BacklogProject
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, apierrors.Wrap(err, "decode backlog row")
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLiteBackend) UpdateBacklog(ctx context.Context, id string, patch BacklogPatch) (*boardmodel.BacklogProject, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM backlog WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, apierrors.ErrStoreNotFound("backlog project", id)
	}
	if err != nil {
		return nil, apierrors.ErrStoreUnavailable("sqlite", err)
	}
	var p boardmodel.BacklogProject
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, apierrors.Wrap(err, "decode backlog row")
	}
	applyBacklogPatch(&p, patch)
	newData, err := json.Marshal(p)
	if err != nil {
		return nil, apierrors.Wrap(err, "marshal backlog row")
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE backlog SET data = ? WHERE id = ?`, string(newData), id); err != nil {
		return nil, apierrors.ErrStoreUnavailable("sqlite", err)
	}
	return &p, nil
}

// SeedBacklog inserts backlog rows directly, used to pre-populate a local
// store the same way an operator UI would via the (out-of-scope) board
// service.
func (s *SQLiteBackend) SeedBacklog(ctx context.Context, projects ...boardmodel.BacklogProject) error {
	for _, p := range projects {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		data, err := json.Marshal(p)
		if err != nil {
			return apierrors.Wrap(err, "marshal backlog row")
		}
		if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO backlog (id, data) VALUES (?, ?)`, p.ID, string(data)); err != nil {
			return apierrors.ErrStoreUnavailable("sqlite", err)
		}
	}
	return nil
}

func (s *SQLiteBackend) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite board store: %w", err)
	}
	return nil
}
