package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentboard/agentboard/internal/boardmodel"
	apierrors "github.com/agentboard/agentboard/internal/errors"
)

// HTTPBackend talks to the board's remote CRUD service. Authorization uses
// a bearer token; per the store contract, a 401 response with a token
// attached is retried exactly once without the header, since the deployed
// CRUD tolerates anonymous clients.
type HTTPBackend struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewHTTPBackend constructs a remote Board Store client. timeout applies to
// every request; the data model requires at least 30s.
func NewHTTPBackend(baseURL, token string, timeout time.Duration) *HTTPBackend {
	if timeout < 30*time.Second {
		timeout = 30 * time.Second
	}
	return &HTTPBackend{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return apierrors.Wrap(err, "encode request body")
		}
	}

	resp, err := b.doOnce(ctx, method, path, buf.Bytes(), b.Token)
	if err != nil {
		return apierrors.ErrStoreUnavailable("http", err)
	}

	if resp.StatusCode == http.StatusUnauthorized && b.Token != "" {
		resp.Body.Close()
		resp, err = b.doOnce(ctx, method, path, buf.Bytes(), "")
		if err != nil {
			return apierrors.ErrStoreUnavailable("http", err)
		}
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return apierrors.ErrStoreUnavailable("http", readErr)
	}

	if resp.StatusCode == http.StatusNotFound {
		return apierrors.ErrStoreNotFound("resource", path)
	}
	if resp.StatusCode == http.StatusConflict {
		return apierrors.ErrStoreConflict("resource", path)
	}
	if resp.StatusCode >= 300 {
		return apierrors.ErrStoreUnavailable("http", fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data)))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return apierrors.Wrap(err, "decode response body")
		}
	}
	return nil
}

func (b *HTTPBackend) doOnce(ctx context.Context, method, path string, body []byte, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return b.HTTPClient.Do(req)
}

func (b *HTTPBackend) GetBoard(ctx context.Context) (*boardmodel.Board, error) {
	var board boardmodel.Board
	if err := b.do(ctx, http.MethodGet, "/api/board", nil, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

func (b *HTTPBackend) SaveBoard(ctx context.Context, board *boardmodel.Board) error {
	// Preserve server-owned backlog: fetch the current one and overwrite the
	// caller's copy before sending the full replace.
	current, err := b.GetBoard(ctx)
	if err == nil {
		board.Backlog = current.Backlog
	}
	return b.do(ctx, http.MethodPost, "/api/board", board, nil)
}

func (b *HTTPBackend) ListColumns(ctx context.Context) ([]boardmodel.Column, error) {
	var cols []boardmodel.Column
	if err := b.do(ctx, http.MethodGet, "/api/columns", nil, &cols); err != nil {
		return nil, err
	}
	return cols, nil
}

func (b *HTTPBackend) CreateColumn(ctx context.Context, title string) (*boardmodel.Column, error) {
	var col boardmodel.Column
	if err := b.do(ctx, http.MethodPost, "/api/columns", map[string]string{"title": title}, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

func (b *HTTPBackend) ListTasks(ctx context.Context) ([]boardmodel.Task, error) {
	var tasks []boardmodel.Task
	if err := b.do(ctx, http.MethodGet, "/api/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (b *HTTPBackend) CreateTask(ctx context.Context, columnID string, t boardmodel.Task) (*boardmodel.Task, error) {
	req := struct {
		boardmodel.Task
		ColumnID string `json:"columnId"`
	}{Task: t, ColumnID: columnID}
	var created boardmodel.Task
	if err := b.do(ctx, http.MethodPost, "/api/tasks", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (b *HTTPBackend) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*boardmodel.Task, error) {
	var updated boardmodel.Task
	if err := b.do(ctx, http.MethodPut, "/api/tasks/"+id, patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (b *HTTPBackend) MoveTask(ctx context.Context, id, targetColumnID string) error {
	return b.do(ctx, http.MethodPut, "/api/tasks/"+id+"/move", map[string]string{"targetColumnId": targetColumnID}, nil)
}

func (b *HTTPBackend) DeleteTask(ctx context.Context, id string) error {
	return b.do(ctx, http.MethodDelete, "/api/tasks/"+id, nil, nil)
}

func (b *HTTPBackend) ListBacklog(ctx context.Context) ([]boardmodel.BacklogProject, error) {
	var items []boardmodel.BacklogProject
	if err := b.do(ctx, http.MethodGet, "/api/backlog", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (b *HTTPBackend) UpdateBacklog(ctx context.Context, id string, patch BacklogPatch) (*boardmodel.BacklogProject, error) {
	var updated boardmodel.BacklogProject
	if err := b.do(ctx, http.MethodPut, "/api/backlog/"+id, patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (b *HTTPBackend) Close() error { return nil }
