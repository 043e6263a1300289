// Package bootstrap implements the Workflow Columns Bootstrap
// (component I): it guarantees the Queue/Agent WIP/Review columns exist
// on startup and caches their resolved ids.
package bootstrap

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/agentboard/agentboard/internal/boardmodel"
	"github.com/agentboard/agentboard/internal/store"
)

// ColumnIDs caches the resolved ids of the three workflow columns.
type ColumnIDs struct {
	Queue    string
	AgentWIP string
	Review   string
}

// downstreamChain lists, for each workflow column, the titles that must
// not end up behind it, in order. The nearest one already on the board
// is where a missing column gets inserted.
var downstreamChain = map[string][]string{
	boardmodel.ColumnQueue:    {boardmodel.ColumnAgentWIP, boardmodel.ColumnReview, boardmodel.ColumnDone},
	boardmodel.ColumnAgentWIP: {boardmodel.ColumnReview, boardmodel.ColumnDone},
	boardmodel.ColumnReview:   {boardmodel.ColumnDone},
}

// Ensure fetches the board and creates any of Queue, Agent WIP, Review
// that are missing. All insertion points are computed against the
// original board snapshot before any mutation, so inserting one missing
// column never moves the anchor another missing column was computed
// against. Missing columns end up in Queue, Agent WIP, Review order,
// each placed immediately before the nearest workflow column already on
// the board (or at the end, if none of Agent WIP/Review/Done exist yet).
// It returns the resolved ids and whether any column was actually created.
func Ensure(ctx context.Context, backend store.Backend, now func() time.Time) (ColumnIDs, bool, error) {
	board, err := backend.GetBoard(ctx)
	if err != nil {
		return ColumnIDs{}, false, fmt.Errorf("fetch board: %w", err)
	}

	titles := []string{boardmodel.ColumnQueue, boardmodel.ColumnAgentWIP, boardmodel.ColumnReview}
	original := board.Columns
	var ids ColumnIDs
	changed := false
	inserted := 0

	for _, title := range titles {
		if col, ok := board.FindColumnByTitle(title); ok {
			setID(&ids, title, col.ID)
			continue
		}

		anchor := len(original)
		for _, downstream := range downstreamChain[title] {
			if i := findIndex(original, downstream); i != -1 {
				anchor = i
				break
			}
		}

		idx := anchor + inserted
		col := boardmodel.Column{ID: synthesizeID(now), Title: title, Tasks: nil}
		board.Columns = append(board.Columns, boardmodel.Column{})
		copy(board.Columns[idx+1:], board.Columns[idx:])
		board.Columns[idx] = col

		setID(&ids, title, col.ID)
		changed = true
		inserted++
	}

	if changed {
		if err := backend.SaveBoard(ctx, board); err != nil {
			return ColumnIDs{}, false, fmt.Errorf("save board: %w", err)
		}
	}

	return ids, changed, nil
}

func findIndex(columns []boardmodel.Column, title string) int {
	for i, c := range columns {
		if strings.EqualFold(c.Title, title) {
			return i
		}
	}
	return -1
}

func setID(ids *ColumnIDs, title, id string) {
	switch title {
	case boardmodel.ColumnQueue:
		ids.Queue = id
	case boardmodel.ColumnAgentWIP:
		ids.AgentWIP = id
	case boardmodel.ColumnReview:
		ids.Review = id
	}
}

func synthesizeID(now func() time.Time) string {
	if now == nil {
		now = time.Now
	}
	return fmt.Sprintf("col-%d-%04d", now().UnixNano(), rand.Intn(10000))
}
