package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentboard/agentboard/internal/boardmodel"
	"github.com/agentboard/agentboard/internal/store"
	"github.com/agentboard/agentboard/internal/util"
)

// ExportConfig names the inputs an on-demand backup export reads from.
type ExportConfig struct {
	Backend    store.Backend
	ResultsDir string
	ExportsDir string
}

// ExportResult is returned to the caller of GET /export.
type ExportResult struct {
	Path       string `json:"path"`
	TaskCount  int    `json:"taskCount"`
	ResultCount int   `json:"resultCount"`
}

// exportDocument is the on-disk shape of an export file.
type exportDocument struct {
	ExportedAt string                      `json:"exportedAt"`
	Board      *boardmodel.Board           `json:"board"`
	Results    map[string]exportedResult   `json:"results"`
	Stats      exportStats                 `json:"stats"`
}

type exportedResult struct {
	Meta     *Meta  `json:"meta,omitempty"`
	ResultMD string `json:"resultMD,omitempty"`
}

type exportStats struct {
	TaskCount   int `json:"taskCount"`
	ColumnCount int `json:"columnCount"`
	ResultCount int `json:"resultCount"`
}

// Export writes exports/backup-<ISO>.json combining a board snapshot with
// every per-task result archive directory it finds under resultsDir, and
// returns the file path plus item counts.
func Export(ctx context.Context, cfg ExportConfig, now time.Time) (ExportResult, error) {
	board, err := cfg.Backend.GetBoard(ctx)
	if err != nil {
		return ExportResult{}, fmt.Errorf("load board: %w", err)
	}

	results, err := collectResults(cfg.ResultsDir)
	if err != nil {
		return ExportResult{}, fmt.Errorf("collect results: %w", err)
	}

	taskCount := 0
	for _, col := range board.Columns {
		taskCount += len(col.Tasks)
	}

	doc := exportDocument{
		ExportedAt: now.UTC().Format(time.RFC3339),
		Board:      board,
		Results:    results,
		Stats: exportStats{
			TaskCount:   taskCount,
			ColumnCount: len(board.Columns),
			ResultCount: len(results),
		},
	}

	if err := os.MkdirAll(cfg.ExportsDir, 0o755); err != nil {
		return ExportResult{}, fmt.Errorf("create exports dir: %w", err)
	}
	path := filepath.Join(cfg.ExportsDir, fmt.Sprintf("backup-%s.json", now.UTC().Format("20060102T150405Z")))
	bytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return ExportResult{}, fmt.Errorf("marshal export: %w", err)
	}
	if err := util.AtomicWriteFile(path, bytes, 0o644); err != nil {
		return ExportResult{}, fmt.Errorf("write export: %w", err)
	}

	return ExportResult{Path: path, TaskCount: doc.Stats.TaskCount, ResultCount: doc.Stats.ResultCount}, nil
}

func collectResults(resultsDir string) (map[string]exportedResult, error) {
	results := make(map[string]exportedResult)

	entries, err := os.ReadDir(resultsDir)
	if os.IsNotExist(err) {
		return results, nil
	}
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		taskID := entry.Name()
		dir := filepath.Join(resultsDir, taskID)

		var r exportedResult
		if metaBytes, err := os.ReadFile(filepath.Join(dir, "meta.json")); err == nil {
			var m Meta
			if json.Unmarshal(metaBytes, &m) == nil {
				r.Meta = &m
			}
		}
		if resultMD, err := os.ReadFile(filepath.Join(dir, "RESULT.md")); err == nil {
			r.ResultMD = string(resultMD)
		}
		results[taskID] = r
	}

	return results, nil
}
