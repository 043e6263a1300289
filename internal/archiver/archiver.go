// Package archiver implements the Result Archiver (component K): it
// persists a supervised run's output to results/<taskId>/ and produces a
// short summary for embedding back into task meta.
package archiver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentboard/agentboard/internal/supervisor"
)

// maxSummaryChars bounds the summary returned for embedding in task meta.
const maxSummaryChars = 500

// tailLines is how many trailing stdout lines to synthesize a RESULT.md
// summary from when the agent did not write one itself.
const tailLines = 20

// Meta is the JSON document written alongside agent.log.
type Meta struct {
	Success    bool   `json:"success"`
	ExitCode   int    `json:"exitCode"`
	DurationMs int64  `json:"durationMs"`
	TimedOut   bool   `json:"timedOut"`
	CompletedAt string `json:"completedAt"`
}

// Archive writes results/<taskID>/{agent.log,RESULT.md,meta.json} from a
// supervisor outcome and the agent's scratch work directory, returning a
// summary (<=500 chars) suitable for embedding in task meta.
func Archive(resultsDir, taskID, workDir string, res supervisor.Result, now time.Time) (string, error) {
	dir := filepath.Join(resultsDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create result dir: %w", err)
	}

	if err := writeAgentLog(dir, res); err != nil {
		return "", fmt.Errorf("write agent.log: %w", err)
	}

	resultMD, err := resolveResultMD(dir, workDir, res.Stdout)
	if err != nil {
		return "", fmt.Errorf("write RESULT.md: %w", err)
	}

	meta := Meta{
		Success:     res.Success,
		ExitCode:    res.ExitCode,
		DurationMs:  res.DurationMs,
		TimedOut:    res.TimedOut,
		CompletedAt: now.UTC().Format(time.RFC3339),
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), metaBytes, 0o644); err != nil {
		return "", fmt.Errorf("write meta.json: %w", err)
	}

	return truncate(resultMD, maxSummaryChars), nil
}

func writeAgentLog(dir string, res supervisor.Result) error {
	var b strings.Builder
	b.WriteString("=== stdout ===\n")
	b.WriteString(res.Stdout)
	b.WriteString("\n=== stderr ===\n")
	b.WriteString(res.Stderr)
	b.WriteString("\n")
	return os.WriteFile(filepath.Join(dir, "agent.log"), []byte(b.String()), 0o644)
}

// resolveResultMD copies RESULT.md from the agent's work dir into dir if
// present, otherwise synthesizes one from the last ~tailLines lines of
// stdout. It returns the RESULT.md content for summarization.
func resolveResultMD(dir, workDir, stdout string) (string, error) {
	srcPath := filepath.Join(workDir, "RESULT.md")
	if content, err := os.ReadFile(srcPath); err == nil {
		if err := os.WriteFile(filepath.Join(dir, "RESULT.md"), content, 0o644); err != nil {
			return "", err
		}
		return string(content), nil
	}

	synthesized := synthesizeSummary(stdout)
	if err := os.WriteFile(filepath.Join(dir, "RESULT.md"), []byte(synthesized), 0o644); err != nil {
		return "", err
	}
	return synthesized, nil
}

func synthesizeSummary(stdout string) string {
	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	if len(lines) > tailLines {
		lines = lines[len(lines)-tailLines:]
	}
	return truncate(strings.Join(lines, "\n"), maxSummaryChars)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
