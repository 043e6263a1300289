package archiver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agentboard/agentboard/internal/supervisor"
)

func TestArchiveSynthesizesResultMDFromStdout(t *testing.T) {
	resultsDir := t.TempDir()
	workDir := t.TempDir()

	res := supervisor.Result{Success: true, ExitCode: 0, Stdout: "line1\nline2\nline3", DurationMs: 42}
	summary, err := Archive(resultsDir, "task-1", workDir, res, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(summary, "line3") {
		t.Errorf("expected synthesized summary to include tail of stdout, got %q", summary)
	}

	data, err := os.ReadFile(filepath.Join(resultsDir, "task-1", "RESULT.md"))
	if err != nil {
		t.Fatalf("expected RESULT.md to exist: %v", err)
	}
	if !strings.Contains(string(data), "line2") {
		t.Errorf("expected RESULT.md to contain stdout tail, got %q", data)
	}
}

func TestArchiveCopiesExistingResultMD(t *testing.T) {
	resultsDir := t.TempDir()
	workDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(workDir, "RESULT.md"), []byte("agent-authored summary"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := supervisor.Result{Success: true, Stdout: "irrelevant"}
	summary, err := Archive(resultsDir, "task-2", workDir, res, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != "agent-authored summary" {
		t.Errorf("expected summary to be agent-authored content, got %q", summary)
	}
}

func TestArchiveWritesAgentLogAndMeta(t *testing.T) {
	resultsDir := t.TempDir()
	workDir := t.TempDir()

	res := supervisor.Result{Success: false, ExitCode: 1, Stdout: "out", Stderr: "boom", TimedOut: true}
	if _, err := Archive(resultsDir, "task-3", workDir, res, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log, err := os.ReadFile(filepath.Join(resultsDir, "task-3", "agent.log"))
	if err != nil {
		t.Fatalf("expected agent.log to exist: %v", err)
	}
	if !strings.Contains(string(log), "out") || !strings.Contains(string(log), "boom") {
		t.Errorf("expected agent.log to contain stdout and stderr, got %q", log)
	}

	meta, err := os.ReadFile(filepath.Join(resultsDir, "task-3", "meta.json"))
	if err != nil {
		t.Fatalf("expected meta.json to exist: %v", err)
	}
	if !strings.Contains(string(meta), "\"timedOut\": true") {
		t.Errorf("expected meta.json to record timedOut, got %q", meta)
	}
}

func TestArchiveTruncatesLongSummary(t *testing.T) {
	resultsDir := t.TempDir()
	workDir := t.TempDir()

	long := strings.Repeat("x", maxSummaryChars+100)
	res := supervisor.Result{Success: true, Stdout: long}
	summary, err := Archive(resultsDir, "task-4", workDir, res, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary) > maxSummaryChars {
		t.Errorf("expected summary truncated to %d chars, got %d", maxSummaryChars, len(summary))
	}
}
